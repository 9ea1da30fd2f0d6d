// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the storage abstraction layer for chronicle.
//
// This package defines the vector store and run ledger interfaces that
// decouple the ingestion pipeline and the reconciler from any particular
// backend. Two PointStore implementations exist:
//
//   - qdrant: REST adapter for a Qdrant collection (production)
//   - badger: embedded BadgerDB store (local corpora and tests)
//
// # Architecture
//
//   - PointStore: collection setup, upsert, filtered scroll, delete, count
//   - RunRepository: persisted summaries of ingestion runs
//   - Filter: corpus and source scoping shared by scroll and count
//
// Payload indexes are created through EnsureIndexes, which treats
// ErrIndexExists as success so collection initialization can be rerun.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	store, err := badger.NewPointStore(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = storage.ScrollAll(ctx, store, storage.Filter{SourceName: "revolutions"}, 100,
//	    func(p core.Point) error {
//	        fmt.Println(p.ID)
//	        return nil
//	    })
//
// # Encoding
//
// The badger backend stores points and run records with a versioned mus
// encoding (MarshalPoint, MarshalRunRecord).
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
