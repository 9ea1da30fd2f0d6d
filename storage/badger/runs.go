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


package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// SaveRun persists a run record under its corpus, start time and id.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.RunRecord) error {
	if run.ID == "" {
		run.ID = core.NewRunID()
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRunKey(run.SourceName, run.StartedAt, run.ID)
		if err := tx.Set(key, storage.MarshalRunRecord(run)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LastRun retrieves the most recent run for a corpus.
// Returns nil, nil if no run exists.
func (r *RunRepository) LastRun(ctx context.Context, sourceName string) (*core.RunRecord, error) {
	runs, err := r.ListRuns(ctx, sourceName, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// ListRuns returns up to limit runs for a corpus, newest first.
// A non-positive limit returns every run.
func (r *RunRepository) ListRuns(ctx context.Context, sourceName string, limit int) ([]*core.RunRecord, error) {
	var runs []*core.RunRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialRunKey(sourceName)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := tx.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the last key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(runs) == limit {
				return nil
			}
			err := it.Item().Value(func(val []byte) error {
				run, err := storage.UnmarshalRunRecord(val)
				if err != nil {
					return err
				}
				runs = append(runs, run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return runs, err
}
