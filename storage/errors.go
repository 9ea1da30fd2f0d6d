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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrIndexExists indicates the payload index is already present.
	ErrIndexExists = errors.New("index already exists")

	// ErrCollectionMissing indicates the collection has not been created.
	ErrCollectionMissing = errors.New("collection does not exist")

	// ErrDimensionMismatch indicates a vector or collection of the wrong size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrRejected indicates the store refused a request as malformed or
	// unauthorized. Repeating it cannot succeed.
	ErrRejected = errors.New("request rejected by store")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrUnsupportedVersion indicates an encoded record from an unknown codec version.
	ErrUnsupportedVersion = errors.New("unsupported encoding version")
)
