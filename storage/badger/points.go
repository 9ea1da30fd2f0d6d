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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/storage"
)

// PointStore implements storage.PointStore for BadgerDB.
//
// Points are keyed by id. A secondary index keyed by (source name, sequence
// key, id) serves filtered scrolls and counts, and fixes the scan order for
// a corpus. Scroll cursors are raw iterator keys.
type PointStore struct {
	backend *Backend
}

var _ storage.PointStore = (*PointStore)(nil)

// NewPointStore creates a new PointStore on backend.
func NewPointStore(backend *Backend) (*PointStore, error) {
	if backend == nil {
		return nil, errors.New("badger: backend required")
	}
	return &PointStore{backend: backend}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (s *PointStore) Close() error {
	return nil
}

// EnsureCollection records the vector size on first use and rejects a
// different size afterwards.
func (s *PointStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", storage.ErrInvalidQuery, dimensions)
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readDimensions(tx)
		if err != nil {
			return err
		}
		if existing == dimensions {
			return nil
		}
		if existing != 0 {
			return fmt.Errorf("%w: collection has %d, requested %d", storage.ErrDimensionMismatch, existing, dimensions)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(dimensions))
		if err := tx.Set([]byte(dimensionsKey), buf); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Dimensions returns the collection's vector size, or 0 if it does not exist.
func (s *PointStore) Dimensions(ctx context.Context) (int, error) {
	var dims int
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		dims, err = readDimensions(tx)
		return err
	}, false)
	return dims, err
}

// CreateIndex registers a payload index. The secondary index always covers
// source name and sequence key; other fields are recorded only.
func (s *PointStore) CreateIndex(ctx context.Context, field string) error {
	if field == "" {
		return fmt.Errorf("%w: empty index field", storage.ErrInvalidQuery)
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := requireCollection(tx); err != nil {
			return err
		}
		key := makeIndexKey(field)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrIndexExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Upsert writes points, moving their index entries if source or sequence changed.
func (s *PointStore) Upsert(ctx context.Context, points []core.Point) error {
	if len(points) == 0 {
		return nil
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		dims, err := readDimensions(tx)
		if err != nil {
			return err
		}
		if dims == 0 {
			return storage.ErrCollectionMissing
		}

		for i := range points {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := &points[i]
			if p.ID == "" {
				return fmt.Errorf("%w: point at %d has no id", storage.ErrInvalidQuery, i)
			}
			if len(p.Vector) != dims {
				return fmt.Errorf("%w: point %s has %d, collection has %d",
					storage.ErrDimensionMismatch, p.ID, len(p.Vector), dims)
			}

			m := &p.Segment.Metadata
			indexKey := makePointIndexKey(m.SourceName, m.SequenceKey, p.ID)

			old, err := readPoint(tx, p.ID)
			if err != nil {
				return err
			}
			if old != nil {
				om := &old.Segment.Metadata
				oldIndexKey := makePointIndexKey(om.SourceName, om.SequenceKey, old.ID)
				if !bytes.Equal(oldIndexKey, indexKey) {
					if err := tx.Delete(oldIndexKey); err != nil {
						return err
					}
				}
			}

			if err := tx.Set(makePointKey(p.ID), storage.MarshalPoint(p)); err != nil {
				return err
			}
			if err := tx.Set(indexKey, nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Scroll returns one page of points. Filtered scans walk the secondary index
// in (sequence key, id) order; unfiltered scans walk points in id order.
func (s *PointStore) Scroll(ctx context.Context, req storage.ScrollRequest) (*storage.ScrollPage, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	indexed := req.Filter.SourceName != ""
	prefix := []byte(pointPrefix)
	if indexed {
		prefix = makePartialPointIndexKey(req.Filter.SourceName, req.Filter.SequenceKey)
	}
	start := prefix
	if req.Cursor != "" {
		start = []byte(req.Cursor)
		if !bytes.HasPrefix(start, prefix) {
			return nil, fmt.Errorf("%w: cursor does not belong to this scan", storage.ErrInvalidQuery)
		}
	}

	page := &storage.ScrollPage{}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = !indexed
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if len(page.Points) == req.Limit {
				page.Next = string(item.KeyCopy(nil))
				return nil
			}

			var p *core.Point
			if indexed {
				id, err := pointIDFromIndexKey(item.Key())
				if err != nil {
					return err
				}
				if p, err = readPoint(tx, id); err != nil {
					return err
				}
				if p == nil {
					s.backend.logger.Warn("dangling point index entry", "id", id)
					continue
				}
			} else {
				err := item.Value(func(val []byte) error {
					var err error
					p, err = storage.UnmarshalPoint(val)
					return err
				})
				if err != nil {
					return err
				}
				if !req.Filter.Matches(p) {
					continue
				}
			}

			p.Vector = nil
			page.Points = append(page.Points, *p)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Delete removes points and their index entries. Unknown ids are ignored.
func (s *PointStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			p, err := readPoint(tx, id)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			m := &p.Segment.Metadata
			if err := tx.Delete(makePointIndexKey(m.SourceName, m.SequenceKey, id)); err != nil {
				return err
			}
			if err := tx.Delete(makePointKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Count returns the number of points matching filter.
func (s *PointStore) Count(ctx context.Context, filter storage.Filter) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		if filter.SourceName != "" {
			opts.Prefix = makePartialPointIndexKey(filter.SourceName, filter.SequenceKey)
			opts.PrefetchValues = false
		} else {
			opts.Prefix = []byte(pointPrefix)
			opts.PrefetchValues = filter.SequenceKey != ""
		}
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if filter.SourceName == "" && filter.SequenceKey != "" {
				var p *core.Point
				err := it.Item().Value(func(val []byte) error {
					var err error
					p, err = storage.UnmarshalPoint(val)
					return err
				})
				if err != nil {
					return err
				}
				if !filter.Matches(p) {
					continue
				}
			}
			count++
		}
		return nil
	}, false)
	return count, err
}

// readPoint loads a point by id. Returns nil, nil if it does not exist.
func readPoint(tx *badger.Txn, id string) (*core.Point, error) {
	item, err := tx.Get(makePointKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var p *core.Point
	err = item.Value(func(val []byte) error {
		var err error
		p, err = storage.UnmarshalPoint(val)
		return err
	})
	return p, err
}

func readDimensions(tx *badger.Txn) (int, error) {
	item, err := tx.Get([]byte(dimensionsKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var dims int
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%w: bad dimensions record", storage.ErrSerializationFailed)
		}
		dims = int(binary.BigEndian.Uint64(val))
		return nil
	})
	return dims, err
}

func requireCollection(tx *badger.Txn) error {
	dims, err := readDimensions(tx)
	if err != nil {
		return err
	}
	if dims == 0 {
		return storage.ErrCollectionMissing
	}
	return nil
}
