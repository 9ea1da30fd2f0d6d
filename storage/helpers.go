package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/chronicle/core"
)

// DefaultPageSize is the scroll page size used by ScrollAll when none is given.
const DefaultPageSize = 100

// EnsureIndexes creates each payload index, treating ErrIndexExists as success.
func EnsureIndexes(ctx context.Context, store PointStore, fields []string) error {
	for _, field := range fields {
		if err := store.CreateIndex(ctx, field); err != nil && !errors.Is(err, ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", field, err)
		}
	}
	return nil
}

// ScrollAll pages through every point matching filter and calls fn for each,
// in scan order. Iteration stops at the first error from fn.
func ScrollAll(ctx context.Context, store PointStore, filter Filter, pageSize int, fn func(core.Point) error) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := store.Scroll(ctx, ScrollRequest{Filter: filter, Cursor: cursor, Limit: pageSize})
		if err != nil {
			return err
		}
		for _, p := range page.Points {
			if err := fn(p); err != nil {
				return err
			}
		}
		if page.Next == "" || len(page.Points) == 0 {
			return nil
		}
		cursor = page.Next
	}
}
