package source

import (
	"context"
	"fmt"
)

// Cursor is a lazy, forward-only pass over one collection.
type Cursor[T any] interface {
	Next(ctx context.Context) bool
	// Decode returns the current record. An error here is record level.
	Decode() (T, error)
	// ID identifies the current raw document for logs, even when Decode fails.
	ID() string
	Err() error
	Close(ctx context.Context) error
}

// Enumerator opens a fresh cursor over a collection. Re-opening always
// restarts from the beginning.
type Enumerator[T any] interface {
	Name() string
	Open(ctx context.Context) (Cursor[T], error)
}

// Static enumerates an in-memory slice. FailAt injects decode errors by index.
type Static[T any] struct {
	Collection string
	Records    []T
	OpenErr    error
	FailAt     map[int]error
}

func (s *Static[T]) Name() string { return s.Collection }

func (s *Static[T]) Open(ctx context.Context) (Cursor[T], error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	return &staticCursor[T]{src: s, pos: -1}, nil
}

type staticCursor[T any] struct {
	src *Static[T]
	pos int
}

func (c *staticCursor[T]) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.pos++
	return c.pos < len(c.src.Records)
}

func (c *staticCursor[T]) Decode() (T, error) {
	if err, ok := c.src.FailAt[c.pos]; ok {
		var zero T
		return zero, err
	}
	return c.src.Records[c.pos], nil
}

func (c *staticCursor[T]) ID() string {
	return fmt.Sprintf("%s#%d", c.src.Collection, c.pos)
}

func (c *staticCursor[T]) Err() error { return nil }
func (c *staticCursor[T]) Close(ctx context.Context) error { return nil }
