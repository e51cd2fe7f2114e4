// Package docstore provides the document database behind the book catalog
// and batch checkpoints. The production backend is CouchDB over HTTP; an
// in-memory store backs tests.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors for the docstore package.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a write carries a stale revision. The
	// caller should re-read and retry.
	ErrConflict = errors.New("document revision conflict")
)

// ListOptions controls pagination and ordering for List.
type ListOptions struct {
	Limit      int
	Skip       int
	Descending bool
}

// FindQuery is a selector-based query. Selector uses CouchDB mango
// operators ($eq implied for scalar values).
type FindQuery struct {
	Selector map[string]any
	Limit    int
	Skip     int
	Sort     []map[string]string
}

// Store is a revisioned document store. Put with an empty rev creates;
// a non-empty rev is compare-and-swap against the stored revision.
type Store interface {
	Get(ctx context.Context, collection, id string, out any) (rev string, err error)
	Put(ctx context.Context, collection, id, rev string, doc any) (newRev string, err error)
	Delete(ctx context.Context, collection, id, rev string) error
	List(ctx context.Context, collection string, opts ListOptions) ([]json.RawMessage, error)
	Find(ctx context.Context, collection string, q FindQuery) ([]json.RawMessage, error)
	EnsureCollection(ctx context.Context, collection string) error
}

// Update reads a document, applies fn, and writes it back under its
// revision, retrying on conflict. fn sees the freshly read document.
func Update[T any](ctx context.Context, s Store, collection, id string, fn func(*T) error) (*T, error) {
	const maxConflictRetries = 5

	var lastErr error
	for i := 0; i < maxConflictRetries; i++ {
		var doc T
		rev, err := s.Get(ctx, collection, id, &doc)
		if err != nil {
			return nil, err
		}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		if _, err := s.Put(ctx, collection, id, rev, &doc); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return &doc, nil
	}
	return nil, lastErr
}
