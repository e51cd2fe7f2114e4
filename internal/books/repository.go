// Package books is the catalog repository over the document store, with a
// short-lived read cache in front of single-book fetches.
package books

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/types"
)

// Collection is the document store collection holding books.
const Collection = "books"

const (
	cacheTTL     = 30 * time.Second
	cacheCleanup = time.Minute
)

// Repository persists books and their generated artifacts.
type Repository struct {
	store     docstore.Store
	artifacts blobstore.ArtifactStore
	cache     *gocache.Cache
}

// NewRepository creates a repository over the given stores.
func NewRepository(store docstore.Store, artifacts blobstore.ArtifactStore) *Repository {
	return &Repository{
		store:     store,
		artifacts: artifacts,
		cache:     gocache.New(cacheTTL, cacheCleanup),
	}
}

// Init ensures the backing collection exists.
func (r *Repository) Init(ctx context.Context) error {
	return r.store.EnsureCollection(ctx, Collection)
}

// NewBookID mints a book identifier.
func NewBookID() string {
	return uuid.NewString()
}

// Create persists a new book. The book must already carry its BookID.
func (r *Repository) Create(ctx context.Context, book *types.Book) error {
	if book.BookID == "" {
		return fmt.Errorf("book id is required")
	}
	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	if _, err := r.store.Put(ctx, Collection, book.BookID, "", book); err != nil {
		return fmt.Errorf("failed to create book %s: %w", book.BookID, err)
	}
	r.cache.Delete(book.BookID)
	return nil
}

// Get fetches a book, serving repeat reads from cache.
func (r *Repository) Get(ctx context.Context, bookID string) (*types.Book, error) {
	if cached, ok := r.cache.Get(bookID); ok {
		book := cached.(types.Book)
		return &book, nil
	}

	var book types.Book
	if _, err := r.store.Get(ctx, Collection, bookID, &book); err != nil {
		return nil, err
	}
	r.cache.Set(bookID, book, gocache.DefaultExpiration)
	return &book, nil
}

// Update applies fn to a fresh read of the book and writes it back under
// its revision, retrying on concurrent-writer conflicts.
func (r *Repository) Update(ctx context.Context, bookID string, fn func(*types.Book) error) (*types.Book, error) {
	book, err := docstore.Update[types.Book](ctx, r.store, Collection, bookID, func(b *types.Book) error {
		if err := fn(b); err != nil {
			return err
		}
		b.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.cache.Delete(bookID)
	return book, nil
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	AgeRange types.AgeBand
	Status   types.BookStatus
	Theme    string
	Limit    int
	Skip     int
}

// List returns books matching the filter, newest ordering left to the
// caller. Unfiltered listing pages straight off the store.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*types.Book, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	var (
		raws []json.RawMessage
		err  error
	)
	if filter.AgeRange == "" && filter.Status == "" && filter.Theme == "" {
		raws, err = r.store.List(ctx, Collection, docstore.ListOptions{
			Limit: filter.Limit,
			Skip:  filter.Skip,
		})
	} else {
		selector := map[string]any{}
		if filter.AgeRange != "" {
			selector["ageRange"] = string(filter.AgeRange)
		}
		if filter.Status != "" {
			selector["status"] = string(filter.Status)
		}
		if filter.Theme != "" {
			selector["theme"] = filter.Theme
		}
		raws, err = r.store.Find(ctx, Collection, docstore.FindQuery{
			Selector: selector,
			Limit:    filter.Limit,
			Skip:     filter.Skip,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	out := make([]*types.Book, 0, len(raws))
	for _, raw := range raws {
		var book types.Book
		if err := json.Unmarshal(raw, &book); err != nil {
			slog.Warn("skipping undecodable book document", "error", err)
			continue
		}
		out = append(out, &book)
	}
	return out, nil
}

// SetAudio patches the narration metadata on a book.
func (r *Repository) SetAudio(ctx context.Context, bookID string, audio types.AudioMetadata) (*types.Book, error) {
	return r.Update(ctx, bookID, func(b *types.Book) error {
		b.Audio = audio
		return nil
	})
}

// Delete removes a book and its stored artifacts. Artifact deletion is
// best effort; the catalog entry goes first so readers stop seeing it.
func (r *Repository) Delete(ctx context.Context, bookID string) error {
	book, err := r.Get(ctx, bookID)
	if err != nil {
		return err
	}

	rev, err := r.store.Get(ctx, Collection, bookID, nil)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, Collection, bookID, rev); err != nil {
		return fmt.Errorf("failed to delete book %s: %w", bookID, err)
	}
	r.cache.Delete(bookID)

	paths := []string{blobstore.CoverImagePath(bookID), blobstore.NarrationPath(bookID)}
	for _, p := range book.Pages {
		paths = append(paths, blobstore.PageImagePath(bookID, p.PageNumber))
	}
	for _, path := range paths {
		if err := r.artifacts.Delete(ctx, path); err != nil {
			slog.Warn("failed to delete artifact", "book_id", bookID, "path", path, "error", err)
		}
	}
	return nil
}

// Count returns the number of books matching the filter.
func (r *Repository) Count(ctx context.Context, filter ListFilter) (int, error) {
	filter.Limit = 0
	filter.Skip = 0
	// The store has no count endpoint; page in bulk.
	const page = 500
	total := 0
	for skip := 0; ; skip += page {
		f := filter
		f.Limit = page
		f.Skip = skip
		batch, err := r.List(ctx, f)
		if err != nil {
			return 0, err
		}
		total += len(batch)
		if len(batch) < page {
			return total, nil
		}
	}
}
