// Package blobstore stores generated artifacts (page images, covers,
// narration audio) and serves them by stable public URL.
package blobstore

import (
	"context"
	"fmt"
)

// CacheControl is set on every artifact. Artifacts are content-addressed
// by book and page, so they never change in place.
const CacheControl = "public, max-age=31536000"

// ArtifactStore writes artifacts and reports their public URLs.
type ArtifactStore interface {
	// Put stores data at path with the given content type and returns the
	// public URL. Overwrites are allowed; paths are owned by one book.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// Exists reports whether an artifact is already stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the artifact at path. Missing artifacts are not an error.
	Delete(ctx context.Context, path string) error

	// PublicURL returns the URL an artifact at path would be served from.
	PublicURL(path string) string
}

// Artifact paths for one book.

// PageImagePath returns the storage path of a page illustration.
// Pages use two-digit numbering so listings sort naturally.
func PageImagePath(bookID string, pageNumber int) string {
	return fmt.Sprintf("images/books/%s/page_%02d.png", bookID, pageNumber)
}

// CoverImagePath returns the storage path of the cover illustration.
func CoverImagePath(bookID string) string {
	return fmt.Sprintf("images/books/%s/cover.png", bookID)
}

// NarrationPath returns the storage path of the whole-book narration.
func NarrationPath(bookID string) string {
	return fmt.Sprintf("audio/books/%s/narration.wav", bookID)
}
