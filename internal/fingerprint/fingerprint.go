// Package fingerprint computes content hashes used for cache invalidation.
//
// Narration audio is the expensive, rate-limited artifact: before invoking
// the speech generator the pipeline fingerprints the narration inputs and
// skips generation when the stored hash matches. Invalidation is
// content-addressed, never time-based.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/fablekit/fable/internal/types"
)

// NarrationFormatVersion tags how narration text is assembled (pauses,
// title/ending framing). Bumping it invalidates every cached narration
// artifact even when the underlying story text is unchanged.
const NarrationFormatVersion = "v1"

// Audio returns the fingerprint of a book's narration inputs: the page text
// in order, the voice, and the narration format version.
func Audio(book *types.Book, voiceName string) string {
	texts := make([]string, 0, len(book.Pages))
	for _, p := range book.Pages {
		texts = append(texts, p.Text)
	}
	input := strings.Join(texts, "\n\n") + "|" + voiceName + "|" + NarrationFormatVersion
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Text returns the short hash of the story text, recomputed only when the
// text changes.
func Text(pages []types.BookPage) string {
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, p.Text)
	}
	sum := sha256.Sum256([]byte(strings.Join(texts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// AudioStale reports whether the stored narration artifact must be
// regenerated for the given voice.
func AudioStale(book *types.Book, voiceName string) bool {
	if book.Audio.Status != types.AudioReady {
		return true
	}
	return book.Audio.Hash != Audio(book, voiceName)
}
