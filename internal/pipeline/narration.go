package pipeline

import (
	"strings"

	"github.com/fablekit/fable/internal/types"
)

// BuildNarration assembles the whole-book narration script. Blank lines
// between parts read as natural pauses: a short one after the title, a
// page-turn pause between pages, and a beat before the closing line.
func BuildNarration(book *types.Book) string {
	parts := []string{book.Title + ".", ""}

	for i, page := range book.Pages {
		parts = append(parts, page.Text)
		if i < len(book.Pages)-1 {
			parts = append(parts, "")
		}
	}

	parts = append(parts, "", "The End.")
	return strings.Join(parts, "\n\n")
}
