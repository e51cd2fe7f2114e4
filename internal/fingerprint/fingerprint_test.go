package fingerprint

import (
	"testing"

	"github.com/fablekit/fable/internal/types"
)

func testBook() *types.Book {
	return &types.Book{
		BookID: "book_test",
		Title:  "The Brave Little Fox",
		Pages: []types.BookPage{
			{PageNumber: 1, Text: "Once there was a little fox."},
			{PageNumber: 2, Text: "The fox wanted to see the sea."},
		},
	}
}

func TestAudioDeterministic(t *testing.T) {
	book := testBook()
	a := Audio(book, "Kore")
	b := Audio(book, "Kore")
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex digest, got %d chars", len(a))
	}
}

func TestAudioSensitivity(t *testing.T) {
	base := Audio(testBook(), "Kore")

	changedText := testBook()
	changedText.Pages[1].Text = "The fox wanted to see the mountains."
	if Audio(changedText, "Kore") == base {
		t.Fatal("changing page text must change the fingerprint")
	}

	if Audio(testBook(), "Puck") == base {
		t.Fatal("changing voice must change the fingerprint")
	}
}

func TestAudioIgnoresMetadata(t *testing.T) {
	book := testBook()
	base := Audio(book, "Kore")

	book.Title = "A Different Title"
	book.Synopsis = "New synopsis"
	book.Tags = []string{"new-tag"}
	if Audio(book, "Kore") != base {
		t.Fatal("metadata-only changes must not change the fingerprint")
	}
}

func TestTextHash(t *testing.T) {
	pages := testBook().Pages
	h := Text(pages)
	if len(h) != 16 {
		t.Fatalf("expected 16-char text hash, got %d", len(h))
	}
	pages[0].Text = "changed"
	if Text(pages) == h {
		t.Fatal("changing text must change the text hash")
	}
}

func TestAudioStale(t *testing.T) {
	book := testBook()

	// No audio yet.
	if !AudioStale(book, "Kore") {
		t.Fatal("missing audio must be stale")
	}

	book.Audio.Status = types.AudioReady
	book.Audio.Hash = Audio(book, "Kore")
	if AudioStale(book, "Kore") {
		t.Fatal("matching hash with ready status must not be stale")
	}

	// Text change invalidates.
	book.Pages[0].Text = "Once there was a very little fox."
	if !AudioStale(book, "Kore") {
		t.Fatal("text change must invalidate narration")
	}
}
