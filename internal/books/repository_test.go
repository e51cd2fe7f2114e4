package books

import (
	"context"
	"errors"
	"testing"

	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/types"
)

func newTestRepo() (*Repository, *blobstore.MemoryStore) {
	artifacts := blobstore.NewMemoryStore()
	return NewRepository(docstore.NewMemoryStore(), artifacts), artifacts
}

func sampleBook(id string) *types.Book {
	return &types.Book{
		BookID:       id,
		Title:        "The Little Fox",
		AgeRange:     types.Ages6To8,
		ReadingLevel: "intermediate",
		Theme:        "courage",
		Status:       types.StatusDraft,
		Pages: []types.BookPage{
			{PageNumber: 1, Text: "Once upon a time.", ImagePrompt: "A fox"},
			{PageNumber: 2, Text: "The end is near.", ImagePrompt: "A den"},
		},
		PageCount: 2,
		Audio:     types.NewAudioMetadata(),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()

	book := sampleBook("b1")
	if err := repo.Create(ctx, book); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if book.CreatedAt.IsZero() || book.UpdatedAt.IsZero() {
		t.Error("timestamps not set on create")
	}

	got, err := repo.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "The Little Fox" || len(got.Pages) != 2 {
		t.Errorf("got = %+v", got)
	}

	// Second read should come from cache and still match.
	again, err := repo.Get(ctx, "b1")
	if err != nil || again.BookID != "b1" {
		t.Errorf("cached Get = %+v, %v", again, err)
	}
}

func TestGetMissing(t *testing.T) {
	repo, _ := newTestRepo()
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()
	repo.Create(ctx, sampleBook("b1"))
	repo.Get(ctx, "b1") // Prime the cache.

	updated, err := repo.Update(ctx, "b1", func(b *types.Book) error {
		b.Status = types.StatusPublished
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != types.StatusPublished {
		t.Errorf("status = %q", updated.Status)
	}

	got, _ := repo.Get(ctx, "b1")
	if got.Status != types.StatusPublished {
		t.Error("stale cache served after update")
	}
}

func TestSetAudio(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()
	repo.Create(ctx, sampleBook("b1"))

	audio := types.NewAudioMetadata()
	audio.Status = types.AudioReady
	audio.VoiceName = "Kore"
	audio.Hash = "abc123"

	book, err := repo.SetAudio(ctx, "b1", audio)
	if err != nil {
		t.Fatalf("SetAudio: %v", err)
	}
	if book.Audio.Status != types.AudioReady || book.Audio.VoiceName != "Kore" {
		t.Errorf("audio = %+v", book.Audio)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()

	b1 := sampleBook("b1")
	b2 := sampleBook("b2")
	b2.AgeRange = types.Ages3To5
	b3 := sampleBook("b3")
	b3.Status = types.StatusPublished
	for _, b := range []*types.Book{b1, b2, b3} {
		if err := repo.Create(ctx, b); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d", len(all))
	}

	young, err := repo.List(ctx, ListFilter{AgeRange: types.Ages3To5})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(young) != 1 || young[0].BookID != "b2" {
		t.Errorf("young = %+v", young)
	}

	published, err := repo.List(ctx, ListFilter{Status: types.StatusPublished})
	if err != nil {
		t.Fatalf("List by status: %v", err)
	}
	if len(published) != 1 || published[0].BookID != "b3" {
		t.Errorf("published = %+v", published)
	}
}

func TestDeleteRemovesArtifacts(t *testing.T) {
	ctx := context.Background()
	repo, artifacts := newTestRepo()

	book := sampleBook("b1")
	repo.Create(ctx, book)
	artifacts.Put(ctx, blobstore.CoverImagePath("b1"), []byte("png"), "image/png")
	artifacts.Put(ctx, blobstore.PageImagePath("b1", 1), []byte("png"), "image/png")
	artifacts.Put(ctx, blobstore.NarrationPath("b1"), []byte("wav"), "audio/wav")

	if err := repo.Delete(ctx, "b1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "b1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("book still readable after delete: %v", err)
	}
	if artifacts.Len() != 0 {
		t.Errorf("artifacts remaining = %d", artifacts.Len())
	}
}
