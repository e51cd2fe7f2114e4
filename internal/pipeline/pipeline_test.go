package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/genretry"
	"github.com/fablekit/fable/internal/providers"
	"github.com/fablekit/fable/internal/types"
)

type testRig struct {
	orch      *Orchestrator
	repo      *books.Repository
	artifacts *blobstore.MemoryStore
	text      *providers.MockTextGenerator
	image     *providers.MockImageGenerator
	speech    *providers.MockSpeechGenerator
}

func fastPolicy() genretry.Policy {
	return genretry.Policy{MaxRetries: 3, BaseDelay: time.Microsecond, RateLimitBase: time.Microsecond}
}

func newRig(t *testing.T, pageCount int) *testRig {
	t.Helper()
	artifacts := blobstore.NewMemoryStore()
	repo := books.NewRepository(docstore.NewMemoryStore(), artifacts)

	text := &providers.MockTextGenerator{}
	image := &providers.MockImageGenerator{}
	speech := &providers.MockSpeechGenerator{}

	orch := New(repo, artifacts, &providers.Set{Text: text, Image: image, Speech: speech}, Config{
		PageCount:         pageCount,
		MaxConcurrency:    2,
		InterChunkDelay:   time.Microsecond,
		RequestsPerSecond: 100000,
		TextPolicy:        fastPolicy(),
		ImagePolicy:       fastPolicy(),
		SpeechPolicy:      fastPolicy(),
	})
	return &testRig{orch: orch, repo: repo, artifacts: artifacts, text: text, image: image, speech: speech}
}

func TestBuildNarration(t *testing.T) {
	book := &types.Book{
		Title: "The Little Fox",
		Pages: []types.BookPage{
			{PageNumber: 1, Text: "Page one."},
			{PageNumber: 2, Text: "Page two."},
		},
	}
	got := BuildNarration(book)
	want := "The Little Fox.\n\n\n\nPage one.\n\n\n\nPage two.\n\n\n\nThe End."
	if got != want {
		t.Errorf("narration = %q, want %q", got, want)
	}
}

func TestGenerateBookHappyPath(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{
		AgeRange: types.Ages6To8,
		Theme:    "courage",
	}, GenerateOptions{GenerateAudio: true, VoiceName: "Puck"})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.ImagesGenerated != 4 { // cover + 3 pages
		t.Errorf("images = %d, want 4", result.ImagesGenerated)
	}
	if !result.AudioGenerated {
		t.Error("audio not generated")
	}

	book, err := rig.repo.Get(ctx, result.BookID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if book.Status != types.StatusPublished {
		t.Errorf("status = %q", book.Status)
	}
	if book.PageCount != 3 || book.WordCount == 0 {
		t.Errorf("counts = %d pages, %d words", book.PageCount, book.WordCount)
	}
	if book.CoverImageURL == "" {
		t.Error("cover url empty")
	}
	for _, p := range book.Pages {
		if p.ImageURL == "" || p.ImageStoragePath == "" {
			t.Errorf("page %d missing image", p.PageNumber)
		}
	}
	if book.Audio.Status != types.AudioReady || book.Audio.VoiceName != "Puck" {
		t.Errorf("audio = %+v", book.Audio)
	}
	if book.Audio.Format != "wav" {
		t.Errorf("format = %q, want wav", book.Audio.Format)
	}

	// Narration artifact is a WAV container around the PCM.
	data, contentType, ok := rig.artifacts.Object(blobstore.NarrationPath(book.BookID))
	if !ok || contentType != "audio/wav" {
		t.Fatalf("narration artifact missing or wrong type %q", contentType)
	}
	if string(data[:4]) != "RIFF" {
		t.Errorf("narration artifact not a WAV file")
	}
}

func TestGenerateBookTextFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)
	rig.text.FailNext = 10 // Beyond the retry ceiling.

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{AgeRange: types.Ages3To5}, GenerateOptions{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.BookID != "" {
		t.Errorf("bookID = %q, want empty when no draft persisted", result.BookID)
	}
	if rig.text.Calls != 4 {
		t.Errorf("text calls = %d, want 4 (retry ceiling)", rig.text.Calls)
	}

	all, _ := rig.repo.List(ctx, books.ListFilter{})
	if len(all) != 0 {
		t.Errorf("books persisted = %d, want 0", len(all))
	}
}

func TestGenerateBookTextRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)
	rig.text.FailNext = 2

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{})
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if rig.text.Calls != 3 {
		t.Errorf("text calls = %d, want 3", rig.text.Calls)
	}
}

func TestGenerateBookPartialImageFailure(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)
	rig.image.FailPrompts = []string{"page 2"}

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{})
	if !result.Success {
		t.Fatalf("partial image failure should not fail the book: %+v", result)
	}
	if result.ImagesGenerated != 3 { // cover + pages 1 and 3
		t.Errorf("images = %d, want 3", result.ImagesGenerated)
	}

	book, _ := rig.repo.Get(ctx, result.BookID)
	if book.Status != types.StatusPublished {
		t.Errorf("status = %q", book.Status)
	}
	if book.Pages[1].ImageURL != "" {
		t.Error("failed page should have no image url")
	}
	if book.Pages[0].ImageURL == "" || book.Pages[2].ImageURL == "" {
		t.Error("successful pages should keep their images")
	}
}

func TestGenerateBookCoverFailureFailsBook(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)
	rig.image.FailPrompts = []string{"cover illustration"}

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.BookID == "" {
		t.Fatal("draft book id should be reported")
	}

	book, err := rig.repo.Get(ctx, result.BookID)
	if err != nil {
		t.Fatalf("draft should survive for inspection: %v", err)
	}
	if book.Status != types.StatusFailed {
		t.Errorf("status = %q, want failed", book.Status)
	}
}

func TestEnsureNarrationIdempotent(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{GenerateAudio: true})
	if !result.Success {
		t.Fatalf("setup: %+v", result)
	}
	if rig.speech.Calls != 1 {
		t.Fatalf("speech calls = %d", rig.speech.Calls)
	}

	// Unchanged text and voice: no new synthesis.
	_, err := rig.orch.EnsureNarration(ctx, result.BookID, types.DefaultVoice, false)
	if !errors.Is(err, ErrAudioUpToDate) {
		t.Errorf("err = %v, want ErrAudioUpToDate", err)
	}
	if rig.speech.Calls != 1 {
		t.Errorf("speech calls = %d, regeneration not skipped", rig.speech.Calls)
	}

	// Different voice: fingerprint changes, regenerate.
	if _, err := rig.orch.EnsureNarration(ctx, result.BookID, "Zephyr", false); err != nil {
		t.Fatalf("EnsureNarration: %v", err)
	}
	if rig.speech.Calls != 2 {
		t.Errorf("speech calls = %d, want 2", rig.speech.Calls)
	}

	// Edited text: fingerprint changes, regenerate.
	rig.repo.Update(ctx, result.BookID, func(b *types.Book) error {
		b.Pages[0].Text = "A different opening."
		return nil
	})
	if _, err := rig.orch.EnsureNarration(ctx, result.BookID, "Zephyr", false); err != nil {
		t.Fatalf("EnsureNarration after edit: %v", err)
	}
	if rig.speech.Calls != 3 {
		t.Errorf("speech calls = %d, want 3", rig.speech.Calls)
	}

	// Force always regenerates.
	if _, err := rig.orch.EnsureNarration(ctx, result.BookID, "Zephyr", true); err != nil {
		t.Fatalf("forced EnsureNarration: %v", err)
	}
	if rig.speech.Calls != 4 {
		t.Errorf("speech calls = %d, want 4", rig.speech.Calls)
	}
}

func TestEnsureNarrationFailureRecorded(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{})
	rig.speech.FailNext = 10

	_, err := rig.orch.EnsureNarration(ctx, result.BookID, "", false)
	if err == nil {
		t.Fatal("expected failure")
	}

	book, _ := rig.repo.Get(ctx, result.BookID)
	if book.Audio.Status != types.AudioFailed {
		t.Errorf("audio status = %q", book.Audio.Status)
	}
	if book.Audio.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
	if book.Audio.RetryCount != 1 {
		t.Errorf("retry count = %d", book.Audio.RetryCount)
	}
	if book.Status != types.StatusPublished {
		t.Errorf("book status = %q, narration failure must not unpublish", book.Status)
	}
}

func TestGenerateBookAudioFailureFailsBook(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)
	rig.speech.FailNext = 10

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{
		AgeRange: types.Ages6To8,
	}, GenerateOptions{GenerateAudio: true})

	if result.Success {
		t.Fatal("expected failure when narration cannot be generated")
	}
	if result.BookID == "" {
		t.Fatal("book id missing from failed result")
	}

	book, err := rig.repo.Get(ctx, result.BookID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if book.Status != types.StatusFailed {
		t.Errorf("status = %q, want %q", book.Status, types.StatusFailed)
	}
	if book.Audio.Status != types.AudioFailed {
		t.Errorf("audio status = %q", book.Audio.Status)
	}
	// Text and images survive for inspection and retry.
	if len(book.Pages) != 3 || book.CoverImageURL == "" {
		t.Errorf("text or images lost: %d pages, cover %q", len(book.Pages), book.CoverImageURL)
	}
}

func TestEnsureNarrationUsesDefaultVoice(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 2)

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{})
	if _, err := rig.orch.EnsureNarration(ctx, result.BookID, "not-a-voice", false); err != nil {
		t.Fatalf("EnsureNarration: %v", err)
	}
	if got := rig.speech.Voices[0]; got != types.DefaultVoice {
		t.Errorf("voice = %q, want default", got)
	}

	book, _ := rig.repo.Get(ctx, result.BookID)
	if book.Audio.VoiceName != types.DefaultVoice {
		t.Errorf("stored voice = %q", book.Audio.VoiceName)
	}
}

func TestNarrationTextSentToSpeech(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 2)

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{GenerateAudio: true})
	book, _ := rig.repo.Get(ctx, result.BookID)

	sent := rig.speech.Texts[0]
	if !strings.HasPrefix(sent, book.Title+".") {
		t.Errorf("narration does not open with title: %q", sent[:40])
	}
	if !strings.HasSuffix(sent, "The End.") {
		t.Errorf("narration does not close with The End.")
	}
}

func TestRetryFailedImages(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, 3)
	rig.image.FailPrompts = []string{"page 2"}

	result := rig.orch.GenerateBook(ctx, types.BookGenerationRequest{}, GenerateOptions{})
	if !result.Success {
		t.Fatalf("setup: %+v", result)
	}

	rig.image.FailPrompts = nil
	regenerated, failed, err := rig.orch.RetryFailedImages(ctx, result.BookID)
	if err != nil {
		t.Fatalf("RetryFailedImages: %v", err)
	}
	if regenerated != 1 || len(failed) != 0 {
		t.Errorf("regenerated = %d, failed = %v", regenerated, failed)
	}

	book, _ := rig.repo.Get(ctx, result.BookID)
	for _, p := range book.Pages {
		if p.ImageURL == "" {
			t.Errorf("page %d still missing image", p.PageNumber)
		}
	}

	// Nothing left to do on a complete book.
	regenerated, _, err = rig.orch.RetryFailedImages(ctx, result.BookID)
	if err != nil || regenerated != 0 {
		t.Errorf("second retry = %d, %v", regenerated, err)
	}
}
