// Package pipeline orchestrates book generation: story text, cover and
// page illustrations, and whole-book narration, with bounded retries and
// partial-failure tolerance at each stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/fingerprint"
	"github.com/fablekit/fable/internal/genretry"
	"github.com/fablekit/fable/internal/providers"
	"github.com/fablekit/fable/internal/types"
)

const (
	// DefaultPageCount is the story length every book is generated at.
	DefaultPageCount = 20

	// DefaultMaxConcurrency bounds parallel image requests.
	DefaultMaxConcurrency = 2

	defaultInterChunkDelay = 500 * time.Millisecond
	defaultRequestsPerSec  = 4
)

// Config tunes the orchestrator. Zero values take defaults.
type Config struct {
	PageCount         int
	MaxConcurrency    int
	InterChunkDelay   time.Duration
	RequestsPerSecond float64

	TextPolicy   genretry.Policy
	ImagePolicy  genretry.Policy
	SpeechPolicy genretry.Policy
}

// Orchestrator runs the generation pipeline against the catalog.
type Orchestrator struct {
	repo *books.Repository
	gen  *providers.Set

	pageCount       int
	maxConcurrency  int
	interChunkDelay time.Duration
	limiter         *rate.Limiter

	textPolicy   genretry.Policy
	imagePolicy  genretry.Policy
	speechPolicy genretry.Policy

	artifacts artifactPutter
}

type artifactPutter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// New creates an orchestrator.
func New(repo *books.Repository, artifacts artifactPutter, gen *providers.Set, cfg Config) *Orchestrator {
	if cfg.PageCount <= 0 {
		cfg.PageCount = DefaultPageCount
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.InterChunkDelay <= 0 {
		cfg.InterChunkDelay = defaultInterChunkDelay
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSec
	}
	if cfg.TextPolicy == (genretry.Policy{}) {
		cfg.TextPolicy = genretry.Text()
	}
	if cfg.ImagePolicy == (genretry.Policy{}) {
		cfg.ImagePolicy = genretry.Image()
	}
	if cfg.SpeechPolicy == (genretry.Policy{}) {
		cfg.SpeechPolicy = genretry.Speech()
	}

	return &Orchestrator{
		repo:            repo,
		gen:             gen,
		artifacts:       artifacts,
		pageCount:       cfg.PageCount,
		maxConcurrency:  cfg.MaxConcurrency,
		interChunkDelay: cfg.InterChunkDelay,
		limiter:         rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		textPolicy:      cfg.TextPolicy,
		imagePolicy:     cfg.ImagePolicy,
		speechPolicy:    cfg.SpeechPolicy,
	}
}

// GenerateOptions control optional stages of GenerateBook.
type GenerateOptions struct {
	GenerateAudio bool
	VoiceName     string
}

// GenerateBook runs the full pipeline for one book. Text failure aborts
// with nothing persisted; once a draft exists its ID is always reported.
// Individual page-image failures degrade the result, but a cover or audio
// failure leaves the book in failed status with its text and any finished
// images intact.
func (o *Orchestrator) GenerateBook(ctx context.Context, req types.BookGenerationRequest, opts GenerateOptions) *types.GenerationResult {
	start := time.Now()

	book, err := o.GenerateText(ctx, req)
	if err != nil {
		return &types.GenerationResult{Success: false, Error: err.Error()}
	}

	log := slog.With("book_id", book.BookID, "title", book.Title)
	log.Info("story draft persisted", "pages", len(book.Pages), "words", book.WordCount)

	imagesGenerated, failedPages, err := o.GenerateImages(ctx, book.BookID)
	if err != nil {
		// Cover failure is fatal for the book; the draft stays for inspection.
		o.markFailed(ctx, book.BookID)
		return &types.GenerationResult{
			Success: false,
			BookID:  book.BookID,
			Error:   err.Error(),
		}
	}
	if len(failedPages) > 0 {
		log.Warn("some page images failed", "failed_pages", failedPages)
	}

	audioGenerated := false
	if opts.GenerateAudio {
		if _, err := o.EnsureNarration(ctx, book.BookID, opts.VoiceName, false); err != nil && !errors.Is(err, ErrAudioUpToDate) {
			// EnsureNarration already moved the book to failed.
			log.Error("narration failed", "error", err)
			return &types.GenerationResult{
				Success:         false,
				BookID:          book.BookID,
				ImagesGenerated: imagesGenerated,
				Error:           fmt.Sprintf("narration failed: %v", err),
			}
		}
		audioGenerated = true
	}

	if _, err := o.repo.Update(ctx, book.BookID, func(b *types.Book) error {
		b.Status = types.StatusPublished
		return nil
	}); err != nil {
		return &types.GenerationResult{
			Success: false,
			BookID:  book.BookID,
			Error:   fmt.Sprintf("failed to publish book: %v", err),
		}
	}

	log.Info("book published",
		"images", imagesGenerated,
		"audio", audioGenerated,
		"elapsed", time.Since(start).Round(time.Second))

	return &types.GenerationResult{
		Success:         true,
		BookID:          book.BookID,
		AudioGenerated:  audioGenerated,
		ImagesGenerated: imagesGenerated,
	}
}

// GenerateText generates and validates story text, then persists a draft
// book. Nothing is written until the story passes validation.
func (o *Orchestrator) GenerateText(ctx context.Context, req types.BookGenerationRequest) (*types.Book, error) {
	if req.AgeRange == "" {
		req.AgeRange = types.Ages6To8
	}
	if !types.ValidAgeBand(string(req.AgeRange)) {
		return nil, fmt.Errorf("invalid age range %q", req.AgeRange)
	}
	if req.Theme == "" {
		req.Theme = types.RandomTheme(req.AgeRange)
	}
	if req.CharacterName == "" {
		req.CharacterName = types.RandomCharacterType()
	}
	if req.Setting == "" {
		req.Setting = types.RandomSetting()
	}
	if req.MoralLesson == "" {
		req.MoralLesson = types.RandomMoralLesson(req.AgeRange)
	}

	storyReq := &providers.StoryRequest{
		AgeRange:      string(req.AgeRange),
		Theme:         req.Theme,
		CharacterType: req.CharacterName,
		Setting:       req.Setting,
		MoralLesson:   req.MoralLesson,
		PageCount:     o.pageCount,
	}

	var story *providers.StoryResult
	err := o.textPolicy.Do(ctx, "generate_story", func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		var genErr error
		story, genErr = o.gen.Text.GenerateStory(ctx, storyReq)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("story generation failed: %w", err)
	}

	book := bookFromStory(story, req)
	if err := o.repo.Create(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// bookFromStory builds the draft catalog entry from validated story output.
func bookFromStory(story *providers.StoryResult, req types.BookGenerationRequest) *types.Book {
	pages := make([]types.BookPage, len(story.Pages))
	for i, p := range story.Pages {
		pages[i] = types.BookPage{
			PageNumber:  p.PageNumber,
			Text:        p.Text,
			ImagePrompt: p.ImagePrompt,
		}
	}

	author := story.Author
	if author == "" {
		author = "Fable"
	}
	theme := story.Theme
	if theme == "" {
		theme = req.Theme
	}
	moral := story.MoralLesson
	if moral == "" {
		moral = req.MoralLesson
	}

	return &types.Book{
		BookID:       books.NewBookID(),
		Title:        story.Title,
		Author:       author,
		Synopsis:     story.Synopsis,
		AgeRange:     req.AgeRange,
		ReadingLevel: req.AgeRange.ReadingLevel(),
		Tags:         types.Tags(theme, req.AgeRange),
		Theme:        theme,
		MoralLesson:  moral,
		Pages:        pages,
		WordCount:    types.CountWords(pages),
		PageCount:    len(pages),
		Audio:        types.NewAudioMetadata(),
		Status:       types.StatusDraft,
		Version:      1,
		TextHash:     fingerprint.Text(pages),
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, bookID string) {
	if _, err := o.repo.Update(ctx, bookID, func(b *types.Book) error {
		b.Status = types.StatusFailed
		return nil
	}); err != nil {
		slog.Error("failed to mark book failed", "book_id", bookID, "error", err)
	}
}
