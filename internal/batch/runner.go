package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/pipeline"
	"github.com/fablekit/fable/internal/types"
)

const (
	defaultInterBookDelay  = 2 * time.Second
	defaultInterChunkDelay = time.Second

	// mirrorEvery is how many completed units pass between remote mirror
	// writes. The local checkpoint is written after every chunk.
	mirrorEvery = 10
)

// Generator is the pipeline surface the runner drives.
type Generator interface {
	GenerateBook(ctx context.Context, req types.BookGenerationRequest, opts pipeline.GenerateOptions) *types.GenerationResult
	EnsureNarration(ctx context.Context, bookID, voiceName string, force bool) (*types.Book, error)
}

// Runner executes resumable batch sweeps.
type Runner struct {
	gen      Generator
	repo     *books.Repository
	progress ProgressStore
	mirror   *DocProgressStore

	interBookDelay  time.Duration
	interChunkDelay time.Duration
}

// RunnerConfig wires a Runner. Mirror is optional.
type RunnerConfig struct {
	Generator       Generator
	Repository      *books.Repository
	Progress        ProgressStore
	Mirror          *DocProgressStore
	InterBookDelay  time.Duration
	InterChunkDelay time.Duration
}

// NewRunner creates a batch runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.InterBookDelay <= 0 {
		cfg.InterBookDelay = defaultInterBookDelay
	}
	if cfg.InterChunkDelay <= 0 {
		cfg.InterChunkDelay = defaultInterChunkDelay
	}
	return &Runner{
		gen:             cfg.Generator,
		repo:            cfg.Repository,
		progress:        cfg.Progress,
		mirror:          cfg.Mirror,
		interBookDelay:  cfg.InterBookDelay,
		interChunkDelay: cfg.InterChunkDelay,
	}
}

// RunBooks generates cfg.Count books starting at cfg.StartIndex. With
// resume, an existing checkpoint overrides cfg so a restarted run keeps
// its original shape and continues from the last completed chunk. Themes
// rotate by index so big runs stay varied and a resume regenerates the
// same theme for the same index.
func (r *Runner) RunBooks(ctx context.Context, cfg types.BatchConfig, resume bool) (*types.BatchProgress, error) {
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("count must be positive")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 2
	}
	if cfg.AgeRange == "" {
		cfg.AgeRange = types.Ages6To8
	}
	cfg.VoiceName = types.NormalizeVoice(cfg.VoiceName)

	progress, err := r.loadOrStart(ctx, cfg, resume)
	if err != nil {
		return nil, err
	}
	cfg = progress.Config

	log := slog.With("batch_id", progress.BatchID)
	log.Info("batch starting",
		"total", progress.TotalBooks,
		"from_index", progress.CurrentIndex,
		"age_range", cfg.AgeRange,
		"audio", cfg.GenerateAudio)

	if err := r.checkpoint(ctx, progress, true); err != nil {
		return nil, err
	}

	themes := types.ThemesFor(cfg.AgeRange)
	sinceMirror := 0

	for start := progress.CurrentIndex; start < cfg.Count; start += cfg.MaxConcurrency {
		end := start + cfg.MaxConcurrency
		if end > cfg.Count {
			end = cfg.Count
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for index := start; index < end; index++ {
			index := index
			g.Go(func() error {
				result := r.gen.GenerateBook(gctx, types.BookGenerationRequest{
					AgeRange: cfg.AgeRange,
					Theme:    themes[index%len(themes)],
				}, pipeline.GenerateOptions{
					GenerateAudio: cfg.GenerateAudio,
					VoiceName:     cfg.VoiceName,
				})

				mu.Lock()
				defer mu.Unlock()
				if result.Success {
					progress.CompletedBooks++
					if cfg.GenerateAudio && !result.AudioGenerated {
						progress.SkippedBooks++
					}
				} else {
					progress.FailedBooks++
					progress.Failures = append(progress.Failures, types.FailureRecord{
						Index:     index,
						BookID:    result.BookID,
						Error:     result.Error,
						Phase:     failurePhase(result),
						Timestamp: time.Now().UTC(),
					})
					log.Warn("batch unit failed", "index", index, "error", result.Error)
				}
				// Counters persist as each unit lands; the cursor stays
				// chunk-aligned, so a crash redoes at most the in-flight
				// units of the current chunk.
				progress.UpdatedAt = time.Now().UTC()
				if err := r.progress.Save(gctx, progress); err != nil {
					log.Warn("failed to save batch progress", "error", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return progress, err
		}

		progress.CurrentIndex = end
		sinceMirror += end - start
		if err := r.checkpoint(ctx, progress, sinceMirror >= mirrorEvery); err != nil {
			return progress, err
		}
		if sinceMirror >= mirrorEvery {
			sinceMirror = 0
		}

		if ctx.Err() != nil {
			progress.Status = types.BatchPaused
			r.checkpoint(context.WithoutCancel(ctx), progress, true)
			return progress, ctx.Err()
		}

		if end < cfg.Count {
			select {
			case <-ctx.Done():
				progress.Status = types.BatchPaused
				r.checkpoint(context.WithoutCancel(ctx), progress, true)
				return progress, ctx.Err()
			case <-time.After(r.interBookDelay):
			}
		}
	}

	if progress.FailedBooks > 0 {
		progress.Status = types.BatchFailed
	} else {
		progress.Status = types.BatchCompleted
	}
	if err := r.checkpoint(ctx, progress, true); err != nil {
		return progress, err
	}

	// A clean run clears the local checkpoint; failures keep it so the
	// operator can inspect and resume.
	if progress.Status == types.BatchCompleted {
		if err := r.progress.Clear(ctx); err != nil {
			log.Warn("failed to clear batch progress", "error", err)
		}
	}

	log.Info("batch finished",
		"status", progress.Status,
		"completed", progress.CompletedBooks,
		"failed", progress.FailedBooks,
		"audio_skipped", progress.SkippedBooks)
	return progress, nil
}

// AudioOptions control an audio backfill run. When BookIDs is set only
// those books are processed; otherwise the whole catalog is swept.
type AudioOptions struct {
	BookIDs        []string
	VoiceName      string
	Force          bool
	Limit          int
	MaxConcurrency int
}

// RunAudio backfills narration for books that lack a current one. Books
// whose stored narration fingerprint still matches are skipped.
func (r *Runner) RunAudio(ctx context.Context, opts AudioOptions) (*types.BatchAudioResult, error) {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 2
	}
	voice := types.NormalizeVoice(opts.VoiceName)

	result := &types.BatchAudioResult{}
	var mu sync.Mutex

	var candidates []*types.Book
	if len(opts.BookIDs) > 0 {
		for _, id := range opts.BookIDs {
			book, err := r.repo.Get(ctx, id)
			if err != nil {
				result.Failed = append(result.Failed, id)
				slog.Warn("audio backfill target not found", "book_id", id, "error", err)
				continue
			}
			candidates = append(candidates, book)
		}
	} else {
		var err error
		candidates, err = r.repo.List(ctx, books.ListFilter{Limit: listPageLimit(opts.Limit)})
		if err != nil {
			return nil, err
		}
	}
	if opts.Limit > 0 && len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	for start := 0; start < len(candidates); start += opts.MaxConcurrency {
		end := start + opts.MaxConcurrency
		if end > len(candidates) {
			end = len(candidates)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, book := range candidates[start:end] {
			book := book
			g.Go(func() error {
				if len(book.Pages) == 0 {
					return nil
				}
				_, err := r.gen.EnsureNarration(gctx, book.BookID, voice, opts.Force)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, pipeline.ErrAudioUpToDate):
					result.Skipped = append(result.Skipped, book.BookID)
				case err != nil:
					result.Failed = append(result.Failed, book.BookID)
					slog.Warn("audio backfill failed", "book_id", book.BookID, "error", err)
				default:
					result.Succeeded = append(result.Succeeded, book.BookID)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}

		if end < len(candidates) {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(r.interChunkDelay):
			}
		}
	}

	slog.Info("audio backfill finished",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"skipped", len(result.Skipped))
	return result, nil
}

// loadOrStart returns the checkpoint to run under.
func (r *Runner) loadOrStart(ctx context.Context, cfg types.BatchConfig, resume bool) (*types.BatchProgress, error) {
	if resume {
		progress, err := r.progress.Load(ctx)
		switch {
		case err == nil:
			progress.Status = types.BatchRunning
			progress.UpdatedAt = time.Now().UTC()
			slog.Info("resuming batch",
				"batch_id", progress.BatchID,
				"from_index", progress.CurrentIndex)
			return progress, nil
		case errors.Is(err, ErrNoProgress):
			slog.Info("no previous batch progress, starting fresh")
		default:
			return nil, err
		}
	}

	now := time.Now().UTC()
	return &types.BatchProgress{
		BatchID:      fmt.Sprintf("batch_%d", now.UnixMilli()),
		TotalBooks:   cfg.Count,
		CurrentIndex: cfg.StartIndex,
		Status:       types.BatchRunning,
		Config:       cfg,
		StartedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// checkpoint writes the local file and, when mirror is set, the remote copy.
func (r *Runner) checkpoint(ctx context.Context, p *types.BatchProgress, mirrorToo bool) error {
	p.UpdatedAt = time.Now().UTC()
	if err := r.progress.Save(ctx, p); err != nil {
		return fmt.Errorf("failed to save batch progress: %w", err)
	}
	if mirrorToo {
		r.mirror.SaveQuietly(ctx, p)
	}
	return nil
}

// failurePhase attributes a failed result to the stage that produced it:
// no book means the text stage aborted, finished images mean the failure
// came from narration.
func failurePhase(result *types.GenerationResult) types.Phase {
	switch {
	case result.BookID == "":
		return types.PhaseText
	case result.ImagesGenerated > 0:
		return types.PhaseAudio
	default:
		return types.PhaseImages
	}
}

func listPageLimit(limit int) int {
	if limit > 0 {
		return limit
	}
	return 1000
}
