package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/batch"
	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/config"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/pipeline"
	"github.com/fablekit/fable/internal/providers"
	"github.com/fablekit/fable/internal/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run generation batches against the local store",
	Long: `Batch commands talk to CouchDB and the generation backends directly,
without going through the server. CouchDB must already be running
(fable couchdb start).

Progress is checkpointed to ~/.fable/batch_progress.json after every
chunk, so an interrupted run can continue with --resume.`,
}

var (
	batchCount       int
	batchStartIndex  int
	batchAgeRange    string
	batchVoice       string
	batchConcurrency int
	batchNoAudio     bool
	batchResume      bool
)

var batchBooksCmd = &cobra.Command{
	Use:   "books",
	Short: "Generate a batch of storybooks",
	Long: `Generate a batch of complete storybooks: text, illustrations,
and narration audio unless --no-audio is set.

Themes rotate per book so large batches stay varied. Each book is
isolated: one failure is recorded and the sweep continues.

Examples:
  fable batch books --count 10                    # 10 books, ages 6-8
  fable batch books --count 50 --age-range 3-5    # For younger readers
  fable batch books --resume                      # Continue an interrupted run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !types.ValidAgeBand(batchAgeRange) {
			return fmt.Errorf("invalid age range %q (expected 3-5, 6-8, or 9-12)", batchAgeRange)
		}
		ageRange := types.AgeBand(batchAgeRange)

		runner, progress, err := buildRunner(ctx)
		if err != nil {
			return err
		}

		if err := progress.Acquire(ctx); err != nil {
			return fmt.Errorf("another batch appears to be running: %w", err)
		}
		defer progress.Release()

		result, err := runner.RunBooks(ctx, types.BatchConfig{
			Count:          batchCount,
			StartIndex:     batchStartIndex,
			AgeRange:       ageRange,
			VoiceName:      batchVoice,
			MaxConcurrency: batchConcurrency,
			GenerateAudio:  !batchNoAudio,
		}, batchResume)
		if result != nil {
			_ = api.Output(result)
		}
		return err
	},
}

var (
	audioBookIDs     []string
	audioVoice       string
	audioForce       bool
	audioLimit       int
	audioConcurrency int
)

var batchAudioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Backfill narration audio across stored books",
	Long: `Sweep the catalog and generate narration for books whose audio is
missing or stale. Books whose narration fingerprint still matches
are skipped, so re-running is cheap.

Examples:
  fable batch audio                       # Backfill everything
  fable batch audio --voice Puck --force  # Re-narrate with a new voice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		runner, _, err := buildRunner(ctx)
		if err != nil {
			return err
		}

		result, err := runner.RunAudio(ctx, batch.AudioOptions{
			BookIDs:        audioBookIDs,
			VoiceName:      audioVoice,
			Force:          audioForce,
			Limit:          audioLimit,
			MaxConcurrency: audioConcurrency,
		})
		if result != nil {
			_ = api.Output(result)
		}
		return err
	},
}

// buildRunner wires a batch runner from config against a running CouchDB.
func buildRunner(ctx context.Context) (*batch.Runner, *batch.FileProgressStore, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	h, err := getHome()
	if err != nil {
		return nil, nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, err
	}

	cfgMgr, err := config.NewManager(resolveConfigFile(h))
	if err != nil {
		return nil, nil, err
	}
	cfg := cfgMgr.Get()

	couch := docstore.NewCouchClient(docstore.CouchConfig{
		URL:      cfg.CouchDB.URL,
		Username: cfg.CouchDB.Username,
		Password: config.ResolveEnvVars(cfg.CouchDB.Password),
	})
	if err := couch.HealthCheck(ctx); err != nil {
		return nil, nil, fmt.Errorf("CouchDB not reachable at %s (try 'fable couchdb start'): %w", cfg.CouchDB.URL, err)
	}

	if cfg.Artifacts.UploadURL == "" {
		return nil, nil, fmt.Errorf("artifacts.upload_url must be configured for batch runs")
	}
	artifacts := blobstore.NewHTTPStore(blobstore.HTTPConfig{
		UploadURL:  cfg.Artifacts.UploadURL,
		PublicURL:  cfg.Artifacts.PublicURL,
		AuthHeader: cfg.Artifacts.AuthHeader,
		AuthValue:  config.ResolveEnvVars(cfg.Artifacts.AuthToken),
	})

	repo := books.NewRepository(couch, artifacts)
	if err := repo.Init(ctx); err != nil {
		return nil, nil, err
	}

	set, err := providers.NewSet(cfg.ToProviderSetConfig())
	if err != nil {
		return nil, nil, err
	}

	orch := pipeline.New(repo, artifacts, set, pipeline.Config{
		PageCount:         cfg.Pipeline.PageCount,
		MaxConcurrency:    cfg.Pipeline.MaxConcurrency,
		RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
	})

	mirror := batch.NewDocProgressStore(couch)
	if err := mirror.Init(ctx); err != nil {
		return nil, nil, err
	}

	progress := batch.NewFileProgressStore(h.ProgressPath())
	runner := batch.NewRunner(batch.RunnerConfig{
		Generator:       orch,
		Repository:      repo,
		Progress:        progress,
		Mirror:          mirror,
		InterBookDelay:  time.Duration(cfg.Batch.InterBookDelaySec) * time.Second,
		InterChunkDelay: time.Duration(cfg.Batch.InterChunkDelaySec) * time.Second,
	})

	return runner, progress, nil
}

func init() {
	batchBooksCmd.Flags().IntVar(&batchCount, "count", 10, "Number of books to generate")
	batchBooksCmd.Flags().IntVar(&batchStartIndex, "start-index", 0, "Index to start theme rotation from")
	batchBooksCmd.Flags().StringVar(&batchAgeRange, "age-range", "6-8", "Target age band (3-5, 6-8, 9-12)")
	batchBooksCmd.Flags().StringVar(&batchVoice, "voice", "", "Narration voice")
	batchBooksCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "Books generated in parallel")
	batchBooksCmd.Flags().BoolVar(&batchNoAudio, "no-audio", false, "Skip narration audio")
	batchBooksCmd.Flags().BoolVar(&batchResume, "resume", false, "Continue from the last checkpoint")

	batchAudioCmd.Flags().StringSliceVar(&audioBookIDs, "book", nil, "Book IDs to process (repeatable; default is the whole catalog)")
	batchAudioCmd.Flags().StringVar(&audioVoice, "voice", "", "Narration voice")
	batchAudioCmd.Flags().BoolVar(&audioForce, "force", false, "Regenerate even if audio is up to date")
	batchAudioCmd.Flags().IntVar(&audioLimit, "limit", 0, "Maximum books to process (0 for all)")
	batchAudioCmd.Flags().IntVar(&audioConcurrency, "concurrency", 2, "Books processed in parallel")

	batchCmd.AddCommand(batchBooksCmd)
	batchCmd.AddCommand(batchAudioCmd)
	rootCmd.AddCommand(batchCmd)
}
