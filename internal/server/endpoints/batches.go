package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/batch"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/svcctx"
	"github.com/fablekit/fable/internal/types"
)

// BatchAudioRequest is the body for POST /api/v1/batches/audio.
type BatchAudioRequest struct {
	BookIDs        []string `json:"bookIds,omitempty"`
	VoiceName      string   `json:"voiceName,omitempty"`
	Force          bool     `json:"force,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	MaxConcurrency int      `json:"maxConcurrency,omitempty"`
}

// BatchAudioEndpoint handles POST /api/v1/batches/audio.
// It backfills narration where the fingerprint is stale or missing,
// either for the requested bookIds or across the whole catalog.
type BatchAudioEndpoint struct{}

func (e *BatchAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/batches/audio", e.handler
}

func (e *BatchAudioEndpoint) RequiresInit() bool { return true }

func (e *BatchAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runner := svcctx.RunnerFrom(ctx)
	if runner == nil {
		writeError(w, http.StatusServiceUnavailable, "batch runner not initialized")
		return
	}

	var req BatchAudioRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	if req.Limit < 0 || req.MaxConcurrency < 0 {
		writeError(w, http.StatusBadRequest, "limit and maxConcurrency must be non-negative")
		return
	}

	result, err := runner.RunAudio(ctx, batch.AudioOptions{
		BookIDs:        req.BookIDs,
		VoiceName:      req.VoiceName,
		Force:          req.Force,
		Limit:          req.Limit,
		MaxConcurrency: req.MaxConcurrency,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "batch audio failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (e *BatchAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req BatchAudioRequest
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Backfill narration audio across stored books",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.BatchAudioResult
			if err := client.Post(cmd.Context(), "/api/v1/batches/audio", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringSliceVar(&req.BookIDs, "book", nil, "Book IDs to process (repeatable; default is the whole catalog)")
	cmd.Flags().StringVar(&req.VoiceName, "voice", "", "Narration voice")
	cmd.Flags().BoolVar(&req.Force, "force", false, "Regenerate even if audio is up to date")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum books to process (0 for all)")
	cmd.Flags().IntVar(&req.MaxConcurrency, "concurrency", 2, "Books processed in parallel")
	return cmd
}

// GetBatchEndpoint handles GET /api/v1/batches/{id}.
// Progress comes from the remote mirror written during batch runs.
type GetBatchEndpoint struct{}

func (e *GetBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/batches/{id}", e.handler
}

func (e *GetBatchEndpoint) RequiresInit() bool { return true }

func (e *GetBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mirror := svcctx.BatchMirrorFrom(ctx)
	if mirror == nil {
		writeError(w, http.StatusServiceUnavailable, "batch progress store not initialized")
		return
	}

	batchID := r.PathValue("id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch id required")
		return
	}

	progress, err := mirror.Get(ctx, batchID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found: "+batchID)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

func (e *GetBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <batch_id>",
		Short: "Get batch progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.BatchProgress
			if err := client.Get(cmd.Context(), "/api/v1/batches/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
