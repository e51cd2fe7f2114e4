package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/pipeline"
	"github.com/fablekit/fable/internal/svcctx"
	"github.com/fablekit/fable/internal/types"
)

// GenerateAudioRequest is the body for POST /api/v1/books/{id}/audio.
type GenerateAudioRequest struct {
	VoiceName string `json:"voiceName,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// GenerateAudioResponse reports the narration outcome.
type GenerateAudioResponse struct {
	BookID  string              `json:"bookId"`
	Skipped bool                `json:"skipped"`
	Audio   types.AudioMetadata `json:"audio"`
}

// GenerateAudioEndpoint handles POST /api/v1/books/{id}/audio.
// Regeneration is skipped when the stored narration fingerprint still
// matches, unless force is set.
type GenerateAudioEndpoint struct{}

func (e *GenerateAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/books/{id}/audio", e.handler
}

func (e *GenerateAudioEndpoint) RequiresInit() bool { return true }

func (e *GenerateAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orch := svcctx.OrchestratorFrom(ctx)
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	bookID := r.PathValue("id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id required")
		return
	}

	var req GenerateAudioRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	book, err := orch.EnsureNarration(ctx, bookID, req.VoiceName, req.Force)
	switch {
	case errors.Is(err, pipeline.ErrAudioUpToDate):
		writeJSON(w, http.StatusOK, GenerateAudioResponse{
			BookID:  bookID,
			Skipped: true,
			Audio:   book.Audio,
		})
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "book not found: "+bookID)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "audio generation failed: "+err.Error())
	default:
		writeJSON(w, http.StatusOK, GenerateAudioResponse{
			BookID: bookID,
			Audio:  book.Audio,
		})
	}
}

func (e *GenerateAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	var voice string
	var force bool
	cmd := &cobra.Command{
		Use:   "audio <book_id>",
		Short: "Generate narration audio for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := GenerateAudioRequest{VoiceName: voice, Force: force}
			var resp GenerateAudioResponse
			if err := client.Post(cmd.Context(), "/api/v1/books/"+args[0]+"/audio", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "Narration voice")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate even if audio is up to date")
	return cmd
}
