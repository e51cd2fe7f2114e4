package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/pipeline"
	"github.com/fablekit/fable/internal/svcctx"
	"github.com/fablekit/fable/internal/types"
)

// CreateBookRequest is the body for POST /api/v1/books.
type CreateBookRequest struct {
	AgeRange      string `json:"ageRange,omitempty"`
	Theme         string `json:"theme,omitempty"`
	CharacterName string `json:"characterName,omitempty"`
	Setting       string `json:"setting,omitempty"`
	MoralLesson   string `json:"moralLesson,omitempty"`
	GenerateAudio bool   `json:"generateAudio,omitempty"`
	VoiceName     string `json:"voiceName,omitempty"`
}

// CreateBookEndpoint handles POST /api/v1/books.
// It runs the full generation pipeline and blocks until the book is done.
type CreateBookEndpoint struct{}

func (e *CreateBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/books", e.handler
}

func (e *CreateBookEndpoint) RequiresInit() bool { return true }

func (e *CreateBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orch := svcctx.OrchestratorFrom(ctx)
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	var req CreateBookRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	if req.AgeRange != "" && !types.ValidAgeBand(req.AgeRange) {
		writeError(w, http.StatusBadRequest, "invalid ageRange: "+req.AgeRange)
		return
	}

	result := orch.GenerateBook(ctx, types.BookGenerationRequest{
		AgeRange:      types.AgeBand(req.AgeRange),
		Theme:         req.Theme,
		CharacterName: req.CharacterName,
		Setting:       req.Setting,
		MoralLesson:   req.MoralLesson,
	}, pipeline.GenerateOptions{
		GenerateAudio: req.GenerateAudio,
		VoiceName:     req.VoiceName,
	})

	if !result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (e *CreateBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req CreateBookRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new storybook",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.GenerationResult
			if err := client.Post(cmd.Context(), "/api/v1/books", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.AgeRange, "age-range", "", "Target age band (3-5, 6-8, 9-12)")
	cmd.Flags().StringVar(&req.Theme, "theme", "", "Story theme (random if omitted)")
	cmd.Flags().StringVar(&req.CharacterName, "character", "", "Main character name or type")
	cmd.Flags().StringVar(&req.Setting, "setting", "", "Story setting")
	cmd.Flags().StringVar(&req.MoralLesson, "moral", "", "Moral lesson")
	cmd.Flags().BoolVar(&req.GenerateAudio, "audio", false, "Also generate narration audio")
	cmd.Flags().StringVar(&req.VoiceName, "voice", "", "Narration voice")
	return cmd
}
