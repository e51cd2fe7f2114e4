package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/types"
)

// VoiceResponse represents a narration voice in API responses.
type VoiceResponse struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// ListVoicesResponse contains the list of voices.
type ListVoicesResponse struct {
	Voices []VoiceResponse `json:"voices"`
}

// ListVoicesEndpoint handles GET /api/v1/voices.
type ListVoicesEndpoint struct{}

func (e *ListVoicesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/voices", e.handler
}

func (e *ListVoicesEndpoint) RequiresInit() bool { return false }

func (e *ListVoicesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := ListVoicesResponse{
		Voices: make([]VoiceResponse, len(types.Voices)),
	}
	for i, name := range types.Voices {
		resp.Voices[i] = VoiceResponse{
			Name:      name,
			IsDefault: name == types.DefaultVoice,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListVoicesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List narration voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListVoicesResponse
			if err := client.Get(cmd.Context(), "/api/v1/voices", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
