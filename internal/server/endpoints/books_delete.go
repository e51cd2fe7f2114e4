package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/svcctx"
)

// DeleteBookEndpoint handles DELETE /api/v1/books/{id}.
// The book entry goes first, then its stored images and audio.
type DeleteBookEndpoint struct{}

func (e *DeleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/books/{id}", e.handler
}

func (e *DeleteBookEndpoint) RequiresInit() bool { return true }

func (e *DeleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repo := svcctx.BooksFrom(ctx)
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "book store not initialized")
		return
	}

	bookID := r.PathValue("id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id required")
		return
	}

	if err := repo.Delete(ctx, bookID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found: "+bookID)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Book deleted",
		"bookId":  bookID,
	})
}

func (e *DeleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <book_id>",
		Short: "Delete a book and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/v1/books/"+args[0]); err != nil {
				return err
			}
			return api.Output(map[string]string{
				"message": "Book deleted",
				"bookId":  args[0],
			})
		},
	}
}
