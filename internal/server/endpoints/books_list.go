package endpoints

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/svcctx"
	"github.com/fablekit/fable/internal/types"
)

// BookSummary is a compact book listing entry.
type BookSummary struct {
	BookID       string `json:"bookId"`
	Title        string `json:"title"`
	AgeRange     string `json:"ageRange"`
	Theme        string `json:"theme"`
	Status       string `json:"status"`
	PageCount    int    `json:"pageCount"`
	AudioStatus  string `json:"audioStatus"`
	CoverImage   string `json:"coverImageUrl,omitempty"`
	CreatedAt    string `json:"createdAt"`
	ReadingLevel string `json:"readingLevel"`
}

// ListBooksResponse contains the list of books.
type ListBooksResponse struct {
	Books []BookSummary `json:"books"`
	Count int           `json:"count"`
}

// ListBooksEndpoint handles GET /api/v1/books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repo := svcctx.BooksFrom(ctx)
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "book store not initialized")
		return
	}

	q := r.URL.Query()
	filter := books.ListFilter{
		AgeRange: types.AgeBand(q.Get("ageRange")),
		Status:   types.BookStatus(q.Get("status")),
		Theme:    q.Get("theme"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid skip")
			return
		}
		filter.Skip = n
	}

	list, err := repo.List(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list books: "+err.Error())
		return
	}

	resp := ListBooksResponse{
		Books: make([]BookSummary, len(list)),
		Count: len(list),
	}
	for i, b := range list {
		resp.Books[i] = summarize(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

func summarize(b *types.Book) BookSummary {
	return BookSummary{
		BookID:       b.BookID,
		Title:        b.Title,
		AgeRange:     string(b.AgeRange),
		Theme:        b.Theme,
		Status:       string(b.Status),
		PageCount:    b.PageCount,
		AudioStatus:  string(b.Audio.Status),
		CoverImage:   b.CoverImageURL,
		CreatedAt:    b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ReadingLevel: b.ReadingLevel,
	}
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var ageRange, status, theme string
	var limit, skip int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generated books",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/v1/books?limit=" + strconv.Itoa(limit) + "&skip=" + strconv.Itoa(skip)
			if ageRange != "" {
				path += "&ageRange=" + ageRange
			}
			if status != "" {
				path += "&status=" + status
			}
			if theme != "" {
				path += "&theme=" + theme
			}
			var resp ListBooksResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&ageRange, "age-range", "", "Filter by age band")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&theme, "theme", "", "Filter by theme")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum books to return")
	cmd.Flags().IntVar(&skip, "skip", 0, "Books to skip")
	return cmd
}
