package endpoints

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/batch"
	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/genretry"
	"github.com/fablekit/fable/internal/pipeline"
	"github.com/fablekit/fable/internal/providers"
	"github.com/fablekit/fable/internal/svcctx"
	"github.com/fablekit/fable/internal/types"
)

type healthyDB struct{}

func (healthyDB) HealthCheck(context.Context) error { return nil }

func fastPolicy() genretry.Policy {
	return genretry.Policy{
		MaxRetries:     3,
		BaseDelay:      time.Microsecond,
		RateLimitBase:  time.Microsecond,
		RateLimitShift: 1,
	}
}

// newTestServer wires the full endpoint registry over memory-backed services.
func newTestServer(t *testing.T) (*httptest.Server, *svcctx.Services) {
	t.Helper()

	artifacts := blobstore.NewMemoryStore()
	repo := books.NewRepository(docstore.NewMemoryStore(), artifacts)

	set := &providers.Set{
		Text:   &providers.MockTextGenerator{},
		Image:  &providers.MockImageGenerator{},
		Speech: &providers.MockSpeechGenerator{},
	}
	orch := pipeline.New(repo, artifacts, set, pipeline.Config{
		PageCount:         3,
		InterChunkDelay:   time.Microsecond,
		RequestsPerSecond: 100000,
		TextPolicy:        fastPolicy(),
		ImagePolicy:       fastPolicy(),
		SpeechPolicy:      fastPolicy(),
	})

	mirror := batch.NewDocProgressStore(docstore.NewMemoryStore())
	if err := mirror.Init(context.Background()); err != nil {
		t.Fatalf("mirror init: %v", err)
	}

	runner := batch.NewRunner(batch.RunnerConfig{
		Generator:       orch,
		Repository:      repo,
		Progress:        batch.NewMemoryProgressStore(),
		Mirror:          mirror,
		InterBookDelay:  time.Microsecond,
		InterChunkDelay: time.Microsecond,
	})

	services := &svcctx.Services{
		DB:           healthyDB{},
		Books:        repo,
		Orchestrator: orch,
		Runner:       runner,
		BatchMirror:  mirror,
		Providers:    set,
	}

	registry := api.NewRegistry()
	for _, ep := range All(Config{}) {
		registry.Register(ep)
	}
	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, services
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	health := decode[HealthResponse](t, resp)
	if health.Status != "ok" {
		t.Errorf("health.Status = %q", health.Status)
	}

	resp, err = http.Get(srv.URL + "/ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d", resp.StatusCode)
	}
	ready := decode[HealthResponse](t, resp)
	if ready.Store != "ok" {
		t.Errorf("ready.Store = %q", ready.Store)
	}
}

func TestReadyWithoutServices(t *testing.T) {
	registry := api.NewRegistry()
	registry.Register(&ReadyEndpoint{})
	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", resp.StatusCode)
	}
}

func TestListVoices(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/voices")
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	voices := decode[ListVoicesResponse](t, resp)
	if len(voices.Voices) != len(types.Voices) {
		t.Fatalf("voices = %d, want %d", len(voices.Voices), len(types.Voices))
	}
	defaults := 0
	for _, v := range voices.Voices {
		if v.IsDefault {
			defaults++
			if v.Name != types.DefaultVoice {
				t.Errorf("default voice = %q", v.Name)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("default voices = %d, want 1", defaults)
	}
}

func TestCreateBook(t *testing.T) {
	srv, services := newTestServer(t)

	body := `{"ageRange":"6-8","theme":"friendship","generateAudio":true}`
	resp, err := http.Post(srv.URL+"/api/v1/books", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	result := decode[types.GenerationResult](t, resp)
	if !result.Success || result.BookID == "" {
		t.Fatalf("result = %+v", result)
	}

	book, err := services.Books.Get(context.Background(), result.BookID)
	if err != nil {
		t.Fatalf("book not persisted: %v", err)
	}
	if book.Status != types.StatusPublished {
		t.Errorf("status = %q", book.Status)
	}
	if book.Audio.Status != types.AudioReady {
		t.Errorf("audio status = %q", book.Audio.Status)
	}
}

func TestCreateBookInvalidAgeRange(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/books", "application/json",
		strings.NewReader(`{"ageRange":"13-99"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetListDeleteBook(t *testing.T) {
	srv, services := newTestServer(t)
	ctx := context.Background()

	resp, err := http.Post(srv.URL+"/api/v1/books", "application/json",
		strings.NewReader(`{"ageRange":"3-5"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	result := decode[types.GenerationResult](t, resp)

	t.Run("get", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/books/" + result.BookID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get status = %d", resp.StatusCode)
		}
		book := decode[types.Book](t, resp)
		if book.BookID != result.BookID || len(book.Pages) != 3 {
			t.Errorf("book = %q pages = %d", book.BookID, len(book.Pages))
		}
	})

	t.Run("get missing", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/books/nope")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("list filtered", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/books?ageRange=3-5")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		list := decode[ListBooksResponse](t, resp)
		if list.Count != 1 {
			t.Fatalf("count = %d", list.Count)
		}
		if list.Books[0].ReadingLevel != "beginner" {
			t.Errorf("reading level = %q", list.Books[0].ReadingLevel)
		}

		resp, err = http.Get(srv.URL + "/api/v1/books?ageRange=9-12")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		empty := decode[ListBooksResponse](t, resp)
		if empty.Count != 0 {
			t.Errorf("count = %d, want 0", empty.Count)
		}
	})

	t.Run("list by status", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/books?status=published")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		list := decode[ListBooksResponse](t, resp)
		if list.Count != 1 || list.Books[0].AgeRange != "3-5" {
			t.Errorf("published list = %+v", list)
		}

		resp, err = http.Get(srv.URL + "/api/v1/books?status=draft")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		drafts := decode[ListBooksResponse](t, resp)
		if drafts.Count != 0 {
			t.Errorf("draft count = %d, want 0", drafts.Count)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/books/"+result.BookID, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete status = %d", resp.StatusCode)
		}
		if _, err := services.Books.Get(ctx, result.BookID); err == nil {
			t.Error("book still present after delete")
		}
	})
}

func TestGenerateAudioEndpointSkipsWhenCurrent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/books", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	result := decode[types.GenerationResult](t, resp)

	audioURL := srv.URL + "/api/v1/books/" + result.BookID + "/audio"

	resp, err = http.Post(audioURL, "application/json", strings.NewReader(`{"voiceName":"Puck"}`))
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	first := decode[GenerateAudioResponse](t, resp)
	if first.Skipped {
		t.Error("first generation should not be skipped")
	}
	if first.Audio.VoiceName != "Puck" {
		t.Errorf("voice = %q", first.Audio.VoiceName)
	}

	resp, err = http.Post(audioURL, "application/json", strings.NewReader(`{"voiceName":"Puck"}`))
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	second := decode[GenerateAudioResponse](t, resp)
	if !second.Skipped {
		t.Error("repeat generation should be skipped")
	}
}

func TestBatchAudioAndProgress(t *testing.T) {
	srv, services := newTestServer(t)
	ctx := context.Background()

	for range 2 {
		resp, err := http.Post(srv.URL+"/api/v1/books", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		resp.Body.Close()
	}

	resp, err := http.Post(srv.URL+"/api/v1/batches/audio", "application/json",
		strings.NewReader(`{"voiceName":"Kore"}`))
	if err != nil {
		t.Fatalf("batch audio: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch audio status = %d", resp.StatusCode)
	}
	result := decode[types.BatchAudioResult](t, resp)
	if len(result.Succeeded) != 2 || len(result.Failed) != 0 {
		t.Errorf("result = %+v", result)
	}

	t.Run("progress lookup", func(t *testing.T) {
		progress := &types.BatchProgress{
			BatchID:    "batch_ep_test",
			TotalBooks: 2,
			Status:     types.BatchCompleted,
		}
		if err := services.BatchMirror.Save(ctx, progress); err != nil {
			t.Fatalf("seed progress: %v", err)
		}

		resp, err := http.Get(srv.URL + "/api/v1/batches/batch_ep_test")
		if err != nil {
			t.Fatalf("batch get: %v", err)
		}
		got := decode[types.BatchProgress](t, resp)
		if got.BatchID != "batch_ep_test" || got.Status != types.BatchCompleted {
			t.Errorf("got = %+v", got)
		}

		resp, err = http.Get(srv.URL + "/api/v1/batches/unknown")
		if err != nil {
			t.Fatalf("batch get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}
