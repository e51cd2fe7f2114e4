// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/fablekit/fable/internal/batch"
	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/config"
	"github.com/fablekit/fable/internal/home"
	"github.com/fablekit/fable/internal/pipeline"
	"github.com/fablekit/fable/internal/providers"
)

// HealthChecker reports backing-store liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DB           HealthChecker
	Books        *books.Repository
	Orchestrator *pipeline.Orchestrator
	Runner       *batch.Runner
	BatchMirror  *batch.DocProgressStore
	Providers    *providers.Set
	Config       *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DBFrom extracts the document store health checker from context.
func DBFrom(ctx context.Context) HealthChecker {
	if s := ServicesFrom(ctx); s != nil {
		return s.DB
	}
	return nil
}

// BooksFrom extracts the book repository from context.
func BooksFrom(ctx context.Context) *books.Repository {
	if s := ServicesFrom(ctx); s != nil {
		return s.Books
	}
	return nil
}

// OrchestratorFrom extracts the generation pipeline from context.
func OrchestratorFrom(ctx context.Context) *pipeline.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// RunnerFrom extracts the batch runner from context.
func RunnerFrom(ctx context.Context) *batch.Runner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runner
	}
	return nil
}

// BatchMirrorFrom extracts the remote batch progress store from context.
func BatchMirrorFrom(ctx context.Context) *batch.DocProgressStore {
	if s := ServicesFrom(ctx); s != nil {
		return s.BatchMirror
	}
	return nil
}

// ProvidersFrom extracts the generation backends from context.
func ProvidersFrom(ctx context.Context) *providers.Set {
	if s := ServicesFrom(ctx); s != nil {
		return s.Providers
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
