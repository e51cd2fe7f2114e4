package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/batch"
	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/books"
	"github.com/fablekit/fable/internal/config"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/home"
	"github.com/fablekit/fable/internal/pipeline"
	"github.com/fablekit/fable/internal/providers"
	"github.com/fablekit/fable/internal/server/endpoints"
	"github.com/fablekit/fable/internal/svcctx"
)

// Server is the main Fable HTTP server.
// It manages the CouchDB container lifecycle - starting it on server start
// and stopping it on server shutdown.
type Server struct {
	httpServer   *http.Server
	couchManager *docstore.DockerManager
	couchClient  *docstore.CouchClient
	repo         *books.Repository
	orchestrator *pipeline.Orchestrator
	runner       *batch.Runner
	mirror       *batch.DocProgressStore
	providerSet  *providers.Set
	configMgr    *config.Manager
	homeDir      *home.Dir
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8480)
	Port string
	// CouchConfig holds CouchDB container settings
	CouchConfig docstore.DockerConfig
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the fable home directory
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8480"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}

	couchManager, err := docstore.NewDockerManager(cfg.CouchConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create couchdb manager: %w", err)
	}

	s := &Server{
		couchManager: couchManager,
		configMgr:    cfg.ConfigManager,
		homeDir:      cfg.Home,
		logger:       cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DockerManager: couchManager}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// Generation endpoints block until the book is done.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and CouchDB.
// It blocks until the context is cancelled or an error occurs.
// If an existing CouchDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	appCfg := s.configMgr.Get()

	// Validate any existing container matches our config
	if err := s.couchManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing CouchDB container incompatible: %w", err)
	}

	// Start CouchDB
	s.logger.Info("starting CouchDB")
	if err := s.couchManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start CouchDB: %w", err)
	}

	// Create client after CouchDB is up
	s.couchClient = docstore.NewCouchClient(docstore.CouchConfig{
		URL:      s.couchManager.URL(),
		Username: appCfg.CouchDB.Username,
		Password: config.ResolveEnvVars(appCfg.CouchDB.Password),
	})

	// Verify CouchDB is healthy
	if err := s.couchClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("CouchDB health check failed: %w", err)
	}
	s.logger.Info("CouchDB is ready", "url", s.couchManager.URL())

	if err := s.initServices(ctx, appCfg); err != nil {
		_ = s.shutdown()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// initServices builds the repository, pipeline, and batch runner once the
// document store is reachable.
func (s *Server) initServices(ctx context.Context, appCfg *config.Config) error {
	artifacts, err := s.buildArtifactStore(appCfg)
	if err != nil {
		return err
	}

	s.repo = books.NewRepository(s.couchClient, artifacts)
	if err := s.repo.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize book collection: %w", err)
	}

	s.mirror = batch.NewDocProgressStore(s.couchClient)
	if err := s.mirror.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize batch progress collection: %w", err)
	}

	s.providerSet, err = providers.NewSet(appCfg.ToProviderSetConfig())
	if err != nil {
		return fmt.Errorf("failed to build generation backends: %w", err)
	}

	s.orchestrator = pipeline.New(s.repo, artifacts, s.providerSet, pipeline.Config{
		PageCount:         appCfg.Pipeline.PageCount,
		MaxConcurrency:    appCfg.Pipeline.MaxConcurrency,
		RequestsPerSecond: appCfg.Pipeline.RequestsPerSecond,
	})

	progressPath := "batch_progress.json"
	if s.homeDir != nil {
		progressPath = s.homeDir.ProgressPath()
	}
	s.runner = batch.NewRunner(batch.RunnerConfig{
		Generator:       s.orchestrator,
		Repository:      s.repo,
		Progress:        batch.NewFileProgressStore(progressPath),
		Mirror:          s.mirror,
		InterBookDelay:  time.Duration(appCfg.Batch.InterBookDelaySec) * time.Second,
		InterChunkDelay: time.Duration(appCfg.Batch.InterChunkDelaySec) * time.Second,
	})

	s.services = &svcctx.Services{
		DB:           s.couchClient,
		Books:        s.repo,
		Orchestrator: s.orchestrator,
		Runner:       s.runner,
		BatchMirror:  s.mirror,
		Providers:    s.providerSet,
		Config:       s.configMgr,
		Logger:       s.logger,
		Home:         s.homeDir,
	}
	return nil
}

// buildArtifactStore wires blob storage from config. Without an upload URL
// artifacts stay in memory, which only makes sense for local experiments.
func (s *Server) buildArtifactStore(appCfg *config.Config) (blobstore.ArtifactStore, error) {
	if appCfg.Artifacts.UploadURL == "" {
		s.logger.Warn("no artifact upload URL configured, storing artifacts in memory")
		return blobstore.NewMemoryStore(), nil
	}
	return blobstore.NewHTTPStore(blobstore.HTTPConfig{
		UploadURL:  appCfg.Artifacts.UploadURL,
		PublicURL:  appCfg.Artifacts.PublicURL,
		AuthHeader: appCfg.Artifacts.AuthHeader,
		AuthValue:  config.ResolveEnvVars(appCfg.Artifacts.AuthToken),
	}), nil
}

// shutdown performs graceful shutdown of both HTTP server and CouchDB.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.logger.Info("stopping CouchDB")
	if err := s.couchManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("CouchDB stop error", "error", err)
	}

	if err := s.couchManager.Close(); err != nil {
		s.logger.Error("CouchDB manager close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Repository returns the book repository.
// Returns nil if the server hasn't started yet.
func (s *Server) Repository() *books.Repository {
	return s.repo
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the store or pipeline aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.couchClient == nil || s.orchestrator == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
