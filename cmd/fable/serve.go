package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/config"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Fable server",
	Long: `Start the Fable HTTP server.

This starts both the HTTP API server and the CouchDB container.
When the server shuts down (via Ctrl+C or SIGTERM), CouchDB is also stopped.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes CouchDB status)
  - /api/v1 - Book generation and catalog endpoints

Examples:
  fable serve                    # Start on default port 8480
  fable serve --port 3000        # Start on custom port
  fable serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		h, err := getHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cfgMgr, err := config.NewManager(resolveConfigFile(h))
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()
		appCfg := cfgMgr.Get()

		// Ensure couchdb data directory exists
		couchDataPath := filepath.Join(h.Path(), "couchdb")
		if err := os.MkdirAll(couchDataPath, 0755); err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Host: serveHost,
			Port: servePort,
			CouchConfig: docstore.DockerConfig{
				ContainerName: appCfg.CouchDB.ContainerName,
				Image:         appCfg.CouchDB.Image,
				HostPort:      appCfg.CouchDB.Port,
				DataPath:      couchDataPath,
				Username:      appCfg.CouchDB.Username,
				Password:      config.ResolveEnvVars(appCfg.CouchDB.Password),
			},
			ConfigManager: cfgMgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8480", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
