package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/config"
	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/home"
)

var couchdbCmd = &cobra.Command{
	Use:   "couchdb",
	Short: "Manage the CouchDB container",
	Long: `Manage the CouchDB container lifecycle.

CouchDB holds the book catalog and batch progress. The database runs
in a Docker container with data persisted to ~/.fable/couchdb/.

Examples:
  fable couchdb start   # Start the CouchDB container
  fable couchdb stop    # Stop the container (data preserved)
  fable couchdb status  # Check container status
  fable couchdb logs    # View container logs`,
}

// getDockerManager builds a CouchDB docker manager from config and home.
func getDockerManager(h *home.Dir) (*docstore.DockerManager, error) {
	cfgMgr, err := config.NewManager(resolveConfigFile(h))
	if err != nil {
		return nil, err
	}
	cfg := cfgMgr.Get()

	return docstore.NewDockerManager(docstore.DockerConfig{
		ContainerName: cfg.CouchDB.ContainerName,
		Image:         cfg.CouchDB.Image,
		HostPort:      cfg.CouchDB.Port,
		DataPath:      filepath.Join(h.Path(), "couchdb"),
		Username:      cfg.CouchDB.Username,
		Password:      config.ResolveEnvVars(cfg.CouchDB.Password),
	})
}

var couchdbStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the CouchDB container",
	Long: `Start the CouchDB container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.

Data is persisted to ~/.fable/couchdb/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting CouchDB...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start CouchDB: %w", err)
		}

		fmt.Printf("CouchDB is running at %s\n", mgr.URL())
		return nil
	},
}

var couchdbStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the CouchDB container",
	Long: `Stop the CouchDB container.

This stops the container but preserves data. Use 'fable couchdb start'
to restart it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping CouchDB...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop CouchDB: %w", err)
		}

		fmt.Println("CouchDB stopped")
		return nil
	},
}

var couchdbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show CouchDB container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case docstore.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())
		case docstore.StatusStopped:
			fmt.Printf("Status: %s (use 'fable couchdb start' to start)\n", status)
		case docstore.StatusNotFound:
			fmt.Printf("Status: %s (use 'fable couchdb start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var couchdbLogsTail string

var couchdbLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show CouchDB container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, couchdbLogsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var couchdbRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the CouchDB container",
	Long: `Remove the CouchDB container.

This stops and removes the container. Data in ~/.fable/couchdb/
is NOT deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing CouchDB container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("CouchDB container removed (data preserved)")
		return nil
	},
}

var couchdbWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for CouchDB to be ready",
	Long: `Wait for CouchDB to be ready to accept connections.

This is useful in scripts to ensure CouchDB is fully started
before running other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for CouchDB (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("CouchDB not ready: %w", err)
		}

		fmt.Println("CouchDB is ready")
		return nil
	},
}

func init() {
	couchdbLogsCmd.Flags().StringVar(&couchdbLogsTail, "tail", "100", "Number of log lines to show")
	couchdbWaitCmd.Flags().Duration("timeout", 60*time.Second, "How long to wait")

	couchdbCmd.AddCommand(couchdbStartCmd)
	couchdbCmd.AddCommand(couchdbStopCmd)
	couchdbCmd.AddCommand(couchdbStatusCmd)
	couchdbCmd.AddCommand(couchdbLogsCmd)
	couchdbCmd.AddCommand(couchdbRemoveCmd)
	couchdbCmd.AddCommand(couchdbWaitCmd)
	rootCmd.AddCommand(couchdbCmd)
}
