package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/config"
	"github.com/fablekit/fable/internal/home"
	"github.com/fablekit/fable/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "fable",
	Short: "AI storybook generator for children",
	Long: `Fable generates illustrated children's storybooks with narration.

Each book goes through a three stage pipeline:
  - Story text via an LLM, validated against a strict page schema
  - Cover and page illustrations via an image model
  - Narration audio via text-to-speech, fingerprinted so unchanged
    books are never re-narrated

Books are stored in CouchDB and artifacts (images, audio) in blob
storage behind a public CDN URL.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.fable/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "fable home directory (default: ~/.fable)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// getHome resolves the fable home directory from the --home flag.
func getHome() (*home.Dir, error) {
	return home.New(homeDir)
}

// resolveConfigFile picks the config file: the --config flag wins, then the
// home config if present, then viper's default search paths.
func resolveConfigFile(h *home.Dir) string {
	if cfgFile != "" {
		return cfgFile
	}
	if h != nil && h.ConfigExists() {
		return h.ConfigPath()
	}
	return ""
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if h.ConfigExists() {
			return fmt.Errorf("config already exists at %s", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
