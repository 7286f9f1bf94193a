package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"healthwire/internal/config"
	"healthwire/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "healthwire",
		Short: "Healthcare technology news ingestion and persona analysis",
		Long: `Healthwire collects healthcare technology news from configured sources,
extracts and canonicalizes the organizations, people and technologies it
mentions, summarizes and scores each article, and has analyst personas write
viewpoints and audience briefs on the relevant ones.

Typical setup:
  healthwire migrate up
  healthwire seed

Then run the pipelines once, on a schedule, or behind the trigger API:
  healthwire ingest
  healthwire viewpoints
  healthwire schedule
  healthwire serve`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.healthwire.yaml or $HOME/.healthwire.yaml)")

	rootCmd.AddCommand(NewIngestCmd())
	rootCmd.AddCommand(NewViewpointsCmd())
	rootCmd.AddCommand(NewRoundtableCmd())
	rootCmd.AddCommand(NewScheduleCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewSeedCmd())
	rootCmd.AddCommand(NewSourcesCmd())
	rootCmd.AddCommand(NewTranscriptsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// initConfig loads configuration and installs the application logger.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if cfg.App.Debug {
		level = "debug"
	}
	logger.Init(logger.Options{
		Level:    level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})

	if cfg.App.ConfigFile != "" {
		logger.Debug("Using config file", "path", cfg.App.ConfigFile)
	}
}
