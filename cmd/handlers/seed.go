package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"healthwire/internal/config"
	"healthwire/internal/core"
	"healthwire/internal/personas"
	"healthwire/internal/sources"
)

// NewSeedCmd creates the seed command
func NewSeedCmd() *cobra.Command {
	var sourcesFile string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert news sources and analyst personas",
		Long: `Upsert the news sources (by name) and analyst personas (by slug).

Sources come from --sources-file, app.seed_file, or the built-in list.
Personas come from app.persona_file or the built-in catalog. Output and
roundtable personas are created on first use by the viewpoint pipelines.

Examples:
  healthwire seed
  healthwire seed --sources-file ./sources.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), sourcesFile)
		},
	}

	cmd.Flags().StringVar(&sourcesFile, "sources-file", "", "YAML file of sources (default from config or built-in)")

	return cmd
}

func runSeed(ctx context.Context, sourcesFile string) error {
	cfg := config.Get()
	if sourcesFile == "" {
		sourcesFile = cfg.App.SeedFile
	}

	var (
		seed []core.Source
		err  error
	)
	if sourcesFile != "" {
		seed, err = sources.LoadSeed(sourcesFile)
	} else {
		seed, err = sources.DefaultSeed()
	}
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load persona catalog: %w", err)
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	nSources, err := sources.NewManager(db, nil).Seed(ctx, seed)
	if err != nil {
		return fmt.Errorf("failed to seed sources: %w", err)
	}
	nPersonas, err := personas.NewRegistry(db.Personas(), catalog).SeedAnalysts(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed personas: %w", err)
	}

	fmt.Println(renderSummary("Seed complete", []statRow{
		{label: "Sources upserted", value: nSources},
		{label: "Analysts upserted", value: nPersonas},
	}))
	return nil
}
