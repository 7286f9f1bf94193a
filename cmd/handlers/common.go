package handlers

import (
	"context"
	"fmt"
	"time"

	"healthwire/internal/config"
	"healthwire/internal/fetch"
	"healthwire/internal/llm"
	"healthwire/internal/persistence"
	"healthwire/internal/personas"
	"healthwire/internal/pipeline"
)

// getDatabase connects to the configured Postgres database.
func getDatabase(ctx context.Context) (*persistence.PostgresDB, error) {
	cfg := config.Get()
	connStr := cfg.Database.ConnectionString
	if connStr == "" {
		return nil, fmt.Errorf("database connection string not configured (set database.connection_string in config or DATABASE_URL env var)")
	}

	db, err := persistence.NewPostgresDB(ctx, connStr, persistence.PostgresOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime, 5*time.Minute),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// loadCatalog returns the configured persona catalog or the embedded default.
func loadCatalog(cfg *config.Config) (*personas.Catalog, error) {
	if cfg.App.PersonaFile != "" {
		return personas.LoadCatalog(cfg.App.PersonaFile)
	}
	return personas.DefaultCatalog()
}

func fetchOptions(cfg *config.Config) fetch.Options {
	return fetch.Options{
		UserAgent:       cfg.Feeds.UserAgent,
		Timeout:         config.Duration(cfg.Feeds.Timeout, 30*time.Second),
		MaxItems:        cfg.Feeds.MaxItemsPerSource,
		MaxContentChars: cfg.Feeds.MaxContentChars,
		DefaultSelector: cfg.Feeds.DefaultSelector,
	}
}

func pipelineConfig(cfg *config.Config) *pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.RelevanceThreshold = cfg.Pipeline.RelevanceThreshold
	if cfg.Pipeline.ViewpointBatchLimit > 0 {
		pc.ViewpointBatchLimit = cfg.Pipeline.ViewpointBatchLimit
	}
	if cfg.Pipeline.RoundtableBatchLimit > 0 {
		pc.RoundtableBatchLimit = cfg.Pipeline.RoundtableBatchLimit
	}
	pc.TranscriptExcerpts = cfg.Pipeline.TranscriptExcerpts
	return pc
}

// buildPipeline wires the Gemini client, fetch strategies and persona catalog
// from configuration.
func buildPipeline(ctx context.Context, db persistence.Database, metrics *pipeline.Metrics) (*pipeline.Pipeline, error) {
	cfg := config.Get()

	gen, err := llm.NewClient(ctx, llm.Options{
		APIKey:            cfg.AI.Gemini.APIKey,
		Model:             cfg.AI.Gemini.Model,
		Timeout:           config.Duration(cfg.AI.Gemini.Timeout, llm.DefaultTimeout),
		Temperature:       cfg.AI.Gemini.Temperature,
		MaxTokens:         cfg.AI.Gemini.MaxTokens,
		RequestsPerMinute: cfg.AI.Gemini.RequestsPerMinute,
	})
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona catalog: %w", err)
	}

	return pipeline.NewBuilder().
		WithDatabase(db).
		WithGenerator(gen).
		WithFetchOptions(fetchOptions(cfg)).
		WithCatalog(catalog).
		WithMetrics(metrics).
		WithConfig(pipelineConfig(cfg)).
		Build()
}
