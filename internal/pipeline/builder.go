package pipeline

import (
	"fmt"
	"time"

	"healthwire/internal/entities"
	"healthwire/internal/fetch"
	"healthwire/internal/llm"
	"healthwire/internal/persistence"
	"healthwire/internal/personas"
	"healthwire/internal/sources"
	"healthwire/internal/summarize"
	"healthwire/internal/viewpoints"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	db        persistence.Database
	gen       llm.Generator
	fetcher   sources.Fetcher
	fetchOpts fetch.Options
	catalog   *personas.Catalog
	metrics   *Metrics
	config    *Config

	retries    int
	retryDelay time.Duration
	retrySet   bool
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithDatabase sets the persistence handle shared by every component
func (b *Builder) WithDatabase(db persistence.Database) *Builder {
	b.db = db
	return b
}

// WithGenerator sets the text generator
func (b *Builder) WithGenerator(gen llm.Generator) *Builder {
	b.gen = gen
	return b
}

// WithFetcher replaces the default per-kind fetch strategies
func (b *Builder) WithFetcher(f sources.Fetcher) *Builder {
	b.fetcher = f
	return b
}

// WithFetchOptions configures the default fetch strategies
func (b *Builder) WithFetchOptions(opts fetch.Options) *Builder {
	b.fetchOpts = opts
	return b
}

// WithCatalog sets the persona catalog; the embedded one is used otherwise
func (b *Builder) WithCatalog(c *personas.Catalog) *Builder {
	b.catalog = c
	return b
}

// WithMetrics sets the metrics sink
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithRetryPolicy overrides the retry count and base delay of every AI stage
func (b *Builder) WithRetryPolicy(retries int, delay time.Duration) *Builder {
	b.retries, b.retryDelay, b.retrySet = retries, delay, true
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if b.gen == nil {
		return nil, fmt.Errorf("text generator is required")
	}

	catalog := b.catalog
	if catalog == nil {
		var err error
		if catalog, err = personas.DefaultCatalog(); err != nil {
			return nil, fmt.Errorf("failed to load persona catalog: %w", err)
		}
	}

	fetcher := b.fetcher
	if fetcher == nil {
		fetcher = sources.NewDispatcher(b.fetchOpts)
	}

	extractOpts := entities.DefaultExtractorOptions()
	summaryOpts := summarize.DefaultSummarizerOptions()
	viewOpts := viewpoints.DefaultOptions()
	if b.retrySet {
		extractOpts.MaxRetries, extractOpts.RetryDelay = b.retries, b.retryDelay
		summaryOpts.MaxRetries, summaryOpts.RetryDelay = b.retries, b.retryDelay
		viewOpts.MaxRetries, viewOpts.RetryDelay = b.retries, b.retryDelay
	}

	return NewPipeline(
		b.db,
		sources.NewManager(b.db, fetcher),
		entities.NewExtractor(b.gen, extractOpts),
		summarize.NewSummarizer(b.gen, summaryOpts),
		viewpoints.NewGenerator(b.gen, viewOpts),
		personas.NewRegistry(b.db.Personas(), catalog),
		personas.DefaultRouter(),
		b.metrics,
		b.config,
	), nil
}
