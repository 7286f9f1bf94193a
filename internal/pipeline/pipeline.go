// Package pipeline runs the ingestion, viewpoint and roundtable batch jobs.
// Work items are processed sequentially; an item's failure is counted and
// logged, never returned, so a run only fails when it cannot start.
package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"healthwire/internal/dedup"
	"healthwire/internal/logger"
	"healthwire/internal/persistence"
	"healthwire/internal/personas"
)

// Run lock and agent names.
const (
	NameIngestion  = "ingestion"
	NameViewpoints = "viewpoints"
	NameRoundtable = "roundtable"
)

var (
	// ErrRunInProgress is returned when another run of the same pipeline holds the lock.
	ErrRunInProgress = errors.New("pipeline: run already in progress")
	// ErrUnknownPersona is returned when a run needs a persona that is not seeded.
	ErrUnknownPersona = personas.ErrUnknownPersona
)

// Config holds pipeline configuration
type Config struct {
	// Only summaries scoring at or above this receive persona analysis
	RelevanceThreshold int

	// Bounds on the candidate queries
	ViewpointBatchLimit  int
	RoundtableBatchLimit int

	// Voice grounding
	TranscriptExcerpts int
	ExcerptChars       int

	// RoundtablePanel lists the three analysts a roundtable merges
	RoundtablePanel []string

	// ItemTimeout bounds the work spent on one article; zero disables it
	ItemTimeout time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		RelevanceThreshold:   6,
		ViewpointBatchLimit:  20,
		RoundtableBatchLimit: 10,
		TranscriptExcerpts:   2,
		ExcerptChars:         1200,
		RoundtablePanel: []string{
			personas.SlugSecuritySentinel,
			personas.SlugStrategyNavigator,
			personas.SlugCultureCatalyst,
		},
		ItemTimeout: 3 * time.Minute,
	}
}

// Pipeline orchestrates the batch jobs over shared components
type Pipeline struct {
	db         persistence.Database
	sources    SourceAggregator
	dedup      *dedup.Filter
	extractor  EntityExtractor
	summarizer ArticleSummarizer
	writer     ViewpointWriter
	personas   *personas.Registry
	router     AnalystRouter
	metrics    *Metrics

	config *Config
	log    *slog.Logger
	now    func() time.Time
}

// NewPipeline creates a new pipeline with all dependencies
func NewPipeline(
	db persistence.Database,
	sources SourceAggregator,
	extractor EntityExtractor,
	summarizer ArticleSummarizer,
	writer ViewpointWriter,
	registry *personas.Registry,
	router AnalystRouter,
	metrics *Metrics,
	config *Config,
) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Pipeline{
		db:         db,
		sources:    sources,
		dedup:      dedup.NewFilter(db.Articles()),
		extractor:  extractor,
		summarizer: summarizer,
		writer:     writer,
		personas:   registry,
		router:     router,
		metrics:    metrics,
		config:     config,
		log:        logger.Get(),
		now:        time.Now,
	}
}
