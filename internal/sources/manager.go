// Package sources dispatches fetches by source kind and manages the
// configured source list.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"healthwire/internal/core"
	"healthwire/internal/feeds"
	"healthwire/internal/fetch"
	"healthwire/internal/logger"
	"healthwire/internal/persistence"
)

// ErrUnsupportedKind is returned for a source kind with no registered strategy.
var ErrUnsupportedKind = errors.New("sources: unsupported source kind")

// Fetcher produces unpersisted candidate articles for one source.
type Fetcher interface {
	Fetch(ctx context.Context, src core.Source) ([]core.Article, error)
}

// Dispatcher routes a source to the fetch strategy registered for its kind.
type Dispatcher map[core.SourceKind]Fetcher

// Fetch implements Fetcher.
func (d Dispatcher) Fetch(ctx context.Context, src core.Source) ([]core.Article, error) {
	f, ok := d[src.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, src.Kind)
	}
	return f.Fetch(ctx, src)
}

// NewDispatcher registers the RSS, scrape and sitemap strategies built from opts.
func NewDispatcher(opts fetch.Options) Dispatcher {
	return Dispatcher{
		core.SourceKindRSS: feeds.NewFetcher(feeds.Options{
			UserAgent: opts.UserAgent,
			Timeout:   opts.Timeout,
			MaxItems:  opts.MaxItems,
		}),
		core.SourceKindScrape:  fetch.NewScraper(opts),
		core.SourceKindSitemap: fetch.NewSitemapFetcher(opts),
	}
}

// SourceBatch is the candidate list fetched from one source.
type SourceBatch struct {
	Source   core.Source
	Articles []core.Article
}

// AggregateResult contains aggregation statistics
type AggregateResult struct {
	SourcesFetched int
	SourcesFailed  int
	Candidates     int
	Batches        []SourceBatch
	Errors         []error
}

// Manager handles source listing, seeding and per-source fetching
type Manager struct {
	db      persistence.Database
	fetcher Fetcher
	log     *slog.Logger
	now     func() time.Time
}

// NewManager creates a new source manager
func NewManager(db persistence.Database, fetcher Fetcher) *Manager {
	return &Manager{
		db:      db,
		fetcher: fetcher,
		log:     logger.Get(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ListSources returns every configured source in priority order
func (m *Manager) ListSources(ctx context.Context) ([]core.Source, error) {
	return m.db.Sources().List(ctx)
}

// Aggregate fetches every enabled source in priority order. A failing source
// is recorded on its row and counted; it never stops the remaining sources.
// The returned error is reserved for failing to list sources at all.
func (m *Manager) Aggregate(ctx context.Context) (*AggregateResult, error) {
	sources, err := m.db.Sources().ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled sources: %w", err)
	}

	result := &AggregateResult{}
	if len(sources) == 0 {
		m.log.Warn("No enabled sources found")
		return result, nil
	}

	m.log.Info("Starting aggregation", "source_count", len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			m.log.Warn("Aggregation cancelled", "reason", err)
			return result, err
		}

		articles, err := m.fetcher.Fetch(ctx, src)
		if err != nil {
			m.log.Error("Failed to fetch source", "source", src.Name, "error", err)
			result.SourcesFailed++
			result.Errors = append(result.Errors, fmt.Errorf("source %s: %w", src.Name, err))
			if recErr := m.db.Sources().RecordFetchError(ctx, src.ID, err.Error()); recErr != nil {
				m.log.Warn("Failed to record source error", "source", src.Name, "error", recErr)
			}
			continue
		}

		result.SourcesFetched++
		result.Candidates += len(articles)
		result.Batches = append(result.Batches, SourceBatch{Source: src, Articles: articles})
		if recErr := m.db.Sources().RecordFetchSuccess(ctx, src.ID, m.now()); recErr != nil {
			m.log.Warn("Failed to record source fetch", "source", src.Name, "error", recErr)
		}
		m.log.Debug("Fetched source", "source", src.Name, "kind", src.Kind, "candidates", len(articles))
	}

	m.log.Info("Aggregation completed",
		"fetched", result.SourcesFetched,
		"failed", result.SourcesFailed,
		"candidates", result.Candidates,
	)
	return result, nil
}

// Seed upserts sources by name and returns how many were written.
func (m *Manager) Seed(ctx context.Context, sources []core.Source) (int, error) {
	for i := range sources {
		if err := m.db.Sources().Upsert(ctx, &sources[i]); err != nil {
			return i, err
		}
		m.log.Info("Seeded source", "name", sources[i].Name, "kind", sources[i].Kind)
	}
	return len(sources), nil
}
