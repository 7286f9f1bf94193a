package pipeline

import (
	"context"

	"healthwire/internal/core"
	"healthwire/internal/entities"
	"healthwire/internal/sources"
	"healthwire/internal/viewpoints"
)

// SourceAggregator fetches candidates from every enabled source
type SourceAggregator interface {
	// Aggregate fetches sources in priority order, isolating failures per source
	Aggregate(ctx context.Context) (*sources.AggregateResult, error)
}

// EntityExtractor finds entity mentions in an article
type EntityExtractor interface {
	// Extract returns raw mentions; any error is a soft failure
	Extract(ctx context.Context, title, content string) (entities.Extraction, error)
}

// ArticleSummarizer generates the one-per-article summary
type ArticleSummarizer interface {
	// SummarizeArticle returns the summary; any error is a soft failure
	SummarizeArticle(ctx context.Context, article core.Article) (*core.Summary, error)
}

// ViewpointWriter writes analyst viewpoints, output briefs and roundtables
type ViewpointWriter interface {
	Analyze(ctx context.Context, item core.ArticleWithSummary, analyst core.AnalystPersona, excerpts []string) (*core.Viewpoint, error)
	Brief(ctx context.Context, item core.ArticleWithSummary, source core.Viewpoint, analyst core.AnalystPersona, tmpl core.OutputPersonaTemplate) (*core.Viewpoint, error)
	Roundtable(ctx context.Context, item core.ArticleWithSummary, moderator core.Persona, panel []viewpoints.PanelView) (*core.Viewpoint, error)
}

// AnalystRouter assigns an article to one analyst by its topic tags
type AnalystRouter interface {
	Route(tags []string) string
	// Targets lists every slug Route can return
	Targets() []string
}
