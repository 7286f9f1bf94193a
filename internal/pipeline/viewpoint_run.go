package pipeline

import (
	"context"
	"fmt"

	"healthwire/internal/core"
	"healthwire/internal/persistence"
	"healthwire/internal/transcripts"
)

// RunViewpoints routes each relevant, not-yet-analyzed article to one analyst,
// stores the analyst's viewpoint and then one brief per output template.
// Briefs that failed in an earlier run are retried from the stored viewpoint.
func (p *Pipeline) RunViewpoints(ctx context.Context) (*ViewpointStats, error) {
	release, ok, err := p.db.AcquireRunLock(ctx, NameViewpoints)
	if err != nil {
		return nil, fmt.Errorf("acquire viewpoint lock: %w", err)
	}
	if !ok {
		p.metrics.RecordRun(NameViewpoints, OutcomeSkipped, 0)
		return nil, ErrRunInProgress
	}
	defer release()

	run := p.startRun(ctx, NameViewpoints)
	stats := &ViewpointStats{RunID: run.id}
	fail := func(err error) (*ViewpointStats, error) {
		stats.Duration = p.now().Sub(run.started)
		run.fail(ctx, err, stats)
		p.metrics.RecordRun(NameViewpoints, string(core.LogError), stats.Duration)
		return stats, err
	}

	analysts, err := p.personas.Analysts(ctx, p.router.Targets()...)
	if err != nil {
		return fail(err)
	}
	outputs, err := p.personas.OutputTemplates(ctx)
	if err != nil {
		return fail(err)
	}

	items, err := p.db.Articles().ListNeedingViewpoints(ctx, persistence.ViewpointQuery{
		MinRelevance: p.config.RelevanceThreshold,
		Kind:         core.PersonaAnalyst,
		Limit:        p.config.ViewpointBatchLimit,
	})
	if err != nil {
		return fail(fmt.Errorf("list articles needing viewpoints: %w", err))
	}
	stats.ArticlesConsidered = len(items)

	handled := make(map[string]bool, len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		handled[item.Article.ID] = true
		analyst := analysts[p.router.Route(item.Summary.TopicTags)]
		ref := map[string]any{"article_id": item.Article.ID, "persona": analyst.Slug}

		vp, err := p.analyze(ctx, run, item, analyst)
		if err != nil {
			stats.Warnings++
			p.metrics.RecordItem(NameViewpoints, OutcomeWarning)
			run.warn(ctx, "generate_viewpoint", err, ref)
			continue
		}
		if err := p.db.Viewpoints().Upsert(ctx, vp); err != nil {
			p.itemFailed(ctx, run, &stats.Errors, "save_viewpoint", err, ref)
			continue
		}
		stats.ViewpointsGenerated++
		p.metrics.RecordItem(NameViewpoints, OutcomeProcessed)

		p.writeBriefs(ctx, run, stats, item, *vp, analyst, outputs)
	}

	if ctx.Err() == nil {
		p.backfillBriefs(ctx, run, stats, analysts, outputs, handled)
	}

	stats.Duration = p.now().Sub(run.started)
	run.succeed(ctx, stats)
	p.metrics.RecordRun(NameViewpoints, string(core.LogSuccess), stats.Duration)
	return stats, nil
}

// analyze writes the analyst's viewpoint, grounded on transcript excerpts when
// the analyst has any. A transcript lookup failure only drops the excerpts.
func (p *Pipeline) analyze(ctx context.Context, run *runLog, item core.ArticleWithSummary, analyst core.AnalystPersona) (*core.Viewpoint, error) {
	var excerpts []string
	if p.config.TranscriptExcerpts > 0 {
		ts, err := p.db.Transcripts().ListByPersona(ctx, analyst.ID)
		if err != nil {
			run.log.Warn("Failed to load transcripts", "persona", analyst.Slug, "error", err)
		} else {
			excerpts = transcripts.SelectExcerpts(ts, item.Summary.TopicTags, p.config.TranscriptExcerpts, p.config.ExcerptChars)
		}
	}
	return p.writer.Analyze(ctx, item, analyst, excerpts)
}

// writeBriefs repackages one analyst viewpoint for each output template.
func (p *Pipeline) writeBriefs(ctx context.Context, run *runLog, stats *ViewpointStats, item core.ArticleWithSummary, vp core.Viewpoint, analyst core.AnalystPersona, outputs []core.OutputPersonaTemplate) {
	for _, tmpl := range outputs {
		briefRef := map[string]any{"article_id": item.Article.ID, "persona": tmpl.Slug, "source_persona": analyst.Slug}
		brief, err := p.writer.Brief(ctx, item, vp, analyst, tmpl)
		if err != nil {
			stats.Warnings++
			p.metrics.RecordItem(NameViewpoints, OutcomeWarning)
			run.warn(ctx, "generate_brief", err, briefRef)
			continue
		}
		if err := p.db.Viewpoints().Upsert(ctx, brief); err != nil {
			p.itemFailed(ctx, run, &stats.Errors, "save_brief", err, briefRef)
			continue
		}
		stats.BriefsGenerated++
	}
}

// backfillBriefs retries briefs for articles analyzed in an earlier run whose
// brief generation failed for some templates. Articles handled in this run
// are left for the next one.
func (p *Pipeline) backfillBriefs(ctx context.Context, run *runLog, stats *ViewpointStats, analysts map[string]core.AnalystPersona, outputs []core.OutputPersonaTemplate, handled map[string]bool) {
	items, err := p.db.Articles().ListMissingBriefs(ctx, persistence.ViewpointQuery{
		MinRelevance: p.config.RelevanceThreshold,
		Limit:        p.config.ViewpointBatchLimit,
	})
	if err != nil {
		p.itemFailed(ctx, run, &stats.Errors, "list_missing_briefs", err, nil)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if handled[item.Article.ID] {
			continue
		}
		ref := map[string]any{"article_id": item.Article.ID}

		existing, err := p.db.Viewpoints().ListByArticle(ctx, item.Article.ID)
		if err != nil {
			p.itemFailed(ctx, run, &stats.Errors, "load_viewpoints", err, ref)
			continue
		}
		byPersona := make(map[string]core.Viewpoint, len(existing))
		for _, vp := range existing {
			byPersona[vp.PersonaID] = vp
		}

		analyst, vp, ok := p.sourceViewpoint(item, analysts, byPersona)
		if !ok {
			run.log.Debug("No routed analyst viewpoint to brief from", "article_id", item.Article.ID)
			continue
		}
		var missing []core.OutputPersonaTemplate
		for _, tmpl := range outputs {
			if _, done := byPersona[tmpl.ID]; !done {
				missing = append(missing, tmpl)
			}
		}
		if len(missing) == 0 {
			continue
		}

		stats.BriefBackfills++
		p.writeBriefs(ctx, run, stats, item, vp, analyst, missing)
	}
}

// sourceViewpoint picks the routed analyst's viewpoint, falling back to the
// first router target that has one.
func (p *Pipeline) sourceViewpoint(item core.ArticleWithSummary, analysts map[string]core.AnalystPersona, byPersona map[string]core.Viewpoint) (core.AnalystPersona, core.Viewpoint, bool) {
	slugs := append([]string{p.router.Route(item.Summary.TopicTags)}, p.router.Targets()...)
	for _, slug := range slugs {
		analyst, ok := analysts[slug]
		if !ok {
			continue
		}
		if vp, ok := byPersona[analyst.ID]; ok {
			return analyst, vp, true
		}
	}
	return core.AnalystPersona{}, core.Viewpoint{}, false
}
