package pipeline

import (
	"context"
	"errors"
	"fmt"

	"healthwire/internal/core"
	"healthwire/internal/persistence"
	"healthwire/internal/viewpoints"
)

// RunRoundtable merges the panel's viewpoints on each relevant article into
// one roundtable viewpoint. Missing panel viewpoints are generated first; an
// article whose panel is still incomplete is skipped.
func (p *Pipeline) RunRoundtable(ctx context.Context) (*RoundtableStats, error) {
	release, ok, err := p.db.AcquireRunLock(ctx, NameRoundtable)
	if err != nil {
		return nil, fmt.Errorf("acquire roundtable lock: %w", err)
	}
	if !ok {
		p.metrics.RecordRun(NameRoundtable, OutcomeSkipped, 0)
		return nil, ErrRunInProgress
	}
	defer release()

	run := p.startRun(ctx, NameRoundtable)
	stats := &RoundtableStats{RunID: run.id}
	fail := func(err error) (*RoundtableStats, error) {
		stats.Duration = p.now().Sub(run.started)
		run.fail(ctx, err, stats)
		p.metrics.RecordRun(NameRoundtable, string(core.LogError), stats.Duration)
		return stats, err
	}

	if len(p.config.RoundtablePanel) != viewpoints.PanelSize {
		return fail(fmt.Errorf("roundtable panel needs %d analysts, got %d", viewpoints.PanelSize, len(p.config.RoundtablePanel)))
	}
	analysts, err := p.personas.Analysts(ctx, p.config.RoundtablePanel...)
	if err != nil {
		return fail(err)
	}
	moderator, err := p.personas.Roundtable(ctx)
	if err != nil {
		return fail(err)
	}

	items, err := p.db.Articles().ListNeedingViewpoints(ctx, persistence.ViewpointQuery{
		MinRelevance: p.config.RelevanceThreshold,
		Kind:         core.PersonaRoundtable,
		Limit:        p.config.RoundtableBatchLimit,
	})
	if err != nil {
		return fail(fmt.Errorf("list articles needing roundtables: %w", err))
	}
	stats.ArticlesConsidered = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		ref := map[string]any{"article_id": item.Article.ID}

		panel, failed := p.assemblePanel(ctx, run, stats, item, analysts)
		if failed {
			continue
		}
		if len(panel) < viewpoints.PanelSize {
			stats.Skipped++
			p.metrics.RecordItem(NameRoundtable, OutcomeSkipped)
			continue
		}

		rt, err := p.writer.Roundtable(ctx, item, moderator, panel)
		if err != nil {
			stats.Warnings++
			p.metrics.RecordItem(NameRoundtable, OutcomeWarning)
			run.warn(ctx, "generate_roundtable", err, ref)
			continue
		}
		if err := p.db.Viewpoints().Upsert(ctx, rt); err != nil {
			p.itemFailed(ctx, run, &stats.Errors, "save_roundtable", err, ref)
			continue
		}
		stats.RoundtablesGenerated++
		p.metrics.RecordItem(NameRoundtable, OutcomeProcessed)
	}

	stats.Duration = p.now().Sub(run.started)
	run.succeed(ctx, stats)
	p.metrics.RecordRun(NameRoundtable, string(core.LogSuccess), stats.Duration)
	return stats, nil
}

// assemblePanel collects each panel analyst's stored viewpoint, generating the
// ones that are missing. failed reports a store error, already counted.
func (p *Pipeline) assemblePanel(ctx context.Context, run *runLog, stats *RoundtableStats, item core.ArticleWithSummary, analysts map[string]core.AnalystPersona) ([]viewpoints.PanelView, bool) {
	panel := make([]viewpoints.PanelView, 0, len(p.config.RoundtablePanel))
	for _, slug := range p.config.RoundtablePanel {
		analyst := analysts[slug]
		ref := map[string]any{"article_id": item.Article.ID, "persona": slug}

		existing, err := p.db.Viewpoints().Get(ctx, item.Article.ID, analyst.ID)
		if err == nil {
			panel = append(panel, viewpoints.PanelView{Analyst: analyst, Viewpoint: *existing})
			continue
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			p.itemFailed(ctx, run, &stats.Errors, "load_viewpoint", err, ref)
			return nil, true
		}

		vp, err := p.analyze(ctx, run, item, analyst)
		if err != nil {
			stats.Warnings++
			p.metrics.RecordItem(NameRoundtable, OutcomeWarning)
			run.warn(ctx, "generate_viewpoint", err, ref)
			continue
		}
		if err := p.db.Viewpoints().Upsert(ctx, vp); err != nil {
			p.itemFailed(ctx, run, &stats.Errors, "save_viewpoint", err, ref)
			return nil, true
		}
		stats.ViewpointsGenerated++
		panel = append(panel, viewpoints.PanelView{Analyst: analyst, Viewpoint: *vp})
	}
	return panel, false
}
