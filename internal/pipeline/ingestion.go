package pipeline

import (
	"context"
	"fmt"

	"healthwire/internal/core"
	"healthwire/internal/entities"
)

// RunIngestion fetches every enabled source, skips known articles and enriches
// each new one with entities and a summary. It returns an error only when the
// run cannot start or cannot list its sources.
func (p *Pipeline) RunIngestion(ctx context.Context) (*IngestionStats, error) {
	release, ok, err := p.db.AcquireRunLock(ctx, NameIngestion)
	if err != nil {
		return nil, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	if !ok {
		p.metrics.RecordRun(NameIngestion, OutcomeSkipped, 0)
		return nil, ErrRunInProgress
	}
	defer release()

	run := p.startRun(ctx, NameIngestion)
	stats := &IngestionStats{RunID: run.id}

	agg, err := p.sources.Aggregate(ctx)
	if agg != nil {
		stats.SourcesFetched = agg.SourcesFetched
		stats.SourcesFailed = agg.SourcesFailed
		for _, fetchErr := range agg.Errors {
			run.itemError(ctx, "fetch_source", fetchErr, nil)
		}
	}
	if err != nil {
		stats.Duration = p.now().Sub(run.started)
		run.fail(ctx, err, stats)
		p.metrics.RecordRun(NameIngestion, string(core.LogError), stats.Duration)
		return stats, err
	}

	for _, batch := range agg.Batches {
		for _, candidate := range batch.Articles {
			if ctx.Err() != nil {
				break
			}
			stats.CandidatesSeen++
			p.ingestCandidate(ctx, run, stats, batch.Source, candidate)
		}
	}

	stats.Duration = p.now().Sub(run.started)
	run.succeed(ctx, stats)
	p.metrics.RecordRun(NameIngestion, string(core.LogSuccess), stats.Duration)
	return stats, nil
}

// ingestCandidate runs one candidate through dedup, persistence, extraction
// and summarization. Status advances after each stage's write succeeds.
func (p *Pipeline) ingestCandidate(ctx context.Context, run *runLog, stats *IngestionStats, src core.Source, article core.Article) {
	if p.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ItemTimeout)
		defer cancel()
	}
	ref := map[string]any{"url": article.URL, "source": src.Name}

	isNew, err := p.dedup.IsNew(ctx, article.ContentHash, article.URL)
	if err != nil {
		p.itemFailed(ctx, run, &stats.Errors, "dedup_check", err, ref)
		return
	}
	if !isNew {
		stats.DuplicatesSkipped++
		p.metrics.RecordItem(NameIngestion, OutcomeDuplicate)
		return
	}

	if article.SourceID == nil && src.ID != "" {
		id := src.ID
		article.SourceID = &id
	}
	article.ProcessingStatus = core.StatusScraped
	if err := p.db.Articles().Upsert(ctx, &article); err != nil {
		p.itemFailed(ctx, run, &stats.Errors, "persist_article", err, ref)
		return
	}
	stats.ArticlesProcessed++
	ref["article_id"] = article.ID

	extraction, err := p.extractor.Extract(ctx, article.Title, article.RawContent)
	if err != nil {
		stats.Warnings++
		p.metrics.RecordItem(NameIngestion, OutcomeWarning)
		run.warn(ctx, "extract_entities", err, copyRef(ref))
	} else {
		saved, err := entities.Save(ctx, p.db.Entities(), article.ID, entities.Normalize(extraction))
		stats.EntitiesExtracted += saved.Total()
		if err != nil {
			p.itemFailed(ctx, run, &stats.Errors, "save_entities", err, ref)
			return
		}
	}
	if err := p.db.Articles().AdvanceStatus(ctx, article.ID, core.StatusExtracted); err != nil {
		p.itemFailed(ctx, run, &stats.Errors, "advance_status", err, ref)
		return
	}

	summary, err := p.summarizer.SummarizeArticle(ctx, article)
	if err != nil {
		stats.Warnings++
		p.metrics.RecordItem(NameIngestion, OutcomeWarning)
		run.warn(ctx, "summarize", err, copyRef(ref))
		p.metrics.RecordItem(NameIngestion, OutcomeProcessed)
		return
	}
	if err := p.db.Summaries().Upsert(ctx, summary); err != nil {
		p.itemFailed(ctx, run, &stats.Errors, "save_summary", err, ref)
		return
	}
	stats.SummariesGenerated++
	if err := p.db.Articles().AdvanceStatus(ctx, article.ID, core.StatusSummarized); err != nil {
		p.itemFailed(ctx, run, &stats.Errors, "advance_status", err, ref)
		return
	}

	p.metrics.RecordItem(NameIngestion, OutcomeProcessed)
	p.log.Debug("Article ingested",
		"article_id", article.ID,
		"relevance", summary.RelevanceScore,
		"tags", summary.TopicTags,
	)
}

func (p *Pipeline) itemFailed(ctx context.Context, run *runLog, counter *int, action string, err error, ref map[string]any) {
	*counter++
	p.metrics.RecordItem(run.agent, OutcomeError)
	run.itemError(ctx, action, err, copyRef(ref))
}

func copyRef(ref map[string]any) map[string]any {
	out := make(map[string]any, len(ref)+1)
	for k, v := range ref {
		out[k] = v
	}
	return out
}
