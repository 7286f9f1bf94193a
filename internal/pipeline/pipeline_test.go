package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwire/internal/core"
	"healthwire/internal/llm"
	"healthwire/internal/persistence"
	"healthwire/internal/personas"
	"healthwire/test/mocks"
)

const (
	extractJSON    = `{"organizations":[{"name":"Cerner","type":"vendor","confidence":0.9}],"people":[],"technologies":[{"name":"EHR","category":"ehr","confidence":0.8}]}`
	summaryJSON    = `{"summary":"A hospital outage disrupted care.","takeaways":["Nine days down","Claims delayed","Backups offline"],"tags":["ransomware","cybersecurity"],"relevance_score":8}`
	analystJSON    = `{"viewpoint":"I have seen this before.","key_insights":["Segment networks"],"confidence_score":0.7}`
	briefJSON      = `{"brief":"Budget for downtime.","headline":"Outage costs","key_takeaways":["Nine days"],"action_items":["Review insurance"],"relevance_rating":7}`
	roundtableJSON = `{"discussion":"Security opened, strategy replied, culture closed.","consensus_points":["Patch faster"],"disagreements":[],"confidence_score":0.5}`

	markExtract    = "extract named entities"
	markSummary    = "You summarize healthcare"
	markAnalyst    = "Write as this analyst"
	markBrief      = "Repackage this analyst viewpoint"
	markRoundtable = "You moderate"
)

func defaultRules() []mocks.Rule {
	return []mocks.Rule{
		{Match: markRoundtable, Response: roundtableJSON},
		{Match: markBrief, Response: briefJSON},
		{Match: markAnalyst, Response: analystJSON},
		{Match: markExtract, Response: extractJSON},
		{Match: markSummary, Response: summaryJSON},
	}
}

type harness struct {
	db       *persistence.MemoryDB
	gen      *mocks.MockGenerator
	fetcher  *mocks.MockFetcher
	metrics  *Metrics
	pipeline *Pipeline
}

func newHarness(t *testing.T, gen *mocks.MockGenerator) *harness {
	t.Helper()
	h := &harness{
		db:      persistence.NewMemoryDB(),
		gen:     gen,
		fetcher: &mocks.MockFetcher{Articles: map[string][]core.Article{}, Errors: map[string]error{}},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	p, err := NewBuilder().
		WithDatabase(h.db).
		WithGenerator(gen).
		WithFetcher(h.fetcher).
		WithMetrics(h.metrics).
		WithRetryPolicy(0, 0).
		Build()
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func (h *harness) addSource(t *testing.T, name string, priority int) {
	t.Helper()
	src := &core.Source{Name: name, URL: "https://" + strings.ToLower(name) + ".example.com", Kind: core.SourceKindRSS, Priority: priority, Enabled: true}
	require.NoError(t, h.db.Sources().Upsert(context.Background(), src))
}

func (h *harness) seedAnalysts(t *testing.T) {
	t.Helper()
	catalog, err := personas.DefaultCatalog()
	require.NoError(t, err)
	_, err = personas.NewRegistry(h.db.Personas(), catalog).SeedAnalysts(context.Background())
	require.NoError(t, err)
}

func (h *harness) logs(t *testing.T, runID string, status core.AgentLogStatus) []core.AgentLog {
	t.Helper()
	rows, err := h.db.AgentLogs().ListByRun(context.Background(), runID)
	require.NoError(t, err)
	var out []core.AgentLog
	for _, r := range rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

func candidate(url, title, content string) core.Article {
	return core.Article{URL: url, Title: title, RawContent: content, ContentHash: core.HashContent(content)}
}

func TestRunIngestion_EndToEnd(t *testing.T) {
	h := newHarness(t, mocks.NewRuleGenerator(defaultRules()...))
	ctx := context.Background()
	h.addSource(t, "Feed", 1)

	items := []core.Article{
		candidate("https://feed.example.com/1", "Ransomware at regional system", "first body"),
		candidate("https://feed.example.com/2", "Already stored", "second body"),
		candidate("https://feed.example.com/3", "Cloud EHR migration", "third body"),
	}
	h.fetcher.Articles["Feed"] = items
	require.NoError(t, h.db.Articles().Upsert(ctx, &core.Article{URL: items[1].URL, Title: "old", ContentHash: core.HashContent("older copy")}))

	stats, err := h.pipeline.RunIngestion(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SourcesFetched)
	assert.Equal(t, 3, stats.CandidatesSeen)
	assert.Equal(t, 1, stats.DuplicatesSkipped)
	assert.Equal(t, 2, stats.ArticlesProcessed)
	assert.Equal(t, 2, stats.SummariesGenerated)
	assert.Equal(t, 4, stats.EntitiesExtracted)
	assert.Zero(t, stats.Warnings)
	assert.Zero(t, stats.Errors)

	assert.Equal(t, 2, h.gen.CallsMatching(markExtract))
	assert.Equal(t, 2, h.gen.CallsMatching(markSummary))

	count, err := h.db.Articles().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	orgs, err := h.db.Entities().ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Oracle Health", orgs[0].CanonicalName)

	rows, err := h.db.AgentLogs().ListByRun(ctx, stats.RunID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, core.LogStarted, rows[0].Status)
	last := rows[len(rows)-1]
	assert.Equal(t, core.LogSuccess, last.Status)
	assert.Equal(t, float64(1), last.Details["duplicates_skipped"])

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(NameIngestion, "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.ItemsTotal.WithLabelValues(NameIngestion, OutcomeProcessed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ItemsTotal.WithLabelValues(NameIngestion, OutcomeDuplicate)))
}

func TestRunIngestion_SecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t, mocks.NewRuleGenerator(defaultRules()...))
	ctx := context.Background()
	h.addSource(t, "Feed", 1)
	h.fetcher.Articles["Feed"] = []core.Article{
		candidate("https://feed.example.com/1", "One", "one"),
		candidate("https://feed.example.com/2", "Two", "two"),
	}

	first, err := h.pipeline.RunIngestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.ArticlesProcessed)

	second, err := h.pipeline.RunIngestion(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.ArticlesProcessed)
	assert.Equal(t, 2, second.DuplicatesSkipped)
	assert.NotEqual(t, first.RunID, second.RunID)

	count, err := h.db.Articles().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, h.gen.CallsMatching(markSummary), "no AI work spent on duplicates")
}

func TestRunIngestion_ExtractionSoftFailure(t *testing.T) {
	rules := append([]mocks.Rule{{Match: markExtract, Response: "I could not find any entities in this article."}}, defaultRules()...)
	h := newHarness(t, mocks.NewRuleGenerator(rules...))
	ctx := context.Background()
	h.addSource(t, "Feed", 1)
	h.fetcher.Articles["Feed"] = []core.Article{candidate("https://feed.example.com/1", "Quiet news", "body")}

	stats, err := h.pipeline.RunIngestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ArticlesProcessed)
	assert.Zero(t, stats.EntitiesExtracted)
	assert.Equal(t, 1, stats.SummariesGenerated)
	assert.Equal(t, 1, stats.Warnings)
	assert.Zero(t, stats.Errors)

	warnings := h.logs(t, stats.RunID, core.LogWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "extract_entities", warnings[0].Action)

	items, err := h.db.Articles().ListNeedingViewpoints(ctx, persistence.ViewpointQuery{MinRelevance: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, core.StatusSummarized, items[0].Article.ProcessingStatus)

	orgs, err := h.db.Entities().ListOrganizations(ctx)
	require.NoError(t, err)
	assert.Empty(t, orgs)
}

func TestRunIngestion_SummarySoftFailure(t *testing.T) {
	rules := append([]mocks.Rule{{Match: markSummary, Response: "Summary: something happened."}}, defaultRules()...)
	h := newHarness(t, mocks.NewRuleGenerator(rules...))
	ctx := context.Background()
	h.addSource(t, "Feed", 1)
	h.fetcher.Articles["Feed"] = []core.Article{candidate("https://feed.example.com/1", "News", "body")}

	stats, err := h.pipeline.RunIngestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ArticlesProcessed)
	assert.Zero(t, stats.SummariesGenerated)
	assert.Equal(t, 1, stats.Warnings)

	warnings := h.logs(t, stats.RunID, core.LogWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "summarize", warnings[0].Action)

	articleID, _ := warnings[0].Details["article_id"].(string)
	a, err := h.db.Articles().Get(ctx, articleID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusExtracted, a.ProcessingStatus)

	_, err = h.db.Summaries().GetByArticleID(ctx, articleID)
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestRunIngestion_CanonicalizationAcrossArticles(t *testing.T) {
	mentions := map[string]string{"Alpha": "Cerner", "Bravo": "Cerner Corporation", "Charlie": "Oracle Cerner"}
	rules := mocks.NewRuleGenerator(defaultRules()...)
	gen := &mocks.MockGenerator{
		GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
			if strings.Contains(req.System, markExtract) {
				for title, name := range mentions {
					if strings.Contains(req.Prompt, "**Title:** "+title) {
						return `{"organizations":[{"name":"` + name + `","type":"vendor","confidence":0.9}]}`, nil
					}
				}
			}
			return rules.Generate(ctx, req)
		},
	}
	h := newHarness(t, gen)
	ctx := context.Background()
	h.addSource(t, "Feed", 1)
	h.fetcher.Articles["Feed"] = []core.Article{
		candidate("https://feed.example.com/a", "Alpha", "a"),
		candidate("https://feed.example.com/b", "Bravo", "b"),
		candidate("https://feed.example.com/c", "Charlie", "c"),
	}

	stats, err := h.pipeline.RunIngestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EntitiesExtracted)

	orgs, err := h.db.Entities().ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Oracle Health", orgs[0].CanonicalName)
	assert.Equal(t, core.OrgVendor, orgs[0].Type)
}

func TestRunIngestion_IsolatesSourceFailures(t *testing.T) {
	h := newHarness(t, mocks.NewRuleGenerator(defaultRules()...))
	ctx := context.Background()
	h.addSource(t, "Broken", 1)
	h.addSource(t, "Working", 2)
	h.fetcher.Errors["Broken"] = errors.New("connection refused")
	h.fetcher.Articles["Working"] = []core.Article{candidate("https://working.example.com/1", "Fine", "fine")}

	stats, err := h.pipeline.RunIngestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SourcesFailed)
	assert.Equal(t, 1, stats.SourcesFetched)
	assert.Equal(t, 1, stats.ArticlesProcessed)
	assert.Equal(t, []string{"Broken", "Working"}, h.fetcher.Fetched())

	errs := h.logs(t, stats.RunID, core.LogError)
	require.Len(t, errs, 1)
	assert.Equal(t, "fetch_source", errs[0].Action)
	assert.Contains(t, errs[0].Details["error"], "connection refused")
}

func TestRunIngestion_RunLock(t *testing.T) {
	h := newHarness(t, mocks.NewRuleGenerator(defaultRules()...))
	ctx := context.Background()

	release, ok, err := h.db.AcquireRunLock(ctx, NameIngestion)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.pipeline.RunIngestion(ctx)
	assert.True(t, errors.Is(err, ErrRunInProgress))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(NameIngestion, OutcomeSkipped)))

	release()
	_, err = h.pipeline.RunIngestion(ctx)
	assert.NoError(t, err)
}

func (h *harness) summarized(t *testing.T, url string, relevance int, tags ...string) *core.Article {
	t.Helper()
	ctx := context.Background()
	a := &core.Article{URL: url, Title: "Story " + url, RawContent: "content of " + url, ContentHash: core.HashContent(url)}
	require.NoError(t, h.db.Articles().Upsert(ctx, a))
	require.NoError(t, h.db.Summaries().Upsert(ctx, &core.Summary{
		ArticleID:      a.ID,
		ShortSummary:   "summary of " + url,
		KeyTakeaways:   []string{"one"},
		TopicTags:      tags,
		RelevanceScore: relevance,
	}))
	require.NoError(t, h.db.Articles().AdvanceStatus(ctx, a.ID, core.StatusSummarized))
	return a
}

func (h *harness) persona(t *testing.T, slug string) *core.Persona {
	t.Helper()
	p, err := h.db.Personas().GetBySlug(context.Background(), slug)
	require.NoError(t, err)
	return p
}

func TestRunViewpoints_RoutesAndWritesBriefs(t *testing.T) {
	h := newHarness(t, mocks.NewRuleGenerator(defaultRules()...))
	ctx := context.Background()
	h.seedAnalysts(t)

	relevant := h.summarized(t, "https://news.example.com/breach", 6, "ransomware", "hospital")
	h.summarized(t, "https://news.example.com/minor", 5, "ransomware")

	stats, err := h.pipeline.RunViewpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ArticlesConsidered)
	assert.Equal(t, 1, stats.ViewpointsGenerated)
	assert.Equal(t, 4, stats.BriefsGenerated)
	assert.Zero(t, stats.Warnings)

	sentinel := h.persona(t, personas.SlugSecuritySentinel)
	vp, err := h.db.Viewpoints().Get(ctx, relevant.ID, sentinel.ID)
	require.NoError(t, err)
	assert.Equal(t, "I have seen this before.", vp.ViewpointText)

	all, err := h.db.Viewpoints().ListByArticle(ctx, relevant.ID)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	again, err := h.pipeline.RunViewpoints(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.ArticlesConsidered)
	assert.Equal(t, 1, h.gen.CallsMatching(markAnalyst))
}

func TestRunViewpoints_BackfillsFailedBriefs(t *testing.T) {
	rules := mocks.NewRuleGenerator(defaultRules()...)
	var cfoDown atomic.Bool
	cfoDown.Store(true)
	gen := &mocks.MockGenerator{
		GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
			if cfoDown.Load() && strings.Contains(req.System, "You write CFO Brief") {
				return "", errors.New("model overloaded")
			}
			return rules.Generate(ctx, req)
		},
	}
	h := newHarness(t, gen)
	ctx := context.Background()
	h.seedAnalysts(t)
	a := h.summarized(t, "https://news.example.com/breach", 8, "ransomware")

	first, err := h.pipeline.RunViewpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ViewpointsGenerated)
	assert.Equal(t, 3, first.BriefsGenerated)
	assert.Equal(t, 1, first.Warnings)
	assert.Zero(t, first.BriefBackfills, "articles analyzed in this run wait for the next one")

	cfoDown.Store(false)
	second, err := h.pipeline.RunViewpoints(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.ArticlesConsidered)
	assert.Equal(t, 1, second.BriefBackfills)
	assert.Equal(t, 1, second.BriefsGenerated)
	assert.Equal(t, 1, rules.CallsMatching(markAnalyst), "the analyst viewpoint is reused")

	cfo := h.persona(t, "cfo-brief")
	_, err = h.db.Viewpoints().Get(ctx, a.ID, cfo.ID)
	require.NoError(t, err)
	all, err := h.db.Viewpoints().ListByArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	third, err := h.pipeline.RunViewpoints(ctx)
	require.NoError(t, err)
	assert.Zero(t, third.BriefBackfills)
	assert.Zero(t, third.BriefsGenerated)
}

func TestRunViewpoints_UnknownPersonaFailsRun(t *testing.T) {
	h := newHarness(t, mocks.NewRuleGenerator(defaultRules()...))
	ctx := context.Background()
	h.summarized(t, "https://news.example.com/a", 9, "ai")

	stats, err := h.pipeline.RunViewpoints(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPersona))
	require.NotNil(t, stats)
	assert.Empty(t, h.gen.Calls())

	rows, err := h.db.AgentLogs().ListByRun(ctx, stats.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, core.LogError, rows[len(rows)-1].Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(NameViewpoints, "error")))
}

func TestRunViewpoints_AnalystSoftFailure(t *testing.T) {
	rules := append([]mocks.Rule{{Match: markAnalyst, Response: "Here are my thoughts without any JSON."}}, defaultRules()...)
	h := newHarness(t, mocks.NewRuleGenerator(rules...))
	ctx := context.Background()
	h.seedAnalysts(t)
	a := h.summarized(t, "https://news.example.com/a", 8, "cloud")

	stats, err := h.pipeline.RunViewpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ArticlesConsidered)
	assert.Zero(t, stats.ViewpointsGenerated)
	assert.Zero(t, stats.BriefsGenerated)
	assert.Equal(t, 1, stats.Warnings)

	all, err := h.db.Viewpoints().ListByArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, all)

	warnings := h.logs(t, stats.RunID, core.LogWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "generate_viewpoint", warnings[0].Action)
}

func TestRunRoundtable_GeneratesMissingPanelViews(t *testing.T) {
	h := newHarness(t, mocks.NewRuleGenerator(defaultRules()...))
	ctx := context.Background()
	h.seedAnalysts(t)
	a := h.summarized(t, "https://news.example.com/merger", 7, "merger")

	sentinel := h.persona(t, personas.SlugSecuritySentinel)
	require.NoError(t, h.db.Viewpoints().Upsert(ctx, &core.Viewpoint{
		ArticleID:     a.ID,
		PersonaID:     sentinel.ID,
		ViewpointText: "Stored security take.",
	}))

	stats, err := h.pipeline.RunRoundtable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ArticlesConsidered)
	assert.Equal(t, 2, stats.ViewpointsGenerated)
	assert.Equal(t, 1, stats.RoundtablesGenerated)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, 2, h.gen.CallsMatching(markAnalyst))

	moderator := h.persona(t, personas.RoundtableSlug)
	rt, err := h.db.Viewpoints().Get(ctx, a.ID, moderator.ID)
	require.NoError(t, err)
	assert.Contains(t, rt.ViewpointText, "Security opened")

	again, err := h.pipeline.RunRoundtable(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.ArticlesConsidered)
}

func TestRunRoundtable_SkipsIncompletePanel(t *testing.T) {
	rules := mocks.NewRuleGenerator(defaultRules()...)
	gen := &mocks.MockGenerator{
		GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
			if strings.Contains(req.System, "You are Culture Catalyst") {
				return "", errors.New("model overloaded")
			}
			return rules.Generate(ctx, req)
		},
	}
	h := newHarness(t, gen)
	ctx := context.Background()
	h.seedAnalysts(t)
	h.summarized(t, "https://news.example.com/layoffs", 9, "workforce")

	stats, err := h.pipeline.RunRoundtable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.RoundtablesGenerated)
	assert.Equal(t, 2, stats.ViewpointsGenerated)
	assert.Equal(t, 1, stats.Warnings)
	assert.Zero(t, rules.CallsMatching(markRoundtable))
}
