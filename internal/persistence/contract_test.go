package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwire/internal/core"
)

// runContract exercises the natural-key and junction semantics every
// Database implementation must share. Names are randomized so the suite can
// run against a shared Postgres instance.
func runContract(t *testing.T, db Database) {
	t.Run("ArticleUpsertKeepsIdentity", func(t *testing.T) { testArticleUpsertKeepsIdentity(t, db) })
	t.Run("ExistsByHashOrURL", func(t *testing.T) { testExistsByHashOrURL(t, db) })
	t.Run("StatusIsMonotonic", func(t *testing.T) { testStatusIsMonotonic(t, db) })
	t.Run("OrganizationCanonicalIdentity", func(t *testing.T) { testOrganizationCanonicalIdentity(t, db) })
	t.Run("JunctionIdempotence", func(t *testing.T) { testJunctionIdempotence(t, db) })
	t.Run("PersonExactNameMatch", func(t *testing.T) { testPersonExactNameMatch(t, db) })
	t.Run("ViewpointUpsertReplaces", func(t *testing.T) { testViewpointUpsertReplaces(t, db) })
	t.Run("ThresholdGating", func(t *testing.T) { testThresholdGating(t, db) })
	t.Run("MissingBriefs", func(t *testing.T) { testMissingBriefs(t, db) })
	t.Run("SourceErrorTracking", func(t *testing.T) { testSourceErrorTracking(t, db) })
	t.Run("RunLock", func(t *testing.T) { testRunLock(t, db) })
	t.Run("AgentLogByRun", func(t *testing.T) { testAgentLogByRun(t, db) })
}

func suffix() string { return uuid.NewString()[:8] }

func newArticle(t *testing.T, db Database, content string) *core.Article {
	t.Helper()
	a := &core.Article{
		URL:         "https://news.example.com/" + suffix(),
		Title:       "Health system rolls out ambient AI",
		RawContent:  content,
		ContentHash: core.HashContent(content + suffix()),
	}
	require.NoError(t, db.Articles().Upsert(context.Background(), a))
	return a
}

func newPersona(t *testing.T, db Database, kind core.PersonaKind) *core.Persona {
	t.Helper()
	p := &core.Persona{Slug: string(kind) + "-" + suffix(), Name: "Test Persona", Kind: kind, Enabled: true}
	require.NoError(t, db.Personas().Upsert(context.Background(), p))
	return p
}

func testArticleUpsertKeepsIdentity(t *testing.T, db Database) {
	ctx := context.Background()
	a := newArticle(t, db, "first body")
	require.NoError(t, db.Articles().AdvanceStatus(ctx, a.ID, core.StatusExtracted))

	again := &core.Article{URL: a.URL, Title: "Updated title", RawContent: "second body", ContentHash: core.HashContent("second body" + suffix())}
	require.NoError(t, db.Articles().Upsert(ctx, again))

	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, core.StatusExtracted, again.ProcessingStatus)

	stored, err := db.Articles().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated title", stored.Title)
	assert.Equal(t, "second body", stored.RawContent)
}

func testExistsByHashOrURL(t *testing.T, db Database) {
	ctx := context.Background()
	a := newArticle(t, db, "exists body")

	exists, err := db.Articles().Exists(ctx, a.ContentHash, "https://elsewhere.example.com/"+suffix())
	require.NoError(t, err)
	assert.True(t, exists, "hash match")

	exists, err = db.Articles().Exists(ctx, "no-such-hash-"+suffix(), a.URL)
	require.NoError(t, err)
	assert.True(t, exists, "url match")

	exists, err = db.Articles().Exists(ctx, "no-such-hash-"+suffix(), "https://new.example.com/"+suffix())
	require.NoError(t, err)
	assert.False(t, exists)
}

func testStatusIsMonotonic(t *testing.T, db Database) {
	ctx := context.Background()
	a := newArticle(t, db, "status body")

	require.NoError(t, db.Articles().AdvanceStatus(ctx, a.ID, core.StatusSummarized))
	require.NoError(t, db.Articles().AdvanceStatus(ctx, a.ID, core.StatusExtracted))

	stored, err := db.Articles().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSummarized, stored.ProcessingStatus)

	err = db.Articles().AdvanceStatus(ctx, "missing-"+suffix(), core.StatusExtracted)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func testOrganizationCanonicalIdentity(t *testing.T, db Database) {
	ctx := context.Background()
	name := "Oracle Health " + suffix()

	first := &core.Organization{CanonicalName: name, Type: core.OrgOther}
	require.NoError(t, db.Entities().UpsertOrganization(ctx, first))
	second := &core.Organization{CanonicalName: name, Type: core.OrgVendor}
	require.NoError(t, db.Entities().UpsertOrganization(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	stored, err := db.Entities().GetOrganizationByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, core.OrgVendor, stored.Type)
}

func testJunctionIdempotence(t *testing.T, db Database) {
	ctx := context.Background()
	a := newArticle(t, db, "junction body")
	org := &core.Organization{CanonicalName: "Epic Systems " + suffix(), Type: core.OrgVendor}
	require.NoError(t, db.Entities().UpsertOrganization(ctx, org))

	link := core.EntityLink{ArticleID: a.ID, EntityID: org.ID, Confidence: 0.9}
	require.NoError(t, db.Entities().LinkOrganization(ctx, link))
	link.Confidence = 0.4
	require.NoError(t, db.Entities().LinkOrganization(ctx, link))

	links, err := db.Entities().OrganizationLinks(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.InDelta(t, 0.9, links[0].Confidence, 1e-6)
}

func testPersonExactNameMatch(t *testing.T, db Database) {
	ctx := context.Background()
	name := "Dana Whitfield " + suffix()

	p1 := &core.Person{Name: name}
	require.NoError(t, db.Entities().FindOrCreatePerson(ctx, p1))
	p2 := &core.Person{Name: name, Title: "CMIO"}
	require.NoError(t, db.Entities().FindOrCreatePerson(ctx, p2))
	p3 := &core.Person{Name: name + " Jr."}
	require.NoError(t, db.Entities().FindOrCreatePerson(ctx, p3))

	assert.Equal(t, p1.ID, p2.ID)
	assert.NotEqual(t, p1.ID, p3.ID)
}

func testViewpointUpsertReplaces(t *testing.T, db Database) {
	ctx := context.Background()
	a := newArticle(t, db, "viewpoint body")
	p := newPersona(t, db, core.PersonaAnalyst)

	first := &core.Viewpoint{ArticleID: a.ID, PersonaID: p.ID, ViewpointText: "first take", ConfidenceScore: 0.5}
	require.NoError(t, db.Viewpoints().Upsert(ctx, first))
	second := &core.Viewpoint{ArticleID: a.ID, PersonaID: p.ID, ViewpointText: "second take", ConfidenceScore: 1.7,
		GenerationMetadata: map[string]any{"attempt": "2"}}
	require.NoError(t, db.Viewpoints().Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	all, err := db.Viewpoints().ListByArticle(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second take", all[0].ViewpointText)
	assert.InDelta(t, 1.0, all[0].ConfidenceScore, 1e-6)
	assert.Equal(t, "2", all[0].GenerationMetadata["attempt"])
}

func testThresholdGating(t *testing.T, db Database) {
	ctx := context.Background()
	five := newArticle(t, db, "five body")
	six := newArticle(t, db, "six body")
	require.NoError(t, db.Summaries().Upsert(ctx, &core.Summary{ArticleID: five.ID, ShortSummary: "s", RelevanceScore: 5}))
	require.NoError(t, db.Summaries().Upsert(ctx, &core.Summary{ArticleID: six.ID, ShortSummary: "s", RelevanceScore: 6, TopicTags: []string{"ehr"}}))

	ids := func() map[string]bool {
		rows, err := db.Articles().ListNeedingViewpoints(ctx, ViewpointQuery{MinRelevance: 6, Kind: core.PersonaAnalyst})
		require.NoError(t, err)
		out := make(map[string]bool)
		for _, r := range rows {
			out[r.Article.ID] = true
			if r.Article.ID == six.ID {
				assert.Equal(t, []string{"ehr"}, r.Summary.TopicTags)
			}
		}
		return out
	}

	got := ids()
	assert.False(t, got[five.ID], "relevance 5 must not be selected")
	assert.True(t, got[six.ID], "relevance 6 must be selected")

	// An output brief does not count as analyst coverage.
	output := newPersona(t, db, core.PersonaOutput)
	require.NoError(t, db.Viewpoints().Upsert(ctx, &core.Viewpoint{ArticleID: six.ID, PersonaID: output.ID, ViewpointText: "brief"}))
	assert.True(t, ids()[six.ID])

	analyst := newPersona(t, db, core.PersonaAnalyst)
	require.NoError(t, db.Viewpoints().Upsert(ctx, &core.Viewpoint{ArticleID: six.ID, PersonaID: analyst.ID, ViewpointText: "view"}))
	assert.False(t, ids()[six.ID])
}

func testMissingBriefs(t *testing.T, db Database) {
	ctx := context.Background()
	a := newArticle(t, db, "brief body")
	low := newArticle(t, db, "low body")
	require.NoError(t, db.Summaries().Upsert(ctx, &core.Summary{ArticleID: a.ID, ShortSummary: "s", RelevanceScore: 7}))
	require.NoError(t, db.Summaries().Upsert(ctx, &core.Summary{ArticleID: low.ID, ShortSummary: "s", RelevanceScore: 4}))
	analyst := newPersona(t, db, core.PersonaAnalyst)
	output := newPersona(t, db, core.PersonaOutput)

	listed := func(id string) bool {
		rows, err := db.Articles().ListMissingBriefs(ctx, ViewpointQuery{MinRelevance: 6})
		require.NoError(t, err)
		for _, r := range rows {
			if r.Article.ID == id {
				return true
			}
		}
		return false
	}

	assert.False(t, listed(a.ID), "no analyst viewpoint yet")

	for _, id := range []string{a.ID, low.ID} {
		require.NoError(t, db.Viewpoints().Upsert(ctx, &core.Viewpoint{ArticleID: id, PersonaID: analyst.ID, ViewpointText: "view"}))
	}
	assert.True(t, listed(a.ID))
	assert.False(t, listed(low.ID), "below the relevance threshold")

	require.NoError(t, db.Viewpoints().Upsert(ctx, &core.Viewpoint{ArticleID: a.ID, PersonaID: output.ID, ViewpointText: "brief"}))
	outputs, err := db.Personas().List(ctx, core.PersonaOutput)
	require.NoError(t, err)
	for _, p := range outputs {
		if !p.Enabled {
			continue
		}
		require.NoError(t, db.Viewpoints().Upsert(ctx, &core.Viewpoint{ArticleID: a.ID, PersonaID: p.ID, ViewpointText: "brief"}))
	}
	assert.False(t, listed(a.ID), "every output persona has a brief")
}

func testSourceErrorTracking(t *testing.T, db Database) {
	ctx := context.Background()
	s := &core.Source{Name: "Source " + suffix(), URL: "https://example.com", Kind: core.SourceKindRSS, Priority: 1, Enabled: true}
	require.NoError(t, db.Sources().Upsert(ctx, s))
	require.NoError(t, db.Sources().RecordFetchError(ctx, s.ID, "timeout"))
	require.NoError(t, db.Sources().RecordFetchError(ctx, s.ID, "404"))

	find := func() core.Source {
		all, err := db.Sources().List(ctx)
		require.NoError(t, err)
		for _, candidate := range all {
			if candidate.ID == s.ID {
				return candidate
			}
		}
		t.Fatalf("source %s not listed", s.Name)
		return core.Source{}
	}

	got := find()
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, "404", got.LastError)

	require.NoError(t, db.Sources().RecordFetchSuccess(ctx, s.ID, time.Now().UTC()))
	got = find()
	assert.Equal(t, 0, got.ErrorCount)
	assert.Empty(t, got.LastError)
	assert.NotNil(t, got.LastFetchedAt)

	s.Enabled = false
	id := s.ID
	s.ID = ""
	require.NoError(t, db.Sources().Upsert(ctx, s))
	assert.Equal(t, id, s.ID)

	enabled, err := db.Sources().ListEnabled(ctx)
	require.NoError(t, err)
	for _, e := range enabled {
		assert.NotEqual(t, id, e.ID)
	}
}

func testRunLock(t *testing.T, db Database) {
	ctx := context.Background()
	name := "test-run-" + suffix()

	release, ok, err := db.AcquireRunLock(ctx, name)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = db.AcquireRunLock(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	release()
	release2, ok, err := db.AcquireRunLock(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func testAgentLogByRun(t *testing.T, db Database) {
	ctx := context.Background()
	runID := uuid.NewString()
	for _, status := range []core.AgentLogStatus{core.LogStarted, core.LogWarning, core.LogSuccess} {
		require.NoError(t, db.AgentLogs().Append(ctx, &core.AgentLog{
			AgentName: "ingestion", Action: "run", Status: status, RunID: runID,
			Details: map[string]any{"status": string(status)},
		}))
	}

	logs, err := db.AgentLogs().ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, core.LogStarted, logs[0].Status)
	assert.Equal(t, core.LogSuccess, logs[2].Status)
	assert.Equal(t, "warning", logs[1].Details["status"])
}
