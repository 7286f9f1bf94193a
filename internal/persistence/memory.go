package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"healthwire/internal/core"
)

// MemoryDB is an in-process Database with the same natural-key, junction and
// threshold semantics as PostgresDB. It backs tests and dry runs.
type MemoryDB struct {
	mu sync.Mutex

	sources     map[string]*core.Source // by id
	articles    map[string]*core.Article
	orgs        map[string]*core.Organization // by canonical name
	techs       map[string]*core.Technology
	people      []*core.Person
	orgLinks    map[[2]string]float64
	personLinks map[[2]string]float64
	techLinks   map[[2]string]float64
	summaries   map[string]*core.Summary // by article id
	personas    map[string]*core.Persona // by slug
	transcripts map[string]*core.Transcript
	viewpoints  map[[2]string]*core.Viewpoint
	logs        []core.AgentLog
	locks       map[string]bool
	seq         int64

	now func() time.Time
}

var _ Database = (*MemoryDB)(nil)

// NewMemoryDB creates an empty in-memory store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		sources:     make(map[string]*core.Source),
		articles:    make(map[string]*core.Article),
		orgs:        make(map[string]*core.Organization),
		techs:       make(map[string]*core.Technology),
		orgLinks:    make(map[[2]string]float64),
		personLinks: make(map[[2]string]float64),
		techLinks:   make(map[[2]string]float64),
		summaries:   make(map[string]*core.Summary),
		personas:    make(map[string]*core.Persona),
		transcripts: make(map[string]*core.Transcript),
		viewpoints:  make(map[[2]string]*core.Viewpoint),
		locks:       make(map[string]bool),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryDB) Sources() SourceRepository         { return memSources{m} }
func (m *MemoryDB) Articles() ArticleRepository       { return memArticles{m} }
func (m *MemoryDB) Entities() EntityRepository        { return memEntities{m} }
func (m *MemoryDB) Summaries() SummaryRepository      { return memSummaries{m} }
func (m *MemoryDB) Personas() PersonaRepository       { return memPersonas{m} }
func (m *MemoryDB) Transcripts() TranscriptRepository { return memTranscripts{m} }
func (m *MemoryDB) Viewpoints() ViewpointRepository   { return memViewpoints{m} }
func (m *MemoryDB) AgentLogs() AgentLogRepository     { return memAgentLogs{m} }

func (m *MemoryDB) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MemoryDB) Close() error                   { return nil }

func (m *MemoryDB) AcquireRunLock(ctx context.Context, name string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[name] {
		return nil, false, nil
	}
	m.locks[name] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.locks, name)
			m.mu.Unlock()
		})
	}, true, nil
}

// PersonLinkCount and TechnologyLinkCount expose junction sizes to tests.
func (m *MemoryDB) PersonLinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.personLinks)
}

func (m *MemoryDB) TechnologyLinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.techLinks)
}

// PeopleCount returns the number of stored people.
func (m *MemoryDB) PeopleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.people)
}

// ---------------------------------------------------------------------------

type memSources struct{ m *MemoryDB }

func (r memSources) ListEnabled(ctx context.Context) ([]core.Source, error) {
	return r.list(true), nil
}

func (r memSources) List(ctx context.Context) ([]core.Source, error) {
	return r.list(false), nil
}

func (r memSources) list(enabledOnly bool) []core.Source {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var out []core.Source
	for _, s := range r.m.sources {
		if enabledOnly && !s.Enabled {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r memSources) Upsert(ctx context.Context, s *core.Source) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, existing := range r.m.sources {
		if existing.Name == s.Name {
			s.ID = existing.ID
			s.ErrorCount, s.LastError, s.LastFetchedAt = existing.ErrorCount, existing.LastError, existing.LastFetchedAt
			cp := *s
			r.m.sources[s.ID] = &cp
			return nil
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	r.m.sources[s.ID] = &cp
	return nil
}

func (r memSources) RecordFetchError(ctx context.Context, id string, message string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sources[id]
	if !ok {
		return ErrNotFound
	}
	s.ErrorCount++
	s.LastError = message
	return nil
}

func (r memSources) RecordFetchSuccess(ctx context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sources[id]
	if !ok {
		return ErrNotFound
	}
	s.ErrorCount = 0
	s.LastError = ""
	s.LastFetchedAt = &at
	return nil
}

// ---------------------------------------------------------------------------

type memArticles struct{ m *MemoryDB }

func (r memArticles) Exists(ctx context.Context, contentHash, url string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.articles {
		if a.ContentHash == contentHash || a.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (r memArticles) Upsert(ctx context.Context, a *core.Article) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	now := r.m.now()
	for _, existing := range r.m.articles {
		if existing.URL != a.URL {
			continue
		}
		existing.Title = a.Title
		existing.Author = a.Author
		if a.PublishedDate != nil {
			existing.PublishedDate = a.PublishedDate
		}
		if a.SourceID != nil {
			existing.SourceID = a.SourceID
		}
		existing.RawContent = a.RawContent
		existing.ContentHash = a.ContentHash
		existing.UpdatedAt = now
		*a = *existing
		return nil
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = core.StatusScraped
	}
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	r.m.articles[a.ID] = &cp
	return nil
}

func (r memArticles) Get(ctx context.Context, id string) (*core.Article, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memArticles) AdvanceStatus(ctx context.Context, id string, status core.ProcessingStatus) error {
	if status.Rank() < 0 {
		return fmt.Errorf("unknown processing status %q", status)
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.articles[id]
	if !ok {
		return ErrNotFound
	}
	if a.ProcessingStatus.Rank() < status.Rank() {
		a.ProcessingStatus = status
		a.UpdatedAt = r.m.now()
	}
	return nil
}

func (r memArticles) ListNeedingViewpoints(ctx context.Context, q ViewpointQuery) ([]core.ArticleWithSummary, error) {
	kind := q.Kind
	if kind == "" {
		kind = core.PersonaAnalyst
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	kindByPersonaID := make(map[string]core.PersonaKind, len(r.m.personas))
	for _, p := range r.m.personas {
		kindByPersonaID[p.ID] = p.Kind
	}
	covered := make(map[string]bool)
	for key := range r.m.viewpoints {
		if kindByPersonaID[key[1]] == kind {
			covered[key[0]] = true
		}
	}
	return r.m.withSummaries(q, func(articleID string) bool { return !covered[articleID] }), nil
}

func (r memArticles) ListMissingBriefs(ctx context.Context, q ViewpointQuery) ([]core.ArticleWithSummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	analystIDs := make(map[string]bool)
	var outputIDs []string
	for _, p := range r.m.personas {
		switch {
		case p.Kind == core.PersonaAnalyst:
			analystIDs[p.ID] = true
		case p.Kind == core.PersonaOutput && p.Enabled:
			outputIDs = append(outputIDs, p.ID)
		}
	}
	analyzed := make(map[string]bool)
	for key := range r.m.viewpoints {
		if analystIDs[key[1]] {
			analyzed[key[0]] = true
		}
	}

	return r.m.withSummaries(q, func(articleID string) bool {
		if !analyzed[articleID] {
			return false
		}
		for _, id := range outputIDs {
			if _, ok := r.m.viewpoints[[2]string{articleID, id}]; !ok {
				return true
			}
		}
		return false
	}), nil
}

// withSummaries lists summarized articles at or above the threshold that
// keep(articleID) accepts, highest relevance first. Callers hold m.mu.
func (m *MemoryDB) withSummaries(q ViewpointQuery, keep func(articleID string) bool) []core.ArticleWithSummary {
	var out []core.ArticleWithSummary
	for id, s := range m.summaries {
		a, ok := m.articles[id]
		if !ok || s.RelevanceScore < q.MinRelevance || !keep(id) {
			continue
		}
		out = append(out, core.ArticleWithSummary{Article: *a, Summary: cloneSummary(s)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Summary.RelevanceScore != out[j].Summary.RelevanceScore {
			return out[i].Summary.RelevanceScore > out[j].Summary.RelevanceScore
		}
		if !out[i].Article.CreatedAt.Equal(out[j].Article.CreatedAt) {
			return out[i].Article.CreatedAt.Before(out[j].Article.CreatedAt)
		}
		return out[i].Article.URL < out[j].Article.URL
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (r memArticles) Count(ctx context.Context) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return len(r.m.articles), nil
}

// ---------------------------------------------------------------------------

type memEntities struct{ m *MemoryDB }

func (r memEntities) UpsertOrganization(ctx context.Context, org *core.Organization) error {
	if org.Type == "" {
		org.Type = core.OrgOther
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if existing, ok := r.m.orgs[org.CanonicalName]; ok {
		if existing.Type == core.OrgOther {
			existing.Type = org.Type
		}
		*org = *existing
		return nil
	}
	org.ID = uuid.NewString()
	cp := *org
	r.m.orgs[org.CanonicalName] = &cp
	return nil
}

func (r memEntities) UpsertTechnology(ctx context.Context, tech *core.Technology) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if existing, ok := r.m.techs[tech.CanonicalName]; ok {
		if existing.Category == "" {
			existing.Category = tech.Category
		}
		if existing.VendorID == nil {
			existing.VendorID = tech.VendorID
		}
		tech.ID = existing.ID
		return nil
	}
	tech.ID = uuid.NewString()
	cp := *tech
	r.m.techs[tech.CanonicalName] = &cp
	return nil
}

func (r memEntities) FindOrCreatePerson(ctx context.Context, p *core.Person) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.people {
		if existing.Name != p.Name {
			continue
		}
		if existing.Title == "" {
			existing.Title = p.Title
		}
		if existing.OrganizationID == nil {
			existing.OrganizationID = p.OrganizationID
		}
		p.ID = existing.ID
		return nil
	}
	p.ID = uuid.NewString()
	cp := *p
	r.m.people = append(r.m.people, &cp)
	return nil
}

func link(m *MemoryDB, table map[[2]string]float64, l core.EntityLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[l.ArticleID]; !ok {
		return fmt.Errorf("article %s: %w", l.ArticleID, ErrNotFound)
	}
	key := [2]string{l.ArticleID, l.EntityID}
	if _, ok := table[key]; !ok {
		table[key] = core.ClampConfidence(l.Confidence)
	}
	return nil
}

func (r memEntities) LinkOrganization(ctx context.Context, l core.EntityLink) error {
	return link(r.m, r.m.orgLinks, l)
}

func (r memEntities) LinkPerson(ctx context.Context, l core.EntityLink) error {
	return link(r.m, r.m.personLinks, l)
}

func (r memEntities) LinkTechnology(ctx context.Context, l core.EntityLink) error {
	return link(r.m, r.m.techLinks, l)
}

func (r memEntities) GetOrganizationByName(ctx context.Context, canonicalName string) (*core.Organization, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	org, ok := r.m.orgs[canonicalName]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (r memEntities) ListOrganizations(ctx context.Context) ([]core.Organization, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]core.Organization, 0, len(r.m.orgs))
	for _, org := range r.m.orgs {
		out = append(out, *org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out, nil
}

func (r memEntities) OrganizationLinks(ctx context.Context, articleID string) ([]core.EntityLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []core.EntityLink
	for key, confidence := range r.m.orgLinks {
		if key[0] == articleID {
			out = append(out, core.EntityLink{ArticleID: key[0], EntityID: key[1], Confidence: confidence})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// ---------------------------------------------------------------------------

type memSummaries struct{ m *MemoryDB }

func cloneSummary(s *core.Summary) core.Summary {
	cp := *s
	cp.KeyTakeaways = append([]string(nil), s.KeyTakeaways...)
	cp.TopicTags = append([]string(nil), s.TopicTags...)
	return cp
}

func (r memSummaries) Upsert(ctx context.Context, s *core.Summary) error {
	s.RelevanceScore = core.ClampRelevance(s.RelevanceScore)
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.articles[s.ArticleID]; !ok {
		return fmt.Errorf("article %s: %w", s.ArticleID, ErrNotFound)
	}
	if existing, ok := r.m.summaries[s.ArticleID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else {
		s.CreatedAt = r.m.now()
	}
	cp := cloneSummary(s)
	r.m.summaries[s.ArticleID] = &cp
	return nil
}

func (r memSummaries) GetByArticleID(ctx context.Context, articleID string) (*core.Summary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.summaries[articleID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneSummary(s)
	return &cp, nil
}

// ---------------------------------------------------------------------------

type memPersonas struct{ m *MemoryDB }

func (r memPersonas) GetBySlug(ctx context.Context, slug string) (*core.Persona, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.personas[slug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPersonas) Upsert(ctx context.Context, p *core.Persona) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if existing, ok := r.m.personas[p.Slug]; ok {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.m.personas[p.Slug] = &cp
	return nil
}

func (r memPersonas) List(ctx context.Context, kind core.PersonaKind) ([]core.Persona, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []core.Persona
	for _, p := range r.m.personas {
		if kind == "" || p.Kind == kind {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// ---------------------------------------------------------------------------

type memTranscripts struct{ m *MemoryDB }

func (r memTranscripts) Upsert(ctx context.Context, t *core.Transcript) error {
	if t.ProcessingStatus == "" {
		t.ProcessingStatus = "processed"
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if existing, ok := r.m.transcripts[t.VideoID]; ok {
		t.ID, t.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		r.m.seq++
		t.CreatedAt = r.m.now().Add(time.Duration(r.m.seq))
	}
	cp := *t
	cp.TopicTags = append([]string(nil), t.TopicTags...)
	r.m.transcripts[t.VideoID] = &cp
	return nil
}

func (r memTranscripts) ListByPersona(ctx context.Context, personaID string) ([]core.Transcript, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []core.Transcript
	for _, t := range r.m.transcripts {
		if t.PersonaID == personaID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------

type memViewpoints struct{ m *MemoryDB }

func (r memViewpoints) Upsert(ctx context.Context, v *core.Viewpoint) error {
	v.ConfidenceScore = core.ClampConfidence(v.ConfidenceScore)
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.articles[v.ArticleID]; !ok {
		return fmt.Errorf("article %s: %w", v.ArticleID, ErrNotFound)
	}
	known := false
	for _, p := range r.m.personas {
		if p.ID == v.PersonaID {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("persona %s: %w", v.PersonaID, ErrNotFound)
	}

	now := r.m.now()
	key := [2]string{v.ArticleID, v.PersonaID}
	if existing, ok := r.m.viewpoints[key]; ok {
		v.ID, v.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	cp := *v
	cp.KeyInsights = append([]string(nil), v.KeyInsights...)
	r.m.viewpoints[key] = &cp
	return nil
}

func (r memViewpoints) Get(ctx context.Context, articleID, personaID string) (*core.Viewpoint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.viewpoints[[2]string{articleID, personaID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r memViewpoints) ListByArticle(ctx context.Context, articleID string) ([]core.Viewpoint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []core.Viewpoint
	for key, v := range r.m.viewpoints {
		if key[0] == articleID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].PersonaID, out[j].PersonaID) < 0 })
	return out, nil
}

// ---------------------------------------------------------------------------

type memAgentLogs struct{ m *MemoryDB }

func (r memAgentLogs) Append(ctx context.Context, entry *core.AgentLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.seq++
	entry.ID = r.m.seq
	entry.Timestamp = r.m.now()
	r.m.logs = append(r.m.logs, *entry)
	return nil
}

func (r memAgentLogs) ListByRun(ctx context.Context, runID string) ([]core.AgentLog, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []core.AgentLog
	for _, l := range r.m.logs {
		if l.RunID == runID {
			out = append(out, l)
		}
	}
	return out, nil
}
