package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"healthwire/internal/core"
)

// textArray binds a Go slice to a NOT NULL text[] column.
func textArray(values []string) interface{} {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}

func jsonObject(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ---------------------------------------------------------------------------
// Sources

type postgresSourceRepo struct {
	db *sql.DB
}

var sourceColumns = []string{
	"id", "name", "url", "kind", "feed_url", "scrape_selector", "priority",
	"enabled", "error_count", "last_error", "last_fetched_at",
}

func (r *postgresSourceRepo) ListEnabled(ctx context.Context) ([]core.Source, error) {
	return r.list(ctx, sq.Eq{"enabled": true})
}

func (r *postgresSourceRepo) List(ctx context.Context) ([]core.Source, error) {
	return r.list(ctx, nil)
}

func (r *postgresSourceRepo) list(ctx context.Context, pred sq.Sqlizer) ([]core.Source, error) {
	builder := psql.Select(sourceColumns...).From("sources").OrderBy("priority ASC", "name ASC")
	if pred != nil {
		builder = builder.Where(pred)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build source query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []core.Source
	for rows.Next() {
		var s core.Source
		var lastFetched sql.NullTime
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.Kind, &s.FeedURL, &s.ScrapeSelector,
			&s.Priority, &s.Enabled, &s.ErrorCount, &s.LastError, &lastFetched); err != nil {
			return nil, err
		}
		s.LastFetchedAt = timePtr(lastFetched)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *postgresSourceRepo) Upsert(ctx context.Context, s *core.Source) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `
		INSERT INTO sources (id, name, url, kind, feed_url, scrape_selector, priority, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			url = EXCLUDED.url,
			kind = EXCLUDED.kind,
			feed_url = EXCLUDED.feed_url,
			scrape_selector = EXCLUDED.scrape_selector,
			priority = EXCLUDED.priority,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.Name, s.URL, s.Kind, s.FeedURL, s.ScrapeSelector, s.Priority, s.Enabled,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", s.Name, err)
	}
	return nil
}

func (r *postgresSourceRepo) RecordFetchError(ctx context.Context, id string, message string) error {
	return execOne(ctx, r.db, `
		UPDATE sources SET error_count = error_count + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, message)
}

func (r *postgresSourceRepo) RecordFetchSuccess(ctx context.Context, id string, at time.Time) error {
	return execOne(ctx, r.db, `
		UPDATE sources SET error_count = 0, last_error = '', last_fetched_at = $2, updated_at = NOW()
		WHERE id = $1`, id, at)
}

// execOne runs an UPDATE and maps zero affected rows to ErrNotFound.
func execOne(ctx context.Context, db *sql.DB, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Articles

type postgresArticleRepo struct {
	db *sql.DB
}

const articleSelect = `
	SELECT a.id, a.source_id, a.url, a.title, a.author, a.published_date,
		   a.raw_content, a.content_hash, a.processing_status, a.created_at, a.updated_at
`

func scanArticle(row rowScanner, extra ...interface{}) (*core.Article, error) {
	var a core.Article
	var sourceID sql.NullString
	var published sql.NullTime
	dest := []interface{}{
		&a.ID, &sourceID, &a.URL, &a.Title, &a.Author, &published,
		&a.RawContent, &a.ContentHash, &a.ProcessingStatus, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	a.SourceID = stringPtr(sourceID)
	a.PublishedDate = timePtr(published)
	return &a, nil
}

func (r *postgresArticleRepo) Exists(ctx context.Context, contentHash, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE content_hash = $1 OR url = $2)`,
		contentHash, url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article existence: %w", err)
	}
	return exists, nil
}

func (r *postgresArticleRepo) Upsert(ctx context.Context, a *core.Article) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = core.StatusScraped
	}
	query := `
		INSERT INTO articles (
			id, source_id, url, title, author, published_date,
			raw_content, content_hash, processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			published_date = COALESCE(EXCLUDED.published_date, articles.published_date),
			raw_content = EXCLUDED.raw_content,
			content_hash = EXCLUDED.content_hash,
			source_id = COALESCE(EXCLUDED.source_id, articles.source_id),
			updated_at = NOW()
		RETURNING id, processing_status, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID, nullString(a.SourceID), a.URL, a.Title, a.Author, nullTime(a.PublishedDate),
		a.RawContent, a.ContentHash, a.ProcessingStatus,
	).Scan(&a.ID, &a.ProcessingStatus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert article %s: %w", a.URL, err)
	}
	return nil
}

func (r *postgresArticleRepo) Get(ctx context.Context, id string) (*core.Article, error) {
	row := r.db.QueryRowContext(ctx, articleSelect+` FROM articles a WHERE a.id = $1`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *postgresArticleRepo) AdvanceStatus(ctx context.Context, id string, status core.ProcessingStatus) error {
	rank := status.Rank()
	if rank < 0 {
		return fmt.Errorf("unknown processing status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE articles SET processing_status = $2, updated_at = NOW()
		WHERE id = $1 AND (CASE processing_status
			WHEN 'scraped' THEN 0
			WHEN 'extracted' THEN 1
			WHEN 'summarized' THEN 2
			WHEN 'reviewed' THEN 3
		END) < $3`, id, status, rank)
	if err != nil {
		return fmt.Errorf("failed to advance article %s to %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Nothing moved: either the article is already past status or it is gone.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *postgresArticleRepo) ListNeedingViewpoints(ctx context.Context, q ViewpointQuery) ([]core.ArticleWithSummary, error) {
	kind := q.Kind
	if kind == "" {
		kind = core.PersonaAnalyst
	}
	builder := selectWithSummary(q).
		Where(`NOT EXISTS (
			SELECT 1 FROM viewpoints v JOIN personas p ON p.id = v.persona_id
			WHERE v.article_id = a.id AND p.kind = ?)`, kind)
	return r.listWithSummary(ctx, builder, "articles needing viewpoints")
}

func (r *postgresArticleRepo) ListMissingBriefs(ctx context.Context, q ViewpointQuery) ([]core.ArticleWithSummary, error) {
	builder := selectWithSummary(q).
		Where(`EXISTS (
			SELECT 1 FROM viewpoints v JOIN personas p ON p.id = v.persona_id
			WHERE v.article_id = a.id AND p.kind = ?)`, core.PersonaAnalyst).
		Where(`EXISTS (
			SELECT 1 FROM personas op
			WHERE op.kind = ? AND op.enabled
			AND NOT EXISTS (SELECT 1 FROM viewpoints ov WHERE ov.article_id = a.id AND ov.persona_id = op.id))`, core.PersonaOutput)
	return r.listWithSummary(ctx, builder, "articles missing briefs")
}

// selectWithSummary joins summarized articles at or above the threshold,
// highest relevance first.
func selectWithSummary(q ViewpointQuery) sq.SelectBuilder {
	builder := psql.Select(
		"a.id", "a.source_id", "a.url", "a.title", "a.author", "a.published_date",
		"a.raw_content", "a.content_hash", "a.processing_status", "a.created_at", "a.updated_at",
		"s.short_summary", "s.key_takeaways", "s.topic_tags", "s.relevance_score", "s.model_used", "s.created_at",
	).
		From("articles a").
		Join("summaries s ON s.article_id = a.id").
		Where(sq.GtOrEq{"s.relevance_score": q.MinRelevance}).
		OrderBy("s.relevance_score DESC", "a.created_at ASC")
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	return builder
}

func (r *postgresArticleRepo) listWithSummary(ctx context.Context, builder sq.SelectBuilder, what string) ([]core.ArticleWithSummary, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query for %s: %w", what, err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer rows.Close()

	var out []core.ArticleWithSummary
	for rows.Next() {
		var s core.Summary
		a, err := scanArticle(rows,
			&s.ShortSummary, pq.Array(&s.KeyTakeaways), pq.Array(&s.TopicTags),
			&s.RelevanceScore, &s.ModelUsed, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		s.ArticleID = a.ID
		out = append(out, core.ArticleWithSummary{Article: *a, Summary: s})
	}
	return out, rows.Err()
}

func (r *postgresArticleRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n)
	return n, err
}

// ---------------------------------------------------------------------------
// Entities

type postgresEntityRepo struct {
	db *sql.DB
}

func (r *postgresEntityRepo) UpsertOrganization(ctx context.Context, org *core.Organization) error {
	if org.Type == "" {
		org.Type = core.OrgOther
	}
	// A typed mention upgrades an organization first seen as "other".
	query := `
		INSERT INTO organizations (id, canonical_name, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (canonical_name) DO UPDATE SET
			type = CASE WHEN organizations.type = 'other' THEN EXCLUDED.type ELSE organizations.type END
		RETURNING id, type
	`
	err := r.db.QueryRowContext(ctx, query, uuid.NewString(), org.CanonicalName, org.Type).
		Scan(&org.ID, &org.Type)
	if err != nil {
		return fmt.Errorf("failed to upsert organization %s: %w", org.CanonicalName, err)
	}
	return nil
}

func (r *postgresEntityRepo) UpsertTechnology(ctx context.Context, tech *core.Technology) error {
	query := `
		INSERT INTO technologies (id, canonical_name, category, vendor_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (canonical_name) DO UPDATE SET
			category = CASE WHEN technologies.category = '' THEN EXCLUDED.category ELSE technologies.category END,
			vendor_id = COALESCE(technologies.vendor_id, EXCLUDED.vendor_id)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		uuid.NewString(), tech.CanonicalName, tech.Category, nullString(tech.VendorID),
	).Scan(&tech.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert technology %s: %w", tech.CanonicalName, err)
	}
	return nil
}

func (r *postgresEntityRepo) FindOrCreatePerson(ctx context.Context, p *core.Person) error {
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM people WHERE name = $1 ORDER BY created_at LIMIT 1`, p.Name,
	).Scan(&p.ID)
	switch {
	case err == nil:
		_, err = r.db.ExecContext(ctx, `
			UPDATE people SET
				title = CASE WHEN title = '' THEN $2 ELSE title END,
				organization_id = COALESCE(organization_id, $3)
			WHERE id = $1`, p.ID, p.Title, nullString(p.OrganizationID))
		return err
	case errors.Is(err, sql.ErrNoRows):
		p.ID = uuid.NewString()
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO people (id, name, title, organization_id) VALUES ($1, $2, $3, $4)`,
			p.ID, p.Name, p.Title, nullString(p.OrganizationID))
		if err != nil {
			return fmt.Errorf("failed to insert person %s: %w", p.Name, err)
		}
		return nil
	default:
		return fmt.Errorf("failed to look up person %s: %w", p.Name, err)
	}
}

func (r *postgresEntityRepo) link(ctx context.Context, table, column string, link core.EntityLink) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (article_id, %s, confidence) VALUES ($1, $2, $3)
		ON CONFLICT (article_id, %s) DO NOTHING`, table, column, column)
	if _, err := r.db.ExecContext(ctx, query, link.ArticleID, link.EntityID, core.ClampConfidence(link.Confidence)); err != nil {
		return fmt.Errorf("failed to link %s: %w", table, err)
	}
	return nil
}

func (r *postgresEntityRepo) LinkOrganization(ctx context.Context, link core.EntityLink) error {
	return r.link(ctx, "article_organizations", "organization_id", link)
}

func (r *postgresEntityRepo) LinkPerson(ctx context.Context, link core.EntityLink) error {
	return r.link(ctx, "article_people", "person_id", link)
}

func (r *postgresEntityRepo) LinkTechnology(ctx context.Context, link core.EntityLink) error {
	return r.link(ctx, "article_technologies", "technology_id", link)
}

func (r *postgresEntityRepo) GetOrganizationByName(ctx context.Context, canonicalName string) (*core.Organization, error) {
	var org core.Organization
	err := r.db.QueryRowContext(ctx,
		`SELECT id, canonical_name, type FROM organizations WHERE canonical_name = $1`, canonicalName,
	).Scan(&org.ID, &org.CanonicalName, &org.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *postgresEntityRepo) ListOrganizations(ctx context.Context) ([]core.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, canonical_name, type FROM organizations ORDER BY canonical_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []core.Organization
	for rows.Next() {
		var org core.Organization
		if err := rows.Scan(&org.ID, &org.CanonicalName, &org.Type); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (r *postgresEntityRepo) OrganizationLinks(ctx context.Context, articleID string) ([]core.EntityLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT article_id, organization_id, confidence FROM article_organizations
		WHERE article_id = $1 ORDER BY organization_id`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []core.EntityLink
	for rows.Next() {
		var l core.EntityLink
		if err := rows.Scan(&l.ArticleID, &l.EntityID, &l.Confidence); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// ---------------------------------------------------------------------------
// Summaries

type postgresSummaryRepo struct {
	db *sql.DB
}

func (r *postgresSummaryRepo) Upsert(ctx context.Context, s *core.Summary) error {
	s.RelevanceScore = core.ClampRelevance(s.RelevanceScore)
	query := `
		INSERT INTO summaries (article_id, short_summary, key_takeaways, topic_tags, relevance_score, model_used)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (article_id) DO UPDATE SET
			short_summary = EXCLUDED.short_summary,
			key_takeaways = EXCLUDED.key_takeaways,
			topic_tags = EXCLUDED.topic_tags,
			relevance_score = EXCLUDED.relevance_score,
			model_used = EXCLUDED.model_used
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ArticleID, s.ShortSummary, textArray(s.KeyTakeaways), textArray(s.TopicTags),
		s.RelevanceScore, s.ModelUsed,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert summary for article %s: %w", s.ArticleID, err)
	}
	return nil
}

func (r *postgresSummaryRepo) GetByArticleID(ctx context.Context, articleID string) (*core.Summary, error) {
	var s core.Summary
	err := r.db.QueryRowContext(ctx, `
		SELECT article_id, short_summary, key_takeaways, topic_tags, relevance_score, model_used, created_at
		FROM summaries WHERE article_id = $1`, articleID,
	).Scan(&s.ArticleID, &s.ShortSummary, pq.Array(&s.KeyTakeaways), pq.Array(&s.TopicTags),
		&s.RelevanceScore, &s.ModelUsed, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ---------------------------------------------------------------------------
// Personas

type postgresPersonaRepo struct {
	db *sql.DB
}

func (r *postgresPersonaRepo) GetBySlug(ctx context.Context, slug string) (*core.Persona, error) {
	var p core.Persona
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, title, framework, kind, enabled FROM personas WHERE slug = $1`, slug,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.Title, &p.Framework, &p.Kind, &p.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresPersonaRepo) Upsert(ctx context.Context, p *core.Persona) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
		INSERT INTO personas (id, slug, name, title, framework, kind, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			title = EXCLUDED.title,
			framework = EXCLUDED.framework,
			kind = EXCLUDED.kind,
			enabled = EXCLUDED.enabled
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.Slug, p.Name, p.Title, p.Framework, p.Kind, p.Enabled,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert persona %s: %w", p.Slug, err)
	}
	return nil
}

func (r *postgresPersonaRepo) List(ctx context.Context, kind core.PersonaKind) ([]core.Persona, error) {
	builder := psql.Select("id", "slug", "name", "title", "framework", "kind", "enabled").
		From("personas").OrderBy("slug")
	if kind != "" {
		builder = builder.Where(sq.Eq{"kind": kind})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	defer rows.Close()

	var personas []core.Persona
	for rows.Next() {
		var p core.Persona
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Title, &p.Framework, &p.Kind, &p.Enabled); err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

// ---------------------------------------------------------------------------
// Transcripts

type postgresTranscriptRepo struct {
	db *sql.DB
}

func (r *postgresTranscriptRepo) Upsert(ctx context.Context, t *core.Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.ProcessingStatus == "" {
		t.ProcessingStatus = "processed"
	}
	query := `
		INSERT INTO transcripts (id, persona_id, video_id, raw_transcript, topic_tags, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (video_id) DO UPDATE SET
			persona_id = EXCLUDED.persona_id,
			raw_transcript = EXCLUDED.raw_transcript,
			topic_tags = EXCLUDED.topic_tags,
			processing_status = EXCLUDED.processing_status
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		t.ID, t.PersonaID, t.VideoID, t.RawTranscript, textArray(t.TopicTags), t.ProcessingStatus,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert transcript %s: %w", t.VideoID, err)
	}
	return nil
}

func (r *postgresTranscriptRepo) ListByPersona(ctx context.Context, personaID string) ([]core.Transcript, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, persona_id, video_id, raw_transcript, topic_tags, processing_status, created_at
		FROM transcripts WHERE persona_id = $1 ORDER BY created_at DESC`, personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []core.Transcript
	for rows.Next() {
		var t core.Transcript
		if err := rows.Scan(&t.ID, &t.PersonaID, &t.VideoID, &t.RawTranscript,
			pq.Array(&t.TopicTags), &t.ProcessingStatus, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Viewpoints

type postgresViewpointRepo struct {
	db *sql.DB
}

func (r *postgresViewpointRepo) Upsert(ctx context.Context, v *core.Viewpoint) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	metadata, err := jsonObject(v.GenerationMetadata)
	if err != nil {
		return fmt.Errorf("failed to marshal generation metadata: %w", err)
	}
	query := `
		INSERT INTO viewpoints (
			id, article_id, persona_id, viewpoint_text, key_insights,
			confidence_score, model_used, generation_metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (article_id, persona_id) DO UPDATE SET
			viewpoint_text = EXCLUDED.viewpoint_text,
			key_insights = EXCLUDED.key_insights,
			confidence_score = EXCLUDED.confidence_score,
			model_used = EXCLUDED.model_used,
			generation_metadata = EXCLUDED.generation_metadata,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		v.ID, v.ArticleID, v.PersonaID, v.ViewpointText, textArray(v.KeyInsights),
		core.ClampConfidence(v.ConfidenceScore), v.ModelUsed, metadata,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert viewpoint for article %s: %w", v.ArticleID, err)
	}
	return nil
}

const viewpointSelect = `
	SELECT id, article_id, persona_id, viewpoint_text, key_insights, confidence_score,
		   model_used, generation_metadata, created_at, updated_at
	FROM viewpoints
`

func scanViewpoint(row rowScanner) (*core.Viewpoint, error) {
	var v core.Viewpoint
	var metadata []byte
	if err := row.Scan(&v.ID, &v.ArticleID, &v.PersonaID, &v.ViewpointText, pq.Array(&v.KeyInsights),
		&v.ConfidenceScore, &v.ModelUsed, &metadata, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &v.GenerationMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal generation metadata: %w", err)
		}
	}
	return &v, nil
}

func (r *postgresViewpointRepo) Get(ctx context.Context, articleID, personaID string) (*core.Viewpoint, error) {
	row := r.db.QueryRowContext(ctx, viewpointSelect+` WHERE article_id = $1 AND persona_id = $2`, articleID, personaID)
	v, err := scanViewpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *postgresViewpointRepo) ListByArticle(ctx context.Context, articleID string) ([]core.Viewpoint, error) {
	rows, err := r.db.QueryContext(ctx, viewpointSelect+` WHERE article_id = $1 ORDER BY created_at`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list viewpoints: %w", err)
	}
	defer rows.Close()

	var out []core.Viewpoint
	for rows.Next() {
		v, err := scanViewpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Agent logs

type postgresAgentLogRepo struct {
	db *sql.DB
}

func (r *postgresAgentLogRepo) Append(ctx context.Context, entry *core.AgentLog) error {
	details, err := jsonObject(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal log details: %w", err)
	}
	var runID sql.NullString
	if entry.RunID != "" {
		runID = sql.NullString{String: entry.RunID, Valid: true}
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO agent_logs (agent_name, action, status, details, run_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, timestamp`,
		entry.AgentName, entry.Action, entry.Status, details, runID,
	).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append agent log: %w", err)
	}
	return nil
}

func (r *postgresAgentLogRepo) ListByRun(ctx context.Context, runID string) ([]core.AgentLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, agent_name, action, status, details, COALESCE(run_id, '')
		FROM agent_logs WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.AgentLog
	for rows.Next() {
		var l core.AgentLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.AgentName, &l.Action, &l.Status, &details, &l.RunID); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &l.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
