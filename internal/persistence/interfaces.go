// Package persistence provides the relational store behind the pipelines.
// Every write is an upsert by natural key or an insert-or-ignore on a junction
// table, so a whole run can be retried without creating duplicate rows.
package persistence

import (
	"context"
	"errors"
	"time"

	"healthwire/internal/core"
)

// ErrNotFound is returned when a lookup by id or natural key matches no row.
var ErrNotFound = errors.New("persistence: not found")

// SourceRepository handles configured news sources
type SourceRepository interface {
	// ListEnabled returns enabled sources ordered by priority, then name
	ListEnabled(ctx context.Context) ([]core.Source, error)

	// List returns every source in the same order as ListEnabled
	List(ctx context.Context) ([]core.Source, error)

	// Upsert inserts or updates a source by name and sets source.ID
	Upsert(ctx context.Context, source *core.Source) error

	// RecordFetchError increments the error counter and stores the message
	RecordFetchError(ctx context.Context, id string, message string) error

	// RecordFetchSuccess clears the error state and stamps the fetch time
	RecordFetchSuccess(ctx context.Context, id string, at time.Time) error
}

// ViewpointQuery selects summarized articles that still lack a viewpoint
// from any persona of Kind.
type ViewpointQuery struct {
	MinRelevance int
	Kind         core.PersonaKind
	Limit        int
}

// ArticleRepository handles article persistence operations
type ArticleRepository interface {
	// Exists reports whether an article with this content hash or URL is stored
	Exists(ctx context.Context, contentHash, url string) (bool, error)

	// Upsert inserts or updates an article by URL. The row id is stable across
	// re-ingestion and processing status is never moved backwards.
	Upsert(ctx context.Context, article *core.Article) error

	// Get retrieves an article by ID
	Get(ctx context.Context, id string) (*core.Article, error)

	// AdvanceStatus moves the article forward to status; older statuses are ignored
	AdvanceStatus(ctx context.Context, id string, status core.ProcessingStatus) error

	// ListNeedingViewpoints returns summarized articles at or above the
	// relevance threshold with no viewpoint of the requested persona kind
	ListNeedingViewpoints(ctx context.Context, q ViewpointQuery) ([]core.ArticleWithSummary, error)

	// ListMissingBriefs returns summarized articles at or above the relevance
	// threshold that already have an analyst viewpoint but lack a brief from
	// at least one enabled output persona. q.Kind is ignored.
	ListMissingBriefs(ctx context.Context, q ViewpointQuery) ([]core.ArticleWithSummary, error)

	// Count returns the number of stored articles
	Count(ctx context.Context) (int, error)
}

// EntityRepository handles canonical entities and their article junctions
type EntityRepository interface {
	// UpsertOrganization inserts or fetches an organization by canonical name
	UpsertOrganization(ctx context.Context, org *core.Organization) error

	// UpsertTechnology inserts or fetches a technology by canonical name
	UpsertTechnology(ctx context.Context, tech *core.Technology) error

	// FindOrCreatePerson matches by exact name, creating the row when absent
	FindOrCreatePerson(ctx context.Context, person *core.Person) error

	// Link* insert a junction row and do nothing when the pair already exists
	LinkOrganization(ctx context.Context, link core.EntityLink) error
	LinkPerson(ctx context.Context, link core.EntityLink) error
	LinkTechnology(ctx context.Context, link core.EntityLink) error

	// GetOrganizationByName looks up an organization by canonical name
	GetOrganizationByName(ctx context.Context, canonicalName string) (*core.Organization, error)

	// ListOrganizations returns every organization ordered by canonical name
	ListOrganizations(ctx context.Context) ([]core.Organization, error)

	// OrganizationLinks returns the organization junction rows for an article
	OrganizationLinks(ctx context.Context, articleID string) ([]core.EntityLink, error)
}

// SummaryRepository handles the one-per-article summary
type SummaryRepository interface {
	// Upsert inserts or replaces the summary for summary.ArticleID
	Upsert(ctx context.Context, summary *core.Summary) error

	// GetByArticleID retrieves the summary for an article
	GetByArticleID(ctx context.Context, articleID string) (*core.Summary, error)
}

// PersonaRepository handles analyst, output and roundtable persona rows
type PersonaRepository interface {
	// GetBySlug retrieves a persona by slug
	GetBySlug(ctx context.Context, slug string) (*core.Persona, error)

	// Upsert inserts or updates a persona by slug and sets persona.ID
	Upsert(ctx context.Context, persona *core.Persona) error

	// List returns personas of a kind ordered by slug; an empty kind lists all
	List(ctx context.Context, kind core.PersonaKind) ([]core.Persona, error)
}

// TranscriptRepository handles voice-grounding transcripts
type TranscriptRepository interface {
	// Upsert inserts or replaces a transcript by video ID
	Upsert(ctx context.Context, transcript *core.Transcript) error

	// ListByPersona returns a persona's transcripts, newest first
	ListByPersona(ctx context.Context, personaID string) ([]core.Transcript, error)
}

// ViewpointRepository handles persona-authored viewpoints and briefs
type ViewpointRepository interface {
	// Upsert inserts a viewpoint or replaces the text of the existing
	// (article, persona) row
	Upsert(ctx context.Context, viewpoint *core.Viewpoint) error

	// Get retrieves the viewpoint for an (article, persona) pair
	Get(ctx context.Context, articleID, personaID string) (*core.Viewpoint, error)

	// ListByArticle returns every viewpoint for an article
	ListByArticle(ctx context.Context, articleID string) ([]core.Viewpoint, error)
}

// AgentLogRepository handles the append-only run audit log
type AgentLogRepository interface {
	// Append writes a log row and sets entry.ID and entry.Timestamp
	Append(ctx context.Context, entry *core.AgentLog) error

	// ListByRun returns the rows written by one run in insertion order
	ListByRun(ctx context.Context, runID string) ([]core.AgentLog, error)
}

// Database provides access to all repositories
type Database interface {
	Sources() SourceRepository
	Articles() ArticleRepository
	Entities() EntityRepository
	Summaries() SummaryRepository
	Personas() PersonaRepository
	Transcripts() TranscriptRepository
	Viewpoints() ViewpointRepository
	AgentLogs() AgentLogRepository

	// AcquireRunLock takes a named, non-blocking run lock. ok is false when
	// another holder has it; release must be called once when ok is true.
	AcquireRunLock(ctx context.Context, name string) (release func(), ok bool, err error)

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error

	// Close closes the database connection
	Close() error
}
