package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SourceKind identifies the fetch strategy used for a Source.
type SourceKind string

const (
	SourceKindRSS     SourceKind = "rss"
	SourceKindSitemap SourceKind = "sitemap"
	SourceKindScrape  SourceKind = "scrape"
)

// Source is a configured news source that the ingestion run polls.
type Source struct {
	ID             string     `json:"id" yaml:"-"`                                      // Unique identifier for the source
	Name           string     `json:"name" yaml:"name"`                                 // Human-readable name (natural key for seeding)
	URL            string     `json:"url" yaml:"url"`                                   // Landing page URL
	Kind           SourceKind `json:"kind" yaml:"kind"`                                 // rss, sitemap or scrape
	FeedURL        string     `json:"feed_url,omitempty" yaml:"feed_url"`               // Feed or sitemap URL when different from URL
	ScrapeSelector string     `json:"scrape_selector,omitempty" yaml:"scrape_selector"` // CSS selector for scrape sources
	Priority       int        `json:"priority" yaml:"priority"`                         // Lower runs first
	Enabled        bool       `json:"enabled" yaml:"enabled"`                           // Whether the source is polled
	ErrorCount     int        `json:"error_count" yaml:"-"`                             // Consecutive fetch failures
	LastError      string     `json:"last_error,omitempty" yaml:"-"`                    // Last fetch failure message
	LastFetchedAt  *time.Time `json:"last_fetched_at,omitempty" yaml:"-"`               // Last successful fetch
}

// Endpoint returns the URL the fetch strategy should request.
func (s Source) Endpoint() string {
	if s.FeedURL != "" {
		return s.FeedURL
	}
	return s.URL
}

// ProcessingStatus tracks how far an article has advanced through enrichment.
type ProcessingStatus string

const (
	StatusScraped    ProcessingStatus = "scraped"
	StatusExtracted  ProcessingStatus = "extracted"
	StatusSummarized ProcessingStatus = "summarized"
	StatusReviewed   ProcessingStatus = "reviewed"
)

// Rank orders statuses so transitions can only move forward.
func (s ProcessingStatus) Rank() int {
	switch s {
	case StatusScraped:
		return 0
	case StatusExtracted:
		return 1
	case StatusSummarized:
		return 2
	case StatusReviewed:
		return 3
	default:
		return -1
	}
}

// Article is a unique piece of content discovered from a Source.
type Article struct {
	ID               string           `json:"id"`
	SourceID         *string          `json:"source_id,omitempty"`
	URL              string           `json:"url"` // Natural key
	Title            string           `json:"title"`
	Author           string           `json:"author,omitempty"`
	PublishedDate    *time.Time       `json:"published_date,omitempty"`
	RawContent       string           `json:"raw_content"`
	ContentHash      string           `json:"content_hash"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HashContent returns the hex sha256 digest used for content deduplication.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// OrganizationType classifies a canonical organization.
type OrganizationType string

const (
	OrgHealthSystem OrganizationType = "health_system"
	OrgVendor       OrganizationType = "vendor"
	OrgPayer        OrganizationType = "payer"
	OrgStartup      OrganizationType = "startup"
	OrgAgency       OrganizationType = "agency"
	OrgOther        OrganizationType = "other"
)

// ParseOrganizationType maps free text onto a known type, defaulting to other.
func ParseOrganizationType(s string) OrganizationType {
	switch OrganizationType(s) {
	case OrgHealthSystem, OrgVendor, OrgPayer, OrgStartup, OrgAgency:
		return OrganizationType(s)
	}
	return OrgOther
}

// Organization is a canonical organization; CanonicalName is its identity.
type Organization struct {
	ID            string           `json:"id"`
	CanonicalName string           `json:"canonical_name"`
	Type          OrganizationType `json:"type"`
}

// Person is a weakly identified individual, matched by exact name.
type Person struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Title          string  `json:"title,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
}

// Technology is a canonical technology; CanonicalName is its identity.
type Technology struct {
	ID            string  `json:"id"`
	CanonicalName string  `json:"canonical_name"`
	Category      string  `json:"category"`
	VendorID      *string `json:"vendor_id,omitempty"`
}

// EntityLink is one row of an article-to-entity junction table.
type EntityLink struct {
	ArticleID  string  `json:"article_id"`
	EntityID   string  `json:"entity_id"`
	Confidence float64 `json:"confidence"`
}

// Summary is the one-per-article AI summary.
type Summary struct {
	ArticleID      string    `json:"article_id"`
	ShortSummary   string    `json:"short_summary"`
	KeyTakeaways   []string  `json:"key_takeaways"`
	TopicTags      []string  `json:"topic_tags"`
	RelevanceScore int       `json:"relevance_score"` // 1-10
	ModelUsed      string    `json:"model_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// ArticleWithSummary pairs an article with its summary for viewpoint work.
type ArticleWithSummary struct {
	Article Article
	Summary Summary
}

// PersonaKind distinguishes the persona variants that share the personas table.
type PersonaKind string

const (
	PersonaAnalyst    PersonaKind = "analyst"
	PersonaOutput     PersonaKind = "output"
	PersonaRoundtable PersonaKind = "roundtable"
)

// Persona is the identity row shared by every persona variant.
type Persona struct {
	ID        string      `json:"id"`
	Slug      string      `json:"slug"` // Natural key
	Name      string      `json:"name"`
	Title     string      `json:"title"`
	Framework string      `json:"framework"` // Long-form voice or template description
	Kind      PersonaKind `json:"kind"`
	Enabled   bool        `json:"enabled"`
}

// AnalystPersona is a voice that independently evaluates an article.
type AnalystPersona struct {
	Persona
	VoiceProfile string   `json:"voice_profile"`
	Expertise    []string `json:"expertise"`
}

// OutputPersonaTemplate repackages an analyst viewpoint for an audience.
// It is never routed to; every template runs for each viewpointed article.
type OutputPersonaTemplate struct {
	Persona
	Audience     string `json:"audience"`
	Focus        string `json:"focus"`
	Instructions string `json:"instructions"`
}

// Transcript is voice-grounding material for a persona.
type Transcript struct {
	ID               string    `json:"id"`
	PersonaID        string    `json:"persona_id"`
	VideoID          string    `json:"video_id"` // Natural key
	RawTranscript    string    `json:"raw_transcript"`
	TopicTags        []string  `json:"topic_tags"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
}

// Viewpoint is persona-authored analysis of an article. (ArticleID, PersonaID)
// is unique; saving again replaces the text.
type Viewpoint struct {
	ID                 string         `json:"id"`
	ArticleID          string         `json:"article_id"`
	PersonaID          string         `json:"persona_id"`
	ViewpointText      string         `json:"viewpoint_text"`
	KeyInsights        []string       `json:"key_insights"`
	ConfidenceScore    float64        `json:"confidence_score"`
	ModelUsed          string         `json:"model_used"`
	GenerationMetadata map[string]any `json:"generation_metadata"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// AgentLogStatus is the outcome recorded on an AgentLog row.
type AgentLogStatus string

const (
	LogStarted AgentLogStatus = "started"
	LogSuccess AgentLogStatus = "success"
	LogError   AgentLogStatus = "error"
	LogWarning AgentLogStatus = "warning"
)

// AgentLog is an append-only audit row written by the pipelines.
type AgentLog struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	AgentName string         `json:"agent_name"`
	Action    string         `json:"action"`
	Status    AgentLogStatus `json:"status"`
	Details   map[string]any `json:"details"`
	RunID     string         `json:"run_id,omitempty"`
}

// ClampConfidence bounds a model-reported confidence to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ClampRelevance bounds a relevance score to [1,10].
func ClampRelevance(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
