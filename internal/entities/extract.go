// Package entities extracts organizations, people and technologies from an
// article, maps them onto canonical names and records them against the article.
package entities

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"healthwire/internal/llm"
	"healthwire/internal/logger"
)

// OrganizationMention is one organization the model found in an article.
type OrganizationMention struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// PersonMention is one person the model found; Organization is free text.
type PersonMention struct {
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	Organization string  `json:"organization"`
	Confidence   float64 `json:"confidence"`
}

// TechnologyMention is one technology or product the model found.
type TechnologyMention struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Vendor     string  `json:"vendor"`
	Confidence float64 `json:"confidence"`
}

// Extraction is the structured result of one extraction call.
type Extraction struct {
	Organizations []OrganizationMention `json:"organizations"`
	People        []PersonMention       `json:"people"`
	Technologies  []TechnologyMention   `json:"technologies"`
}

// Count returns the total number of mentions.
func (e Extraction) Count() int {
	return len(e.Organizations) + len(e.People) + len(e.Technologies)
}

// ExtractorOptions configures the extractor
type ExtractorOptions struct {
	Temperature     float32
	MaxContentChars int
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultExtractorOptions returns the settings used by the ingestion run
func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		Temperature:     0.1,
		MaxContentChars: 6000,
		MaxRetries:      1,
		RetryDelay:      2 * time.Second,
	}
}

// Extractor asks the text generator for the entities mentioned in an article.
type Extractor struct {
	gen  llm.Generator
	opts ExtractorOptions
	log  *slog.Logger
}

// NewExtractor creates an extractor on top of gen.
func NewExtractor(gen llm.Generator, opts ExtractorOptions) *Extractor {
	return &Extractor{gen: gen, opts: opts, log: logger.Get()}
}

// Extract returns the raw, un-normalized mentions for an article. Any error is
// a soft failure: callers continue the article with zero entities.
func (e *Extractor) Extract(ctx context.Context, title, content string) (Extraction, error) {
	req := llm.Request{
		System:      extractionSystemPrompt,
		Prompt:      buildExtractionPrompt(title, llm.ClipText(content, e.opts.MaxContentChars)),
		Temperature: e.opts.Temperature,
		JSON:        true,
	}

	response, err := llm.GenerateWithRetry(ctx, e.gen, req, e.opts.MaxRetries, e.opts.RetryDelay)
	if err != nil {
		return Extraction{}, fmt.Errorf("entity extraction: %w", err)
	}

	var out Extraction
	if err := llm.DecodeJSON(response, &out); err != nil {
		return Extraction{}, fmt.Errorf("entity extraction: %w", err)
	}
	e.log.Debug("Extracted entities", "title", title, "mentions", out.Count())
	return out, nil
}

const extractionSystemPrompt = `You extract named entities from healthcare technology news for a structured database.
Respond with exactly one JSON object and nothing else.`

func buildExtractionPrompt(title, content string) string {
	var b strings.Builder
	b.WriteString("Identify the organizations, people and technologies this article mentions.\n\n")
	fmt.Fprintf(&b, "**Title:** %s\n\n", title)
	fmt.Fprintf(&b, "**Content:**\n%s\n\n", content)
	b.WriteString("Rules:\n")
	b.WriteString("- organizations.type is one of: health_system, vendor, payer, startup, agency, other\n")
	b.WriteString("- technologies.category is a short label such as ehr, ai, cybersecurity, interoperability, telehealth, analytics, cloud\n")
	b.WriteString("- people.organization is the organization the person represents, if stated\n")
	b.WriteString("- confidence is your certainty between 0 and 1\n")
	b.WriteString("- use the names as written in the article; do not invent entities\n\n")
	b.WriteString("Return JSON with this shape:\n")
	b.WriteString(`{"organizations":[{"name":"","type":"","confidence":0.0}],`)
	b.WriteString(`"people":[{"name":"","title":"","organization":"","confidence":0.0}],`)
	b.WriteString(`"technologies":[{"name":"","category":"","vendor":"","confidence":0.0}]}`)
	b.WriteString("\n")
	return b.String()
}
