package viewpoints

import (
	"context"
	"fmt"
	"strings"
	"time"

	"healthwire/internal/core"
	"healthwire/internal/llm"
)

// PanelSize is the number of analyst viewpoints a roundtable merges.
const PanelSize = 3

// PanelView is one analyst's existing viewpoint on the article.
type PanelView struct {
	Analyst   core.AnalystPersona
	Viewpoint core.Viewpoint
}

type roundtableResponse struct {
	Discussion      string   `json:"discussion"`
	Consensus       []string `json:"consensus_points"`
	Disagreements   []string `json:"disagreements"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// Roundtable merges three analysts' viewpoints into one moderated discussion,
// stored as a viewpoint of the roundtable persona.
func (g *Generator) Roundtable(ctx context.Context, item core.ArticleWithSummary, moderator core.Persona, panel []PanelView) (*core.Viewpoint, error) {
	if len(panel) != PanelSize {
		return nil, fmt.Errorf("roundtable for article %s: %w", item.Article.ID, ErrIncompletePanel)
	}

	req := llm.Request{
		System:      buildRoundtableSystemPrompt(moderator),
		Prompt:      buildRoundtablePrompt(item, panel),
		Temperature: g.opts.ViewpointTemperature,
	}

	var resp roundtableResponse
	if err := g.call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("roundtable for article %s: %w", item.Article.ID, err)
	}
	if strings.TrimSpace(resp.Discussion) == "" {
		return nil, fmt.Errorf("roundtable for article %s: %w", item.Article.ID, ErrEmptyOutput)
	}

	slugs := make([]string, 0, len(panel))
	for _, p := range panel {
		slugs = append(slugs, p.Analyst.Slug)
	}

	return &core.Viewpoint{
		ArticleID:       item.Article.ID,
		PersonaID:       moderator.ID,
		ViewpointText:   strings.TrimSpace(resp.Discussion),
		KeyInsights:     cleanList(resp.Consensus),
		ConfidenceScore: core.ClampConfidence(resp.ConfidenceScore),
		ModelUsed:       g.gen.ModelName(),
		GenerationMetadata: map[string]any{
			"kind":          KindRoundtable,
			"persona_slug":  moderator.Slug,
			"panel":         slugs,
			"disagreements": cleanList(resp.Disagreements),
			"generated_at":  time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func buildRoundtableSystemPrompt(moderator core.Persona) string {
	return fmt.Sprintf("You moderate %s: %s.\n%s\n\nRespond with exactly one JSON object and nothing else.",
		moderator.Name, moderator.Title, moderator.Framework)
}

func buildRoundtablePrompt(item core.ArticleWithSummary, panel []PanelView) string {
	var b strings.Builder
	b.WriteString("Combine these independent analyst viewpoints into one roundtable discussion.\n\n")
	fmt.Fprintf(&b, "**Article:** %s\n", item.Article.Title)
	fmt.Fprintf(&b, "**Summary:** %s\n\n", item.Summary.ShortSummary)
	for _, p := range panel {
		fmt.Fprintf(&b, "**%s (%s):**\n%s\n\n", p.Analyst.Name, p.Analyst.Title, p.Viewpoint.ViewpointText)
	}
	b.WriteString("**Instructions:**\n")
	b.WriteString("1. discussion: a multi-voice narrative where each analyst speaks in their own voice, ending with the moderator's synthesis\n")
	b.WriteString("2. consensus_points: where the panel agrees\n")
	b.WriteString("3. disagreements: where they differ\n")
	b.WriteString("4. confidence_score: 0-1\n\n")
	b.WriteString("**Output Format:**\n")
	b.WriteString(`{"discussion":"","consensus_points":[""],"disagreements":[""],"confidence_score":0.0}`)
	b.WriteString("\n")
	return b.String()
}
