package viewpoints

import (
	"context"
	"fmt"
	"strings"
	"time"

	"healthwire/internal/core"
	"healthwire/internal/llm"
)

type briefResponse struct {
	Brief           string   `json:"brief"`
	Headline        string   `json:"headline"`
	KeyTakeaways    []string `json:"key_takeaways"`
	ActionItems     []string `json:"action_items"`
	RelevanceRating int      `json:"relevance_rating"`
}

// Brief repackages an analyst viewpoint for one output audience. The result is
// stored as a viewpoint of the template's persona row.
func (g *Generator) Brief(ctx context.Context, item core.ArticleWithSummary, source core.Viewpoint, analyst core.AnalystPersona, tmpl core.OutputPersonaTemplate) (*core.Viewpoint, error) {
	req := buildBriefRequest(item, source, analyst, tmpl)
	req.Temperature = g.opts.BriefTemperature

	var resp briefResponse
	if err := g.call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("brief %s for article %s: %w", tmpl.Slug, item.Article.ID, err)
	}
	if strings.TrimSpace(resp.Brief) == "" {
		return nil, fmt.Errorf("brief %s for article %s: %w", tmpl.Slug, item.Article.ID, ErrEmptyOutput)
	}

	return &core.Viewpoint{
		ArticleID:       item.Article.ID,
		PersonaID:       tmpl.ID,
		ViewpointText:   strings.TrimSpace(resp.Brief),
		KeyInsights:     cleanList(resp.KeyTakeaways),
		ConfidenceScore: source.ConfidenceScore,
		ModelUsed:       g.gen.ModelName(),
		GenerationMetadata: map[string]any{
			"kind":              KindBrief,
			"persona_slug":      tmpl.Slug,
			"headline":          strings.TrimSpace(resp.Headline),
			"action_items":      cleanList(resp.ActionItems),
			"relevance_rating":  core.ClampRelevance(resp.RelevanceRating),
			"source_persona_id": source.PersonaID,
			"source_analyst":    analyst.Slug,
			"generated_at":      time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func buildBriefRequest(item core.ArticleWithSummary, source core.Viewpoint, analyst core.AnalystPersona, tmpl core.OutputPersonaTemplate) llm.Request {
	system := fmt.Sprintf("You write %s: %s.\nAudience: %s\nFocus: %s\n\n%s\n\nRespond with exactly one JSON object and nothing else.",
		tmpl.Name, tmpl.Title, tmpl.Audience, tmpl.Focus, tmpl.Instructions)

	var b strings.Builder
	b.WriteString("Repackage this analyst viewpoint as a brief for your audience.\n\n")
	fmt.Fprintf(&b, "**Article:** %s\n", item.Article.Title)
	fmt.Fprintf(&b, "**URL:** %s\n", item.Article.URL)
	fmt.Fprintf(&b, "**Summary:** %s\n\n", item.Summary.ShortSummary)
	fmt.Fprintf(&b, "**Viewpoint from %s (%s):**\n%s\n\n", analyst.Name, analyst.Title, source.ViewpointText)
	b.WriteString("**Analyst insights:**\n")
	b.WriteString(bulletList(source.KeyInsights))
	b.WriteString("\n**Instructions:**\n")
	b.WriteString("1. brief: 2-3 short paragraphs written for the audience above\n")
	b.WriteString("2. headline: one line, under 12 words\n")
	b.WriteString("3. key_takeaways: 3 takeaways in the audience's terms\n")
	b.WriteString("4. action_items: 2-4 concrete next steps\n")
	b.WriteString("5. relevance_rating: integer 1-10 for this audience\n\n")
	b.WriteString("**Output Format:**\n")
	b.WriteString(`{"brief":"","headline":"","key_takeaways":[""],"action_items":[""],"relevance_rating":0}`)
	b.WriteString("\n")

	return llm.Request{System: system, Prompt: b.String()}
}
