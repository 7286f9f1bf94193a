package viewpoints

import (
	"context"
	"fmt"
	"strings"
	"time"

	"healthwire/internal/core"
	"healthwire/internal/llm"
)

type analystResponse struct {
	Viewpoint       string   `json:"viewpoint"`
	KeyInsights     []string `json:"key_insights"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// Analyze writes the analyst's first-person viewpoint on an article.
// excerpts are transcript passages that ground the analyst's phrasing.
func (g *Generator) Analyze(ctx context.Context, item core.ArticleWithSummary, analyst core.AnalystPersona, excerpts []string) (*core.Viewpoint, error) {
	req := llm.Request{
		System:      buildAnalystSystemPrompt(analyst),
		Prompt:      buildAnalystPrompt(item, excerpts, g.opts.MaxContentChars),
		Temperature: g.opts.ViewpointTemperature,
	}

	var resp analystResponse
	if err := g.call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("viewpoint %s for article %s: %w", analyst.Slug, item.Article.ID, err)
	}
	if strings.TrimSpace(resp.Viewpoint) == "" {
		return nil, fmt.Errorf("viewpoint %s for article %s: %w", analyst.Slug, item.Article.ID, ErrEmptyOutput)
	}

	return &core.Viewpoint{
		ArticleID:       item.Article.ID,
		PersonaID:       analyst.ID,
		ViewpointText:   strings.TrimSpace(resp.Viewpoint),
		KeyInsights:     cleanList(resp.KeyInsights),
		ConfidenceScore: core.ClampConfidence(resp.ConfidenceScore),
		ModelUsed:       g.gen.ModelName(),
		GenerationMetadata: map[string]any{
			"kind":          KindAnalyst,
			"persona_slug":  analyst.Slug,
			"topic_tags":    item.Summary.TopicTags,
			"excerpts_used": len(excerpts),
			"generated_at":  time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func buildAnalystSystemPrompt(analyst core.AnalystPersona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n\n", analyst.Name, analyst.Title)
	b.WriteString("Your voice and background:\n")
	b.WriteString(analyst.VoiceProfile)
	b.WriteString("\n")
	if len(analyst.Expertise) > 0 {
		fmt.Fprintf(&b, "\nAreas of expertise: %s\n", strings.Join(analyst.Expertise, ", "))
	}
	b.WriteString("\nWrite as this analyst. Respond with exactly one JSON object and nothing else.")
	return b.String()
}

func buildAnalystPrompt(item core.ArticleWithSummary, excerpts []string, maxContent int) string {
	var b strings.Builder
	b.WriteString("Give your viewpoint on this healthcare technology story.\n\n")
	fmt.Fprintf(&b, "**Title:** %s\n", item.Article.Title)
	fmt.Fprintf(&b, "**URL:** %s\n\n", item.Article.URL)
	fmt.Fprintf(&b, "**Summary:** %s\n\n", item.Summary.ShortSummary)
	b.WriteString("**Key takeaways:**\n")
	b.WriteString(bulletList(item.Summary.KeyTakeaways))
	fmt.Fprintf(&b, "\n**Topics:** %s\n\n", strings.Join(item.Summary.TopicTags, ", "))
	fmt.Fprintf(&b, "**Article content:**\n%s\n\n", llm.ClipText(item.Article.RawContent, maxContent))

	if len(excerpts) > 0 {
		b.WriteString("**How you have talked about related topics before** (match this phrasing and rhythm, do not quote verbatim):\n")
		for i, ex := range excerpts {
			fmt.Fprintf(&b, "Excerpt %d: %s\n", i+1, ex)
		}
		b.WriteString("\n")
	}

	b.WriteString("**Instructions:**\n")
	b.WriteString("1. viewpoint: 3-5 paragraphs in the first person, in your own voice\n")
	b.WriteString("2. key_insights: 3-5 specific insights a reader should remember\n")
	b.WriteString("3. confidence_score: 0-1, how confident you are in this read of the story\n\n")
	b.WriteString("**Output Format:**\n")
	b.WriteString(`{"viewpoint":"","key_insights":[""],"confidence_score":0.0}`)
	b.WriteString("\n")
	return b.String()
}
