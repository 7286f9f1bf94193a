// Package summarize produces the one-per-article summary whose relevance score
// gates persona analysis.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"healthwire/internal/core"
	"healthwire/internal/llm"
	"healthwire/internal/logger"
)

// MaxTakeaways caps the key takeaways kept from a model response.
const MaxTakeaways = 5

// ErrEmptySummary is returned when the model response parses but carries no summary text.
var ErrEmptySummary = errors.New("summarize: response has no summary text")

// Summarizer handles article summarization using LLM
type Summarizer struct {
	gen     llm.Generator
	options SummarizerOptions
	log     *slog.Logger
}

// SummarizerOptions configures the summarizer behavior
type SummarizerOptions struct {
	// Model settings
	Temperature float32
	MaxTokens   int32

	// Retry settings
	MaxRetries int
	RetryDelay time.Duration

	// Prompt input bound
	MaxContentChars int
}

// DefaultSummarizerOptions returns sensible defaults
func DefaultSummarizerOptions() SummarizerOptions {
	return SummarizerOptions{
		Temperature:     0.3,
		MaxRetries:      2,
		RetryDelay:      time.Second,
		MaxContentChars: 6000,
	}
}

// NewSummarizer creates a new summarizer with the given generator
func NewSummarizer(gen llm.Generator, options SummarizerOptions) *Summarizer {
	return &Summarizer{gen: gen, options: options, log: logger.Get()}
}

// response is the JSON object the model is asked to return.
type response struct {
	Summary        string   `json:"summary"`
	Takeaways      []string `json:"takeaways"`
	Tags           []string `json:"tags"`
	RelevanceScore int      `json:"relevance_score"`
}

// SummarizeArticle creates the summary for an article. Every error is a soft
// failure for the caller: the article continues without a summary.
func (s *Summarizer) SummarizeArticle(ctx context.Context, article core.Article) (*core.Summary, error) {
	content := strings.TrimSpace(article.RawContent)
	if content == "" {
		content = article.Title
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("article %s has no content to summarize", article.ID)
	}

	req := llm.Request{
		System:      summarySystemPrompt,
		Prompt:      BuildSummaryPrompt(article.Title, llm.ClipText(content, s.options.MaxContentChars)),
		Temperature: s.options.Temperature,
		MaxTokens:   s.options.MaxTokens,
		JSON:        true,
	}

	text, err := llm.GenerateWithRetry(ctx, s.gen, req, s.options.MaxRetries, s.options.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("summarize article %s: %w", article.ID, err)
	}

	var resp response
	if err := llm.DecodeJSON(text, &resp); err != nil {
		return nil, fmt.Errorf("summarize article %s: %w", article.ID, err)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return nil, ErrEmptySummary
	}

	summary := &core.Summary{
		ArticleID:      article.ID,
		ShortSummary:   strings.TrimSpace(resp.Summary),
		KeyTakeaways:   cleanTakeaways(resp.Takeaways),
		TopicTags:      NormalizeTags(resp.Tags),
		RelevanceScore: core.ClampRelevance(resp.RelevanceScore),
		ModelUsed:      s.gen.ModelName(),
		CreatedAt:      time.Now().UTC(),
	}
	if n := len(summary.KeyTakeaways); n < 3 {
		s.log.Warn("Summary has fewer takeaways than requested", "article_id", article.ID, "takeaways", n)
	}
	return summary, nil
}

func cleanTakeaways(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "-•*"))
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == MaxTakeaways {
			break
		}
	}
	return out
}

// NormalizeTags lowercases, trims and de-duplicates topic tags, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(strings.ToLower(tag)), " ")
		tag = strings.TrimPrefix(tag, "#")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
