// Package viewpoints turns a summarized article into persona-authored analysis:
// an analyst viewpoint first, then one brief per output template, and
// optionally a roundtable that merges three analysts.
package viewpoints

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"healthwire/internal/llm"
	"healthwire/internal/logger"
)

// Metadata kinds recorded in Viewpoint.GenerationMetadata["kind"].
const (
	KindAnalyst    = "analyst"
	KindBrief      = "brief"
	KindRoundtable = "roundtable"
)

var (
	// ErrEmptyOutput is returned when a response parses but its main text is blank.
	ErrEmptyOutput = errors.New("viewpoints: response has no text")
	// ErrIncompletePanel is returned when a roundtable lacks one of its three views.
	ErrIncompletePanel = errors.New("viewpoints: roundtable needs three analyst viewpoints")
)

// Options configures generation calls
type Options struct {
	ViewpointTemperature float32
	BriefTemperature     float32
	MaxTokens            int32
	MaxContentChars      int
	MaxRetries           int
	RetryDelay           time.Duration
}

// DefaultOptions returns the settings used by the viewpoint run
func DefaultOptions() Options {
	return Options{
		ViewpointTemperature: 0.7,
		BriefTemperature:     0.4,
		MaxContentChars:      4000,
		MaxRetries:           1,
		RetryDelay:           2 * time.Second,
	}
}

// Generator writes viewpoints, briefs and roundtables. Every error it returns
// is a soft failure for the one (article, persona) pair it was working on.
type Generator struct {
	gen  llm.Generator
	opts Options
	log  *slog.Logger
}

// NewGenerator creates a viewpoint generator on top of gen.
func NewGenerator(gen llm.Generator, opts Options) *Generator {
	return &Generator{gen: gen, opts: opts, log: logger.Get()}
}

// ModelName reports the model behind the generator.
func (g *Generator) ModelName() string {
	return g.gen.ModelName()
}

func (g *Generator) call(ctx context.Context, req llm.Request, out any) error {
	req.MaxTokens = g.opts.MaxTokens
	req.JSON = true
	text, err := llm.GenerateWithRetry(ctx, g.gen, req, g.opts.MaxRetries, g.opts.RetryDelay)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(text, out)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(item), "-•*"))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}
