package sources

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"healthwire/internal/core"
)

//go:embed seed/sources.yaml
var defaultSeed embed.FS

type seedFile struct {
	Sources []seedSource `yaml:"sources"`
}

type seedSource struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	Kind           string `yaml:"kind"`
	FeedURL        string `yaml:"feed_url"`
	ScrapeSelector string `yaml:"scrape_selector"`
	Priority       int    `yaml:"priority"`
	Enabled        *bool  `yaml:"enabled"`
}

// DefaultSeed returns the built-in source list.
func DefaultSeed() ([]core.Source, error) {
	data, err := defaultSeed.ReadFile("seed/sources.yaml")
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// LoadSeed reads a source list from a YAML file.
func LoadSeed(path string) ([]core.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML source list. Sources are enabled
// unless the entry says otherwise.
func ParseSeed(data []byte) ([]core.Source, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	var errs []string
	sources := make([]core.Source, 0, len(file.Sources))
	names := make(map[string]bool)
	for i, s := range file.Sources {
		kind := core.SourceKind(strings.ToLower(strings.TrimSpace(s.Kind)))
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Sprintf("sources[%d]: name is required", i))
			continue
		case s.URL == "":
			errs = append(errs, fmt.Sprintf("sources[%d] %s: url is required", i, s.Name))
			continue
		case kind != core.SourceKindRSS && kind != core.SourceKindSitemap && kind != core.SourceKindScrape:
			errs = append(errs, fmt.Sprintf("sources[%d] %s: unknown kind %q", i, s.Name, s.Kind))
			continue
		case names[s.Name]:
			errs = append(errs, fmt.Sprintf("sources[%d] %s: duplicate name", i, s.Name))
			continue
		}
		names[s.Name] = true

		enabled := true
		if s.Enabled != nil {
			enabled = *s.Enabled
		}
		sources = append(sources, core.Source{
			Name:           s.Name,
			URL:            s.URL,
			Kind:           kind,
			FeedURL:        s.FeedURL,
			ScrapeSelector: s.ScrapeSelector,
			Priority:       s.Priority,
			Enabled:        enabled,
		})
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid seed:\n- %s", strings.Join(errs, "\n- "))
	}
	return sources, nil
}
