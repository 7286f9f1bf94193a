// Package personas holds the analyst voices, the output brief templates and the
// tag router that assigns an article to one analyst.
package personas

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"healthwire/internal/core"
)

// RoundtableSlug is the persona that owns synthesized roundtable viewpoints.
const RoundtableSlug = "roundtable"

//go:embed catalog/personas.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Analysts []struct {
		Slug         string   `yaml:"slug"`
		Name         string   `yaml:"name"`
		Title        string   `yaml:"title"`
		Expertise    []string `yaml:"expertise"`
		VoiceProfile string   `yaml:"voice_profile"`
	} `yaml:"analysts"`
	Outputs []struct {
		Slug         string `yaml:"slug"`
		Name         string `yaml:"name"`
		Title        string `yaml:"title"`
		Audience     string `yaml:"audience"`
		Focus        string `yaml:"focus"`
		Instructions string `yaml:"instructions"`
	} `yaml:"outputs"`
	Roundtable struct {
		Slug      string `yaml:"slug"`
		Name      string `yaml:"name"`
		Title     string `yaml:"title"`
		Framework string `yaml:"framework"`
	} `yaml:"roundtable"`
}

// Catalog is the static persona definition set.
type Catalog struct {
	Analysts   []core.AnalystPersona
	Outputs    []core.OutputPersonaTemplate
	Roundtable core.Persona
}

// DefaultCatalog returns the embedded persona catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a persona catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse persona catalog: %w", err)
	}

	c := &Catalog{}
	seen := make(map[string]bool)
	claim := func(slug string) error {
		if strings.TrimSpace(slug) == "" {
			return fmt.Errorf("persona catalog: entry without slug")
		}
		if seen[slug] {
			return fmt.Errorf("persona catalog: duplicate slug %q", slug)
		}
		seen[slug] = true
		return nil
	}

	for _, a := range f.Analysts {
		if err := claim(a.Slug); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.VoiceProfile) == "" {
			return nil, fmt.Errorf("persona catalog: analyst %q has no voice profile", a.Slug)
		}
		c.Analysts = append(c.Analysts, core.AnalystPersona{
			Persona: core.Persona{
				Slug:      a.Slug,
				Name:      a.Name,
				Title:     a.Title,
				Framework: strings.TrimSpace(a.VoiceProfile),
				Kind:      core.PersonaAnalyst,
				Enabled:   true,
			},
			VoiceProfile: strings.TrimSpace(a.VoiceProfile),
			Expertise:    a.Expertise,
		})
	}

	for _, o := range f.Outputs {
		if err := claim(o.Slug); err != nil {
			return nil, err
		}
		c.Outputs = append(c.Outputs, core.OutputPersonaTemplate{
			Persona: core.Persona{
				Slug:      o.Slug,
				Name:      o.Name,
				Title:     o.Title,
				Framework: strings.TrimSpace(o.Instructions),
				Kind:      core.PersonaOutput,
				Enabled:   true,
			},
			Audience:     o.Audience,
			Focus:        o.Focus,
			Instructions: strings.TrimSpace(o.Instructions),
		})
	}

	rt := f.Roundtable
	if rt.Slug == "" {
		rt.Slug = RoundtableSlug
	}
	if err := claim(rt.Slug); err != nil {
		return nil, err
	}
	c.Roundtable = core.Persona{
		Slug:      rt.Slug,
		Name:      rt.Name,
		Title:     rt.Title,
		Framework: strings.TrimSpace(rt.Framework),
		Kind:      core.PersonaRoundtable,
		Enabled:   true,
	}

	if len(c.Analysts) == 0 {
		return nil, fmt.Errorf("persona catalog: no analysts defined")
	}
	return c, nil
}

// Analyst returns the catalog entry for slug.
func (c *Catalog) Analyst(slug string) (core.AnalystPersona, bool) {
	for _, a := range c.Analysts {
		if a.Slug == slug {
			return a, true
		}
	}
	return core.AnalystPersona{}, false
}
