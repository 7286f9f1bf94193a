package personas

import (
	"context"
	"errors"
	"fmt"

	"healthwire/internal/core"
	"healthwire/internal/persistence"
)

// ErrUnknownPersona is returned when a slug has no enabled persona row.
var ErrUnknownPersona = errors.New("unknown persona")

// Registry resolves persona rows from the store and creates output and
// roundtable rows the first time they are needed.
type Registry struct {
	repo    persistence.PersonaRepository
	catalog *Catalog
}

// NewRegistry creates a registry over the persona repository.
func NewRegistry(repo persistence.PersonaRepository, catalog *Catalog) *Registry {
	return &Registry{repo: repo, catalog: catalog}
}

// Catalog returns the static definitions the registry was built with.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// SeedAnalysts upserts every catalog analyst by slug.
func (r *Registry) SeedAnalysts(ctx context.Context) (int, error) {
	for _, a := range r.catalog.Analysts {
		p := a.Persona
		if err := r.repo.Upsert(ctx, &p); err != nil {
			return 0, fmt.Errorf("seed analyst %s: %w", a.Slug, err)
		}
	}
	return len(r.catalog.Analysts), nil
}

// Analyst loads an analyst by slug. The stored framework is the voice profile,
// and expertise comes from the catalog when the slug is listed there.
func (r *Registry) Analyst(ctx context.Context, slug string) (core.AnalystPersona, error) {
	p, err := r.repo.GetBySlug(ctx, slug)
	if errors.Is(err, persistence.ErrNotFound) {
		return core.AnalystPersona{}, fmt.Errorf("%w: %s", ErrUnknownPersona, slug)
	}
	if err != nil {
		return core.AnalystPersona{}, fmt.Errorf("load persona %s: %w", slug, err)
	}
	if p.Kind != core.PersonaAnalyst || !p.Enabled {
		return core.AnalystPersona{}, fmt.Errorf("%w: %s is not an enabled analyst", ErrUnknownPersona, slug)
	}

	analyst := core.AnalystPersona{Persona: *p, VoiceProfile: p.Framework}
	if def, ok := r.catalog.Analyst(slug); ok {
		analyst.Expertise = def.Expertise
	}
	return analyst, nil
}

// Analysts resolves every slug to an enabled analyst, keyed by slug. The
// first slug that does not resolve fails the whole lookup.
func (r *Registry) Analysts(ctx context.Context, slugs ...string) (map[string]core.AnalystPersona, error) {
	out := make(map[string]core.AnalystPersona, len(slugs))
	for _, slug := range slugs {
		a, err := r.Analyst(ctx, slug)
		if err != nil {
			return nil, err
		}
		out[slug] = a
	}
	return out, nil
}

// OutputTemplates returns every enabled output template, each backed by a
// persona row so briefs can be stored as viewpoints.
func (r *Registry) OutputTemplates(ctx context.Context) ([]core.OutputPersonaTemplate, error) {
	out := make([]core.OutputPersonaTemplate, 0, len(r.catalog.Outputs))
	for _, tmpl := range r.catalog.Outputs {
		p, err := r.ensure(ctx, tmpl.Persona)
		if err != nil {
			return nil, err
		}
		if !p.Enabled {
			continue
		}
		tmpl.Persona = *p
		out = append(out, tmpl)
	}
	return out, nil
}

// Roundtable returns the roundtable persona row, creating it on first use.
func (r *Registry) Roundtable(ctx context.Context) (core.Persona, error) {
	p, err := r.ensure(ctx, r.catalog.Roundtable)
	if err != nil {
		return core.Persona{}, err
	}
	return *p, nil
}

func (r *Registry) ensure(ctx context.Context, def core.Persona) (*core.Persona, error) {
	p, err := r.repo.GetBySlug(ctx, def.Slug)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("load persona %s: %w", def.Slug, err)
	}
	created := def
	if err := r.repo.Upsert(ctx, &created); err != nil {
		return nil, fmt.Errorf("create persona %s: %w", def.Slug, err)
	}
	return &created, nil
}
