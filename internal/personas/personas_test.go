package personas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwire/internal/core"
	"healthwire/internal/persistence"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want string
	}{
		{"security tags", []string{"ransomware", "cybersecurity"}, SlugSecuritySentinel},
		{"no tags", nil, DefaultAnalyst},
		{"empty slice", []string{}, DefaultAnalyst},
		{"unmatched tags", []string{"interoperability", "fhir"}, DefaultAnalyst},
		{"culture tags", []string{"Leadership", "  burnout "}, SlugCultureCatalyst},
		{"majority wins", []string{"workforce", "staffing", "hipaa"}, SlugCultureCatalyst},
		{"tie goes to default", []string{"privacy", "culture"}, DefaultAnalyst},
		{"whitespace and case normalized", []string{"Data   Breach", "ZERO_TRUST"}, SlugSecuritySentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.tags))
		})
	}
}

func TestRoute_Deterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		require.Equal(t, SlugSecuritySentinel, Route([]string{"ransomware", "cybersecurity", "leadership"}))
	}
}

func TestRouter_CustomTable(t *testing.T) {
	r := Router{Routes: map[string]string{"finance": "money-person"}, Fallback: "generalist"}
	assert.Equal(t, "money-person", r.Route([]string{"finance"}))
	assert.Equal(t, "generalist", r.Route([]string{"sports"}))
	assert.Equal(t, []string{"generalist", "money-person"}, r.Targets())
}

func TestDefaultRouter_Targets(t *testing.T) {
	assert.Equal(t,
		[]string{SlugStrategyNavigator, SlugCultureCatalyst, SlugSecuritySentinel},
		DefaultRouter().Targets())
}

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	require.Len(t, c.Analysts, 3)
	for _, slug := range DefaultRouter().Targets() {
		a, ok := c.Analyst(slug)
		require.True(t, ok, slug)
		assert.NotEmpty(t, a.VoiceProfile)
		assert.Equal(t, a.VoiceProfile, a.Framework)
		assert.Equal(t, core.PersonaAnalyst, a.Kind)
	}

	slugs := make([]string, 0, len(c.Outputs))
	for _, o := range c.Outputs {
		slugs = append(slugs, o.Slug)
		assert.Equal(t, core.PersonaOutput, o.Kind)
		assert.NotEmpty(t, o.Instructions)
	}
	assert.Equal(t, []string{"cfo-brief", "risk-officer-brief", "sales-brief", "clinician-brief"}, slugs)
	assert.Equal(t, RoundtableSlug, c.Roundtable.Slug)
	assert.Equal(t, core.PersonaRoundtable, c.Roundtable.Kind)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"no analysts":    "outputs: []\n",
		"duplicate slug": "analysts:\n  - {slug: a, voice_profile: x}\n  - {slug: a, voice_profile: y}\n",
		"missing voice":  "analysts:\n  - {slug: a}\n",
		"missing slug":   "analysts:\n  - {voice_profile: x}\n",
		"bad yaml":       "analysts: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(data))
			assert.Error(t, err)
		})
	}
}

func newRegistry(t *testing.T) (*Registry, *persistence.MemoryDB) {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	db := persistence.NewMemoryDB()
	return NewRegistry(db.Personas(), c), db
}

func TestRegistry_Analyst(t *testing.T) {
	reg, db := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Analyst(ctx, SlugSecuritySentinel)
	assert.True(t, errors.Is(err, ErrUnknownPersona))
	_, err = reg.Analysts(ctx, DefaultRouter().Targets()...)
	assert.True(t, errors.Is(err, ErrUnknownPersona))

	n, err := reg.SeedAnalysts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	analysts, err := reg.Analysts(ctx, DefaultRouter().Targets()...)
	require.NoError(t, err)
	require.Len(t, analysts, 3)
	assert.Equal(t, SlugSecuritySentinel, analysts[SlugSecuritySentinel].Slug)

	a, err := reg.Analyst(ctx, SlugSecuritySentinel)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Contains(t, a.Expertise, "ransomware")
	assert.Contains(t, a.VoiceProfile, "security programs")

	p, err := db.Personas().GetBySlug(ctx, SlugCultureCatalyst)
	require.NoError(t, err)
	p.Enabled = false
	require.NoError(t, db.Personas().Upsert(ctx, p))
	_, err = reg.Analyst(ctx, SlugCultureCatalyst)
	assert.True(t, errors.Is(err, ErrUnknownPersona))
}

func TestRegistry_OutputTemplatesMaterializeLazily(t *testing.T) {
	reg, db := newRegistry(t)
	ctx := context.Background()

	before, err := db.Personas().List(ctx, core.PersonaOutput)
	require.NoError(t, err)
	assert.Empty(t, before)

	first, err := reg.OutputTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, first, 4)
	for _, tmpl := range first {
		assert.NotEmpty(t, tmpl.ID)
		assert.Equal(t, tmpl.Instructions, tmpl.Framework)
	}

	second, err := reg.OutputTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID, "rows are created once")

	rows, err := db.Personas().List(ctx, core.PersonaOutput)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	rt, err := reg.Roundtable(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.PersonaRoundtable, rt.Kind)
	rt2, err := reg.Roundtable(ctx)
	require.NoError(t, err)
	assert.Equal(t, rt.ID, rt2.ID)
}
