package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwire/internal/core"
	"healthwire/internal/fetch"
	"healthwire/internal/persistence"
)

type fetchFunc func(ctx context.Context, src core.Source) ([]core.Article, error)

func (f fetchFunc) Fetch(ctx context.Context, src core.Source) ([]core.Article, error) {
	return f(ctx, src)
}

func TestDispatcher(t *testing.T) {
	rss := fetchFunc(func(ctx context.Context, src core.Source) ([]core.Article, error) {
		return []core.Article{{URL: "https://a.example.com/1"}}, nil
	})
	d := Dispatcher{core.SourceKindRSS: rss}

	got, err := d.Fetch(context.Background(), core.Source{Kind: core.SourceKindRSS})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = d.Fetch(context.Background(), core.Source{Kind: core.SourceKindSitemap})
	assert.True(t, errors.Is(err, ErrUnsupportedKind))
}

func TestNewDispatcher_RegistersEveryKind(t *testing.T) {
	d := NewDispatcher(fetch.Options{UserAgent: "healthwire-test"})
	for _, kind := range []core.SourceKind{core.SourceKindRSS, core.SourceKindScrape, core.SourceKindSitemap} {
		assert.Contains(t, d, kind)
	}
}

func TestManager_AggregateIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	db := persistence.NewMemoryDB()

	var order []string
	fetcher := fetchFunc(func(ctx context.Context, src core.Source) ([]core.Article, error) {
		order = append(order, src.Name)
		if src.Name == "broken" {
			return nil, errors.New("connection refused")
		}
		return []core.Article{{URL: "https://" + src.Name + ".example.com/1"}, {URL: "https://" + src.Name + ".example.com/2"}}, nil
	})
	m := NewManager(db, fetcher)

	_, err := m.Seed(ctx, []core.Source{
		{Name: "second", URL: "https://second.example.com", Kind: core.SourceKindRSS, Priority: 20, Enabled: true},
		{Name: "broken", URL: "https://broken.example.com", Kind: core.SourceKindRSS, Priority: 10, Enabled: true},
		{Name: "disabled", URL: "https://disabled.example.com", Kind: core.SourceKindRSS, Priority: 1, Enabled: false},
		{Name: "third", URL: "https://third.example.com", Kind: core.SourceKindRSS, Priority: 30, Enabled: true},
	})
	require.NoError(t, err)

	result, err := m.Aggregate(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"broken", "second", "third"}, order)
	assert.Equal(t, 2, result.SourcesFetched)
	assert.Equal(t, 1, result.SourcesFailed)
	assert.Equal(t, 4, result.Candidates)
	require.Len(t, result.Batches, 2)
	assert.Equal(t, "second", result.Batches[0].Source.Name)
	require.Len(t, result.Errors, 1)

	all, err := m.ListSources(ctx)
	require.NoError(t, err)
	for _, s := range all {
		switch s.Name {
		case "broken":
			assert.Equal(t, 1, s.ErrorCount)
			assert.Equal(t, "connection refused", s.LastError)
		case "second", "third":
			assert.Zero(t, s.ErrorCount)
			assert.NotNil(t, s.LastFetchedAt)
		case "disabled":
			assert.Nil(t, s.LastFetchedAt)
		}
	}
}

func TestManager_AggregateNoSources(t *testing.T) {
	m := NewManager(persistence.NewMemoryDB(), Dispatcher{})
	result, err := m.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.SourcesFetched)
}

func TestParseSeed(t *testing.T) {
	sources, err := ParseSeed([]byte(`
sources:
  - name: Wire
    url: https://wire.example.com
    kind: RSS
    feed_url: https://wire.example.com/feed
    priority: 5
  - name: Board
    url: https://board.example.com
    kind: scrape
    scrape_selector: .item
    enabled: false
`))
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, core.SourceKindRSS, sources[0].Kind)
	assert.True(t, sources[0].Enabled)
	assert.Equal(t, "https://wire.example.com/feed", sources[0].Endpoint())
	assert.False(t, sources[1].Enabled)
	assert.Equal(t, ".item", sources[1].ScrapeSelector)
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := ParseSeed([]byte(`
sources:
  - name: NoURL
    kind: rss
  - name: Odd
    url: https://odd.example.com
    kind: podcast
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")
	assert.Contains(t, err.Error(), `unknown kind "podcast"`)
}

func TestDefaultSeed(t *testing.T) {
	sources, err := DefaultSeed()
	require.NoError(t, err)
	assert.NotEmpty(t, sources)
}
