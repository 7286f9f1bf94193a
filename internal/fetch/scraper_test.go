package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwire/internal/core"
)

const listingPage = `<!doctype html>
<html><head><title>Newsroom</title></head>
<body>
  <nav><a href="/">Home</a></nav>
  <div class="news-item">
    <h3><a href="/news/payer-policy">CMS finalizes prior authorization rule</a></h3>
    <p>The agency set new deadlines for payers.</p>
  </div>
  <div class="news-item">
    <h3><a href="https://other.example.org/story">Health system names new CIO</a></h3>
    <p>Leadership change at a regional system.</p>
  </div>
  <div class="news-item">
    <h3><a href="/news/short">More</a></h3>
  </div>
  <div class="news-item">
    <h3>Headline without any link</h3>
  </div>
  <div class="news-item">
    <h3><a href="/news/payer-policy">CMS finalizes prior authorization rule</a></h3>
  </div>
</body></html>`

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScraper_Fetch(t *testing.T) {
	srv := serveHTML(t, listingPage)

	s := NewScraper(Options{MaxItems: 10, MaxContentChars: 2000})
	articles, err := s.Fetch(context.Background(), core.Source{
		ID: "src-9", Name: "newsroom", URL: srv.URL + "/news", Kind: core.SourceKindScrape, ScrapeSelector: ".news-item",
	})
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, srv.URL+"/news/payer-policy", articles[0].URL)
	assert.Equal(t, "CMS finalizes prior authorization rule", articles[0].Title)
	assert.Contains(t, articles[0].RawContent, "new deadlines for payers")
	assert.Equal(t, core.HashContent(articles[0].RawContent), articles[0].ContentHash)
	require.NotNil(t, articles[0].SourceID)
	assert.Equal(t, "src-9", *articles[0].SourceID)

	assert.Equal(t, "https://other.example.org/story", articles[1].URL)
}

func TestScraper_TruncatesAndCaps(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, `<article><h2><a href="/a/%d">Story number %d headline</a></h2><p>%s</p></article>`, i, i, strings.Repeat("word ", 200))
	}
	b.WriteString("</body></html>")
	srv := serveHTML(t, b.String())

	s := NewScraper(Options{MaxItems: 3, MaxContentChars: 100})
	articles, err := s.Fetch(context.Background(), core.Source{Name: "cards", URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, articles, 3)
	for _, a := range articles {
		assert.LessOrEqual(t, len([]rune(a.RawContent)), 100)
		assert.Nil(t, a.SourceID)
	}
}

func TestScraper_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewScraper(Options{}).Fetch(context.Background(), core.Source{Name: "missing", URL: srv.URL})
	require.Error(t, err)
}

func TestScraper_CancelAbortsVisit(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewScraper(Options{Timeout: 30 * time.Second}).Fetch(ctx, core.Source{Name: "slow", URL: srv.URL})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "héé", truncate("hééllo", 3))
}
