// Package fetch scrapes HTML listing pages and sitemaps into candidate articles.
package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const (
	// DefaultSelector matches the common card and post containers of news
	// listing pages.
	DefaultSelector = "article, .post, .news-item, .article-item, .entry, .card"

	// MinTitleLength drops navigation crumbs and "More" style links.
	MinTitleLength = 6
)

// Options configures the HTML strategies.
type Options struct {
	UserAgent       string
	Timeout         time.Duration
	MaxItems        int
	MaxContentChars int
	DefaultSelector string
	Transport       http.RoundTripper // optional, mainly for tests
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxItems <= 0 {
		o.MaxItems = 10
	}
	if o.MaxContentChars <= 0 {
		o.MaxContentChars = 2000
	}
	if o.DefaultSelector == "" {
		o.DefaultSelector = DefaultSelector
	}
	return o
}

// newCollector builds a synchronous collector for one fetch. Requests carry
// ctx, so cancelling it aborts an in-flight visit.
func newCollector(ctx context.Context, opts Options) *colly.Collector {
	c := colly.NewCollector(colly.AllowURLRevisit(), colly.StdlibContext(ctx))
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	}
	c.SetRequestTimeout(opts.Timeout)
	if opts.Transport != nil {
		c.WithTransport(opts.Transport)
	}
	return c
}

// collapse normalizes whitespace in extracted text.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

// firstText returns the first non-empty collapsed text among the selectors.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := collapse(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// metaContent returns the content attribute of the first matching meta tag.
func metaContent(doc *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if v, ok := doc.Find(s).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
