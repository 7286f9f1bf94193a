package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"healthwire/internal/core"
	"healthwire/internal/feeds"
	"healthwire/internal/logger"
)

type urlSet struct {
	URLs []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// SitemapFetcher reads a sitemap and extracts each listed page.
type SitemapFetcher struct {
	opts Options
	log  *slog.Logger
}

// NewSitemapFetcher creates a sitemap strategy.
func NewSitemapFetcher(opts Options) *SitemapFetcher {
	return &SitemapFetcher{opts: opts.withDefaults(), log: logger.Get()}
}

// Fetch downloads the sitemap, keeps the MaxItems most recently modified
// URLs, and extracts title, author, date and body text from each page. A page
// that fails to load is skipped; a sitemap that fails to load fails the fetch.
func (f *SitemapFetcher) Fetch(ctx context.Context, src core.Source) ([]core.Article, error) {
	locs, err := f.readSitemap(ctx, src.Endpoint())
	if err != nil {
		return nil, err
	}

	var articles []core.Article
	c := newCollector(ctx, f.opts)
	c.OnError(func(r *colly.Response, err error) {
		f.log.Warn("Skipping sitemap page", "source", src.Name, "url", r.Request.URL.String(), "error", err)
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		if article, ok := f.extractPage(e, src); ok {
			articles = append(articles, article)
		}
	})

	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		_ = c.Visit(loc)
	}
	return articles, nil
}

func (f *SitemapFetcher) readSitemap(ctx context.Context, sitemapLoc string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		set      urlSet
		fetchErr error
	)
	c := newCollector(ctx, f.opts)
	c.OnResponse(func(r *colly.Response) {
		if err := xml.Unmarshal(r.Body, &set); err != nil {
			fetchErr = fmt.Errorf("parse sitemap %s: %w", sitemapLoc, err)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("sitemap %s: status %d: %w", sitemapLoc, r.StatusCode, err)
	})
	if err := c.Visit(sitemapLoc); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("sitemap %s: %w", sitemapLoc, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	entries := make([]sitemapURL, 0, len(set.URLs))
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			entries = append(entries, sitemapURL{Loc: loc, LastMod: u.LastMod})
		}
	}
	// Most recent first; entries without lastmod keep document order at the end.
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := feeds.ParseDate(entries[i].LastMod), feeds.ParseDate(entries[j].LastMod)
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	var locs []string
	for _, e := range entries {
		if len(locs) >= f.opts.MaxItems {
			break
		}
		locs = append(locs, e.Loc)
	}
	return locs, nil
}

func (f *SitemapFetcher) extractPage(e *colly.HTMLElement, src core.Source) (core.Article, bool) {
	doc := e.DOM

	title := metaContent(doc, "meta[property='og:title']", "meta[name='twitter:title']")
	if title == "" {
		title = firstText(doc, "h1", "title")
	}
	if title == "" {
		return core.Article{}, false
	}

	body := doc.Find("article").First()
	if body.Length() == 0 {
		body = doc.Find("main").First()
	}
	if body.Length() == 0 {
		body = doc.Find("body")
	}
	var paragraphs []string
	body.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := collapse(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	content := strings.Join(paragraphs, " ")
	if content == "" {
		content = collapse(body.Text())
	}
	content = truncate(content, f.opts.MaxContentChars)

	article := core.Article{
		URL:              e.Request.URL.String(),
		Title:            title,
		Author:           metaContent(doc, "meta[name='author']", "meta[property='article:author']"),
		PublishedDate:    feeds.ParseDate(metaContent(doc, "meta[property='article:published_time']", "meta[name='date']")),
		RawContent:       content,
		ContentHash:      core.HashContent(content),
		ProcessingStatus: core.StatusScraped,
	}
	if src.ID != "" {
		id := src.ID
		article.SourceID = &id
	}
	return article, true
}
