package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"healthwire/internal/core"
	"healthwire/internal/logger"
)

// Scraper extracts candidate articles from a listing page using a CSS
// selector per source.
type Scraper struct {
	opts Options
	log  *slog.Logger
}

// NewScraper creates an HTML selector scraper.
func NewScraper(opts Options) *Scraper {
	return &Scraper{opts: opts.withDefaults(), log: logger.Get()}
}

// Fetch visits the source page and returns one candidate per matching node
// that has a link and a title of at least MinTitleLength characters.
func (s *Scraper) Fetch(ctx context.Context, src core.Source) ([]core.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	selector := src.ScrapeSelector
	if selector == "" {
		selector = s.opts.DefaultSelector
	}

	var (
		articles []core.Article
		fetchErr error
		seen     = make(map[string]bool)
	)

	c := newCollector(ctx, s.opts)
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("scrape %s: status %d: %w", r.Request.URL, r.StatusCode, err)
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		e.DOM.Find(selector).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			if len(articles) >= s.opts.MaxItems {
				return false
			}
			article, ok := s.extract(e, node, src)
			if !ok || seen[article.URL] {
				return true
			}
			seen[article.URL] = true
			articles = append(articles, article)
			return true
		})
	})

	if err := c.Visit(src.Endpoint()); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("scrape %s: %w", src.Endpoint(), err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	s.log.Debug("Scraped listing page", "source", src.Name, "selector", selector, "candidates", len(articles))
	return articles, nil
}

func (s *Scraper) extract(e *colly.HTMLElement, node *goquery.Selection, src core.Source) (core.Article, bool) {
	href := ""
	if goquery.NodeName(node) == "a" {
		href, _ = node.Attr("href")
	} else {
		href, _ = node.Find("a[href]").First().Attr("href")
	}
	link := e.Request.AbsoluteURL(href)
	if href == "" || link == "" {
		return core.Article{}, false
	}

	title := firstText(node, "h1", "h2", "h3", "h4", ".title, [class*='title']", "a[href]")
	if title == "" && goquery.NodeName(node) == "a" {
		title = collapse(node.Text())
	}
	if utf8.RuneCountInString(title) < MinTitleLength {
		return core.Article{}, false
	}

	content := truncate(collapse(node.Text()), s.opts.MaxContentChars)
	article := core.Article{
		URL:              link,
		Title:            title,
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
