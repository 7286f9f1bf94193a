// Package feeds turns RSS and Atom sources into candidate articles.
package feeds

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"healthwire/internal/core"
	"healthwire/internal/logger"
)

// Options configures a Fetcher.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	MaxItems  int
	Client    *http.Client // optional, mainly for tests
}

// Fetcher parses a feed and maps its items to unpersisted articles.
type Fetcher struct {
	parser   *gofeed.Parser
	timeout  time.Duration
	maxItems int
	strip    *bluemonday.Policy
	log      *slog.Logger
}

// NewFetcher creates a feed fetcher.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 10
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = opts.UserAgent

	return &Fetcher{
		parser:   parser,
		timeout:  opts.Timeout,
		maxItems: opts.MaxItems,
		strip:    bluemonday.StrictPolicy(),
		log:      logger.Get(),
	}
}

// Fetch downloads the source feed and returns up to MaxItems candidates.
// Items without a link are skipped; an unparsable date leaves PublishedDate nil.
func (f *Fetcher) Fetch(ctx context.Context, src core.Source) ([]core.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(src.Endpoint(), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", src.Endpoint(), err)
	}

	var articles []core.Article
	for _, item := range feed.Items {
		if len(articles) >= f.maxItems {
			break
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			f.log.Debug("Skipping feed item without link", "source", src.Name, "title", item.Title)
			continue
		}
		articles = append(articles, f.toArticle(src, item, link))
	}
	return articles, nil
}

func (f *Fetcher) toArticle(src core.Source, item *gofeed.Item, link string) core.Article {
	title := ExtractTitle(item.Title)

	content := f.cleanText(item.Content)
	if content == "" {
		content = f.cleanText(item.Description)
	}
	if content == "" {
		content = title
	}

	article := core.Article{
		URL:              link,
		Title:            title,
		Author:           itemAuthor(item),
		PublishedDate:    itemDate(item),
		RawContent:       content,
		ContentHash:      core.HashContent(content),
		ProcessingStatus: core.StatusScraped,
	}
	if src.ID != "" {
		id := src.ID
		article.SourceID = &id
	}
	return article
}

// cleanText strips markup and collapses whitespace.
func (f *Fetcher) cleanText(s string) string {
	if s == "" {
		return ""
	}
	text := html.UnescapeString(f.strip.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func itemDate(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if t := ParseDate(item.Published); t != nil {
		return t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	return ParseDate(item.Updated)
}
