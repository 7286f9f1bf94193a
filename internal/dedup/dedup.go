// Package dedup decides whether a candidate article is new against persisted state.
package dedup

import (
	"context"
	"fmt"
)

// ArticleLookup is the persisted-state query the filter needs.
type ArticleLookup interface {
	Exists(ctx context.Context, contentHash, url string) (bool, error)
}

// Filter checks candidates one at a time, before any enrichment work is spent.
type Filter struct {
	articles ArticleLookup
}

// NewFilter creates a dedup filter over the article store.
func NewFilter(articles ArticleLookup) *Filter {
	return &Filter{articles: articles}
}

// IsNew reports whether neither the content hash nor the URL is stored.
func (f *Filter) IsNew(ctx context.Context, contentHash, url string) (bool, error) {
	exists, err := f.articles.Exists(ctx, contentHash, url)
	if err != nil {
		return false, fmt.Errorf("dedup check for %s: %w", url, err)
	}
	return !exists, nil
}
