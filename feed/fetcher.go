// Package feed provides RSS/Atom feed fetching and parsing for newswatch.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/mfriesen/newswatch/model"
	"github.com/mmcdole/gofeed"
)

// Fetcher retrieves one feed source and parses it into article candidates.
// gofeed handles RSS 2.0, Atom 1.0, and RSS 1.0/RDF variants.
type Fetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewFetcher creates a Fetcher. Each fetch is bounded by the given
// per-source timeout; zero disables the bound.
func NewFetcher(timeout time.Duration) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = "newswatch/1.0"
	return &Fetcher{
		parser:  parser,
		timeout: timeout,
	}
}

// Fetch retrieves and parses a feed source. Network, timeout, and parse
// failures are all returned as errors; the caller decides whether to
// continue with other sources.
func (f *Fetcher) Fetch(ctx context.Context, src model.FeedSource) ([]model.Article, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	parsed, err := f.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", src.URL, err)
	}

	return f.convert(parsed, src), nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string, src model.FeedSource) ([]model.Article, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsed, err := f.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return f.convert(parsed, src), nil
}

// convert converts a gofeed.Feed into article candidates attributed to the
// source.
func (f *Fetcher) convert(gf *gofeed.Feed, src model.FeedSource) []model.Article {
	var articles []model.Article
	for _, item := range gf.Items {
		articles = append(articles, f.convertItem(item, src))
	}
	return articles
}

// convertItem converts a gofeed.Item to a candidate article.
func (f *Fetcher) convertItem(item *gofeed.Item, src model.FeedSource) model.Article {
	article := model.Article{
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
		Source:      src.Name,
	}

	// Fall back to full content when the feed carries no description
	if article.Description == "" && item.Content != "" {
		article.Description = item.Content
	}

	// Published timestamp is optional; prefer published over updated
	if item.PublishedParsed != nil {
		t := *item.PublishedParsed
		article.Published = &t
	} else if item.UpdatedParsed != nil {
		t := *item.UpdatedParsed
		article.Published = &t
	}

	return article
}
