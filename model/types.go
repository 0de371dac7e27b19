// Package model defines the core data structures for newswatch.
package model

import (
	"errors"
	"strings"
	"time"
)

// FeedSource represents a configured RSS/Atom feed endpoint the monitor polls.
type FeedSource struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// Validate checks if the feed source has required fields.
func (f *FeedSource) Validate() error {
	if f.Name == "" {
		return errors.New("feed name is required")
	}
	if f.URL == "" {
		return errors.New("feed URL is required")
	}
	return nil
}

// Keyword is a word or short phrase that scans look for in article text.
// Case is stored as entered; matching is case-insensitive.
type Keyword struct {
	ID     int64  `json:"id"`
	Word   string `json:"word"`
	Active bool   `json:"active"`
}

// Validate checks if the keyword has required fields.
func (k *Keyword) Validate() error {
	if strings.TrimSpace(k.Word) == "" {
		return errors.New("keyword is required")
	}
	return nil
}

// Article is a candidate extracted from a feed, before matching and dedup.
// Description may still contain markup at this point.
type Article struct {
	Title       string
	Description string
	Link        string
	Published   *time.Time
	Source      string
}

// FoundArticle is an article that matched at least one keyword and was
// persisted. Link is unique across all records.
type FoundArticle struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Link        string     `json:"link"`
	Source      string     `json:"source"`
	Keywords    []string   `json:"keywords"`
	Published   *time.Time `json:"published,omitempty"`
	FoundAt     time.Time  `json:"found_at"`
}

// KeywordList returns the matched keywords as a comma-joined string, in
// match order.
func (a *FoundArticle) KeywordList() string {
	return strings.Join(a.Keywords, ", ")
}

// Status is the operational state of the monitor exposed to callers.
type Status struct {
	Running         bool          `json:"running"`
	LastRunAt       *time.Time    `json:"last_run_at,omitempty"`
	LastRunDuration time.Duration `json:"last_run_duration"`
	ArticlesLastRun int           `json:"articles_found_last_run"`
	ActiveFeeds     int           `json:"total_feeds_active"`
	ActiveKeywords  int           `json:"total_keywords_active"`
	TotalArticles   int64         `json:"total_articles_all_time"`
}

// HasRun returns true once at least one scan has completed successfully.
func (s *Status) HasRun() bool {
	return s.LastRunAt != nil
}
