// Package monitor implements the scan orchestrator and scheduler for
// newswatch: periodic fetching of active feed sources, keyword matching,
// and dedup-checked persistence of matched articles.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mfriesen/newswatch/logger"
	"github.com/mfriesen/newswatch/match"
	"github.com/mfriesen/newswatch/model"
)

// ErrScanInFlight is returned when a scan trigger arrives while another
// scan is still running. The trigger is dropped, not queued.
var ErrScanInFlight = errors.New("scan already in flight")

// Persisted descriptions are capped the same way the legacy database was.
const maxDescriptionRunes = 300

// Store is the persistence surface the monitor depends on.
type Store interface {
	ActiveFeeds() ([]*model.FeedSource, error)
	ActiveKeywords() ([]*model.Keyword, error)
	ExistsArticleByLink(link string) (bool, error)
	InsertArticle(a *model.FoundArticle) error
	CountArticles() (int64, error)
	SaveStatus(st model.Status) error
}

// Fetcher retrieves candidate articles for one feed source.
type Fetcher interface {
	Fetch(ctx context.Context, src model.FeedSource) ([]model.Article, error)
}

// Monitor orchestrates scans. It is the sole writer of found articles and
// of the status record; reads may happen concurrently with a scan.
type Monitor struct {
	store   Store
	fetcher Fetcher
	log     logger.Logger

	mu     sync.Mutex // guards status; whole-record reads and writes only
	status model.Status
}

// New creates a Monitor.
func New(store Store, fetcher Fetcher, log logger.Logger) *Monitor {
	return &Monitor{
		store:   store,
		fetcher: fetcher,
		log:     log,
	}
}

// Restore seeds the status record from its persisted copy, typically at
// process start. Running is forced off: a restart is never mid-scan.
func (m *Monitor) Restore(st model.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.Running = false
	m.status = st
}

// Status returns a snapshot of the status record. The all-time article
// count is refreshed from the store on each call; if the store is
// unreachable the last known count is kept.
func (m *Monitor) Status() model.Status {
	m.mu.Lock()
	st := m.status
	m.mu.Unlock()

	if n, err := m.store.CountArticles(); err == nil {
		st.TotalArticles = n
		m.mu.Lock()
		m.status.TotalArticles = n
		m.mu.Unlock()
	}
	return st
}

// Scan runs one full scan cycle and blocks until it completes. If a scan
// is already in flight the call is a no-op returning ErrScanInFlight.
func (m *Monitor) Scan(ctx context.Context) error {
	if !m.begin() {
		return ErrScanInFlight
	}
	return m.scan(ctx)
}

// ScanAsync starts a scan in the background. Like Scan, it returns
// ErrScanInFlight without side effects when a scan is already running.
func (m *Monitor) ScanAsync(ctx context.Context) error {
	if !m.begin() {
		return ErrScanInFlight
	}
	go func() {
		// scan logs its own failures; nothing to report here
		_ = m.scan(ctx)
	}()
	return nil
}

// begin tries to claim the single scan slot.
func (m *Monitor) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Running {
		m.log.Info("scan trigger ignored, a scan is already running")
		return false
	}
	m.status.Running = true
	return true
}

// scan does one full cycle and releases the scan slot when done. The
// caller must have claimed the slot via begin. On success the status
// record is replaced as a whole; on failure only Running is cleared, so a
// stale LastRunAt stays visible.
func (m *Monitor) scan(ctx context.Context) error {
	started := time.Now()
	m.log.Info("scan started")

	inserted, activeFeeds, activeKeywords, err := m.run(ctx)

	m.mu.Lock()
	m.status.Running = false
	if err != nil {
		m.mu.Unlock()
		m.log.Error("scan aborted", logger.Error(err), logger.Duration("elapsed", time.Since(started)))
		return err
	}

	now := time.Now()
	m.status.LastRunAt = &now
	m.status.LastRunDuration = now.Sub(started)
	m.status.ArticlesLastRun = inserted
	m.status.ActiveFeeds = activeFeeds
	m.status.ActiveKeywords = activeKeywords
	persisted := m.status
	m.mu.Unlock()

	if serr := m.store.SaveStatus(persisted); serr != nil {
		m.log.Warn("failed to persist scan status", logger.Error(serr))
	}

	m.log.Info("scan complete",
		logger.Int("articles_found", inserted),
		logger.Int("active_feeds", activeFeeds),
		logger.Int("active_keywords", activeKeywords),
		logger.Duration("elapsed", persisted.LastRunDuration),
	)
	return nil
}

// run fetches all active sources, matches keywords, and persists new
// articles. Per-source failures are logged and skipped; store failures
// abort the run.
func (m *Monitor) run(ctx context.Context) (inserted, activeFeeds, activeKeywords int, err error) {
	feeds, err := m.store.ActiveFeeds()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to list active feeds: %w", err)
	}

	keywords, err := m.store.ActiveKeywords()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to list active keywords: %w", err)
	}

	// Snapshot of the keyword words, in store order; mutations during the
	// scan do not affect this cycle
	words := make([]string, len(keywords))
	for i, k := range keywords {
		words[i] = k.Word
	}

	for _, src := range feeds {
		articles, ferr := m.fetcher.Fetch(ctx, *src)
		if ferr != nil {
			m.log.Warn("feed fetch failed",
				logger.String("feed", src.Name),
				logger.String("url", src.URL),
				logger.Error(ferr),
			)
			continue
		}

		n, perr := m.processArticles(articles, words)
		inserted += n
		if perr != nil {
			return inserted, len(feeds), len(keywords), perr
		}
	}

	return inserted, len(feeds), len(keywords), nil
}

// processArticles matches candidates against the keyword snapshot and
// persists new hits. Returns how many articles were inserted. Only store
// failures produce an error.
func (m *Monitor) processArticles(articles []model.Article, words []string) (int, error) {
	inserted := 0
	for _, art := range articles {
		if art.Link == "" {
			continue
		}

		title := match.Normalize(art.Title)
		description := match.Normalize(art.Description)

		matched := match.Match(words, title, description)
		if len(matched) == 0 {
			continue
		}

		exists, err := m.store.ExistsArticleByLink(art.Link)
		if err != nil {
			return inserted, fmt.Errorf("failed dedup lookup for %s: %w", art.Link, err)
		}
		if exists {
			// Link-only dedup: an already-stored article keeps its original
			// keyword set even when a later scan matches differently
			continue
		}

		found := &model.FoundArticle{
			Title:       art.Title,
			Description: truncateRunes(description, maxDescriptionRunes),
			Link:        art.Link,
			Source:      art.Source,
			Keywords:    matched,
			Published:   art.Published,
			FoundAt:     time.Now(),
		}

		if err := m.store.InsertArticle(found); err != nil {
			return inserted, fmt.Errorf("failed to insert article %s: %w", art.Link, err)
		}
		inserted++

		m.log.Info("article matched",
			logger.String("title", art.Title),
			logger.String("source", art.Source),
			logger.Strings("keywords", matched),
		)
	}
	return inserted, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
