package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mfriesen/newswatch/logger"
	"github.com/mfriesen/newswatch/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	mu       sync.Mutex
	feeds    []*model.FeedSource
	keywords []*model.Keyword
	articles map[string]*model.FoundArticle
	status   model.Status
	saved    bool

	failInsert bool
	failExists bool
	failFeeds  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{articles: make(map[string]*model.FoundArticle)}
}

func (f *fakeStore) ActiveFeeds() ([]*model.FeedSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFeeds {
		return nil, errors.New("store unavailable")
	}
	var active []*model.FeedSource
	for _, feed := range f.feeds {
		if feed.Active {
			active = append(active, feed)
		}
	}
	return active, nil
}

func (f *fakeStore) ActiveKeywords() ([]*model.Keyword, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []*model.Keyword
	for _, kw := range f.keywords {
		if kw.Active {
			active = append(active, kw)
		}
	}
	return active, nil
}

func (f *fakeStore) ExistsArticleByLink(link string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failExists {
		return false, errors.New("store unavailable")
	}
	_, ok := f.articles[link]
	return ok, nil
}

func (f *fakeStore) InsertArticle(a *model.FoundArticle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return errors.New("store unavailable")
	}
	if _, ok := f.articles[a.Link]; ok {
		return fmt.Errorf("duplicate link %s", a.Link)
	}
	f.articles[a.Link] = a
	return nil
}

func (f *fakeStore) CountArticles() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.articles)), nil
}

func (f *fakeStore) SaveStatus(st model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
	f.saved = true
	return nil
}

func (f *fakeStore) articleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.articles)
}

func (f *fakeStore) article(link string) *model.FoundArticle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.articles[link]
}

// fakeFetcher serves canned articles per source URL, with optional per-source
// errors and a block channel to hold a scan open.
type fakeFetcher struct {
	mu       sync.Mutex
	bySource map[string][]model.Article
	errs     map[string]error
	block    chan struct{}
	calls    int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bySource: make(map[string][]model.Article),
		errs:     make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, src model.FeedSource) ([]model.Article, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	articles := f.bySource[src.URL]
	err := f.errs[src.URL]
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return articles, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestMonitor(t *testing.T) (*Monitor, *fakeStore, *fakeFetcher) {
	t.Helper()
	st := newFakeStore()
	ft := newFakeFetcher()
	return New(st, ft, logger.Nop()), st, ft
}

func activeFeed(name, url string) *model.FeedSource {
	return &model.FeedSource{Name: name, URL: url, Active: true}
}

func activeKeyword(word string) *model.Keyword {
	return &model.Keyword{Word: word, Active: true}
}

func TestMonitor_ScanMatchesAndPersists(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{activeFeed("Test Feed", "https://feed/rss")}
	st.keywords = []*model.Keyword{activeKeyword("AI"), activeKeyword("machine learning")}
	ft.bySource["https://feed/rss"] = []model.Article{
		{
			Title:       "New AI breakthroughs",
			Description: "<p>Researchers unveil <b>machine learning</b> models</p>",
			Link:        "https://x/1",
			Source:      "Test Feed",
		},
		{
			Title:       "Gardening tips",
			Description: "Nothing relevant here",
			Link:        "https://x/2",
			Source:      "Test Feed",
		},
	}

	require.NoError(t, mon.Scan(context.Background()))

	require.Equal(t, 1, st.articleCount())
	got := st.article("https://x/1")
	require.NotNil(t, got)
	assert.Equal(t, []string{"AI", "machine learning"}, got.Keywords)
	assert.Equal(t, "Researchers unveil machine learning models", got.Description)
	assert.Equal(t, "Test Feed", got.Source)
	assert.False(t, got.FoundAt.IsZero())

	status := mon.Status()
	assert.False(t, status.Running)
	assert.True(t, status.HasRun())
	assert.Equal(t, 1, status.ArticlesLastRun)
	assert.Equal(t, 1, status.ActiveFeeds)
	assert.Equal(t, 2, status.ActiveKeywords)
	assert.Equal(t, int64(1), status.TotalArticles)
	assert.True(t, st.saved, "Status should be written through to the store")
}

func TestMonitor_ScanIsIdempotent(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{activeFeed("Feed", "https://feed/rss")}
	st.keywords = []*model.Keyword{activeKeyword("tech")}
	ft.bySource["https://feed/rss"] = []model.Article{
		{Title: "Big tech news", Link: "https://x/1", Source: "Feed"},
	}

	require.NoError(t, mon.Scan(context.Background()))
	require.Equal(t, 1, st.articleCount())

	// Same remote content, no config changes: second run inserts nothing
	require.NoError(t, mon.Scan(context.Background()))
	assert.Equal(t, 1, st.articleCount())
	assert.Equal(t, 0, mon.Status().ArticlesLastRun)
}

func TestMonitor_LinkDedupKeepsOriginalKeywords(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{activeFeed("Feed", "https://feed/rss")}
	st.keywords = []*model.Keyword{activeKeyword("AI"), activeKeyword("tech")}
	ft.bySource["https://feed/rss"] = []model.Article{
		{Title: "AI special", Link: "https://x/1", Source: "Feed"},
	}

	require.NoError(t, mon.Scan(context.Background()))
	require.Equal(t, []string{"AI"}, st.article("https://x/1").Keywords)

	// The article is republished at the same link with different matching text
	ft.mu.Lock()
	ft.bySource["https://feed/rss"] = []model.Article{
		{Title: "tech special", Link: "https://x/1", Source: "Feed"},
	}
	ft.mu.Unlock()

	require.NoError(t, mon.Scan(context.Background()))
	assert.Equal(t, 1, st.articleCount())
	assert.Equal(t, []string{"AI"}, st.article("https://x/1").Keywords,
		"Link-only dedup must not update the stored keyword set")
}

func TestMonitor_SourceFailureIsolated(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{
		activeFeed("Broken", "https://broken/rss"),
		activeFeed("Healthy", "https://healthy/rss"),
	}
	st.keywords = []*model.Keyword{activeKeyword("tech")}
	ft.errs["https://broken/rss"] = errors.New("connection refused")
	ft.bySource["https://healthy/rss"] = []model.Article{
		{Title: "tech roundup", Link: "https://x/1", Source: "Healthy"},
	}

	require.NoError(t, mon.Scan(context.Background()),
		"One failing source must not abort the scan")
	assert.Equal(t, 1, st.articleCount())
	status := mon.Status()
	assert.True(t, status.HasRun())
}

func TestMonitor_InactiveFeedsAndKeywordsSkipped(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{
		activeFeed("Active", "https://active/rss"),
		{Name: "Disabled", URL: "https://disabled/rss", Active: false},
	}
	st.keywords = []*model.Keyword{
		activeKeyword("tech"),
		{Word: "AI", Active: false},
	}
	ft.bySource["https://active/rss"] = []model.Article{
		{Title: "AI everywhere", Link: "https://x/1", Source: "Active"},
	}
	ft.bySource["https://disabled/rss"] = []model.Article{
		{Title: "tech report", Link: "https://x/2", Source: "Disabled"},
	}

	require.NoError(t, mon.Scan(context.Background()))

	assert.Equal(t, 0, st.articleCount(), "Inactive keyword must not match, inactive feed must not be fetched")
	assert.Equal(t, 1, ft.callCount())
}

func TestMonitor_PersistenceFailureAbortsAndLeavesStatusStale(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{activeFeed("Feed", "https://feed/rss")}
	st.keywords = []*model.Keyword{activeKeyword("tech")}
	ft.bySource["https://feed/rss"] = []model.Article{
		{Title: "tech news", Link: "https://x/1", Source: "Feed"},
	}
	st.failInsert = true

	err := mon.Scan(context.Background())
	require.Error(t, err, "Store failure is fatal to the run")

	status := mon.Status()
	assert.False(t, status.Running, "Running must clear even on failure")
	assert.False(t, status.HasRun(), "LastRunAt stays unchanged so staleness is visible")
	assert.False(t, st.saved, "No status write on an aborted run")

	// The store recovers; the next scan succeeds
	st.mu.Lock()
	st.failInsert = false
	st.mu.Unlock()
	require.NoError(t, mon.Scan(context.Background()))
	status = mon.Status()
	assert.True(t, status.HasRun())
}

func TestMonitor_SnapshotFailureAborts(t *testing.T) {
	mon, st, _ := newTestMonitor(t)
	st.failFeeds = true

	err := mon.Scan(context.Background())
	assert.Error(t, err)
	assert.False(t, mon.Status().Running)
}

func TestMonitor_MutualExclusion(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{activeFeed("Feed", "https://feed/rss")}
	st.keywords = []*model.Keyword{activeKeyword("tech")}
	ft.block = make(chan struct{})

	require.NoError(t, mon.ScanAsync(context.Background()))

	// Wait until the scan is inside the fetcher
	require.Eventually(t, func() bool { return ft.callCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, mon.Status().Running)

	// Triggers while running are dropped, not queued
	assert.ErrorIs(t, mon.Scan(context.Background()), ErrScanInFlight)
	assert.ErrorIs(t, mon.ScanAsync(context.Background()), ErrScanInFlight)

	close(ft.block)
	require.Eventually(t, func() bool { return !mon.Status().Running }, time.Second, time.Millisecond)

	// Dropped triggers did not queue extra fetches
	assert.Equal(t, 1, ft.callCount())
}

func TestMonitor_EmptyLinkSkipped(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	st.feeds = []*model.FeedSource{activeFeed("Feed", "https://feed/rss")}
	st.keywords = []*model.Keyword{activeKeyword("tech")}
	ft.bySource["https://feed/rss"] = []model.Article{
		{Title: "tech item without a link", Link: "", Source: "Feed"},
	}

	require.NoError(t, mon.Scan(context.Background()))
	assert.Equal(t, 0, st.articleCount())
}

func TestMonitor_DescriptionTruncated(t *testing.T) {
	mon, st, ft := newTestMonitor(t)

	long := "tech "
	for len(long) < 2000 {
		long += "filler words to pad the description well past the stored limit "
	}

	st.feeds = []*model.FeedSource{activeFeed("Feed", "https://feed/rss")}
	st.keywords = []*model.Keyword{activeKeyword("tech")}
	ft.bySource["https://feed/rss"] = []model.Article{
		{Title: "padded", Description: long, Link: "https://x/1", Source: "Feed"},
	}

	require.NoError(t, mon.Scan(context.Background()))
	got := st.article("https://x/1")
	require.NotNil(t, got)
	assert.LessOrEqual(t, len([]rune(got.Description)), 300)
}

func TestMonitor_Restore(t *testing.T) {
	mon, _, _ := newTestMonitor(t)

	lastRun := time.Now().Add(-time.Hour)
	mon.Restore(model.Status{
		Running:         true, // stale flag from a previous process
		LastRunAt:       &lastRun,
		ArticlesLastRun: 3,
	})

	status := mon.Status()
	assert.False(t, status.Running, "Restore must clear the running flag")
	assert.Equal(t, 3, status.ArticlesLastRun)
	require.NotNil(t, status.LastRunAt)
}
