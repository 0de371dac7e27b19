// Package store provides SQLite persistence for newswatch.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mfriesen/newswatch/model"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer, and a second connection to ":memory:"
	// would see a different database entirely.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		url TEXT UNIQUE NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		word TEXT UNIQUE NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS found_articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		description TEXT,
		link TEXT UNIQUE NOT NULL,
		source TEXT,
		keywords TEXT,
		published INTEGER,
		found_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scan_status (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_run_at INTEGER,
		last_run_duration_ms INTEGER NOT NULL DEFAULT 0,
		articles_found_last_run INTEGER NOT NULL DEFAULT 0,
		total_feeds_active INTEGER NOT NULL DEFAULT 0,
		total_keywords_active INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_found_articles_found_at ON found_articles(found_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveFeed saves a feed source to the database.
// If the feed has an ID of 0, it will be inserted. Otherwise, it will be updated.
func (s *Store) SaveFeed(f *model.FeedSource) error {
	if f.ID == 0 {
		result, err := s.db.Exec(
			"INSERT INTO feeds (name, url, active) VALUES (?, ?, ?)",
			f.Name, f.URL, boolToInt(f.Active),
		)
		if err != nil {
			return fmt.Errorf("failed to insert feed: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		f.ID = id
		return nil
	}

	_, err := s.db.Exec(
		"UPDATE feeds SET name = ?, url = ?, active = ? WHERE id = ?",
		f.Name, f.URL, boolToInt(f.Active), f.ID,
	)
	return err
}

// GetFeed retrieves a feed source by ID.
func (s *Store) GetFeed(id int64) (*model.FeedSource, error) {
	feed := &model.FeedSource{}
	var activeInt int
	err := s.db.QueryRow(
		"SELECT id, name, url, active FROM feeds WHERE id = ?",
		id,
	).Scan(&feed.ID, &feed.Name, &feed.URL, &activeInt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	feed.Active = intToBool(activeInt)
	return feed, nil
}

// ListFeeds retrieves all feed sources.
func (s *Store) ListFeeds() ([]*model.FeedSource, error) {
	return s.queryFeeds("SELECT id, name, url, active FROM feeds ORDER BY id")
}

// ActiveFeeds retrieves the feed sources enabled for scanning.
func (s *Store) ActiveFeeds() ([]*model.FeedSource, error) {
	return s.queryFeeds("SELECT id, name, url, active FROM feeds WHERE active = 1 ORDER BY id")
}

func (s *Store) queryFeeds(query string) ([]*model.FeedSource, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*model.FeedSource
	for rows.Next() {
		feed := &model.FeedSource{}
		var activeInt int
		if err := rows.Scan(&feed.ID, &feed.Name, &feed.URL, &activeInt); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feed.Active = intToBool(activeInt)
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

// SetFeedActive enables or disables a feed source. The change takes effect
// at the next scan's snapshot, never mid-cycle.
func (s *Store) SetFeedActive(id int64, active bool) error {
	result, err := s.db.Exec("UPDATE feeds SET active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteFeed deletes a feed source by ID.
func (s *Store) DeleteFeed(id int64) error {
	result, err := s.db.Exec("DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SaveKeyword saves a keyword to the database.
// If the keyword has an ID of 0, it will be inserted. Otherwise, it will be updated.
func (s *Store) SaveKeyword(k *model.Keyword) error {
	if k.ID == 0 {
		result, err := s.db.Exec(
			"INSERT INTO keywords (word, active) VALUES (?, ?)",
			k.Word, boolToInt(k.Active),
		)
		if err != nil {
			return fmt.Errorf("failed to insert keyword: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		k.ID = id
		return nil
	}

	_, err := s.db.Exec(
		"UPDATE keywords SET word = ?, active = ? WHERE id = ?",
		k.Word, boolToInt(k.Active), k.ID,
	)
	return err
}

// ListKeywords retrieves all keywords.
func (s *Store) ListKeywords() ([]*model.Keyword, error) {
	return s.queryKeywords("SELECT id, word, active FROM keywords ORDER BY id")
}

// ActiveKeywords retrieves the keywords enabled for matching, in insertion
// order. Scans snapshot this list once at scan start.
func (s *Store) ActiveKeywords() ([]*model.Keyword, error) {
	return s.queryKeywords("SELECT id, word, active FROM keywords WHERE active = 1 ORDER BY id")
}

func (s *Store) queryKeywords(query string) ([]*model.Keyword, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query keywords: %w", err)
	}
	defer rows.Close()

	var keywords []*model.Keyword
	for rows.Next() {
		kw := &model.Keyword{}
		var activeInt int
		if err := rows.Scan(&kw.ID, &kw.Word, &activeInt); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		kw.Active = intToBool(activeInt)
		keywords = append(keywords, kw)
	}

	return keywords, rows.Err()
}

// SetKeywordActive enables or disables a keyword.
func (s *Store) SetKeywordActive(id int64, active bool) error {
	result, err := s.db.Exec("UPDATE keywords SET active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteKeyword deletes a keyword by ID.
func (s *Store) DeleteKeyword(id int64) error {
	result, err := s.db.Exec("DELETE FROM keywords WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ExistsArticleByLink reports whether an article with the given link has
// already been persisted. Link is the dedup key: a link already present is
// never re-inserted, even if re-matched with different keywords.
func (s *Store) ExistsArticleByLink(link string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM found_articles WHERE link = ?", link).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check article link: %w", err)
	}
	return true, nil
}

// InsertArticle persists a matched article. The link column is unique, so
// inserting a duplicate link fails.
func (s *Store) InsertArticle(a *model.FoundArticle) error {
	var published sql.NullInt64
	if a.Published != nil {
		published = sql.NullInt64{Int64: a.Published.Unix(), Valid: true}
	}

	result, err := s.db.Exec(
		"INSERT INTO found_articles (title, description, link, source, keywords, published, found_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		a.Title, a.Description, a.Link, a.Source, a.KeywordList(), published, a.FoundAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	a.ID = id
	return nil
}

// GetArticles retrieves found articles with optional filtering, newest first.
func (s *Store) GetArticles(opts QueryOptions) ([]*model.FoundArticle, error) {
	query := "SELECT id, title, description, link, source, keywords, published, found_at FROM found_articles WHERE 1=1"
	args := []interface{}{}

	if opts.Keyword != "" {
		// Keywords are stored comma-joined; match a whole list element.
		// LIKE wildcards in the keyword itself must match literally
		query += ` AND (', ' || keywords || ', ') LIKE ? ESCAPE '\'`
		args = append(args, "%, "+escapeLike(opts.Keyword)+", %")
	}

	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}

	if opts.SinceTime != nil {
		query += " AND found_at >= ?"
		args = append(args, *opts.SinceTime)
	}

	query += " ORDER BY found_at DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []*model.FoundArticle
	for rows.Next() {
		a := &model.FoundArticle{}
		var keywords string
		var published sql.NullInt64
		var foundAtUnix int64

		err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.Link, &a.Source, &keywords, &published, &foundAtUnix)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}

		a.Keywords = splitKeywords(keywords)
		if published.Valid {
			t := unixToTime(published.Int64)
			a.Published = &t
		}
		a.FoundAt = unixToTime(foundAtUnix)
		articles = append(articles, a)
	}

	return articles, rows.Err()
}

// CountArticles returns the number of found articles across all scans.
func (s *Store) CountArticles() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM found_articles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// SaveStatus writes the scan status row. The table holds a single row that
// is replaced wholesale at the end of every successful scan.
func (s *Store) SaveStatus(st model.Status) error {
	var lastRun sql.NullInt64
	if st.LastRunAt != nil {
		lastRun = sql.NullInt64{Int64: st.LastRunAt.Unix(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO scan_status (id, last_run_at, last_run_duration_ms, articles_found_last_run, total_feeds_active, total_keywords_active)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_duration_ms = excluded.last_run_duration_ms,
			articles_found_last_run = excluded.articles_found_last_run,
			total_feeds_active = excluded.total_feeds_active,
			total_keywords_active = excluded.total_keywords_active`,
		lastRun, st.LastRunDuration.Milliseconds(), st.ArticlesLastRun, st.ActiveFeeds, st.ActiveKeywords,
	)
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// LoadStatus reads the persisted scan status. A missing row yields a zero
// status, not an error.
func (s *Store) LoadStatus() (model.Status, error) {
	var st model.Status
	var lastRun sql.NullInt64
	var durationMS int64

	err := s.db.QueryRow(
		"SELECT last_run_at, last_run_duration_ms, articles_found_last_run, total_feeds_active, total_keywords_active FROM scan_status WHERE id = 1",
	).Scan(&lastRun, &durationMS, &st.ArticlesLastRun, &st.ActiveFeeds, &st.ActiveKeywords)

	if err == sql.ErrNoRows {
		return model.Status{}, nil
	}
	if err != nil {
		return model.Status{}, fmt.Errorf("failed to load status: %w", err)
	}

	if lastRun.Valid {
		t := unixToTime(lastRun.Int64)
		st.LastRunAt = &t
	}
	st.LastRunDuration = time.Duration(durationMS) * time.Millisecond
	return st, nil
}

// Seed inserts the default feed and keyword lists, but only on a fresh
// database where both tables are empty.
func (s *Store) Seed(feeds []model.FeedSource, keywords []model.Keyword) error {
	var feedCount, keywordCount int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&feedCount); err != nil {
		return fmt.Errorf("failed to count feeds: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM keywords").Scan(&keywordCount); err != nil {
		return fmt.Errorf("failed to count keywords: %w", err)
	}
	if feedCount > 0 || keywordCount > 0 {
		return nil
	}

	for i := range feeds {
		if err := s.SaveFeed(&feeds[i]); err != nil {
			return fmt.Errorf("failed to seed feed %s: %w", feeds[i].URL, err)
		}
	}
	for i := range keywords {
		if err := s.SaveKeyword(&keywords[i]); err != nil {
			return fmt.Errorf("failed to seed keyword %s: %w", keywords[i].Word, err)
		}
	}
	return nil
}

// requireRow converts a zero-row update/delete into ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// splitKeywords reverses FoundArticle.KeywordList.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ", ")
}

// Helper functions for boolean<->int conversion (SQLite doesn't have BOOLEAN type)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

// Helper to convert Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0)
}
