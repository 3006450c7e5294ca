// Package sqlite persists crawl jobs, pages, and topics in a local SQLite
// database using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/eduspider/internal/crawler"
)

// FileName is the database file created under the store directory.
const FileName = "eduspider.db"

// timeLayout is fixed-width so timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS crawls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seed_url TEXT NOT NULL,
	max_depth INTEGER NOT NULL,
	pages_found INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL,
	crawl_depth INTEGER NOT NULL,
	crawl_id INTEGER REFERENCES crawls(id),
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_crawl ON pages(crawl_id);
CREATE INDEX IF NOT EXISTS idx_pages_domain ON pages(domain);

CREATE TABLE IF NOT EXISTS topics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS page_topics (
	page_id INTEGER NOT NULL REFERENCES pages(id),
	topic_id INTEGER NOT NULL REFERENCES topics(id),
	PRIMARY KEY (page_id, topic_id)
);

CREATE INDEX IF NOT EXISTS idx_page_topics_topic ON page_topics(topic_id);
`

// Store implements crawler.Store and crawler.Catalog on SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

var (
	_ crawler.Store   = (*Store)(nil)
	_ crawler.Catalog = (*Store)(nil)
)

// Open creates dir if needed, opens (or creates) the database file inside
// it, enables WAL and foreign keys, and applies the schema.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps pragmas stable.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a running crawl row.
func (s *Store) CreateJob(ctx context.Context, seedURL string, maxDepth int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO crawls (seed_url, max_depth, started_at, status) VALUES (?, ?, ?, ?)`,
		seedURL, maxDepth, s.timestamp(), string(crawler.JobStatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("insert crawl: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("crawl id: %w", err)
	}
	return id, nil
}

// FinishJob records the final page count and status.
func (s *Store) FinishJob(ctx context.Context, jobID int64, pagesFound int, status crawler.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawls SET pages_found = ?, status = ? WHERE id = ?`,
		pagesFound, string(status), jobID,
	)
	if err != nil {
		return fmt.Errorf("update crawl: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("crawl %d: %w", jobID, crawler.ErrNotFound)
	}
	return nil
}

// PageExists reports whether url is stored.
func (s *Store) PageExists(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pages WHERE url = ?`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query page: %w", err)
	}
	return true, nil
}

// SavePage inserts a page row. A URL that already exists yields
// crawler.ErrDuplicate.
func (s *Store) SavePage(ctx context.Context, page crawler.PageInput) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (url, title, description, domain, crawl_depth, crawl_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		page.URL, page.Title, page.Description, page.Domain, page.Depth, nullableID(page.JobID), s.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert page: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("page rows affected: %w", err)
	}
	if n == 0 {
		return 0, crawler.ErrDuplicate
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("page id: %w", err)
	}
	return id, nil
}

// GetOrCreateTopic returns the id of the topic called name.
func (s *Store) GetOrCreateTopic(ctx context.Context, name string) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, s.timestamp(),
	); err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM topics WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select topic: %w", err)
	}
	return id, nil
}

// LinkPageTopic associates pageID with topicID; existing links are kept.
func (s *Store) LinkPageTopic(ctx context.Context, pageID, topicID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO page_topics (page_id, topic_id) VALUES (?, ?)`,
		pageID, topicID,
	); err != nil {
		return fmt.Errorf("link page topic: %w", err)
	}
	return nil
}

// CountPagesForJob counts pages saved by jobID.
func (s *Store) CountPagesForJob(ctx context.Context, jobID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE crawl_id = ?`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// ListTopics returns linked topics ordered by page count descending.
func (s *Store) ListTopics(ctx context.Context, limit int) ([]crawler.TopicCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(pt.page_id) AS page_count
		FROM topics t
		JOIN page_topics pt ON pt.topic_id = t.id
		GROUP BY t.id, t.name
		ORDER BY page_count DESC, t.name ASC
		LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []crawler.TopicCount
	for rows.Next() {
		var tc crawler.TopicCount
		if err := rows.Scan(&tc.Name, &tc.PageCount); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return out, nil
}

// ListPagesForTopic returns pages linked to name, newest first. Unknown
// topics yield crawler.ErrNotFound.
func (s *Store) ListPagesForTopic(ctx context.Context, name string, limit int) ([]crawler.Page, error) {
	var topicID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM topics WHERE name = ?`, name).Scan(&topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("topic %q: %w", name, crawler.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select topic: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.url, p.title, p.description, p.domain, p.crawl_depth, COALESCE(p.crawl_id, 0), p.created_at
		FROM pages p
		JOIN page_topics pt ON pt.page_id = p.id
		WHERE pt.topic_id = ?
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`, topicID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []crawler.Page
	for rows.Next() {
		var (
			p       crawler.Page
			created string
		)
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Description, &p.Domain, &p.Depth, &p.JobID, &created); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if p.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return out, nil
}

// ListJobs returns crawls newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]crawler.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seed_url, max_depth, pages_found, started_at, status
		FROM crawls
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query crawls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []crawler.Job
	for rows.Next() {
		var (
			job     crawler.Job
			started string
			status  string
		)
		if err := rows.Scan(&job.ID, &job.SeedURL, &job.MaxDepth, &job.PagesFound, &started, &status); err != nil {
			return nil, fmt.Errorf("scan crawl: %w", err)
		}
		if job.StartedAt, err = parseTimestamp(started); err != nil {
			return nil, err
		}
		job.Status = crawler.JobStatus(status)
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawls: %w", err)
	}
	return out, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
