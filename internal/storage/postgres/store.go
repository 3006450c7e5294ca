// Package postgres provides a Postgres-backed crawler.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

// uniqueViolation is the SQLSTATE raised for unique constraint conflicts.
const uniqueViolation = "23505"

// Schema creates the tables used by Store. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS crawls (
	id BIGSERIAL PRIMARY KEY,
	seed_url TEXT NOT NULL,
	max_depth INTEGER NOT NULL,
	pages_found INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	status TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS pages (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL,
	crawl_depth INTEGER NOT NULL,
	crawl_id BIGINT REFERENCES crawls(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pages_crawl ON pages(crawl_id);

CREATE TABLE IF NOT EXISTS topics (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS page_topics (
	page_id BIGINT NOT NULL REFERENCES pages(id),
	topic_id BIGINT NOT NULL REFERENCES topics(id),
	PRIMARY KEY (page_id, topic_id)
);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool used by Store. pgxmock satisfies it in tests.
type Pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements crawler.Store and crawler.Catalog on Postgres.
type Store struct {
	pool Pool
}

var (
	_ crawler.Store   = (*Store)(nil)
	_ crawler.Catalog = (*Store)(nil)
	_ Pool            = (*pgxpool.Pool)(nil)
)

// NewStore connects to Postgres and applies Schema.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p Pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a running crawl row.
func (s *Store) CreateJob(ctx context.Context, seedURL string, maxDepth int) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO crawls (seed_url, max_depth, status) VALUES ($1, $2, $3) RETURNING id`,
		seedURL, maxDepth, string(crawler.JobStatusRunning),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert crawl: %w", err)
	}
	return id, nil
}

// FinishJob records the final page count and status.
func (s *Store) FinishJob(ctx context.Context, jobID int64, pagesFound int, status crawler.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawls SET pages_found = $1, status = $2 WHERE id = $3`,
		pagesFound, string(status), jobID,
	)
	if err != nil {
		return fmt.Errorf("update crawl: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("crawl %d: %w", jobID, crawler.ErrNotFound)
	}
	return nil
}

// PageExists reports whether url is stored.
func (s *Store) PageExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pages WHERE url = $1)`, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("query page: %w", err)
	}
	return exists, nil
}

// SavePage inserts a page row, returning crawler.ErrDuplicate when the URL
// is already present.
func (s *Store) SavePage(ctx context.Context, page crawler.PageInput) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pages (url, title, description, domain, crawl_depth, crawl_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`,
		page.URL, page.Title, page.Description, page.Domain, page.Depth, nullableID(page.JobID),
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err):
		return 0, crawler.ErrDuplicate
	case err != nil:
		return 0, fmt.Errorf("insert page: %w", err)
	}
	return id, nil
}

// GetOrCreateTopic returns the id of the topic called name.
func (s *Store) GetOrCreateTopic(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO topics (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM topics WHERE name = $1
		LIMIT 1`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert topic: %w", err)
	}
	return id, nil
}

// LinkPageTopic associates pageID with topicID; existing links are kept.
func (s *Store) LinkPageTopic(ctx context.Context, pageID, topicID int64) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO page_topics (page_id, topic_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		pageID, topicID,
	); err != nil {
		return fmt.Errorf("link page topic: %w", err)
	}
	return nil
}

// CountPagesForJob counts pages saved by jobID.
func (s *Store) CountPagesForJob(ctx context.Context, jobID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pages WHERE crawl_id = $1`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// ListTopics returns linked topics ordered by page count descending.
func (s *Store) ListTopics(ctx context.Context, limit int) ([]crawler.TopicCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.name, COUNT(pt.page_id)::int AS page_count
		FROM topics t
		JOIN page_topics pt ON pt.topic_id = t.id
		GROUP BY t.id, t.name
		ORDER BY page_count DESC, t.name ASC
		LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

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
	err := s.pool.QueryRow(ctx, `SELECT id FROM topics WHERE name = $1`, name).Scan(&topicID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("topic %q: %w", name, crawler.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select topic: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.url, p.title, p.description, p.domain, p.crawl_depth, COALESCE(p.crawl_id, 0), p.created_at
		FROM pages p
		JOIN page_topics pt ON pt.page_id = p.id
		WHERE pt.topic_id = $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $2`, topicID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var out []crawler.Page
	for rows.Next() {
		var p crawler.Page
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Description, &p.Domain, &p.Depth, &p.JobID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
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
	rows, err := s.pool.Query(ctx, `
		SELECT id, seed_url, max_depth, pages_found, started_at, status
		FROM crawls
		ORDER BY started_at DESC, id DESC
		LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query crawls: %w", err)
	}
	defer rows.Close()

	var out []crawler.Job
	for rows.Next() {
		var (
			job    crawler.Job
			status string
		)
		if err := rows.Scan(&job.ID, &job.SeedURL, &job.MaxDepth, &job.PagesFound, &job.StartedAt, &status); err != nil {
			return nil, fmt.Errorf("scan crawl: %w", err)
		}
		job.Status = crawler.JobStatus(status)
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawls: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
