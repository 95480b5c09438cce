// Package sqlite provides an embedded SQLite run history and article store for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id TEXT PRIMARY KEY,
	scrape_type TEXT NOT NULL,
	source TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	total_pages INTEGER,
	pages_scraped INTEGER NOT NULL DEFAULT 0,
	articles_found INTEGER NOT NULL DEFAULT 0,
	articles_new INTEGER NOT NULL DEFAULT 0,
	articles_updated INTEGER NOT NULL DEFAULT 0,
	articles_failed INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	last_error TEXT,
	config TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_started_at ON scrape_runs(started_at);

CREATE TABLE IF NOT EXISTS articles (
	source TEXT NOT NULL,
	external_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	excerpt TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	published_at TEXT,
	view_count INTEGER NOT NULL DEFAULT 0,
	read_time_minutes INTEGER NOT NULL DEFAULT 1,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	raw_uri TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (source, external_id)
);
`

const runColumns = `id, scrape_type, source, mode, status, total_pages, pages_scraped,
	articles_found, articles_new, articles_updated, articles_failed, error_count,
	started_at, completed_at, last_error, config`

// Store implements store.RunRepository and store.ArticleRepository on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, run scraper.Run) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(),
		string(run.ScrapeType),
		run.Source,
		string(run.Mode),
		string(run.Status),
		intOrNull(run.TotalPages),
		run.PagesScraped,
		run.ArticlesFound,
		run.ArticlesNew,
		run.ArticlesUpdated,
		run.ArticlesFailed,
		run.ErrorCount,
		formatTime(run.StartedAt),
		timeOrNull(run.CompletedAt),
		stringOrNull(run.LastError),
		string(cfg),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun writes the run snapshot unless the stored run already finished.
func (s *Store) UpdateRun(ctx context.Context, run scraper.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM scrape_runs WHERE id = ?`, run.ID.String()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read run status: %w", err)
	}
	if scraper.RunStatus(status).Terminal() {
		return store.ErrRunFinished
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE scrape_runs
		SET status = ?, total_pages = ?, pages_scraped = ?, articles_found = ?,
			articles_new = ?, articles_updated = ?, articles_failed = ?,
			error_count = ?, completed_at = ?, last_error = ?
		WHERE id = ?`,
		string(run.Status),
		intOrNull(run.TotalPages),
		run.PagesScraped,
		run.ArticlesFound,
		run.ArticlesNew,
		run.ArticlesUpdated,
		run.ArticlesFailed,
		run.ErrorCount,
		timeOrNull(run.CompletedAt),
		stringOrNull(run.LastError),
		run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run update: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (scraper.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scrape_runs WHERE id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scraper.Run{}, store.ErrNotFound
	}
	if err != nil {
		return scraper.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// GetActiveRun returns the newest run still marked running.
func (s *Store) GetActiveRun(ctx context.Context) (scraper.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scrape_runs
		WHERE status = 'running' ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scraper.Run{}, store.ErrNotFound
	}
	if err != nil {
		return scraper.Run{}, fmt.Errorf("get active run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]scraper.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM scrape_runs
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []scraper.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ArticleExists reports whether the article is already stored.
func (s *Store) ArticleExists(ctx context.Context, source, externalID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM articles WHERE source = ? AND external_id = ?`,
		source, externalID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check article: %w", err)
	}
	return n > 0, nil
}

// InsertArticle inserts a new article row.
func (s *Store) InsertArticle(ctx context.Context, a scraper.Article) error {
	args, err := articleArgs(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (
			source, external_id, url, title, content, excerpt, author, published_at,
			view_count, read_time_minutes, thumbnail_url, content_hash, tags, raw_uri, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// UpdateArticle rewrites an existing article.
func (s *Store) UpdateArticle(ctx context.Context, a scraper.Article) error {
	args, err := articleArgs(a)
	if err != nil {
		return err
	}
	// The WHERE clause takes source and external_id from the front of args.
	args = append(args[2:], args[0], args[1])
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET url = ?, title = ?, content = ?, excerpt = ?, author = ?, published_at = ?,
			view_count = ?, read_time_minutes = ?, thumbnail_url = ?, content_hash = ?,
			tags = ?, raw_uri = ?, updated_at = ?
		WHERE source = ? AND external_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func articleArgs(a scraper.Article) ([]any, error) {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return []any{
		a.Source,
		a.ExternalID,
		a.URL,
		a.Title,
		a.Content,
		a.Excerpt,
		a.Author,
		timeOrNull(a.PublishedAt),
		a.ViewCount,
		a.ReadTimeMinutes,
		a.ThumbnailURL,
		a.ContentHash,
		string(tagsJSON),
		a.RawURI,
		formatTime(time.Now()),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (scraper.Run, error) {
	var (
		run                          scraper.Run
		id, scrapeType, mode, status string
		startedAt, cfg               string
		totalPages                   sql.NullInt64
		completedAt, lastError       sql.NullString
	)
	err := row.Scan(
		&id,
		&scrapeType,
		&run.Source,
		&mode,
		&status,
		&totalPages,
		&run.PagesScraped,
		&run.ArticlesFound,
		&run.ArticlesNew,
		&run.ArticlesUpdated,
		&run.ArticlesFailed,
		&run.ErrorCount,
		&startedAt,
		&completedAt,
		&lastError,
		&cfg,
	)
	if err != nil {
		return scraper.Run{}, err
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return scraper.Run{}, fmt.Errorf("parse run id: %w", err)
	}
	run.ScrapeType = scraper.ScrapeType(scrapeType)
	run.Mode = scraper.Mode(mode)
	run.Status = scraper.RunStatus(status)
	if totalPages.Valid {
		v := int(totalPages.Int64)
		run.TotalPages = &v
	}
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return scraper.Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return scraper.Run{}, fmt.Errorf("parse completed_at: %w", err)
		}
		run.CompletedAt = &t
	}
	if lastError.Valid {
		s := lastError.String
		run.LastError = &s
	}
	if err := json.Unmarshal([]byte(cfg), &run.Config); err != nil {
		return scraper.Run{}, fmt.Errorf("decode run config: %w", err)
	}
	return run, nil
}

// timeLayout has fixed-width fractions so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func timeOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func intOrNull(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringOrNull(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
