package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

const runColumns = `id, scrape_type, source, mode, status, total_pages, pages_scraped,
	articles_found, articles_new, articles_updated, articles_failed, error_count,
	started_at, completed_at, last_error, config`

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool Pool
}

// NewRunStore creates a RunStore on an existing pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run scraper.Run) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	query := `
		INSERT INTO scrape_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`
	_, err = s.pool.Exec(ctx, query,
		run.ID,
		string(run.ScrapeType),
		run.Source,
		string(run.Mode),
		string(run.Status),
		run.TotalPages,
		run.PagesScraped,
		run.ArticlesFound,
		run.ArticlesNew,
		run.ArticlesUpdated,
		run.ArticlesFailed,
		run.ErrorCount,
		run.StartedAt,
		run.CompletedAt,
		run.LastError,
		cfg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// UpdateRun writes the run snapshot inside a transaction that locks the row
// and refuses to rewrite a terminal run.
func (s *RunStore) UpdateRun(ctx context.Context, run scraper.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin run update: %w", err)
	}

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM scrape_runs WHERE id = $1 FOR UPDATE;`, run.ID).Scan(&status)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to lock run: %w", err)
	}
	if scraper.RunStatus(status).Terminal() {
		_ = tx.Rollback(ctx)
		return store.ErrRunFinished
	}

	query := `
		UPDATE scrape_runs
		SET status = $2, total_pages = $3, pages_scraped = $4, articles_found = $5,
			articles_new = $6, articles_updated = $7, articles_failed = $8,
			error_count = $9, completed_at = $10, last_error = $11
		WHERE id = $1;
	`
	_, err = tx.Exec(ctx, query,
		run.ID,
		string(run.Status),
		run.TotalPages,
		run.PagesScraped,
		run.ArticlesFound,
		run.ArticlesNew,
		run.ArticlesUpdated,
		run.ArticlesFailed,
		run.ErrorCount,
		run.CompletedAt,
		run.LastError,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to update run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run update: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (scraper.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scrape_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.Run{}, store.ErrNotFound
	}
	if err != nil {
		return scraper.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetActiveRun returns the newest run still marked running.
func (s *RunStore) GetActiveRun(ctx context.Context) (scraper.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scrape_runs
		WHERE status = 'running' ORDER BY started_at DESC LIMIT 1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.Run{}, store.ErrNotFound
	}
	if err != nil {
		return scraper.Run{}, fmt.Errorf("failed to get active run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]scraper.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scrape_runs ORDER BY started_at DESC LIMIT $1;`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []scraper.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (scraper.Run, error) {
	var (
		run                      scraper.Run
		scrapeType, mode, status string
		cfg                      []byte
	)
	err := row.Scan(
		&run.ID,
		&scrapeType,
		&run.Source,
		&mode,
		&status,
		&run.TotalPages,
		&run.PagesScraped,
		&run.ArticlesFound,
		&run.ArticlesNew,
		&run.ArticlesUpdated,
		&run.ArticlesFailed,
		&run.ErrorCount,
		&run.StartedAt,
		&run.CompletedAt,
		&run.LastError,
		&cfg,
	)
	if err != nil {
		return scraper.Run{}, err
	}
	run.ScrapeType = scraper.ScrapeType(scrapeType)
	run.Mode = scraper.Mode(mode)
	run.Status = scraper.RunStatus(status)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &run.Config); err != nil {
			return scraper.Run{}, fmt.Errorf("decode run config: %w", err)
		}
	}
	return run, nil
}
