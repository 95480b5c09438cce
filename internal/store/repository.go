package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrRunFinished signals an attempt to rewrite a run that already reached
	// a terminal status.
	ErrRunFinished = errors.New("run already finished")
)

// RunRepository persists scrape run history.
type RunRepository interface {
	// CreateRun inserts a new run.
	CreateRun(ctx context.Context, run scraper.Run) error
	// UpdateRun writes the full snapshot of an existing run. Rows already in
	// a terminal status are never rewritten; ErrRunFinished is returned.
	UpdateRun(ctx context.Context, run scraper.Run) error
	// GetRun returns one run or ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (scraper.Run, error)
	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]scraper.Run, error)
	// GetActiveRun returns the newest run still marked running, or ErrNotFound.
	GetActiveRun(ctx context.Context) (scraper.Run, error)
}

// ArticleRepository persists scraped articles keyed by (source, external id).
type ArticleRepository interface {
	ArticleExists(ctx context.Context, source, externalID string) (bool, error)
	InsertArticle(ctx context.Context, article scraper.Article) error
	UpdateArticle(ctx context.Context, article scraper.Article) error
}
