package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

// ArticleStore implements store.ArticleRepository using Postgres.
type ArticleStore struct {
	pool Pool
}

// NewArticleStore creates an ArticleStore on an existing pool.
func NewArticleStore(pool Pool) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ArticleStore{pool: pool}, nil
}

// ArticleExists reports whether the article is already stored.
func (s *ArticleStore) ArticleExists(ctx context.Context, source, externalID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM articles WHERE source = $1 AND external_id = $2);`
	if err := s.pool.QueryRow(ctx, query, source, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check article: %w", err)
	}
	return exists, nil
}

// InsertArticle inserts a new article row.
func (s *ArticleStore) InsertArticle(ctx context.Context, a scraper.Article) error {
	query := `
		INSERT INTO articles (
			source, external_id, url, title, content, excerpt, author, published_at,
			view_count, read_time_minutes, thumbnail_url, content_hash, tags, raw_uri
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`
	if _, err := s.pool.Exec(ctx, query, articleArgs(a)...); err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// UpdateArticle rewrites the content of an existing article.
func (s *ArticleStore) UpdateArticle(ctx context.Context, a scraper.Article) error {
	query := `
		UPDATE articles
		SET url = $3, title = $4, content = $5, excerpt = $6, author = $7, published_at = $8,
			view_count = $9, read_time_minutes = $10, thumbnail_url = $11, content_hash = $12,
			tags = $13, raw_uri = $14, updated_at = now()
		WHERE source = $1 AND external_id = $2;
	`
	res, err := s.pool.Exec(ctx, query, articleArgs(a)...)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func articleArgs(a scraper.Article) []any {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		a.Source,
		a.ExternalID,
		a.URL,
		a.Title,
		a.Content,
		a.Excerpt,
		nullable(a.Author),
		a.PublishedAt,
		a.ViewCount,
		a.ReadTimeMinutes,
		nullable(a.ThumbnailURL),
		a.ContentHash,
		tags,
		nullable(a.RawURI),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
