package scraper

import (
	"context"
	"io"
	"time"
)

// Fetcher resolves work items against an external source.
type Fetcher interface {
	// List returns the article ids found on a listing or archive page. An
	// empty slice means the listing is exhausted.
	List(ctx context.Context, source string, item WorkItem) ([]string, error)
	// Fetch retrieves and parses one article. It returns ErrNotFound when the
	// article does not exist and a TransientFetchError when a retry may help.
	Fetch(ctx context.Context, source, externalID string) (Article, error)
}

// BlobStore persists raw article HTML.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher sends notifications about finished runs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RetryPolicy decides how failed fetches are retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}
