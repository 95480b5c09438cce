package postgres

import (
	"context"
	"fmt"
)

// Schema creates the run history and article tables. The partial unique index
// keeps at most one run in the running state.
const Schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id UUID PRIMARY KEY,
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
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	last_error TEXT,
	config JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE UNIQUE INDEX IF NOT EXISTS scrape_runs_one_running
	ON scrape_runs (status) WHERE status = 'running';
CREATE INDEX IF NOT EXISTS scrape_runs_started_at ON scrape_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS articles (
	source TEXT NOT NULL,
	external_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	excerpt TEXT NOT NULL DEFAULT '',
	author TEXT,
	published_at TIMESTAMPTZ,
	view_count INTEGER NOT NULL DEFAULT 0,
	read_time_minutes INTEGER NOT NULL DEFAULT 1,
	thumbnail_url TEXT,
	content_hash TEXT NOT NULL,
	tags TEXT[] NOT NULL DEFAULT '{}',
	raw_uri TEXT,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, external_id)
);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
