package contentstore

import "context"

// schemaStatements creates the webhook schema tables this package depends
// on, matching original_source's domain/models.py column sets
// (ScrapedContent, CrawlSession, ChangeEvent, OperationMetric).
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS webhook`,
	`CREATE TABLE IF NOT EXISTS webhook.crawl_sessions (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		page_count INTEGER NOT NULL DEFAULT 0,
		metadata JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS webhook.scraped_content (
		id BIGSERIAL PRIMARY KEY,
		crawl_session_id TEXT NOT NULL REFERENCES webhook.crawl_sessions(id),
		url TEXT NOT NULL,
		source_url TEXT,
		content_source TEXT NOT NULL,
		markdown TEXT NOT NULL,
		html TEXT,
		links JSONB,
		screenshot TEXT,
		metadata JSONB,
		content_hash TEXT NOT NULL,
		scraped_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (crawl_session_id, url, content_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS scraped_content_url_idx ON webhook.scraped_content (url)`,
	`CREATE TABLE IF NOT EXISTS webhook.change_events (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL,
		crawl_session_id TEXT REFERENCES webhook.crawl_sessions(id),
		previous_hash TEXT,
		current_hash TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		rescrape_job_id TEXT,
		rescrape_status TEXT NOT NULL DEFAULT 'pending'
	)`,
	`CREATE TABLE IF NOT EXISTS webhook.operation_metrics (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		operation_type TEXT NOT NULL,
		operation_name TEXT NOT NULL,
		duration_ms DOUBLE PRECISION NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT,
		request_id TEXT,
		job_id TEXT,
		crawl_id TEXT,
		document_url TEXT,
		extra_metadata JSONB
	)`,
}

// EnsureSchema runs all schema-creation statements, idempotent via
// IF NOT EXISTS, mirroring the teacher's persistence.databases migration
// bootstrapping.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
