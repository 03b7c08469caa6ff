// Package contentstore implements C5: idempotent persistence of scraped
// documents keyed by content hash, crawl-session state, and operation
// metrics, against a Postgres-backed relational store via pgx.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/bridge/bridgelog"
)

// Document is the minimal shape Store needs from an ingested document.
type Document struct {
	URL         string
	SourceURL   string
	Markdown    string
	HTML        string
	Links       []string
	Screenshot  string
	Metadata    map[string]any
}

// Row is one persisted scraped_content row, per §3's Stored Content /
// §6's scraped_content table.
type Row struct {
	ID              int64
	CrawlSessionID  string
	URL             string
	SourceURL       string
	ContentSource   string
	Markdown        string
	HTML            string
	ContentHash     string
	ScrapedAt       time.Time
}

// Store is the production C5 client.
type Store struct {
	pool *pgxpool.Pool
	log  bridgelog.Logger
}

func New(pool *pgxpool.Pool, log bridgelog.Logger) *Store {
	if log == nil {
		log = bridgelog.Noop()
	}
	return &Store{pool: pool, log: log}
}

// OpenPool opens a Postgres connection pool with the bridge's conservative
// defaults and pings it before returning, matching
// internal/persistence/databases's newPgPool.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// StartSession upserts a crawl_sessions row marking a crawl as active,
// satisfying webhook.SessionStore for the "crawl.started" lifecycle event.
func (s *Store) StartSession(crawlID, sourceURL string, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhook.crawl_sessions (id, source, status, metadata)
		VALUES ($1, $2, 'active', $3)
		ON CONFLICT (id) DO UPDATE SET status = 'active', metadata = EXCLUDED.metadata
	`, crawlID, sourceURL, metaJSON)
	return err
}

// ContentHash computes the SHA-256 hex digest of the canonical body
// (markdown), per §3's "content hash (SHA-256 of canonical body)".
func ContentHash(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return hex.EncodeToString(sum[:])
}

// Store inserts one scraped_content row idempotently: (session_id, url,
// content_hash) is unique; on conflict the existing row is re-read and
// returned instead. An operation_metric row is emitted regardless of
// outcome.
func (s *Store) Store(ctx context.Context, sessionID, source string, doc Document) (Row, error) {
	start := time.Now()
	hash := ContentHash(doc.Markdown)

	linksJSON, err := json.Marshal(doc.Links)
	if err != nil {
		linksJSON = []byte("[]")
	}
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	var row Row
	insertErr := s.pool.QueryRow(ctx, `
		INSERT INTO webhook.scraped_content
			(crawl_session_id, url, source_url, content_source, markdown, html, links, screenshot, metadata, content_hash, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (crawl_session_id, url, content_hash) DO NOTHING
		RETURNING id, crawl_session_id, url, source_url, content_source, markdown, html, content_hash, scraped_at
	`, sessionID, doc.URL, doc.SourceURL, source, doc.Markdown, doc.HTML, linksJSON, doc.Screenshot, metaJSON, hash).
		Scan(&row.ID, &row.CrawlSessionID, &row.URL, &row.SourceURL, &row.ContentSource, &row.Markdown, &row.HTML, &row.ContentHash, &row.ScrapedAt)

	success := true
	errMsg := ""

	if insertErr == pgx.ErrNoRows {
		// ON CONFLICT DO NOTHING suppressed the insert; re-read the
		// existing row, per §4.5's idempotent-insert contract.
		readErr := s.pool.QueryRow(ctx, `
			SELECT id, crawl_session_id, url, source_url, content_source, markdown, html, content_hash, scraped_at
			FROM webhook.scraped_content
			WHERE crawl_session_id = $1 AND url = $2 AND content_hash = $3
		`, sessionID, doc.URL, hash).
			Scan(&row.ID, &row.CrawlSessionID, &row.URL, &row.SourceURL, &row.ContentSource, &row.Markdown, &row.HTML, &row.ContentHash, &row.ScrapedAt)
		if readErr != nil {
			success = false
			errMsg = readErr.Error()
		}
	} else if insertErr != nil {
		success = false
		errMsg = insertErr.Error()
	}

	s.recordOperation(ctx, "content_store", "store", time.Since(start), success, errMsg, "", "", doc.URL)

	if !success {
		return Row{}, insertErr
	}
	return row, nil
}

// StoreAsync launches a fire-and-forget background write per document: the
// caller never awaits these, and their failures are observable only via
// operation_metric rows, per §4.5/§5's supervised-task requirement. A
// context derived from context.Background (not the caller's request
// context) is used so the write is never cancelled by the HTTP response
// completing.
func (s *Store) StoreAsync(sessionID, source string, docs []Document) {
	for _, doc := range docs {
		doc := doc
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.Store(ctx, sessionID, source, doc); err != nil {
				s.log.Error("fire-and-forget content store write failed", map[string]any{
					"url":   doc.URL,
					"error": err.Error(),
				})
			}
		}()
	}
}

// ByURL returns stored rows for url, newest first.
func (s *Store) ByURL(ctx context.Context, url string, limit int) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, crawl_session_id, url, source_url, content_source, markdown, html, content_hash, scraped_at
		FROM webhook.scraped_content
		WHERE url = $1
		ORDER BY scraped_at DESC
		LIMIT $2
	`, url, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// BySession returns stored rows for sessionID, oldest first.
func (s *Store) BySession(ctx context.Context, sessionID string, limit, offset int) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, crawl_session_id, url, source_url, content_source, markdown, html, content_hash, scraped_at
		FROM webhook.scraped_content
		WHERE crawl_session_id = $1
		ORDER BY scraped_at ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.CrawlSessionID, &r.URL, &r.SourceURL, &r.ContentSource, &r.Markdown, &r.HTML, &r.ContentHash, &r.ScrapedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// recordOperation writes an operation_metrics row, matching the columns in
// original_source's domain/models.py OperationMetric, supplemented into
// SPEC_FULL.md's persisted-state layout.
func (s *Store) recordOperation(ctx context.Context, opType, opName string, dur time.Duration, success bool, errMsg, jobID, crawlID, documentURL string) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook.operation_metrics
			(timestamp, operation_type, operation_name, duration_ms, success, error_message, job_id, crawl_id, document_url)
		VALUES (now(), $1, $2, $3, $4, $5, $6, $7, $8)
	`, opType, opName, float64(dur.Microseconds())/1000.0, success, nullableString(errMsg), nullableString(jobID), nullableString(crawlID), nullableString(documentURL))
	if err != nil {
		s.log.Error("failed to record operation metric", map[string]any{"error": err.Error()})
	}
}

// RecordOperation exposes recordOperation for callers outside this
// package (C7, C13) that need to emit operation_metric rows of their own.
func (s *Store) RecordOperation(ctx context.Context, opType, opName string, dur time.Duration, success bool, errMsg, jobID, crawlID, documentURL string) {
	s.recordOperation(ctx, opType, opName, dur, success, errMsg, jobID, crawlID, documentURL)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
