// Package rescrape implements C13: reacting to a detected content change
// by re-fetching the URL via Firecrawl and re-running it through the
// indexing pipeline, ported from original_source's rescrape.py.
package rescrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/indexing"
)

// ChangeEvent is one row read from webhook.change_events.
type ChangeEvent struct {
	ID       int64
	WatchURL string
}

// Store is the subset of contentstore's surface this package depends on.
type Store interface {
	GetChangeEvent(ctx context.Context, id int64) (ChangeEvent, error)
	MarkInProgress(ctx context.Context, id int64, jobID string) error
	MarkCompleted(ctx context.Context, id int64, documentURL string) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// Indexer is the subset of indexing.Pipeline this package depends on —
// the shared Service Pool's pipeline satisfies it directly.
type Indexer interface {
	IndexDocument(ctx context.Context, doc indexing.Document) indexing.Result
}

// Job runs one rescrape: fetch via Firecrawl, re-index, update state —
// across two separate transactions (status->in_progress commits before
// the external call; the final status commits after), so a crash mid
// Firecrawl-call never leaves the event uncommitted in "in_progress".
type Job struct {
	Store        Store
	Pipeline     Indexer
	FirecrawlURL string
	FirecrawlKey string
	HTTPClient   *http.Client
	Log          bridgelog.Logger
}

func New(store Store, pipeline Indexer, firecrawlURL, firecrawlKey string, log bridgelog.Logger) *Job {
	if log == nil {
		log = bridgelog.Noop()
	}
	return &Job{
		Store:        store,
		Pipeline:     pipeline,
		FirecrawlURL: firecrawlURL,
		FirecrawlKey: firecrawlKey,
		HTTPClient:   &http.Client{Timeout: 120 * time.Second},
		Log:          log,
	}
}

type firecrawlScrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type firecrawlScrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string         `json:"markdown"`
		HTML     string         `json:"html"`
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

// Run executes the rescrape job for changeEventID, using jobID for
// correlation.
func (j *Job) Run(ctx context.Context, changeEventID int64, jobID string) (Result, error) {
	event, err := j.Store.GetChangeEvent(ctx, changeEventID)
	if err != nil {
		return Result{}, fmt.Errorf("change event %d not found: %w", changeEventID, err)
	}

	if jobID != "" {
		if err := j.Store.MarkInProgress(ctx, changeEventID, jobID); err != nil {
			j.Log.Error("failed to mark rescrape in progress", map[string]any{"change_event_id": changeEventID, "error": err.Error()})
		}
	}

	scraped, err := j.scrape(ctx, event.WatchURL)
	if err != nil {
		j.fail(ctx, changeEventID, err)
		return Result{}, err
	}

	title, _ := scraped.Data.Metadata["title"].(string)
	description, _ := scraped.Data.Metadata["description"].(string)
	language, _ := scraped.Data.Metadata["language"].(string)
	country, _ := scraped.Data.Metadata["country"].(string)
	isMobile, _ := scraped.Data.Metadata["isMobile"].(bool)

	result := j.Pipeline.IndexDocument(ctx, indexing.Document{
		URL:         event.WatchURL,
		Markdown:    scraped.Data.Markdown,
		Title:       title,
		Description: description,
		Language:    language,
		Country:     country,
		IsMobile:    isMobile,
	})
	if !result.Success {
		err := fmt.Errorf("indexing failed: %s", result.Error)
		j.fail(ctx, changeEventID, err)
		return Result{}, err
	}

	if err := j.Store.MarkCompleted(ctx, changeEventID, event.WatchURL); err != nil {
		j.Log.Error("failed to mark rescrape completed", map[string]any{"change_event_id": changeEventID, "error": err.Error()})
	}

	return Result{ChangeEventID: changeEventID, URL: event.WatchURL, ChunksIndexed: result.ChunksIndexed}, nil
}

func (j *Job) fail(ctx context.Context, changeEventID int64, cause error) {
	j.Log.Error("rescrape failed", map[string]any{"change_event_id": changeEventID, "error": cause.Error()})
	msg := cause.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if err := j.Store.MarkFailed(ctx, changeEventID, msg); err != nil {
		j.Log.Error("failed to record rescrape failure", map[string]any{"change_event_id": changeEventID, "error": err.Error()})
	}
}

func (j *Job) scrape(ctx context.Context, url string) (firecrawlScrapeResponse, error) {
	reqBody, err := json.Marshal(firecrawlScrapeRequest{URL: url, Formats: []string{"markdown", "html"}, OnlyMainContent: true})
	if err != nil {
		return firecrawlScrapeResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.FirecrawlURL+"/v1/scrape", bytes.NewReader(reqBody))
	if err != nil {
		return firecrawlScrapeResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.FirecrawlKey)

	resp, err := j.HTTPClient.Do(req)
	if err != nil {
		return firecrawlScrapeResponse{}, fmt.Errorf("firecrawl request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return firecrawlScrapeResponse{}, fmt.Errorf("firecrawl returned status %d", resp.StatusCode)
	}

	var out firecrawlScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return firecrawlScrapeResponse{}, fmt.Errorf("decode firecrawl response: %w", err)
	}
	if !out.Success {
		return firecrawlScrapeResponse{}, fmt.Errorf("firecrawl scrape reported failure for %s", url)
	}
	return out, nil
}

// Result is the outcome of a successful rescrape.
type Result struct {
	ChangeEventID int64
	URL           string
	ChunksIndexed int
}

// PGStore is the production Store backed by Postgres, using two
// separate transactions as described above: the in-progress update
// commits immediately, independent of the final completed/failed update.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) GetChangeEvent(ctx context.Context, id int64) (ChangeEvent, error) {
	var ev ChangeEvent
	err := s.pool.QueryRow(ctx, `SELECT id, url FROM webhook.change_events WHERE id = $1`, id).Scan(&ev.ID, &ev.WatchURL)
	return ev, err
}

func (s *PGStore) MarkInProgress(ctx context.Context, id int64, jobID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE webhook.change_events SET rescrape_job_id = $1, rescrape_status = 'in_progress' WHERE id = $2`, jobID, id)
	return err
}

func (s *PGStore) MarkCompleted(ctx context.Context, id int64, documentURL string) error {
	_, err := s.pool.Exec(ctx, `UPDATE webhook.change_events SET rescrape_status = 'completed' WHERE id = $1`, id)
	_ = documentURL
	return err
}

func (s *PGStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE webhook.change_events SET rescrape_status = $1 WHERE id = $2`, "failed: "+errMsg, id)
	return err
}
