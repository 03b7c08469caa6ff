// Package webhook implements C10: the Firecrawl webhook intake surface —
// signature verification, page/lifecycle event dispatch, and crawl
// session bookkeeping, grounded on internal/httpapi/server.go's
// ServeMux routing and original_source's webhook_handlers.py dispatch.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/jobqueue"
)

var pageEventTypes = map[string]bool{
	"crawl.page":         true,
	"batch_scrape.page":  true,
}

var lifecycleEventTypes = map[string]bool{
	"crawl.started":          true,
	"crawl.completed":        true,
	"crawl.failed":           true,
	"batch_scrape.started":   true,
	"batch_scrape.completed": true,
	"extract.started":        true,
	"extract.completed":      true,
	"extract.failed":         true,
}

// DocumentMetadata is the per-document metadata block Firecrawl sends.
type DocumentMetadata struct {
	URL         string `json:"url"`
	SourceURL   string `json:"sourceURL"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Country     string `json:"country"`
	StatusCode  int    `json:"statusCode"`
}

// Document is one page payload inside a page event's data array.
// Extract carries the deprecated per-document extract field Firecrawl
// still sometimes sends; a present-and-truthy value is rejected rather
// than silently ignored (see DESIGN.md Open Question (c)).
type Document struct {
	Markdown string            `json:"markdown"`
	HTML     string            `json:"html"`
	Metadata DocumentMetadata  `json:"metadata"`
	Extract  json.RawMessage   `json:"extract,omitempty"`
}

// hasTruthyExtract reports whether the document's deprecated extract
// field is present and not a JSON null/empty-object/false value.
func (d Document) hasTruthyExtract() bool {
	switch len(d.Extract) {
	case 0:
		return false
	default:
		trimmed := string(d.Extract)
		return trimmed != "null" && trimmed != "{}" && trimmed != "false"
	}
}

// Event is the generic Firecrawl webhook envelope.
type Event struct {
	Type     string            `json:"type"`
	ID       string            `json:"id"`
	Data     []Document        `json:"data"`
	Metadata map[string]any    `json:"metadata"`
	Error    string            `json:"error"`
}

// SessionStore records crawl-session lifecycle transitions. Implemented
// by contentstore in production.
type SessionStore interface {
	StartSession(crawlID, url string, metadata map[string]any) error
}

// Handler serves the Firecrawl webhook endpoint.
type Handler struct {
	Secret   string
	Queue    *jobqueue.Queue
	Sessions SessionStore
	Log      bridgelog.Logger
}

func New(secret string, queue *jobqueue.Queue, sessions SessionStore, log bridgelog.Logger) *Handler {
	if log == nil {
		log = bridgelog.Noop()
	}
	return &Handler{Secret: secret, Queue: queue, Sessions: sessions, Log: log}
}

// Register wires the webhook route onto mux, matching
// internal/httpapi/server.go's registerRoutes pattern.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/webhook/firecrawl", h.handleWebhook)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("failed to read request body"))
		return
	}

	if h.Secret != "" {
		if !h.verifySignature(r, body) {
			h.Log.Error("webhook signature verification failed", map[string]any{
				"path": r.URL.Path,
			})
			respondError(w, http.StatusUnauthorized, errors.New("invalid signature"))
			return
		}
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		sample := body
		if len(sample) > 500 {
			sample = sample[:500]
		}
		h.Log.Error("failed to decode webhook payload", map[string]any{
			"error":  err.Error(),
			"sample": string(sample),
		})
		respondError(w, http.StatusUnprocessableEntity, errors.New("invalid document structure"))
		return
	}

	switch {
	case pageEventTypes[event.Type]:
		result := h.handlePageEvent(r.Context(), event)
		respondJSON(w, http.StatusOK, result)
	case lifecycleEventTypes[event.Type]:
		result := h.handleLifecycleEvent(event)
		respondJSON(w, http.StatusOK, result)
	default:
		h.Log.Error("unsupported firecrawl event type", map[string]any{"event_type": event.Type})
		respondError(w, http.StatusBadRequest, errors.New("unsupported event type: "+event.Type))
	}
}

// verifySignature checks the X-Firecrawl-Signature header as
// "sha256=<hex hmac>" over the raw body, using a constant-time compare —
// mirroring the HMAC verification pattern used throughout the webhook
// ecosystem examples, generalized since original_source itself doesn't
// show a signature check in the files retrieved for this session.
func (h *Handler) verifySignature(r *http.Request, body []byte) bool {
	const prefix = "sha256="
	header := r.Header.Get("X-Firecrawl-Signature")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	got, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(body)
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(got, want) == 1
}

type pageEventResult struct {
	Status         string              `json:"status"`
	QueuedJobs     int                 `json:"queued_jobs"`
	JobIDs         []string            `json:"job_ids"`
	FailedDocuments []failedDocument   `json:"failed_documents,omitempty"`
}

type failedDocument struct {
	URL   string `json:"url,omitempty"`
	Index int    `json:"index"`
	Error string `json:"error"`
}

// handlePageEvent enqueues one job per document, isolating each
// document's transform/enqueue failure from the rest of the batch and
// using EnqueueBatch's pipelining, matching _handle_page_event's
// per-document try/except plus Redis pipeline batching.
func (h *Handler) handlePageEvent(ctx context.Context, event Event) pageEventResult {
	if len(event.Data) == 0 {
		return pageEventResult{Status: "no_documents"}
	}

	jobs := make([]jobqueue.Job, 0, len(event.Data))
	indexByJob := make([]int, 0, len(event.Data))
	var failed []failedDocument

	for i, doc := range event.Data {
		url := doc.Metadata.URL
		if url == "" {
			failed = append(failed, failedDocument{Index: i, Error: "missing url in document metadata"})
			continue
		}
		if doc.hasTruthyExtract() {
			failed = append(failed, failedDocument{URL: url, Index: i, Error: "extract field is deprecated and not accepted"})
			continue
		}
		jobs = append(jobs, jobqueue.Job{
			URL:      url,
			Markdown: doc.Markdown,
			HTML:     doc.HTML,
			Metadata: map[string]any{
				"crawl_session_id": event.ID,
				"source":           "firecrawl",
				"source_url":       doc.Metadata.SourceURL,
				"title":            doc.Metadata.Title,
				"description":      doc.Metadata.Description,
				"language":         doc.Metadata.Language,
				"country":          doc.Metadata.Country,
				"status_code":      doc.Metadata.StatusCode,
			},
		})
		indexByJob = append(indexByJob, i)
	}

	var jobIDs []string
	if len(jobs) > 0 {
		ids, errs := h.Queue.EnqueueBatch(ctx, jobs)
		for i, err := range errs {
			if err != nil {
				failed = append(failed, failedDocument{
					URL:   jobs[i].URL,
					Index: indexByJob[i],
					Error: err.Error(),
				})
				continue
			}
			jobIDs = append(jobIDs, ids[i])
		}
	}

	status := "queued"
	if len(jobIDs) == 0 {
		status = "failed"
	}

	return pageEventResult{
		Status:          status,
		QueuedJobs:      len(jobIDs),
		JobIDs:          jobIDs,
		FailedDocuments: failed,
	}
}

type lifecycleEventResult struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
}

// handleLifecycleEvent records the start of a crawl session for
// "crawl.started" and otherwise just logs. Completion and failure events
// do not change the stored session state.
func (h *Handler) handleLifecycleEvent(event Event) lifecycleEventResult {
	if event.Type == "crawl.started" && h.Sessions != nil {
		url, _ := event.Metadata["url"].(string)
		if err := h.Sessions.StartSession(event.ID, url, event.Metadata); err != nil {
			h.Log.Error("failed to record crawl start", map[string]any{
				"crawl_id": event.ID,
				"error":    err.Error(),
			})
		}
	}

	if event.Error != "" {
		h.Log.Error("firecrawl crawl failed", map[string]any{"event_id": event.ID, "error": event.Error})
	} else {
		h.Log.Info("firecrawl lifecycle event", map[string]any{"event_id": event.ID, "event_type": event.Type})
	}

	return lifecycleEventResult{Status: "acknowledged", EventType: event.Type}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
