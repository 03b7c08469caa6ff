package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"manifold/internal/bridge/jobqueue"
)

func newTestQueue(t *testing.T) *jobqueue.Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	q, err := jobqueue.New(jobqueue.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	return q
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleWebhook_RejectsInvalidSignature(t *testing.T) {
	h := New("my-secret", newTestQueue(t), nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	body := []byte(`{"type":"crawl.page","data":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/firecrawl", bytes.NewReader(body))
	req.Header.Set("X-Firecrawl-Signature", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleWebhook_PageEventEnqueuesJobs(t *testing.T) {
	secret := "my-secret"
	h := New(secret, newTestQueue(t), nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	event := Event{
		Type: "crawl.page",
		ID:   "crawl-1",
		Data: []Document{
			{Markdown: "hello", Metadata: DocumentMetadata{URL: "https://e.com/a"}},
			{Markdown: "world", Metadata: DocumentMetadata{URL: "https://e.com/b"}},
		},
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/firecrawl", bytes.NewReader(body))
	req.Header.Set("X-Firecrawl-Signature", sign(secret, body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result pageEventResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Equal(t, "queued", result.Status)
	require.Equal(t, 2, result.QueuedJobs)
	require.Len(t, result.JobIDs, 2)
}

func TestHandleWebhook_LifecycleEventAcknowledged(t *testing.T) {
	secret := "my-secret"
	h := New(secret, newTestQueue(t), nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	event := Event{Type: "crawl.completed", ID: "crawl-1"}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/firecrawl", bytes.NewReader(body))
	req.Header.Set("X-Firecrawl-Signature", sign(secret, body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result lifecycleEventResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Equal(t, "acknowledged", result.Status)
}

func TestHandleWebhook_RejectsTruthyExtractField(t *testing.T) {
	secret := "my-secret"
	h := New(secret, newTestQueue(t), nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	event := Event{
		Type: "crawl.page",
		ID:   "crawl-1",
		Data: []Document{
			{Markdown: "hello", Metadata: DocumentMetadata{URL: "https://e.com/a"}, Extract: json.RawMessage(`{"foo":"bar"}`)},
			{Markdown: "world", Metadata: DocumentMetadata{URL: "https://e.com/b"}},
		},
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/firecrawl", bytes.NewReader(body))
	req.Header.Set("X-Firecrawl-Signature", sign(secret, body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result pageEventResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Equal(t, 1, result.QueuedJobs)
	require.Len(t, result.FailedDocuments, 1)
	require.Equal(t, "https://e.com/a", result.FailedDocuments[0].URL)
}

func TestHandleWebhook_UnsupportedEventType(t *testing.T) {
	secret := "my-secret"
	h := New(secret, newTestQueue(t), nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	body := []byte(`{"type":"unknown.thing"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/firecrawl", bytes.NewReader(body))
	req.Header.Set("X-Firecrawl-Signature", sign(secret, body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
