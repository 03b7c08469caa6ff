package rescrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"manifold/internal/bridge/indexing"
)

type fakeStore struct {
	event          ChangeEvent
	inProgressJob  string
	completedURL   string
	failedMsg      string
}

func (s *fakeStore) GetChangeEvent(ctx context.Context, id int64) (ChangeEvent, error) {
	return s.event, nil
}
func (s *fakeStore) MarkInProgress(ctx context.Context, id int64, jobID string) error {
	s.inProgressJob = jobID
	return nil
}
func (s *fakeStore) MarkCompleted(ctx context.Context, id int64, documentURL string) error {
	s.completedURL = documentURL
	return nil
}
func (s *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.failedMsg = errMsg
	return nil
}

type fakeIndexer struct {
	succeed bool
}

func (f *fakeIndexer) IndexDocument(ctx context.Context, doc indexing.Document) indexing.Result {
	if !f.succeed {
		return indexing.Result{Success: false, URL: doc.URL, Error: "boom"}
	}
	return indexing.Result{Success: true, URL: doc.URL, ChunksIndexed: 3}
}

func TestRun_SuccessMarksCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(firecrawlScrapeResponse{Success: true})
	}))
	defer srv.Close()

	store := &fakeStore{event: ChangeEvent{ID: 1, WatchURL: "https://e.com/a"}}
	job := New(store, &fakeIndexer{succeed: true}, srv.URL, "key", nil)

	result, err := job.Run(context.Background(), 1, "job-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ChunksIndexed != 3 {
		t.Fatalf("expected 3 chunks indexed, got %d", result.ChunksIndexed)
	}
	if store.completedURL != "https://e.com/a" {
		t.Fatalf("expected completed URL recorded, got %q", store.completedURL)
	}
	if store.inProgressJob != "job-1" {
		t.Fatalf("expected in-progress job id recorded, got %q", store.inProgressJob)
	}
}

func TestRun_FirecrawlFailureMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(firecrawlScrapeResponse{Success: false})
	}))
	defer srv.Close()

	store := &fakeStore{event: ChangeEvent{ID: 1, WatchURL: "https://e.com/a"}}
	job := New(store, &fakeIndexer{succeed: true}, srv.URL, "key", nil)

	_, err := job.Run(context.Background(), 1, "job-1")
	if err == nil {
		t.Fatal("expected error for failed firecrawl scrape")
	}
	if store.failedMsg == "" {
		t.Fatal("expected failure status recorded")
	}
}

func TestRun_IndexingFailureMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(firecrawlScrapeResponse{Success: true})
	}))
	defer srv.Close()

	store := &fakeStore{event: ChangeEvent{ID: 1, WatchURL: "https://e.com/a"}}
	job := New(store, &fakeIndexer{succeed: false}, srv.URL, "key", nil)

	_, err := job.Run(context.Background(), 1, "job-1")
	if err == nil {
		t.Fatal("expected error for failed indexing")
	}
	if store.failedMsg == "" {
		t.Fatal("expected failure status recorded")
	}
}
