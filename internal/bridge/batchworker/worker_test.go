package batchworker

import (
	"context"
	"fmt"
	"testing"

	"manifold/internal/bridge/indexing"
)

type fakeIndexer struct {
	panicOn map[string]bool
}

func (f *fakeIndexer) IndexDocument(ctx context.Context, doc indexing.Document) indexing.Result {
	if f.panicOn[doc.URL] {
		panic("boom: " + doc.URL)
	}
	return indexing.Result{Success: true, URL: doc.URL, ChunksIndexed: 1}
}

func TestIndexBatch_PreservesInputOrder(t *testing.T) {
	docs := make([]indexing.Document, 20)
	for i := range docs {
		docs[i] = indexing.Document{URL: fmt.Sprintf("https://e.com/%d", i)}
	}

	w := New(&fakeIndexer{}, nil)
	results := w.IndexBatch(context.Background(), docs)

	if len(results) != len(docs) {
		t.Fatalf("expected %d results, got %d", len(docs), len(results))
	}
	for i, r := range results {
		if r.URL != docs[i].URL {
			t.Fatalf("result[%d] URL = %q, want %q", i, r.URL, docs[i].URL)
		}
		if !r.Success {
			t.Fatalf("result[%d] unexpectedly failed", i)
		}
	}
}

func TestIndexBatch_IsolatesPanickingDocument(t *testing.T) {
	docs := []indexing.Document{
		{URL: "https://e.com/ok-1"},
		{URL: "https://e.com/bad"},
		{URL: "https://e.com/ok-2"},
	}

	w := New(&fakeIndexer{panicOn: map[string]bool{"https://e.com/bad": true}}, nil)
	results := w.IndexBatch(context.Background(), docs)

	if results[0].Success != true || results[2].Success != true {
		t.Fatal("expected the non-panicking documents to succeed")
	}
	if results[1].Success {
		t.Fatal("expected the panicking document to be reported as a failure")
	}
}
