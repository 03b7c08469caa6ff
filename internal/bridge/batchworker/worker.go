// Package batchworker implements C8: fanning an indexing batch out across
// one goroutine per document, preserving input order in the output and
// isolating one document's panic from the rest of the batch.
package batchworker

import (
	"context"
	"fmt"
	"sync"

	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/indexing"
)

// Indexer is the subset of Pipeline that Worker depends on, so tests can
// substitute a fake without standing up the real chunk/embed/upsert chain.
type Indexer interface {
	IndexDocument(ctx context.Context, doc indexing.Document) indexing.Result
}

// Worker runs a batch of documents through an Indexer concurrently.
type Worker struct {
	Pipeline Indexer
	Log      bridgelog.Logger
}

func New(pipeline Indexer, log bridgelog.Logger) *Worker {
	if log == nil {
		log = bridgelog.Noop()
	}
	return &Worker{Pipeline: pipeline, Log: log}
}

// IndexBatch runs IndexDocument for every document concurrently,
// one goroutine per document, writing into an index-slotted result
// array rather than fanning into a channel — so the output order always
// matches the input order regardless of completion order. A panic in
// any single goroutine is recovered and turned into a failed Result for
// that slot instead of crashing the batch.
func (w *Worker) IndexBatch(ctx context.Context, docs []indexing.Document) []indexing.Result {
	results := make([]indexing.Result, len(docs))

	var wg sync.WaitGroup
	wg.Add(len(docs))
	for i, doc := range docs {
		i, doc := i, doc
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					w.Log.Error("panic while indexing document", map[string]any{
						"url":   doc.URL,
						"panic": fmt.Sprintf("%v", r),
					})
					results[i] = indexing.Result{Success: false, URL: doc.URL, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()
			results[i] = w.Pipeline.IndexDocument(ctx, doc)
		}()
	}
	wg.Wait()

	return results
}
