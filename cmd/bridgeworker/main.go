// Command bridgeworker drains indexing jobs from the Redis queue (C9) and
// runs them through the batch indexing pipeline (C7/C8), persisting the
// scraped content (C5) of each successfully indexed document and an
// operation metric for every indexing attempt.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"manifold/internal/bridge/batchworker"
	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/contentstore"
	"manifold/internal/bridge/indexing"
	"manifold/internal/bridge/jobqueue"
	"manifold/internal/bridge/servicepool"
	"manifold/internal/bridgeconfig"
)

const (
	dequeueTimeout = 5 * time.Second
	batchWindow    = 2 * time.Second
	maxBatchSize   = 16
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bridgeworker")
	}
}

func run() error {
	cfg, err := bridgeconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zl := bridgelog.Init(cfg.LogLevel)
	logger := bridgelog.NewZerolog(zl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pgPool, err := contentstore.OpenPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	defer pgPool.Close()

	store := contentstore.New(pgPool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	pool, err := servicepool.Get(servicepool.Config{
		EncodingName:       cfg.EncodingName,
		ChunkMaxTokens:     cfg.ChunkMaxTokens,
		ChunkOverlapTokens: cfg.ChunkOverlapTokens,
		EmbedBaseURL:       cfg.EmbedBaseURL,
		EmbedAPIKey:        cfg.EmbedAPIKey,
		QdrantHost:         cfg.QdrantHost,
		QdrantPort:         cfg.QdrantPort,
		QdrantUseTLS:       cfg.QdrantUseTLS,
		QdrantAPIKey:       cfg.QdrantAPIKey,
		QdrantCollection:   cfg.QdrantCollection,
		VectorDimension:    cfg.VectorDimension,
		BM25IndexPath:      cfg.BM25IndexPath,
		BM25K1:             cfg.BM25K1,
		BM25B:              cfg.BM25B,
		Pool:               pgPool,
		Log:                logger,
	})
	if err != nil {
		return fmt.Errorf("build service pool: %w", err)
	}
	defer servicepool.Close()

	pipeline := indexing.New(pool.Chunker, pool.Embed, pool.Vector, pool.BM25, logger)
	worker := batchworker.New(pipeline, logger)

	queue, err := jobqueue.New(jobqueue.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer queue.Close()

	logger.Info("bridgeworker started", map[string]any{"queue": "bridge:index-jobs"})

	for ctx.Err() == nil {
		batch, err := drainBatch(ctx, queue, logger)
		if err != nil {
			logger.Error("drain batch failed", map[string]any{"error": err.Error()})
			continue
		}
		if len(batch) == 0 {
			continue
		}
		processBatch(ctx, worker, store, batch, logger)
	}

	logger.Info("bridgeworker stopped", nil)
	return nil
}

// drainBatch blocks for the first job (up to dequeueTimeout), then drains
// whatever else is immediately available, up to maxBatchSize or
// batchWindow since the first job arrived — whichever comes first.
func drainBatch(ctx context.Context, queue *jobqueue.Queue, logger bridgelog.Logger) ([]jobqueue.Job, error) {
	first, err := queue.Dequeue(ctx, dequeueTimeout)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, nil
	}

	batch := []jobqueue.Job{*first}
	deadline := time.Now().Add(batchWindow)
	for len(batch) < maxBatchSize && time.Now().Before(deadline) {
		job, err := queue.Dequeue(ctx, 50*time.Millisecond)
		if err != nil {
			logger.Error("dequeue during batch fill failed", map[string]any{"error": err.Error()})
			break
		}
		if job == nil {
			break
		}
		batch = append(batch, *job)
	}
	return batch, nil
}

func processBatch(ctx context.Context, worker *batchworker.Worker, store *contentstore.Store, batch []jobqueue.Job, logger bridgelog.Logger) {
	docs := make([]indexing.Document, len(batch))
	for i, job := range batch {
		docs[i] = toDocument(job)
	}

	start := time.Now()
	results := worker.IndexBatch(ctx, docs)

	for i, job := range batch {
		result := results[i]
		crawlID, _ := job.Metadata["crawl_session_id"].(string)
		source, _ := job.Metadata["source"].(string)
		if source == "" {
			source = "webhook"
		}

		if result.Success {
			store.StoreAsync(crawlID, source, []contentstore.Document{
				{
					URL:      job.URL,
					Markdown: job.Markdown,
					HTML:     job.HTML,
					Metadata: job.Metadata,
				},
			})
		}

		store.RecordOperation(ctx, "indexing", "index_document", time.Since(start), result.Success, result.Error, job.ID, crawlID, job.URL)

		if !result.Success {
			logger.Error("job failed", map[string]any{"job_id": job.ID, "url": job.URL, "error": result.Error})
		}
	}
}

func toDocument(job jobqueue.Job) indexing.Document {
	doc := indexing.Document{URL: job.URL, Markdown: job.Markdown}
	if job.Metadata == nil {
		return doc
	}
	if v, ok := job.Metadata["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := job.Metadata["description"].(string); ok {
		doc.Description = v
	}
	if v, ok := job.Metadata["language"].(string); ok {
		doc.Language = v
	}
	if v, ok := job.Metadata["country"].(string); ok {
		doc.Country = v
	}
	if v, ok := job.Metadata["isMobile"].(bool); ok {
		doc.IsMobile = v
	}
	return doc
}
