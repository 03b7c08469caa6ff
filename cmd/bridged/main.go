// Command bridged serves the hybrid search-indexing bridge's HTTP surface:
// the Firecrawl webhook intake (C10) and the search API (C12), sharing the
// process-wide service pool (C6) with cmd/bridgeworker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/contentstore"
	"manifold/internal/bridge/jobqueue"
	"manifold/internal/bridge/search"
	"manifold/internal/bridge/searchapi"
	"manifold/internal/bridge/servicepool"
	"manifold/internal/bridge/webhook"
	"manifold/internal/bridgeconfig"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bridged")
	}
}

func run() error {
	cfg, err := bridgeconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zl := bridgelog.Init(cfg.LogLevel)
	logger := bridgelog.NewZerolog(zl)

	baseCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pgPool, err := contentstore.OpenPool(baseCtx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	defer pgPool.Close()

	store := contentstore.New(pgPool, logger)
	if err := store.EnsureSchema(baseCtx); err != nil {
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

	queue, err := jobqueue.New(jobqueue.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer queue.Close()

	orchestrator := search.New(pool.Embed, pool.Vector, pool.BM25, cfg.RRFK, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	webhookHandler := webhook.New(cfg.WebhookSecret, queue, store, logger)
	webhookHandler.Register(mux)

	searchServer := searchapi.New(orchestrator, cfg.SearchAPISecret, logger)
	searchServer.Register(mux)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("bridged listening", map[string]any{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("bridged: listen")
		}
	}()

	<-baseCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", map[string]any{"error": err.Error()})
	} else {
		logger.Info("bridged stopped", nil)
	}
	return nil
}
