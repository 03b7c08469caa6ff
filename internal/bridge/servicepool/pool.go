// Package servicepool provides process-wide singleton access to the
// chunker, embedding client, vector store, content store, and BM25 engine,
// mirroring original_source's ServicePool class-var singleton with
// double-checked locking.
package servicepool

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/bridge/bm25"
	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/chunker"
	"manifold/internal/bridge/contentstore"
	"manifold/internal/bridge/embedclient"
	"manifold/internal/bridge/vectorstore"
)

// Config carries everything needed to construct the singleton services.
type Config struct {
	EncodingName      string
	ChunkMaxTokens    int
	ChunkOverlapTokens int

	EmbedBaseURL string
	EmbedAPIKey  string

	QdrantHost       string
	QdrantPort       int
	QdrantUseTLS     bool
	QdrantAPIKey     string
	QdrantCollection string
	VectorDimension  int

	BM25IndexPath string
	BM25K1        float64
	BM25B         float64

	Pool *pgxpool.Pool
	Log  bridgelog.Logger
}

// Pool holds the singleton service instances, constructed once and shared
// by every request, matching original_source's ServicePool semantics.
type Pool struct {
	Chunker      chunker.Chunker
	Embed        *embedclient.Client
	Vector       *vectorstore.Store
	Content      *contentstore.Store
	BM25         *bm25.Engine
}

var (
	instance *Pool
	mu       sync.Mutex
)

// Get returns the process-wide singleton, constructing it on first use
// under double-checked locking — mirroring get_instance()'s
// ClassVar[Optional[...]] + threading.Lock pattern from original_source.
func Get(cfg Config) (*Pool, error) {
	if p := instance; p != nil {
		return p, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}

	p, err := build(cfg)
	if err != nil {
		return nil, err
	}
	instance = p
	return instance, nil
}

func build(cfg Config) (*Pool, error) {
	log := cfg.Log
	if log == nil {
		log = bridgelog.Noop()
	}

	ck, err := chunker.New(cfg.EncodingName, cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)
	if err != nil {
		return nil, err
	}

	ec := embedclient.New(cfg.EmbedBaseURL, cfg.EmbedAPIKey)

	vs, err := vectorstore.New(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantUseTLS, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.VectorDimension)
	if err != nil {
		return nil, err
	}

	k1, b := cfg.BM25K1, cfg.BM25B
	if k1 == 0 {
		k1 = 1.5
	}
	if b == 0 {
		b = 0.75
	}
	engine := bm25.New(cfg.BM25IndexPath, k1, b)

	var cs *contentstore.Store
	if cfg.Pool != nil {
		cs = contentstore.New(cfg.Pool, log)
	}

	return &Pool{
		Chunker: ck,
		Embed:   ec,
		Vector:  vs,
		Content: cs,
		BM25:    engine,
	}, nil
}

// Close releases resources held by the singleton's services (currently
// just the vector store's gRPC connection).
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		return nil
	}
	err := instance.Vector.Close()
	instance = nil
	return err
}

// Reset clears the singleton. Test-only, matching original_source's
// reset() classmethod used between test cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}
