// Package bridgeconfig loads the bridge's runtime configuration from
// environment variables (optionally via a .env file), matching
// internal/config/loader.go's Load()/env-parsing idiom.
package bridgeconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the bridge's components need, per the
// Configuration sections of the spec.
type Config struct {
	// Ambient
	LogLevel            string
	LogPath             string
	HTTPPort            int
	ShutdownGracePeriod time.Duration

	// Postgres (C5)
	PostgresDSN string

	// Redis (C9)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Embedding (C2)
	EmbedBaseURL string
	EmbedAPIKey  string

	// Vector store (C3)
	QdrantHost       string
	QdrantPort       int
	QdrantUseTLS     bool
	QdrantAPIKey     string
	QdrantCollection string
	VectorDimension  int

	// Chunker (C1)
	EncodingName       string
	ChunkMaxTokens     int
	ChunkOverlapTokens int

	// BM25 (C4)
	BM25IndexPath string
	BM25K1        float64
	BM25B         float64
	RRFK          int

	// Webhook intake (C10)
	WebhookSecret string

	// Search API (C12)
	SearchAPISecret string

	// Rescrape (C13)
	FirecrawlAPIURL string
	FirecrawlAPIKey string
}

// Load reads configuration from the environment, applying sensible
// defaults for anything left unset.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		LogLevel:            getEnv("BRIDGE_LOG_LEVEL", "info"),
		LogPath:             getEnv("BRIDGE_LOG_PATH", ""),
		HTTPPort:            getEnvInt("BRIDGE_HTTP_PORT", 8085),
		ShutdownGracePeriod: getEnvDuration("BRIDGE_SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		PostgresDSN: getEnv("BRIDGE_POSTGRES_DSN", ""),

		RedisAddr:     getEnv("BRIDGE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("BRIDGE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("BRIDGE_REDIS_DB", 0),

		EmbedBaseURL: getEnv("BRIDGE_EMBED_BASE_URL", "http://localhost:8080"),
		EmbedAPIKey:  getEnv("BRIDGE_EMBED_API_KEY", ""),

		QdrantHost:       getEnv("BRIDGE_QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("BRIDGE_QDRANT_PORT", 6334),
		QdrantUseTLS:     getEnvBool("BRIDGE_QDRANT_USE_TLS", false),
		QdrantAPIKey:     getEnv("BRIDGE_QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("BRIDGE_QDRANT_COLLECTION", "bridge_documents"),
		VectorDimension:  getEnvInt("BRIDGE_VECTOR_DIM", 1024),

		EncodingName:       getEnv("BRIDGE_TOKENIZER_ENCODING", "cl100k_base"),
		ChunkMaxTokens:     getEnvInt("BRIDGE_CHUNK_MAX_TOKENS", 512),
		ChunkOverlapTokens: getEnvInt("BRIDGE_CHUNK_OVERLAP_TOKENS", 50),

		BM25IndexPath: getEnv("BRIDGE_BM25_INDEX_PATH", "./data/bm25_index.bin"),
		BM25K1:        getEnvFloat("BRIDGE_BM25_K1", 1.5),
		BM25B:         getEnvFloat("BRIDGE_BM25_B", 0.75),
		RRFK:          getEnvInt("BRIDGE_RRF_K", 60),

		WebhookSecret: getEnv("BRIDGE_WEBHOOK_SECRET", ""),

		SearchAPISecret: getEnv("BRIDGE_SEARCH_API_SECRET", ""),

		FirecrawlAPIURL: getEnv("BRIDGE_FIRECRAWL_API_URL", "http://firecrawl:3002"),
		FirecrawlAPIKey: getEnv("BRIDGE_FIRECRAWL_API_KEY", "self-hosted-no-auth"),
	}

	if cfg.PostgresDSN == "" {
		return cfg, fmt.Errorf("BRIDGE_POSTGRES_DSN is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
