// Package embedclient implements C2: a batch text->vector HTTP client
// against the external embedding inference service (treated as an
// oracle), with retry and lazy connection-pooled initialization.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"manifold/internal/bridge/bridgeerrors"
	"manifold/internal/bridge/retry"
)

// Client is the production embedding client. The underlying *http.Client
// is created lazily on first use so it is always constructed from a
// goroutine that will actually issue requests, and is safe for concurrent
// use afterward via Go's http.Client connection pooling.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration

	once       sync.Once
	httpClient *http.Client

	retryCfg retry.Config
}

// Option configures a Client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// New constructs a Client against baseURL (e.g. a TEI deployment).
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		timeout:  30 * time.Second,
		retryCfg: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) client() *http.Client {
	c.once.Do(func() {
		c.httpClient = &http.Client{Timeout: c.timeout}
	})
	return c.httpClient
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// EmbedBatch embeds texts in a single batch request, retrying transient
// HTTP errors up to 3 times with exponential backoff (2s-10s).
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	valid := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return nil, bridgeerrors.New(bridgeerrors.KindInvalidInput, "no non-empty texts provided for embedding")
	}

	result, err := retry.DoWithResult(ctx, c.retryCfg, func() ([][]float32, error) {
		return c.doEmbed(ctx, valid)
	})
	if err != nil {
		return nil, bridgeerrors.Wrap(bridgeerrors.KindUpstreamUnavailable, "embedding service unavailable", err)
	}
	for _, e := range result {
		if len(e) == 0 {
			return nil, bridgeerrors.New(bridgeerrors.KindUpstreamEmpty, "embedding service returned empty vector")
		}
	}
	return result, nil
}

// Embed embeds a single text, returning ValidationFailure-equivalent
// InvalidInput for empty text and UpstreamEmpty if the service returns a
// zero-length embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, bridgeerrors.New(bridgeerrors.KindInvalidInput, "empty text provided for embedding")
	}
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, bridgeerrors.New(bridgeerrors.KindUpstreamEmpty, "embedding service returned empty vector")
	}
	return vecs[0], nil
}

func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embed service returned status %d", resp.StatusCode)
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embed response count %d does not match request count %d", len(embeddings), len(texts))
	}

	return embeddings, nil
}

// HealthCheck pings the embedding service's /health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
