// Package indexing implements C7: the document indexing pipeline that
// chunks, embeds, upserts to the vector store, and indexes into BM25 —
// ported from original_source's IndexingService.index_document.
package indexing

import (
	"context"
	"regexp"
	"strings"

	"manifold/internal/bridge/bm25"
	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/chunker"
	"manifold/internal/bridge/embedclient"
	"manifold/internal/bridge/urlnorm"
	"manifold/internal/bridge/vectorstore"

	"github.com/google/uuid"
)

// Document is one crawled page submitted for indexing.
type Document struct {
	URL         string
	Markdown    string
	Title       string
	Description string
	Language    string
	Country     string
	IsMobile    bool
}

// Result is the outcome of indexing one document. Failures are values,
// not errors, matching the original's dict-returning contract — callers
// inspect Success/Error rather than unwrapping an error return.
type Result struct {
	Success       bool
	URL           string
	ChunksIndexed int
	TotalTokens   int
	Error         string
}

// Pipeline orchestrates the four indexing stages.
type Pipeline struct {
	Chunker chunker.Chunker
	Embed   *embedclient.Client
	Vector  *vectorstore.Store
	BM25    *bm25.Engine
	Log     bridgelog.Logger
}

func New(ck chunker.Chunker, ec *embedclient.Client, vs *vectorstore.Store, engine *bm25.Engine, log bridgelog.Logger) *Pipeline {
	if log == nil {
		log = bridgelog.Noop()
	}
	return &Pipeline{Chunker: ck, Embed: ec, Vector: vs, BM25: engine, Log: log}
}

var collapseWhitespace = regexp.MustCompile(`[ \t]+`)

// cleanText collapses runs of spaces and tabs inside each line to a single
// space, trims trailing spaces from each line, and trims leading and
// trailing whitespace from the whole text. Blank lines inside the text are
// kept as they are.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimRight(collapseWhitespace.ReplaceAllString(line, " "), " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// IndexDocument runs the four-stage pipeline: clean -> chunk -> embed ->
// upsert, with BM25 indexing last and treated as non-fatal on failure.
func (p *Pipeline) IndexDocument(ctx context.Context, doc Document) Result {
	cleaned := cleanText(doc.Markdown)
	if cleaned == "" {
		p.Log.Info("document has no content after cleaning", map[string]any{"url": doc.URL})
		return Result{Success: false, URL: doc.URL, Error: "no content after cleaning"}
	}

	domain := urlnorm.Domain(doc.URL)
	canonicalURL := urlnorm.Canonical(doc.URL)

	chunkMeta := chunker.Metadata{
		URL:          doc.URL,
		CanonicalURL: canonicalURL,
		Domain:       domain,
		Title:        doc.Title,
		Description:  doc.Description,
		Language:     doc.Language,
		Country:      doc.Country,
		IsMobile:     doc.IsMobile,
	}

	// Step 1: chunk text.
	chunks, err := p.Chunker.Chunk(cleaned, chunkMeta)
	if err != nil {
		p.Log.Error("failed to chunk text", map[string]any{"url": doc.URL, "error": err.Error()})
		return Result{Success: false, URL: doc.URL, Error: "chunking failed: " + err.Error()}
	}
	if len(chunks) == 0 {
		p.Log.Info("no chunks generated", map[string]any{"url": doc.URL})
		return Result{Success: false, URL: doc.URL, Error: "no chunks generated"}
	}

	// Step 2: embed chunk texts in one batch call.
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := p.Embed.EmbedBatch(ctx, texts)
	if err != nil {
		p.Log.Error("failed to generate embeddings", map[string]any{"url": doc.URL, "error": err.Error()})
		return Result{Success: false, URL: doc.URL, Error: "embedding failed: " + err.Error()}
	}
	if len(embeddings) > 0 && len(embeddings[0]) != p.Vector.Dimension() {
		msg := "embedding dimension mismatch: got a vector of different size than the configured collection dimension"
		p.Log.Error("vector dimension mismatch", map[string]any{"url": doc.URL})
		return Result{Success: false, URL: doc.URL, Error: msg}
	}

	// Step 3: upsert into the vector store.
	points := make([]vectorstore.Point, len(chunks))
	totalTokens := 0
	for i, c := range chunks {
		payload := map[string]any{
			"text":          c.Text,
			"url":           c.URL,
			"canonical_url": c.CanonicalURL,
			"domain":        c.Domain,
			"title":         c.Title,
			"description":   c.Description,
			"language":      c.Language,
			"country":       c.Country,
			"isMobile":      c.IsMobile,
			"chunk_index":   c.Index,
		}
		points[i] = vectorstore.Point{ID: uuid.NewString(), Vector: embeddings[i], Payload: payload}
		totalTokens += c.TokenCount
	}
	if err := p.Vector.Upsert(ctx, points); err != nil {
		p.Log.Error("failed to index vectors", map[string]any{"url": doc.URL, "error": err.Error()})
		return Result{Success: false, URL: doc.URL, Error: "vector indexing failed: " + err.Error()}
	}

	// Step 4: index the full cleaned document into BM25. Non-fatal:
	// vector search still works if this fails.
	bm25Meta := map[string]any{
		"url":           doc.URL,
		"canonical_url": canonicalURL,
		"domain":        domain,
		"title":         doc.Title,
		"description":   doc.Description,
		"language":      doc.Language,
		"country":       doc.Country,
		"isMobile":      doc.IsMobile,
	}
	p.BM25.IndexDocument(cleaned, bm25Meta)

	return Result{
		Success:       true,
		URL:           doc.URL,
		ChunksIndexed: len(points),
		TotalTokens:   totalTokens,
	}
}

