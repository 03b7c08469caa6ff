// Package chunker implements C1: splitting a document into overlapping
// token windows sized to the embedder's context, using a real BPE
// tokenizer so token counts and overlaps are exact rather than heuristic.
package chunker

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"manifold/internal/bridge/bridgeerrors"
)

// Chunk is one token window of a Document, per §3 of the spec.
type Chunk struct {
	Index       int
	Text        string
	TokenCount  int
	StartToken  int
	EndToken    int
	URL         string
	CanonicalURL string
	Domain      string
	Title       string
	Description string
	Language    string
	Country     string
	IsMobile    bool
}

// Metadata carries the document-level fields that every chunk inherits.
type Metadata struct {
	URL          string
	CanonicalURL string
	Domain       string
	Title        string
	Description  string
	Language     string
	Country      string
	IsMobile     bool
}

// Chunker splits cleaned document text into Chunks.
type Chunker interface {
	Chunk(text string, meta Metadata) ([]Chunk, error)
	CountTokens(text string) (int, error)
}

// TokenChunker is the production Chunker backed by tiktoken-go. A single
// tiktoken.Tiktoken instance is shared and is not safe for concurrent use,
// so every Encode/Decode call is serialized by mu — the tokenizer is not
// reentrant.
type TokenChunker struct {
	mu            sync.Mutex
	enc           *tiktoken.Tiktoken
	maxTokens     int
	overlapTokens int
}

// New constructs a TokenChunker using the named tiktoken encoding (e.g.
// "cl100k_base"). maxTokens and overlapTokens must satisfy
// maxTokens > overlapTokens >= 0.
func New(encodingName string, maxTokens, overlapTokens int) (*TokenChunker, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, bridgeerrors.Wrap(bridgeerrors.KindChunkingError, "failed to load tokenizer encoding", err)
	}
	if maxTokens <= overlapTokens {
		return nil, bridgeerrors.New(bridgeerrors.KindChunkingError, "max_tokens must be greater than overlap_tokens")
	}
	return &TokenChunker{enc: enc, maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// CountTokens returns the token count of text without producing chunks.
func (c *TokenChunker) CountTokens(text string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens := c.enc.Encode(text, nil, nil)
	return len(tokens), nil
}

// Chunk encodes text into tokens and slides a max_tokens-wide window across
// them, stepping forward by max_tokens-overlap_tokens each time, so that
// every pair of consecutive chunks overlaps by exactly overlap_tokens
// tokens except for the final, possibly-shorter chunk.
func (c *TokenChunker) Chunk(text string, meta Metadata) ([]Chunk, error) {
	if text == "" {
		return nil, nil
	}

	c.mu.Lock()
	tokens := c.enc.Encode(text, nil, nil)
	c.mu.Unlock()

	if len(tokens) == 0 {
		return nil, nil
	}

	step := c.maxTokens - c.overlapTokens
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	for start, idx := 0, 0; start < len(tokens); start += step {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		window := tokens[start:end]

		c.mu.Lock()
		decoded := c.enc.Decode(window)
		c.mu.Unlock()

		chunks = append(chunks, Chunk{
			Index:        idx,
			Text:         decoded,
			TokenCount:   len(window),
			StartToken:   start,
			EndToken:     end,
			URL:          meta.URL,
			CanonicalURL: meta.CanonicalURL,
			Domain:       meta.Domain,
			Title:        meta.Title,
			Description:  meta.Description,
			Language:     meta.Language,
			Country:      meta.Country,
			IsMobile:     meta.IsMobile,
		})
		idx++

		if end == len(tokens) {
			break
		}
	}

	return chunks, nil
}
