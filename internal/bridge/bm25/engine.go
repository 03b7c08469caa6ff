// Package bm25 implements C4: an in-memory Okapi BM25 keyword index with
// disk snapshots and process-safe locking. No pack library implements
// Okapi BM25 scoring against the spec's mandated flat
// corpus/tokenized_corpus/metadata snapshot shape (see DESIGN.md), so the
// scoring here is a direct, from-scratch port of the rank_bm25.BM25Okapi
// algorithm the original Python service used.
package bm25

import (
	"encoding/json"
	"math"
	"os"
	"strings"
	"sync"

	"manifold/internal/bridge/bridgelog"
)

const epsilon = 0.25

// Entry is one indexed document: its original text and attached metadata.
type Entry struct {
	Text     string
	Metadata map[string]any
}

// SearchResult is one scored hit.
type SearchResult struct {
	Index    int
	Score    float64
	Text     string
	Metadata map[string]any
}

// snapshot is the on-disk persisted shape, matching §6's persisted-state
// layout: {corpus, tokenized_corpus, metadata}.
type snapshot struct {
	Corpus          []string         `json:"corpus"`
	TokenizedCorpus [][]string       `json:"tokenized_corpus"`
	Metadata        []map[string]any `json:"metadata"`
}

// Engine is the production C4 BM25 index.
type Engine struct {
	mu sync.Mutex

	k1 float64
	b  float64

	path string
	lock *snapshotLock
	log  bridgelog.Logger

	corpus          []string
	tokenizedCorpus [][]string
	metadata        []map[string]any

	idf        map[string]float64
	avgDocLen  float64
	docFreqs   []map[string]int
	docLens    []int
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l bridgelog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New constructs an Engine backed by the snapshot file at path (sibling
// lock file path+".lock"). k1 and b are the Okapi BM25 tuning parameters.
// The initial load is attempted; a lock timeout during load is recoverable
// (the engine starts empty and retries on later saves), matching §4.4's
// "Startup on initial snapshot-load timeout proceeds with an empty index"
// rule.
func New(path string, k1, b float64, opts ...Option) *Engine {
	e := &Engine{
		k1:   k1,
		b:    b,
		path: path,
		lock: newSnapshotLock(path),
		log:  bridgelog.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.load(); err != nil {
		e.log.Error("bm25 initial snapshot load failed, starting with empty index", map[string]any{"error": err.Error()})
		e.resetLocked()
	}
	return e
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// load acquires a shared lock, reads the snapshot, and rebuilds the live
// model. A lock timeout is returned to the caller (who falls back to an
// empty index); any other error (corruption) resets in-memory state to
// empty but does not return an error, matching the original's load/save
// asymmetry.
func (e *Engine) load() error {
	if _, err := os.Stat(e.path); os.IsNotExist(err) {
		e.mu.Lock()
		e.resetLocked()
		e.mu.Unlock()
		return nil
	}

	if err := e.lock.acquireShared(); err != nil {
		return err
	}
	defer e.lock.release()

	data, err := os.ReadFile(e.path)
	if err != nil {
		e.mu.Lock()
		e.resetLocked()
		e.mu.Unlock()
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		e.log.Error("bm25 snapshot decode failed, resetting index", map[string]any{"error": err.Error()})
		e.mu.Lock()
		e.resetLocked()
		e.mu.Unlock()
		return nil
	}

	e.mu.Lock()
	e.corpus = snap.Corpus
	e.tokenizedCorpus = snap.TokenizedCorpus
	e.metadata = snap.Metadata
	e.rebuildLocked()
	e.mu.Unlock()

	return nil
}

// save acquires an exclusive lock and rewrites the snapshot file. Timeouts
// and any other failure are logged but never fatal — the in-memory state
// remains authoritative until the next successful save.
func (e *Engine) save() {
	if err := e.lock.acquireExclusive(); err != nil {
		e.log.Error("bm25 snapshot save failed to acquire lock", map[string]any{"error": err.Error()})
		return
	}
	defer e.lock.release()

	e.mu.Lock()
	snap := snapshot{
		Corpus:          e.corpus,
		TokenizedCorpus: e.tokenizedCorpus,
		Metadata:        e.metadata,
	}
	e.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		e.log.Error("bm25 snapshot marshal failed", map[string]any{"error": err.Error()})
		return
	}
	if err := os.WriteFile(e.path, data, 0o644); err != nil {
		e.log.Error("bm25 snapshot write failed", map[string]any{"error": err.Error()})
	}
}

func (e *Engine) resetLocked() {
	e.corpus = nil
	e.tokenizedCorpus = nil
	e.metadata = nil
	e.idf = nil
	e.avgDocLen = 0
	e.docFreqs = nil
	e.docLens = nil
}

// IndexDocument appends one document to the corpus (one BM25 entry per
// source document, not per chunk). Empty/whitespace-only text is rejected
// silently (logged, no error), matching §3's invariant. The BM25 model is
// rebuilt from the complete corpus and the snapshot persisted.
func (e *Engine) IndexDocument(text string, metadata map[string]any) {
	if strings.TrimSpace(text) == "" {
		e.log.Error("bm25 index_document called with empty text, skipping", map[string]any{})
		return
	}

	tokens := tokenize(text)

	e.mu.Lock()
	e.corpus = append(e.corpus, text)
	e.tokenizedCorpus = append(e.tokenizedCorpus, tokens)
	e.metadata = append(e.metadata, metadata)
	e.rebuildLocked()
	e.mu.Unlock()

	e.save()
}

// rebuildLocked recomputes per-term document frequencies, IDF, and average
// document length from the full tokenizedCorpus. Callers must hold mu.
func (e *Engine) rebuildLocked() {
	n := len(e.tokenizedCorpus)
	e.docFreqs = make([]map[string]int, n)
	e.docLens = make([]int, n)

	termDocCount := map[string]int{}
	totalLen := 0

	for i, tokens := range e.tokenizedCorpus {
		freqs := map[string]int{}
		for _, t := range tokens {
			freqs[t]++
		}
		e.docFreqs[i] = freqs
		e.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for t := range freqs {
			termDocCount[t]++
		}
	}

	if n == 0 {
		e.idf = map[string]float64{}
		e.avgDocLen = 0
		return
	}

	e.avgDocLen = float64(totalLen) / float64(n)

	idf := make(map[string]float64, len(termDocCount))
	idfSum := 0.0
	var negative []string
	for term, freq := range termDocCount {
		v := math.Log(float64(n)-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	avgIDF := idfSum / float64(len(idf))
	eps := epsilon * avgIDF
	for _, term := range negative {
		idf[term] = eps
	}
	e.idf = idf
}

// scores computes the Okapi BM25 score for every document against the
// tokenized query.
func (e *Engine) scoresLocked(queryTokens []string) []float64 {
	n := len(e.tokenizedCorpus)
	scores := make([]float64, n)
	if n == 0 {
		return scores
	}
	for _, q := range queryTokens {
		idf, ok := e.idf[q]
		if !ok {
			continue
		}
		for i := 0; i < n; i++ {
			freq := float64(e.docFreqs[i][q])
			if freq == 0 {
				continue
			}
			denom := freq + e.k1*(1-e.b+e.b*float64(e.docLens[i])/e.avgDocLen)
			scores[i] += idf * (freq * (e.k1 + 1) / denom)
		}
	}
	return scores
}

// Search tokenizes query, scores every document, keeps the documents that
// contain at least one query token and pass the conjunctive metadata
// filters, sorts descending by score, and returns the
// [offset, offset+limit) slice alongside the post-filter, pre-slice total
// match count.
func (e *Engine) Search(query string, limit, offset int, filters map[string]any) ([]SearchResult, int) {
	e.mu.Lock()
	if len(e.tokenizedCorpus) == 0 {
		e.mu.Unlock()
		return nil, 0
	}

	queryTokens := tokenize(query)
	scores := e.scoresLocked(queryTokens)

	candidates := make([]scoredDoc, 0, len(scores))
	for i, s := range scores {
		matched := false
		for _, q := range queryTokens {
			if e.docFreqs[i][q] > 0 {
				matched = true
				break
			}
		}
		if !matched || !matchesFilters(e.metadata[i], filters) {
			continue
		}
		candidates = append(candidates, scoredDoc{index: i, score: s})
	}

	corpus := e.corpus
	metadata := e.metadata
	e.mu.Unlock()

	sortByScoreDesc(candidates)

	total := len(candidates)

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	results := make([]SearchResult, 0, end-start)
	for _, c := range candidates[start:end] {
		results = append(results, SearchResult{
			Index:    c.index,
			Score:    c.score,
			Text:     corpus[c.index],
			Metadata: metadata[c.index],
		})
	}

	return results, total
}

func matchesFilters(metadata map[string]any, filters map[string]any) bool {
	for k, v := range filters {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		docVal, ok := metadata[k]
		if !ok || docVal != v {
			return false
		}
	}
	return true
}

type scoredDoc struct {
	index int
	score float64
}

func sortByScoreDesc(items []scoredDoc) {
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && items[j-1].score < items[j].score {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
}

// DocumentCount returns the number of documents currently indexed.
func (e *Engine) DocumentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.corpus)
}
