// Package search implements C11: the hybrid search orchestrator,
// combining vector similarity and BM25 keyword search via Reciprocal
// Rank Fusion, ported from original_source's search.py.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"manifold/internal/bridge/bm25"
	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/embedclient"
	"manifold/internal/bridge/vectorstore"
)

// Mode selects which backend(s) to query.
type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword Mode = "keyword"
)

// Filters mirrors vectorstore.Filters/bm25's map-based filters as one
// shared shape across both backends.
type Filters struct {
	Domain   string
	Language string
	Country  string
	IsMobile *bool
}

func (f Filters) toVectorFilters() vectorstore.Filters {
	return vectorstore.Filters{Domain: f.Domain, Language: f.Language, Country: f.Country, IsMobile: f.IsMobile}
}

func (f Filters) toBM25Filters() map[string]any {
	m := map[string]any{}
	if f.Domain != "" {
		m["domain"] = f.Domain
	}
	if f.Language != "" {
		m["language"] = f.Language
	}
	if f.Country != "" {
		m["country"] = f.Country
	}
	if f.IsMobile != nil {
		m["isMobile"] = *f.IsMobile
	}
	return m
}

// Result is one fused/backend search hit.
type Result struct {
	ID       string
	Payload  map[string]any
	Metadata map[string]any
	Score    float64
	RRFScore float64
}

// dedupKey implements the canonical_url -> url -> id precedence chain
// from reciprocal_rank_fusion's doc_id resolution.
func (r Result) dedupKey(fallback string) string {
	if v, ok := r.Payload["canonical_url"].(string); ok && v != "" {
		return v
	}
	if v, ok := r.Metadata["canonical_url"].(string); ok && v != "" {
		return v
	}
	if v, ok := r.Payload["url"].(string); ok && v != "" {
		return v
	}
	if v, ok := r.Metadata["url"].(string); ok && v != "" {
		return v
	}
	if r.ID != "" {
		return r.ID
	}
	return fallback
}

const defaultRRFK = 60

// FuseRRF merges multiple ranked result lists by Reciprocal Rank Fusion:
// score(d) = sum(1 / (k + rank_i(d))), deduplicated by dedupKey,
// descending by fused score.
func FuseRRF(rankedLists [][]Result, k int) []Result {
	if k <= 0 {
		k = defaultRRFK
	}

	scores := map[string]float64{}
	first := map[string]Result{}
	order := []string{}

	for _, list := range rankedLists {
		for i, r := range list {
			rank := i + 1
			key := r.dedupKey(fmt.Sprintf("__rank_%d_%p", rank, &list))
			if _, seen := first[key]; !seen {
				first[key] = r
				order = append(order, key)
			}
			scores[key] += 1.0 / float64(k+rank)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	out := make([]Result, 0, len(order))
	for _, key := range order {
		r := first[key]
		r.RRFScore = scores[key]
		out = append(out, r)
	}
	return out
}

// Orchestrator runs hybrid/semantic/keyword search.
type Orchestrator struct {
	Embed  *embedclient.Client
	Vector *vectorstore.Store
	BM25   *bm25.Engine
	RRFK   int
	Log    bridgelog.Logger
}

func New(ec *embedclient.Client, vs *vectorstore.Store, engine *bm25.Engine, rrfK int, log bridgelog.Logger) *Orchestrator {
	if log == nil {
		log = bridgelog.Noop()
	}
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	return &Orchestrator{Embed: ec, Vector: vs, BM25: engine, RRFK: rrfK, Log: log}
}

// Search executes search with the requested mode, returning (results, total).
func (o *Orchestrator) Search(ctx context.Context, query string, mode Mode, limit, offset int, filters Filters) ([]Result, int, error) {
	switch mode {
	case ModeHybrid, "":
		return o.hybridSearch(ctx, query, limit, offset, filters)
	case ModeSemantic:
		return o.semanticSearch(ctx, query, limit, offset, filters)
	case ModeKeyword:
		return o.keywordSearch(query, limit, offset, filters), bm25Total(o, query, filters), nil
	default:
		return nil, 0, fmt.Errorf("unknown search mode: %s", mode)
	}
}

// dedupBufferFactor widens the pre-fusion fetch window so ranking stays
// accurate across pages, matching _hybrid_search's fetch_limit formula.
const dedupBufferFactor = 1.5

func (o *Orchestrator) hybridSearch(ctx context.Context, query string, limit, offset int, filters Filters) ([]Result, int, error) {
	fetchLimit := int(math.Ceil(float64(limit+offset) * dedupBufferFactor))
	if fetchLimit < limit+offset {
		fetchLimit = limit + offset
	}

	vectorResults, vectorTotal, err := o.semanticSearch(ctx, query, fetchLimit, 0, filters)
	if err != nil {
		return nil, 0, err
	}
	keywordResults := o.keywordSearch(query, fetchLimit, 0, filters)
	keywordTotal := bm25Total(o, query, filters)

	fused := FuseRRF([][]Result{vectorResults, keywordResults}, o.RRFK)

	total := vectorTotal
	if keywordTotal > total {
		total = keywordTotal
	}

	start := offset
	if start > len(fused) {
		start = len(fused)
	}
	end := start + limit
	if end > len(fused) {
		end = len(fused)
	}

	return fused[start:end], total, nil
}

func (o *Orchestrator) semanticSearch(ctx context.Context, query string, limit, offset int, filters Filters) ([]Result, int, error) {
	vector, err := o.Embed.Embed(ctx, query)
	if err != nil {
		o.Log.Error("failed to generate query embedding", map[string]any{"error": err.Error()})
		return nil, 0, nil
	}
	if len(vector) == 0 {
		o.Log.Info("query embedding was empty", map[string]any{"query": query})
		return nil, 0, nil
	}

	hits, err := o.Vector.Search(ctx, vector, limit, offset, filters.toVectorFilters())
	if err != nil {
		return nil, 0, err
	}
	total := o.Vector.CountPoints(ctx)

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.ID, Payload: h.Payload, Score: float64(h.Score)}
	}
	return results, total, nil
}

func (o *Orchestrator) keywordSearch(query string, limit, offset int, filters Filters) []Result {
	hits, _ := o.BM25.Search(query, limit, offset, filters.toBM25Filters())
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: fmt.Sprintf("bm25-%d", h.Index), Metadata: h.Metadata, Score: h.Score}
	}
	return results
}

func bm25Total(o *Orchestrator, query string, filters Filters) int {
	_, total := o.BM25.Search(query, 0, 0, filters.toBM25Filters())
	return total
}
