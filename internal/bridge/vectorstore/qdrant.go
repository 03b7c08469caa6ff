// Package vectorstore implements C3: upserting points and running filtered
// kNN against a remote Qdrant collection, with retry on transient errors.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"manifold/internal/bridge/bridgeerrors"
	"manifold/internal/bridge/retry"
)

// Point is a single vector upsert target: opaque id, fixed-dimension
// vector, and a flat string-keyed payload (chunk metadata + chunk text).
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Result is one hit returned by Search.
type Result struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store is the production C3 client.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	retryCfg   retry.Config
}

// New dials host:port and wraps the collection name/dimension.
func New(host string, port int, useTLS bool, apiKey string, collection string, dimension int) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return &Store{
		client:     client,
		collection: collection,
		dimension:  dimension,
		retryCfg:   retry.DefaultConfig(),
	}, nil
}

func (s *Store) Dimension() int { return s.dimension }

func (s *Store) Close() error { return s.client.Close() }

// EnsureCollection creates the collection with cosine distance if it does
// not already exist. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	return retry.Do(ctx, s.retryCfg, func() error {
		exists, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("check collection exists: %w", err)
		}
		if exists {
			return nil
		}

		size := uint64(s.dimension)
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     size,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

// Upsert batch-inserts/updates points in a single round trip. Every point's
// vector length must equal the collection's dimension, or the whole call
// fails with DimensionMismatch before any network call is made.
func (s *Store) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return bridgeerrors.New(bridgeerrors.KindDimensionMismatch,
				fmt.Sprintf("point %s vector length %d != collection dimension %d", p.ID, len(p.Vector), s.dimension))
		}
	}
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	return retry.Do(ctx, s.retryCfg, func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         qpoints,
		})
		if err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
		return nil
	})
}

// Filters describes the conjunctive exact-match filters supported on
// Search, per §4.3.
type Filters struct {
	Domain   string
	Language string
	Country  string
	IsMobile *bool
}

func (f Filters) conditions() []*qdrant.Condition {
	var conds []*qdrant.Condition
	if f.Domain != "" {
		conds = append(conds, qdrant.NewMatch("domain", f.Domain))
	}
	if f.Language != "" {
		conds = append(conds, qdrant.NewMatch("language", f.Language))
	}
	if f.Country != "" {
		conds = append(conds, qdrant.NewMatch("country", f.Country))
	}
	if f.IsMobile != nil {
		conds = append(conds, qdrant.NewMatchBool("isMobile", *f.IsMobile))
	}
	return conds
}

// Search runs filtered kNN, returning at most limit results starting at
// offset, in descending score order.
func (s *Store) Search(ctx context.Context, vector []float32, limit, offset int, filters Filters) ([]Result, error) {
	var filter *qdrant.Filter
	if conds := filters.conditions(); len(conds) > 0 {
		filter = &qdrant.Filter{Must: conds}
	}

	limit64 := uint64(limit)
	offset64 := uint64(offset)

	results, err := retry.DoWithResult(ctx, s.retryCfg, func() ([]*qdrant.ScoredPoint, error) {
		return s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQueryDense(vector),
			Filter:         filter,
			Limit:          &limit64,
			Offset:         &offset64,
			WithPayload:    qdrant.NewWithPayload(true),
		})
	})
	if err != nil {
		return nil, bridgeerrors.Wrap(bridgeerrors.KindUpstreamUnavailable, "vector search failed", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{
			ID:      idString(r.GetId()),
			Score:   r.GetScore(),
			Payload: payloadToMap(r.GetPayload()),
		})
	}
	return out, nil
}

// CountPoints returns the total number of points in the collection. On any
// error it returns 0, per §4.3's "observational" contract.
func (s *Store) CountPoints(ctx context.Context) int {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil || info == nil || info.PointsCount == nil {
		return 0
	}
	return int(*info.PointsCount)
}

func idString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		default:
			out[k] = v.GetStringValue()
		}
	}
	return out
}
