package vectorstore

import (
	"context"
	"testing"
)

func TestUpsert_RejectsDimensionMismatch(t *testing.T) {
	s := &Store{dimension: 3}

	err := s.Upsert(context.Background(), []Point{
		{ID: "a", Vector: []float32{1, 2, 3}},
		{ID: "b", Vector: []float32{1, 2}},
	})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	s := &Store{dimension: 3}
	if err := s.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("expected no error for empty upsert, got %v", err)
	}
}

func TestFilters_Conditions(t *testing.T) {
	f := Filters{Domain: "example.com", Language: "en"}
	conds := f.conditions()
	if len(conds) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(conds))
	}
}

