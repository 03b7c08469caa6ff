package bm25

import (
	"path/filepath"
	"testing"
)

func TestIndexAndSearch_Basic(t *testing.T) {
	dir := t.TempDir()
	e := New(filepath.Join(dir, "index.bin"), 1.5, 0.75)

	e.IndexDocument("hello world, this is a test document about cats", map[string]any{"url": "https://e.com/cats"})
	e.IndexDocument("a completely unrelated document about boats", map[string]any{"url": "https://e.com/boats"})

	results, total := e.Search("cats", 10, 0, nil)
	if total != 1 {
		t.Fatalf("expected 1 match, got %d", total)
	}
	if len(results) != 1 || results[0].Metadata["url"] != "https://e.com/cats" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestIndexDocument_RejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	e := New(filepath.Join(dir, "index.bin"), 1.5, 0.75)
	e.IndexDocument("   ", map[string]any{})
	if e.DocumentCount() != 0 {
		t.Fatalf("expected empty text to be rejected, doc count = %d", e.DocumentCount())
	}
}

func TestSearch_FiltersAreConjunctive(t *testing.T) {
	dir := t.TempDir()
	e := New(filepath.Join(dir, "index.bin"), 1.5, 0.75)
	e.IndexDocument("cats are great pets", map[string]any{"domain": "a.com", "language": "en"})
	e.IndexDocument("cats are also independent", map[string]any{"domain": "b.com", "language": "en"})

	_, total := e.Search("cats", 10, 0, map[string]any{"domain": "a.com"})
	if total != 1 {
		t.Fatalf("expected 1 filtered match, got %d", total)
	}
}

func TestPersistence_AcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	e1 := New(path, 1.5, 0.75)
	preCount := e1.DocumentCount()
	e1.IndexDocument("a persisted document about dogs", map[string]any{"url": "https://e.com/dogs"})

	e2 := New(path, 1.5, 0.75)
	if e2.DocumentCount() != preCount+1 {
		t.Fatalf("expected doc count %d after restart, got %d", preCount+1, e2.DocumentCount())
	}

	results, _ := e2.Search("dogs", 10, 0, nil)
	if len(results) != 1 {
		t.Fatalf("expected restarted index to find the persisted document, got %d results", len(results))
	}
}

func TestSearch_Pagination(t *testing.T) {
	dir := t.TempDir()
	e := New(filepath.Join(dir, "index.bin"), 1.5, 0.75)
	for i := 0; i < 5; i++ {
		e.IndexDocument("shared keyword document number", map[string]any{"i": i})
	}

	page1, total := e.Search("shared keyword", 2, 0, nil)
	if total != 5 || len(page1) != 2 {
		t.Fatalf("expected 5 total, 2 on page1, got total=%d len=%d", total, len(page1))
	}
	page2, _ := e.Search("shared keyword", 2, 2, nil)
	if len(page2) != 2 {
		t.Fatalf("expected 2 on page2, got %d", len(page2))
	}
}
