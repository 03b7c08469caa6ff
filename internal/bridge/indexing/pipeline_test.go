package indexing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"manifold/internal/bridge/bm25"
	"manifold/internal/bridge/chunker"
	"manifold/internal/bridge/embedclient"
	"manifold/internal/bridge/vectorstore"
)

func TestCleanText_CollapsesWhitespaceAndTrims(t *testing.T) {
	got := cleanText("  hello   world  \n\n")
	if got != "hello world" {
		t.Fatalf("cleanText mismatch: %q", got)
	}
}

func TestCleanText_BlankInputYieldsEmpty(t *testing.T) {
	if got := cleanText("   \n\t \n  "); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func newTestPipeline(t *testing.T, embedURL string) *Pipeline {
	t.Helper()
	ck, err := chunker.New("cl100k_base", 64, 8)
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	ec := embedclient.New(embedURL, "")
	vs, err := vectorstore.New("localhost", 6334, false, "", "test", 3)
	if err != nil {
		t.Fatalf("vectorstore.New: %v", err)
	}
	engine := bm25.New(t.TempDir()+"/index.bin", 1.5, 0.75)
	return New(ck, ec, vs, engine, nil)
}

func TestIndexDocument_RejectsEmptyAfterCleaning(t *testing.T) {
	p := newTestPipeline(t, "http://unused")
	result := p.IndexDocument(context.Background(), Document{URL: "https://e.com/a", Markdown: "   \n\n  "})
	if result.Success {
		t.Fatal("expected failure for empty document")
	}
}

func TestIndexDocument_RejectsDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{0.1, 0.2} // 2 dims, pipeline expects 3
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL)
	result := p.IndexDocument(context.Background(), Document{URL: "https://e.com/a", Markdown: "some real content about cats and dogs"})
	if result.Success {
		t.Fatal("expected dimension mismatch failure")
	}
}
