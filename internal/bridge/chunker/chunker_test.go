package chunker

import "testing"

func TestChunk_OverlapInvariant(t *testing.T) {
	c, err := New("cl100k_base", 16, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := ""
	for i := 0; i < 200; i++ {
		text += "word "
	}

	chunks, err := c.Chunk(text, Metadata{URL: "https://e.com/a"})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for _, ch := range chunks {
		if ch.TokenCount > 16 {
			t.Errorf("chunk %d token_count %d exceeds max_tokens", ch.Index, ch.TokenCount)
		}
	}

	for i := 0; i < len(chunks)-1; i++ {
		overlap := chunks[i].EndToken - chunks[i+1].StartToken
		if overlap != 4 {
			t.Errorf("chunk %d->%d overlap = %d, want 4", i, i+1, overlap)
		}
	}
}

func TestChunk_EmptyText(t *testing.T) {
	c, err := New("cl100k_base", 16, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunks, err := c.Chunk("", Metadata{})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestChunk_SingleWindow(t *testing.T) {
	c, err := New("cl100k_base", 256, 50)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunks, err := c.Chunk("hello world", Metadata{URL: "https://e.com/a"})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
}

func TestNew_RejectsBadWindow(t *testing.T) {
	if _, err := New("cl100k_base", 10, 10); err == nil {
		t.Error("expected error when max_tokens == overlap_tokens")
	}
}
