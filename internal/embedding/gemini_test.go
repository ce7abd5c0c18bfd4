package embedding

import (
	"context"
	"testing"
)

func TestNewGeminiEmbedder_RequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiEmbedder(context.Background(), "", "text-embedding-004", 768, nil); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestGeminiEmbedder_EmptyBatch(t *testing.T) {
	e, err := NewGeminiEmbedder(context.Background(), "test-key", "text-embedding-004", 768, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || len(out) != 0 {
		t.Errorf("empty batch: %v, %v", out, err)
	}
	if e.Model() != "text-embedding-004" || e.Dimensions() != 768 {
		t.Errorf("Model=%s Dimensions=%d", e.Model(), e.Dimensions())
	}
}
