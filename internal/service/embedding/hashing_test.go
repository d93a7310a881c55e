package embedding

import (
	"context"
	"math"
	"testing"
)

func TestNewHashingEmbedderRejectsBadDimensions(t *testing.T) {
	if _, err := NewHashingEmbedder(0); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
}

func TestEmbedStringsNormalised(t *testing.T) {
	e, err := NewHashingEmbedder(64)
	if err != nil {
		t.Fatalf("NewHashingEmbedder err: %v", err)
	}

	vecs, err := e.EmbedStrings(context.Background(), []string{"Paris is the capital of France."})
	if err != nil {
		t.Fatalf("EmbedStrings err: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 64 {
		t.Fatalf("unexpected shape: %d vectors", len(vecs))
	}

	norm := 0.0
	for _, v := range vecs[0] {
		norm += v * v
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Fatalf("expected unit vector, got squared norm %f", norm)
	}
}

func TestEmbedStringsStopwordsOnlyIsZero(t *testing.T) {
	e, _ := NewHashingEmbedder(32)
	vecs, _ := e.EmbedStrings(context.Background(), []string{"the and of", ""})
	for i, vec := range vecs {
		for _, v := range vec {
			if v != 0 {
				t.Fatalf("vector %d expected zero, got %v", i, vec)
			}
		}
	}
}

func TestEmbedStringsDeterministicAndCaseInsensitive(t *testing.T) {
	e, _ := NewHashingEmbedder(128)
	vecs, _ := e.EmbedStrings(context.Background(), []string{"Capital of FRANCE", "capital of france"})
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestEmbedStringsHonoursCancellation(t *testing.T) {
	e, _ := NewHashingEmbedder(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedStrings(ctx, []string{"x"}); err == nil {
		t.Fatal("expected context error")
	}
}
