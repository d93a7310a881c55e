package index

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	localembed "github.com/zhouzirui/docchat/internal/service/embedding"
)

func newTestBuilder(t *testing.T, chunkSize, overlap int) *Builder {
	t.Helper()
	ctx := context.Background()
	splitter, err := NewSplitter(ctx, chunkSize, overlap)
	if err != nil {
		t.Fatalf("NewSplitter err: %v", err)
	}
	emb, _ := localembed.NewHashingEmbedder(256)
	return NewBuilder(splitter, emb, 2)
}

func TestBuildIndexesAndRetrieves(t *testing.T) {
	builder := newTestBuilder(t, DefaultChunkSize, DefaultChunkOverlap)
	ctx := context.Background()

	store, err := builder.Build(ctx, []*schema.Document{{ID: "doc", Content: "Paris is the capital of France."}})
	if err != nil {
		t.Fatalf("Build err: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 chunk, got %d", store.Len())
	}

	docs, err := store.Retrieve(ctx, "capital of France")
	if err != nil {
		t.Fatalf("Retrieve err: %v", err)
	}
	if len(docs) != 1 || !strings.Contains(docs[0].Content, "Paris") {
		t.Fatalf("unexpected retrieval: %+v", docs)
	}
}

func TestBuildSplitsLongDocumentsWithUniqueIDs(t *testing.T) {
	builder := newTestBuilder(t, 40, 10)
	text := strings.Repeat("Paris is the capital of France.\n\n", 6)

	store, err := builder.Build(context.Background(), []*schema.Document{{ID: "doc", Content: text}})
	if err != nil {
		t.Fatalf("Build err: %v", err)
	}
	if store.Len() < 2 {
		t.Fatalf("expected several chunks, got %d", store.Len())
	}

	seen := make(map[string]bool)
	for _, doc := range store.docs {
		if seen[doc.ID] {
			t.Fatalf("duplicate chunk id %s", doc.ID)
		}
		seen[doc.ID] = true
	}
}

func TestBuildEmptyTextYieldsEmptyIndex(t *testing.T) {
	builder := newTestBuilder(t, DefaultChunkSize, DefaultChunkOverlap)

	store, err := builder.Build(context.Background(), []*schema.Document{{ID: "doc", Content: "   "}})
	if err != nil {
		t.Fatalf("Build err: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty index, got %d", store.Len())
	}
}

func TestBuildWithoutSplitterKeepsWholeDocuments(t *testing.T) {
	emb, _ := localembed.NewHashingEmbedder(64)
	builder := NewBuilder(nil, emb, 1)

	store, err := builder.Build(context.Background(), []*schema.Document{{ID: "doc", Content: strings.Repeat("word ", 500)}})
	if err != nil {
		t.Fatalf("Build err: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 chunk, got %d", store.Len())
	}
}

func TestNewSplitterRejectsOverlapLargerThanChunk(t *testing.T) {
	if _, err := NewSplitter(context.Background(), 100, 100); err == nil {
		t.Fatal("expected error for overlap >= chunk size")
	}
}
