package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// NewSplitter returns the recursive character splitter used for indexing.
func NewSplitter(ctx context.Context, chunkSize, overlap int) (document.Transformer, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("invalid chunk overlap %d for chunk size %d", overlap, chunkSize)
	}

	return recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   chunkSize,
		OverlapSize: overlap,
		Separators:  []string{"\n\n", "\n", " "},
	})
}

// Builder turns documents into a queryable Store.
type Builder struct {
	splitter document.Transformer
	embedder embedding.Embedder
	topK     int
}

// NewBuilder creates a builder. A nil splitter indexes documents whole.
func NewBuilder(splitter document.Transformer, embedder embedding.Embedder, topK int) *Builder {
	return &Builder{splitter: splitter, embedder: embedder, topK: topK}
}

// Build splits, embeds and stores docs in a fresh Store.
func (b *Builder) Build(ctx context.Context, docs []*schema.Document) (*Store, error) {
	store, err := NewStore(b.embedder, b.topK)
	if err != nil {
		return nil, err
	}

	chunks, err := b.split(ctx, docs)
	if err != nil {
		return nil, err
	}

	if _, err := store.Store(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	return store, nil
}

func (b *Builder) split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
	chunks := docs
	if b.splitter != nil {
		var err error
		chunks, err = b.splitter.Transform(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("split documents: %w", err)
		}
	}

	out := make([]*schema.Document, 0, len(chunks))
	seen := make(map[string]int, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil || strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		// The splitter may reuse the parent id for every chunk.
		id := chunk.ID
		n := seen[id]
		seen[id] = n + 1
		out = append(out, &schema.Document{
			ID:       id + ":" + strconv.Itoa(n),
			Content:  chunk.Content,
			MetaData: chunk.MetaData,
		})
	}
	return out, nil
}
