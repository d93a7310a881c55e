// Package index builds a per-session vector index over pasted documents.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const DefaultTopK = 4

var (
	ErrNoEmbedder        = errors.New("index: embedder is required")
	ErrVectorMismatch    = errors.New("index: embedder returned wrong number of vectors")
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
)

// Store is an in-memory vector store searched by brute-force cosine
// similarity. It satisfies both the eino indexer and retriever contracts.
type Store struct {
	mu        sync.RWMutex
	embedder  embedding.Embedder
	topK      int
	dimension int
	docs      []*schema.Document
	vectors   [][]float64
}

var (
	_ indexer.Indexer     = (*Store)(nil)
	_ retriever.Retriever = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore(embedder embedding.Embedder, topK int) (*Store, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Store{embedder: embedder, topK: topK}, nil
}

// Store embeds and keeps the documents, returning their ids.
func (s *Store) Store(ctx context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, ErrVectorMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return nil, ErrDimensionMismatch
		}
	}
	s.dimension = dim

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		s.docs = append(s.docs, doc)
		s.vectors = append(s.vectors, normalize(vectors[i]))
	}
	return ids, nil
}

// Retrieve returns the documents most similar to query, best first. The
// similarity is attached to each returned copy as its score.
func (s *Store) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	options := retriever.GetCommonOptions(&retriever.Options{}, opts...)
	topK := s.topK
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.docs) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, ErrVectorMismatch
	}
	if len(vectors[0]) != s.dimension {
		return nil, ErrDimensionMismatch
	}
	queryVec := normalize(vectors[0])

	type scored struct {
		idx   int
		score float64
	}
	results := make([]scored, len(s.docs))
	for i, vec := range s.vectors {
		results[i] = scored{idx: i, score: dot(queryVec, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	out := make([]*schema.Document, 0, topK)
	for _, r := range results {
		if len(out) == topK {
			break
		}
		if options.ScoreThreshold != nil && r.score < *options.ScoreThreshold {
			break
		}
		out = append(out, cloneDocument(s.docs[r.idx]).WithScore(r.score))
	}
	return out, nil
}

// Len reports how many chunks are indexed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func cloneDocument(doc *schema.Document) *schema.Document {
	meta := make(map[string]any, len(doc.MetaData)+1)
	for k, v := range doc.MetaData {
		meta[k] = v
	}
	return &schema.Document{ID: doc.ID, Content: doc.Content, MetaData: meta}
}

func normalize(v []float64) []float64 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	out := make([]float64, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
