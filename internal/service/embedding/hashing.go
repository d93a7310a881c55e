// Package embedding provides an offline embedder for the document index.
package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
)

const DefaultDimensions = 512

var ErrInvalidDimensions = errors.New("embedding dimensions must be positive")

// HashingEmbedder maps terms into a fixed-size vector by hashing. It needs no
// vocabulary, so one instance can serve every session concurrently.
type HashingEmbedder struct {
	dimensions   int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

var _ embedding.Embedder = (*HashingEmbedder)(nil)

// NewHashingEmbedder creates an embedder producing vectors of the given size.
func NewHashingEmbedder(dimensions int) (*HashingEmbedder, error) {
	if dimensions <= 0 {
		return nil, ErrInvalidDimensions
	}
	return &HashingEmbedder{
		dimensions:   dimensions,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}, nil
}

// Dimensions returns the vector size.
func (e *HashingEmbedder) Dimensions() int { return e.dimensions }

// EmbedStrings embeds every text independently. Vectors are L2 normalised;
// texts without any indexable term produce a zero vector.
func (e *HashingEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embed(text string) []float64 {
	vec := make([]float64, e.dimensions)
	counts := make(map[int]int)
	for _, tok := range e.tokenize(text) {
		counts[e.bucket(tok)]++
	}
	if len(counts) == 0 {
		return vec
	}

	norm := 0.0
	for idx, count := range counts {
		// sub-linear tf
		w := 1 + math.Log(float64(count))
		vec[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (e *HashingEmbedder) bucket(token string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum64() % uint64(e.dimensions))
}

func (e *HashingEmbedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same",
		"too", "very", "can", "will", "just", "should", "now", "what", "which", "who", "whom", "do", "does",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
