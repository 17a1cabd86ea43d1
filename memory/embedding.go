package memory

import (
	"context"
	"math"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/kioku-ai/kioku/logging"
)

// EmbeddingService wraps a raw Embedder provider with input
// validation, a bounded memoization cache keyed by raw text, and L2
// normalization of every vector it hands out. It satisfies Embedder
// itself, so callers never touch the provider directly.
type EmbeddingService struct {
	provider Embedder
	cache    *ristretto.Cache
}

// NewEmbeddingService builds the service. The provider must already
// be initialized; an unreachable or misconfigured provider fails its
// own constructor, not this one.
func NewEmbeddingService(provider Embedder, cacheSize int) (*EmbeddingService, error) {
	if provider == nil {
		return nil, goerr.New("embedding provider is required", goerr.T(TagInitFailure))
	}
	if cacheSize <= 0 {
		cacheSize = DefaultConfig().CacheSize
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cacheSize) * 10,
		MaxCost:     int64(cacheSize),
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache", goerr.T(TagInitFailure))
	}

	return &EmbeddingService{
		provider: provider,
		cache:    cache,
	}, nil
}

// Embed converts text to a unit-norm embedding vector. Results are
// memoized by raw text; a cache hit skips the provider entirely.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.New("empty text cannot be embedded", goerr.T(TagInvalidInput))
	}

	if cached, ok := s.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return cloneVector(vec), nil
		}
	}

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		logging.From(ctx).Error("embedding generation failed",
			"text_len", len(text), "error", err)
		return nil, goerr.Wrap(err, "failed to embed text")
	}

	vec = Normalize(vec)

	// The cache keeps its own copy and hands out copies, so callers
	// may mutate returned vectors without corrupting later lookups.
	s.cache.Set(text, cloneVector(vec), 1)
	// Flush the admission buffer so repeated lookups of the same text
	// hit the cache deterministically.
	s.cache.Wait()

	return vec, nil
}

// EmbedBatch embeds several texts, silently dropping empty and
// whitespace-only entries. The output order matches the filtered
// input order; callers must not assume output length equals input
// length.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	valid := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	vecs, err := s.provider.EmbedBatch(ctx, valid)
	if err != nil {
		logging.From(ctx).Error("batch embedding failed",
			"count", len(valid), "error", err)
		return nil, goerr.Wrap(err, "failed to embed batch")
	}

	for i, v := range vecs {
		vecs[i] = Normalize(v)
	}
	return vecs, nil
}

// Dimensions returns the provider's embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.provider.Dimensions()
}

// Similarity is the dot product of two unit-norm vectors, equivalent
// to cosine similarity. Callers must only pass normalized vectors.
func Similarity(a, b []float32) float64 {
	var dot float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

// Normalize scales vec to unit L2 norm. A zero vector is returned
// unchanged to avoid division by zero.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
