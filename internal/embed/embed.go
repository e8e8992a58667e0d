// Package embed turns text into dense vectors for the semantic half of
// hybrid search.
package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/akhaire21/marktools/internal/text"
)

// ErrEmbeddingFailed wraps provider failures.
var ErrEmbeddingFailed = errors.New("embedding failed")

// Embedder converts texts into vectors. Implementations must return one
// vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, s string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{s})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrEmbeddingFailed, len(vecs))
	}
	return vecs[0], nil
}

// Batch embeds texts in chunks of at most size.
func Batch(ctx context.Context, e Embedder, texts []string, size int) ([][]float32, error) {
	if size <= 0 {
		size = 32
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingFailed, end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1], or 0 when
// either vector is empty, zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// HashEmbedder is a deterministic, offline embedder that hashes tokens and
// token bigrams into a fixed number of buckets. It needs no network access
// and produces identical vectors across runs.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder with the given dimension.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector size.
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// Embed hashes each text into an L2-normalized vector.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(s)
	}
	return out, nil
}

func (h *HashEmbedder) vector(s string) []float32 {
	vec := make([]float32, h.dims)
	tokens := text.Tokenize(s)

	add := func(feature string, weight float32) {
		hasher := fnv.New32a()
		hasher.Write([]byte(feature))
		sum := hasher.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%h.dims] += sign * weight
	}

	for i, tok := range tokens {
		if text.IsStopWord(tok) {
			continue
		}
		add(tok, 1)
		if i+1 < len(tokens) {
			add(tok+" "+tokens[i+1], 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// CachedEmbedder memoizes another embedder by exact text. Catalog texts are
// embedded once per process even when the index is rebuilt.
type CachedEmbedder struct {
	inner Embedder

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewCachedEmbedder wraps inner with an in-memory cache.
func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: make(map[string][]float32)}
}

// Dimensions returns the wrapped embedder's vector size.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Embed returns cached vectors and embeds only the misses.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.RLock()
	for i, s := range texts {
		if v, ok := c.cache[s]; ok {
			out[i] = v
		} else {
			missing = append(missing, s)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingFailed, len(missing), len(vecs))
	}

	c.mu.Lock()
	for j, v := range vecs {
		c.cache[missing[j]] = v
		out[missingIdx[j]] = v
	}
	c.mu.Unlock()

	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
