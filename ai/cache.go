// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"context"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/filesense/core"
)

const (
	defaultCacheMaxCost  = 64 << 20 // 64 MiB of vectors
	defaultCacheCounters = 1e5
)

// CachedEmbedder wraps an Embedder with a bounded in-memory cache keyed by
// content hash, so re-indexing unchanged chunk text never recomputes
// embeddings. It also applies deterministic input truncation before
// delegation, which keeps cache keys and model inputs consistent.
//
// Safe for concurrent use; the underlying cache handles its own
// synchronization.
type CachedEmbedder struct {
	inner    Embedder
	cache    *ristretto.Cache[uint64, []float32]
	maxChars int
	logger   *slog.Logger
}

var _ Embedder = (*CachedEmbedder)(nil)

// CacheOption is a functional option for configuring a CachedEmbedder.
type CacheOption func(*CachedEmbedder)

// WithCacheMaxCost bounds the cache size in bytes of stored vectors.
func WithCacheMaxCost(maxCost int64) CacheOption {
	return func(e *CachedEmbedder) {
		if e.cache != nil {
			e.cache.Close()
		}
		e.cache = mustCache(maxCost)
	}
}

// WithTruncation sets the rune bound applied to inputs before embedding.
func WithTruncation(maxChars int) CacheOption {
	return func(e *CachedEmbedder) {
		e.maxChars = maxChars
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(e *CachedEmbedder) {
		e.logger = logger
	}
}

func mustCache(maxCost int64) *ristretto.Cache[uint64, []float32] {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []float32]{
		NumCounters: defaultCacheCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		// Only reachable with a non-positive MaxCost, which the
		// constructors never produce.
		panic(err)
	}
	return cache
}

// NewCachedEmbedder creates a caching wrapper around inner.
// Note: Returns concrete type so callers can reach DropCache and Close.
func NewCachedEmbedder(inner Embedder, opts ...CacheOption) *CachedEmbedder {
	e := &CachedEmbedder{
		inner:    inner,
		cache:    mustCache(defaultCacheMaxCost),
		maxChars: DefaultConfig().MaxChars,
		logger:   slog.Default().With("component", "embedding-cache"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedText returns the cached vector for the text when present, otherwise
// delegates to the wrapped embedder and caches the result.
func (e *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = Truncate(text, e.maxChars)
	key := core.HashContent([]byte(text))

	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := e.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vec, int64(len(vec)*4))
	return vec, nil
}

// EmbedTexts embeds a batch, serving cached entries and delegating only the
// misses to the wrapped embedder in a single batched call.
func (e *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		text = Truncate(text, e.maxChars)
		keys[i] = core.HashContent([]byte(text))
		if vec, ok := e.cache.Get(keys[i]); ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	e.logger.Debug("embedding cache misses", "misses", len(missTexts), "total", len(texts))

	vecs, err := e.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, core.ErrEmbeddingFailure
	}

	for i, vec := range vecs {
		idx := missIdx[i]
		results[idx] = vec
		e.cache.Set(keys[idx], vec, int64(len(vec)*4))
	}
	return results, nil
}

// Dim reports the wrapped embedder's vector dimension.
func (e *CachedEmbedder) Dim() int {
	return e.inner.Dim()
}

// DropCache discards every cached vector. Called during out-of-memory
// recovery to free memory before indexing resumes in eco mode.
func (e *CachedEmbedder) DropCache() {
	e.cache.Clear()
}

// Wait blocks until pending cache writes are applied. Intended for tests.
func (e *CachedEmbedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *CachedEmbedder) Close() error {
	e.cache.Close()
	return nil
}
