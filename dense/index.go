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


package dense

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/core"
)

// Hit is one ranked search result. Distance is L2 in float mode and the
// Hamming bit count in binary mode.
type Hit struct {
	ChunkId  core.ID
	Distance float64
}

// Index is a flat vector index keyed by chunk id.
//
// Writers (Add, Remove, Convert, Load) take the write lock; Search takes the
// read lock, so queries run concurrently with each other but see a
// consistent snapshot.
type Index struct {
	mu        sync.RWMutex
	dim       int
	quantized bool
	logger    *slog.Logger

	floats map[core.ID][]float32
	codes  map[core.ID][]byte
}

// Option configures an Index.
type Option func(*Index)

// WithQuantized selects binary (sign-bit) storage from the start.
func WithQuantized(quantized bool) Option {
	return func(x *Index) {
		x.quantized = quantized
	}
}

// WithLogger sets a custom logger for index operations.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Index) {
		x.logger = logger
	}
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dim int, opts ...Option) *Index {
	x := &Index{
		dim:    dim,
		logger: slog.Default().With("component", "dense-index"),
		floats: make(map[core.ID][]float32),
		codes:  make(map[core.ID][]byte),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Dim reports the vector dimension the index accepts.
func (x *Index) Dim() int {
	return x.dim
}

// Quantized reports whether vectors are stored as packed sign bits.
func (x *Index) Quantized() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.quantized
}

// Len reports the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.quantized {
		return len(x.codes)
	}
	return len(x.floats)
}

// Add stores the vector for a chunk, quantizing on write when the index is
// in binary mode. Re-adding an id replaces its vector.
func (x *Index) Add(id core.ID, vec []float32) error {
	if len(vec) != x.dim {
		return &core.DimensionMismatchError{Want: x.dim, Got: len(vec)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.quantized {
		x.codes[id] = ai.Quantize(vec)
		return nil
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	x.floats[id] = stored
	return nil
}

// Remove drops the vector for a chunk. Returns false if the id was not
// present.
func (x *Index) Remove(id core.ID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.quantized {
		if _, ok := x.codes[id]; !ok {
			return false
		}
		delete(x.codes, id)
		return true
	}
	if _, ok := x.floats[id]; !ok {
		return false
	}
	delete(x.floats, id)
	return true
}

// Clear drops all stored vectors, keeping dimension and encoding.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.floats = make(map[core.ID][]float32)
	x.codes = make(map[core.ID][]byte)
}

// Search returns up to k nearest chunks to the query vector, ordered by
// ascending distance with ties broken by ascending chunk id. The query is
// always a float vector; in binary mode it is quantized before matching.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, &core.DimensionMismatchError{Want: x.dim, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []Hit
	if x.quantized {
		code := ai.Quantize(query)
		hits = make([]Hit, 0, len(x.codes))
		for id, stored := range x.codes {
			hits = append(hits, Hit{ChunkId: id, Distance: float64(ai.Hamming(code, stored))})
		}
	} else {
		hits = make([]Hit, 0, len(x.floats))
		for id, stored := range x.floats {
			hits = append(hits, Hit{ChunkId: id, Distance: l2Distance(query, stored)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkId < hits[j].ChunkId
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Similarity maps a Search distance into [0,1]. Float mode uses
// 1/(1+distance); binary mode uses 1 - hamming/dim.
func (x *Index) Similarity(distance float64) float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.quantized {
		return 1 - distance/float64(x.dim)
	}
	return 1 / (1 + distance)
}

// Convert switches the index to binary storage, re-encoding every stored
// float vector. Converting binary back to float returns
// ErrUnsupportedConversion. Converting an already-binary index to binary is
// a no-op.
func (x *Index) Convert(quantized bool) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.quantized == quantized {
		return nil
	}
	if !quantized {
		return ErrUnsupportedConversion
	}

	for id, vec := range x.floats {
		x.codes[id] = ai.Quantize(vec)
	}
	x.floats = make(map[core.ID][]float32)
	x.quantized = true

	x.logger.Info("converted index to binary encoding", "vectors", len(x.codes))
	return nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
