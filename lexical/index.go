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


package lexical

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/poiesic/filesense/core"
)

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// docEntry holds the fitted state for one live chunk.
type docEntry struct {
	terms  map[string]int
	length int
}

// Index is a BM25 index over chunk text keyed by chunk id.
//
// Writers (Add, Remove, Load) take the write lock; Search takes the read
// lock after refitting corpus statistics if a mutation happened since the
// last query.
type Index struct {
	mu     sync.RWMutex
	k1     float64
	b      float64
	logger *slog.Logger

	docs       map[core.ID]*docEntry
	tombstones map[core.ID]struct{}

	// Corpus statistics, recomputed lazily
	docFreq map[string]int
	avgLen  float64
	dirty   bool
}

// Option configures an Index.
type Option func(*Index)

// WithK1 overrides the BM25 term-frequency saturation parameter.
func WithK1(k1 float64) Option {
	return func(x *Index) {
		x.k1 = k1
	}
}

// WithB overrides the BM25 length-normalization parameter.
func WithB(b float64) Option {
	return func(x *Index) {
		x.b = b
	}
}

// WithLogger sets a custom logger for index operations.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Index) {
		x.logger = logger
	}
}

// NewIndex creates an empty BM25 index with k1=1.5, b=0.75 unless overridden.
func NewIndex(opts ...Option) *Index {
	x := &Index{
		k1:         defaultK1,
		b:          defaultB,
		logger:     slog.Default().With("component", "lexical-index"),
		docs:       make(map[core.ID]*docEntry),
		tombstones: make(map[core.ID]struct{}),
		docFreq:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Add indexes the text of one chunk. Re-adding an id replaces its previous
// text. Statistics are not recomputed until the next Search.
func (x *Index) Add(id core.ID, text string) {
	tokens := tokenize(text)

	x.mu.Lock()
	defer x.mu.Unlock()

	x.docs[id] = &docEntry{
		terms:  termFrequencies(tokens),
		length: len(tokens),
	}
	delete(x.tombstones, id)
	x.dirty = true
}

// Remove tombstones a chunk so it no longer matches any query. The id stays
// in the tombstone set so a snapshot reload cannot resurrect it. Returns
// false if the id was not present.
func (x *Index) Remove(id core.ID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.docs[id]; !ok {
		return false
	}
	delete(x.docs, id)
	x.tombstones[id] = struct{}{}
	x.dirty = true
	return true
}

// Len reports the live corpus size. A zero-length index returns no results;
// there is no separate fitted state to consult.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Clear drops the whole corpus including tombstones.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.docs = make(map[core.ID]*docEntry)
	x.tombstones = make(map[core.ID]struct{})
	x.docFreq = make(map[string]int)
	x.avgLen = 0
	x.dirty = false
}

// Search ranks the live corpus against the query and returns up to k hits,
// ordered by score descending with ties broken by ascending chunk id. Only
// chunks matching at least one query term are returned.
func (x *Index) Search(query string, k int) []core.ScoredChunk {
	if k <= 0 {
		return nil
	}

	x.refitIfDirty()

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := len(x.docs)
	if n == 0 {
		return nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scores := make(map[core.ID]float64)
	for _, term := range queryTerms {
		df := x.docFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for id, doc := range x.docs {
			tf := doc.terms[term]
			if tf == 0 {
				continue
			}
			norm := x.k1 * (1 - x.b + x.b*float64(doc.length)/x.avgLen)
			scores[id] += idf * float64(tf) * (x.k1 + 1) / (float64(tf) + norm)
		}
	}

	ranked := make([]core.ScoredChunk, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, core.ScoredChunk{ChunkId: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ChunkId < ranked[j].ChunkId
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// refitIfDirty recomputes document frequencies and average length if any
// mutation happened since the last fit.
func (x *Index) refitIfDirty() {
	x.mu.RLock()
	dirty := x.dirty
	x.mu.RUnlock()
	if !dirty {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.dirty {
		return
	}

	x.docFreq = make(map[string]int)
	totalLen := 0
	for _, doc := range x.docs {
		totalLen += doc.length
		for term := range doc.terms {
			x.docFreq[term]++
		}
	}
	if len(x.docs) > 0 {
		x.avgLen = float64(totalLen) / float64(len(x.docs))
	} else {
		x.avgLen = 0
	}
	if x.avgLen == 0 {
		// All live documents tokenized to nothing; avoid dividing by zero
		x.avgLen = 1
	}
	x.dirty = false

	x.logger.Debug("refit corpus statistics",
		"documents", len(x.docs),
		"terms", len(x.docFreq),
		"avg_length", x.avgLen)
}
