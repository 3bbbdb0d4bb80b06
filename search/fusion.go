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


package search

import (
	"sort"

	"github.com/poiesic/filesense/core"
)

// fused is one candidate after merging both retriever lists. A score of
// zero means the retriever did not return the chunk.
type fused struct {
	ChunkId  core.ID
	BM25     float64
	Dense    float64
	Combined float64
}

// normalizeScores min-max normalizes a result list to [0,1] in place.
// A degenerate list where every score is equal maps to 1.0 so a single
// perfect hit is not zeroed out.
func normalizeScores(hits []core.ScoredChunk) []core.ScoredChunk {
	if len(hits) == 0 {
		return hits
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	if hi == lo {
		for i := range hits {
			hits[i].Score = 1.0
		}
		return hits
	}
	for i := range hits {
		hits[i].Score = (hits[i].Score - lo) / (hi - lo)
	}
	return hits
}

// fuse merges the two normalized lists into ranked candidates.
//
// With deduplication, a chunk present in both lists collapses to one entry
// carrying both scores; insertion order consults the lexical list first.
// Reranking orders by alpha*bm25 + (1-alpha)*dense descending with ties
// broken by ascending chunk id; otherwise the two original rankings are
// interleaved round-robin, lexical first.
func fuse(lexHits, denseHits []core.ScoredChunk, alpha float64, deduplicate, rerank bool) []fused {
	var entries []fused
	if deduplicate {
		index := make(map[core.ID]int, len(lexHits)+len(denseHits))
		for _, h := range lexHits {
			index[h.ChunkId] = len(entries)
			entries = append(entries, fused{ChunkId: h.ChunkId, BM25: h.Score})
		}
		for _, h := range denseHits {
			if i, ok := index[h.ChunkId]; ok {
				entries[i].Dense = h.Score
				continue
			}
			index[h.ChunkId] = len(entries)
			entries = append(entries, fused{ChunkId: h.ChunkId, Dense: h.Score})
		}
	} else {
		for _, h := range lexHits {
			entries = append(entries, fused{ChunkId: h.ChunkId, BM25: h.Score})
		}
		for _, h := range denseHits {
			entries = append(entries, fused{ChunkId: h.ChunkId, Dense: h.Score})
		}
	}

	if rerank {
		for i := range entries {
			entries[i].Combined = alpha*entries[i].BM25 + (1-alpha)*entries[i].Dense
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Combined != entries[j].Combined {
				return entries[i].Combined > entries[j].Combined
			}
			return entries[i].ChunkId < entries[j].ChunkId
		})
		return entries
	}

	return interleave(entries, lexHits, denseHits, deduplicate)
}

// interleave orders candidates round-robin over the two original rankings,
// consulting the lexical list first at each turn.
func interleave(entries []fused, lexHits, denseHits []core.ScoredChunk, deduplicate bool) []fused {
	byID := make(map[core.ID]fused, len(entries))
	if deduplicate {
		for _, e := range entries {
			byID[e.ChunkId] = e
		}
	}

	ordered := make([]fused, 0, len(entries))
	seen := make(map[core.ID]bool, len(entries))
	emit := func(h core.ScoredChunk, lexical bool) {
		if deduplicate {
			if seen[h.ChunkId] {
				return
			}
			seen[h.ChunkId] = true
			ordered = append(ordered, byID[h.ChunkId])
			return
		}
		if lexical {
			ordered = append(ordered, fused{ChunkId: h.ChunkId, BM25: h.Score})
		} else {
			ordered = append(ordered, fused{ChunkId: h.ChunkId, Dense: h.Score})
		}
	}

	for i := 0; i < len(lexHits) || i < len(denseHits); i++ {
		if i < len(lexHits) {
			emit(lexHits[i], true)
		}
		if i < len(denseHits) {
			emit(denseHits[i], false)
		}
	}
	return ordered
}
