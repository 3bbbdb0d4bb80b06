package search

import (
	"testing"

	"github.com/poiesic/filesense/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(entries []fused) []core.ID {
	out := make([]core.ID, len(entries))
	for i, e := range entries {
		out[i] = e.ChunkId
	}
	return out
}

func TestNormalizeScores(t *testing.T) {
	hits := []core.ScoredChunk{
		{ChunkId: 1, Score: 2.0},
		{ChunkId: 2, Score: 6.0},
		{ChunkId: 3, Score: 4.0},
	}

	norm := normalizeScores(hits)
	assert.Equal(t, 0.0, norm[0].Score)
	assert.Equal(t, 1.0, norm[1].Score)
	assert.Equal(t, 0.5, norm[2].Score)
}

func TestNormalizeScores_Degenerate(t *testing.T) {
	// All-equal scores normalize to 1.0, not 0
	hits := []core.ScoredChunk{
		{ChunkId: 1, Score: 3.3},
		{ChunkId: 2, Score: 3.3},
	}
	for _, h := range normalizeScores(hits) {
		assert.Equal(t, 1.0, h.Score)
	}

	single := normalizeScores([]core.ScoredChunk{{ChunkId: 7, Score: 0.01}})
	assert.Equal(t, 1.0, single[0].Score)

	assert.Empty(t, normalizeScores(nil))
}

func TestFuse_Rerank_Deterministic(t *testing.T) {
	lex := []core.ScoredChunk{
		{ChunkId: 1, Score: 1.0},
		{ChunkId: 2, Score: 0.5},
	}
	dense := []core.ScoredChunk{
		{ChunkId: 2, Score: 1.0},
		{ChunkId: 3, Score: 0.5},
	}

	first := fuse(lex, dense, 0.5, true, true)
	require.Equal(t, []core.ID{2, 1, 3}, ids(first))
	assert.InDelta(t, 0.75, first[0].Combined, 1e-9)
	assert.InDelta(t, 0.5, first[1].Combined, 1e-9)
	assert.InDelta(t, 0.25, first[2].Combined, 1e-9)

	// Same inputs, same ranking
	second := fuse(lex, dense, 0.5, true, true)
	assert.Equal(t, ids(first), ids(second))
}

func TestFuse_Rerank_TieBreakByChunkID(t *testing.T) {
	lex := []core.ScoredChunk{{ChunkId: 9, Score: 1.0}}
	dense := []core.ScoredChunk{{ChunkId: 4, Score: 1.0}}

	entries := fuse(lex, dense, 0.5, true, true)
	require.Len(t, entries, 2)
	assert.Equal(t, []core.ID{4, 9}, ids(entries))
}

func TestFuse_Dedup_CarriesBothScores(t *testing.T) {
	lex := []core.ScoredChunk{{ChunkId: 7, Score: 0.8}}
	dense := []core.ScoredChunk{{ChunkId: 7, Score: 0.6}}

	entries := fuse(lex, dense, 0.5, true, true)
	require.Len(t, entries, 1, "chunk 7 appears exactly once")
	assert.Equal(t, core.ID(7), entries[0].ChunkId)
	assert.Equal(t, 0.8, entries[0].BM25)
	assert.Equal(t, 0.6, entries[0].Dense)
}

func TestFuse_NoDedup_KeepsBothEntries(t *testing.T) {
	lex := []core.ScoredChunk{{ChunkId: 7, Score: 0.8}}
	dense := []core.ScoredChunk{{ChunkId: 7, Score: 0.6}}

	entries := fuse(lex, dense, 0.5, false, false)
	assert.Len(t, entries, 2)
}

func TestFuse_Interleave_LexicalFirst(t *testing.T) {
	lex := []core.ScoredChunk{
		{ChunkId: 1, Score: 1.0},
		{ChunkId: 2, Score: 0.9},
		{ChunkId: 3, Score: 0.8},
	}
	dense := []core.ScoredChunk{
		{ChunkId: 4, Score: 1.0},
		{ChunkId: 1, Score: 0.9},
		{ChunkId: 5, Score: 0.8},
	}

	entries := fuse(lex, dense, 0.5, true, false)
	assert.Equal(t, []core.ID{1, 4, 2, 3, 5}, ids(entries))

	// Chunk 1 carries its dense score even though it was emitted from the
	// lexical list
	assert.Equal(t, 0.9, entries[0].Dense)
}

func TestFuse_MissingScoreDefaultsToZero(t *testing.T) {
	lex := []core.ScoredChunk{{ChunkId: 1, Score: 1.0}}
	dense := []core.ScoredChunk{{ChunkId: 2, Score: 1.0}}

	entries := fuse(lex, dense, 1.0, true, true)
	require.Equal(t, []core.ID{1, 2}, ids(entries))
	assert.Zero(t, entries[0].Dense)
	assert.Zero(t, entries[1].BM25)
	assert.Zero(t, entries[1].Combined, "alpha=1 ignores dense-only hits")
}
