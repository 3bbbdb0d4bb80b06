package search

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/filesense/ai/mock"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/dense"
	"github.com/poiesic/filesense/lexical"
	"github.com/poiesic/filesense/storage"
	badgerstore "github.com/poiesic/filesense/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchFixture struct {
	searcher *Searcher
	chunks   storage.ChunkRepository
	docs     storage.DocumentRepository
	embedder *mock.MockEmbedder
	lexical  *lexical.Index
	vectors  *dense.Index
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()

	docs, chunks, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunks.Close()
		backend.Close()
	})

	embedder := mock.NewMockEmbedder()
	lex := lexical.NewIndex()
	vectors := dense.NewIndex(mock.DefaultDim)

	s, err := NewSearcher(chunks, docs, embedder, lex, vectors)
	require.NoError(t, err)

	return &searchFixture{
		searcher: s,
		chunks:   chunks,
		docs:     docs,
		embedder: embedder,
		lexical:  lex,
		vectors:  vectors,
	}
}

// indexChunk commits one single-chunk document to all three stores.
func (f *searchFixture) indexChunk(t *testing.T, path, text string) core.ID {
	t.Helper()
	ctx := context.Background()

	doc, err := f.docs.Upsert(ctx, &core.Document{
		Path:        path,
		ContentHash: core.HashContent([]byte(text)),
		Size:        int64(len(text)),
	})
	require.NoError(t, err)

	chunk, err := f.chunks.Commit(ctx, &core.Chunk{
		DocumentId: doc.Id,
		Ordinal:    0,
		Text:       text,
		Range:      core.ByteRange{Start: 0, End: uint64(len(text))},
	})
	require.NoError(t, err)

	f.lexical.Add(chunk.Id, text)
	vec, err := f.embedder.EmbedText(ctx, text)
	require.NoError(t, err)
	require.NoError(t, f.vectors.Add(chunk.Id, vec))

	return chunk.Id
}

func newFruitFixture(t *testing.T) (*searchFixture, []core.ID) {
	f := newSearchFixture(t)
	ids := []core.ID{
		f.indexChunk(t, "/docs/one.txt", "apple banana"),
		f.indexChunk(t, "/docs/two.txt", "banana cherry"),
		f.indexChunk(t, "/docs/three.txt", "cherry date"),
	}
	// The sequence starts at 1, so these are the canonical 1, 2, 3
	require.Equal(t, []core.ID{1, 2, 3}, ids)
	return f, ids
}

func TestNewSearcher_Validation(t *testing.T) {
	_, err := NewSearcher(nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
}

func TestSearch_LexicalOnly_RanksMatchingChunks(t *testing.T) {
	f, _ := newFruitFixture(t)

	resp, err := f.searcher.Search(context.Background(), "banana", Options{
		K: 10, Alpha: 1.0, Deduplicate: true, Rerank: true,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, resp.Count, 2)
	assert.True(t, resp.LexicalAvailable)
	assert.True(t, resp.DenseAvailable)

	// alpha=1.0 scores purely lexically: chunks 1 and 2 contain "banana",
	// chunk 3 does not
	pos := make(map[core.ID]int)
	for i, r := range resp.Results {
		pos[r.ChunkId] = i
	}
	require.Contains(t, pos, core.ID(1))
	require.Contains(t, pos, core.ID(2))
	if i, ok := pos[core.ID(3)]; ok {
		assert.Greater(t, i, pos[core.ID(1)])
		assert.Greater(t, i, pos[core.ID(2)])
	}
	assert.Less(t, pos[core.ID(1)], pos[core.ID(2)], "equal scores break ties by chunk id")
}

func TestSearch_DenseOnly_StableAcrossCalls(t *testing.T) {
	f, _ := newFruitFixture(t)
	ctx := context.Background()

	opts := Options{K: 10, Alpha: 0.0, Deduplicate: true, Rerank: true}

	first, err := f.searcher.Search(ctx, "banana", opts)
	require.NoError(t, err)
	require.NotEmpty(t, first.Results)

	second, err := f.searcher.Search(ctx, "banana", opts)
	require.NoError(t, err)
	require.Equal(t, first.Count, second.Count)

	for i := range first.Results {
		assert.Equal(t, first.Results[i].ChunkId, second.Results[i].ChunkId)
		assert.Equal(t, first.Results[i].DenseScore, second.Results[i].DenseScore)
	}
}

func TestSearch_DedupCarriesBothScores(t *testing.T) {
	f, _ := newFruitFixture(t)

	resp, err := f.searcher.Search(context.Background(), "banana", Options{
		K: 10, Alpha: 0.5, Deduplicate: true, Rerank: true,
	})
	require.NoError(t, err)

	var hits []*Result
	for _, r := range resp.Results {
		if r.ChunkId == 1 {
			hits = append(hits, r)
		}
	}
	require.Len(t, hits, 1, "chunk 1 appears exactly once")
	assert.Greater(t, hits[0].BM25Score, 0.0)
	assert.Greater(t, hits[0].DenseScore, 0.0)
}

func TestSearch_HydratesMetadata(t *testing.T) {
	f, _ := newFruitFixture(t)

	resp, err := f.searcher.Search(context.Background(), "apple", Options{
		K: 1, Alpha: 1.0, Deduplicate: true, Rerank: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)

	r := resp.Results[0]
	assert.Equal(t, core.ID(1), r.ChunkId)
	assert.Equal(t, "/docs/one.txt", r.Path)
	assert.Equal(t, "apple banana", r.Snippet)
	assert.NotZero(t, r.DocumentId)
}

func TestSearch_TruncatesToK(t *testing.T) {
	f := newSearchFixture(t)
	for _, p := range []string{"/a", "/b", "/c", "/d", "/e"} {
		f.indexChunk(t, p, "shared keyword text "+p)
	}

	resp, err := f.searcher.Search(context.Background(), "keyword", Options{
		K: 2, Alpha: 0.5, Deduplicate: true, Rerank: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
}

func TestSearch_DenseUnavailable_FallsBackToLexical(t *testing.T) {
	f := newSearchFixture(t)

	// Lexical has content, dense index is empty
	doc, err := f.docs.Upsert(context.Background(), &core.Document{Path: "/a.txt"})
	require.NoError(t, err)
	chunk, err := f.chunks.Commit(context.Background(), &core.Chunk{
		DocumentId: doc.Id, Text: "apple banana", Range: core.ByteRange{End: 12},
	})
	require.NoError(t, err)
	f.lexical.Add(chunk.Id, "apple banana")

	resp, err := f.searcher.Search(context.Background(), "banana", DefaultOptions())
	require.NoError(t, err)
	assert.False(t, resp.DenseAvailable)
	assert.True(t, resp.LexicalAvailable)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, chunk.Id, resp.Results[0].ChunkId)
}

func TestSearch_EmbedderFailure_FallsBackToLexical(t *testing.T) {
	f, _ := newFruitFixture(t)
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}

	resp, err := f.searcher.Search(context.Background(), "banana", DefaultOptions())
	require.NoError(t, err, "one-sided degradation must not fail the call")
	assert.False(t, resp.DenseAvailable)
	assert.True(t, resp.LexicalAvailable)
	assert.NotEmpty(t, resp.Results)
}

func TestSearch_LexicalEmpty_FallsBackToDense(t *testing.T) {
	f := newSearchFixture(t)

	doc, err := f.docs.Upsert(context.Background(), &core.Document{Path: "/a.txt"})
	require.NoError(t, err)
	chunk, err := f.chunks.Commit(context.Background(), &core.Chunk{
		DocumentId: doc.Id, Text: "apple banana", Range: core.ByteRange{End: 12},
	})
	require.NoError(t, err)
	vec, err := f.embedder.EmbedText(context.Background(), "apple banana")
	require.NoError(t, err)
	require.NoError(t, f.vectors.Add(chunk.Id, vec))

	resp, err := f.searcher.Search(context.Background(), "banana", DefaultOptions())
	require.NoError(t, err)
	assert.False(t, resp.LexicalAvailable)
	assert.True(t, resp.DenseAvailable)
	require.Equal(t, 1, resp.Count)
}

func TestSearch_EmptyIndex(t *testing.T) {
	f := newSearchFixture(t)

	resp, err := f.searcher.Search(context.Background(), "anything", DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.LexicalAvailable)
	assert.False(t, resp.DenseAvailable)
}

// recordingMonitor captures callback invocations.
type recordingMonitor struct {
	started     bool
	lexicalHits int
	denseHits   int
	fusedIDs    []core.ID
	finished    int
}

func (m *recordingMonitor) Start(_ string)                          { m.started = true }
func (m *recordingMonitor) AfterLexicalSearch(h []core.ScoredChunk) { m.lexicalHits = len(h) }
func (m *recordingMonitor) AfterDenseSearch(h []dense.Hit)          { m.denseHits = len(h) }
func (m *recordingMonitor) AfterFusion(ids []core.ID)               { m.fusedIDs = ids }
func (m *recordingMonitor) Finish(r []*Result)                      { m.finished = len(r) }

func TestSearchWithMonitor(t *testing.T) {
	f, _ := newFruitFixture(t)

	var m recordingMonitor
	resp, err := f.searcher.SearchWithMonitor(context.Background(), "banana", DefaultOptions(), &m)
	require.NoError(t, err)

	assert.True(t, m.started)
	assert.Greater(t, m.lexicalHits, 0)
	assert.Greater(t, m.denseHits, 0)
	assert.NotEmpty(t, m.fusedIDs)
	assert.Equal(t, resp.Count, m.finished)
}
