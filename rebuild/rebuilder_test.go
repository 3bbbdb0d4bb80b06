package rebuild

import (
	"bytes"
	"context"
	"errors"
	"io"
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

type rebuildFixture struct {
	chunks   storage.ChunkRepository
	embedder *mock.MockEmbedder
	lexical  *lexical.Index
	vectors  *dense.Index
}

func newRebuildFixture(t *testing.T) *rebuildFixture {
	t.Helper()

	docs, chunks, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunks.Close()
		backend.Close()
	})

	doc, err := docs.Upsert(context.Background(), &core.Document{Path: "/notes.txt"})
	require.NoError(t, err)

	texts := []string{
		"alpha quarterly report",
		"beta planning notes",
		"gamma meeting summary",
		"delta release checklist",
		"epsilon retrospective",
	}
	for i, text := range texts {
		_, err := chunks.Commit(context.Background(), &core.Chunk{
			DocumentId: doc.Id,
			Ordinal:    i,
			Text:       text,
			Range:      core.ByteRange{Start: uint64(i * 100), End: uint64(i*100 + len(text))},
		})
		require.NoError(t, err)
	}

	return &rebuildFixture{
		chunks:   chunks,
		embedder: mock.NewMockEmbedder(),
		lexical:  lexical.NewIndex(),
		vectors:  dense.NewIndex(mock.DefaultDim),
	}
}

func TestNewRebuilder_Validation(t *testing.T) {
	f := newRebuildFixture(t)

	_, err := NewRebuilder(nil, f.embedder, f.lexical, f.vectors, nil, io.Discard)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewRebuilder(f.chunks, nil, f.lexical, f.vectors, nil, io.Discard)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewRebuilder(f.chunks, f.embedder, nil, f.vectors, nil, io.Discard)
	assert.ErrorIs(t, err, ErrRetrieverRequired)

	_, err = NewRebuilder(f.chunks, f.embedder, f.lexical, nil, nil, io.Discard)
	assert.ErrorIs(t, err, ErrRetrieverRequired)
}

func TestChunkIterator_Batches(t *testing.T) {
	f := newRebuildFixture(t)

	it := NewChunkIterator(f.chunks, 2)

	var sizes []int
	var ids []core.ID
	err := it.ForEach(context.Background(), func(batch []*core.Chunk) error {
		sizes = append(sizes, len(batch))
		for _, c := range batch {
			ids = append(ids, c.Id)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []core.ID{1, 2, 3, 4, 5}, ids, "chunks stream in ascending id order")
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	f := newRebuildFixture(t)

	it := NewChunkIterator(f.chunks, 2)
	boom := errors.New("boom")

	calls := 0
	err := it.ForEach(context.Background(), func(batch []*core.Chunk) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRebuilder_Run_RestoresBothIndices(t *testing.T) {
	f := newRebuildFixture(t)

	var progress bytes.Buffer
	r, err := NewRebuilder(f.chunks, f.embedder, f.lexical, f.vectors, nil, &progress)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 5, f.lexical.Len())
	assert.Equal(t, 5, f.vectors.Len())

	// Original chunk ids survive the rebuild
	hits := f.lexical.Search("alpha quarterly", 1)
	require.Len(t, hits, 1)
	assert.Equal(t, core.ID(1), hits[0].ChunkId)

	assert.Contains(t, progress.String(), "Rebuild complete")
}

func TestRebuilder_Run_ClearsStaleState(t *testing.T) {
	f := newRebuildFixture(t)

	// Seed the indices with entries the store no longer holds
	f.lexical.Add(99, "stale entry text")
	require.NoError(t, f.vectors.Add(99, make([]float32, mock.DefaultDim)))

	r, err := NewRebuilder(f.chunks, f.embedder, f.lexical, f.vectors, nil, io.Discard)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 5, f.lexical.Len())
	assert.Equal(t, 5, f.vectors.Len())
	assert.Empty(t, f.lexical.Search("stale entry", 1))
}

func TestRebuilder_Run_EmptyStore(t *testing.T) {
	_, chunks, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunks.Close()
		backend.Close()
	})

	lex := lexical.NewIndex()
	vectors := dense.NewIndex(mock.DefaultDim)
	lex.Add(7, "leftover")

	var progress bytes.Buffer
	r, err := NewRebuilder(chunks, mock.NewMockEmbedder(), lex, vectors, nil, &progress)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Zero(t, lex.Len(), "stale entries cleared even with an empty store")
	assert.Contains(t, progress.String(), "No chunks found")
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	f := newRebuildFixture(t)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{make([]float32, mock.DefaultDim)}, nil
	}

	bp := NewBatchProcessor(f.embedder, f.lexical, f.vectors, 1, 0)
	err := bp.Process(context.Background(), []*core.Chunk{
		{Id: 1, Text: "one"},
		{Id: 2, Text: "two"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count mismatch")
}
