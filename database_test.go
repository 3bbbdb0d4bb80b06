package filesense

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/filesense/ai/mock"
	"github.com/poiesic/filesense/mode"
	"github.com/poiesic/filesense/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T, opts ...DatabaseOption) *Database {
	t.Helper()

	opts = append([]DatabaseOption{
		WithInMemory(),
		WithEmbedder(mock.NewMockEmbedder()),
		WithMode(mode.Performance),
	}, opts...)

	db, err := NewDatabase("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func indexFruitDocs(t *testing.T, db *Database) {
	t.Helper()
	ctx := context.Background()

	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	docs := []struct{ path, content string }{
		{"/docs/one.txt", "apple banana"},
		{"/docs/two.txt", "banana cherry"},
		{"/docs/three.txt", "cherry date"},
	}
	for _, d := range docs {
		_, err := pipeline.IndexDocument(ctx, d.path, d.content)
		require.NoError(t, err)
	}
}

func TestNewDatabase_Defaults(t *testing.T) {
	db := newTestDatabase(t)

	assert.NotNil(t, db.DocumentRepository())
	assert.NotNil(t, db.ChunkRepository())
	assert.NotNil(t, db.FolderRepository())
	assert.NotNil(t, db.CheckpointRepository())
	assert.NotNil(t, db.Controller())
	assert.Equal(t, mode.Performance, db.Mode())
}

func TestDatabase_SetMode(t *testing.T) {
	db := newTestDatabase(t)

	tr, err := db.SetMode(mode.Eco)
	require.NoError(t, err)
	assert.Equal(t, mode.Performance, tr.Previous)
	assert.Equal(t, mode.Eco, tr.Current)
	assert.Equal(t, mode.Eco, db.Mode())
}

func TestDatabase_ModeSwitchQuantizesVectors(t *testing.T) {
	db := newTestDatabase(t)
	indexFruitDocs(t, db)

	require.False(t, db.vectors.Quantized())
	_, err := db.SetMode(mode.Eco)
	require.NoError(t, err)

	assert.True(t, db.vectors.Quantized())
	assert.Equal(t, 3, db.vectors.Len(), "conversion keeps every vector")
}

func TestDatabase_EndToEndSearch(t *testing.T) {
	db := newTestDatabase(t)
	indexFruitDocs(t, db)

	searcher, err := db.NewSearcher()
	require.NoError(t, err)

	resp, err := searcher.Search(context.Background(), "apple", search.DefaultOptions())
	require.NoError(t, err)
	require.NotZero(t, resp.Count)
	assert.True(t, resp.LexicalAvailable)
	assert.True(t, resp.DenseAvailable)
	assert.Equal(t, "/docs/one.txt", resp.Results[0].Path)
}

func TestDatabase_Stats(t *testing.T) {
	db := newTestDatabase(t)
	indexFruitDocs(t, db)

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.LexicalSize)
	assert.Equal(t, 3, stats.DenseSize)
	assert.Equal(t, mode.Performance, stats.Mode)
	assert.False(t, stats.Quantized)
}

func TestDatabase_Folders(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	rootA := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rootA, "a.txt"), []byte("apple banana"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rootA, "b.txt"), []byte("banana cherry"), 0o644))
	rootB := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rootB, "c.txt"), []byte("cherry date"), 0o644))

	_, err = pipeline.IndexDir(ctx, rootA, true)
	require.NoError(t, err)
	_, err = pipeline.IndexDir(ctx, rootB, false)
	require.NoError(t, err)

	infos, err := db.Folders(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	counts := make(map[string]int, len(infos))
	for _, info := range infos {
		counts[info.Folder.Path] = info.Documents
		assert.False(t, info.Folder.LastIndexed.IsZero())
	}
	assert.Equal(t, 2, counts[rootA])
	assert.Equal(t, 1, counts[rootB])

	// Counts track removals
	_, err = pipeline.RemovePath(ctx, filepath.Join(rootA, "a.txt"))
	require.NoError(t, err)
	infos, err = db.Folders(ctx)
	require.NoError(t, err)
	for _, info := range infos {
		if info.Folder.Path == rootA {
			assert.Equal(t, 1, info.Documents)
		}
	}
}

func TestDatabase_Clear(t *testing.T) {
	db := newTestDatabase(t)
	indexFruitDocs(t, db)

	require.NoError(t, db.Clear(context.Background()))

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.LexicalSize)
	assert.Zero(t, stats.DenseSize)

	// The store stays usable after a clear
	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	defer pipeline.Release()
	res, err := pipeline.IndexDocument(context.Background(), "/fresh.txt", "fresh start")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksInserted)
}

func TestDatabase_SnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewDatabase(dir,
		WithEmbedder(mock.NewMockEmbedder()),
		WithMode(mode.Performance),
	)
	require.NoError(t, err)
	indexFruitDocs(t, db)
	require.NoError(t, db.Close())

	require.FileExists(t, filepath.Join(dir, lexicalSnapshotFile))
	require.FileExists(t, filepath.Join(dir, denseSnapshotFile))

	reopened, err := NewDatabase(dir,
		WithEmbedder(mock.NewMockEmbedder()),
		WithMode(mode.Performance),
	)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.LoadIndices(ctx))

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.LexicalSize)
	assert.Equal(t, 3, stats.DenseSize)

	searcher, err := reopened.NewSearcher()
	require.NoError(t, err)
	resp, err := searcher.Search(ctx, "apple", search.DefaultOptions())
	require.NoError(t, err)
	require.NotZero(t, resp.Count)
	assert.Equal(t, "/docs/one.txt", resp.Results[0].Path)
}

func TestDatabase_LoadIndices_MissingSnapshotsIsColdStart(t *testing.T) {
	dir := t.TempDir()

	db, err := NewDatabase(dir,
		WithEmbedder(mock.NewMockEmbedder()),
		WithMode(mode.Performance),
	)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.LoadIndices(context.Background()))
	assert.Zero(t, db.vectors.Len())
}

func TestDatabase_LoadIndices_CorruptSnapshotTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewDatabase(dir,
		WithEmbedder(mock.NewMockEmbedder()),
		WithMode(mode.Performance),
	)
	require.NoError(t, err)
	indexFruitDocs(t, db)
	require.NoError(t, db.Close())

	// Truncate the dense snapshot so the next load sees garbage
	require.NoError(t, os.WriteFile(filepath.Join(dir, denseSnapshotFile), []byte("garbage"), 0644))

	reopened, err := NewDatabase(dir,
		WithEmbedder(mock.NewMockEmbedder()),
		WithMode(mode.Performance),
	)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.LoadIndices(ctx))

	// Both indices rebuilt from the metadata store
	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.LexicalSize)
	assert.Equal(t, 3, stats.DenseSize)
}
