package storage

import (
	"testing"
	"time"

	"github.com/poiesic/filesense/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.Error(t, err)
}

func TestMarshalUnmarshalDocument(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	original := &core.Document{
		Id:          core.IDFromContent("/data/notes/a.txt"),
		Path:        "/data/notes/a.txt",
		ContentHash: core.HashContent([]byte("apple banana")),
		Size:        1234,
		ModifiedAt:  now,
		IndexedAt:   now,
	}

	data := MarshalDocument(original)
	require.NotEmpty(t, data)

	decoded, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, original.Id, decoded.Id)
	assert.Equal(t, original.Path, decoded.Path)
	assert.Equal(t, original.ContentHash, decoded.ContentHash)
	assert.Equal(t, original.Size, decoded.Size)
	assert.True(t, original.ModifiedAt.Equal(decoded.ModifiedAt))
	assert.True(t, original.IndexedAt.Equal(decoded.IndexedAt))
}

func TestMarshalUnmarshalChunk(t *testing.T) {
	original := &core.Chunk{
		Id:         core.ID(17),
		DocumentId: core.ID(3),
		Ordinal:    2,
		Text:       "banana cherry with unicode 世界 🌍",
		Range:      core.ByteRange{Start: 200, End: 260},
	}

	data := MarshalChunk(original)
	require.NotEmpty(t, data)

	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestUnmarshalChunk_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"invalid data", []byte{0xFF, 0xFF, 0xFF}},
		{"partial data", []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalChunk(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestMarshalUnmarshalFolder(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	original := &core.Folder{
		Path:        "/data/notes",
		Recursive:   true,
		LastIndexed: now,
	}

	data := MarshalFolder(original)
	require.NotEmpty(t, data)

	decoded, err := UnmarshalFolder(data)
	require.NoError(t, err)
	assert.Equal(t, original.Path, decoded.Path)
	assert.Equal(t, original.Recursive, decoded.Recursive)
	assert.True(t, original.LastIndexed.Equal(decoded.LastIndexed))
}

func TestMarshalUnmarshalCheckpoint(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	original := &core.Checkpoint{
		DocumentId:   core.ID(7),
		NextOrdinal:  5,
		ChunkSize:    512,
		ChunkOverlap: 50,
		UpdatedAt:    now,
	}

	data := MarshalCheckpoint(original)
	require.NotEmpty(t, data)

	decoded, err := UnmarshalCheckpoint(data)
	require.NoError(t, err)
	assert.Equal(t, original.DocumentId, decoded.DocumentId)
	assert.Equal(t, original.NextOrdinal, decoded.NextOrdinal)
	assert.Equal(t, original.ChunkSize, decoded.ChunkSize)
	assert.Equal(t, original.ChunkOverlap, decoded.ChunkOverlap)
	assert.True(t, original.UpdatedAt.Equal(decoded.UpdatedAt))
}
