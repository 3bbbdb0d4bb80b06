package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Chunk IDs come from a database sequence and are never reused, even after
// deletion; document IDs are derived from the document path.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// HashContent computes a 64-bit BLAKE2b digest of raw content.
// Used for document change detection and embedding-cache keys.
func HashContent(data []byte) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write(data)
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// ByteRange locates a chunk within its source document.
// Start is inclusive, End exclusive.
type ByteRange struct {
	Start uint64
	End   uint64
}

// Document represents an indexed file. Created on first successful chunk
// write, updated on reindex when the content hash changes, deleted when its
// file or folder is removed from the index.
type Document struct {
	Id          ID
	Path        string
	ContentHash uint64
	Size        int64
	ModifiedAt  time.Time // File mtime at index time
	IndexedAt   time.Time // When the document was last indexed
}

// Chunk is the unit of retrieval. Its Id is the shared key between the
// lexical and dense retrievers.
type Chunk struct {
	Id         ID
	DocumentId ID
	Ordinal    int // Position within the document, starting at 0
	Text       string
	Range      ByteRange
}

// Folder is a registered scope boundary for bulk indexing and removal.
type Folder struct {
	Path        string
	Recursive   bool
	LastIndexed time.Time
}

// Checkpoint records per-document indexing progress. NextOrdinal is the
// ordinal of the first chunk not yet committed; recovery resumes there.
// ChunkSize and ChunkOverlap pin the span layout of the interrupted job, so
// a resume after restart splits the document identically even when the
// controller has since settled on different settings.
type Checkpoint struct {
	DocumentId   ID
	NextOrdinal  uint64
	ChunkSize    int
	ChunkOverlap int
	UpdatedAt    time.Time
}

// ScoredChunk is a ranked retriever hit keyed by chunk ID.
type ScoredChunk struct {
	ChunkId ID
	Score   float64
}
