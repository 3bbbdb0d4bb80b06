package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/filesense/core"
)

// Key prefixes for different data types
const (
	documentPrefix     = "docrec"
	documentPathPrefix = "docpat"
	chunkPrefix        = "chkrec"
	chunkDocPrefix     = "chkdoc"
	chunkIDSeq         = "chkrecseq"
	folderPrefix       = "fldrec"
	checkpointPrefix   = "chkpt"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeDocumentPathKey generates a key for the path index.
// Format: prefix:path
func makeDocumentPathKey(path string) []byte {
	return []byte(documentPathPrefix + ":" + path)
}

// makeChunkKey generates a key for a chunk by ID.
// The ID is written BigEndian so lexicographic iteration visits chunks
// in ascending ID order.
func makeChunkKey(id core.ID) []byte {
	prefix := chunkPrefix + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeChunkDocKey generates a composite key for the document index.
// Format: prefix:docID:chunkID
func makeChunkDocKey(docID, chunkID core.ID) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+16)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkID))
	return buf
}

// makePartialChunkDocKey generates a partial key for per-document queries.
// Format: prefix:docID
func makePartialChunkDocKey(docID core.ID) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}

// makeFolderKey generates a key for a folder registration by path.
func makeFolderKey(path string) []byte {
	return []byte(folderPrefix + ":" + path)
}

// makeCheckpointKey generates a key for a document's indexing checkpoint.
func makeCheckpointKey(docID core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", checkpointPrefix, docID))
}
