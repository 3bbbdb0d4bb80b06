package storage

import (
	"context"

	"github.com/poiesic/filesense/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing indexed documents.
type DocumentRepository interface {
	Repository
	// Upsert creates or updates a document. The document ID is derived
	// deterministically from the path, so reindexing the same file always
	// addresses the same record. Sets IndexedAt.
	Upsert(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetByPath retrieves a document by its file path.
	// Returns ErrNotFound if no document exists for the path.
	GetByPath(ctx context.Context, path string) (*core.Document, error)

	// GetByID retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetByID(ctx context.Context, id core.ID) (*core.Document, error)

	// ListByPathPrefix retrieves all documents whose path starts with the
	// given prefix. Used for folder-scoped removal.
	ListByPathPrefix(ctx context.Context, prefix string) ([]*core.Document, error)

	// Delete removes documents by their IDs along with their path index
	// entries. Returns ErrNotFound if any document doesn't exist.
	Delete(ctx context.Context, ids ...core.ID) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// ChunkRepository provides operations for managing chunks. Chunk IDs come
// from a database sequence and are never reused, even after deletion.
type ChunkRepository interface {
	Repository
	// Commit assigns a sequence ID to the chunk (when ID=0), writes the
	// chunk record, its document index entry, and the document's indexing
	// checkpoint in a single transaction. A chunk is either fully visible
	// in the metadata store or not at all.
	Commit(ctx context.Context, chunk *core.Chunk) (*core.Chunk, error)

	// Get retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	Get(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetMany retrieves multiple chunks by their IDs.
	// Returns only the chunks that exist (no error for missing chunks).
	GetMany(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)

	// ListByDocument retrieves all chunks of a document, ordered by ordinal.
	ListByDocument(ctx context.Context, docID core.ID) ([]*core.Chunk, error)

	// DeleteByDocument removes all chunks of a document and returns the
	// removed chunk IDs so the retrievers can tombstone them.
	DeleteByDocument(ctx context.Context, docID core.ID) ([]core.ID, error)

	// ForEach visits every stored chunk in ascending ID order.
	// Used to rebuild retriever state from the metadata store.
	ForEach(ctx context.Context, fn func(chunk *core.Chunk) error) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
}

// FolderRepository provides operations for managing registered folders.
type FolderRepository interface {
	Repository
	// Register creates or updates a folder registration.
	Register(ctx context.Context, folder *core.Folder) error

	// Get retrieves a folder by path.
	// Returns ErrNotFound if the folder isn't registered.
	Get(ctx context.Context, path string) (*core.Folder, error)

	// List retrieves all registered folders ordered by path.
	List(ctx context.Context) ([]*core.Folder, error)

	// Delete removes a folder registration.
	// Returns ErrNotFound if the folder isn't registered.
	Delete(ctx context.Context, path string) error
}

// CheckpointRepository persists per-document indexing progress so an
// interrupted job can resume from the last committed chunk.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a document.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a document.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, docID core.ID) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for a document, marking the
	// document fully indexed.
	DeleteCheckpoint(ctx context.Context, docID core.ID) error
}
