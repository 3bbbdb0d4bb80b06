package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Commit assigns a sequence ID to the chunk (when ID=0) and writes the chunk
// record, its document index entry, and the document checkpoint in a single
// transaction.
func (r *ChunkRepository) Commit(ctx context.Context, chunk *core.Chunk) (*core.Chunk, error) {
	if err := core.ValidateChunk(chunk); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if chunk.Id == 0 {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			chunk.Id = core.ID(nextID)
		}

		// Store primary record
		key := makeChunkKey(chunk.Id)
		value := storage.MarshalChunk(chunk)
		if err := tx.Set(key, value); err != nil {
			return err
		}

		// Update document index
		docKey := makeChunkDocKey(chunk.DocumentId, chunk.Id)
		if err := tx.Set(docKey, storage.MarshalID(chunk.Id)); err != nil {
			return err
		}

		// Advance the checkpoint in the same transaction so recovery
		// never observes a committed chunk without its checkpoint. The
		// job's span layout is carried over from the existing checkpoint.
		checkpoint := &core.Checkpoint{
			DocumentId:  chunk.DocumentId,
			NextOrdinal: uint64(chunk.Ordinal) + 1,
			UpdatedAt:   time.Now().UTC(),
		}
		cpKey := makeCheckpointKey(chunk.DocumentId)
		switch item, err := tx.Get(cpKey); err {
		case nil:
			if err := item.Value(func(val []byte) error {
				prev, unmarshalErr := storage.UnmarshalCheckpoint(val)
				if unmarshalErr != nil {
					return unmarshalErr
				}
				checkpoint.ChunkSize = prev.ChunkSize
				checkpoint.ChunkOverlap = prev.ChunkOverlap
				return nil
			}); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
		default:
			return err
		}
		if err := tx.Set(cpKey, storage.MarshalCheckpoint(checkpoint)); err != nil {
			return err
		}

		return tx.Commit()
	}, true)

	return chunk, err
}

// Get retrieves a single chunk by ID.
func (r *ChunkRepository) Get(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetMany retrieves multiple chunks by their IDs.
func (r *ChunkRepository) GetMany(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListByDocument retrieves all chunks of a document, ordered by ordinal.
// Chunk IDs within a document ascend with ordinals, so iterating the
// document index in key order yields ordinal order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, docID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkDocKey(docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunkID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunkID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			chunk, err := readChunk(tx, makeChunkKey(chunkID))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// DeleteByDocument removes all chunks of a document and returns the removed
// chunk IDs. The ID sequence is untouched, so deleted IDs are never reused.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, docID core.ID) ([]core.ID, error) {
	var removed []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkDocKey(docID)
		iter := tx.NewIterator(opts)

		var indexKeys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunkID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunkID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				iter.Close()
				return err
			}
			removed = append(removed, chunkID)
			indexKeys = append(indexKeys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for i, chunkID := range removed {
			if err := tx.Delete(makeChunkKey(chunkID)); err != nil {
				return err
			}
			if err := tx.Delete(indexKeys[i]); err != nil {
				return err
			}
		}

		// Drop any leftover checkpoint for the document
		if err := tx.Delete(makeCheckpointKey(docID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}

		return tx.Commit()
	}, true)
	return removed, err
}

// ForEach visits every stored chunk in ascending ID order.
func (r *ChunkRepository) ForEach(ctx context.Context, fn func(chunk *core.Chunk) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var chunk *core.Chunk
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}

			if err := fn(chunk); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// readChunk reads a chunk record from the transaction.
// Returns nil, nil when the key is absent.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}
