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


package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/storage"
)

// FolderRepository implements storage.FolderRepository for BadgerDB.
type FolderRepository struct {
	backend *Backend
}

var _ storage.FolderRepository = (*FolderRepository)(nil)

// NewFolderRepository creates a new FolderRepository.
func NewFolderRepository(backend *Backend) *FolderRepository {
	return &FolderRepository{
		backend: backend,
	}
}

// Close is a no-op; the repository holds no resources beyond the backend.
func (r *FolderRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *FolderRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Register creates or updates a folder registration.
func (r *FolderRepository) Register(ctx context.Context, folder *core.Folder) error {
	if err := core.ValidateFolder(folder); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeFolderKey(folder.Path)
		value := storage.MarshalFolder(folder)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Get retrieves a folder by path.
func (r *FolderRepository) Get(ctx context.Context, path string) (*core.Folder, error) {
	var result *core.Folder
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeFolderKey(path))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalFolder(val)
			return unmarshalErr
		})
	}, false)
	return result, err
}

// List retrieves all registered folders ordered by path.
func (r *FolderRepository) List(ctx context.Context) ([]*core.Folder, error) {
	var results []*core.Folder
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(folderPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var folder *core.Folder
			if err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				folder, unmarshalErr = storage.UnmarshalFolder(val)
				return unmarshalErr
			}); err != nil {
				return err
			}
			results = append(results, folder)
		}
		return nil
	}, false)
	return results, err
}

// Delete removes a folder registration.
func (r *FolderRepository) Delete(ctx context.Context, path string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeFolderKey(path)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
