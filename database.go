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


package filesense

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/ai/openai"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/dense"
	"github.com/poiesic/filesense/ingestion"
	"github.com/poiesic/filesense/lexical"
	"github.com/poiesic/filesense/mode"
	"github.com/poiesic/filesense/rebuild"
	"github.com/poiesic/filesense/search"
	"github.com/poiesic/filesense/storage"
	"github.com/poiesic/filesense/storage/badger"
)

const (
	lexicalSnapshotFile = "lexical.idx"
	denseSnapshotFile   = "dense.idx"
)

// Database wires the metadata store, the embedding service, both retriever
// indices, and the mode controller into one handle. It is the composition
// root: pipelines and searchers are created from it and share its state.
type Database struct {
	backend     *badger.Backend
	docs        storage.DocumentRepository
	chunks      storage.ChunkRepository
	folders     storage.FolderRepository
	checkpoints storage.CheckpointRepository
	embedder    *ai.CachedEmbedder
	lexical     *lexical.Index
	vectors     *dense.Index
	controller  *mode.Controller
	dataDir     string
	inMemory    bool
	progress    io.Writer
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	inMemory  bool
	logger    *slog.Logger
	embedder  ai.Embedder
	mode      mode.Mode
	hasMode   bool
	batchSize int
	progress  io.Writer
	aiConfig  *ai.Config
}

// WithInMemory uses an in-memory backend and skips index snapshots.
// Intended for tests and ephemeral indexing.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmbedder injects an embedder instead of the OpenAI-compatible client
// built from the AI config. The database still wraps it with the embedding
// cache.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedder = embedder
	}
}

// WithMode pins the operating mode, disabling hardware auto-detection.
func WithMode(m mode.Mode) DatabaseOption {
	return func(o *databaseOptions) {
		o.mode = m
		o.hasMode = true
	}
}

// WithBatchSize overrides the embedding batch size of the active mode.
func WithBatchSize(n int) DatabaseOption {
	return func(o *databaseOptions) {
		o.batchSize = n
	}
}

// WithProgress sets the writer for rebuild progress output.
// Default is io.Discard.
func WithProgress(w io.Writer) DatabaseOption {
	return func(o *databaseOptions) {
		if w != nil {
			o.progress = w
		}
	}
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// NewDatabase opens (or creates) a database rooted at dataDir.
// The directory holds the BadgerDB store and the retriever index snapshots.
func NewDatabase(dataDir string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger:   slog.Default(),
		progress: io.Discard,
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(dataDir, options.inMemory)
	if err != nil {
		return nil, err
	}

	chunkRepo, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	inner := options.embedder
	if inner == nil {
		inner, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			chunkRepo.Close()
			backend.Close()
			return nil, err
		}
	}
	embedder := ai.NewCachedEmbedder(inner,
		ai.WithTruncation(options.aiConfig.MaxChars),
		ai.WithCacheLogger(options.logger.With("component", "embedding-cache")),
	)

	ctrlOpts := []mode.ControllerOption{
		mode.WithControllerLogger(options.logger.With("component", "mode")),
	}
	if options.hasMode {
		ctrlOpts = append(ctrlOpts, mode.WithMode(options.mode))
	}
	if options.batchSize > 0 {
		ctrlOpts = append(ctrlOpts, mode.WithBatchSize(options.batchSize))
	}
	controller := mode.NewController(embedder.Dim(), ctrlOpts...)

	// Detection runs at every startup and is never persisted. An explicit
	// mode option wins; AutoDetect is a no-op in that case.
	if _, err := controller.AutoDetect(); err != nil {
		options.logger.Warn("hardware detection failed, keeping default mode",
			"mode", controller.Mode(), "err", err)
	}

	db := &Database{
		backend:     backend,
		docs:        badger.NewDocumentRepository(backend),
		chunks:      chunkRepo,
		folders:     badger.NewFolderRepository(backend),
		checkpoints: badger.NewCheckpointRepository(backend),
		embedder:    embedder,
		lexical: lexical.NewIndex(
			lexical.WithLogger(options.logger.With("component", "lexical")),
		),
		vectors: dense.NewIndex(embedder.Dim(),
			dense.WithQuantized(controller.Settings().Quantized),
			dense.WithLogger(options.logger.With("component", "dense")),
		),
		controller: controller,
		dataDir:    dataDir,
		inMemory:   options.inMemory,
		progress:   options.progress,
		logger:     options.logger,
	}

	// Downgrades quantize the dense index in place and drop the embedding
	// cache to release memory. The reverse direction keeps the binary
	// vectors; only a rebuild restores float precision.
	controller.OnSwitch(func(previous, next mode.Mode, settings mode.Settings) error {
		if settings.Quantized && !db.vectors.Quantized() {
			if err := db.vectors.Convert(true); err != nil {
				return err
			}
		}
		if next < previous {
			db.embedder.DropCache()
		}
		return nil
	})

	return db, nil
}

// DocumentRepository returns the document metadata store.
func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.docs
}

// ChunkRepository returns the chunk metadata store.
func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.chunks
}

// FolderRepository returns the folder registry.
func (db *Database) FolderRepository() storage.FolderRepository {
	return db.folders
}

// CheckpointRepository returns the per-document checkpoint store.
func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpoints
}

// Controller returns the mode controller shared by pipelines and searchers.
func (db *Database) Controller() *mode.Controller {
	return db.controller
}

// NewPipeline creates an indexing pipeline over this database's stores,
// retrievers, and mode controller.
func (db *Database) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	stores := ingestion.Stores{
		Documents:   db.docs,
		Chunks:      db.chunks,
		Folders:     db.folders,
		Checkpoints: db.checkpoints,
	}
	return ingestion.NewPipeline(stores, db.embedder, db.lexical, db.vectors, db.controller, opts...)
}

// NewSearcher creates a searcher over this database's stores and retrievers.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.chunks, db.docs, db.embedder, db.lexical, db.vectors, opts...)
}

// FolderInfo pairs a registered folder with its live document count.
type FolderInfo struct {
	Folder    *core.Folder
	Documents int
}

// Folders lists every registered folder together with the number of
// documents currently indexed under it.
func (db *Database) Folders(ctx context.Context) ([]*FolderInfo, error) {
	folders, err := db.folders.List(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*FolderInfo, 0, len(folders))
	for _, folder := range folders {
		prefix := strings.TrimSuffix(folder.Path, string(filepath.Separator)) + string(filepath.Separator)
		docs, err := db.docs.ListByPathPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}
		infos = append(infos, &FolderInfo{Folder: folder, Documents: len(docs)})
	}
	return infos, nil
}

// Mode returns the current operating mode.
func (db *Database) Mode() mode.Mode {
	return db.controller.Mode()
}

// ModeState returns a snapshot of the controller state.
func (db *Database) ModeState() mode.State {
	return db.controller.State()
}

// SetMode switches the operating mode explicitly.
func (db *Database) SetMode(m mode.Mode) (mode.Transition, error) {
	return db.controller.Set(m)
}

// AutoDetect re-runs hardware detection and applies the detected mode
// unless an explicit mode override is active.
func (db *Database) AutoDetect() (mode.Mode, error) {
	return db.controller.AutoDetect()
}

func (db *Database) lexicalPath() string {
	return filepath.Join(db.dataDir, lexicalSnapshotFile)
}

func (db *Database) densePath() string {
	return filepath.Join(db.dataDir, denseSnapshotFile)
}

// SaveIndices snapshots both retriever indices to the data directory.
// No-op for in-memory databases.
func (db *Database) SaveIndices() error {
	if db.inMemory {
		return nil
	}
	if err := db.lexical.Save(db.lexicalPath()); err != nil {
		return err
	}
	return db.vectors.Save(db.densePath())
}

// LoadIndices restores both retriever indices from their snapshots. Missing
// snapshots leave the indices empty. A corrupt snapshot triggers a full
// rebuild from the metadata store, which is the source of truth.
func (db *Database) LoadIndices(ctx context.Context) error {
	if db.inMemory {
		return nil
	}

	lexErr := db.lexical.Load(db.lexicalPath())
	denseErr := db.vectors.Load(db.densePath())

	if errors.Is(lexErr, core.ErrCorruptCache) || errors.Is(denseErr, core.ErrCorruptCache) {
		db.logger.Warn("index snapshot corrupt, rebuilding from metadata store",
			"lexical_err", lexErr, "dense_err", denseErr)
		return db.Rebuild(ctx)
	}
	if lexErr != nil && !errors.Is(lexErr, fs.ErrNotExist) {
		return lexErr
	}
	if denseErr != nil && !errors.Is(denseErr, fs.ErrNotExist) {
		return denseErr
	}

	// A float snapshot loaded under a quantized mode is converted so the
	// index matches the active settings.
	if db.controller.Settings().Quantized && !db.vectors.Quantized() {
		if err := db.vectors.Convert(true); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild clears both retriever indices and reconstructs them by
// re-embedding every chunk in the metadata store.
func (db *Database) Rebuild(ctx context.Context) error {
	cfg := rebuild.DefaultConfig()
	cfg.BatchSize = db.controller.Settings().BatchSize

	r, err := rebuild.NewRebuilder(db.chunks, db.embedder, db.lexical, db.vectors, cfg, db.progress)
	if err != nil {
		return err
	}

	db.logger.Info("rebuilding retriever indices", "mode", db.controller.Mode())
	if err := r.Run(ctx); err != nil {
		return err
	}
	db.logger.Info("rebuild finished",
		"lexical", db.lexical.Len(), "dense", db.vectors.Len())
	return nil
}

// Clear drops every record, both retriever indices, and the embedding
// cache. Chunk ids restart from a fresh sequence afterward.
func (db *Database) Clear(ctx context.Context) error {
	// The chunk id sequence must be released before DropAll wipes its key.
	if err := db.chunks.Close(); err != nil {
		return err
	}
	if err := db.backend.DropAll(); err != nil {
		return err
	}
	chunkRepo, err := badger.NewChunkRepository(db.backend)
	if err != nil {
		return err
	}
	db.chunks = chunkRepo

	db.lexical.Clear()
	db.vectors.Clear()
	db.embedder.DropCache()
	return nil
}

// Stats describes the current size and configuration of the database.
type Stats struct {
	Documents    int
	Chunks       int
	LexicalSize  int
	DenseSize    int
	Mode         mode.Mode
	Quantized    bool
	AutoDetected bool
}

// Stats reports document and chunk counts, retriever sizes, and the
// active mode.
func (db *Database) Stats(ctx context.Context) (*Stats, error) {
	docCount, err := db.docs.Count(ctx)
	if err != nil {
		return nil, err
	}
	chunkCount, err := db.chunks.Count(ctx)
	if err != nil {
		return nil, err
	}

	state := db.controller.State()
	return &Stats{
		Documents:    docCount,
		Chunks:       chunkCount,
		LexicalSize:  db.lexical.Len(),
		DenseSize:    db.vectors.Len(),
		Mode:         state.Mode,
		Quantized:    state.Quantized,
		AutoDetected: state.AutoDetected,
	}, nil
}

// Close snapshots the indices, then closes the embedding cache, the chunk
// id sequence, and the backend.
func (db *Database) Close() error {
	if err := db.SaveIndices(); err != nil {
		db.logger.Error("error saving index snapshots", "err", err)
	}

	if err := db.embedder.Close(); err != nil {
		db.logger.Error("error closing embedder", "err", err)
	}

	if err := db.chunks.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		return err
	}

	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
