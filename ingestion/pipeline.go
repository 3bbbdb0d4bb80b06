package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/dense"
	"github.com/poiesic/filesense/lexical"
	"github.com/poiesic/filesense/mode"
	"github.com/poiesic/filesense/storage"
)

// Stores groups the metadata repositories the pipeline writes through.
type Stores struct {
	Documents   storage.DocumentRepository
	Chunks      storage.ChunkRepository
	Folders     storage.FolderRepository
	Checkpoints storage.CheckpointRepository
}

// Result reports the outcome of indexing one document.
type Result struct {
	// ChunksInserted is the number of chunks committed by this call.
	ChunksInserted int
	// Mode is the operating mode when the call finished.
	Mode mode.Mode
	// ModeSwitched is true when an OOM event downgraded the mode mid-job.
	ModeSwitched bool
	// RecoveredFrom carries the originating error of an OOM recovery.
	RecoveredFrom error
	// Skipped is true when the content hash was unchanged and the document
	// was already fully indexed.
	Skipped bool
	// ChunkErrors lists chunks that failed to embed and were skipped.
	ChunkErrors []error
	Duration    time.Duration
}

// FileError pairs a file path with the error that stopped its indexing.
type FileError struct {
	Path string
	Err  error
}

// DirResult reports the outcome of indexing a directory.
type DirResult struct {
	Inserted     int
	Files        int
	Mode         mode.Mode
	ModeSwitched bool
	Errors       []FileError
}

// RemoveResult reports how many documents a removal dropped from the index.
type RemoveResult struct {
	Removed int
}

// Pipeline orchestrates chunking, embedding, and write-through to the
// lexical index, the dense index, and the metadata store.
//
// Each chunk is committed to the metadata store in a single transaction
// (record, document index entry, checkpoint) and only then added to the
// retrievers, so searchers never see a chunk id the store cannot hydrate.
type Pipeline struct {
	stores     Stores
	embedder   ai.Embedder
	lexical    *lexical.Index
	vectors    *dense.Index
	controller *mode.Controller
	pool       *ants.Pool
	logger     *slog.Logger

	maxAttempts int
	baseDelay   time.Duration

	// One in-flight indexing job per document
	mu       sync.Mutex
	inflight map[core.ID]struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for directory indexing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithRetry configures retry behavior for transient embedding failures.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.baseDelay = baseDelay
		return nil
	}
}

// NewPipeline creates an indexing pipeline over the given stores,
// embedder, retrievers, and mode controller.
func NewPipeline(
	stores Stores,
	embedder ai.Embedder,
	lexicalIndex *lexical.Index,
	vectorIndex *dense.Index,
	controller *mode.Controller,
	opts ...Option,
) (*Pipeline, error) {
	if stores.Documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if stores.Chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if stores.Checkpoints == nil {
		return nil, ErrCheckpointRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if lexicalIndex == nil || vectorIndex == nil {
		return nil, ErrRetrieverRequired
	}
	if controller == nil {
		return nil, ErrControllerRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		stores:      stores,
		embedder:    embedder,
		lexical:     lexicalIndex,
		vectors:     vectorIndex,
		controller:  controller,
		pool:        pool,
		logger:      slog.Default().With("component", "ingestion"),
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
		inflight:    make(map[core.ID]struct{}),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// IndexDocument chunks, embeds, and commits one document. Reindexing a file
// whose content hash is unchanged is a no-op. An interrupted job (OOM or
// crash) resumes from the last committed chunk via the document checkpoint.
func (p *Pipeline) IndexDocument(ctx context.Context, path, content string) (*Result, error) {
	return p.indexDocument(ctx, path, content, time.Now().UTC())
}

func (p *Pipeline) indexDocument(ctx context.Context, path, content string, modTime time.Time) (*Result, error) {
	docID := core.IDFromContent(path)
	if !p.acquire(docID) {
		return nil, fmt.Errorf("%w: %s", core.ErrDuplicateJob, path)
	}
	defer p.release(docID)

	start := time.Now()
	res := &Result{Mode: p.controller.Mode()}

	hash := core.HashContent([]byte(content))
	startOrdinal := uint64(0)
	settings := p.controller.Settings()
	chunkSize, chunkOverlap := settings.ChunkSize, settings.ChunkOverlap

	existing, err := p.stores.Documents.GetByPath(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	switch {
	case existing != nil && existing.ContentHash == hash:
		cp, err := p.stores.Checkpoints.LoadCheckpoint(ctx, docID)
		if err != nil {
			return nil, err
		}
		if cp == nil {
			// Unchanged and fully indexed
			res.Skipped = true
			res.Duration = time.Since(start)
			return res, nil
		}
		startOrdinal = cp.NextOrdinal
		if cp.ChunkSize > 0 {
			// Committed ordinals follow the interrupted job's span layout,
			// not whatever the controller settled on since
			chunkSize, chunkOverlap = cp.ChunkSize, cp.ChunkOverlap
		}
		p.logger.Info("resuming interrupted indexing",
			"path", path, "ordinal", startOrdinal)
	case existing != nil:
		// Content changed: drop the old chunks and re-chunk from scratch
		removed, err := p.stores.Chunks.DeleteByDocument(ctx, docID)
		if err != nil {
			return nil, err
		}
		p.forgetChunks(removed)
	}

	// The checkpoint brackets the job: written before the document record,
	// deleted only on a clean finish. Its absence always means fully
	// indexed, even if the process dies between here and the first commit.
	if err := p.stores.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		DocumentId:   docID,
		NextOrdinal:  startOrdinal,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}); err != nil {
		return nil, err
	}

	doc := &core.Document{
		Path:        path,
		ContentHash: hash,
		Size:        int64(len(content)),
		ModifiedAt:  modTime,
	}
	if _, err := p.stores.Documents.Upsert(ctx, doc); err != nil {
		return nil, err
	}

	spans := SplitChunks(content, chunkSize, chunkOverlap)

	// The span layout is fixed for the whole job. A mid-job mode switch
	// changes batch size and vector encoding for the remaining chunks, but
	// never re-chunks, so committed ordinals stay valid.
	ordinal := startOrdinal
	for ordinal < uint64(len(spans)) {
		batchEnd := min(ordinal+uint64(p.controller.Settings().BatchSize), uint64(len(spans)))
		batch := spans[ordinal:batchEnd]

		vecs, err := p.embedSpans(ctx, batch, ordinal, res)
		if err != nil {
			if !errors.Is(err, core.ErrOOMRecoverable) {
				res.Duration = time.Since(start)
				return res, err
			}

			trans, switched := p.controller.HandleOOM()
			if !switched {
				// Already in eco; nothing left to shed
				res.Duration = time.Since(start)
				return res, err
			}
			res.ModeSwitched = true
			res.RecoveredFrom = err
			res.Mode = trans.Current

			// Resume from the last committed chunk, not the document start
			cp, cpErr := p.stores.Checkpoints.LoadCheckpoint(ctx, docID)
			if cpErr != nil {
				res.Duration = time.Since(start)
				return res, cpErr
			}
			if cp != nil {
				ordinal = cp.NextOrdinal
			} else {
				ordinal = 0
			}
			continue
		}

		for i, vec := range vecs {
			if vec == nil {
				continue
			}
			span := batch[i]
			chunk := &core.Chunk{
				DocumentId: docID,
				Ordinal:    int(ordinal) + i,
				Text:       span.Text,
				Range:      span.Range,
			}
			committed, err := p.stores.Chunks.Commit(ctx, chunk)
			if err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
			if err := p.vectors.Add(committed.Id, vec); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
			p.lexical.Add(committed.Id, span.Text)
			res.ChunksInserted++
		}
		ordinal = batchEnd
	}

	if len(res.ChunkErrors) > 0 {
		// Failed chunks left holes in the committed sequence. Zero the
		// recorded hash so the next call for this content re-chunks the
		// document instead of skipping it.
		doc.ContentHash = 0
		if _, err := p.stores.Documents.Upsert(ctx, doc); err != nil {
			return nil, err
		}
	}

	// Fully indexed; the checkpoint no longer applies
	if err := p.stores.Checkpoints.DeleteCheckpoint(ctx, docID); err != nil {
		return nil, err
	}

	res.Mode = p.controller.Mode()
	res.Duration = time.Since(start)
	p.logger.Info("indexed document",
		"path", path,
		"chunks", res.ChunksInserted,
		"mode", res.Mode.String(),
		"duration", res.Duration)
	return res, nil
}

// embedSpans embeds a batch of chunks. A whole-batch failure falls back to
// per-chunk embedding; a chunk that still fails is recorded in the result
// and skipped (nil vector). Only OOM and context errors abort the batch.
func (p *Pipeline) embedSpans(ctx context.Context, batch []Span, baseOrdinal uint64, res *Result) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, s := range batch {
		texts[i] = s.Text
	}

	vecs, err := p.embedTexts(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if errors.Is(err, core.ErrOOMRecoverable) || ctx.Err() != nil {
		return nil, err
	}

	// Salvage the batch one chunk at a time
	vecs = make([][]float32, len(batch))
	for i := range texts {
		single, embErr := p.embedTexts(ctx, texts[i:i+1])
		if embErr != nil {
			if errors.Is(embErr, core.ErrOOMRecoverable) || ctx.Err() != nil {
				return nil, embErr
			}
			p.logger.Warn("skipping chunk, embedding failed",
				"ordinal", baseOrdinal+uint64(i), "err", embErr)
			res.ChunkErrors = append(res.ChunkErrors,
				fmt.Errorf("chunk %d: %w", baseOrdinal+uint64(i), embErr))
			continue
		}
		vecs[i] = single[0]
	}
	return vecs, nil
}

// embedTexts calls the embedder with retry for transient failures. OOM
// errors are returned immediately so recovery can downgrade the mode
// instead of hammering an exhausted device.
func (p *Pipeline) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	var oomErr error
	op := func() error {
		v, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			if errors.Is(err, core.ErrOOMRecoverable) {
				oomErr = err
				return nil
			}
			return err
		}
		vecs = v
		return nil
	}

	if err := RetryWithBackoff(ctx, op, p.maxAttempts, p.baseDelay, p.logger); err != nil {
		return nil, err
	}
	if oomErr != nil {
		return nil, oomErr
	}
	return vecs, nil
}

// IndexDir walks a directory and indexes every regular file on the worker
// pool. The walk honors ctx between documents; the in-flight document of
// each worker always runs to completion so its chunk commits stay atomic.
func (p *Pipeline) IndexDir(ctx context.Context, root string, recursive bool) (*DirResult, error) {
	res := &DirResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if !recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		modTime := info.ModTime().UTC()

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()

			data, readErr := os.ReadFile(path)
			if readErr != nil {
				mu.Lock()
				res.Errors = append(res.Errors, FileError{Path: path, Err: readErr})
				mu.Unlock()
				return
			}

			// Chunk commits must not be torn by cancellation mid-document
			r, idxErr := p.indexDocument(context.WithoutCancel(ctx), path, string(data), modTime)

			mu.Lock()
			defer mu.Unlock()
			res.Files++
			if idxErr != nil {
				res.Errors = append(res.Errors, FileError{Path: path, Err: idxErr})
				return
			}
			res.Inserted += r.ChunksInserted
			if r.ModeSwitched {
				res.ModeSwitched = true
			}
			for _, cerr := range r.ChunkErrors {
				res.Errors = append(res.Errors, FileError{Path: path, Err: cerr})
			}
		})
		if submitErr != nil {
			wg.Done()
			return submitErr
		}
		return nil
	})

	wg.Wait()
	res.Mode = p.controller.Mode()

	if err != nil {
		return res, err
	}

	if p.stores.Folders != nil {
		folder := &core.Folder{Path: root, Recursive: recursive, LastIndexed: time.Now().UTC()}
		if regErr := p.stores.Folders.Register(ctx, folder); regErr != nil {
			p.logger.Warn("failed to register folder", "path", root, "err", regErr)
		}
	}

	p.logger.Info("indexed directory",
		"path", root,
		"files", res.Files,
		"chunks", res.Inserted,
		"errors", len(res.Errors))
	return res, nil
}

// RemovePath drops a single document, or every document under a directory
// path, from all three stores. Chunk ids of removed chunks are tombstoned
// in the retrievers and never reused.
func (p *Pipeline) RemovePath(ctx context.Context, path string) (*RemoveResult, error) {
	res := &RemoveResult{}

	doc, err := p.stores.Documents.GetByPath(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if doc != nil {
		if err := p.removeDocument(ctx, doc); err != nil {
			return nil, err
		}
		res.Removed = 1
		return res, nil
	}

	// Directory removal: everything under the path
	prefix := strings.TrimSuffix(path, string(filepath.Separator)) + string(filepath.Separator)
	docs, err := p.stores.Documents.ListByPathPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if err := p.removeDocument(ctx, d); err != nil {
			return nil, err
		}
		res.Removed++
	}

	if p.stores.Folders != nil {
		if err := p.stores.Folders.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	p.logger.Info("removed path from index", "path", path, "documents", res.Removed)
	return res, nil
}

func (p *Pipeline) removeDocument(ctx context.Context, doc *core.Document) error {
	removed, err := p.stores.Chunks.DeleteByDocument(ctx, doc.Id)
	if err != nil {
		return err
	}
	p.forgetChunks(removed)

	if err := p.stores.Checkpoints.DeleteCheckpoint(ctx, doc.Id); err != nil {
		return err
	}
	return p.stores.Documents.Delete(ctx, doc.Id)
}

func (p *Pipeline) forgetChunks(ids []core.ID) {
	for _, id := range ids {
		p.lexical.Remove(id)
		p.vectors.Remove(id)
	}
}

func (p *Pipeline) acquire(docID core.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[docID]; busy {
		return false
	}
	p.inflight[docID] = struct{}{}
	return true
}

func (p *Pipeline) release(docID core.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, docID)
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
