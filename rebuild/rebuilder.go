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


package rebuild

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/dense"
	"github.com/poiesic/filesense/lexical"
	"github.com/poiesic/filesense/storage"
)

// Config holds configuration for the rebuild operation.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Rebuilder orchestrates the reconstruction of both retriever indices from
// the chunks persisted in the metadata store.
type Rebuilder struct {
	chunks    storage.ChunkRepository
	embedder  ai.Embedder
	lexical   *lexical.Index
	vectors   *dense.Index
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
}

// NewRebuilder creates a new rebuilder.
// progress: where to write progress output (typically os.Stderr)
func NewRebuilder(chunks storage.ChunkRepository, embedder ai.Embedder, lexicalIndex *lexical.Index, vectorIndex *dense.Index, config *Config, progress io.Writer) (*Rebuilder, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if lexicalIndex == nil || vectorIndex == nil {
		return nil, ErrRetrieverRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	processor := NewBatchProcessor(embedder, lexicalIndex, vectorIndex, config.MaxRetries, config.RetryDelay)
	iterator := NewChunkIterator(chunks, config.BatchSize)

	return &Rebuilder{
		chunks:    chunks,
		embedder:  embedder,
		lexical:   lexicalIndex,
		vectors:   vectorIndex,
		config:    config,
		progress:  progress,
		processor: processor,
		iterator:  iterator,
	}, nil
}

// Run executes the rebuild operation.
// Both indices are cleared and every stored chunk is re-embedded and
// re-indexed under its original id. Progress is reported to the configured
// writer.
func (r *Rebuilder) Run(ctx context.Context) error {
	total, err := r.chunks.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	// Stale index state is cleared even when the store holds nothing
	r.lexical.Clear()
	r.vectors.Clear()

	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in store (0 chunks)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting rebuild of %d chunks (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0

	err = r.iterator.ForEach(ctx, func(chunks []*core.Chunk) error {
		if err := r.processor.Process(ctx, chunks); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(chunks)
		tracker.Update(processed)

		return nil
	})

	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Rebuild complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		total, elapsed.Round(time.Second), float64(total)/elapsed.Seconds())

	return nil
}
