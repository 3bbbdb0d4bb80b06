package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/dense"
	"github.com/poiesic/filesense/ingestion"
	"github.com/poiesic/filesense/lexical"
)

// BatchProcessor re-embeds one batch of chunks and feeds both retrievers.
type BatchProcessor struct {
	embedder       ai.Embedder
	lexical        *lexical.Index
	vectors        *dense.Index
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder ai.Embedder, lexicalIndex *lexical.Index, vectorIndex *dense.Index, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embedder:       embedder,
		lexical:        lexicalIndex,
		vectors:        vectorIndex,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         slog.Default().With("component", "rebuild"),
	}
}

// Process embeds a batch of chunks and restores them in the dense and
// lexical indices under their original chunk ids.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := ingestion.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay, bp.logger)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	for i, chunk := range chunks {
		if err := bp.vectors.Add(chunk.Id, embeddings[i]); err != nil {
			return fmt.Errorf("failed to restore vector for chunk %d: %w", uint64(chunk.Id), err)
		}
		bp.lexical.Add(chunk.Id, chunk.Text)
	}

	return nil
}
