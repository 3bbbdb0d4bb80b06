// Package rebuild reconstructs retriever state from the metadata store.
//
// The metadata store is the source of truth: chunk text and ids survive
// there even when an index snapshot on disk is corrupt or missing. The
// Rebuilder clears both retrievers and replays every stored chunk through
// the embedder in batches, restoring the exact chunk-id keyed state the
// indices had before.
//
// Rebuilding is also the escape hatch for the one-way eco conversion:
// re-embedding under performance mode brings back float vectors that
// quantization discarded.
package rebuild
