// Package ingestion implements the indexing pipeline.
//
// The pipeline turns raw document content into committed chunks: paragraph
// chunking with byte ranges, batched embedding, and write-through to the
// lexical index, the dense index, and the metadata store. Independent
// documents are indexed concurrently on a bounded worker pool; a single
// document only ever has one indexing job in flight.
//
// # Crash Safety and OOM Recovery
//
// Every chunk is committed to the metadata store in one transaction
// together with the document's checkpoint. When embedding reports a
// recoverable out-of-memory condition, the pipeline downgrades the
// operating mode to eco through the mode controller and resumes from the
// checkpoint, so already-committed chunks are never re-chunked or assigned
// new ids. The same checkpoint lets a restarted process finish a document
// interrupted by a crash.
//
// # Usage
//
//	pipeline, err := ingestion.NewPipeline(stores, embedder, lexIdx, denseIdx, controller)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Release()
//
//	result, err := pipeline.IndexDocument(ctx, "/notes/todo.txt", content)
package ingestion
