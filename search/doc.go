// Package search implements the hybrid fusion engine.
//
// A query runs against both retrievers in parallel: the lexical BM25 index
// and the dense vector index. Each result list is min-max normalized to
// [0,1] independently, deduplicated by chunk id with lexical-first insertion
// order, and either reranked by a weighted combination
// (alpha*bm25 + (1-alpha)*dense) or interleaved round-robin with lexical
// first. Ties always break by ascending chunk id, so a fixed index snapshot
// and query produce identical rankings on every call.
//
// One-sided degradation never fails a search: if the dense retriever is
// empty or the query embedding fails, results fall back to lexical-only and
// the response reports DenseAvailable=false, and symmetrically for lexical.
// A retriever that returns no score for a chunk contributes zero to the
// combination.
package search
