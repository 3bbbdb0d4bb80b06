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


// Package lexical implements the term-frequency retriever.
//
// The index ranks chunks against a query with BM25 scoring over the live
// (non-tombstoned) corpus. Removed chunks are tombstoned rather than erased
// so their ids are never handed out again by a stale snapshot.
//
// # Incremental Updates
//
// Adds and removes do not recompute corpus statistics immediately. The index
// marks itself dirty and refits (document frequencies, average length) on the
// first Search after a mutation, so bulk indexing pays one refit instead of
// one per chunk.
//
// # Persistence
//
// Save writes a versioned snapshot (postings, document-length table,
// tombstone set) to a temp file and renames it into place, so a crash during
// save never leaves a truncated index behind. Load restores the exact corpus,
// so post-load rankings match pre-save rankings. Whether the index is usable
// is always derived from the live corpus size, never from a stored flag.
//
// # Usage
//
//	idx := lexical.NewIndex()
//	idx.Add(1, "apple banana")
//	idx.Add(2, "banana cherry")
//	hits := idx.Search("banana", 10)
package lexical
