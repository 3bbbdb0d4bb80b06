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


// Package dense implements the vector retriever.
//
// The index is flat (exhaustive) and keyed by chunk id. It stores vectors in
// one of two encodings selected by the active hardware mode:
//
//   - float32: exact L2 distance, similarity = 1 / (1 + distance)
//   - binary: sign-quantized packed bits, Hamming distance,
//     similarity = 1 - hamming/dim
//
// Convert re-encodes all stored float vectors to binary in place. The
// reverse direction is lossy and rejected; going back to float vectors
// requires re-embedding.
//
// Save writes a self-describing blob with an explicit header (magic, format
// version, dtype, dimension, count) through a temp file and rename. Load
// validates the header against the configured dimension and reports
// core.ErrCorruptCache on any mismatch or truncation instead of
// misinterpreting bytes.
package dense
