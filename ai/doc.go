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


// Package ai provides the embedding service used by filesense.
//
// The package defines the Embedder interface, a content-hash-keyed embedding
// cache, and the binary quantization transform used by the dense retriever.
// It follows the dependency inversion principle: the indexing pipeline and
// fusion engine depend on the Embedder abstraction, never on a concrete
// backend, and service instances are constructed by the process bootstrap
// and injected where needed.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewEmbedder) return INTERFACE types to enforce
// abstraction and prevent accidental coupling to concrete implementations.
//
//	embedder, err := openai.NewEmbedder(config)  // returns ai.Embedder
//
// Test utility constructors (mock.NewMockEmbedder) return CONCRETE types to
// enable test assertions and behavior injection via the mock's public fields
// (CallCount, EmbedTextFunc, Reset, etc.). NewCachedEmbedder also returns a
// concrete type because callers need DropCache and Close.
//
// # Quantization
//
// Quantize converts float vectors to packed sign-bit codes for the binary
// index modes. The transform is stateless, so stored float vectors can be
// re-encoded at any time without consulting the embedding backend.
package ai
