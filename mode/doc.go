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


// Package mode implements the hardware-adaptive operating-mode controller.
//
// Three modes trade indexing throughput and vector precision against memory:
//
//   - Eco: batch size 1, 512-char chunks, binary vectors
//   - Balanced: batch size 4, 1000-char chunks, binary vectors
//   - Performance: batch size 16, 1000-char chunks, float32 vectors
//
// The mode is selected by explicit request, by RAM-based auto-detection at
// startup (never persisted across sessions), or by the OOM recovery path,
// which drops the process to Eco so indexing can resume where it left off.
// Explicit overrides injected at construction win over detection.
package mode
