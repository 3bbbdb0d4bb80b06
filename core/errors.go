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


package core

import (
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidFolder indicates a Folder failed validation.
	ErrInvalidFolder = errors.New("invalid folder")

	// ErrEmptyPath indicates a required path field is empty.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrEmptyText indicates the chunk Text field is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrInvalidByteRange indicates a byte range with End before Start.
	ErrInvalidByteRange = errors.New("byte range end precedes start")
)

// Operational error taxonomy shared across packages.
var (
	// ErrEmbeddingFailure indicates the embedding backend failed or is
	// unavailable. Not retried by the embedding layer itself.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrCorruptCache indicates an index cache file is unreadable or
	// incompatible with the current configuration. Callers fall back to
	// rebuilding from the metadata store.
	ErrCorruptCache = errors.New("corrupt index cache")

	// ErrOOMRecoverable indicates an out-of-memory condition the mode
	// controller can recover from by downgrading to eco mode.
	ErrOOMRecoverable = errors.New("recoverable out-of-memory condition")

	// ErrDuplicateJob indicates an indexing job is already in flight for
	// the same document.
	ErrDuplicateJob = errors.New("indexing job already in flight for document")
)

// DimensionMismatchError reports a vector whose dimension does not match the
// index it was offered to. Fatal for the offending call, never retried.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: want %d, got %d", e.Want, e.Got)
}
