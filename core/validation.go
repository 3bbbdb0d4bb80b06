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
	"fmt"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Path must not be empty
//
// NOT validated:
//   - ContentHash (0 is a legal, if unlikely, digest)
//   - ID (0 is valid before the first chunk write assigns one)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Path == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyPath)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Text must not be empty
//   - Range must have Start <= End
//   - Ordinal must be non-negative
//
// NOT validated:
//   - ID (0 before the sequence assigns one)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyText)
	}

	if chunk.Range.End < chunk.Range.Start {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidByteRange)
	}

	if chunk.Ordinal < 0 {
		return fmt.Errorf("%w: negative ordinal %d", ErrInvalidChunk, chunk.Ordinal)
	}

	return nil
}

// ValidateFolder validates a Folder according to domain rules.
func ValidateFolder(folder *Folder) error {
	if folder == nil {
		return fmt.Errorf("%w: folder is nil", ErrInvalidFolder)
	}

	if folder.Path == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFolder, ErrEmptyPath)
	}

	return nil
}
