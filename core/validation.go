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
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - DocID must not be empty
//   - the document must carry chunks or pre-chunking sentences
//   - chunk IDs must be positive and unique within the document
//
// NOT validated:
//   - empty chunks (skipped by the canonicalizer, not an error)
//   - FileType and FilePath (informational only)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.DocID) == "" {
		return fmt.Errorf("%w: doc_id is required", ErrInvalidDocument)
	}

	if len(doc.Chunks) == 0 && len(doc.Sentences) == 0 {
		return fmt.Errorf("%w: no chunks or sentences", ErrInvalidDocument)
	}

	seen := make(map[int]struct{}, len(doc.Chunks))
	for i := range doc.Chunks {
		if err := ValidateChunk(&doc.Chunks[i]); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		if _, dup := seen[doc.Chunks[i].ChunkID]; dup {
			return fmt.Errorf("%w: duplicate chunk_id %d", ErrInvalidDocument, doc.Chunks[i].ChunkID)
		}
		seen[doc.Chunks[i].ChunkID] = struct{}{}
	}

	return nil
}

// ValidateChunk checks that a chunk has a usable sequence number.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrValidation)
	}
	if chunk.ChunkID < 1 {
		return fmt.Errorf("%w: chunk_id must be >= 1, got %d", ErrValidation, chunk.ChunkID)
	}
	return nil
}

// IsBlank reports whether every sentence is empty after trimming.
func IsBlank(sentences []string) bool {
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
