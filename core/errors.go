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

// Error classes. Callers test for these with errors.Is.
var (
	// ErrValidation indicates a document or chunk cannot be indexed as given.
	ErrValidation = errors.New("validation failed")

	// ErrProvider indicates the embedding provider failed or returned
	// vectors that do not fit the store.
	ErrProvider = errors.New("embedding provider failed")

	// ErrNotFound indicates no valid store exists at the requested location.
	ErrNotFound = errors.New("index not found")

	// ErrCorruptStore indicates persisted artifacts are present but
	// mutually inconsistent.
	ErrCorruptStore = errors.New("index store is corrupt")
)

// Specific errors, each wrapping one of the classes above.
var (
	// ErrEmptyDocument indicates no chunk of a document produced canonical text.
	ErrEmptyDocument = fmt.Errorf("%w: document has no indexable chunks", ErrValidation)

	// ErrInvalidDocument indicates a document record is structurally invalid.
	ErrInvalidDocument = fmt.Errorf("%w: invalid document", ErrValidation)

	// ErrEmptyQuery indicates a blank query string.
	ErrEmptyQuery = fmt.Errorf("%w: query cannot be empty", ErrValidation)

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// store dimension. It means the provider changed without re-indexing.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrProvider)
)
