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



package reindex

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document ledger is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDirRequired is returned when the target index directory is not provided.
	ErrDirRequired = errors.New("index directory required")

	// ErrNothingIndexed is returned when the ledger holds no indexable chunk,
	// in which case the current generation is left in place.
	ErrNothingIndexed = errors.New("no indexable chunks in ledger")
)
