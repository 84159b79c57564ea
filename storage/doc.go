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


// Package storage provides the document ledger for semindex.
//
// The ledger keeps every document record that was submitted for indexing,
// keyed by doc_id, so that a vector store can be rebuilt from scratch when
// the embedding provider changes. It also keeps one checkpoint per index
// directory describing the last committed generation.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces:
//
//	docs, err := badger.NewDocumentRepository(backend)  // storage.DocumentRepository
//
// Internal helpers may return concrete types since they're only used within
// the implementation package.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/ledger", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	docs, err := badger.NewDocumentRepository(backend)
//
// Use in tests with in-memory storage:
//
//	docs, checkpoints, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
