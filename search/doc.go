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


// Package search answers nearest-chunk queries over a persisted index.
//
// A Searcher embeds the query with the same provider used at indexing time,
// scales it to unit length for inner-product stores, and ranks every stored
// vector exactly. It watches the store's CURRENT pointer and reloads when a
// writer commits a new generation, so it only ever sees whole generations.
// Query embeddings are cached in a ristretto cache.
package search
