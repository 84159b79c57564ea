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


// Package ai provides the embedding provider abstraction used by semindex.
//
// The embedding model is consumed as a black box: a batch of strings goes in,
// a batch of fixed-dimension vectors comes out, in the same order. The same
// provider instance serves both the indexing pipeline and the searcher so
// that stored vectors and query vectors come from the same model.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - AIProvider: Owns an Embedder and its resources
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Deterministic test doubles
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// INTERFACE types to enforce abstraction. Test utility constructors
// (mock.NewMockEmbedder) return CONCRETE types so tests can inject behavior
// and assert on call counts.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	mockEmbed := mock.NewMockEmbedder()          // returns *mock.MockEmbedder
//
// # Helpers
//
// RetryWithBackoff implements the retry policy used for network calls, and
// Normalize scales vectors to unit length for inner-product stores.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"Hello world"})
package ai
