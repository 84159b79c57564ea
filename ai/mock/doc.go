// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder and
// ai.AIProvider for use in unit tests. The mocks allow tests to run without
// an embedding service and produce deterministic vectors.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vectors, err := mockProvider.Embedder().EmbedTexts(ctx, []string{"test"})
//
//	// Small vectors for readable assertions
//	embedder := mock.NewMockEmbedderWithDimension(8)
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("service down")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder returns unit-length vectors seeded from an FNV hash of the
// text, so identical text always maps to the identical vector.
package mock
