// Package mock provides test doubles for the ai interfaces.
//
// # Usage in Tests
//
//	// Deterministic vectors derived from the text hash
//	embedder := mock.NewMockEmbedder()
//	embedder.Dimensions = 4
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("rate limited")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
package mock
