package embedding

import "context"

// Embedder converts text into fixed-dimension dense vectors. Embed is
// order-preserving: one vector per input text, in input order. The same
// embedder instance must serve both indexing and queries, or similarity
// scores are meaningless.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
