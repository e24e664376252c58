package retriever

import (
	"context"
	"fmt"

	"ragserver/internal/domain"
	"ragserver/internal/embedding"
	"ragserver/internal/vectorstore"
)

// Retriever embeds a question and returns the nearest context chunks with
// provenance, preserving the store's ranking order.
type Retriever struct {
	embedder embedding.Embedder
	store    vectorstore.Store
}

func New(embedder embedding.Embedder, store vectorstore.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns up to topK context chunks. An empty result is not an
// error; the caller decides how to surface it.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]domain.ContextChunk, error) {
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding question: got %d vectors for one input", len(vectors))
	}

	results, err := r.store.Query(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("querying vector store: %w", err)
	}

	chunks := make([]domain.ContextChunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, domain.ContextChunk{
			Text:     res.Text,
			Source:   res.Source,
			Distance: res.Distance,
		})
	}
	return chunks, nil
}
