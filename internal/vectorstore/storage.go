package vectorstore

import (
	"context"

	"ragserver/internal/domain"
)

// Result is a single nearest-neighbor match. Distance is cosine distance:
// smaller means more similar.
type Result struct {
	Text     string
	Source   string
	Index    int
	Distance float64
}

// Store persists index entries under a named collection and answers
// nearest-neighbor queries.
//
// Add rejects the whole batch when any id already exists or the entries are
// malformed; nothing is written on rejection. Query returns up to topK
// matches ordered by ascending distance, ties broken by insertion order, and
// an empty slice (not an error) for an empty collection. Once Clear returns,
// Count reports zero and no prior entry is retrievable.
type Store interface {
	Add(ctx context.Context, entries []domain.Entry) error
	Query(ctx context.Context, vector []float32, topK int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
