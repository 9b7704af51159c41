package vectorstore

import (
	"context"

	"policyrag/internal/domain"
)

// Distance metrics understood by the stores.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// Storage persists vectors and supports similarity search.
// Search returns hits ordered by ascending distance.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredDocument, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
}
