package vectorstore

import (
	"context"

	"docrag/internal/domain"
)

// Storage persists tenant vectors and supports similarity search.
type Storage interface {
	Add(ctx context.Context, tenantID string, vectors [][]float32, chunks []domain.Chunk) error
	Search(ctx context.Context, tenantID string, query []float32, topK int) ([]domain.QueryResult, bool, error)
}

var _ Storage = (*Registry)(nil)
