package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// searcher is the consumer interface over an ensured vector index handle (ISP).
type searcher interface {
	Query(ctx context.Context, vector []float32, topK int, filter domain.QueryFilter) ([]domain.IndexMatch, error)
}
