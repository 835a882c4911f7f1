package index

import (
	"context"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// Backend is the vector store contract. CreateIndex returns
// domain.ErrAlreadyExists when the index is already there.
type Backend interface {
	ListIndexes(ctx context.Context) ([]string, error)
	CreateIndex(ctx context.Context, spec domain.IndexSpec) error
	IndexReady(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, name string, records []domain.IndexRecord) error
	Query(ctx context.Context, name string, vector []float32, topK int, filter domain.QueryFilter) ([]domain.IndexMatch, error)
}

// storedNamer is implemented by backends that keep an index under a name
// derived from the requested one, such as Milvus collections.
type storedNamer interface {
	StoredName(name string) string
}
