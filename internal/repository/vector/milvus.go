package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdesk/internal/db"
	dbmilvus "github.com/kailas-cloud/ragdesk/internal/db/milvus"
	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

const backendMilvus = "milvus"

// milvusClient is the consumer interface for the Milvus-backed index (ISP).
type milvusClient interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, spec dbmilvus.CollectionSpec) error
	EnsureLoaded(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, collection string, rows []dbmilvus.Row) error
	Search(ctx context.Context, collection string, vector []float32, topK int, filter string) ([]dbmilvus.Hit, error)
}

// Milvus is a vector index backed by one Milvus collection per index.
// Milvus names allow only letters, digits and underscores, so other characters
// of an index name are mapped to underscores.
type Milvus struct {
	client milvusClient
	hnsw   HNSWConfig
}

// NewMilvus creates a Milvus-backed vector index repository.
func NewMilvus(c milvusClient) *Milvus {
	return &Milvus{client: c, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Milvus) WithHNSW(cfg HNSWConfig) *Milvus {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// CollectionName maps an index name to a valid Milvus collection name.
func CollectionName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// StoredName is the collection name an index is kept under.
func (r *Milvus) StoredName(name string) string { return CollectionName(name) }

// ListIndexes returns all collection names.
func (r *Milvus) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := r.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

// CreateIndex creates the collection with its HNSW index and starts loading it.
// An existing collection yields domain.ErrAlreadyExists.
func (r *Milvus) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Metric != domain.MetricCosine {
		return fmt.Errorf("unsupported metric %q: %w", spec.Metric, domain.ErrInvalidInput)
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive: %w", domain.ErrInvalidInput)
	}
	err := r.client.CreateCollection(ctx, dbmilvus.CollectionSpec{
		Name:            CollectionName(spec.Name),
		Dimension:       spec.Dimension,
		HNSWM:           r.hnsw.M,
		HNSWEFConstruct: r.hnsw.EFConstruct,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create collection %s: %w", spec.Name, err)
	}
	return nil
}

// IndexReady reports whether the collection is loaded, asking Milvus to load
// it when it has been released.
func (r *Milvus) IndexReady(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.EnsureLoaded(ctx, CollectionName(name))
	if err != nil {
		return false, fmt.Errorf("load state %s: %w", name, err)
	}
	return ok, nil
}

// Upsert writes records by primary key.
func (r *Milvus) Upsert(ctx context.Context, name string, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]dbmilvus.Row, len(records))
	for i := range records {
		rec := &records[i]
		page := int64(-1)
		if rec.Metadata.Page != nil {
			page = int64(*rec.Metadata.Page)
		}
		rows[i] = dbmilvus.Row{
			ID:       rec.ID,
			Vector:   rec.Vector,
			Source:   rec.Metadata.Source,
			Filename: rec.Metadata.Filename,
			Page:     page,
			Text:     rec.Metadata.Text,
		}
	}

	if err := r.client.Upsert(ctx, CollectionName(name), rows); err != nil {
		metrics.IndexRecordsUpsertedTotal.WithLabelValues(backendMilvus, "error").Add(float64(len(records)))
		return fmt.Errorf("upsert %d records into %s: %w", len(records), name, err)
	}
	metrics.IndexRecordsUpsertedTotal.WithLabelValues(backendMilvus, "success").Add(float64(len(records)))
	return nil
}

// Query runs a cosine ANN search. Milvus reports cosine similarity directly.
func (r *Milvus) Query(
	ctx context.Context, name string, vector []float32, topK int, filter domain.QueryFilter,
) ([]domain.IndexMatch, error) {
	hits, err := r.client.Search(ctx, CollectionName(name), vector, topK, dbmilvus.SourceFilter(filter.Source))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	matches := make([]domain.IndexMatch, 0, len(hits))
	for i := range hits {
		h := &hits[i]
		md := domain.RecordMetadata{Source: h.Source, Filename: h.Filename, Text: h.Text}
		if h.Page >= 0 {
			p := int(h.Page)
			md.Page = &p
		}
		matches = append(matches, domain.IndexMatch{ID: h.ID, Score: float64(h.Score), Metadata: md})
	}
	return matches, nil
}
