// Package vector stores chunk vectors in a similarity index. Store targets
// Redis or Valkey search over hashes; Milvus targets a Milvus collection.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdesk/internal/db"
	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

const backendStore = "store"

// store is the consumer interface for the hash-backed index (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	ListIndexes(ctx context.Context) ([]string, error)
	IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Store is a vector index on Redis 8 / Redis Stack / Valkey with valkey-search.
// Each chunk is a hash at {prefix}chunk:{index}:{id}.
type Store struct {
	store     store
	keyPrefix string
	hnsw      HNSWConfig
}

// NewStore creates a hash-backed vector index repository.
func NewStore(s store, keyPrefix string) *Store {
	return &Store{store: s, keyPrefix: keyPrefix, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Store) WithHNSW(cfg HNSWConfig) *Store {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

func (r *Store) chunkPrefix(index string) string {
	return r.keyPrefix + "chunk:" + index + ":"
}

// ListIndexes returns the names of all search indexes.
func (r *Store) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := r.store.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return names, nil
}

// CreateIndex runs FT.CREATE for spec. An existing index yields domain.ErrAlreadyExists.
func (r *Store) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	def, err := r.buildIndex(spec)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	return nil
}

func (r *Store) buildIndex(spec domain.IndexSpec) (*db.IndexDefinition, error) {
	if spec.Metric != domain.MetricCosine {
		return nil, fmt.Errorf("unsupported metric %q: %w", spec.Metric, domain.ErrInvalidInput)
	}
	def := &db.IndexDefinition{
		Name:   spec.Name,
		Prefix: r.chunkPrefix(spec.Name),
		Tags: []db.TagField{
			{Name: fieldSource, Separator: "|", CaseSensitive: true},
			{Name: fieldFilename, Separator: "|", CaseSensitive: true},
		},
		Vector: db.VectorField{
			Name:        fieldVector,
			Dim:         spec.Dimension,
			Distance:    db.DistanceCosine,
			M:           r.hnsw.M,
			EFConstruct: r.hnsw.EFConstruct,
		},
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return def, nil
}

// IndexReady reports whether background indexing has finished.
func (r *Store) IndexReady(ctx context.Context, name string) (bool, error) {
	info, err := r.store.IndexInfo(ctx, name)
	if err != nil {
		return false, fmt.Errorf("index info %s: %w", name, err)
	}
	return info.Ready(), nil
}

// Upsert writes records as hashes in one pipeline. HSET overwrites, so re-upserting an id is idempotent.
func (r *Store) Upsert(ctx context.Context, name string, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	prefix := r.chunkPrefix(name)
	items := make([]db.HashSetItem, len(records))
	for i := range records {
		items[i] = db.HashSetItem{Key: prefix + records[i].ID, Fields: buildHashFields(&records[i])}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		metrics.IndexRecordsUpsertedTotal.WithLabelValues(backendStore, "error").Add(float64(len(records)))
		return fmt.Errorf("upsert %d records into %s: %w", len(records), name, err)
	}
	metrics.IndexRecordsUpsertedTotal.WithLabelValues(backendStore, "success").Add(float64(len(records)))
	return nil
}

// Query runs a KNN search. Matches come back best first.
func (r *Store) Query(
	ctx context.Context, name string, vector []float32, topK int, filter domain.QueryFilter,
) ([]domain.IndexMatch, error) {
	q := &db.KNNQuery{
		IndexName:    name,
		VectorField:  fieldVector,
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	}
	if filter.Source != "" {
		q.TagFilters = map[string]string{fieldSource: filter.Source}
	}

	res, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knn search %s: %w", name, err)
	}

	prefix := r.chunkPrefix(name)
	matches := make([]domain.IndexMatch, 0, len(res.Entries))
	for _, e := range res.Entries {
		matches = append(matches, domain.IndexMatch{
			ID:       strings.TrimPrefix(e.Key, prefix),
			Score:    e.Score,
			Metadata: parseHashFields(e.Fields),
		})
	}
	return matches, nil
}
