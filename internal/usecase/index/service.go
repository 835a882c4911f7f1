// Package index resolves the vector index once at startup and hands out a
// Handle that every consumer uses for upserts and similarity queries.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// Defaults applied when Config leaves a field at zero.
const (
	DefaultPollInterval    = time.Second
	DefaultReadyTimeout    = 60 * time.Second
	DefaultUpsertBatchSize = 100
)

// Config holds index lifecycle settings.
type Config struct {
	PollInterval    time.Duration
	ReadyTimeout    time.Duration
	UpsertBatchSize int
}

// Manager creates or reuses vector indexes.
type Manager struct {
	backend Backend
	cfg     Config
	logger  *zap.Logger
}

// New creates a Manager.
func New(backend Backend, cfg Config, logger *zap.Logger) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = DefaultUpsertBatchSize
	}
	return &Manager{backend: backend, cfg: cfg, logger: logger}
}

// EnsureIndex returns a handle to an index matching spec.Name, creating it if needed.
// An index whose name equals spec.Name wins; otherwise the first index whose name
// starts with spec.Name is reused. Names are compared in the backend's stored form.
// Reused and freshly created indexes are both polled until ready; if one is not
// ready within the timeout, the error wraps domain.ErrIndexUnavailable.
func (m *Manager) EnsureIndex(ctx context.Context, spec domain.IndexSpec) (*Handle, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	names, err := m.backend.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w: %w", domain.ErrIndexUnavailable, err)
	}

	want := spec.Name
	if n, ok := m.backend.(storedNamer); ok {
		want = n.StoredName(spec.Name)
	}

	if name, ok := matchIndex(names, want); ok {
		m.logger.Info("Reusing vector index",
			zap.String("requested", spec.Name),
			zap.String("index", name),
		)
		if err := m.waitReady(ctx, name); err != nil {
			return nil, err
		}
		return m.handle(name, spec.Dimension), nil
	}

	err = m.backend.CreateIndex(ctx, spec)
	switch {
	case err == nil:
		m.logger.Info("Created vector index",
			zap.String("index", want),
			zap.Int("dimension", spec.Dimension),
			zap.String("metric", spec.Metric),
		)
	case errors.Is(err, domain.ErrAlreadyExists):
		m.logger.Info("Vector index created concurrently", zap.String("index", want))
	default:
		return nil, fmt.Errorf("create index %s: %w: %w", spec.Name, domain.ErrIndexUnavailable, err)
	}

	if err := m.waitReady(ctx, want); err != nil {
		return nil, err
	}
	return m.handle(want, spec.Dimension), nil
}

func (m *Manager) handle(name string, dimension int) *Handle {
	return &Handle{
		name:      name,
		dimension: dimension,
		backend:   m.backend,
		batchSize: m.cfg.UpsertBatchSize,
		logger:    m.logger,
	}
}

// waitReady polls readiness every PollInterval until ReadyTimeout elapses.
// Transient readiness errors are logged and retried.
func (m *Manager) waitReady(ctx context.Context, name string) error {
	deadline := time.Now().Add(m.cfg.ReadyTimeout)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ready, err := m.backend.IndexReady(ctx, name)
		if err != nil {
			m.logger.Warn("Index readiness check failed", zap.String("index", name), zap.Error(err))
		}
		if ready {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("index %s not ready after %s: %w", name, m.cfg.ReadyTimeout, domain.ErrIndexUnavailable)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for index %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

func validateSpec(spec domain.IndexSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("index name is required: %w", domain.ErrInvalidInput)
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("index dimension must be positive, got %d: %w", spec.Dimension, domain.ErrInvalidInput)
	}
	if spec.Metric != domain.MetricCosine {
		return fmt.Errorf("unsupported metric %q: %w", spec.Metric, domain.ErrInvalidInput)
	}
	return nil
}

// matchIndex finds name among existing indexes: exact match first, then the
// lexicographically smallest name with that prefix.
func matchIndex(existing []string, name string) (string, bool) {
	var prefixed []string
	for _, n := range existing {
		if n == name {
			return n, true
		}
		if strings.HasPrefix(n, name) {
			prefixed = append(prefixed, n)
		}
	}
	if len(prefixed) == 0 {
		return "", false
	}
	sort.Strings(prefixed)
	return prefixed[0], true
}

// Handle is a resolved vector index.
type Handle struct {
	name      string
	dimension int
	backend   Backend
	batchSize int
	logger    *zap.Logger
}

// Name returns the resolved index name.
func (h *Handle) Name() string { return h.name }

// Dimension returns the vector dimension the handle was resolved with.
func (h *Handle) Dimension() int { return h.dimension }

// Upsert writes records in batches, in order. The first failing batch stops
// the upsert; earlier batches stay written, which is safe because upsert by id is idempotent.
// Records are validated up front so a dimension mismatch writes nothing.
func (h *Handle) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	for i := range records {
		if len(records[i].Vector) != h.dimension {
			return fmt.Errorf("record %s has %d dimensions, index %s expects %d: %w",
				records[i].ID, len(records[i].Vector), h.name, h.dimension, domain.ErrVectorDimMismatch)
		}
	}

	for start, batch := 0, 0; start < len(records); start, batch = start+h.batchSize, batch+1 {
		end := min(start+h.batchSize, len(records))
		if err := h.backend.Upsert(ctx, h.name, records[start:end]); err != nil {
			return fmt.Errorf("upsert batch %d (records %d-%d): %w", batch, start, end-1, err)
		}
		h.logger.Debug("Upserted batch",
			zap.String("index", h.name),
			zap.Int("batch", batch),
			zap.Int("size", end-start),
		)
	}
	return nil
}

// Query returns at most topK matches ordered by non-increasing score.
func (h *Handle) Query(
	ctx context.Context, vector []float32, topK int, filter domain.QueryFilter,
) ([]domain.IndexMatch, error) {
	if topK <= 0 {
		return []domain.IndexMatch{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty: %w", domain.ErrInvalidInput)
	}

	matches, err := h.backend.Query(ctx, h.name, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", h.name, err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
