package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragdesk/internal/db"
	"github.com/kailas-cloud/ragdesk/internal/domain"
)

func intPtr(n int) *int { return &n }

func TestStore_CreateIndex(t *testing.T) {
	ms := &mockStore{}
	var got *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		got = def
		return nil
	}
	r := NewStore(ms, "ragdesk:").WithHNSW(HNSWConfig{M: 32})

	err := r.CreateIndex(context.Background(), domain.IndexSpec{Name: "docs", Dimension: 768, Metric: domain.MetricCosine})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Name != "docs" || got.Prefix != "ragdesk:chunk:docs:" {
		t.Errorf("unexpected definition: %s %s", got.Name, got.Prefix)
	}
	vec := got.Vector
	if vec.Name != "vector" || vec.Dim != 768 || vec.Distance != db.DistanceCosine {
		t.Errorf("unexpected vector field: %+v", vec)
	}
	if vec.M != 32 || vec.EFConstruct != 200 {
		t.Errorf("unexpected HNSW params: M=%d EF=%d", vec.M, vec.EFConstruct)
	}
	if len(got.Tags) != 2 {
		t.Fatalf("tags = %+v, want source and filename", got.Tags)
	}
	if got.Tags[0].Name != "source" || got.Tags[0].Separator != "|" || !got.Tags[0].CaseSensitive {
		t.Errorf("unexpected source field: %+v", got.Tags[0])
	}
}

func TestStore_CreateIndex_Exists(t *testing.T) {
	ms := &mockStore{createIndexFn: func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists }}
	r := NewStore(ms, "p:")

	err := r.CreateIndex(context.Background(), domain.IndexSpec{Name: "docs", Dimension: 4, Metric: domain.MetricCosine})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestStore_CreateIndex_Invalid(t *testing.T) {
	r := NewStore(&mockStore{}, "p:")
	ctx := context.Background()

	if err := r.CreateIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 4, Metric: "l2"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for metric, got %v", err)
	}
	if err := r.CreateIndex(ctx, domain.IndexSpec{Name: "docs", Metric: domain.MetricCosine}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for dimension, got %v", err)
	}
}

func TestStore_IndexReady(t *testing.T) {
	ms := &mockStore{indexInfoFn: func(_ context.Context, name string) (*db.IndexInfo, error) {
		return &db.IndexInfo{Name: name, State: "backfill_in_progress"}, nil
	}}
	r := NewStore(ms, "p:")

	ready, err := r.IndexReady(context.Background(), "docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ready {
		t.Error("expected not ready during backfill")
	}
}

func TestStore_Upsert(t *testing.T) {
	ms := &mockStore{}
	var items []db.HashSetItem
	ms.hsetMultiFn = func(_ context.Context, it []db.HashSetItem) error {
		items = it
		return nil
	}
	r := NewStore(ms, "ragdesk:")

	records := []domain.IndexRecord{
		{ID: "fender-0", Vector: []float32{1, 0}, Metadata: domain.RecordMetadata{
			Source: "docs/fender.pdf", Filename: "fender.pdf", Page: intPtr(3), Text: "Telecaster",
		}},
		{ID: "notes-0", Vector: []float32{0, 1}, Metadata: domain.RecordMetadata{Source: "notes.txt", Text: "plain"}},
	}
	if err := r.Upsert(context.Background(), "docs", records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Key != "ragdesk:chunk:docs:fender-0" {
		t.Errorf("unexpected key %q", items[0].Key)
	}
	if items[0].Fields["page"] != "3" || items[0].Fields["text"] != "Telecaster" {
		t.Errorf("unexpected fields: %v", items[0].Fields)
	}
	if len(items[0].Fields["vector"]) != 8 {
		t.Errorf("expected 8 vector bytes, got %d", len(items[0].Fields["vector"]))
	}
	if _, ok := items[1].Fields["page"]; ok {
		t.Error("unknown page must not be stored")
	}
}

func TestStore_Upsert_Error(t *testing.T) {
	ms := &mockStore{hsetMultiFn: func(context.Context, []db.HashSetItem) error { return errors.New("OOM") }}
	r := NewStore(ms, "p:")

	err := r.Upsert(context.Background(), "docs", []domain.IndexRecord{{ID: "a", Vector: []float32{1}}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStore_Query(t *testing.T) {
	ms := &mockStore{}
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.K != 3 || q.VectorField != "vector" {
			t.Errorf("unexpected query: %+v", q)
		}
		if q.TagFilters["source"] != "docs/fender.pdf" {
			t.Errorf("expected source filter, got %v", q.TagFilters)
		}
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "p:chunk:docs:fender-1", Score: 0.9, Fields: map[string]string{
				"text": "Stratocaster", "source": "docs/fender.pdf", "filename": "fender.pdf", "page": "2",
			}},
			{Key: "p:chunk:docs:fender-0", Score: 0.4, Fields: map[string]string{
				"text": "Intro", "source": "docs/fender.pdf",
			}},
		}}, nil
	}
	r := NewStore(ms, "p:")

	got, err := r.Query(context.Background(), "docs", []float32{1, 0}, 3, domain.QueryFilter{Source: "docs/fender.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != "fender-1" || got[0].Score != 0.9 || got[0].Metadata.Page == nil || *got[0].Metadata.Page != 2 {
		t.Errorf("unexpected first match: %+v", got[0])
	}
	if got[1].Metadata.Page != nil {
		t.Errorf("expected nil page, got %v", *got[1].Metadata.Page)
	}
}

func TestStore_Query_NoFilter(t *testing.T) {
	ms := &mockStore{searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.TagFilters != nil {
			t.Errorf("expected no filters, got %v", q.TagFilters)
		}
		return &db.SearchResult{}, nil
	}}

	got, err := NewStore(ms, "p:").Query(context.Background(), "docs", []float32{1}, 3, domain.QueryFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}
