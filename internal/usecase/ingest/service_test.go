package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockExtractor struct {
	fn func(ctx context.Context, path string) ([]domain.PageText, error)
}

func (m *mockExtractor) Extract(ctx context.Context, path string) ([]domain.PageText, error) {
	return m.fn(ctx, path)
}

// wordChunker emits one chunk per word of every page.
type wordChunker struct{}

func (wordChunker) Chunk(pages []domain.PageText) []domain.Chunk {
	var out []domain.Chunk
	for _, p := range pages {
		for _, w := range strings.Fields(p.Content) {
			out = append(out, domain.Chunk{
				ID:     domain.SourceStem(p.Source) + "-" + w,
				Text:   w,
				Source: p.Source,
				Page:   p.Page(),
			})
		}
	}
	return out
}

type mockEmbedder struct {
	fn func(ctx context.Context, texts []string) ([]domain.IndexedVector, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([]domain.IndexedVector, error) {
	return m.fn(ctx, texts)
}

type mockIndex struct {
	mu      sync.Mutex
	records []domain.IndexRecord
	err     error
}

func (m *mockIndex) Upsert(_ context.Context, records []domain.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

func pagesExtractor(content map[string]string) *mockExtractor {
	return &mockExtractor{fn: func(_ context.Context, path string) ([]domain.PageText, error) {
		text, ok := content[path]
		if !ok {
			return nil, domain.ErrUnsupportedFile
		}
		return []domain.PageText{{Content: text, PageNumber: 1, Source: path}}, nil
	}}
}

// allEmbedder embeds every text except those listed in drop.
func allEmbedder(drop ...string) *mockEmbedder {
	return &mockEmbedder{fn: func(_ context.Context, texts []string) ([]domain.IndexedVector, error) {
		var out []domain.IndexedVector
		for i, t := range texts {
			skip := false
			for _, d := range drop {
				if t == d {
					skip = true
				}
			}
			if !skip {
				out = append(out, domain.IndexedVector{Index: i, Vector: []float32{float32(len(t))}})
			}
		}
		return out, nil
	}}
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Chunker == nil {
		cfg.Chunker = wordChunker{}
	}
	cfg.Logger = zap.NewNop()
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

// --- Tests ---

func TestIngestFiles_Success(t *testing.T) {
	idx := &mockIndex{}
	svc := newTestService(t, Config{
		Extractor: pagesExtractor(map[string]string{"/up/report.pdf": "alpha beta gamma"}),
		Embedder:  allEmbedder(),
		Index:     idx,
	})

	results, err := svc.IngestFiles(context.Background(), []string{"/up/report.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("unexpected file error: %v", r.Err)
	}
	if r.Filename != "report.pdf" || r.Pages != 1 || r.Chunks != 3 || r.Indexed != 3 || r.FailedEmbeddings != 0 {
		t.Errorf("unexpected result: %+v", r)
	}
	if len(idx.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(idx.records))
	}
	rec := idx.records[1]
	if rec.ID != "report-beta" || rec.Metadata.Text != "beta" || rec.Metadata.Filename != "report.pdf" ||
		rec.Metadata.Source != "/up/report.pdf" || *rec.Metadata.Page != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestIngestFiles_DroppedEmbeddingsJoinByIndex(t *testing.T) {
	idx := &mockIndex{}
	svc := newTestService(t, Config{
		Extractor: pagesExtractor(map[string]string{"/up/a.pdf": "one two three four"}),
		Embedder:  allEmbedder("two"),
		Index:     idx,
	})

	results, err := svc.IngestFiles(context.Background(), []string{"/up/a.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := results[0]
	if r.Err != nil || r.Indexed != 3 || r.FailedEmbeddings != 1 {
		t.Errorf("unexpected result: %+v", r)
	}
	for _, rec := range idx.records {
		if rec.ID == "a-two" {
			t.Error("dropped chunk must not be indexed")
		}
		if rec.Vector[0] != float32(len(rec.Metadata.Text)) {
			t.Errorf("vector of %q attached to the wrong chunk", rec.ID)
		}
	}
}

func TestIngestFiles_PerFileErrorsDoNotStopOthers(t *testing.T) {
	idx := &mockIndex{}
	svc := newTestService(t, Config{
		Extractor: pagesExtractor(map[string]string{
			"/up/good.pdf":  "ok",
			"/up/empty.pdf": "   ",
		}),
		Embedder: allEmbedder(),
		Index:    idx,
		Workers:  3,
	})

	paths := []string{"/up/good.pdf", "/up/notes.docx", "/up/empty.pdf"}
	results, err := svc.IngestFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Indexed != 1 {
		t.Errorf("good file: %+v", results[0])
	}
	if !errors.Is(results[1].Err, domain.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", results[1].Err)
	}
	if results[2].Err != nil || results[2].Chunks != 0 || results[2].Indexed != 0 {
		t.Errorf("empty file: %+v", results[2])
	}
}

func TestIngestFiles_AllEmbeddingsFailed(t *testing.T) {
	idx := &mockIndex{}
	svc := newTestService(t, Config{
		Extractor: pagesExtractor(map[string]string{"/up/a.pdf": "x y"}),
		Embedder:  allEmbedder("x", "y"),
		Index:     idx,
	})

	results, _ := svc.IngestFiles(context.Background(), []string{"/up/a.pdf"})
	if !errors.Is(results[0].Err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", results[0].Err)
	}
	if results[0].FailedEmbeddings != 2 || len(idx.records) != 0 {
		t.Errorf("unexpected result: %+v", results[0])
	}
}

func TestIngestFiles_UpsertError(t *testing.T) {
	idx := &mockIndex{err: domain.ErrIndexUnavailable}
	svc := newTestService(t, Config{
		Extractor: pagesExtractor(map[string]string{"/up/a.pdf": "x"}),
		Embedder:  allEmbedder(),
		Index:     idx,
	})

	results, _ := svc.IngestFiles(context.Background(), []string{"/up/a.pdf"})
	if !errors.Is(results[0].Err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", results[0].Err)
	}
	if results[0].Indexed != 0 {
		t.Errorf("expected 0 indexed, got %d", results[0].Indexed)
	}
}

func TestIngestFiles_Panic(t *testing.T) {
	ext := &mockExtractor{fn: func(context.Context, string) ([]domain.PageText, error) {
		panic("boom")
	}}
	svc := newTestService(t, Config{Extractor: ext, Embedder: allEmbedder(), Index: &mockIndex{}})

	results, err := svc.IngestFiles(context.Background(), []string{"/up/a.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Err == nil || !strings.Contains(results[0].Err.Error(), "panic") {
		t.Errorf("expected panic error, got %v", results[0].Err)
	}
}

func TestIngestFiles_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, Config{
		Extractor: pagesExtractor(map[string]string{"/up/a.pdf": "x"}),
		Embedder:  allEmbedder(),
		Index:     &mockIndex{},
	})

	results, err := svc.IngestFiles(ctx, []string{"/up/a.pdf", "/up/a.pdf"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, r := range results {
		if r.Err == nil {
			t.Error("expected per-file error after cancellation")
		}
	}
}

func TestIngestFiles_Empty(t *testing.T) {
	svc := newTestService(t, Config{Extractor: pagesExtractor(nil), Embedder: allEmbedder(), Index: &mockIndex{}})

	results, err := svc.IngestFiles(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("IngestFiles(nil) = %v, %v", results, err)
	}
}
