package chunking

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

func mustChunker(t *testing.T, p Params) *Chunker {
	t.Helper()
	c, err := New(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%02d", i)
	}
	return strings.Join(w, " ")
}

func TestChunk_ShortPageSingleChunk(t *testing.T) {
	c := mustChunker(t, Params{Size: 500, Overlap: 50})
	pages := []domain.PageText{{Content: "Guitars originated in Spain.", PageNumber: 1, Source: "docs/guitars.pdf"}}

	chunks := c.Chunk(pages)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.ID != "guitars-0" || ch.Text != "Guitars originated in Spain." || ch.Source != "docs/guitars.pdf" {
		t.Errorf("unexpected chunk: %+v", ch)
	}
	if ch.Page == nil || *ch.Page != 1 {
		t.Errorf("expected page 1, got %v", ch.Page)
	}
}

func TestChunk_SizeAndOverlap(t *testing.T) {
	c := mustChunker(t, Params{Size: 20, Overlap: 8})
	chunks := c.Chunk([]domain.PageText{{Content: words(12), PageNumber: 1, Source: "a.pdf"}})

	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if n := runeLen(ch.Text); n > 20 {
			t.Errorf("chunk %q has %d runes, limit 20", ch.Text, n)
		}
	}
	if chunks[0].Text != "w00 w01 w02 w03 w04" {
		t.Errorf("unexpected first chunk %q", chunks[0].Text)
	}
	if !strings.HasPrefix(chunks[1].Text, "w03 w04") {
		t.Errorf("expected overlap with previous chunk, got %q", chunks[1].Text)
	}
}

func TestChunk_NoOverlap(t *testing.T) {
	c := mustChunker(t, Params{Size: 20, Overlap: 0})
	chunks := c.Chunk([]domain.PageText{{Content: words(10), Source: "a.txt"}})

	if len(chunks) != 2 || chunks[1].Text != "w05 w06 w07 w08 w09" {
		t.Errorf("unexpected chunks: %+v", chunks)
	}
}

func TestChunk_PrefersParagraphBoundaries(t *testing.T) {
	c := mustChunker(t, Params{Size: 40, Overlap: 0})
	text := "First paragraph is here.\n\nSecond paragraph follows."

	chunks := c.Chunk([]domain.PageText{{Content: text, Source: "p.txt"}})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "First paragraph is here." || chunks[1].Text != "Second paragraph follows." {
		t.Errorf("unexpected split: %q | %q", chunks[0].Text, chunks[1].Text)
	}
}

func TestChunk_LongWordFallsBackToCharacters(t *testing.T) {
	c := mustChunker(t, Params{Size: 4, Overlap: 0})
	chunks := c.Chunk([]domain.PageText{{Content: "abcdefghij", Source: "x.txt"}})

	got := make([]string, len(chunks))
	for i, ch := range chunks {
		got[i] = ch.Text
	}
	if strings.Join(got, "|") != "abcd|efgh|ij" {
		t.Errorf("unexpected chunks %q", got)
	}
}

func TestChunk_CountsRunesNotBytes(t *testing.T) {
	c := mustChunker(t, Params{Size: 5, Overlap: 0})
	chunks := c.Chunk([]domain.PageText{{Content: "гитара", Source: "ru.txt"}})

	if len(chunks) != 2 || chunks[0].Text != "гитар" || chunks[1].Text != "а" {
		t.Errorf("unexpected chunks: %+v", chunks)
	}
}

func TestChunk_NeverCrossesPagesOrFiles(t *testing.T) {
	c := mustChunker(t, Params{Size: 500, Overlap: 50})
	pages := []domain.PageText{
		{Content: "page one of a", PageNumber: 1, Source: "dir/a.pdf"},
		{Content: "page two of a", PageNumber: 2, Source: "dir/a.pdf"},
		{Content: "   ", PageNumber: 3, Source: "dir/a.pdf"},
		{Content: "only page of b", PageNumber: 1, Source: "dir/b.pdf"},
	}

	chunks := c.Chunk(pages)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantIDs := []string{"a-0", "a-1", "b-0"}
	for i, ch := range chunks {
		if ch.ID != wantIDs[i] {
			t.Errorf("chunk %d id = %q, want %q", i, ch.ID, wantIDs[i])
		}
	}
	if *chunks[1].Page != 2 || chunks[2].Source != "dir/b.pdf" {
		t.Errorf("unexpected provenance: %+v", chunks)
	}
}

func TestChunk_UnknownPage(t *testing.T) {
	c := mustChunker(t, Params{Size: 500, Overlap: 50})
	chunks := c.Chunk([]domain.PageText{{Content: "text file", Source: "notes.txt"}})

	if len(chunks) != 1 || chunks[0].Page != nil {
		t.Errorf("expected nil page, got %+v", chunks)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	pages := []domain.PageText{
		{Content: words(40), PageNumber: 1, Source: "a.pdf"},
		{Content: words(25), PageNumber: 2, Source: "a.pdf"},
	}

	for _, strategy := range []IDStrategy{IDSequential, IDContentHash} {
		c := mustChunker(t, Params{Size: 30, Overlap: 5, Strategy: strategy})
		first, second := c.Chunk(pages), c.Chunk(pages)

		if len(first) != len(second) {
			t.Fatalf("%s: chunk counts differ", strategy)
		}
		for i := range first {
			if first[i].ID != second[i].ID || first[i].Text != second[i].Text {
				t.Errorf("%s: chunk %d differs between runs", strategy, i)
			}
		}
	}
}

func TestChunk_ContentHashIDs(t *testing.T) {
	c := mustChunker(t, Params{Size: 500, Overlap: 0, Strategy: IDContentHash})
	pages := []domain.PageText{
		{Content: "same text", Source: "one/paper.txt"},
		{Content: "same text", Source: "two/paper.txt"},
		{Content: "same text", Source: "other.txt"},
	}

	chunks := c.Chunk(pages)
	if len(chunks[0].ID) != 64 {
		t.Errorf("expected hex sha256 id, got %q", chunks[0].ID)
	}
	if chunks[0].ID != chunks[1].ID {
		t.Error("identical stem and text must share an id")
	}
	if chunks[0].ID == chunks[2].ID {
		t.Error("different stems must produce different ids")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []Params{
		{Size: 0},
		{Size: 10, Overlap: 10},
		{Size: 10, Overlap: -1},
		{Size: 10, Strategy: "random"},
	}
	for _, p := range tests {
		if _, err := New(p); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("New(%+v): expected ErrInvalidInput, got %v", p, err)
		}
	}
}
