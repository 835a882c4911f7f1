// Package chunking splits page text into bounded chunks with deterministic ids.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

// IDStrategy selects how chunk ids are derived.
type IDStrategy string

const (
	// IDSequential numbers chunks per source file: "{stem}-{i}".
	IDSequential IDStrategy = "sequential"
	// IDContentHash hashes the source stem and chunk text, so identical text yields the same id.
	IDContentHash IDStrategy = "content_hash"
)

// Params configures a Chunker.
type Params struct {
	Size     int
	Overlap  int
	Strategy IDStrategy
}

// Chunker splits pages into chunks.
type Chunker struct {
	splitter splitter
	strategy IDStrategy
}

// New validates params and creates a Chunker.
func New(p Params) (*Chunker, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", p.Size, domain.ErrInvalidInput)
	}
	if p.Overlap < 0 || p.Overlap >= p.Size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d: %w", p.Size, p.Overlap, domain.ErrInvalidInput)
	}
	switch p.Strategy {
	case "":
		p.Strategy = IDSequential
	case IDSequential, IDContentHash:
	default:
		return nil, fmt.Errorf("unknown id strategy %q: %w", p.Strategy, domain.ErrInvalidInput)
	}

	return &Chunker{
		splitter: splitter{size: p.Size, overlap: p.Overlap, separators: defaultSeparators},
		strategy: p.Strategy,
	}, nil
}

// Chunk splits every page independently, so chunks never span pages or files.
// Sequential ids count chunks across all pages of the same source, in page order.
func (c *Chunker) Chunk(pages []domain.PageText) []domain.Chunk {
	var chunks []domain.Chunk
	counters := make(map[string]int)

	for i := range pages {
		page := &pages[i]
		stem := domain.SourceStem(page.Source)
		for _, text := range c.splitter.split(page.Content) {
			n := counters[page.Source]
			counters[page.Source] = n + 1
			chunks = append(chunks, domain.Chunk{
				ID:     c.id(stem, n, text),
				Text:   text,
				Source: page.Source,
				Page:   page.Page(),
			})
		}
	}

	metrics.ChunksCreatedTotal.Add(float64(len(chunks)))
	return chunks
}

func (c *Chunker) id(stem string, n int, text string) string {
	if c.strategy == IDContentHash {
		h := sha256.Sum256([]byte(stem + text))
		return hex.EncodeToString(h[:])
	}
	return stem + "-" + strconv.Itoa(n)
}
