// Package retrieval finds the chunks an answer is grounded on.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 3

// Extra keys attached to retrieved chunks.
const (
	ExtraFilename = "filename"
	ExtraChunkID  = "chunk_id"
	ExtraScore    = "score"
)

// IndexRetriever embeds the query and searches the vector index.
type IndexRetriever struct {
	embedder domain.Embedder
	index    searcher
	topK     int
	logger   *zap.Logger
}

var _ domain.Retriever = (*IndexRetriever)(nil)

// NewIndexRetriever creates an IndexRetriever. embedder should already apply
// the query instruction.
func NewIndexRetriever(embedder domain.Embedder, index searcher, topK int, logger *zap.Logger) *IndexRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &IndexRetriever{embedder: embedder, index: index, topK: topK, logger: logger}
}

// Retrieve returns up to topK chunks, best first.
func (r *IndexRetriever) Retrieve(ctx context.Context, query string) ([]domain.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.RetrievedChunk{}, nil
	}

	res, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("embed query: empty vector: %w", domain.ErrEmbeddingProviderError)
	}

	matches, err := r.index.Query(ctx, res.Embedding, r.topK, domain.QueryFilter{})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	chunks := make([]domain.RetrievedChunk, len(matches))
	for i, m := range matches {
		chunks[i] = domain.RetrievedChunk{
			ID:      m.ID,
			Content: m.Metadata.Text,
			Source:  m.Metadata.Source,
			Page:    m.Metadata.Page,
			Score:   m.Score,
			Extra: map[string]any{
				ExtraFilename: m.Metadata.Filename,
				ExtraChunkID:  m.ID,
				ExtraScore:    m.Score,
			},
		}
	}

	r.logger.Debug("Retrieved chunks", zap.Int("count", len(chunks)), zap.Int("top_k", r.topK))
	return chunks, nil
}

// StaticRetriever serves a fixed list of chunks regardless of the query.
type StaticRetriever struct {
	chunks []domain.RetrievedChunk
	topK   int
}

var _ domain.Retriever = (*StaticRetriever)(nil)

// NewStaticRetriever creates a StaticRetriever over chunks in the given order.
func NewStaticRetriever(chunks []domain.RetrievedChunk, topK int) *StaticRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &StaticRetriever{chunks: chunks, topK: topK}
}

// Retrieve returns the first topK configured chunks.
func (r *StaticRetriever) Retrieve(_ context.Context, _ string) ([]domain.RetrievedChunk, error) {
	n := min(r.topK, len(r.chunks))
	out := make([]domain.RetrievedChunk, n)
	for i := range n {
		c := r.chunks[i]
		c.Extra = map[string]any{ExtraChunkID: c.ID}
		out[i] = c
	}
	return out, nil
}
