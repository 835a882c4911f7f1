package ingest

import (
	"context"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// extractor reads page text from a document on disk.
type extractor interface {
	Extract(ctx context.Context, path string) ([]domain.PageText, error)
}

// chunker splits page text into identified chunks.
type chunker interface {
	Chunk(pages []domain.PageText) []domain.Chunk
}

// batchEmbedder embeds chunk texts, possibly dropping some of them.
type batchEmbedder interface {
	Embed(ctx context.Context, texts []string) ([]domain.IndexedVector, error)
}

// upserter writes records into the ensured vector index.
type upserter interface {
	Upsert(ctx context.Context, records []domain.IndexRecord) error
}
