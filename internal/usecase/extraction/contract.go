package extraction

import (
	"context"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// TextReader extracts the embedded text layer of a PDF, one string per page.
type TextReader interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// Rasterizer renders every PDF page to a PNG image, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) ([][]byte, error)
}

// OCR recognizes text in an image.
type OCR interface {
	DetectText(ctx context.Context, image []byte) (string, error)
}

// Cache stores extraction results by content key. Failures are handled inside the cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.PageText, bool)
	Put(ctx context.Context, key string, pages []domain.PageText)
}
