package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a resource that already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidInput signals a malformed request payload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedFile signals a document type the extractor cannot read.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrIndexUnavailable signals that the vector index could not be created or did not become ready.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a chat model failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrOCRProviderError signals an OCR provider failure.
	ErrOCRProviderError = errors.New("ocr provider error")
)
