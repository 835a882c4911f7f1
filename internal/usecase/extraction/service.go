// Package extraction turns source files into page text, reading the PDF text
// layer first and falling back to OCR for scanned documents.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

// Service extracts page text from PDF and plain-text files.
type Service struct {
	reader     TextReader
	rasterizer Rasterizer
	ocr        OCR
	cache      Cache
	logger     *zap.Logger
}

// New creates a Service. rasterizer and ocr may be nil to disable the OCR
// fallback; cache may be nil to disable caching.
func New(reader TextReader, rasterizer Rasterizer, ocr OCR, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		reader:     reader,
		rasterizer: rasterizer,
		ocr:        ocr,
		cache:      cache,
		logger:     logger,
	}
}

// CacheKey returns the cache key of a file: the hex SHA-256 of its bytes.
func CacheKey(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Extract returns the pages of the file at path. Each page carries the path as
// its source and the base name as its filename.
//
// Unreadable files and unsupported extensions return an error. Corrupt PDFs
// and OCR failures never do: they degrade to an empty or partial result.
func (s *Service) Extract(ctx context.Context, path string) ([]domain.PageText, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return s.extractPDF(ctx, path)
	case ".txt", ".md":
		return s.extractText(path)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrUnsupportedFile)
	}
}

func (s *Service) extractText(path string) ([]domain.PageText, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return []domain.PageText{}, nil
	}

	metrics.PagesExtractedTotal.WithLabelValues("text").Inc()
	return []domain.PageText{{
		Content:  string(data),
		Source:   path,
		Filename: filepath.Base(path),
	}}, nil
}

func (s *Service) extractPDF(ctx context.Context, path string) ([]domain.PageText, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	key := CacheKey(data)
	log := s.logger.With(zap.String("source", path), zap.String("cache_key", key))

	if s.cache != nil {
		if pages, ok := s.cache.Get(ctx, key); ok {
			log.Debug("Page cache hit", zap.Int("pages", len(pages)))
			metrics.PagesExtractedTotal.WithLabelValues("cache").Add(float64(len(pages)))
			return restamp(path, pages), nil
		}
	}

	texts, err := s.reader.Pages(ctx, path)
	if err != nil {
		log.Warn("Digital text extraction failed", zap.Error(err))
	}
	if hasText(texts) {
		pages := s.toPages(path, texts)
		metrics.PagesExtractedTotal.WithLabelValues("digital").Add(float64(len(pages)))
		s.put(ctx, key, pages)
		log.Info("Extracted digital text", zap.Int("pages", len(pages)))
		return pages, nil
	}

	if s.ocr == nil || s.rasterizer == nil {
		log.Warn("No text layer and OCR is disabled")
		return []domain.PageText{}, nil
	}

	return s.extractOCR(ctx, path, key, log)
}

func (s *Service) extractOCR(ctx context.Context, path, key string, log *zap.Logger) ([]domain.PageText, error) {
	images, err := s.rasterizer.Rasterize(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rasterize %s: %w", path, ctx.Err())
		}
		log.Error("Rasterization failed", zap.Error(err))
		return []domain.PageText{}, nil
	}

	texts := make([]string, len(images))
	for i, img := range images {
		text, err := s.ocr.DetectText(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("ocr %s: %w", path, ctx.Err())
			}
			log.Warn("OCR failed for page", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		texts[i] = text
	}

	pages := s.toPages(path, texts)
	metrics.PagesExtractedTotal.WithLabelValues("ocr").Add(float64(len(pages)))
	s.put(ctx, key, pages)
	log.Info("Extracted text with OCR",
		zap.Int("pages", len(pages)),
		zap.Bool("has_text", hasText(texts)),
	)
	return pages, nil
}

// restamp copies cached pages onto path. The cache is keyed by content, so an
// entry may have been written while extracting another file with the same bytes.
func restamp(path string, cached []domain.PageText) []domain.PageText {
	filename := filepath.Base(path)
	pages := make([]domain.PageText, len(cached))
	for i, p := range cached {
		p.Source = path
		p.Filename = filename
		pages[i] = p
	}
	return pages
}

func (s *Service) toPages(path string, texts []string) []domain.PageText {
	filename := filepath.Base(path)
	pages := make([]domain.PageText, len(texts))
	for i, t := range texts {
		pages[i] = domain.PageText{
			Content:    t,
			PageNumber: i + 1,
			Source:     path,
			Filename:   filename,
		}
	}
	return pages
}

func (s *Service) put(ctx context.Context, key string, pages []domain.PageText) {
	if s.cache != nil {
		s.cache.Put(ctx, key, pages)
	}
}

func hasText(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}
