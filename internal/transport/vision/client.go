// Package vision implements OCR through the Google Cloud Vision API.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

const featureTextDetection = "TEXT_DETECTION"

// Config holds the OCR client settings.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// Client detects text in page images. Requests are paced by a token bucket
// shared by every caller, so concurrent ingestions stay within one quota.
type Client struct {
	svc     *vision.Service
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a client authenticated with service-account JSON.
func NewClient(ctx context.Context, credentialsJSON []byte, cfg Config) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, vision.CloudVisionScope)
	if err != nil {
		return nil, fmt.Errorf("parse vision credentials: %w", err)
	}
	return NewClientWithOptions(ctx, cfg, option.WithTokenSource(creds.TokenSource))
}

// NewClientWithOptions creates a client with explicit API options (endpoint, auth).
func NewClientWithOptions(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}, nil
}

// DetectText returns the full-text annotation of an image, or "" when the
// service found no text. Provider failures wrap domain.ErrOCRProviderError.
func (c *Client) DetectText(ctx context.Context, image []byte) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ocr rate limiter: %w", err)
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{{Type: featureTextDetection}},
		}},
	}

	start := time.Now()
	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	metrics.OCRRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OCRRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("vision annotate: %w: %w", domain.ErrOCRProviderError, err)
	}

	if len(resp.Responses) == 0 {
		metrics.OCRRequestsTotal.WithLabelValues("empty").Inc()
		return "", nil
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		metrics.OCRRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("vision annotate: %s: %w", r.Error.Message, domain.ErrOCRProviderError)
	}
	if r.FullTextAnnotation == nil {
		metrics.OCRRequestsTotal.WithLabelValues("empty").Inc()
		return "", nil
	}

	metrics.OCRRequestsTotal.WithLabelValues("success").Inc()
	return strings.TrimSpace(r.FullTextAnnotation.Text), nil
}
