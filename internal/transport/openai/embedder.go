package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

// Embedder turns texts into vectors with one /embeddings call per batch.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// NewEmbedder creates an embedding client.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{
		client:     newClient(cfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.Provider,
		logger:     cfg.logger(),
	}
}

// Embed embeds a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed embeds texts in one request and returns vectors in input order.
// A reply that does not cover every input exactly once fails the whole batch.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
		Dimensions:     max(e.dimensions, 0),
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.failed("api_error")
		return domain.BatchEmbeddingResult{}, apiError("embedding", domain.ErrEmbeddingProviderError, err)
	}

	vectors, errType, err := orderVectors(resp.Data, len(texts))
	if err != nil {
		e.failed(errType)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: %w", err, domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(time.Since(start).Seconds())
	if u := resp.Usage; u.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "prompt").Add(float64(u.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "total").Add(float64(u.TotalTokens))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   vectors,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

func (e *Embedder) failed(errType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, errType).Inc()
}

// orderVectors places each returned vector at its input position. The second
// return value is the error class used as a metric label.
func orderVectors(data []openai.Embedding, n int) ([][]float32, string, error) {
	if len(data) != n {
		return nil, "count_mismatch", fmt.Errorf("embedding response has %d vectors for %d inputs", len(data), n)
	}

	out := make([][]float32, n)
	for _, d := range data {
		switch {
		case d.Index < 0 || d.Index >= n:
			return nil, "bad_index", fmt.Errorf("embedding index %d out of range", d.Index)
		case out[d.Index] != nil:
			return nil, "bad_index", fmt.Errorf("embedding index %d returned twice", d.Index)
		case len(d.Embedding) == 0:
			return nil, "empty_response", fmt.Errorf("empty embedding at position %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, "", nil
}

// HealthCheck checks the provider through the model list.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return listModels(ctx, e.client)
}
