package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

// BudgetChecker gates embedding requests on the token budget.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	Snapshot() domain.BudgetSnapshot
}

// InstrumentedEmbedder puts the token budget in front of an embedder and
// attributes consumed tokens to the request. Transport metrics live in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. budget may be nil for an unlimited provider.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
}

// Embed embeds one text once the budget admits the request.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.admit(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	res, err := p.inner.Embed(ctx, text)
	if err != nil {
		p.logger.Error("Embedding request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.settle(ctx, res.TotalTokens)
	p.logger.Debug("Embedding request completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(res.Embedding)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}

// BatchEmbed embeds texts in one inner call, or one call per text when inner
// has no batch endpoint.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := p.admit(ctx, len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()
	res, err := domain.EmbedAll(ctx, p.inner, texts)
	if err != nil {
		p.logger.Error("Batch embedding request failed",
			zap.Int("batch_size", len(texts)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}

	p.settle(ctx, res.TotalTokens)
	p.logger.Debug("Batch embedding completed",
		zap.Int("batch_size", len(texts)),
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}

// admit fails with domain.ErrEmbeddingQuotaExceeded when the budget rejects the request.
func (p *InstrumentedEmbedder) admit(ctx context.Context, texts int) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Embedding budget exhausted", zap.Int("texts", texts), zap.Error(err))
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

// settle charges tokens to the request usage and the budget.
func (p *InstrumentedEmbedder) settle(ctx context.Context, tokens int) {
	domain.UsageFromContext(ctx).AddTokens(tokens)
	if p.budget == nil || tokens <= 0 {
		return
	}

	p.budget.Record(int64(tokens))
	snap := p.budget.Snapshot()
	gauge := metrics.EmbeddingBudgetTokensRemaining
	gauge.WithLabelValues(p.provider, "daily").Set(float64(snap.Daily.Remaining))
	gauge.WithLabelValues(p.provider, "monthly").Set(float64(snap.Monthly.Remaining))
}
