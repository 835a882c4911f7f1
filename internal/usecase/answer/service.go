// Package answer implements retrieval-augmented question answering.
package answer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/logger"
)

// Service answers questions from retrieved context.
type Service struct {
	retriever domain.Retriever
	generator domain.Generator
	prompt    PromptTemplate
	logger    *zap.Logger
}

// New creates a Service.
func New(retriever domain.Retriever, generator domain.Generator, prompt PromptTemplate, logger *zap.Logger) *Service {
	return &Service{
		retriever: retriever,
		generator: generator,
		prompt:    prompt,
		logger:    logger,
	}
}

// Answer retrieves context for the question and generates a response.
// A blank question returns an empty answer without calling any provider.
func (s *Service) Answer(ctx context.Context, question string) (domain.Answer, error) {
	q := NormalizeQuestion(question)
	if q == "" {
		return domain.Answer{Response: "", Sources: []domain.Source{}}, nil
	}

	chunks, p, err := s.prepare(ctx, q)
	if err != nil {
		return domain.Answer{}, err
	}

	text, err := s.generator.Generate(ctx, p)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	logger.FromContextOr(ctx, s.logger).Info("Question answered",
		zap.Int("sources", len(chunks)),
		zap.Int("response_len", len(text)),
	)
	return domain.Answer{Response: text, Sources: toSources(chunks)}, nil
}

// Stream emits token frames as the model produces them, then one sources frame.
// Errors are returned to the caller, which reports them as a single error frame.
func (s *Service) Stream(ctx context.Context, question string, emit Emit) error {
	q := NormalizeQuestion(question)
	if q == "" {
		return emit(domain.Frame{Type: domain.FrameSources, Sources: []domain.Source{}})
	}

	chunks, p, err := s.prepare(ctx, q)
	if err != nil {
		return err
	}

	tokens := 0
	err = s.generator.GenerateStream(ctx, p, func(token string) error {
		tokens++
		return emit(domain.Frame{Type: domain.FrameToken, Token: token})
	})
	if err != nil {
		return fmt.Errorf("stream answer: %w", err)
	}

	logger.FromContextOr(ctx, s.logger).Info("Question streamed",
		zap.Int("sources", len(chunks)),
		zap.Int("tokens", tokens),
	)
	return emit(domain.Frame{Type: domain.FrameSources, Sources: toSources(chunks)})
}

func (s *Service) prepare(ctx context.Context, q string) ([]domain.RetrievedChunk, domain.Prompt, error) {
	chunks, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, domain.Prompt{}, fmt.Errorf("retrieve context: %w", err)
	}
	return chunks, domain.Prompt{System: s.prompt.System(BuildContext(chunks)), User: q}, nil
}

func toSources(chunks []domain.RetrievedChunk) []domain.Source {
	out := make([]domain.Source, len(chunks))
	for i, c := range chunks {
		out[i] = domain.Source{
			Source:  c.Source,
			Page:    c.Page,
			Content: c.Content,
			Score:   c.Score,
			Extra:   c.Extra,
		}
	}
	return out
}
