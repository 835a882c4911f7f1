package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

const (
	modeComplete = "complete"
	modeStream   = "stream"
)

// Generator is a chat completion provider using the OpenAI-compatible API (e.g. Groq).
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	provider    string
	logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat provider.
func NewGenerator(cfg *Config) *Generator {
	return &Generator{
		client:      newClient(cfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		provider:    cfg.Provider,
		logger:      cfg.logger(),
	}
}

func (g *Generator) request(p domain.Prompt, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Stream:      stream,
	}
}

// Generate implements domain.Generator with a single completion call.
func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, g.request(p, false))

	g.observe(modeComplete, start, err)
	if err != nil {
		return "", apiError("generation", domain.ErrGenerationProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationProviderError)
	}

	g.logger.Debug("Completion finished",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements domain.Generator. Empty deltas are skipped; an
// onToken error stops the stream and is returned unchanged.
func (g *Generator) GenerateStream(ctx context.Context, p domain.Prompt, onToken func(string) error) error {
	start := time.Now()

	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(p, true))
	if err != nil {
		g.observe(modeStream, start, err)
		return apiError("generation", domain.ErrGenerationProviderError, err)
	}
	defer stream.Close()

	var tokens int
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			g.observe(modeStream, start, err)
			return apiError("generation", domain.ErrGenerationProviderError, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		tokens++
		if err := onToken(delta); err != nil {
			g.observe(modeStream, start, err)
			return err
		}
	}

	g.observe(modeStream, start, nil)
	g.logger.Debug("Stream finished",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.Int("deltas", tokens),
	)
	return nil
}

// HealthCheck checks the provider through the model list.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return listModels(ctx, g.client)
}

func (g *Generator) observe(mode string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, mode, status).Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.provider, g.model, mode).
		Observe(time.Since(start).Seconds())
}

