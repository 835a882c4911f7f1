// Package embcache caches embedding vectors in the key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/db"
	"github.com/kailas-cloud/ragdesk/internal/domain"
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures a CachedEmbedder.
type Options struct {
	// KeyPrefix namespaces entries. Include the model name so that switching
	// models never serves vectors from another space.
	KeyPrefix string
	// TTL expires entries. Zero keeps them until evicted.
	TTL time.Duration
	// Lookups counts cache lookups by label result="hit"|"miss". Optional.
	Lookups *prometheus.CounterVec
}

// CachedEmbedder serves repeated texts from the store. Store failures degrade
// to a miss and never fail the request.
type CachedEmbedder struct {
	inner  domain.Embedder
	kv     kv
	opts   Options
	logger *zap.Logger
}

// New wraps inner with a cache kept in s.
func New(inner domain.Embedder, s kv, opts Options, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, kv: s, opts: opts, logger: logger}
}

// Embed returns the cached vector with zero tokens, or embeds and caches the text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.store(ctx, key, res.Embedding)
	return res, nil
}

type miss struct {
	key  string
	text string
	at   []int // every input position holding this text
}

// BatchEmbed sends each distinct uncached text to inner once, in one request.
// Reported tokens cover that request only.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := make([][]float32, len(texts))
	pending := make(map[string]int)
	var misses []miss
	for i, text := range texts {
		key := c.key(text)
		if j, dup := pending[key]; dup {
			misses[j].at = append(misses[j].at, i)
			continue
		}
		if vec, ok := c.lookup(ctx, key); ok {
			out[i] = vec
			continue
		}
		pending[key] = len(misses)
		misses = append(misses, miss{key: key, text: text, at: []int{i}})
	}
	if len(misses) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	missTexts := make([]string, len(misses))
	for j, m := range misses {
		missTexts[j] = m.text
	}
	res, err := domain.EmbedAll(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(missTexts), err)
	}
	if len(res.Embeddings) != len(misses) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(misses), domain.ErrEmbeddingProviderError)
	}

	for j, m := range misses {
		vec := res.Embeddings[j]
		for _, i := range m.at {
			out[i] = vec
		}
		c.store(ctx, m.key, vec)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.opts.KeyPrefix + "emb_cache:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, err := c.read(ctx, key)
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
	}

	hit := err == nil && len(vec) > 0
	if c.opts.Lookups != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		c.opts.Lookups.WithLabelValues(result).Inc()
	}
	return vec, hit
}

func (c *CachedEmbedder) read(ctx context.Context, key string) ([]float32, error) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return db.DecodeVector(raw)
}

func (c *CachedEmbedder) store(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.kv.SetWithTTL(ctx, key, db.EncodeVector(vec), c.opts.TTL); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}
