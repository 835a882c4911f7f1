package domain

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// EmbeddingUsage tallies the embedding tokens spent while serving one request.
// The handler attaches it before calling into the pipeline and reads it after.
type EmbeddingUsage struct {
	tokens atomic.Int64
	calls  atomic.Int64
}

// NewContextWithUsage attaches a fresh tally to ctx.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := new(EmbeddingUsage)
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the tally attached to ctx, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(usageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens counts one embedding call costing n tokens. A cache hit is a call
// costing zero. Safe on a nil receiver.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.tokens.Add(int64(n))
	u.calls.Add(1)
}

// Tokens reports the tokens spent and whether embedding was used at all.
func (u *EmbeddingUsage) Tokens() (int64, bool) {
	if u == nil {
		return 0, false
	}
	return u.tokens.Load(), u.calls.Load() > 0
}
