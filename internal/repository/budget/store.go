// Package budget persists embedding token counters in the key-value store.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Counters stores one integer counter per key.
type Counters struct {
	kv kv
}

// New creates counters on top of the key-value store.
func New(s kv) *Counters {
	return &Counters{kv: s}
}

// Add increments key by delta. The ttl is applied only when the key has none,
// so the first write of a window fixes its expiry.
func (c *Counters) Add(ctx context.Context, key string, delta int64, ttl time.Duration) error {
	if err := c.kv.IncrBy(ctx, key, delta); err != nil {
		return fmt.Errorf("add to counter %s: %w", key, err)
	}
	if ttl <= 0 {
		return nil
	}
	if err := c.kv.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("expire counter %s: %w", key, err)
	}
	return nil
}

// Load returns the counter value, 0 for a missing key.
func (c *Counters) Load(ctx context.Context, key string) (int64, error) {
	raw, err := c.kv.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("load counter %s: %w", key, err)
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, raw, err)
	}
	return n, nil
}
