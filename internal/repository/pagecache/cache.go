// Package pagecache stores extracted page text in the key-value store so that
// re-ingesting identical bytes skips PDF parsing and OCR.
package pagecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/db"
	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// store is the consumer interface for the page cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is a best-effort page cache: store failures are logged and reported as misses.
type Cache struct {
	store  store
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a page cache. Keys are prefix+"pages:"+key; ttl <= 0 keeps entries forever.
func New(s store, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		store:  s,
		prefix: prefix + "pages:",
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns cached pages. An entry holding zero pages is still a hit.
func (c *Cache) Get(ctx context.Context, key string) ([]domain.PageText, bool) {
	data, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read page cache", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var pages []domain.PageText
	if err := json.Unmarshal(data, &pages); err != nil {
		c.logger.Warn("Failed to decode cached pages", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if pages == nil {
		pages = []domain.PageText{}
	}
	return pages, true
}

// Put stores pages under key.
func (c *Cache) Put(ctx context.Context, key string, pages []domain.PageText) {
	if pages == nil {
		pages = []domain.PageText{}
	}
	data, err := json.Marshal(pages)
	if err != nil {
		c.logger.Warn("Failed to encode pages", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, c.prefix+key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to write page cache", zap.String("key", key), zap.Error(err))
	}
}
