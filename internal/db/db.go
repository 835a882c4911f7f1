// Package db defines the key-value and search store behind the page cache,
// the embedding cache, the token budget and the hash-backed chunk index.
package db

import (
	"context"
	"time"
)

// Store is the facade implemented by the Redis/Valkey driver.
// Consumers declare the narrow subset they need.
type Store interface {
	Pinger
	KVStore
	ChunkWriter
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// ChunkWriter stores chunk records as hashes.
type ChunkWriter interface {
	HSetMulti(ctx context.Context, items []HashSetItem) error
}

// KVStore provides the plain key-value operations used by caches and budget counters.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	ListIndexes(ctx context.Context) ([]string, error)
	IndexInfo(ctx context.Context, name string) (*IndexInfo, error)
}

// Searcher provides vector search over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
