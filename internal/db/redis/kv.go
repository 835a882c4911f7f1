package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

// Get returns the raw value, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// Set stores value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value with EX ttl. A non-positive ttl stores it without expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := s.b().Set().Key(key).Value(rueidis.BinaryString(value))
	if ttl > 0 {
		return s.exec(ctx, db.OpSet, set.Ex(ttl).Build())
	}
	return s.exec(ctx, db.OpSet, set.Build())
}

// IncrBy adds val to the integer at key, creating it at zero.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	return s.exec(ctx, db.OpIncrBy, s.b().Incrby().Key(key).Increment(val).Build())
}

// Expire sets a TTL of at least one second. With nx the TTL is only set
// when the key has none (EXPIRE NX, Redis 7+ and Valkey).
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	seconds := max(int64(ttl/time.Second), 1)
	expire := s.b().Expire().Key(key).Seconds(seconds)
	if nx {
		return s.exec(ctx, db.OpExpire, expire.Nx().Build())
	}
	return s.exec(ctx, db.OpExpire, expire.Build())
}

// exec runs a command whose reply carries nothing but success.
func (s *Store) exec(ctx context.Context, op string, cmd rueidis.Completed) error {
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: op, Err: err}
	}
	return nil
}
