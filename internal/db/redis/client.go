// Package redis implements db.Store on rueidis for Valkey with valkey-search
// and for Redis 8 or Redis Stack. Both speak the same FT.* dialect for HASH
// indexes with HNSW vectors, which is all the chunk index needs.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

var _ db.Store = (*Store)(nil)

// Config holds connection parameters.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	ClientName string // shown in CLIENT LIST
}

// Store is a rueidis-backed db.Store.
type Store struct {
	client rueidis.Client
}

// NewStore connects to the first reachable address.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("at least one address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   cfg.ClientName,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH and FT.INFO replies are parsed as RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", strings.Join(cfg.Addrs, ","), err)
	}
	return &Store{client: client}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the connections.
func (s *Store) Close() {
	s.client.Close()
}

const (
	readyMinBackoff = 100 * time.Millisecond
	readyMaxBackoff = 2 * time.Second
)

// WaitForReady pings with doubling backoff until the server answers or timeout elapses.
// The last ping error is part of the timeout error.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := readyMinBackoff
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %s: %w", timeout, errors.Join(ctx.Err(), err))
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, readyMaxBackoff)
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// serverErrorContains reports whether err is a server reply error whose
// message contains any of the fragments, ignoring case.
func serverErrorContains(err error, fragments ...string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(re.Error())
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// isUnknownIndex matches "Unknown index name" (Redis) and "Index with name ... not found" (valkey-search).
func isUnknownIndex(err error) bool {
	return serverErrorContains(err, "unknown index name", "not found")
}

// scalarString renders a scalar reply as a string; RESP2 FT.INFO mixes bulk strings and integers.
func scalarString(m rueidis.RedisMessage) (string, bool) {
	// ToString panics on integers and aggregates, so check the type first.
	switch {
	case m.IsString():
		s, err := m.ToString()
		return s, err == nil
	case m.IsInt64():
		n, err := m.AsInt64()
		return strconv.FormatInt(n, 10), err == nil
	case m.IsFloat64():
		f, err := m.AsFloat64()
		return strconv.FormatFloat(f, 'g', -1, 64), err == nil
	}
	return "", false
}
