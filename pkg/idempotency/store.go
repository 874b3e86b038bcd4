// Package idempotency caches finished order records by idempotency key in
// Redis. The journal stays authoritative; the cache only spares retried
// callers a database round trip.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) key(idempotencyKey string) string {
	return fmt.Sprintf("idem:order:%s", idempotencyKey)
}

// Lookup returns the cached result for the key, if any.
func (s *Store) Lookup(ctx context.Context, idempotencyKey string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(idempotencyKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Save stores the result for the key with the configured TTL.
func (s *Store) Save(ctx context.Context, idempotencyKey string, payload []byte) error {
	return s.rdb.Set(ctx, s.key(idempotencyKey), payload, s.ttl).Err()
}
