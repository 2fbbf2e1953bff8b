package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a redis-backed seen-set. Seen atomically records a key and
// reports whether it had been recorded before, which lets consumers
// drop at-least-once redeliveries across restarts.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// OffsetKey dedups one physical kafka message.
func (s *Store) OffsetKey(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// OrderKey dedups one logical order across delivery paths: the same
// order redelivered at a different offset still hits the same key.
func (s *Store) OrderKey(orderID int64) string {
	return fmt.Sprintf("seen:order:%d", orderID)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
