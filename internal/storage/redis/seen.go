// Package redis stores the ids of comments the responder has already handled.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkedin-autoposter/internal/config"
)

// SeenStore is a Redis-backed set of processed comment ids
type SeenStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg config.RedisConfig) (*SeenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *SeenStore {
	if prefix == "" {
		prefix = "autoposter"
	}
	return &SeenStore{
		client: client,
		key:    prefix + ":processed_comments",
		ttl:    ttl,
	}
}

// IsProcessed reports whether the comment was already handled
func (s *SeenStore) IsProcessed(ctx context.Context, commentID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, commentID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check comment %s: %w", commentID, err)
	}
	return ok, nil
}

// MarkProcessed records the comment as handled. The set expires ttl after the last write.
func (s *SeenStore) MarkProcessed(ctx context.Context, commentID string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.key, commentID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark comment %s: %w", commentID, err)
	}
	return nil
}

// Count returns how many comments are recorded
func (s *SeenStore) Count(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, s.key).Result()
}

// Close closes the Redis connection
func (s *SeenStore) Close() error {
	return s.client.Close()
}
