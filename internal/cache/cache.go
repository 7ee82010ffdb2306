// Package cache stores rendered HTTP responses for a bounded time.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-grocery-store/internal/config"
)

var ErrCacheMiss = errors.New("cache miss")

// Entry is a cached response body with the headers needed to replay it.
type Entry struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

type ResponseCache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	// Purge drops every cached response.
	Purge(ctx context.Context) error
	Close() error
}

const sweepInterval = time.Minute

// New builds the backend named in cfg. The redis backend is pinged before
// it is returned.
func New(ctx context.Context, cfg *config.CacheConfig) (ResponseCache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisCache(client), nil
	case "", "memory":
		return NewMemoryCache(sweepInterval), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
