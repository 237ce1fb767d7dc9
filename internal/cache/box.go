package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tellus/tellus/internal/model"
)

// Cache key prefixes and TTLs.
const (
	boxKeyPrefix      = "box:"
	negCacheKeySuffix = ":neg"

	// DefaultBoxTTL is the TTL for cached box data.
	DefaultBoxTTL = 6 * time.Hour

	// NegativeCacheTTL is the TTL for unknown-token entries.
	NegativeCacheTTL = 2 * time.Minute
)

// ErrCacheMiss is returned when a key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// BoxKey returns the cache key for a box token.
func BoxKey(token string) string {
	return boxKeyPrefix + token
}

// GetBox retrieves a box by public token.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetBox(ctx context.Context, token string) (*model.Box, error) {
	cmd := c.client.HGetAll(ctx, BoxKey(token))
	result, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedBox
	if err := cmd.Scan(&cached); err != nil {
		return nil, fmt.Errorf("decode cached box: %w", err)
	}
	if cached.ID == "" {
		return nil, ErrCacheMiss
	}
	return cached.ToBox(token), nil
}

// SetBox stores a box and clears any negative entry for its token.
func (c *Cache) SetBox(ctx context.Context, box *model.Box) error {
	key := BoxKey(box.Token)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, box.ToCachedBox())
	pipe.Expire(ctx, key, DefaultBoxTTL)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache box: %w", err)
	}
	return nil
}

// DeleteBox removes a box from cache.
func (c *Cache) DeleteBox(ctx context.Context, token string) error {
	key := BoxKey(token)
	if err := c.client.Del(ctx, key, key+negCacheKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete box from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached reports whether token was recently looked up and not found.
func (c *Cache) IsNegativelyCached(ctx context.Context, token string) (bool, error) {
	n, err := c.client.Exists(ctx, BoxKey(token)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return n > 0, nil
}

// SetNegativeCache marks a token as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, token string) error {
	if err := c.client.SetEx(ctx, BoxKey(token)+negCacheKeySuffix, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
