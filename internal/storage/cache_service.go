package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheKeyType namespaces cached query API responses
type CacheKeyType string

const (
	// CacheKeyAuction is one enriched auction view
	CacheKeyAuction CacheKeyType = "auction"
	// CacheKeyAuctionList is one page of the auction listing
	CacheKeyAuctionList CacheKeyType = "auctions"
	// CacheKeyAuctionCount is the status summary
	CacheKeyAuctionCount CacheKeyType = "auctions_count"
	// CacheKeyBids is one page of an auction's bids
	CacheKeyBids CacheKeyType = "bids"
)

// CacheService stores JSON-encoded query responses in Redis
type CacheService struct {
	redis  *RedisCache
	ttl    time.Duration
	prefix string
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis:  redis,
		ttl:    ttl,
		prefix: "auction-indexer",
	}
}

// GenerateCacheKey builds <prefix>:<type>:<param1>:<param2>... with
// lowercased parameters.
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+2)
	parts = append(parts, c.prefix, string(keyType))
	for _, p := range params {
		parts = append(parts, strings.ToLower(p))
	}
	return strings.Join(parts, ":")
}

// Set stores a value with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl)
}

// Get decodes the cached value into dest. It reports false on a miss.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes one or more keys
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a glob pattern
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.ScanKeys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}
	return c.Invalidate(ctx, keys...)
}

// InvalidateAuction drops everything that may embed the auction: its view,
// its bid pages, every listing page and the status counts.
func (c *CacheService) InvalidateAuction(ctx context.Context, auctionID string) error {
	if err := c.Invalidate(ctx,
		c.GenerateCacheKey(CacheKeyAuction, auctionID),
		c.GenerateCacheKey(CacheKeyAuctionCount),
	); err != nil {
		return fmt.Errorf("failed to invalidate auction cache: %w", err)
	}
	if err := c.InvalidatePattern(ctx, c.GenerateCacheKey(CacheKeyBids, auctionID)+":*"); err != nil {
		return err
	}
	return c.InvalidatePattern(ctx, c.GenerateCacheKey(CacheKeyAuctionList)+":*")
}

// GetTTL returns the configured TTL
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}
