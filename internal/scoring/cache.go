package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"trustline/internal/ledger"
	"trustline/internal/platform/redis"
)

const defaultCacheTTL = 60 * time.Second

// Cache keeps recent scorecards in Redis so hot subjects don't recompute on
// every request. A nil client disables caching entirely.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds a scorecard cache. Pass a nil client to disable it.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(subject ledger.Subject) string {
	return fmt.Sprintf("scorecard:%s", subject)
}

// Get returns the cached scorecard, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, subject ledger.Subject) (*Scorecard, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(subject)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var card Scorecard
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &card, nil
}

// Set stores the scorecard under the cache TTL.
func (c *Cache) Set(ctx context.Context, card *Scorecard) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(card.Subject), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached scorecard for a subject.
func (c *Cache) Invalidate(ctx context.Context, subject ledger.Subject) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(subject)).Err()
}
