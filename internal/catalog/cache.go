package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/championcart/backend/internal/common"
)

const cachePrefix = "catalog:"

// Cache stores catalog reads as JSON in Redis. Every key written for a city is
// also added to that city's index set so an import can drop them in one pass.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache. A nil client or non-positive TTL disables it.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get decodes the entry at key into dst and reports whether it was present.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// Put stores v under key and records key in the city index. The index outlives
// its members by one TTL so stale members are harmless.
func (c *Cache) Put(ctx context.Context, city, key string, v any) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	index := indexKey(city)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, raw, c.ttl)
		pipe.SAdd(ctx, index, key)
		pipe.Expire(ctx, index, 2*c.ttl)
		return nil
	})
	return err
}

// InvalidateCity drops every cached entry of a city together with its index.
func (c *Cache) InvalidateCity(ctx context.Context, city string) error {
	if c == nil || c.client == nil {
		return nil
	}
	index := indexKey(city)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return err
	}
	return c.client.Del(ctx, append(keys, index)...).Err()
}

func cityPrefix(city string) string {
	return cachePrefix + strings.ToLower(strings.TrimSpace(city)) + ":"
}

func indexKey(city string) string {
	return cityPrefix(city) + "keys"
}

func storesCacheKey(city string) string {
	return cityPrefix(city) + "stores"
}

// pricesCacheKey is independent of the order items were requested in. A nil
// item list means the whole city.
func pricesCacheKey(city string, items []string) string {
	if items == nil {
		return cityPrefix(city) + "prices:all"
	}
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return cityPrefix(city) + "prices:" + common.Digest(sorted...)
}
