package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

const marketKeyTTL = 30 * time.Minute

// MarketKeyCache implements domain.MarketKeyCache.
//
// Key schema:
//
//	govledger:marketkeys           - string holding the JSON directory
//	govledger:marketkey:{address}  - JSON of the key owning address (up or down)
type MarketKeyCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketKeyCache creates a MarketKeyCache backed by the given Client.
func NewMarketKeyCache(c *Client) *MarketKeyCache {
	return &MarketKeyCache{rdb: c.Underlying(), ttl: marketKeyTTL}
}

func marketKeysKey() string               { return keyPrefix + "marketkeys" }
func marketAddressKey(addr string) string { return keyPrefix + "marketkey:" + addr }

// SetAll replaces the cached directory and rebuilds the address index.
func (mc *MarketKeyCache) SetAll(ctx context.Context, keys []domain.MarketKey) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("redis: marshal market keys: %w", err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, marketKeysKey(), data, mc.ttl)
	for _, k := range keys {
		one, err := json.Marshal(k)
		if err != nil {
			return fmt.Errorf("redis: marshal market key %s: %w", k.Up, err)
		}
		for _, addr := range []string{k.Up, k.Down} {
			if addr == "" {
				continue
			}
			pipe.Set(ctx, marketAddressKey(addr), one, mc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market keys: %w", err)
	}
	return nil
}

// All returns the cached directory, or domain.ErrNotFound when absent.
func (mc *MarketKeyCache) All(ctx context.Context) ([]domain.MarketKey, error) {
	data, err := mc.rdb.Get(ctx, marketKeysKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get market keys: %w", err)
	}
	var keys []domain.MarketKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("redis: unmarshal market keys: %w", err)
	}
	return keys, nil
}

// GetByAddress returns the market key whose up or down address is addr.
func (mc *MarketKeyCache) GetByAddress(ctx context.Context, addr string) (domain.MarketKey, error) {
	data, err := mc.rdb.Get(ctx, marketAddressKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketKey{}, domain.ErrNotFound
		}
		return domain.MarketKey{}, fmt.Errorf("redis: get market key %s: %w", addr, err)
	}
	var k domain.MarketKey
	if err := json.Unmarshal(data, &k); err != nil {
		return domain.MarketKey{}, fmt.Errorf("redis: unmarshal market key %s: %w", addr, err)
	}
	return k, nil
}

// Compile-time interface check.
var _ domain.MarketKeyCache = (*MarketKeyCache)(nil)
