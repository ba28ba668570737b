package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// MarketKeyLister lists every known market key.
type MarketKeyLister interface {
	ListMarketKeys(ctx context.Context) ([]domain.MarketKey, error)
}

// MarketKeyFinder looks up market keys by their up or down address.
type MarketKeyFinder interface {
	FindByAddresses(ctx context.Context, addresses []string) ([]domain.MarketKey, error)
}

// MarketKeySink receives the full directory after every refresh.
type MarketKeySink interface {
	SetMarketKeys(keys []domain.MarketKey)
}

// MarketDirectory caches the market-key directory. Results are kept for a TTL
// and pushed to the accounting engine and the shared cache on refresh.
type MarketDirectory struct {
	lister MarketKeyLister
	cache  domain.MarketKeyCache // optional
	sinks  []MarketKeySink
	ttl    time.Duration

	mu          sync.RWMutex
	cached      []domain.MarketKey
	resolved    []domain.MarketKey // found by address, kept across refreshes
	lastRefresh time.Time
	logger      *slog.Logger
}

// NewMarketDirectory creates a MarketDirectory. A non-positive ttl means ten
// minutes.
func NewMarketDirectory(lister MarketKeyLister, cache domain.MarketKeyCache, ttl time.Duration, logger *slog.Logger, sinks ...MarketKeySink) *MarketDirectory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MarketDirectory{
		lister: lister,
		cache:  cache,
		sinks:  sinks,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "market_directory")),
	}
}

// Keys returns the directory, refreshing it when stale. When the upstream
// listing fails, the shared cache is used as a fallback.
func (d *MarketDirectory) Keys(ctx context.Context) ([]domain.MarketKey, error) {
	d.mu.RLock()
	if d.fresh() {
		out := append([]domain.MarketKey(nil), d.cached...)
		d.mu.RUnlock()
		return out, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	// Double-check after acquiring write lock
	if d.fresh() {
		return append([]domain.MarketKey(nil), d.cached...), nil
	}

	keys, err := d.lister.ListMarketKeys(ctx)
	if err != nil {
		if d.cache == nil {
			return nil, err
		}
		fallback, cerr := d.cache.All(ctx)
		if cerr != nil || len(fallback) == 0 {
			return nil, err
		}
		d.logger.WarnContext(ctx, "market directory unavailable, using cached keys",
			slog.Int("count", len(fallback)),
			slog.String("error", err.Error()),
		)
		keys = fallback
	} else if d.cache != nil {
		if cerr := d.cache.SetAll(ctx, keys); cerr != nil {
			d.logger.WarnContext(ctx, "cache market keys failed", slog.String("error", cerr.Error()))
		}
	}

	keys = mergeKeys(keys, d.resolved)
	d.cached = keys
	d.lastRefresh = time.Now()
	d.push(keys)
	d.logger.DebugContext(ctx, "market directory refreshed", slog.Int("count", len(keys)))
	return append([]domain.MarketKey(nil), keys...), nil
}

// Resolve looks up addresses the directory does not know yet, typically the
// unknown destinations of an account's balances, and merges any keys found.
// It returns the number of keys added. Listers that cannot search by address
// resolve nothing.
func (d *MarketDirectory) Resolve(ctx context.Context, addresses []string) (int, error) {
	finder, ok := d.lister.(MarketKeyFinder)
	if !ok || len(addresses) == 0 {
		return 0, nil
	}

	d.mu.RLock()
	known := knownAddresses(d.cached)
	d.mu.RUnlock()

	var missing []string
	for _, a := range addresses {
		if _, ok := known[a]; !ok {
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	found, err := finder.FindByAddresses(ctx, missing)
	if err != nil {
		return 0, fmt.Errorf("market directory: resolve: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	before := len(d.cached)
	d.resolved = mergeKeys(d.resolved, found)
	d.cached = mergeKeys(d.cached, found)
	added := len(d.cached) - before
	if added == 0 {
		return 0, nil
	}

	keys := append([]domain.MarketKey(nil), d.cached...)
	d.push(keys)
	if d.cache != nil {
		if cerr := d.cache.SetAll(ctx, keys); cerr != nil {
			d.logger.WarnContext(ctx, "cache market keys failed", slog.String("error", cerr.Error()))
		}
	}
	d.logger.InfoContext(ctx, "resolved market keys", slog.Int("added", added))
	return added, nil
}

// Invalidate forces the next Keys call to refetch, e.g. after a new market
// pair was created.
func (d *MarketDirectory) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastRefresh = time.Time{}
}

// Run keeps the directory warm until ctx is cancelled.
func (d *MarketDirectory) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.ttl)
	defer ticker.Stop()
	for {
		if _, err := d.Keys(ctx); err != nil && ctx.Err() == nil {
			d.logger.WarnContext(ctx, "market directory refresh failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Invalidate()
		}
	}
}

func (d *MarketDirectory) fresh() bool {
	return len(d.cached) > 0 && time.Since(d.lastRefresh) < d.ttl
}

func (d *MarketDirectory) push(keys []domain.MarketKey) {
	for _, s := range d.sinks {
		s.SetMarketKeys(keys)
	}
}

func knownAddresses(keys []domain.MarketKey) map[string]struct{} {
	known := make(map[string]struct{}, 2*len(keys))
	for _, k := range keys {
		known[k.Up] = struct{}{}
		known[k.Down] = struct{}{}
	}
	return known
}

// mergeKeys appends the keys of extra whose up address is not in base.
func mergeKeys(base, extra []domain.MarketKey) []domain.MarketKey {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base))
	for _, k := range base {
		seen[k.Up] = struct{}{}
	}
	out := base
	for _, k := range extra {
		if _, ok := seen[k.Up]; ok {
			continue
		}
		seen[k.Up] = struct{}{}
		out = append(out, k)
	}
	return out
}
