package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceService keeps the governance token's reference price in the price
// cache, quoted in the native asset.
type PriceService struct {
	source  domain.PriceSource
	cache   domain.PriceCache
	base    domain.Asset
	counter domain.Asset
	maxAge  time.Duration
	logger  *slog.Logger
}

// NewPriceService creates a PriceService pricing base in counter. Cached
// prices older than maxAge are refetched on read.
func NewPriceService(
	source domain.PriceSource,
	cache domain.PriceCache,
	base, counter domain.Asset,
	maxAge time.Duration,
	logger *slog.Logger,
) *PriceService {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &PriceService{
		source:  source,
		cache:   cache,
		base:    base,
		counter: counter,
		maxAge:  maxAge,
		logger:  logger.With(slog.String("component", "price_service")),
	}
}

// Refresh fetches the current mid price and stores it.
func (s *PriceService) Refresh(ctx context.Context) (decimal.Decimal, error) {
	price, err := s.source.MidPrice(ctx, s.base, s.counter)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price_service: mid price %s/%s: %w", s.base, s.counter, err)
	}
	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, s.base.String(), price, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "price_service: cache price failed",
				slog.String("asset", s.base.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.DebugContext(ctx, "reference price updated", slog.String("price", price.String()))
	return price, nil
}

// ReferencePrice returns the cached price when fresh and refetches otherwise.
func (s *PriceService) ReferencePrice(ctx context.Context) (decimal.Decimal, error) {
	if s.cache != nil {
		price, ts, err := s.cache.GetPrice(ctx, s.base.String())
		switch {
		case err == nil && time.Since(ts) <= s.maxAge:
			return price, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "price_service: read cached price failed", slog.String("error", err.Error()))
		}
	}
	return s.Refresh(ctx)
}

// Run refreshes the price every interval until ctx is cancelled. Individual
// failures are logged and do not stop the loop.
func (s *PriceService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "initial price refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "price refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
