// Package feed keeps long-lived ledger streams running across disconnects.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// Effect types that change an account's claimable balances.
const (
	EffectClaimableBalanceCreated         = "claimable_balance_created"
	EffectClaimableBalanceClaimantCreated = "claimable_balance_claimant_created"
	EffectClaimableBalanceClaimed         = "claimable_balance_claimed"
)

// IsBalanceEffect reports whether effectType should trigger a balance
// refresh.
func IsBalanceEffect(effectType string) bool {
	switch effectType {
	case EffectClaimableBalanceCreated, EffectClaimableBalanceClaimantCreated, EffectClaimableBalanceClaimed:
		return true
	default:
		return false
	}
}

// EffectsFeed streams an account's effects and calls onEffect for every
// claimable balance effect. It reconnects with backoff when the stream drops.
type EffectsFeed struct {
	streamer   domain.EffectStreamer
	accountID  string
	onEffect   func(effectType string)
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	closeOnce  sync.Once
	done       chan struct{}
}

// NewEffectsFeed creates a feed for accountID.
func NewEffectsFeed(streamer domain.EffectStreamer, accountID string, onEffect func(effectType string), logger *slog.Logger) *EffectsFeed {
	return &EffectsFeed{
		streamer:   streamer,
		accountID:  accountID,
		onEffect:   onEffect,
		logger:     logger.With(slog.String("component", "effects_feed"), slog.String("account", accountID)),
		minBackoff: 2 * time.Second,
		maxBackoff: time.Minute,
		done:       make(chan struct{}),
	}
}

// Run streams until ctx is cancelled or Close is called.
func (f *EffectsFeed) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := f.minBackoff
	for {
		if ctx.Err() != nil {
			return f.exitErr(ctx)
		}

		started := time.Now()
		err := f.streamer.StreamAccountEffects(ctx, f.accountID, func(effectType string) {
			if IsBalanceEffect(effectType) {
				f.onEffect(effectType)
			}
		})
		if ctx.Err() != nil {
			return f.exitErr(ctx)
		}

		// A stream that stayed up for a while earns a fresh backoff.
		if time.Since(started) > f.maxBackoff {
			backoff = f.minBackoff
		}
		attrs := []any{slog.Duration("retry_in", backoff)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		f.logger.Warn("effects stream ended, reconnecting", attrs...)

		select {
		case <-ctx.Done():
			return f.exitErr(ctx)
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

func (f *EffectsFeed) exitErr(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	default:
		return ctx.Err()
	}
}

// Close stops the feed.
func (f *EffectsFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
