package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
)

const (
	defaultPollInitialInterval = 1 * time.Second
	defaultPollMaxInterval     = 15 * time.Second
	defaultPollMultiplier      = 1.5
	defaultPollMaxAttempts     = 20
	defaultPollJitter          = 0.1
)

// TxStatusChecker looks up a submitted transaction by hash.
type TxStatusChecker interface {
	TransactionStatus(ctx context.Context, hash string) (domain.TxStatus, error)
}

// TxPoller waits for a submitted transaction to land in a ledger, polling
// with exponential backoff and jitter.
type TxPoller struct {
	checker         TxStatusChecker
	logger          *slog.Logger
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxAttempts     int
	jitter          float64
}

// PollOption configures a TxPoller.
type PollOption func(*TxPoller)

// WithPollInterval sets the first and the maximum wait between polls.
func WithPollInterval(initial, max time.Duration) PollOption {
	return func(p *TxPoller) {
		p.initialInterval = initial
		p.maxInterval = max
	}
}

// WithPollMaxAttempts sets how many lookups are made before giving up.
func WithPollMaxAttempts(n int) PollOption {
	return func(p *TxPoller) {
		p.maxAttempts = n
	}
}

// WithPollJitter sets the jitter factor (0.0 to 1.0).
func WithPollJitter(j float64) PollOption {
	return func(p *TxPoller) {
		p.jitter = j
	}
}

// NewTxPoller creates a poller with defaults and optional overrides.
func NewTxPoller(checker TxStatusChecker, logger *slog.Logger, opts ...PollOption) *TxPoller {
	p := &TxPoller{
		checker:         checker,
		logger:          logger.With(slog.String("component", "tx_poller")),
		initialInterval: defaultPollInitialInterval,
		maxInterval:     defaultPollMaxInterval,
		multiplier:      defaultPollMultiplier,
		maxAttempts:     defaultPollMaxAttempts,
		jitter:          defaultPollJitter,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait polls until hash is found in a ledger. A transaction found but not
// successful yields domain.ErrTxFailed; running out of attempts yields
// domain.ErrConfirmationTimeout. Lookup errors are logged and retried.
func (p *TxPoller) Wait(ctx context.Context, hash string) (domain.TxStatus, error) {
	interval := p.initialInterval
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		st, err := p.checker.TransactionStatus(ctx, hash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return domain.TxStatus{}, ctx.Err()
			}
			p.logger.Warn("transaction lookup failed",
				slog.String("hash", hash),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		case st.Found && st.Successful:
			return st, nil
		case st.Found:
			return st, fmt.Errorf("tx poller: %s: %w", hash, domain.ErrTxFailed)
		}

		if attempt == p.maxAttempts {
			break
		}
		sleep := time.Duration(float64(interval) + (rand.Float64()*2-1)*p.jitter*float64(interval))
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return domain.TxStatus{}, ctx.Err()
		case <-time.After(sleep):
		}
		interval = time.Duration(float64(interval) * p.multiplier)
		if interval > p.maxInterval {
			interval = p.maxInterval
		}
	}
	return domain.TxStatus{}, fmt.Errorf("tx poller: %s after %d attempts: %w", hash, p.maxAttempts, domain.ErrConfirmationTimeout)
}
