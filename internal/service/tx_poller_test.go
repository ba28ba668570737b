package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedChecker struct {
	calls   atomic.Int32
	results []domain.TxStatus
	errs    []error
}

func (s *scriptedChecker) TransactionStatus(_ context.Context, _ string) (domain.TxStatus, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return domain.TxStatus{}, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return domain.TxStatus{}, nil
}

func fastPoller(c TxStatusChecker, attempts int) *TxPoller {
	return NewTxPoller(c, discardLogger(),
		WithPollInterval(time.Millisecond, 2*time.Millisecond),
		WithPollMaxAttempts(attempts),
		WithPollJitter(0),
	)
}

func TestTxPoller_Wait(t *testing.T) {
	t.Run("confirmed after not found", func(t *testing.T) {
		c := &scriptedChecker{results: []domain.TxStatus{{}, {}, {Found: true, Successful: true, Ledger: 9}}}
		st, err := fastPoller(c, 5).Wait(context.Background(), "h")
		require.NoError(t, err)
		assert.Equal(t, int32(9), st.Ledger)
		assert.Equal(t, int32(3), c.calls.Load())
	})

	t.Run("lookup errors are retried", func(t *testing.T) {
		c := &scriptedChecker{
			errs:    []error{errors.New("timeout"), nil},
			results: []domain.TxStatus{{}, {Found: true, Successful: true}},
		}
		_, err := fastPoller(c, 5).Wait(context.Background(), "h")
		require.NoError(t, err)
	})

	t.Run("failed transaction", func(t *testing.T) {
		c := &scriptedChecker{results: []domain.TxStatus{{Found: true}}}
		_, err := fastPoller(c, 5).Wait(context.Background(), "h")
		assert.ErrorIs(t, err, domain.ErrTxFailed)
	})

	t.Run("gives up", func(t *testing.T) {
		c := &scriptedChecker{}
		_, err := fastPoller(c, 3).Wait(context.Background(), "h")
		assert.ErrorIs(t, err, domain.ErrConfirmationTimeout)
		assert.Equal(t, int32(3), c.calls.Load())
	})

	t.Run("cancellation", func(t *testing.T) {
		c := &scriptedChecker{}
		p := NewTxPoller(c, discardLogger(), WithPollInterval(time.Hour, time.Hour), WithPollMaxAttempts(10))
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := p.Wait(ctx, "h")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), c.calls.Load())
	})
}
