package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalancePageSize is the page size used when listing claimable balances.
const BalancePageSize = 200

// BalanceQuery selects one page of claimable balances. Exactly one of
// Claimant and Sponsor is set.
type BalanceQuery struct {
	Claimant string
	Sponsor  string
	Cursor   string
	Limit    int
}

// BalanceSource lists claimable balances from the ledger.
type BalanceSource interface {
	ClaimableBalancesPage(ctx context.Context, q BalanceQuery) ([]BalanceRecord, error)
}

// EffectStreamer delivers ledger effect types for an account as they happen.
// It blocks until ctx is done or the stream fails.
type EffectStreamer interface {
	StreamAccountEffects(ctx context.Context, accountID string, handle func(effectType string)) error
}

// AccountLoader reads the current state of an account.
type AccountLoader interface {
	LoadAccount(ctx context.Context, accountID string) (AccountState, error)
}

// TxStatus is the ledger's view of a submitted transaction.
type TxStatus struct {
	Found      bool
	Successful bool
	Ledger     int32
}

// PriceSource returns the mid price of base quoted in counter.
type PriceSource interface {
	MidPrice(ctx context.Context, base, counter Asset) (decimal.Decimal, error)
}
