package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/govledger/internal/accounting"
	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
)

// ReferencePricer returns the governance token price in the native asset.
type ReferencePricer interface {
	ReferencePrice(ctx context.Context) (decimal.Decimal, error)
}

// BoostService values an account's locks against its whole governance token
// position.
type BoostService struct {
	engine   *accounting.Engine
	calc     *accounting.BoostCalculator
	accounts domain.AccountLoader
	pricer   ReferencePricer
	token    domain.Asset
}

// NewBoostService creates a BoostService. token is the lockable asset.
func NewBoostService(
	engine *accounting.Engine,
	calc *accounting.BoostCalculator,
	accounts domain.AccountLoader,
	pricer ReferencePricer,
	token domain.Asset,
) *BoostService {
	return &BoostService{engine: engine, calc: calc, accounts: accounts, pricer: pricer, token: token}
}

// Report computes the boost for accountID at now. The portfolio value is the
// liquid token balance plus everything locked, at the reference price.
func (s *BoostService) Report(ctx context.Context, accountID string, now time.Time) (accounting.Boost, error) {
	if !s.engine.Loaded() {
		return accounting.Boost{}, fmt.Errorf("boost: %w", domain.ErrNotLoaded)
	}
	locks := s.engine.Locks(accountID)

	state, err := s.accounts.LoadAccount(ctx, accountID)
	if err != nil {
		return accounting.Boost{}, fmt.Errorf("boost: load account: %w", err)
	}
	price, err := s.pricer.ReferencePrice(ctx)
	if err != nil {
		return accounting.Boost{}, fmt.Errorf("boost: %w", err)
	}

	holdings := state.Balance(s.token).Add(s.engine.LockTotal(accountID))
	return s.calc.Compute(locks, now, accounting.ValueContext{
		ReferencePrice:      price,
		TotalPortfolioValue: holdings.Mul(price),
	}), nil
}
