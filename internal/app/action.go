package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/govledger/internal/config"
	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/alanyoungcy/govledger/internal/service"
)

// ActionRequest carries the command-line parameters of an action mode.
type ActionRequest struct {
	Market    string    // vote, downvote: either address of the pair
	Amount    string    // vote, downvote, lock
	Unlock    time.Time // vote, downvote, lock; zero means Days from now
	Days      int
	Asset     string // vote: name or CODE:ISSUER, defaults to the governance token
	BalanceID string // claim
	Trustline string // claim: optional asset to trust first
	Base      string // create-pair
	Counter   string // create-pair
}

// marketKeys lists the known market pairs.
type marketKeys interface {
	Keys(ctx context.Context) ([]domain.MarketKey, error)
}

var errMissingParam = errors.New("missing parameter")

func (r ActionRequest) toAction(ctx context.Context, mode string, reg *domain.AssetRegistry, markets marketKeys, now time.Time) (service.Action, error) {
	switch mode {
	case config.ModeVote, config.ModeDownvote:
		return r.voteAction(ctx, mode, reg, markets, now)
	case config.ModeLock:
		amount, err := r.amount()
		if err != nil {
			return service.Action{}, err
		}
		unlock, err := r.unlockAt(now)
		if err != nil {
			return service.Action{}, err
		}
		token := reg.GovernanceToken()
		if r.Asset != "" {
			a, err := resolveAsset(reg, r.Asset)
			if err != nil {
				return service.Action{}, err
			}
			if a != token {
				return service.Action{}, fmt.Errorf("only %s can be locked", token.Code)
			}
		}
		return service.Action{Kind: domain.ActionLock, Amount: amount, Unlock: unlock, Asset: token}, nil
	case config.ModeClaim:
		if r.BalanceID == "" {
			return service.Action{}, fmt.Errorf("balance id: %w", errMissingParam)
		}
		a := service.Action{Kind: domain.ActionClaim, BalanceID: r.BalanceID}
		if r.Trustline != "" {
			t, err := resolveAsset(reg, r.Trustline)
			if err != nil {
				return service.Action{}, fmt.Errorf("trustline: %w", err)
			}
			a.Trustline = &t
		}
		return a, nil
	case config.ModeCreatePair:
		if r.Base == "" || r.Counter == "" {
			return service.Action{}, fmt.Errorf("base and counter assets: %w", errMissingParam)
		}
		base, err := resolveAsset(reg, r.Base)
		if err != nil {
			return service.Action{}, fmt.Errorf("base: %w", err)
		}
		counter, err := resolveAsset(reg, r.Counter)
		if err != nil {
			return service.Action{}, fmt.Errorf("counter: %w", err)
		}
		if base == counter {
			return service.Action{}, errors.New("base and counter must differ")
		}
		return service.Action{Kind: domain.ActionCreatePair, Base: base, Counter: counter}, nil
	default:
		return service.Action{}, fmt.Errorf("mode %q is not an action", mode)
	}
}

// voteAction targets the up key of the pair for votes and the down key for
// downvotes, whichever address of the pair was given.
func (r ActionRequest) voteAction(ctx context.Context, mode string, reg *domain.AssetRegistry, markets marketKeys, now time.Time) (service.Action, error) {
	if r.Market == "" {
		return service.Action{}, fmt.Errorf("market: %w", errMissingParam)
	}
	amount, err := r.amount()
	if err != nil {
		return service.Action{}, err
	}
	unlock, err := r.unlockAt(now)
	if err != nil {
		return service.Action{}, err
	}
	asset := reg.GovernanceToken()
	if r.Asset != "" {
		if asset, err = resolveAsset(reg, r.Asset); err != nil {
			return service.Action{}, err
		}
	}

	keys, err := markets.Keys(ctx)
	if err != nil {
		return service.Action{}, fmt.Errorf("market directory: %w", err)
	}
	var key *domain.MarketKey
	for i := range keys {
		if keys[i].Up == r.Market || keys[i].Down == r.Market {
			key = &keys[i]
			break
		}
	}
	if key == nil {
		return service.Action{}, fmt.Errorf("market %s: %w", r.Market, domain.ErrNotFound)
	}

	a := service.Action{Kind: domain.ActionVote, Market: key.Up, Amount: amount, Unlock: unlock, Asset: asset}
	if mode == config.ModeDownvote {
		a.Kind = domain.ActionDownvote
		a.Market = key.Down
	}
	return a, nil
}

func (r ActionRequest) amount() (decimal.Decimal, error) {
	if strings.TrimSpace(r.Amount) == "" {
		return decimal.Zero, fmt.Errorf("amount: %w", errMissingParam)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", r.Amount, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", d)
	}
	return d, nil
}

func (r ActionRequest) unlockAt(now time.Time) (time.Time, error) {
	unlock := r.Unlock
	if unlock.IsZero() {
		if r.Days <= 0 {
			return time.Time{}, fmt.Errorf("unlock date or days: %w", errMissingParam)
		}
		unlock = now.AddDate(0, 0, r.Days)
	}
	if !unlock.After(now) {
		return time.Time{}, fmt.Errorf("unlock date %s is not in the future", unlock.Format(time.RFC3339))
	}
	return unlock.UTC(), nil
}
