// Package txbuild assembles governance operations and transactions for the
// Stellar ledger and checks them against account signing thresholds.
package txbuild

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// amountPrecision is the number of fractional digits the ledger stores.
const amountPrecision = 7

// DefaultMarketKeyFunding is the native balance sent to each new market key:
// base reserve plus two trustlines with headroom for fees.
var DefaultMarketKeyFunding = decimal.RequireFromString("3")

// Assembler builds the operation lists for governance actions. It performs no
// I/O; the caller supplies a freshly loaded account when turning the
// operations into a transaction.
type Assembler struct {
	marketKeyFunding decimal.Decimal
}

// NewAssembler creates an Assembler. A zero funding amount selects
// DefaultMarketKeyFunding.
func NewAssembler(marketKeyFunding decimal.Decimal) *Assembler {
	if !marketKeyFunding.IsPositive() {
		marketKeyFunding = DefaultMarketKeyFunding
	}
	return &Assembler{marketKeyFunding: marketKeyFunding}
}

// Vote builds a single claimable balance shared between the market address,
// which can never claim it, and the voter, who can reclaim it from unlock on.
func (a *Assembler) Vote(accountID, marketAddress string, amount decimal.Decimal, unlock time.Time, asset domain.Asset) ([]txnbuild.Operation, error) {
	if err := validateAddresses(accountID, marketAddress); err != nil {
		return nil, fmt.Errorf("txbuild: vote: %w", err)
	}
	amt, err := formatAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("txbuild: vote: %w", err)
	}

	return []txnbuild.Operation{
		&txnbuild.CreateClaimableBalance{
			Destinations: []txnbuild.Claimant{
				txnbuild.NewClaimant(marketAddress, neverPredicate()),
				txnbuild.NewClaimant(accountID, notBeforePredicate(unlock)),
			},
			Asset:  toTxnAsset(asset),
			Amount: amt,
		},
	}, nil
}

// Lock builds a claimable balance only the owner can claim, from unlock on.
func (a *Assembler) Lock(accountID string, amount decimal.Decimal, unlock time.Time, asset domain.Asset) ([]txnbuild.Operation, error) {
	if err := validateAddresses(accountID); err != nil {
		return nil, fmt.Errorf("txbuild: lock: %w", err)
	}
	amt, err := formatAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("txbuild: lock: %w", err)
	}

	return []txnbuild.Operation{
		&txnbuild.CreateClaimableBalance{
			Destinations: []txnbuild.Claimant{
				txnbuild.NewClaimant(accountID, notBeforePredicate(unlock)),
			},
			Asset:  toTxnAsset(asset),
			Amount: amt,
		},
	}, nil
}

// Claim builds a claim of balanceID. When trustline is non-nil a change-trust
// for that asset is prepended so the claimed funds can be received.
func (a *Assembler) Claim(balanceID string, trustline *domain.Asset) ([]txnbuild.Operation, error) {
	if balanceID == "" {
		return nil, fmt.Errorf("txbuild: claim: empty balance id")
	}

	var ops []txnbuild.Operation
	if trustline != nil && !trustline.IsNative() {
		ct, err := changeTrust(*trustline, "")
		if err != nil {
			return nil, fmt.Errorf("txbuild: claim: %w", err)
		}
		ops = append(ops, ct)
	}
	ops = append(ops, &txnbuild.ClaimClaimableBalance{BalanceID: balanceID})
	return ops, nil
}

// Payment builds a plain payment, used to fund bribes.
func (a *Assembler) Payment(destination string, amount decimal.Decimal, asset domain.Asset) ([]txnbuild.Operation, error) {
	if err := validateAddresses(destination); err != nil {
		return nil, fmt.Errorf("txbuild: payment: %w", err)
	}
	amt, err := formatAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("txbuild: payment: %w", err)
	}
	return []txnbuild.Operation{
		&txnbuild.Payment{Destination: destination, Amount: amt, Asset: toTxnAsset(asset)},
	}, nil
}

// SubPlan is one half of a market pair: a new key and the operations that
// create and configure its account.
type SubPlan struct {
	Keypair    *keypair.Full
	Operations []txnbuild.Operation
}

// MarketPairPlan holds the independent up and down sub-plans for a new
// market. Each is submitted as its own transaction.
type MarketPairPlan struct {
	Up   SubPlan
	Down SubPlan
}

// Key returns the market key the plan will create.
func (p MarketPairPlan) Key(base, counter domain.Asset) domain.MarketKey {
	return domain.MarketKey{
		Up:     p.Up.Keypair.Address(),
		Down:   p.Down.Keypair.Address(),
		Asset1: base.String(),
		Asset2: counter.String(),
	}
}

// MarketPair creates two fresh random keys for the market's up and down side
// and builds, for each, the operations that fund the account, trust the pair's
// assets and disable the key's own signing power.
func (a *Assembler) MarketPair(accountID string, base, counter domain.Asset) (MarketPairPlan, error) {
	if err := validateAddresses(accountID); err != nil {
		return MarketPairPlan{}, fmt.Errorf("txbuild: market pair: %w", err)
	}
	if base == counter {
		return MarketPairPlan{}, fmt.Errorf("txbuild: market pair: identical assets %s", base)
	}

	up, err := a.marketKeyPlan(accountID, base, counter)
	if err != nil {
		return MarketPairPlan{}, fmt.Errorf("txbuild: market pair up: %w", err)
	}
	down, err := a.marketKeyPlan(accountID, base, counter)
	if err != nil {
		return MarketPairPlan{}, fmt.Errorf("txbuild: market pair down: %w", err)
	}
	return MarketPairPlan{Up: up, Down: down}, nil
}

func (a *Assembler) marketKeyPlan(funder string, base, counter domain.Asset) (SubPlan, error) {
	kp, err := keypair.Random()
	if err != nil {
		return SubPlan{}, fmt.Errorf("generate key: %w", err)
	}
	addr := kp.Address()

	ops := []txnbuild.Operation{
		&txnbuild.CreateAccount{
			Destination:   addr,
			Amount:        a.marketKeyFunding.StringFixed(amountPrecision),
			SourceAccount: funder,
		},
	}
	for _, asset := range []domain.Asset{base, counter} {
		if asset.IsNative() {
			continue
		}
		ct, err := changeTrust(asset, addr)
		if err != nil {
			return SubPlan{}, err
		}
		ops = append(ops, ct)
	}
	ops = append(ops, &txnbuild.SetOptions{
		MasterWeight:    txnbuild.NewThreshold(0),
		LowThreshold:    txnbuild.NewThreshold(1),
		MediumThreshold: txnbuild.NewThreshold(1),
		HighThreshold:   txnbuild.NewThreshold(1),
		SourceAccount:   addr,
	})

	return SubPlan{Keypair: kp, Operations: ops}, nil
}

func changeTrust(asset domain.Asset, source string) (*txnbuild.ChangeTrust, error) {
	line, err := txnbuild.CreditAsset{Code: asset.Code, Issuer: asset.Issuer}.ToChangeTrustAsset()
	if err != nil {
		return nil, fmt.Errorf("change trust %s: %w", asset, err)
	}
	return &txnbuild.ChangeTrust{Line: line, SourceAccount: source}, nil
}

func neverPredicate() *xdr.ClaimPredicate {
	p := txnbuild.NotPredicate(txnbuild.UnconditionalPredicate)
	return &p
}

func notBeforePredicate(t time.Time) *xdr.ClaimPredicate {
	p := txnbuild.NotPredicate(txnbuild.BeforeAbsoluteTimePredicate(t.Unix()))
	return &p
}

func toTxnAsset(a domain.Asset) txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}

func formatAmount(d decimal.Decimal) (string, error) {
	if !d.IsPositive() {
		return "", fmt.Errorf("%w: %s must be positive", domain.ErrInvalidAmount, d)
	}
	if !d.Truncate(amountPrecision).Equal(d) {
		return "", fmt.Errorf("%w: %s has more than %d decimals", domain.ErrInvalidAmount, d, amountPrecision)
	}
	return d.StringFixed(amountPrecision), nil
}

func validateAddresses(addrs ...string) error {
	for _, a := range addrs {
		if !strkey.IsValidEd25519PublicKey(a) {
			return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, a)
		}
	}
	return nil
}
