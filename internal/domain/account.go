package domain

import (
	"github.com/shopspring/decimal"
)

// Signer is one key allowed to sign for an account.
type Signer struct {
	Key    string
	Weight int32
}

// SignerThresholdProfile is the signing configuration of an account as read
// from the ledger.
type SignerThresholdProfile struct {
	AccountID string
	Low       uint8
	Med       uint8
	High      uint8
	Signers   []Signer
}

// MasterWeight returns the weight of the signer whose key is the account's
// own address. A missing entry counts as weight 0.
func (p SignerThresholdProfile) MasterWeight() int32 {
	for _, s := range p.Signers {
		if s.Key == p.AccountID {
			return s.Weight
		}
	}
	return 0
}

// AccountState is the subset of an account needed to build and value
// transactions.
type AccountState struct {
	AccountID string
	Sequence  int64
	Profile   SignerThresholdProfile
	Balances  map[Asset]decimal.Decimal
}

// Balance returns the account's holding of a, or zero.
func (s AccountState) Balance(a Asset) decimal.Decimal {
	if b, ok := s.Balances[a]; ok {
		return b
	}
	return decimal.Zero
}

// HasTrustline reports whether the account can hold a.
func (s AccountState) HasTrustline(a Asset) bool {
	if a.IsNative() {
		return true
	}
	_, ok := s.Balances[a]
	return ok
}
