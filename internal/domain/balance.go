package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PredicateKind enumerates the claim predicate shapes the ledger accounting
// understands.
type PredicateKind string

const (
	PredicateUnconditional PredicateKind = "unconditional"
	// PredicateNever is Not(Unconditional): the claimant can never claim.
	PredicateNever PredicateKind = "never"
	// PredicateNotBefore is Not(BeforeAbsoluteTime(t)): claimable from t on.
	PredicateNotBefore PredicateKind = "not_before"
	// PredicateOther covers any compound shape not interpreted here.
	PredicateOther PredicateKind = "other"
)

// Predicate is a claim predicate reduced to the shapes used for governance.
type Predicate struct {
	Kind      PredicateKind
	NotBefore time.Time // set only for PredicateNotBefore
}

// Unconditional returns an unconditional predicate.
func Unconditional() Predicate { return Predicate{Kind: PredicateUnconditional} }

// Never returns Not(Unconditional).
func Never() Predicate { return Predicate{Kind: PredicateNever} }

// NotBefore returns Not(BeforeAbsoluteTime(t)).
func NotBefore(t time.Time) Predicate {
	return Predicate{Kind: PredicateNotBefore, NotBefore: t.UTC()}
}

// ClaimableAt reports whether a claimant holding p could claim at now.
func (p Predicate) ClaimableAt(now time.Time) bool {
	switch p.Kind {
	case PredicateUnconditional:
		return true
	case PredicateNotBefore:
		return !now.Before(p.NotBefore)
	default:
		return false
	}
}

// Claimant is one party allowed to claim a balance.
type Claimant struct {
	Destination string
	Predicate   Predicate
}

// BalanceRecord is a claimable balance as indexed from the ledger.
type BalanceRecord struct {
	ID                 string
	Asset              Asset
	Amount             decimal.Decimal
	Sponsor            string
	Claimants          []Claimant
	LastModifiedLedger uint32
	PagingToken        string
}

// ClaimantFor returns the claimant entry for account, if present.
func (r BalanceRecord) ClaimantFor(account string) (Claimant, bool) {
	for _, c := range r.Claimants {
		if c.Destination == account {
			return c, true
		}
	}
	return Claimant{}, false
}

// BalanceSnapshot is an immutable view of every record relevant to one
// account at a point in time. Callers must not mutate Records.
type BalanceSnapshot struct {
	AccountID string
	Version   uint64
	Records   []BalanceRecord
	FetchedAt time.Time
}

// Len returns the number of records, tolerating a nil snapshot.
func (s *BalanceSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}
