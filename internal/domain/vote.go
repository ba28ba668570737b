package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketKey is the pair of ledger addresses that stand for a market's upvote
// and downvote side.
type MarketKey struct {
	Up     string `json:"up"`
	Down   string `json:"down"`
	Asset1 string `json:"asset1,omitempty"` // optional descriptors reported by the directory
	Asset2 string `json:"asset2,omitempty"`
}

// Direction of a vote.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ClassificationKind is the outcome of classifying a balance record.
type ClassificationKind string

const (
	KindVoteFor     ClassificationKind = "vote_for"
	KindVoteAgainst ClassificationKind = "vote_against"
	KindLock        ClassificationKind = "lock"
	KindBribeClaim  ClassificationKind = "bribe_claim"
)

// Classification is a record interpreted against the known market and bribe
// addresses for one account.
type Classification struct {
	Kind          ClassificationKind
	Record        BalanceRecord
	Asset         RecognizedAsset
	Counterparty  string    // market or bribe address; empty for locks
	ClaimBackDate time.Time // zero when immediately claimable
}

// Vote is a governance vote held in a claimable balance.
type Vote struct {
	MarketAddress  string
	Direction      Direction
	Asset          RecognizedAsset
	Amount         decimal.Decimal
	ClaimBackDate  time.Time
	SourceRecordID string
	Ledger         uint32
}

// IsDownVote reports whether the vote is against the market.
func (v Vote) IsDownVote() bool {
	return v.Direction == DirectionDown
}

// Lock is governance token locked to the owner until LockUntil.
type Lock struct {
	AccountID      string
	Amount         decimal.Decimal
	LockUntil      time.Time
	SourceRecordID string
}

// BribeClaim is a balance shared between the account and a bribe collector.
type BribeClaim struct {
	CollectorAddress string
	Asset            RecognizedAsset
	Amount           decimal.Decimal
	ClaimBackDate    time.Time
	SourceRecordID   string
}

// KnownAddresses is the set of addresses classification matches against.
type KnownAddresses struct {
	Up    map[string]struct{}
	Down  map[string]struct{}
	Bribe map[string]struct{}
}

// NewKnownAddresses indexes the given market keys and bribe collectors.
func NewKnownAddresses(keys []MarketKey, bribe []string) KnownAddresses {
	k := KnownAddresses{
		Up:    make(map[string]struct{}, len(keys)),
		Down:  make(map[string]struct{}, len(keys)),
		Bribe: make(map[string]struct{}, len(bribe)),
	}
	for _, mk := range keys {
		if mk.Up != "" {
			k.Up[mk.Up] = struct{}{}
		}
		if mk.Down != "" {
			k.Down[mk.Down] = struct{}{}
		}
	}
	for _, b := range bribe {
		k.Bribe[b] = struct{}{}
	}
	return k
}

// MarketVoteSummary aggregates one account's votes on one market.
type MarketVoteSummary struct {
	AccountID       string
	MarketAddress   string
	Direction       Direction
	Total           decimal.Decimal
	ByAsset         map[RecognizedAsset]decimal.Decimal
	LatestClaimBack time.Time
	Votes           int
}
