package accounting

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
)

// SnapshotSource supplies the latest balance snapshot. A nil snapshot means
// nothing has been loaded yet.
type SnapshotSource interface {
	Snapshot() *domain.BalanceSnapshot
}

// Engine derives votes, locks and per-market totals from the current
// snapshot. Nothing is cached: every call classifies the snapshot it reads in
// one pass, so results always match the latest published state.
type Engine struct {
	classifier *Classifier
	source     SnapshotSource
	known      atomic.Pointer[domain.KnownAddresses]
	bribe      []string
}

// NewEngine creates an Engine reading from source. bribeCollectors are the
// addresses that mark a shared balance as a bribe.
func NewEngine(classifier *Classifier, source SnapshotSource, bribeCollectors []string) *Engine {
	e := &Engine{
		classifier: classifier,
		source:     source,
		bribe:      bribeCollectors,
	}
	empty := domain.NewKnownAddresses(nil, bribeCollectors)
	e.known.Store(&empty)
	return e
}

// SetMarketKeys replaces the set of known market addresses.
func (e *Engine) SetMarketKeys(keys []domain.MarketKey) {
	k := domain.NewKnownAddresses(keys, e.bribe)
	e.known.Store(&k)
}

// Loaded reports whether a snapshot is available.
func (e *Engine) Loaded() bool {
	return e.source.Snapshot() != nil
}

func (e *Engine) classify(accountID string) ([]domain.Classification, bool) {
	return e.classifySnapshot(e.source.Snapshot(), accountID)
}

func (e *Engine) classifySnapshot(snap *domain.BalanceSnapshot, accountID string) ([]domain.Classification, bool) {
	if snap == nil {
		return nil, false
	}
	known := *e.known.Load()
	out := make([]domain.Classification, 0, len(snap.Records))
	for _, rec := range snap.Records {
		if c, ok := e.classifier.Classify(rec, known, accountID); ok {
			out = append(out, c)
		}
	}
	return out, true
}

// MarketVoteValue sums the account's votes on marketAddress held in asset.
// The boolean is false before the first snapshot is loaded, which callers
// must treat differently from a zero total.
func (e *Engine) MarketVoteValue(marketAddress, accountID string, asset domain.Asset) (decimal.Decimal, bool) {
	cls, ok := e.classify(accountID)
	if !ok {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, c := range cls {
		if !isVote(c) || c.Counterparty != marketAddress || c.Record.Asset != asset {
			continue
		}
		total = total.Add(c.Record.Amount)
	}
	return total, true
}

// VotesForPair returns the account's votes on either side of pair, most
// recent first.
func (e *Engine) VotesForPair(pair domain.MarketKey, accountID string) []domain.Vote {
	cls, _ := e.classify(accountID)
	var votes []domain.Vote
	for _, c := range cls {
		if !isVote(c) {
			continue
		}
		if c.Counterparty != pair.Up && c.Counterparty != pair.Down {
			continue
		}
		votes = append(votes, toVote(c))
	}
	sortVotes(votes)
	return votes
}

// Votes returns every vote the account holds, most recent first.
func (e *Engine) Votes(accountID string) []domain.Vote {
	cls, _ := e.classify(accountID)
	var votes []domain.Vote
	for _, c := range cls {
		if isVote(c) {
			votes = append(votes, toVote(c))
		}
	}
	sortVotes(votes)
	return votes
}

// ClaimableVotes returns votes whose claim-back date is at or before now.
func (e *Engine) ClaimableVotes(accountID string, now time.Time) []domain.Vote {
	var out []domain.Vote
	for _, v := range e.Votes(accountID) {
		if !now.Before(v.ClaimBackDate) {
			out = append(out, v)
		}
	}
	return out
}

// KeysResemblingMarketAddresses lists the distinct other-party addresses on
// recognized-asset balances shared with the account. Used to discover which
// markets the account has voted on before the market directory is loaded.
func (e *Engine) KeysResemblingMarketAddresses(accountID string) []string {
	snap := e.source.Snapshot()
	if snap == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range snap.Records {
		if _, ok := e.classifier.assets.Recognize(rec.Asset); !ok {
			continue
		}
		if _, ok := rec.ClaimantFor(accountID); !ok {
			continue
		}
		for _, cl := range rec.Claimants {
			if cl.Destination == accountID {
				continue
			}
			if _, dup := seen[cl.Destination]; dup {
				continue
			}
			seen[cl.Destination] = struct{}{}
			out = append(out, cl.Destination)
		}
	}
	return out
}

// Locks returns the account's governance token locks ordered by unlock time.
func (e *Engine) Locks(accountID string) []domain.Lock {
	cls, _ := e.classify(accountID)
	var locks []domain.Lock
	for _, c := range cls {
		if c.Kind != domain.KindLock {
			continue
		}
		locks = append(locks, domain.Lock{
			AccountID:      accountID,
			Amount:         c.Record.Amount,
			LockUntil:      c.ClaimBackDate,
			SourceRecordID: c.Record.ID,
		})
	}
	sort.SliceStable(locks, func(i, j int) bool {
		return locks[i].LockUntil.Before(locks[j].LockUntil)
	})
	return locks
}

// LockTotal sums the account's locked governance token.
func (e *Engine) LockTotal(accountID string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Locks(accountID) {
		total = total.Add(l.Amount)
	}
	return total
}

// BribeClaims returns balances the account shares with bribe collectors.
func (e *Engine) BribeClaims(accountID string) []domain.BribeClaim {
	cls, _ := e.classify(accountID)
	var out []domain.BribeClaim
	for _, c := range cls {
		if c.Kind != domain.KindBribeClaim {
			continue
		}
		out = append(out, domain.BribeClaim{
			CollectorAddress: c.Counterparty,
			Asset:            c.Asset,
			Amount:           c.Record.Amount,
			ClaimBackDate:    c.ClaimBackDate,
			SourceRecordID:   c.Record.ID,
		})
	}
	return out
}

// MarketSummaries aggregates the account's votes per market address, sorted
// by descending total.
func (e *Engine) MarketSummaries(accountID string) []domain.MarketVoteSummary {
	return e.SnapshotSummaries(e.source.Snapshot(), accountID)
}

// SnapshotSummaries is MarketSummaries over snap instead of the source's
// current snapshot.
func (e *Engine) SnapshotSummaries(snap *domain.BalanceSnapshot, accountID string) []domain.MarketVoteSummary {
	cls, _ := e.classifySnapshot(snap, accountID)
	byMarket := make(map[string]*domain.MarketVoteSummary)
	var order []string
	for _, c := range cls {
		if !isVote(c) {
			continue
		}
		s, ok := byMarket[c.Counterparty]
		if !ok {
			s = &domain.MarketVoteSummary{
				AccountID:     accountID,
				MarketAddress: c.Counterparty,
				Direction:     direction(c.Kind),
				Total:         decimal.Zero,
				ByAsset:       make(map[domain.RecognizedAsset]decimal.Decimal),
			}
			byMarket[c.Counterparty] = s
			order = append(order, c.Counterparty)
		}
		s.Total = s.Total.Add(c.Record.Amount)
		s.ByAsset[c.Asset] = s.ByAsset[c.Asset].Add(c.Record.Amount)
		if c.ClaimBackDate.After(s.LatestClaimBack) {
			s.LatestClaimBack = c.ClaimBackDate
		}
		s.Votes++
	}

	out := make([]domain.MarketVoteSummary, 0, len(order))
	for _, addr := range order {
		out = append(out, *byMarket[addr])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

func isVote(c domain.Classification) bool {
	return c.Kind == domain.KindVoteFor || c.Kind == domain.KindVoteAgainst
}

func direction(k domain.ClassificationKind) domain.Direction {
	if k == domain.KindVoteAgainst {
		return domain.DirectionDown
	}
	return domain.DirectionUp
}

func toVote(c domain.Classification) domain.Vote {
	return domain.Vote{
		MarketAddress:  c.Counterparty,
		Direction:      direction(c.Kind),
		Asset:          c.Asset,
		Amount:         c.Record.Amount,
		ClaimBackDate:  c.ClaimBackDate,
		SourceRecordID: c.Record.ID,
		Ledger:         c.Record.LastModifiedLedger,
	}
}

func sortVotes(votes []domain.Vote) {
	sort.SliceStable(votes, func(i, j int) bool {
		return votes[i].Ledger > votes[j].Ledger
	})
}
