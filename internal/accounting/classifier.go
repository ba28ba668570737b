// Package accounting interprets claimable balance records as governance votes,
// locks and bribe claims, aggregates them, and computes lock boosts.
package accounting

import (
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// Classifier turns balance records into governance classifications. It holds
// only the asset registry and is safe for concurrent use.
type Classifier struct {
	assets *domain.AssetRegistry
}

// NewClassifier creates a Classifier over the given recognized assets.
func NewClassifier(assets *domain.AssetRegistry) *Classifier {
	return &Classifier{assets: assets}
}

// Classify interprets rec for accountID. The second result is false when the
// record is not a governance record for this account, including every
// ambiguous shape.
func (c *Classifier) Classify(rec domain.BalanceRecord, known domain.KnownAddresses, accountID string) (domain.Classification, bool) {
	asset, ok := c.assets.Recognize(rec.Asset)
	if !ok {
		return domain.Classification{}, false
	}

	switch len(rec.Claimants) {
	case 1:
		return classifyLock(rec, asset, accountID)
	case 2:
		return classifyShared(rec, asset, known, accountID)
	default:
		return domain.Classification{}, false
	}
}

func classifyLock(rec domain.BalanceRecord, asset domain.RecognizedAsset, accountID string) (domain.Classification, bool) {
	cl := rec.Claimants[0]
	if cl.Destination != accountID || cl.Predicate.Kind != domain.PredicateNotBefore {
		return domain.Classification{}, false
	}
	if !asset.IsGovernanceToken() {
		return domain.Classification{}, false
	}
	return domain.Classification{
		Kind:          domain.KindLock,
		Record:        rec,
		Asset:         asset,
		ClaimBackDate: cl.Predicate.NotBefore,
	}, true
}

func classifyShared(rec domain.BalanceRecord, asset domain.RecognizedAsset, known domain.KnownAddresses, accountID string) (domain.Classification, bool) {
	a, b := rec.Claimants[0], rec.Claimants[1]

	var self, other domain.Claimant
	switch {
	case a.Destination == accountID && b.Destination != accountID:
		self, other = a, b
	case b.Destination == accountID && a.Destination != accountID:
		self, other = b, a
	default:
		return domain.Classification{}, false
	}

	_, isUp := known.Up[other.Destination]
	_, isDown := known.Down[other.Destination]
	_, isBribe := known.Bribe[other.Destination]

	// Both up and down keys on one record, or an address claimed by two
	// roles, never count.
	_, selfUp := known.Up[self.Destination]
	_, selfDown := known.Down[self.Destination]
	if (isUp && selfDown) || (isDown && selfUp) {
		return domain.Classification{}, false
	}
	if countTrue(isUp, isDown, isBribe) != 1 {
		return domain.Classification{}, false
	}

	out := domain.Classification{
		Record:        rec,
		Asset:         asset,
		Counterparty:  other.Destination,
		ClaimBackDate: claimBackDate(self.Predicate),
	}
	switch {
	case isUp:
		out.Kind = domain.KindVoteFor
	case isDown:
		out.Kind = domain.KindVoteAgainst
	default:
		out.Kind = domain.KindBribeClaim
	}
	return out, true
}

func claimBackDate(p domain.Predicate) time.Time {
	if p.Kind == domain.PredicateNotBefore {
		return p.NotBefore
	}
	return time.Time{}
}

func countTrue(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
