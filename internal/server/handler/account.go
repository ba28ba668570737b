package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/govledger/internal/accounting"
	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
)

// BoostReporter computes an account's current lock boost.
type BoostReporter interface {
	Report(ctx context.Context, accountID string, now time.Time) (accounting.Boost, error)
}

// AccountHandler serves the on-chain view of the watched account, derived
// from the latest balance snapshot.
type AccountHandler struct {
	engine    *accounting.Engine
	snapshots accounting.SnapshotSource
	boost     BoostReporter // optional
	now       func() time.Time
	logger    *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(engine *accounting.Engine, snapshots accounting.SnapshotSource, boost BoostReporter, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		engine:    engine,
		snapshots: snapshots,
		boost:     boost,
		now:       time.Now,
		logger:    logger.With(slog.String("handler", "account")),
	}
}

type summaryResponse struct {
	Market          string                     `json:"market"`
	Direction       domain.Direction           `json:"direction"`
	Total           decimal.Decimal            `json:"total"`
	ByAsset         map[string]decimal.Decimal `json:"by_asset"`
	LatestClaimBack *time.Time                 `json:"latest_claim_back,omitempty"`
	Votes           int                        `json:"votes"`
}

type voteResponse struct {
	Market    string           `json:"market"`
	Direction domain.Direction `json:"direction"`
	Asset     string           `json:"asset"`
	Amount    decimal.Decimal  `json:"amount"`
	ClaimBack *time.Time       `json:"claim_back,omitempty"`
	Claimable bool             `json:"claimable"`
	BalanceID string           `json:"balance_id"`
	LedgerSeq uint32           `json:"ledger"`
}

type lockResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	LockUntil time.Time       `json:"lock_until"`
	Claimable bool            `json:"claimable"`
	BalanceID string          `json:"balance_id"`
}

// snapshotFor writes an error and returns nil unless the snapshot for id is
// loaded.
func (h *AccountHandler) snapshotFor(w http.ResponseWriter, r *http.Request) (*domain.BalanceSnapshot, string) {
	id, ok := accountParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return nil, ""
	}
	snap := h.snapshots.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrNotLoaded.Error())
		return nil, ""
	}
	if snap.AccountID != id {
		writeError(w, http.StatusNotFound, "account not watched")
		return nil, ""
	}
	return snap, id
}

// GetVotes lists per-market totals and individual votes.
// GET /api/accounts/{id}/votes
func (h *AccountHandler) GetVotes(w http.ResponseWriter, r *http.Request) {
	snap, id := h.snapshotFor(w, r)
	if snap == nil {
		return
	}
	now := h.now()

	sums := h.engine.MarketSummaries(id)
	markets := make([]summaryResponse, 0, len(sums))
	for _, s := range sums {
		byAsset := make(map[string]decimal.Decimal, len(s.ByAsset))
		for a, v := range s.ByAsset {
			byAsset[string(a)] = v
		}
		markets = append(markets, summaryResponse{
			Market:          s.MarketAddress,
			Direction:       s.Direction,
			Total:           s.Total,
			ByAsset:         byAsset,
			LatestClaimBack: optionalTime(s.LatestClaimBack),
			Votes:           s.Votes,
		})
	}

	all := h.engine.Votes(id)
	votes := make([]voteResponse, 0, len(all))
	for _, v := range all {
		votes = append(votes, voteResponse{
			Market:    v.MarketAddress,
			Direction: v.Direction,
			Asset:     string(v.Asset),
			Amount:    v.Amount,
			ClaimBack: optionalTime(v.ClaimBackDate),
			Claimable: !now.Before(v.ClaimBackDate),
			BalanceID: v.SourceRecordID,
			LedgerSeq: v.Ledger,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":    id,
		"version":    snap.Version,
		"fetched_at": snap.FetchedAt,
		"markets":    markets,
		"votes":      votes,
	})
}

// GetLocks lists the account's locks and their total.
// GET /api/accounts/{id}/locks
func (h *AccountHandler) GetLocks(w http.ResponseWriter, r *http.Request) {
	snap, id := h.snapshotFor(w, r)
	if snap == nil {
		return
	}
	now := h.now()
	all := h.engine.Locks(id)
	locks := make([]lockResponse, 0, len(all))
	for _, l := range all {
		locks = append(locks, lockResponse{
			Amount:    l.Amount,
			LockUntil: l.LockUntil,
			Claimable: !l.LockUntil.After(now),
			BalanceID: l.SourceRecordID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": id,
		"version": snap.Version,
		"total":   h.engine.LockTotal(id),
		"locks":   locks,
	})
}

// GetBoost reports the lock boost.
// GET /api/accounts/{id}/boost
func (h *AccountHandler) GetBoost(w http.ResponseWriter, r *http.Request) {
	if h.boost == nil {
		writeError(w, http.StatusNotImplemented, "boost reporting disabled")
		return
	}
	snap, id := h.snapshotFor(w, r)
	if snap == nil {
		return
	}
	b, err := h.boost.Report(r.Context(), id, h.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotLoaded) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "boost report failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "boost report failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":                id,
		"locked_amount":          b.LockedAmount,
		"locked_value":           b.LockedValue,
		"weighted_avg_lock_secs": int64(b.WeightedAverageLockTime.Seconds()),
		"time_lock_multiplier":   b.TimeLockMultiplier,
		"value_lock_multiplier":  b.ValueLockMultiplier,
		"multiplier":             b.Multiplier,
		"boost":                  b.Boost,
	})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
