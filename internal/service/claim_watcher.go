package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/govledger/internal/accounting"
	"github.com/alanyoungcy/govledger/internal/domain"
)

// EventClaimable is the notification event for newly claimable balances.
const EventClaimable = "claimable"

// ClaimWatcher announces votes and locks whose claim-back date has passed.
// It rechecks after every snapshot change and on a fixed tick, since records
// become claimable by the passage of time alone.
type ClaimWatcher struct {
	engine    *accounting.Engine
	store     *BalanceStore
	accountID string
	bus       domain.SignalBus // optional
	notifier  EventNotifier    // optional
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	announced map[string]struct{}
}

// NewClaimWatcher creates a ClaimWatcher for accountID.
func NewClaimWatcher(
	engine *accounting.Engine,
	store *BalanceStore,
	accountID string,
	bus domain.SignalBus,
	notifier EventNotifier,
	interval time.Duration,
	logger *slog.Logger,
) *ClaimWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ClaimWatcher{
		engine:    engine,
		store:     store,
		accountID: accountID,
		bus:       bus,
		notifier:  notifier,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "claim_watcher")),
		announced: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled.
func (w *ClaimWatcher) Run(ctx context.Context) error {
	events, unsubscribe := w.store.Subscribe(8)
	defer unsubscribe()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Cleared {
				w.announced = make(map[string]struct{})
				continue
			}
			w.Check(ctx)
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check announces anything that became claimable since the last check and
// returns the new events. Records that left the snapshot are forgotten so a
// reused ID would be announced again.
func (w *ClaimWatcher) Check(ctx context.Context) []domain.ClaimableEvent {
	if !w.engine.Loaded() {
		return nil
	}
	now := w.now().UTC()

	var fresh []domain.ClaimableEvent
	current := make(map[string]struct{})
	for _, v := range w.engine.ClaimableVotes(w.accountID, now) {
		current[v.SourceRecordID] = struct{}{}
		if _, done := w.announced[v.SourceRecordID]; done {
			continue
		}
		fresh = append(fresh, domain.ClaimableEvent{
			AccountID: w.accountID,
			RecordID:  v.SourceRecordID,
			Kind:      "vote",
			Amount:    v.Amount.String(),
			Asset:     v.Asset.String(),
			Since:     v.ClaimBackDate,
		})
	}
	for _, l := range w.engine.Locks(w.accountID) {
		if l.LockUntil.After(now) {
			continue
		}
		current[l.SourceRecordID] = struct{}{}
		if _, done := w.announced[l.SourceRecordID]; done {
			continue
		}
		fresh = append(fresh, domain.ClaimableEvent{
			AccountID: w.accountID,
			RecordID:  l.SourceRecordID,
			Kind:      "lock",
			Amount:    l.Amount.String(),
			Since:     l.LockUntil,
		})
	}

	for id := range w.announced {
		if _, ok := current[id]; !ok {
			delete(w.announced, id)
		}
	}
	for _, ev := range fresh {
		w.announced[ev.RecordID] = struct{}{}
		w.announce(ctx, ev)
	}
	return fresh
}

func (w *ClaimWatcher) announce(ctx context.Context, ev domain.ClaimableEvent) {
	w.logger.InfoContext(ctx, "balance claimable",
		slog.String("record", ev.RecordID),
		slog.String("kind", ev.Kind),
		slog.String("amount", ev.Amount),
	)
	if w.bus != nil {
		if payload, err := json.Marshal(ev); err == nil {
			if err := w.bus.Publish(ctx, domain.ChannelClaims, payload); err != nil {
				w.logger.WarnContext(ctx, "publish claimable event", slog.String("error", err.Error()))
			}
		}
	}
	if w.notifier != nil {
		title := fmt.Sprintf("%s claimable", ev.Kind)
		msg := fmt.Sprintf("%s %s can be claimed (balance %s)", ev.Amount, ev.Asset, ev.RecordID)
		if err := w.notifier.Notify(ctx, EventClaimable, title, msg); err != nil {
			w.logger.WarnContext(ctx, "notify claimable", slog.String("error", err.Error()))
		}
	}
}
