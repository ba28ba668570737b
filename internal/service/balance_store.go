package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/alanyoungcy/govledger/internal/feed"
)

// DefaultMaxPages bounds a single listing (claimant or sponsor) during refresh.
const DefaultMaxPages = 20

// BalanceStoreConfig configures a BalanceStore.
type BalanceStoreConfig struct {
	Source   domain.BalanceSource
	Streamer domain.EffectStreamer
	Bus      domain.SignalBus // optional
	MaxPages int
	Logger   *slog.Logger
}

// BalanceStore holds the latest snapshot of claimable balances relevant to an
// account, as claimant and as sponsor. Snapshots are immutable and replaced
// whole; readers never observe a partially merged collection.
type BalanceStore struct {
	source   domain.BalanceSource
	streamer domain.EffectStreamer
	bus      domain.SignalBus
	maxPages int
	logger   *slog.Logger

	snap atomic.Pointer[domain.BalanceSnapshot]

	mu        sync.Mutex
	session   uint64 // bumped by Clear; older in-flight refreshes are dropped
	issued    uint64 // last refresh ticket handed out
	published uint64 // ticket of the current snapshot
	version   uint64
	subs      map[chan domain.BalancesUpdatedEvent]struct{}
}

// NewBalanceStore creates an empty store.
func NewBalanceStore(cfg BalanceStoreConfig) *BalanceStore {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &BalanceStore{
		source:   cfg.Source,
		streamer: cfg.Streamer,
		bus:      cfg.Bus,
		maxPages: maxPages,
		logger:   cfg.Logger.With(slog.String("component", "balance_store")),
		subs:     make(map[chan domain.BalancesUpdatedEvent]struct{}),
	}
}

// SeedVersion makes the next published snapshot's version greater than v.
// It never lowers the version.
func (s *BalanceStore) SeedVersion(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.version {
		s.version = v
	}
}

// Snapshot returns the current snapshot, or nil before the first successful
// refresh and after Clear.
func (s *BalanceStore) Snapshot() *domain.BalanceSnapshot {
	return s.snap.Load()
}

// Refresh reloads every record for accountID and publishes a new snapshot.
// On failure the previous snapshot stays in place.
func (s *BalanceStore) Refresh(ctx context.Context, accountID string) error {
	return s.refresh(ctx, accountID, func() bool { return true })
}

func (s *BalanceStore) refresh(ctx context.Context, accountID string, alive func() bool) error {
	s.mu.Lock()
	session := s.session
	s.issued++
	ticket := s.issued
	s.mu.Unlock()

	records, err := s.fetchAll(ctx, accountID)
	if err != nil {
		s.logger.Warn("refresh failed, keeping previous snapshot",
			slog.String("account", accountID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("balance store: refresh %s: %w", accountID, err)
	}

	s.mu.Lock()
	if session != s.session || ticket < s.published || !alive() {
		s.mu.Unlock()
		s.logger.Debug("discarding stale refresh result", slog.String("account", accountID))
		return nil
	}
	s.version++
	snap := &domain.BalanceSnapshot{
		AccountID: accountID,
		Version:   s.version,
		Records:   records,
		FetchedAt: time.Now().UTC(),
	}
	s.snap.Store(snap)
	s.published = ticket
	ev := domain.BalancesUpdatedEvent{
		AccountID: accountID,
		Version:   snap.Version,
		Records:   len(records),
		At:        snap.FetchedAt,
	}
	s.broadcastLocked(ev)
	s.mu.Unlock()

	s.logger.Info("claimable balances updated",
		slog.String("account", accountID),
		slog.Uint64("version", snap.Version),
		slog.Int("records", len(records)),
	)
	s.publish(ctx, ev)
	return nil
}

// fetchAll merges the claimant and sponsor listings. Each listing is paged
// until a short page or the page bound; records are deduplicated by ID.
func (s *BalanceStore) fetchAll(ctx context.Context, accountID string) ([]domain.BalanceRecord, error) {
	queries := []domain.BalanceQuery{
		{Claimant: accountID, Limit: domain.BalancePageSize},
		{Sponsor: accountID, Limit: domain.BalancePageSize},
	}

	seen := make(map[string]struct{})
	var acc []domain.BalanceRecord
	for _, q := range queries {
		for page := 0; ; page++ {
			if page == s.maxPages {
				s.logger.Warn("page bound reached, listing truncated",
					slog.String("account", accountID),
					slog.Int("pages", s.maxPages),
				)
				break
			}
			recs, err := s.source.ClaimableBalancesPage(ctx, q)
			if err != nil {
				return nil, err
			}
			for _, r := range recs {
				if _, dup := seen[r.ID]; dup {
					continue
				}
				seen[r.ID] = struct{}{}
				acc = append(acc, r)
			}
			if len(recs) < q.Limit {
				break
			}
			q.Cursor = recs[len(recs)-1].PagingToken
		}
	}
	return acc, nil
}

// SubscribeToLiveUpdates watches the account's effects and refreshes whenever
// a claimable balance is created, gains a claimant or is claimed. Triggers
// arriving during a refresh collapse into one follow-up refresh. The returned
// function stops the subscription; results still in flight are dropped.
func (s *BalanceStore) SubscribeToLiveUpdates(ctx context.Context, accountID string) (func(), error) {
	if s.streamer == nil {
		return nil, errors.New("balance store: no effect streamer configured")
	}

	subCtx, cancel := context.WithCancel(ctx)
	var alive atomic.Bool
	alive.Store(true)
	trigger := make(chan struct{}, 1)

	ef := feed.NewEffectsFeed(s.streamer, accountID, func(effectType string) {
		s.logger.Debug("balance effect", slog.String("type", effectType))
		select {
		case trigger <- struct{}{}:
		default:
		}
	}, s.logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := ef.Run(subCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("effects feed stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-trigger:
				_ = s.refresh(subCtx, accountID, alive.Load)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			alive.Store(false)
			ef.Close()
			cancel()
			wg.Wait()
		})
	}, nil
}

// Clear drops the snapshot and invalidates refreshes in flight.
func (s *BalanceStore) Clear() {
	s.mu.Lock()
	s.session++
	prev := s.snap.Swap(nil)
	ev := domain.BalancesUpdatedEvent{Cleared: true, At: time.Now().UTC()}
	if prev != nil {
		ev.AccountID = prev.AccountID
	}
	s.broadcastLocked(ev)
	s.mu.Unlock()

	s.publish(context.Background(), ev)
}

// Subscribe returns a channel receiving an event after every published
// snapshot and every Clear. Slow readers miss events rather than block the
// store; they can always read Snapshot for the latest state.
func (s *BalanceStore) Subscribe(buffer int) (<-chan domain.BalancesUpdatedEvent, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan domain.BalancesUpdatedEvent, buffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
}

func (s *BalanceStore) broadcastLocked(ev domain.BalancesUpdatedEvent) {
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *BalanceStore) publish(ctx context.Context, ev domain.BalancesUpdatedEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal balances event", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelBalances, payload); err != nil {
		s.logger.Warn("publish balances event", slog.String("error", err.Error()))
	}
}
