package service

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/govledger/internal/accounting"
	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	watchAccount = "GWATCHACCOUNTXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
	watchMarket  = "GWATCHMARKETXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
	watchIssuer  = "GWATCHISSUERXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
)

var watchAqua = domain.Asset{Code: "AQUA", Issuer: watchIssuer}

func watchVote(id string, until time.Time) domain.BalanceRecord {
	return domain.BalanceRecord{
		ID:          id,
		Asset:       watchAqua,
		Amount:      decimal.NewFromInt(10),
		PagingToken: id,
		Claimants: []domain.Claimant{
			{Destination: watchMarket, Predicate: domain.Never()},
			{Destination: watchAccount, Predicate: domain.NotBefore(until)},
		},
	}
}

func watchLock(id string, until time.Time) domain.BalanceRecord {
	return domain.BalanceRecord{
		ID:          id,
		Asset:       watchAqua,
		Amount:      decimal.NewFromInt(500),
		PagingToken: id,
		Claimants:   []domain.Claimant{{Destination: watchAccount, Predicate: domain.NotBefore(until)}},
	}
}

func newWatchEngine(t *testing.T, recs []domain.BalanceRecord) (*accounting.Engine, *BalanceStore, *pagedSource) {
	t.Helper()
	src := &pagedSource{claimant: [][]domain.BalanceRecord{recs}}
	store := newStore(src, nil, 0)
	require.NoError(t, store.Refresh(context.Background(), watchAccount))

	engine := accounting.NewEngine(
		accounting.NewClassifier(domain.NewAssetRegistry(watchIssuer, watchIssuer)),
		store, nil,
	)
	engine.SetMarketKeys([]domain.MarketKey{{Up: watchMarket, Down: "GDOWN"}})
	return engine, store, src
}

func TestClaimWatcher_AnnouncesOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	engine, store, _ := newWatchEngine(t, []domain.BalanceRecord{
		watchVote("past-vote", now.Add(-time.Hour)),
		watchVote("future-vote", now.Add(time.Hour)),
		watchLock("past-lock", now.Add(-24*time.Hour)),
		watchLock("future-lock", now.Add(24*time.Hour)),
	})
	notifier := &recordingNotifier{}
	w := NewClaimWatcher(engine, store, watchAccount, nil, notifier, time.Minute, discardLogger())
	w.now = func() time.Time { return now }

	first := w.Check(context.Background())
	require.Len(t, first, 2)
	ids := []string{first[0].RecordID, first[1].RecordID}
	assert.ElementsMatch(t, []string{"past-vote", "past-lock"}, ids)
	assert.Len(t, notifier.events, 2)

	assert.Empty(t, w.Check(context.Background()))

	w.now = func() time.Time { return now.Add(2 * time.Hour) }
	second := w.Check(context.Background())
	require.Len(t, second, 1)
	assert.Equal(t, "future-vote", second[0].RecordID)
	assert.Equal(t, "vote", second[0].Kind)
	assert.Equal(t, "AQUA", second[0].Asset)
	assert.Equal(t, "10", second[0].Amount)
}

func TestClaimWatcher_NothingBeforeLoad(t *testing.T) {
	store := newStore(&pagedSource{}, nil, 0)
	engine := accounting.NewEngine(
		accounting.NewClassifier(domain.NewAssetRegistry(watchIssuer, watchIssuer)),
		store, nil,
	)
	w := NewClaimWatcher(engine, store, watchAccount, nil, nil, time.Minute, discardLogger())
	assert.Nil(t, w.Check(context.Background()))
}

func TestClaimWatcher_ForgetsClaimedRecords(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	engine, store, src := newWatchEngine(t, []domain.BalanceRecord{watchLock("l1", now.Add(-time.Hour))})
	w := NewClaimWatcher(engine, store, watchAccount, nil, nil, time.Minute, discardLogger())
	w.now = func() time.Time { return now }

	require.Len(t, w.Check(context.Background()), 1)

	src.claimant = nil
	require.NoError(t, store.Refresh(context.Background(), watchAccount))
	assert.Empty(t, w.Check(context.Background()))
	assert.Empty(t, w.announced)
}

type fixedPricer struct{ price decimal.Decimal }

func (p fixedPricer) ReferencePrice(context.Context) (decimal.Decimal, error) { return p.price, nil }

func TestBoostService_Report(t *testing.T) {
	now := time.Now().UTC()
	engine, _, _ := newWatchEngine(t, []domain.BalanceRecord{watchLock("l1", now.Add(365*24*time.Hour))})
	accounts := &staticAccounts{state: domain.AccountState{
		Balances: map[domain.Asset]decimal.Decimal{watchAqua: decimal.NewFromInt(500)},
	}}
	calc := accounting.NewBoostCalculator(accounting.BoostParams{
		MaxLockPeriod: 3 * 365 * 24 * time.Hour,
		MaxBoost:      decimal.RequireFromString("2.5"),
	})
	svc := NewBoostService(engine, calc, accounts, fixedPricer{price: decimal.RequireFromString("0.5")}, watchAqua)

	b, err := svc.Report(context.Background(), watchAccount, now)
	require.NoError(t, err)
	assert.True(t, b.LockedAmount.Equal(decimal.NewFromInt(500)))
	assert.True(t, b.LockedValue.Equal(decimal.NewFromInt(250)))
	assert.True(t, b.Boost.GreaterThan(decimal.Zero))
}

func TestBoostService_NotLoaded(t *testing.T) {
	store := newStore(&pagedSource{}, nil, 0)
	engine := accounting.NewEngine(accounting.NewClassifier(domain.NewAssetRegistry(watchIssuer, watchIssuer)), store, nil)
	svc := NewBoostService(engine, accounting.NewBoostCalculator(accounting.BoostParams{}), &staticAccounts{}, fixedPricer{}, watchAqua)

	_, err := svc.Report(context.Background(), watchAccount, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotLoaded)
}
