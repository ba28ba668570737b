package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pagedSource struct {
	mu        sync.Mutex
	claimant  [][]domain.BalanceRecord
	sponsor   [][]domain.BalanceRecord
	err       error
	gate      chan struct{}
	queries   []domain.BalanceQuery
	claimPage int
	spPage    int
}

func (p *pagedSource) ClaimableBalancesPage(ctx context.Context, q domain.BalanceQuery) ([]domain.BalanceRecord, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	if p.err != nil {
		return nil, p.err
	}
	if q.Claimant != "" {
		if q.Cursor == "" {
			p.claimPage = 0
		}
		if p.claimPage >= len(p.claimant) {
			return nil, nil
		}
		out := p.claimant[p.claimPage]
		p.claimPage++
		return out, nil
	}
	if q.Cursor == "" {
		p.spPage = 0
	}
	if p.spPage >= len(p.sponsor) {
		return nil, nil
	}
	out := p.sponsor[p.spPage]
	p.spPage++
	return out, nil
}

func makeRecords(prefix string, n int) []domain.BalanceRecord {
	out := make([]domain.BalanceRecord, n)
	for i := range out {
		id := fmt.Sprintf("%s-%d", prefix, i)
		out[i] = domain.BalanceRecord{ID: id, Amount: decimal.NewFromInt(1), PagingToken: id}
	}
	return out
}

type recordingBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if channel == domain.ChannelBalances {
		b.payloads = append(b.payloads, payload)
	}
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *recordingBus) StreamAppend(context.Context, string, []byte) error       { return nil }
func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

func newStore(src domain.BalanceSource, bus domain.SignalBus, maxPages int) *BalanceStore {
	return NewBalanceStore(BalanceStoreConfig{Source: src, Bus: bus, MaxPages: maxPages, Logger: discardLogger()})
}

func TestBalanceStore_RefreshPaginatesUntilShortPage(t *testing.T) {
	src := &pagedSource{
		claimant: [][]domain.BalanceRecord{makeRecords("a", 200), makeRecords("b", 200), makeRecords("c", 50)},
	}
	bus := &recordingBus{}
	s := newStore(src, bus, 0)

	assert.Nil(t, s.Snapshot())
	require.NoError(t, s.Refresh(context.Background(), "GACC"))

	snap := s.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 450, snap.Len())
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, "GACC", snap.AccountID)

	// three claimant pages, one empty sponsor page
	require.Len(t, src.queries, 4)
	assert.Equal(t, "", src.queries[0].Cursor)
	assert.Equal(t, "a-199", src.queries[1].Cursor)
	assert.Equal(t, "b-199", src.queries[2].Cursor)
	assert.Equal(t, "GACC", src.queries[3].Sponsor)
	assert.Equal(t, 1, bus.count())
}

func TestBalanceStore_MergesSponsorListingWithoutDuplicates(t *testing.T) {
	shared := makeRecords("shared", 2)
	src := &pagedSource{
		claimant: [][]domain.BalanceRecord{append(makeRecords("own", 1), shared...)},
		sponsor:  [][]domain.BalanceRecord{append(makeRecords("sponsored", 1), shared...)},
	}
	s := newStore(src, nil, 0)
	require.NoError(t, s.Refresh(context.Background(), "GACC"))
	assert.Equal(t, 4, s.Snapshot().Len())
}

func TestBalanceStore_PageBound(t *testing.T) {
	pages := make([][]domain.BalanceRecord, 10)
	for i := range pages {
		pages[i] = makeRecords(fmt.Sprintf("p%d", i), 200)
	}
	src := &pagedSource{claimant: pages}
	s := newStore(src, nil, 3)
	require.NoError(t, s.Refresh(context.Background(), "GACC"))
	assert.Equal(t, 600, s.Snapshot().Len())
}

func TestBalanceStore_FailedRefreshKeepsSnapshot(t *testing.T) {
	src := &pagedSource{claimant: [][]domain.BalanceRecord{makeRecords("a", 3)}}
	bus := &recordingBus{}
	s := newStore(src, bus, 0)
	require.NoError(t, s.Refresh(context.Background(), "GACC"))
	before := s.Snapshot()

	src.err = errors.New("boom")
	err := s.Refresh(context.Background(), "GACC")
	require.Error(t, err)
	assert.Same(t, before, s.Snapshot())
	assert.Equal(t, 1, bus.count())
}

func TestBalanceStore_ClearAndStaleRefresh(t *testing.T) {
	src := &pagedSource{claimant: [][]domain.BalanceRecord{makeRecords("a", 3)}, gate: make(chan struct{})}
	s := newStore(src, nil, 0)
	events, unsubscribe := s.Subscribe(4)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background(), "GACC") }()

	// Let the refresh start, then clear before its pages arrive.
	time.Sleep(20 * time.Millisecond)
	s.Clear()
	close(src.gate)
	require.NoError(t, <-done)

	assert.Nil(t, s.Snapshot())
	ev := <-events
	assert.True(t, ev.Cleared)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after clear: %+v", ev)
	default:
	}

	require.NoError(t, s.Refresh(context.Background(), "GACC"))
	require.NotNil(t, s.Snapshot())
	assert.Equal(t, uint64(1), s.Snapshot().Version)
}

func TestBalanceStore_SnapshotsAreReplacedWhole(t *testing.T) {
	src := &pagedSource{claimant: [][]domain.BalanceRecord{makeRecords("a", 2)}}
	s := newStore(src, nil, 0)
	require.NoError(t, s.Refresh(context.Background(), "GACC"))
	first := s.Snapshot()

	src.claimant = [][]domain.BalanceRecord{makeRecords("b", 5)}
	require.NoError(t, s.Refresh(context.Background(), "GACC"))
	second := s.Snapshot()

	assert.Equal(t, 2, first.Len())
	assert.Equal(t, 5, second.Len())
	assert.Equal(t, first.Version+1, second.Version)
}

type triggerStreamer struct {
	fire chan string
}

func (t *triggerStreamer) StreamAccountEffects(ctx context.Context, _ string, handle func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case typ := <-t.fire:
			handle(typ)
		}
	}
}

func TestBalanceStore_SubscribeToLiveUpdates(t *testing.T) {
	src := &pagedSource{claimant: [][]domain.BalanceRecord{makeRecords("a", 1)}}
	streamer := &triggerStreamer{fire: make(chan string)}
	s := NewBalanceStore(BalanceStoreConfig{Source: src, Streamer: streamer, Logger: discardLogger()})
	events, unsub := s.Subscribe(4)
	defer unsub()

	stop, err := s.SubscribeToLiveUpdates(context.Background(), "GACC")
	require.NoError(t, err)

	streamer.fire <- "account_debited"
	streamer.fire <- "claimable_balance_created"

	select {
	case ev := <-events:
		assert.Equal(t, "GACC", ev.AccountID)
		assert.Equal(t, 1, ev.Records)
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh after balance effect")
	}

	stop()
	stop()
	assert.Equal(t, uint64(1), s.Snapshot().Version)
}

// lingeringSource completes its page only after the caller's context is
// cancelled, like a response already on the wire when the caller gives up.
type lingeringSource struct {
	once    sync.Once
	entered chan struct{}
	records []domain.BalanceRecord
}

func (l *lingeringSource) ClaimableBalancesPage(ctx context.Context, q domain.BalanceQuery) ([]domain.BalanceRecord, error) {
	l.once.Do(func() { close(l.entered) })
	<-ctx.Done()
	if q.Claimant != "" {
		return l.records, nil
	}
	return nil, nil
}

func TestBalanceStore_StopDropsRefreshInFlight(t *testing.T) {
	src := &lingeringSource{entered: make(chan struct{}), records: makeRecords("a", 3)}
	streamer := &triggerStreamer{fire: make(chan string)}
	bus := &recordingBus{}
	s := NewBalanceStore(BalanceStoreConfig{Source: src, Streamer: streamer, Bus: bus, Logger: discardLogger()})
	events, unsub := s.Subscribe(4)
	defer unsub()

	stop, err := s.SubscribeToLiveUpdates(context.Background(), "GACC")
	require.NoError(t, err)

	streamer.fire <- "claimable_balance_created"
	select {
	case <-src.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}

	assert.Nil(t, s.Snapshot())
	assert.Empty(t, events)
	assert.Zero(t, bus.count())
}

func TestBalanceStore_SubscribeWithoutStreamer(t *testing.T) {
	s := newStore(&pagedSource{}, nil, 0)
	_, err := s.SubscribeToLiveUpdates(context.Background(), "GACC")
	assert.Error(t, err)
}
