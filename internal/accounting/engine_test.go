package accounting

import (
	"testing"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	snap *domain.BalanceSnapshot
}

func (s *staticSource) Snapshot() *domain.BalanceSnapshot { return s.snap }

func newTestEngine(records ...domain.BalanceRecord) (*Engine, *staticSource) {
	src := &staticSource{}
	if records != nil {
		src.snap = &domain.BalanceSnapshot{AccountID: testAccount, Version: 1, Records: records}
	}
	e := NewEngine(NewClassifier(testRegistry), src, []string{testBribe})
	e.SetMarketKeys([]domain.MarketKey{{Up: testMarketUp, Down: testMarketDown}})
	return e, src
}

func TestEngine_MarketVoteValueNotLoaded(t *testing.T) {
	e, _ := newTestEngine()
	v, loaded := e.MarketVoteValue(testMarketUp, testAccount, aqua)
	assert.False(t, loaded)
	assert.True(t, v.IsZero())
	assert.False(t, e.Loaded())
}

func TestEngine_MarketVoteValue(t *testing.T) {
	e, _ := newTestEngine(
		voteRecord("a", testMarketUp, aqua, "10", 1),
		voteRecord("b", testMarketUp, aqua, "2.5", 2),
		voteRecord("c", testMarketUp, upvoteICE, "7", 3),
		voteRecord("d", testMarketDown, aqua, "4", 4),
		voteRecord("e", testOther, aqua, "100", 5),
	)

	v, loaded := e.MarketVoteValue(testMarketUp, testAccount, aqua)
	require.True(t, loaded)
	assert.Equal(t, "12.5", v.String())

	v, loaded = e.MarketVoteValue(testMarketUp, testAccount, upvoteICE)
	require.True(t, loaded)
	assert.Equal(t, "7", v.String())

	v, loaded = e.MarketVoteValue(testOther, testAccount, aqua)
	require.True(t, loaded)
	assert.True(t, v.IsZero())
}

func TestEngine_MarketVoteValueEqualsSumOfClassifiedVotes(t *testing.T) {
	records := []domain.BalanceRecord{
		voteRecord("a", testMarketUp, aqua, "1.1234567", 1),
		voteRecord("b", testMarketUp, aqua, "2", 2),
		lockRecord("c", "50", unlockAt),
	}
	e, _ := newTestEngine(records...)

	c := NewClassifier(testRegistry)
	want := decimal.Zero
	for _, r := range records {
		cl, ok := c.Classify(r, testKnown, testAccount)
		if ok && cl.Kind == domain.KindVoteFor && cl.Counterparty == testMarketUp {
			want = want.Add(r.Amount)
		}
	}
	got, _ := e.MarketVoteValue(testMarketUp, testAccount, aqua)
	assert.True(t, want.Equal(got))
}

// Scenario: two upvotes and one downvote on a pair, most recent first.
func TestEngine_VotesForPair(t *testing.T) {
	e, _ := newTestEngine(
		voteRecord("old-up", testMarketUp, aqua, "10", 10),
		voteRecord("down", testMarketDown, aqua, "3", 30),
		voteRecord("new-up", testMarketUp, upvoteICE, "5", 20),
		voteRecord("elsewhere", testBribe, aqua, "1", 40),
	)

	votes := e.VotesForPair(domain.MarketKey{Up: testMarketUp, Down: testMarketDown}, testAccount)
	require.Len(t, votes, 3)

	ids := []string{votes[0].SourceRecordID, votes[1].SourceRecordID, votes[2].SourceRecordID}
	assert.Equal(t, []string{"down", "new-up", "old-up"}, ids)

	assert.True(t, votes[0].IsDownVote())
	assert.False(t, votes[1].IsDownVote())
	assert.False(t, votes[2].IsDownVote())
	for _, v := range votes {
		assert.Equal(t, unlockAt, v.ClaimBackDate)
	}
}

func TestEngine_VotesForPairEmptyWhenNotLoaded(t *testing.T) {
	e, _ := newTestEngine()
	assert.Empty(t, e.VotesForPair(domain.MarketKey{Up: testMarketUp, Down: testMarketDown}, testAccount))
}

func TestEngine_KeysResemblingMarketAddresses(t *testing.T) {
	e, _ := newTestEngine(
		voteRecord("a", testMarketUp, aqua, "1", 1),
		voteRecord("b", testMarketUp, aqua, "1", 2),
		voteRecord("c", testOther, aqua, "1", 3),
		voteRecord("d", testMarketDown, domain.NativeAsset, "1", 4),
		lockRecord("e", "1", unlockAt),
	)

	keys := e.KeysResemblingMarketAddresses(testAccount)
	assert.ElementsMatch(t, []string{testMarketUp, testOther}, keys)
}

func TestEngine_LocksAndTotal(t *testing.T) {
	later := unlockAt.Add(24 * time.Hour)
	e, _ := newTestEngine(
		lockRecord("late", "30", later),
		lockRecord("early", "20", unlockAt),
		voteRecord("v", testMarketUp, aqua, "5", 1),
	)

	locks := e.Locks(testAccount)
	require.Len(t, locks, 2)
	assert.Equal(t, "early", locks[0].SourceRecordID)
	assert.Equal(t, "late", locks[1].SourceRecordID)
	assert.Equal(t, "50", e.LockTotal(testAccount).String())
}

func TestEngine_MarketSummaries(t *testing.T) {
	e, _ := newTestEngine(
		voteRecord("a", testMarketUp, aqua, "1", 1),
		voteRecord("b", testMarketUp, upvoteICE, "2", 2),
		voteRecord("c", testMarketDown, aqua, "10", 3),
	)

	sums := e.MarketSummaries(testAccount)
	require.Len(t, sums, 2)

	assert.Equal(t, testMarketDown, sums[0].MarketAddress)
	assert.Equal(t, domain.DirectionDown, sums[0].Direction)
	assert.Equal(t, "10", sums[0].Total.String())

	up := sums[1]
	assert.Equal(t, testMarketUp, up.MarketAddress)
	assert.Equal(t, 2, up.Votes)
	assert.Equal(t, "3", up.Total.String())
	assert.Equal(t, "1", up.ByAsset[domain.AssetAQUA].String())
	assert.Equal(t, "2", up.ByAsset[domain.AssetUpvoteICE].String())
	assert.Equal(t, unlockAt, up.LatestClaimBack)
}

func TestEngine_ClaimableVotes(t *testing.T) {
	e, _ := newTestEngine(voteRecord("a", testMarketUp, aqua, "1", 1))
	assert.Empty(t, e.ClaimableVotes(testAccount, unlockAt.Add(-time.Second)))
	assert.Len(t, e.ClaimableVotes(testAccount, unlockAt), 1)
}

func TestEngine_BribeClaims(t *testing.T) {
	e, _ := newTestEngine(voteRecord("a", testBribe, aqua, "4", 1))
	bribes := e.BribeClaims(testAccount)
	require.Len(t, bribes, 1)
	assert.Equal(t, testBribe, bribes[0].CollectorAddress)
	assert.Empty(t, e.Votes(testAccount))
}

func TestEngine_ReadsLatestSnapshot(t *testing.T) {
	e, src := newTestEngine(voteRecord("a", testMarketUp, aqua, "1", 1))
	v, _ := e.MarketVoteValue(testMarketUp, testAccount, aqua)
	assert.Equal(t, "1", v.String())

	src.snap = &domain.BalanceSnapshot{Version: 2, Records: []domain.BalanceRecord{
		voteRecord("a", testMarketUp, aqua, "1", 1),
		voteRecord("b", testMarketUp, aqua, "2", 2),
	}}
	v, _ = e.MarketVoteValue(testMarketUp, testAccount, aqua)
	assert.Equal(t, "3", v.String())
}

func TestEngine_SnapshotSummariesIgnoresNewerSnapshot(t *testing.T) {
	e, src := newTestEngine(voteRecord("a", testMarketUp, aqua, "1", 1))
	old := src.snap

	src.snap = &domain.BalanceSnapshot{Version: 2, Records: []domain.BalanceRecord{
		voteRecord("a", testMarketUp, aqua, "1", 1),
		voteRecord("b", testMarketUp, aqua, "2", 2),
	}}

	sums := e.SnapshotSummaries(old, testAccount)
	require.Len(t, sums, 1)
	assert.Equal(t, "1", sums[0].Total.String())
	assert.Equal(t, "3", e.MarketSummaries(testAccount)[0].Total.String())
	assert.Empty(t, e.SnapshotSummaries(nil, testAccount))
}
