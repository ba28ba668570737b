package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/support/render/problem"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	horizonclient.ClientInterface

	lastBalanceReq horizonclient.ClaimableBalanceRequest
	balances       hProtocol.ClaimableBalances
	balancesErr    error
	book           hProtocol.OrderBookSummary
	txErr          error
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) ClaimableBalances(req horizonclient.ClaimableBalanceRequest) (hProtocol.ClaimableBalances, error) {
	f.lastBalanceReq = req
	return f.balances, f.balancesErr
}

func (f *fakeAPI) OrderBook(horizonclient.OrderBookRequest) (hProtocol.OrderBookSummary, error) {
	return f.book, nil
}

func (f *fakeAPI) TransactionDetail(string) (hProtocol.Transaction, error) {
	if f.txErr != nil {
		return hProtocol.Transaction{}, f.txErr
	}
	return hProtocol.Transaction{Successful: true, Ledger: 7}, nil
}

func TestToPredicate(t *testing.T) {
	at := time.Unix(1800000000, 0).UTC()

	tests := []struct {
		name string
		in   xdr.ClaimPredicate
		want domain.Predicate
	}{
		{"unconditional", txnbuild.UnconditionalPredicate, domain.Unconditional()},
		{"never", txnbuild.NotPredicate(txnbuild.UnconditionalPredicate), domain.Never()},
		{"not before", txnbuild.NotPredicate(txnbuild.BeforeAbsoluteTimePredicate(at.Unix())), domain.NotBefore(at)},
		{"before is other", txnbuild.BeforeAbsoluteTimePredicate(at.Unix()), domain.Predicate{Kind: domain.PredicateOther}},
		{"not relative is other", txnbuild.NotPredicate(txnbuild.BeforeRelativeTimePredicate(60)), domain.Predicate{Kind: domain.PredicateOther}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toPredicate(tt.in))
		})
	}
}

func TestClaimableBalancesPage(t *testing.T) {
	api := &fakeAPI{}
	api.balances.Embedded.Records = []hProtocol.ClaimableBalance{{
		BalanceID:          "00000000abc",
		Asset:              "AQUA:GISSUER",
		Amount:             "12.3400000",
		Sponsor:            "GSPONSOR",
		LastModifiedLedger: 99,
		PT:                 "99-1",
		Claimants: []hProtocol.Claimant{
			{Destination: "GMARKET", Predicate: txnbuild.NotPredicate(txnbuild.UnconditionalPredicate)},
			{Destination: "GSPONSOR", Predicate: txnbuild.UnconditionalPredicate},
		},
	}}
	c := NewWithAPI(api)

	recs, err := c.ClaimableBalancesPage(context.Background(), domain.BalanceQuery{Claimant: "GSPONSOR", Cursor: "5"})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, uint(domain.BalancePageSize), api.lastBalanceReq.Limit)
	assert.Equal(t, "5", api.lastBalanceReq.Cursor)
	assert.Equal(t, "GSPONSOR", api.lastBalanceReq.Claimant)

	r := recs[0]
	assert.Equal(t, domain.Asset{Code: "AQUA", Issuer: "GISSUER"}, r.Asset)
	assert.Equal(t, "12.34", r.Amount.String())
	assert.Equal(t, uint32(99), r.LastModifiedLedger)
	assert.Equal(t, "99-1", r.PagingToken)
	assert.Equal(t, domain.PredicateNever, r.Claimants[0].Predicate.Kind)
}

func TestClaimableBalancesPage_NewestFirst(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/claimable_balances", r.URL.Path)
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}

		var page hProtocol.ClaimableBalances
		page.Embedded.Records = []hProtocol.ClaimableBalance{{
			BalanceID: "00000000def",
			Asset:     "native",
			Amount:    "5.0000000",
			PT:        "120-3",
			Claimants: []hProtocol.Claimant{{Destination: "GACC", Predicate: txnbuild.UnconditionalPredicate}},
		}}
		w.Header().Set("Content-Type", "application/hal+json")
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer srv.Close()

	recs, err := New(srv.URL).ClaimableBalancesPage(context.Background(), domain.BalanceQuery{Sponsor: "GACC", Cursor: "130-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "00000000def", recs[0].ID)
	assert.Equal(t, domain.NativeAsset, recs[0].Asset)

	assert.Equal(t, "desc", query["order"])
	assert.Equal(t, "GACC", query["sponsor"])
	assert.Equal(t, "130-1", query["cursor"])
	assert.Equal(t, "200", query["limit"])
}

func TestClaimableBalancesPage_ProblemResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"rate_limit_exceeded","title":"Rate Limit Exceeded","status":429}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).ClaimableBalancesPage(context.Background(), domain.BalanceQuery{Claimant: "GACC"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestClaimableBalancesPage_TransportError(t *testing.T) {
	c := NewWithAPI(&fakeAPI{balancesErr: errors.New("connection refused")})
	_, err := c.ClaimableBalancesPage(context.Background(), domain.BalanceQuery{Claimant: "G"})
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestClaimableBalancesPage_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWithAPI(&fakeAPI{}).ClaimableBalancesPage(ctx, domain.BalanceQuery{Claimant: "G"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMidPrice(t *testing.T) {
	api := &fakeAPI{book: hProtocol.OrderBookSummary{
		Bids: []hProtocol.PriceLevel{{Price: "0.0010"}},
		Asks: []hProtocol.PriceLevel{{Price: "0.0012"}},
	}}
	p, err := NewWithAPI(api).MidPrice(context.Background(), domain.Asset{Code: "AQUA", Issuer: "G"}, domain.NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, "0.0011", p.String())

	api.book = hProtocol.OrderBookSummary{}
	_, err = NewWithAPI(api).MidPrice(context.Background(), domain.Asset{Code: "AQUA", Issuer: "G"}, domain.NativeAsset)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionStatus(t *testing.T) {
	st, err := NewWithAPI(&fakeAPI{}).TransactionStatus(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, st.Found)
	assert.True(t, st.Successful)

	notFound := &horizonclient.Error{Problem: problem.P{Status: 404, Title: "Resource Missing", Type: "https://stellar.org/horizon-errors/not_found"}}
	st, err = NewWithAPI(&fakeAPI{txErr: notFound}).TransactionStatus(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, st.Found)
}
