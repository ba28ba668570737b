// Package horizon is the ledger gateway: claimable balance listings, account
// state, the effects stream, order books and transaction submission, all via
// the Horizon API.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/effects"
	"github.com/stellar/go/txnbuild"
)

// API is the part of the Horizon client used here. ClientInterface lacks the
// claimable balance listing, which only *horizonclient.Client provides.
type API interface {
	horizonclient.ClientInterface
	ClaimableBalances(cr horizonclient.ClaimableBalanceRequest) (hProtocol.ClaimableBalances, error)
}

var _ API = (*horizonclient.Client)(nil)

// Client wraps a Horizon API and converts responses into domain types.
type Client struct {
	api API
}

// New creates a Client for the Horizon server at url.
func New(url string) *Client {
	return &Client{api: descendingClient{&horizonclient.Client{
		HorizonURL: url,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		AppName:    "govledger",
	}}}
}

// NewWithAPI creates a Client over an existing Horizon API implementation.
func NewWithAPI(api API) *Client {
	return &Client{api: api}
}

// ClaimableBalancesPage returns one page of claimable balances where the
// query's account is a claimant or the sponsor, newest first.
func (c *Client) ClaimableBalancesPage(ctx context.Context, q domain.BalanceQuery) ([]domain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = domain.BalancePageSize
	}

	page, err := c.api.ClaimableBalances(horizonclient.ClaimableBalanceRequest{
		Claimant: q.Claimant,
		Sponsor:  q.Sponsor,
		Cursor:   q.Cursor,
		Limit:    uint(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("horizon: claimable balances: %w", wrapError(err))
	}

	records := make([]domain.BalanceRecord, 0, len(page.Embedded.Records))
	for _, cb := range page.Embedded.Records {
		rec, err := toBalanceRecord(cb)
		if err != nil {
			return nil, fmt.Errorf("horizon: claimable balance %s: %w", cb.BalanceID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadAccount reads the account's sequence number, signers, thresholds and
// balances.
func (c *Client) LoadAccount(ctx context.Context, accountID string) (domain.AccountState, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccountState{}, err
	}
	acc, err := c.api.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("horizon: account %s: %w", accountID, wrapError(err))
	}
	state, err := toAccountState(acc)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("horizon: account %s: %w", accountID, err)
	}
	return state, nil
}

// StreamAccountEffects streams effects for accountID from now on and passes
// each effect type to handle. It blocks until ctx is cancelled or the
// stream fails.
func (c *Client) StreamAccountEffects(ctx context.Context, accountID string, handle func(effectType string)) error {
	err := c.api.StreamEffects(ctx, horizonclient.EffectRequest{
		ForAccount: accountID,
		Cursor:     "now",
	}, func(e effects.Effect) {
		handle(e.GetType())
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("horizon: stream effects: %w", wrapError(err))
	}
	return ctx.Err()
}

// Submit sends a signed transaction and returns its hash.
func (c *Client) Submit(ctx context.Context, tx *txnbuild.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := c.api.SubmitTransaction(tx)
	if err != nil {
		return "", fmt.Errorf("horizon: submit: %w", describeSubmitError(err))
	}
	return resp.Hash, nil
}

// TransactionStatus looks up a submitted transaction. A transaction not yet
// ingested reports Found=false without error.
func (c *Client) TransactionStatus(ctx context.Context, hash string) (domain.TxStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxStatus{}, err
	}
	tx, err := c.api.TransactionDetail(hash)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return domain.TxStatus{}, nil
		}
		return domain.TxStatus{}, fmt.Errorf("horizon: transaction %s: %w", hash, wrapError(err))
	}
	return domain.TxStatus{Found: true, Successful: tx.Successful, Ledger: tx.Ledger}, nil
}

// MidPrice returns the midpoint of the best bid and ask for base quoted in
// counter. With only one side present that side's price is used.
func (c *Client) MidPrice(ctx context.Context, base, counter domain.Asset) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	req := horizonclient.OrderBookRequest{Limit: 1}
	req.SellingAssetType, req.SellingAssetCode, req.SellingAssetIssuer = assetParams(base)
	req.BuyingAssetType, req.BuyingAssetCode, req.BuyingAssetIssuer = assetParams(counter)

	book, err := c.api.OrderBook(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("horizon: order book %s/%s: %w", base, counter, wrapError(err))
	}

	var bid, ask decimal.Decimal
	if len(book.Bids) > 0 {
		if bid, err = decimal.NewFromString(book.Bids[0].Price); err != nil {
			return decimal.Zero, fmt.Errorf("horizon: parse bid: %w", err)
		}
	}
	if len(book.Asks) > 0 {
		if ask, err = decimal.NewFromString(book.Asks[0].Price); err != nil {
			return decimal.Zero, fmt.Errorf("horizon: parse ask: %w", err)
		}
	}

	switch {
	case bid.IsPositive() && ask.IsPositive():
		return bid.Add(ask).Div(decimal.NewFromInt(2)), nil
	case bid.IsPositive():
		return bid, nil
	case ask.IsPositive():
		return ask, nil
	default:
		return decimal.Zero, fmt.Errorf("horizon: order book %s/%s: %w", base, counter, domain.ErrNotFound)
	}
}

func assetParams(a domain.Asset) (horizonclient.AssetType, string, string) {
	if a.IsNative() {
		return horizonclient.AssetTypeNative, "", ""
	}
	if len(a.Code) <= 4 {
		return horizonclient.AssetType4, a.Code, a.Issuer
	}
	return horizonclient.AssetType12, a.Code, a.Issuer
}

// wrapError maps Horizon problem responses onto domain errors. Anything that
// is not a Horizon problem is a transport failure.
func wrapError(err error) error {
	var herr *horizonclient.Error
	if !errors.As(err, &herr) {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	switch herr.Problem.Status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, herr.Problem.Title)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, herr.Problem.Title)
	default:
		return err
	}
}

// describeSubmitError surfaces the transaction and operation result codes of
// a rejected submission.
func describeSubmitError(err error) error {
	var herr *horizonclient.Error
	if !errors.As(err, &herr) {
		return wrapError(err)
	}
	codes, cerr := herr.ResultCodes()
	if cerr != nil || codes == nil {
		return wrapError(err)
	}
	return fmt.Errorf("%w: %s %v", domain.ErrTxFailed, codes.TransactionCode, codes.OperationCodes)
}
