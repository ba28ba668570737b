package txbuild

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// BuildOptions control transaction envelope parameters.
type BuildOptions struct {
	BaseFee int64
	Timeout time.Duration
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.BaseFee <= 0 {
		o.BaseFee = txnbuild.MinBaseFee
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	return o
}

// NewTransaction wraps ops in a transaction sourced from account. The account
// sequence must have been loaded just before this call; the built transaction
// consumes sequence+1.
func NewTransaction(account domain.AccountState, ops []txnbuild.Operation, opts BuildOptions) (*txnbuild.Transaction, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("txbuild: new transaction: no operations")
	}
	opts = opts.withDefaults()

	src := txnbuild.NewSimpleAccount(account.AccountID, account.Sequence)
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &src,
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              opts.BaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(opts.Timeout / time.Second)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("txbuild: new transaction: %w", err)
	}
	return tx, nil
}

// Sign adds signatures from each key in order.
func Sign(tx *txnbuild.Transaction, passphrase string, keys ...*keypair.Full) (*txnbuild.Transaction, error) {
	signed, err := tx.Sign(passphrase, keys...)
	if err != nil {
		return nil, fmt.Errorf("txbuild: sign: %w", err)
	}
	return signed, nil
}

// FromBase64 decodes a transaction envelope, rejecting fee-bump envelopes.
func FromBase64(envelope string) (*txnbuild.Transaction, error) {
	gtx, err := txnbuild.TransactionFromXDR(envelope)
	if err != nil {
		return nil, fmt.Errorf("txbuild: decode envelope: %w", err)
	}
	tx, ok := gtx.Transaction()
	if !ok {
		return nil, fmt.Errorf("txbuild: decode envelope: not a plain transaction")
	}
	return tx, nil
}

// TouchesAsset reports whether any operation moves or trusts one of assets.
// Used to decide whether a transaction must pass the approval server.
func TouchesAsset(ops []txnbuild.Operation, assets []domain.Asset) bool {
	if len(assets) == 0 {
		return false
	}
	set := make(map[domain.Asset]struct{}, len(assets))
	for _, a := range assets {
		set[a] = struct{}{}
	}
	hit := func(a txnbuild.BasicAsset) bool {
		if a == nil || a.IsNative() {
			return false
		}
		_, ok := set[domain.Asset{Code: a.GetCode(), Issuer: a.GetIssuer()}]
		return ok
	}

	for _, op := range ops {
		switch o := op.(type) {
		case *txnbuild.CreateClaimableBalance:
			if hit(o.Asset) {
				return true
			}
		case *txnbuild.Payment:
			if hit(o.Asset) {
				return true
			}
		case *txnbuild.ChangeTrust:
			if ca, ok := o.Line.(txnbuild.ChangeTrustAssetWrapper); ok && hit(ca.Asset) {
				return true
			}
		}
	}
	return false
}
