package horizon

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/xdr"
)

func toBalanceRecord(cb hProtocol.ClaimableBalance) (domain.BalanceRecord, error) {
	asset, err := domain.ParseAsset(cb.Asset)
	if err != nil {
		return domain.BalanceRecord{}, err
	}
	amount, err := decimal.NewFromString(cb.Amount)
	if err != nil {
		return domain.BalanceRecord{}, fmt.Errorf("parse amount %q: %w", cb.Amount, err)
	}

	claimants := make([]domain.Claimant, 0, len(cb.Claimants))
	for _, cl := range cb.Claimants {
		claimants = append(claimants, domain.Claimant{
			Destination: cl.Destination,
			Predicate:   toPredicate(cl.Predicate),
		})
	}

	return domain.BalanceRecord{
		ID:                 cb.BalanceID,
		Asset:              asset,
		Amount:             amount,
		Sponsor:            cb.Sponsor,
		Claimants:          claimants,
		LastModifiedLedger: cb.LastModifiedLedger,
		PagingToken:        cb.PT,
	}, nil
}

// toPredicate recognizes the three shapes governance balances use and maps
// everything else to PredicateOther.
func toPredicate(p xdr.ClaimPredicate) domain.Predicate {
	switch p.Type {
	case xdr.ClaimPredicateTypeClaimPredicateUnconditional:
		return domain.Unconditional()
	case xdr.ClaimPredicateTypeClaimPredicateNot:
		if p.NotPredicate == nil || *p.NotPredicate == nil {
			return domain.Predicate{Kind: domain.PredicateOther}
		}
		inner := **p.NotPredicate
		switch inner.Type {
		case xdr.ClaimPredicateTypeClaimPredicateUnconditional:
			return domain.Never()
		case xdr.ClaimPredicateTypeClaimPredicateBeforeAbsoluteTime:
			if inner.AbsBefore != nil {
				return domain.NotBefore(time.Unix(int64(*inner.AbsBefore), 0))
			}
		}
	}
	return domain.Predicate{Kind: domain.PredicateOther}
}

func toAccountState(acc hProtocol.Account) (domain.AccountState, error) {
	seq, err := acc.GetSequenceNumber()
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("sequence: %w", err)
	}

	signers := make([]domain.Signer, 0, len(acc.Signers))
	for _, s := range acc.Signers {
		signers = append(signers, domain.Signer{Key: s.Key, Weight: s.Weight})
	}

	balances := make(map[domain.Asset]decimal.Decimal, len(acc.Balances))
	for _, b := range acc.Balances {
		amount, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return domain.AccountState{}, fmt.Errorf("balance %s: %w", b.Code, err)
		}
		switch b.Type {
		case "native":
			balances[domain.NativeAsset] = amount
		case "credit_alphanum4", "credit_alphanum12":
			balances[domain.Asset{Code: b.Code, Issuer: b.Issuer}] = amount
		}
	}

	return domain.AccountState{
		AccountID: acc.AccountID,
		Sequence:  seq,
		Profile: domain.SignerThresholdProfile{
			AccountID: acc.AccountID,
			Low:       acc.Thresholds.LowThreshold,
			Med:       acc.Thresholds.MedThreshold,
			High:      acc.Thresholds.HighThreshold,
			Signers:   signers,
		},
		Balances: balances,
	}, nil
}
