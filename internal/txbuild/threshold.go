package txbuild

import (
	"fmt"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// ThresholdLevel is the signing threshold category an operation requires.
type ThresholdLevel int

const (
	ThresholdLow ThresholdLevel = iota + 1
	ThresholdMedium
	ThresholdHigh
	// thresholdDepends marks operations whose level is decided by their body.
	thresholdDepends
)

func (l ThresholdLevel) String() string {
	switch l {
	case ThresholdLow:
		return "low"
	case ThresholdMedium:
		return "medium"
	case ThresholdHigh:
		return "high"
	default:
		return "depends"
	}
}

var operationThresholds = map[xdr.OperationType]ThresholdLevel{
	xdr.OperationTypeCreateAccount:                 ThresholdMedium,
	xdr.OperationTypePayment:                       ThresholdMedium,
	xdr.OperationTypePathPaymentStrictReceive:      ThresholdMedium,
	xdr.OperationTypePathPaymentStrictSend:         ThresholdMedium,
	xdr.OperationTypeManageSellOffer:               ThresholdMedium,
	xdr.OperationTypeManageBuyOffer:                ThresholdMedium,
	xdr.OperationTypeCreatePassiveSellOffer:        ThresholdMedium,
	xdr.OperationTypeSetOptions:                    thresholdDepends,
	xdr.OperationTypeChangeTrust:                   ThresholdMedium,
	xdr.OperationTypeAllowTrust:                    ThresholdLow,
	xdr.OperationTypeAccountMerge:                  ThresholdHigh,
	xdr.OperationTypeInflation:                     ThresholdLow,
	xdr.OperationTypeManageData:                    ThresholdMedium,
	xdr.OperationTypeBumpSequence:                  ThresholdLow,
	xdr.OperationTypeCreateClaimableBalance:        ThresholdMedium,
	xdr.OperationTypeClaimClaimableBalance:         ThresholdLow,
	xdr.OperationTypeBeginSponsoringFutureReserves: ThresholdMedium,
	xdr.OperationTypeEndSponsoringFutureReserves:   ThresholdMedium,
	xdr.OperationTypeRevokeSponsorship:             ThresholdMedium,
	xdr.OperationTypeClawback:                      ThresholdMedium,
	xdr.OperationTypeClawbackClaimableBalance:      ThresholdMedium,
	xdr.OperationTypeSetTrustLineFlags:             ThresholdLow,
	xdr.OperationTypeLiquidityPoolDeposit:          ThresholdMedium,
	xdr.OperationTypeLiquidityPoolWithdraw:         ThresholdMedium,
}

// RequiredThreshold returns the highest threshold level any of ops needs.
// An operation type missing from the table is an error rather than a guess.
func RequiredThreshold(ops []xdr.Operation) (ThresholdLevel, error) {
	level := ThresholdLow
	for i, op := range ops {
		l, ok := operationThresholds[op.Body.Type]
		if !ok {
			return 0, fmt.Errorf("txbuild: operation %d (%d): %w", i, int32(op.Body.Type), domain.ErrUnknownOperation)
		}
		if l == thresholdDepends {
			l = setOptionsThreshold(op.Body)
		}
		if l > level {
			level = l
		}
	}
	return level, nil
}

// setOptionsThreshold is high when the operation changes who can sign or how
// much weight signing needs, medium otherwise.
func setOptionsThreshold(body xdr.OperationBody) ThresholdLevel {
	so, ok := body.GetSetOptionsOp()
	if !ok {
		return ThresholdHigh
	}
	if so.MasterWeight != nil || so.LowThreshold != nil || so.MedThreshold != nil ||
		so.HighThreshold != nil || so.Signer != nil {
		return ThresholdHigh
	}
	return ThresholdMedium
}

func thresholdFor(p domain.SignerThresholdProfile, l ThresholdLevel) int32 {
	switch l {
	case ThresholdLow:
		return int32(p.Low)
	case ThresholdMedium:
		return int32(p.Med)
	default:
		return int32(p.High)
	}
}

// RequiresUnsupportedMultisig reports whether the account's own key lacks the
// weight to sign ops alone, meaning additional signers would be needed.
// Operations sourced from another account are authorized by that account's
// signature and are not counted.
func RequiresUnsupportedMultisig(ops []txnbuild.Operation, profile domain.SignerThresholdProfile) (bool, error) {
	xops := make([]xdr.Operation, 0, len(ops))
	for i, op := range ops {
		if src := op.GetSourceAccount(); src != "" && src != profile.AccountID {
			continue
		}
		x, err := op.BuildXDR()
		if err != nil {
			return false, fmt.Errorf("txbuild: operation %d: %w", i, err)
		}
		xops = append(xops, x)
	}
	return requiresMultisigXDR(xops, profile)
}

func requiresMultisigXDR(ops []xdr.Operation, profile domain.SignerThresholdProfile) (bool, error) {
	level, err := RequiredThreshold(ops)
	if err != nil {
		return false, err
	}
	return profile.MasterWeight() < thresholdFor(profile, level), nil
}

// CheckSigningWeight returns ErrInsufficientSigningWeight when the account
// cannot sign ops with its own key.
func CheckSigningWeight(ops []txnbuild.Operation, profile domain.SignerThresholdProfile) error {
	blocked, err := RequiresUnsupportedMultisig(ops, profile)
	if err != nil {
		return err
	}
	if blocked {
		return fmt.Errorf("txbuild: account %s: %w", profile.AccountID, domain.ErrInsufficientSigningWeight)
	}
	return nil
}
