package accounting

import (
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/shopspring/decimal"
)

// BoostParams are the protocol constants of the boost formula.
type BoostParams struct {
	MaxLockPeriod time.Duration
	MaxBoost      decimal.Decimal
}

// ValueContext carries market data and the optional window bounds used when
// valuing locks. A zero WindowStart means the reference time; a zero Cutoff
// means WindowStart + MaxLockPeriod.
type ValueContext struct {
	ReferencePrice      decimal.Decimal
	TotalPortfolioValue decimal.Decimal
	WindowStart         time.Time
	Cutoff              time.Time
}

// Boost is the result of a boost computation.
type Boost struct {
	LockedAmount            decimal.Decimal
	LockedValue             decimal.Decimal
	WeightedAverageLockTime time.Duration
	TimeLockMultiplier      decimal.Decimal
	ValueLockMultiplier     decimal.Decimal
	Multiplier              decimal.Decimal
	Boost                   decimal.Decimal
}

// BoostCalculator computes time- and value-weighted lock boosts.
type BoostCalculator struct {
	params BoostParams
}

// NewBoostCalculator creates a calculator for the given constants.
func NewBoostCalculator(params BoostParams) *BoostCalculator {
	return &BoostCalculator{params: params}
}

var (
	decOne  = decimal.NewFromInt(1)
	decZero = decimal.Zero
)

// Compute derives the boost for locks at reference. It never fails: empty or
// zero-valued inputs yield a zero boost.
func (b *BoostCalculator) Compute(locks []domain.Lock, reference time.Time, vc ValueContext) Boost {
	out := Boost{
		LockedAmount:        decZero,
		LockedValue:         decZero,
		TimeLockMultiplier:  decZero,
		ValueLockMultiplier: decZero,
		Multiplier:          decZero,
		Boost:               decZero,
	}

	windowStart := vc.WindowStart
	if windowStart.IsZero() {
		windowStart = reference
	}
	cutoff := vc.Cutoff
	if cutoff.IsZero() {
		cutoff = windowStart.Add(b.params.MaxLockPeriod)
	}

	weighted := decZero
	total := decZero
	for _, l := range locks {
		if !l.Amount.IsPositive() {
			continue
		}
		end := l.LockUntil
		if end.After(cutoff) {
			end = cutoff
		}
		period := end.Sub(windowStart)
		if period < 0 {
			period = 0
		}
		weighted = weighted.Add(decimal.NewFromInt(period.Milliseconds()).Mul(l.Amount))
		total = total.Add(l.Amount)
	}
	if total.IsZero() {
		return out
	}
	out.LockedAmount = total

	avgMs := weighted.Div(total)
	out.WeightedAverageLockTime = time.Duration(avgMs.IntPart()) * time.Millisecond

	maxMs := decimal.NewFromInt(b.params.MaxLockPeriod.Milliseconds())
	if maxMs.IsPositive() {
		out.TimeLockMultiplier = clamp01(decimal.Min(maxMs, avgMs).Div(maxMs))
	}

	out.LockedValue = total.Mul(vc.ReferencePrice)
	unlocked := vc.TotalPortfolioValue.Sub(out.LockedValue)
	if unlocked.IsPositive() {
		out.ValueLockMultiplier = clamp01(decimal.Min(out.LockedValue, unlocked).Div(unlocked))
	}

	out.Multiplier = out.TimeLockMultiplier.Mul(out.ValueLockMultiplier)
	out.Boost = out.Multiplier.Mul(b.params.MaxBoost)
	return out
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decZero
	}
	if d.GreaterThan(decOne) {
		return decOne
	}
	return d
}
