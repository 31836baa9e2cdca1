package event

import (
	errorsmod "cosmossdk.io/errors"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

const (
	// UnitEdgeFactor is 1x in e6.
	UnitEdgeFactor uint64 = 1_000_000
	MaxEdgeFactor  uint64 = 10_000_000

	edgeDenominatorScale uint64 = 1_000_000_000_000
)

// EdgeFactor is 1/(4p(1-p)) in e6, capped at 10x. It is exactly 1x at 50%
// and saturates whenever 4pq < 1e12.
func EdgeFactor(probability uint64) uint64 {
	q := ctxrecord.SaturatingSub64(MaxProbability, probability)
	denominator := uint128.From64(probability).Mul64(q).Mul64(4).Div64(edgeDenominatorScale)
	if denominator.IsZero() {
		return MaxEdgeFactor
	}
	factor := uint128.From64(UnitEdgeFactor).Div(denominator)
	if factor.Cmp64(MaxEdgeFactor) > 0 {
		return MaxEdgeFactor
	}
	return factor.Lo
}

// AdjustedEdge is edgeSpread * EdgeFactor(p) / 1e6.
func AdjustedEdge(edgeSpreadBps uint32, probability uint64) uint64 {
	return uint128.From64(uint64(edgeSpreadBps)).Mul64(EdgeFactor(probability)).Div64(UnitEdgeFactor).Lo
}

// TotalSpread is min(base + adjusted edge + signal, max).
func TotalSpread(baseBps, edgeBps, maxBps uint32, probability, signalBps uint64) uint64 {
	total := ctxrecord.SaturatingAdd64(uint64(baseBps), AdjustedEdge(edgeBps, probability))
	total = ctxrecord.SaturatingAdd64(total, signalBps)
	return ctxrecord.CappedSpread(total, maxBps)
}

// Quote prices a trade at slot. Resolution is checked before the
// probability so a settled NO market reports MarketResolved, not
// ProbabilityNotSet.
func Quote(st State, slot uint64) (price, spread uint64, err error) {
	if st.Resolved {
		return 0, 0, ErrMarketResolved
	}
	if st.Probability == 0 {
		return 0, 0, ErrProbabilityNotSet
	}
	if ctxrecord.SlotsSince(slot, st.LastUpdateSlot) > StalenessSlots {
		return 0, 0, errorsmod.Wrapf(ErrOracleStale, "last sync slot %d, now %d", st.LastUpdateSlot, slot)
	}
	spread = TotalSpread(st.BaseSpreadBps, st.EdgeSpreadBps, st.MaxSpreadBps, st.Probability, st.SignalAdjustment)
	price, err = ctxrecord.ComputeSpreadPrice(st.Probability, spread)
	if err != nil {
		return 0, 0, ErrArithmeticOverflow
	}
	return price, spread, nil
}

// FinalProbability is the permanent probability for a resolved outcome.
func FinalProbability(outcome uint8) uint64 {
	if outcome == OutcomeYes {
		return MaxProbability
	}
	return 0
}
