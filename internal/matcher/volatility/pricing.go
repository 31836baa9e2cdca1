package volatility

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// TotalSpread is min(base + vov*multiplier/100, max).
func TotalSpread(baseBps, vovBps, maxBps uint32, regime Regime) uint64 {
	adjusted := uint64(vovBps) * regime.Multiplier() / 100
	return ctxrecord.CappedSpread(ctxrecord.SaturatingAdd64(uint64(baseBps), adjusted), maxBps)
}

// Quote prices against the stored mark at slot without touching the record.
func Quote(st State, slot uint64) (price, spread uint64, err error) {
	if st.VolMark == 0 {
		return 0, 0, ErrOracleNotSynced
	}
	if age := ctxrecord.SlotsSince(slot, st.LastUpdateSlot); age > StalenessSlots {
		return 0, 0, errorsmod.Wrapf(ErrOracleStale, "last sync slot %d, now %d", st.LastUpdateSlot, slot)
	}
	spread = TotalSpread(st.BaseSpreadBps, st.VovSpreadBps, st.MaxSpreadBps, st.Regime)
	price, err = ctxrecord.ComputeSpreadPrice(st.VolMark, spread)
	if err != nil {
		return 0, 0, ErrArithmeticOverflow
	}
	return price, spread, nil
}
