package solver

import "github.com/coldbell/matchers/internal/ctxrecord"

// TotalSpread is min(base + fee, max).
func TotalSpread(baseBps, feeBps, maxBps uint32) uint64 {
	return ctxrecord.CappedSpread(ctxrecord.SaturatingAdd64(uint64(baseBps), uint64(feeBps)), maxBps)
}

// Quote prices a trade against st without touching the record.
func Quote(st State) (price, spread uint64, err error) {
	if st.OraclePrice == 0 {
		return 0, 0, ErrOraclePriceNotSet
	}
	spread = TotalSpread(st.BaseSpreadBps, st.SolverFeeBps, st.MaxSpreadBps)
	price, err = ctxrecord.ComputeSpreadPrice(st.OraclePrice, spread)
	if err != nil {
		return 0, 0, ErrArithmeticOverflow
	}
	return price, spread, nil
}
