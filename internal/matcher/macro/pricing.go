package macro

import (
	"math"

	errorsmod "cosmossdk.io/errors"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// TotalSpread is min(base + regimeSpread*multiplier/100 + signal, max).
func TotalSpread(baseBps, regimeSpreadBps, maxBps uint32, regime Regime, signalBps uint64) uint64 {
	adjusted := uint64(regimeSpreadBps) * regime.Multiplier() / 100
	total := ctxrecord.SaturatingAdd64(ctxrecord.SaturatingAdd64(uint64(baseBps), adjusted), signalBps)
	return ctxrecord.CappedSpread(total, maxBps)
}

func Quote(st State, slot uint64) (price, spread uint64, err error) {
	if st.CurrentIndex == 0 {
		return 0, 0, ErrIndexNotSynced
	}
	if ctxrecord.SlotsSince(slot, st.LastUpdateSlot) > StalenessSlots {
		return 0, 0, errorsmod.Wrapf(ErrOracleStale, "last sync slot %d, now %d", st.LastUpdateSlot, slot)
	}
	spread = TotalSpread(st.BaseSpreadBps, st.RegimeSpreadBps, st.MaxSpreadBps, st.Regime, st.SignalAdjustment)
	price, err = ctxrecord.ComputeSpreadPrice(st.CurrentIndex, spread)
	if err != nil {
		return 0, 0, ErrArithmeticOverflow
	}
	return price, spread, nil
}

// MarkPrice maps a real rate in bps to an e6 mark: (rate + 500) * 10_000,
// floored at zero and saturating at the top of the range.
func MarkPrice(realRateBps int64) uint64 {
	if realRateBps <= -RateOffsetBps {
		return 0
	}
	var shifted uint64
	if realRateBps < 0 {
		shifted = uint64(realRateBps + RateOffsetBps)
	} else {
		shifted = uint64(realRateBps) + uint64(RateOffsetBps)
	}
	if shifted > math.MaxUint64/10_000 {
		return math.MaxUint64
	}
	return shifted * 10_000
}

// IndexSyncFromRate builds an IndexSync payload from raw macro inputs. A rate
// that floors the mark to zero would leave the matcher unsynced, so it is
// refused here instead of being pushed on chain.
func IndexSyncFromRate(nominalBps, inflationBps int32, severity, signalSpreadBps uint64) (IndexSyncParams, error) {
	mark := MarkPrice(int64(nominalBps) - int64(inflationBps))
	if mark == 0 {
		return IndexSyncParams{}, errorsmod.Wrapf(ErrInvalidIndexValue, "real rate %d bps", int64(nominalBps)-int64(inflationBps))
	}
	if severity > SignalCritical {
		return IndexSyncParams{}, ErrInvalidSignalSeverity
	}
	return IndexSyncParams{
		Index:           mark,
		Components:      Components{NominalBps: uint32(nominalBps), InflationBps: uint32(inflationBps)}.Pack(),
		SignalSeverity:  severity,
		SignalSpreadBps: signalSpreadBps,
	}, nil
}
