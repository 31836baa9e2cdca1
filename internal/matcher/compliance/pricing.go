package compliance

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// DayWindowSeconds is the length of the daily volume window.
const DayWindowSeconds = 86_400

// DayRolledOver reports whether now is past the day window that started at
// reset. Only strictly later times roll over, so the counter never resets
// backwards.
func DayRolledOver(now, reset int64) bool {
	if now <= reset {
		return false
	}
	return uint64(now)-uint64(reset) > DayWindowSeconds
}

// EffectiveDayVolume is the running volume as of now.
func EffectiveDayVolume(st State, now int64) uint64 {
	if DayRolledOver(now, st.DayResetTimestamp) {
		return 0
	}
	return st.CurrentDayVolume
}

// NextDayVolume returns the volume counter and reset timestamp after a trade
// of size at now.
func NextDayVolume(st State, now int64, size uint64) (volume uint64, reset int64) {
	if DayRolledOver(now, st.DayResetTimestamp) {
		return size, now
	}
	return ctxrecord.SaturatingAdd64(st.CurrentDayVolume, size), st.DayResetTimestamp
}

// Participants carries the whitelist entries supplied with a match. Either
// may be nil.
type Participants struct {
	User         *WhitelistEntry
	Counterparty *WhitelistEntry
}

// CheckCompliance runs the gate for a trade of size at unix time now and
// returns the KYC level that prices it.
func CheckCompliance(st State, p Participants, now int64, size uint64) (KycLevel, error) {
	if p.User == nil {
		if st.MinKycLevel > KycBasic {
			return KycBasic, errorsmod.Wrap(ErrInsufficientKycLevel, "kyc required but no whitelist entry supplied")
		}
		return KycBasic, nil
	}
	user := p.User
	if user.KycLevel < st.MinKycLevel {
		return KycBasic, errorsmod.Wrapf(ErrInsufficientKycLevel, "%s < %s", user.KycLevel, st.MinKycLevel)
	}
	if now > user.Expiry {
		return KycBasic, errorsmod.Wrapf(ErrKycExpired, "now %d > expiry %d", now, user.Expiry)
	}
	if IsBlocked(st.BlockedJurisdictions, user.Jurisdiction) {
		return KycBasic, errorsmod.Wrapf(ErrJurisdictionBlocked, "jurisdiction %d mask %#02x", user.Jurisdiction, st.BlockedJurisdictions)
	}
	if st.DailyVolumeCap > 0 {
		volume := EffectiveDayVolume(st, now)
		if ctxrecord.SaturatingAdd64(volume, size) > st.DailyVolumeCap {
			return KycBasic, errorsmod.Wrapf(ErrDailyVolumeLimitExceeded, "%d + %d > %d", volume, size, st.DailyVolumeCap)
		}
	}
	if st.RequireSameJurisdiction && p.Counterparty != nil && user.Jurisdiction != p.Counterparty.Jurisdiction {
		return KycBasic, errorsmod.Wrapf(ErrJurisdictionMismatch, "user %d counterparty %d", user.Jurisdiction, p.Counterparty.Jurisdiction)
	}
	return user.KycLevel, nil
}

// EffectiveSpread is min(base - discount, max), with the discount applied
// only at the institutional tier.
func EffectiveSpread(baseBps, discountBps, maxBps uint32, level KycLevel) uint64 {
	discount := uint64(0)
	if level >= KycInstitutional {
		discount = uint64(discountBps)
	}
	return ctxrecord.CappedSpread(ctxrecord.SaturatingSub64(uint64(baseBps), discount), maxBps)
}

// Quote prices a trade for a participant at level.
func Quote(st State, level KycLevel) (price, spread uint64, err error) {
	if st.OraclePrice == 0 {
		return 0, 0, ErrOraclePriceNotSet
	}
	spread = EffectiveSpread(st.BaseSpreadBps, st.KycDiscountBps, st.MaxSpreadBps, level)
	price, err = ctxrecord.ComputeSpreadPrice(st.OraclePrice, spread)
	if err != nil {
		return 0, 0, ErrArithmeticOverflow
	}
	return price, spread, nil
}
