// Package volatility implements the volatility matcher: a volatility mark
// price widened by a vol-of-vol spread scaled by the current regime.
package volatility

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// Magic is "VOLMATCH".
const Magic uint64 = 0x564F_4c4d_4154_4348

// StalenessSlots is the oldest oracle sync Match accepts.
const StalenessSlots = 100

var (
	BaseSpread      = ctxrecord.U32("base_spread_bps", 112)
	VovSpread       = ctxrecord.U32("vov_spread_bps", 116)
	MaxSpread       = ctxrecord.U32("max_spread_bps", 120)
	ImpactK         = ctxrecord.U32("impact_k_bps", 124)
	CurrentVol      = ctxrecord.U64("current_vol_bps", 128)
	VolMark         = ctxrecord.U64("vol_mark_price_e6", 136)
	LastUpdateSlot  = ctxrecord.U64("last_update_slot", 144)
	RegimeField     = ctxrecord.U8("regime", 152)
	Vol7dAvg        = ctxrecord.U64("vol_7d_avg_bps", 160)
	Vol30dAvg       = ctxrecord.U64("vol_30d_avg_bps", 168)
	Liquidity       = ctxrecord.U128("liquidity_notional_e6", 176)
	MaxFill         = ctxrecord.U128("max_fill_abs", 192)
	VarianceTracker = ctxrecord.Key("variance_tracker", 208)
	VolIndex        = ctxrecord.Key("vol_index", 240)
)

const reservedFrom = 272

var Schema = ctxrecord.MustRegister(ctxrecord.Schema{
	Name:  "volatility",
	Magic: Magic,
	Fields: []ctxrecord.FieldDesc{
		BaseSpread.FieldDesc,
		VovSpread.FieldDesc,
		MaxSpread.FieldDesc,
		ImpactK.FieldDesc,
		CurrentVol.FieldDesc,
		VolMark.FieldDesc,
		LastUpdateSlot.FieldDesc,
		RegimeField.FieldDesc,
		Vol7dAvg.FieldDesc,
		Vol30dAvg.FieldDesc,
		Liquidity.FieldDesc,
		MaxFill.FieldDesc,
		VarianceTracker.FieldDesc,
		VolIndex.FieldDesc,
	},
	ReservedFrom: reservedFrom,
})

type Regime uint8

const (
	RegimeVeryLow Regime = iota
	RegimeLow
	RegimeNormal
	RegimeHigh
	RegimeExtreme
)

// RegimeFromByte reads a stored regime; anything out of range is Normal.
func RegimeFromByte(v uint8) Regime {
	if v > uint8(RegimeExtreme) {
		return RegimeNormal
	}
	return Regime(v)
}

func (r Regime) Valid() bool { return r <= RegimeExtreme }

// Multiplier is the percent applied to the vol-of-vol spread.
func (r Regime) Multiplier() uint64 {
	switch r {
	case RegimeVeryLow:
		return 50
	case RegimeLow:
		return 75
	case RegimeHigh:
		return 150
	case RegimeExtreme:
		return 250
	default:
		return 100
	}
}

func (r Regime) String() string {
	switch r {
	case RegimeVeryLow:
		return "very_low"
	case RegimeLow:
		return "low"
	case RegimeNormal:
		return "normal"
	case RegimeHigh:
		return "high"
	case RegimeExtreme:
		return "extreme"
	default:
		return "invalid"
	}
}

type State struct {
	ctxrecord.Header
	BaseSpreadBps   uint32
	VovSpreadBps    uint32
	MaxSpreadBps    uint32
	ImpactKBps      uint32
	CurrentVolBps   uint64
	VolMark         uint64
	LastUpdateSlot  uint64
	Regime          Regime
	Vol7dAvgBps     uint64
	Vol30dAvgBps    uint64
	Liquidity       uint128.Uint128
	MaxFill         uint128.Uint128
	VarianceTracker solana.PublicKey
	VolIndex        solana.PublicKey
}

func Load(b []byte) (State, error) {
	if !ctxrecord.VerifyMagic(b, Magic) {
		return State{}, ctxrecord.ErrUninitialized
	}
	header, err := ctxrecord.ReadHeader(b)
	if err != nil {
		return State{}, err
	}
	return State{
		Header:          header,
		BaseSpreadBps:   BaseSpread.Get(b),
		VovSpreadBps:    VovSpread.Get(b),
		MaxSpreadBps:    MaxSpread.Get(b),
		ImpactKBps:      ImpactK.Get(b),
		CurrentVolBps:   CurrentVol.Get(b),
		VolMark:         VolMark.Get(b),
		LastUpdateSlot:  LastUpdateSlot.Get(b),
		Regime:          RegimeFromByte(RegimeField.Get(b)),
		Vol7dAvgBps:     Vol7dAvg.Get(b),
		Vol30dAvgBps:    Vol30dAvg.Get(b),
		Liquidity:       Liquidity.Get(b),
		MaxFill:         MaxFill.Get(b),
		VarianceTracker: VarianceTracker.Get(b),
		VolIndex:        VolIndex.Get(b),
	}, nil
}
