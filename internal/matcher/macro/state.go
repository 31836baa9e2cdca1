// Package macro implements the macro matcher: a real-rate index mark price
// widened by a regime-scaled spread and a keeper-supplied signal adjustment.
package macro

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// Magic is "MACOMATC".
const Magic uint64 = 0x4d41_434f_4d41_5443

const (
	StalenessSlots = 150

	// RateOffsetBps shifts the real rate so realistic rates give a positive mark.
	RateOffsetBps int64 = 500
)

// Signal severities shared with the event matcher.
const (
	SignalNone uint64 = iota
	SignalLow
	SignalHigh
	SignalCritical
)

var (
	BaseSpread       = ctxrecord.U32("base_spread_bps", 112)
	RegimeSpread     = ctxrecord.U32("regime_spread_bps", 116)
	MaxSpread        = ctxrecord.U32("max_spread_bps", 120)
	ImpactK          = ctxrecord.U32("impact_k_bps", 124)
	CurrentIndex     = ctxrecord.U64("current_index_e6", 128)
	IndexComponents  = ctxrecord.U64("index_components_packed", 136)
	LastUpdateSlot   = ctxrecord.U64("last_update_slot", 144)
	RegimeField      = ctxrecord.U8("regime", 152)
	SignalSeverity   = ctxrecord.U64("signal_severity", 160)
	SignalAdjustment = ctxrecord.U64("signal_adjusted_spread_bps", 168)
	Liquidity        = ctxrecord.U128("liquidity_notional_e6", 176)
	MaxFill          = ctxrecord.U128("max_fill_abs", 192)
	MacroOracle      = ctxrecord.Key("macro_oracle", 208)
	TotalVolume      = ctxrecord.U128("total_volume_e6", 240)
	TotalTrades      = ctxrecord.U64("total_trades", 256)
)

const reservedFrom = 264

var Schema = ctxrecord.MustRegister(ctxrecord.Schema{
	Name:  "macro",
	Magic: Magic,
	Fields: []ctxrecord.FieldDesc{
		BaseSpread.FieldDesc,
		RegimeSpread.FieldDesc,
		MaxSpread.FieldDesc,
		ImpactK.FieldDesc,
		CurrentIndex.FieldDesc,
		IndexComponents.FieldDesc,
		LastUpdateSlot.FieldDesc,
		RegimeField.FieldDesc,
		SignalSeverity.FieldDesc,
		SignalAdjustment.FieldDesc,
		Liquidity.FieldDesc,
		MaxFill.FieldDesc,
		MacroOracle.FieldDesc,
		TotalVolume.FieldDesc,
		TotalTrades.FieldDesc,
	},
	ReservedFrom: reservedFrom,
})

type Regime uint8

const (
	RegimeExpansion Regime = iota
	RegimeStagnation
	RegimeCrisis
	RegimeRecovery
)

// RegimeFromByte reads a stored regime; anything out of range is Stagnation.
func RegimeFromByte(v uint8) Regime {
	if v > uint8(RegimeRecovery) {
		return RegimeStagnation
	}
	return Regime(v)
}

func (r Regime) Valid() bool { return r <= RegimeRecovery }

func (r Regime) Multiplier() uint64 {
	switch r {
	case RegimeExpansion:
		return 60
	case RegimeCrisis:
		return 200
	case RegimeRecovery:
		return 125
	default:
		return 100
	}
}

func (r Regime) String() string {
	switch r {
	case RegimeExpansion:
		return "expansion"
	case RegimeStagnation:
		return "stagnation"
	case RegimeCrisis:
		return "crisis"
	case RegimeRecovery:
		return "recovery"
	default:
		return "invalid"
	}
}

// Components unpacks the index components: nominal rate in the high 32 bits,
// inflation in the low 32 bits.
type Components struct {
	NominalBps   uint32
	InflationBps uint32
}

func UnpackComponents(packed uint64) Components {
	return Components{NominalBps: uint32(packed >> 32), InflationBps: uint32(packed)}
}

func (c Components) Pack() uint64 {
	return uint64(c.NominalBps)<<32 | uint64(c.InflationBps)
}

type State struct {
	ctxrecord.Header
	BaseSpreadBps    uint32
	RegimeSpreadBps  uint32
	MaxSpreadBps     uint32
	ImpactKBps       uint32
	CurrentIndex     uint64
	Components       Components
	LastUpdateSlot   uint64
	Regime           Regime
	SignalSeverity   uint64
	SignalAdjustment uint64
	Liquidity        uint128.Uint128
	MaxFill          uint128.Uint128
	MacroOracle      solana.PublicKey
	TotalVolume      uint128.Uint128
	TotalTrades      uint64
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
		Header:           header,
		BaseSpreadBps:    BaseSpread.Get(b),
		RegimeSpreadBps:  RegimeSpread.Get(b),
		MaxSpreadBps:     MaxSpread.Get(b),
		ImpactKBps:       ImpactK.Get(b),
		CurrentIndex:     CurrentIndex.Get(b),
		Components:       UnpackComponents(IndexComponents.Get(b)),
		LastUpdateSlot:   LastUpdateSlot.Get(b),
		Regime:           RegimeFromByte(RegimeField.Get(b)),
		SignalSeverity:   SignalSeverity.Get(b),
		SignalAdjustment: SignalAdjustment.Get(b),
		Liquidity:        Liquidity.Get(b),
		MaxFill:          MaxFill.Get(b),
		MacroOracle:      MacroOracle.Get(b),
		TotalVolume:      TotalVolume.Get(b),
		TotalTrades:      TotalTrades.Get(b),
	}, nil
}
