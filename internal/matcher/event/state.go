// Package event implements the event matcher for binary prediction markets.
// Spreads widen toward the 0% and 100% extremes, and a terminal resolution
// freezes the market at its outcome.
package event

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// Magic is "EVNTMATC".
const Magic uint64 = 0x4556_4e54_4d41_5443

const (
	StalenessSlots = 200

	// MaxProbability is 100% in e6 fixed point.
	MaxProbability uint64 = 1_000_000
)

const (
	SignalNone uint64 = iota
	SignalLow
	SignalHigh
	SignalCritical
)

const (
	OutcomeNo  uint8 = 0
	OutcomeYes uint8 = 1
)

var (
	BaseSpread          = ctxrecord.U32("base_spread_bps", 112)
	EdgeSpread          = ctxrecord.U32("edge_spread_bps", 116)
	MaxSpread           = ctxrecord.U32("max_spread_bps", 120)
	ImpactK             = ctxrecord.U32("impact_k_bps", 124)
	CurrentProbability  = ctxrecord.U64("current_probability_e6", 128)
	ProbabilityMark     = ctxrecord.U64("probability_mark_e6", 136)
	LastUpdateSlot      = ctxrecord.U64("last_update_slot", 144)
	ResolutionTimestamp = ctxrecord.I64("resolution_timestamp", 152)
	Resolved            = ctxrecord.U8("is_resolved", 160)
	ResolutionOutcome   = ctxrecord.U8("resolution_outcome", 161)
	SignalSeverity      = ctxrecord.U64("signal_severity", 168)
	SignalAdjustment    = ctxrecord.U64("signal_adjusted_spread_bps", 176)
	Liquidity           = ctxrecord.U128("liquidity_notional_e6", 184)
	MaxFill             = ctxrecord.U128("max_fill_abs", 200)
	EventOracle         = ctxrecord.Key("event_oracle", 216)
)

const reservedFrom = 248

var Schema = ctxrecord.MustRegister(ctxrecord.Schema{
	Name:  "event",
	Magic: Magic,
	Fields: []ctxrecord.FieldDesc{
		BaseSpread.FieldDesc,
		EdgeSpread.FieldDesc,
		MaxSpread.FieldDesc,
		ImpactK.FieldDesc,
		CurrentProbability.FieldDesc,
		ProbabilityMark.FieldDesc,
		LastUpdateSlot.FieldDesc,
		ResolutionTimestamp.FieldDesc,
		Resolved.FieldDesc,
		ResolutionOutcome.FieldDesc,
		SignalSeverity.FieldDesc,
		SignalAdjustment.FieldDesc,
		Liquidity.FieldDesc,
		MaxFill.FieldDesc,
		EventOracle.FieldDesc,
	},
	ReservedFrom: reservedFrom,
})

type State struct {
	ctxrecord.Header
	BaseSpreadBps       uint32
	EdgeSpreadBps       uint32
	MaxSpreadBps        uint32
	ImpactKBps          uint32
	Probability         uint64
	ProbabilityMark     uint64
	LastUpdateSlot      uint64
	ResolutionTimestamp int64
	Resolved            bool
	Outcome             uint8
	SignalSeverity      uint64
	SignalAdjustment    uint64
	Liquidity           uint128.Uint128
	MaxFill             uint128.Uint128
	EventOracle         solana.PublicKey
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
		Header:              header,
		BaseSpreadBps:       BaseSpread.Get(b),
		EdgeSpreadBps:       EdgeSpread.Get(b),
		MaxSpreadBps:        MaxSpread.Get(b),
		ImpactKBps:          ImpactK.Get(b),
		Probability:         CurrentProbability.Get(b),
		ProbabilityMark:     ProbabilityMark.Get(b),
		LastUpdateSlot:      LastUpdateSlot.Get(b),
		ResolutionTimestamp: ResolutionTimestamp.Get(b),
		Resolved:            Resolved.Get(b) == 1,
		Outcome:             ResolutionOutcome.Get(b),
		SignalSeverity:      SignalSeverity.Get(b),
		SignalAdjustment:    SignalAdjustment.Get(b),
		Liquidity:           Liquidity.Get(b),
		MaxFill:             MaxFill.Get(b),
		EventOracle:         EventOracle.Get(b),
	}, nil
}
