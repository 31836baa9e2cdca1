// Package compliance implements the JPY compliance matcher: KYC, jurisdiction
// and daily-volume gates in front of a discount-adjusted spread.
package compliance

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// Magic is "JPYMATCH".
const Magic uint64 = 0x4A50_594D_4154_4348

const (
	ModePassiveKYC uint8 = 0
	ModeVAMMKYC    uint8 = 1
)

var (
	MinKycLevel             = ctxrecord.U8("min_kyc_level", 77)
	RequireSameJurisdiction = ctxrecord.U8("require_same_jurisdiction", 78)
	KycRegistry             = ctxrecord.Key("kyc_registry", 112)
	BaseSpread              = ctxrecord.U32("base_spread_bps", 144)
	KycDiscount             = ctxrecord.U32("kyc_discount_bps", 148)
	MaxSpread               = ctxrecord.U32("max_spread_bps", 152)
	BlockedJurisdictions    = ctxrecord.U8("blocked_jurisdictions", 156)
	OraclePrice             = ctxrecord.U64("oracle_price_e6", 164)
	DailyVolumeCap          = ctxrecord.U64("daily_volume_cap", 172)
	CurrentDayVolume        = ctxrecord.U64("current_day_volume", 180)
	DayResetTimestamp       = ctxrecord.I64("day_reset_timestamp", 188)
	ImpactK                 = ctxrecord.U32("impact_k_bps", 196)
	Liquidity               = ctxrecord.U128("liquidity_notional_e6", 200)
	MaxFill                 = ctxrecord.U128("max_fill_abs", 216)
)

const reservedFrom = 232

var Schema = ctxrecord.MustRegister(ctxrecord.Schema{
	Name:  "compliance",
	Magic: Magic,
	Fields: []ctxrecord.FieldDesc{
		MinKycLevel.FieldDesc,
		RequireSameJurisdiction.FieldDesc,
		KycRegistry.FieldDesc,
		BaseSpread.FieldDesc,
		KycDiscount.FieldDesc,
		MaxSpread.FieldDesc,
		BlockedJurisdictions.FieldDesc,
		OraclePrice.FieldDesc,
		DailyVolumeCap.FieldDesc,
		CurrentDayVolume.FieldDesc,
		DayResetTimestamp.FieldDesc,
		ImpactK.FieldDesc,
		Liquidity.FieldDesc,
		MaxFill.FieldDesc,
	},
	ReservedFrom: reservedFrom,
})

type State struct {
	ctxrecord.Header
	MinKycLevel             KycLevel
	RequireSameJurisdiction bool
	KycRegistry             solana.PublicKey
	BaseSpreadBps           uint32
	KycDiscountBps          uint32
	MaxSpreadBps            uint32
	BlockedJurisdictions    uint8
	OraclePrice             uint64
	DailyVolumeCap          uint64
	CurrentDayVolume        uint64
	DayResetTimestamp       int64
	ImpactKBps              uint32
	Liquidity               uint128.Uint128
	MaxFill                 uint128.Uint128
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
		Header:                  header,
		MinKycLevel:             KycLevel(MinKycLevel.Get(b)),
		RequireSameJurisdiction: RequireSameJurisdiction.Get(b) == 1,
		KycRegistry:             KycRegistry.Get(b),
		BaseSpreadBps:           BaseSpread.Get(b),
		KycDiscountBps:          KycDiscount.Get(b),
		MaxSpreadBps:            MaxSpread.Get(b),
		BlockedJurisdictions:    BlockedJurisdictions.Get(b),
		OraclePrice:             OraclePrice.Get(b),
		DailyVolumeCap:          DailyVolumeCap.Get(b),
		CurrentDayVolume:        CurrentDayVolume.Get(b),
		DayResetTimestamp:       DayResetTimestamp.Get(b),
		ImpactKBps:              ImpactK.Get(b),
		Liquidity:               Liquidity.Get(b),
		MaxFill:                 MaxFill.Get(b),
	}, nil
}
