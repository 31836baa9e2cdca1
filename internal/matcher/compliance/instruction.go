package compliance

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

const OpOracleUpdate = ctxrecord.OpSync

// InitParams is the 93-byte Init payload after the opcode.
type InitParams struct {
	Mode                    uint8            `yaml:"mode"`
	MinKycLevel             uint8            `yaml:"min_kyc_level"`
	RequireSameJurisdiction uint8            `yaml:"require_same_jurisdiction"`
	KycRegistry             solana.PublicKey `yaml:"-"`
	BaseSpreadBps           uint32           `yaml:"base_spread_bps"`
	KycDiscountBps          uint32           `yaml:"kyc_discount_bps"`
	MaxSpreadBps            uint32           `yaml:"max_spread_bps"`
	BlockedJurisdictions    uint8            `yaml:"blocked_jurisdictions"`
	DailyVolumeCap          uint64           `yaml:"daily_volume_cap"`
	ImpactKBps              uint32           `yaml:"impact_k_bps"`
	Liquidity               uint128.Uint128  `yaml:"-"`
	MaxFill                 uint128.Uint128  `yaml:"-"`
}

type OracleUpdateParams struct {
	Price uint64 `yaml:"price_e6"`
}

// NewInitInstruction accounts: LP, context (writable).
func NewInitInstruction(programID, lp, context solana.PublicKey, params InitParams) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(ctxrecord.OpInit, params)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, false),
		solana.NewAccountMeta(context, true, false),
	}, data), nil
}

// NewMatchInstruction accounts: LP (signer), context (writable), then the
// optional user and LP-owner whitelist entries in that order.
func NewMatchInstruction(programID, lp, context solana.PublicKey, tradeSize *uint64, whitelists ...solana.PublicKey) solana.Instruction {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, true),
		solana.NewAccountMeta(context, true, false),
	}
	for _, wl := range whitelists {
		metas = append(metas, solana.NewAccountMeta(wl, false, false))
	}
	return solana.NewInstruction(programID, metas, ctxrecord.MatchPayload(tradeSize))
}

// NewOracleUpdateInstruction accounts: authority (signer), context (writable).
func NewOracleUpdateInstruction(programID, authority, context solana.PublicKey, price uint64) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(OpOracleUpdate, OracleUpdateParams{Price: price})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(context, true, false),
	}, data), nil
}
