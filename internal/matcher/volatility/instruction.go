package volatility

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

const OpOracleSync = ctxrecord.OpSync

// InitParams is the 113-byte Init payload after the opcode.
type InitParams struct {
	Mode            uint8            `yaml:"mode"`
	BaseSpreadBps   uint32           `yaml:"base_spread_bps"`
	VovSpreadBps    uint32           `yaml:"vov_spread_bps"`
	MaxSpreadBps    uint32           `yaml:"max_spread_bps"`
	ImpactKBps      uint32           `yaml:"impact_k_bps"`
	Liquidity       uint128.Uint128  `yaml:"-"`
	MaxFill         uint128.Uint128  `yaml:"-"`
	VarianceTracker solana.PublicKey `yaml:"-"`
	VolIndex        solana.PublicKey `yaml:"-"`
}

// SyncParams is the OracleSync payload: [1..9] vol, [9..17] mark, [17]
// regime, [18..26] 7d average, [26..34] 30d average.
type SyncParams struct {
	CurrentVolBps uint64 `yaml:"current_vol_bps"`
	VolMark       uint64 `yaml:"vol_mark_e6"`
	Regime        uint8  `yaml:"regime"`
	Vol7dAvgBps   uint64 `yaml:"vol_7d_avg_bps"`
	Vol30dAvgBps  uint64 `yaml:"vol_30d_avg_bps"`
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

func NewMatchInstruction(programID, lp, context solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, true),
		solana.NewAccountMeta(context, true, false),
	}, ctxrecord.MatchPayload(nil))
}

// NewOracleSyncInstruction accounts: context (writable), variance tracker, vol index.
func NewOracleSyncInstruction(programID, context, varianceTracker, volIndex solana.PublicKey, params SyncParams) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(OpOracleSync, params)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(context, true, false),
		solana.NewAccountMeta(varianceTracker, false, false),
		solana.NewAccountMeta(volIndex, false, false),
	}, data), nil
}
