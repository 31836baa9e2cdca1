package macro

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

const (
	OpIndexSync    = ctxrecord.OpSync
	OpRegimeUpdate = ctxrecord.OpTerminal
)

type InitParams struct {
	Mode            uint8            `yaml:"mode"`
	BaseSpreadBps   uint32           `yaml:"base_spread_bps"`
	RegimeSpreadBps uint32           `yaml:"regime_spread_bps"`
	MaxSpreadBps    uint32           `yaml:"max_spread_bps"`
	ImpactKBps      uint32           `yaml:"impact_k_bps"`
	Liquidity       uint128.Uint128  `yaml:"-"`
	MaxFill         uint128.Uint128  `yaml:"-"`
	MacroOracle     solana.PublicKey `yaml:"-"`
}

// IndexSyncParams: [1..9] index, [9..17] packed components, [17..25]
// severity, [25..33] signal spread.
type IndexSyncParams struct {
	Index           uint64 `yaml:"index"`
	Components      uint64 `yaml:"components"`
	SignalSeverity  uint64 `yaml:"signal_severity"`
	SignalSpreadBps uint64 `yaml:"signal_spread_bps"`
}

type RegimeUpdateParams struct {
	Regime uint8 `yaml:"regime"`
}

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

func NewMatchInstruction(programID, lp, context solana.PublicKey, tradeSize *uint64) solana.Instruction {
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, true),
		solana.NewAccountMeta(context, true, false),
	}, ctxrecord.MatchPayload(tradeSize))
}

// NewIndexSyncInstruction accounts: context (writable), macro oracle.
func NewIndexSyncInstruction(programID, context, oracle solana.PublicKey, params IndexSyncParams) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(OpIndexSync, params)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(context, true, false),
		solana.NewAccountMeta(oracle, false, false),
	}, data), nil
}

// NewRegimeUpdateInstruction accounts: context (writable), macro oracle (signer).
func NewRegimeUpdateInstruction(programID, context, oracle solana.PublicKey, regime Regime) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(OpRegimeUpdate, RegimeUpdateParams{Regime: uint8(regime)})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(context, true, false),
		solana.NewAccountMeta(oracle, false, true),
	}, data), nil
}
