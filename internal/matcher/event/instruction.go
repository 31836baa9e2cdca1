package event

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

const (
	OpProbabilitySync = ctxrecord.OpSync
	OpResolve         = ctxrecord.OpTerminal
)

type InitParams struct {
	Mode                uint8            `yaml:"mode"`
	BaseSpreadBps       uint32           `yaml:"base_spread_bps"`
	EdgeSpreadBps       uint32           `yaml:"edge_spread_bps"`
	MaxSpreadBps        uint32           `yaml:"max_spread_bps"`
	ImpactKBps          uint32           `yaml:"impact_k_bps"`
	InitialProbability  uint64           `yaml:"initial_probability_e6"`
	ResolutionTimestamp int64            `yaml:"resolution_timestamp"`
	Liquidity           uint128.Uint128  `yaml:"-"`
	MaxFill             uint128.Uint128  `yaml:"-"`
	EventOracle         solana.PublicKey `yaml:"-"`
}

// ProbabilitySyncParams: [1..9] probability, [9..17] severity, [17..25] signal spread.
type ProbabilitySyncParams struct {
	Probability     uint64 `yaml:"probability_e6"`
	SignalSeverity  uint64 `yaml:"signal_severity"`
	SignalSpreadBps uint64 `yaml:"signal_spread_bps"`
}

type ResolveParams struct {
	Outcome uint8 `yaml:"outcome"`
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

func NewMatchInstruction(programID, lp, context solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, true),
		solana.NewAccountMeta(context, true, false),
	}, ctxrecord.MatchPayload(nil))
}

// NewProbabilitySyncInstruction accounts: context (writable), event oracle.
func NewProbabilitySyncInstruction(programID, context, oracle solana.PublicKey, params ProbabilitySyncParams) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(OpProbabilitySync, params)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(context, true, false),
		solana.NewAccountMeta(oracle, false, false),
	}, data), nil
}

// NewResolveInstruction accounts: context (writable), event oracle (signer).
func NewResolveInstruction(programID, context, oracle solana.PublicKey, outcome uint8) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(OpResolve, ResolveParams{Outcome: outcome})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(context, true, false),
		solana.NewAccountMeta(oracle, false, true),
	}, data), nil
}
