package solver

import (
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

const OpOracleUpdate = ctxrecord.OpSync

// InitParams is the Init payload after the opcode:
// [1..5] base, [5..9] max, [9..13] fee, [13..45] encryption key.
type InitParams struct {
	BaseSpreadBps uint32   `yaml:"base_spread_bps"`
	MaxSpreadBps  uint32   `yaml:"max_spread_bps"`
	SolverFeeBps  uint32   `yaml:"solver_fee_bps"`
	EncryptionKey [32]byte `yaml:"-"`
}

type OracleUpdateParams struct {
	Price uint64 `yaml:"price_e6"`
}

// NewInitInstruction accounts: LP, context (writable), solver.
func NewInitInstruction(programID, lp, context, solverKey solana.PublicKey, params InitParams) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(ctxrecord.OpInit, params)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, false),
		solana.NewAccountMeta(context, true, false),
		solana.NewAccountMeta(solverKey, false, false),
	}, data), nil
}

// NewMatchInstruction accounts: LP (signer), context (writable).
func NewMatchInstruction(programID, lp, context solana.PublicKey, tradeSize *uint64) solana.Instruction {
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, true),
		solana.NewAccountMeta(context, true, false),
	}, ctxrecord.MatchPayload(tradeSize))
}

// NewOracleUpdateInstruction accounts: solver (signer), context (writable).
func NewOracleUpdateInstruction(programID, solverKey, context solana.PublicKey, price uint64) (solana.Instruction, error) {
	data, err := ctxrecord.EncodePayload(OpOracleUpdate, OracleUpdateParams{Price: price})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(solverKey, false, true),
		solana.NewAccountMeta(context, true, false),
	}, data), nil
}
