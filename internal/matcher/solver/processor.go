package solver

import (
	errorsmod "cosmossdk.io/errors"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
)

type Program struct{}

func (Program) Name() string { return Schema.Name }

func (Program) Schema() *ctxrecord.Schema { return Schema }

func (Program) OpName(op byte) string {
	switch op {
	case ctxrecord.OpMatch:
		return "match"
	case ctxrecord.OpInit:
		return "init"
	case OpOracleUpdate:
		return "oracle_update"
	default:
		return "unknown"
	}
}

func (Program) Process(inv *host.Invocation) error {
	op, ok := inv.Opcode()
	if !ok {
		return ctxrecord.ErrInvalidInstructionData
	}
	switch op {
	case ctxrecord.OpMatch:
		return processMatch(inv)
	case ctxrecord.OpInit:
		return processInit(inv)
	case OpOracleUpdate:
		return processOracleUpdate(inv)
	default:
		return errorsmod.Wrapf(ctxrecord.ErrInvalidInstructionData, "unknown opcode %#02x", op)
	}
}

// Accounts: [0] LP, [1] context (writable), [2] solver.
func processInit(inv *host.Invocation) error {
	if err := inv.RequireAccounts(3); err != nil {
		return err
	}
	var params InitParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	lp, ctxAccount, solverAccount := inv.Accounts[0], inv.Accounts[1], inv.Accounts[2]

	if err := ctxrecord.VerifyInitPreconditions(ctxAccount, Magic); err != nil {
		return err
	}
	if params.BaseSpreadBps > params.MaxSpreadBps {
		return errorsmod.Wrapf(ErrInvalidSpreadConfig, "base %d > max %d", params.BaseSpreadBps, params.MaxSpreadBps)
	}

	b := ctxAccount.Data
	Schema.ZeroBody(b)
	ctxrecord.WriteHeader(b, Magic, 0, lp.Key)
	SolverKey.Put(b, solverAccount.Key)
	BaseSpread.Put(b, params.BaseSpreadBps)
	MaxSpread.Put(b, params.MaxSpreadBps)
	SolverFee.Put(b, params.SolverFeeBps)
	EncryptionKey.Put(b, params.EncryptionKey[:])
	return nil
}

// Accounts: [0] LP (signer), [1] context (writable).
func processMatch(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	lp, ctxAccount := inv.Accounts[0], inv.Accounts[1]
	if err := ctxrecord.VerifyAuthority(lp, ctxAccount.Data, Magic); err != nil {
		return err
	}
	if !ctxAccount.IsWritable {
		return ctxrecord.ErrNotWritable
	}

	st, err := Load(ctxAccount.Data)
	if err != nil {
		return err
	}
	price, _, err := Quote(st)
	if err != nil {
		return err
	}

	b := ctxAccount.Data
	ctxrecord.WriteExecutionPrice(b, price)
	LastExecPrice.Put(b, price)
	TotalOrders.Put(b, ctxrecord.SaturatingAdd64(st.TotalOrders, 1))
	if size, ok := ctxrecord.TradeSize(inv.Data); ok {
		TotalVolume.Put(b, ctxrecord.SaturatingAdd128(st.TotalVolume, uint128.From64(size)))
	}
	return nil
}

// Accounts: [0] solver (signer), [1] context (writable).
func processOracleUpdate(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	var params OracleUpdateParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	solverAccount, ctxAccount := inv.Accounts[0], inv.Accounts[1]

	if !solverAccount.IsSigner {
		return ctxrecord.ErrNotSigner
	}
	if !ctxrecord.VerifyMagic(ctxAccount.Data, Magic) {
		return ctxrecord.ErrUninitialized
	}
	if !solverAccount.ProvesControlOf(SolverKey.Get(ctxAccount.Data)) {
		return ErrUnauthorizedSolver
	}
	if !ctxAccount.IsWritable {
		return ctxrecord.ErrNotWritable
	}
	if params.Price == 0 {
		return ErrOraclePriceNotSet
	}

	OraclePrice.Put(ctxAccount.Data, params.Price)
	return nil
}
