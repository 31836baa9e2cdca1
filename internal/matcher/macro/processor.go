package macro

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
	case OpIndexSync:
		return "index_sync"
	case OpRegimeUpdate:
		return "regime_update"
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
	case OpIndexSync:
		return processIndexSync(inv)
	case OpRegimeUpdate:
		return processRegimeUpdate(inv)
	default:
		return errorsmod.Wrapf(ctxrecord.ErrInvalidInstructionData, "unknown opcode %#02x", op)
	}
}

func processInit(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	var params InitParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	lp, ctxAccount := inv.Accounts[0], inv.Accounts[1]
	if err := ctxrecord.VerifyInitPreconditions(ctxAccount, Magic); err != nil {
		return err
	}

	b := ctxAccount.Data
	Schema.ZeroBody(b)
	ctxrecord.WriteHeader(b, Magic, params.Mode, lp.Key)
	BaseSpread.Put(b, params.BaseSpreadBps)
	RegimeSpread.Put(b, params.RegimeSpreadBps)
	MaxSpread.Put(b, params.MaxSpreadBps)
	ImpactK.Put(b, params.ImpactKBps)
	RegimeField.Put(b, uint8(RegimeStagnation))
	SignalSeverity.Put(b, SignalNone)
	Liquidity.Put(b, params.Liquidity)
	MaxFill.Put(b, params.MaxFill)
	MacroOracle.Put(b, params.MacroOracle)
	return nil
}

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
	price, _, err := Quote(st, inv.Clock.Slot)
	if err != nil {
		return err
	}

	b := ctxAccount.Data
	ctxrecord.WriteExecutionPrice(b, price)
	TotalTrades.Put(b, ctxrecord.SaturatingAdd64(st.TotalTrades, 1))
	if size, ok := ctxrecord.TradeSize(inv.Data); ok {
		TotalVolume.Put(b, ctxrecord.SaturatingAdd128(st.TotalVolume, uint128.From64(size)))
	}
	return nil
}

// Accounts: [0] context (writable), [1] macro oracle.
// The oracle account is matched by key, not signature.
func processIndexSync(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	var params IndexSyncParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	ctxAccount, oracle := inv.Accounts[0], inv.Accounts[1]

	if err := ctxrecord.VerifyInitialized(ctxAccount, Magic); err != nil {
		return err
	}
	b := ctxAccount.Data
	if !oracle.Key.Equals(MacroOracle.Get(b)) {
		return ErrOracleMismatch
	}
	if params.SignalSeverity > SignalCritical {
		return errorsmod.Wrapf(ErrInvalidSignalSeverity, "severity %d", params.SignalSeverity)
	}

	CurrentIndex.Put(b, params.Index)
	IndexComponents.Put(b, params.Components)
	LastUpdateSlot.Put(b, inv.Clock.Slot)
	SignalSeverity.Put(b, params.SignalSeverity)
	SignalAdjustment.Put(b, params.SignalSpreadBps)
	return nil
}

// Accounts: [0] context (writable), [1] macro oracle (signer).
func processRegimeUpdate(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	var params RegimeUpdateParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	ctxAccount, oracle := inv.Accounts[0], inv.Accounts[1]

	if !oracle.IsSigner {
		return ctxrecord.ErrNotSigner
	}
	if err := ctxrecord.VerifyInitialized(ctxAccount, Magic); err != nil {
		return err
	}
	if !oracle.ProvesControlOf(MacroOracle.Get(ctxAccount.Data)) {
		return ErrOracleMismatch
	}
	if !Regime(params.Regime).Valid() {
		return errorsmod.Wrapf(ErrInvalidRegime, "regime %d", params.Regime)
	}

	RegimeField.Put(ctxAccount.Data, params.Regime)
	return nil
}
