package volatility

import (
	errorsmod "cosmossdk.io/errors"

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
	case OpOracleSync:
		return "oracle_sync"
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
	case OpOracleSync:
		return processOracleSync(inv)
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
	VovSpread.Put(b, params.VovSpreadBps)
	MaxSpread.Put(b, params.MaxSpreadBps)
	ImpactK.Put(b, params.ImpactKBps)
	RegimeField.Put(b, uint8(RegimeNormal))
	Liquidity.Put(b, params.Liquidity)
	MaxFill.Put(b, params.MaxFill)
	VarianceTracker.Put(b, params.VarianceTracker)
	VolIndex.Put(b, params.VolIndex)
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

	ctxrecord.WriteExecutionPrice(ctxAccount.Data, price)
	return nil
}

// Accounts: [0] context (writable), [1] variance tracker, [2] vol index.
// The oracle accounts are matched by key, not signature.
func processOracleSync(inv *host.Invocation) error {
	if err := inv.RequireAccounts(3); err != nil {
		return err
	}
	var params SyncParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	ctxAccount, varianceTracker, volIndex := inv.Accounts[0], inv.Accounts[1], inv.Accounts[2]

	if err := ctxrecord.VerifyInitialized(ctxAccount, Magic); err != nil {
		return err
	}
	b := ctxAccount.Data
	if !varianceTracker.Key.Equals(VarianceTracker.Get(b)) {
		return errorsmod.Wrap(ErrOracleAccountMismatch, "variance tracker")
	}
	if !volIndex.Key.Equals(VolIndex.Get(b)) {
		return errorsmod.Wrap(ErrOracleAccountMismatch, "vol index")
	}
	if !Regime(params.Regime).Valid() {
		return errorsmod.Wrapf(ErrInvalidRegime, "regime %d", params.Regime)
	}

	CurrentVol.Put(b, params.CurrentVolBps)
	VolMark.Put(b, params.VolMark)
	LastUpdateSlot.Put(b, inv.Clock.Slot)
	RegimeField.Put(b, params.Regime)
	Vol7dAvg.Put(b, params.Vol7dAvgBps)
	Vol30dAvg.Put(b, params.Vol30dAvgBps)
	return nil
}
