package event

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
	case OpProbabilitySync:
		return "probability_sync"
	case OpResolve:
		return "resolve"
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
	case OpProbabilitySync:
		return processProbabilitySync(inv)
	case OpResolve:
		return processResolve(inv)
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
	if params.InitialProbability > MaxProbability {
		return errorsmod.Wrapf(ErrInvalidProbability, "initial probability %d", params.InitialProbability)
	}

	b := ctxAccount.Data
	Schema.ZeroBody(b)
	ctxrecord.WriteHeader(b, Magic, params.Mode, lp.Key)
	BaseSpread.Put(b, params.BaseSpreadBps)
	EdgeSpread.Put(b, params.EdgeSpreadBps)
	MaxSpread.Put(b, params.MaxSpreadBps)
	ImpactK.Put(b, params.ImpactKBps)
	CurrentProbability.Put(b, params.InitialProbability)
	ProbabilityMark.Put(b, params.InitialProbability)
	LastUpdateSlot.Put(b, inv.Clock.Slot)
	ResolutionTimestamp.Put(b, params.ResolutionTimestamp)
	SignalSeverity.Put(b, SignalNone)
	Liquidity.Put(b, params.Liquidity)
	MaxFill.Put(b, params.MaxFill)
	EventOracle.Put(b, params.EventOracle)
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

// Accounts: [0] context (writable), [1] event oracle.
// The oracle account is matched by key, not signature.
func processProbabilitySync(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	var params ProbabilitySyncParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	ctxAccount, oracle := inv.Accounts[0], inv.Accounts[1]

	if err := ctxrecord.VerifyInitialized(ctxAccount, Magic); err != nil {
		return err
	}
	b := ctxAccount.Data
	if Resolved.Get(b) == 1 {
		return ErrMarketResolved
	}
	if !oracle.Key.Equals(EventOracle.Get(b)) {
		return ErrOracleMismatch
	}
	if params.Probability > MaxProbability {
		return errorsmod.Wrapf(ErrInvalidProbability, "probability %d", params.Probability)
	}
	if params.SignalSeverity > SignalCritical {
		return errorsmod.Wrapf(ErrInvalidSignalSeverity, "severity %d", params.SignalSeverity)
	}

	CurrentProbability.Put(b, params.Probability)
	ProbabilityMark.Put(b, params.Probability)
	LastUpdateSlot.Put(b, inv.Clock.Slot)
	SignalSeverity.Put(b, params.SignalSeverity)
	SignalAdjustment.Put(b, params.SignalSpreadBps)
	return nil
}

// Accounts: [0] context (writable), [1] event oracle (signer).
func processResolve(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	var params ResolveParams
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
	b := ctxAccount.Data
	if Resolved.Get(b) == 1 {
		return ErrMarketResolved
	}
	if !oracle.ProvesControlOf(EventOracle.Get(b)) {
		return ErrOracleMismatch
	}
	if params.Outcome > OutcomeYes {
		return errorsmod.Wrapf(ErrInvalidOutcome, "outcome %d", params.Outcome)
	}

	final := FinalProbability(params.Outcome)
	Resolved.Put(b, 1)
	ResolutionOutcome.Put(b, params.Outcome)
	CurrentProbability.Put(b, final)
	ProbabilityMark.Put(b, final)
	return nil
}
