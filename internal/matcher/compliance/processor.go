package compliance

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
)

const (
	userWhitelistIndex = 2
	lpWhitelistIndex   = 3
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

// Accounts: [0] LP, [1] context (writable).
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
	MinKycLevel.Put(b, params.MinKycLevel)
	RequireSameJurisdiction.Put(b, params.RequireSameJurisdiction)
	KycRegistry.Put(b, params.KycRegistry)
	BaseSpread.Put(b, params.BaseSpreadBps)
	KycDiscount.Put(b, params.KycDiscountBps)
	MaxSpread.Put(b, params.MaxSpreadBps)
	BlockedJurisdictions.Put(b, params.BlockedJurisdictions)
	DailyVolumeCap.Put(b, params.DailyVolumeCap)
	ImpactK.Put(b, params.ImpactKBps)
	Liquidity.Put(b, params.Liquidity)
	MaxFill.Put(b, params.MaxFill)
	return nil
}

// Accounts: [0] LP (signer), [1] context (writable), [2] user whitelist
// (optional), [3] LP-owner whitelist (optional).
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
	if st.OraclePrice == 0 {
		return ErrOraclePriceNotSet
	}
	participants, err := loadParticipants(inv, st)
	if err != nil {
		return err
	}
	size, sized := ctxrecord.TradeSize(inv.Data)
	now := inv.Clock.UnixTimestamp
	level, err := CheckCompliance(st, participants, now, size)
	if err != nil {
		return err
	}
	price, _, err := Quote(st, level)
	if err != nil {
		return err
	}

	b := ctxAccount.Data
	ctxrecord.WriteExecutionPrice(b, price)
	if sized {
		volume, reset := NextDayVolume(st, now, size)
		CurrentDayVolume.Put(b, volume)
		DayResetTimestamp.Put(b, reset)
	}
	return nil
}

func loadParticipants(inv *host.Invocation, st State) (Participants, error) {
	var p Participants
	acc, err := inv.Account(userWhitelistIndex)
	if err != nil {
		return p, nil
	}
	user, err := readWhitelist(acc, st)
	if err != nil {
		return p, err
	}
	p.User = &user
	if !st.RequireSameJurisdiction {
		return p, nil
	}
	if acc, err = inv.Account(lpWhitelistIndex); err != nil {
		return p, nil
	}
	counterparty, err := readWhitelist(acc, st)
	if err != nil {
		return p, err
	}
	p.Counterparty = &counterparty
	return p, nil
}

// Accounts: [0] authority (signer), [1] context (writable).
func processOracleUpdate(inv *host.Invocation) error {
	if err := inv.RequireAccounts(2); err != nil {
		return err
	}
	var params OracleUpdateParams
	if err := ctxrecord.DecodePayload(inv.Data, &params); err != nil {
		return err
	}
	authority, ctxAccount := inv.Accounts[0], inv.Accounts[1]

	if !authority.IsSigner {
		return ctxrecord.ErrNotSigner
	}
	if err := ctxrecord.VerifyInitialized(ctxAccount, Magic); err != nil {
		return err
	}
	if params.Price == 0 {
		return ErrOraclePriceNotSet
	}

	OraclePrice.Put(ctxAccount.Data, params.Price)
	return nil
}
