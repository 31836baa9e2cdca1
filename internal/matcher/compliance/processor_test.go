package compliance

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
	"github.com/coldbell/matchers/internal/host/hosttest"
)

type fixture struct {
	programID solana.PublicKey
	lp        solana.PublicKey
	registry  solana.PublicKey
	ctx       *host.Account
	accounts  map[solana.PublicKey]*host.Account
}

func newFixture(t *testing.T, params InitParams) *fixture {
	t.Helper()
	f := &fixture{
		programID: hosttest.NewKey(),
		lp:        hosttest.NewKey(),
		registry:  params.KycRegistry,
		ctx:       hosttest.Context(),
	}
	f.accounts = map[solana.PublicKey]*host.Account{f.ctx.Key: f.ctx}
	ix, err := NewInitInstruction(f.programID, f.lp, f.ctx.Key, params)
	require.NoError(t, err)
	require.NoError(t, f.run(t, ix, 0))
	return f
}

func (f *fixture) run(t *testing.T, ix solana.Instruction, now int64) error {
	t.Helper()
	inv, err := hosttest.FromInstruction(ix, host.Clock{UnixTimestamp: now}, f.accounts)
	require.NoError(t, err)
	return Program{}.Process(inv)
}

func (f *fixture) whitelist(entry WhitelistEntry) solana.PublicKey {
	acc := &host.Account{Key: hosttest.NewKey(), Owner: f.registry, Data: EncodeWhitelistEntry(entry)}
	f.accounts[acc.Key] = acc
	return acc.Key
}

func (f *fixture) setOracle(t *testing.T, price uint64) {
	t.Helper()
	ix, err := NewOracleUpdateInstruction(f.programID, hosttest.NewKey(), f.ctx.Key, price)
	require.NoError(t, err)
	require.NoError(t, f.run(t, ix, 0))
}

func (f *fixture) match(t *testing.T, now int64, size *uint64, whitelists ...solana.PublicKey) (uint64, error) {
	t.Helper()
	err := f.run(t, NewMatchInstruction(f.programID, f.lp, f.ctx.Key, size, whitelists...), now)
	price, _ := ctxrecord.ReadExecutionPrice(f.ctx.Data)
	return price, err
}

func sizePtr(v uint64) *uint64 { return &v }

var defaultParams = InitParams{
	Mode:                    ModeVAMMKYC,
	MinKycLevel:             uint8(KycStandard),
	RequireSameJurisdiction: 1,
	BaseSpreadBps:           30,
	KycDiscountBps:          10,
	MaxSpreadBps:            100,
	BlockedJurisdictions:    0b0000_0001,
	DailyVolumeCap:          1_000,
	ImpactKBps:              5,
	Liquidity:               uint128.From64(50_000_000),
	MaxFill:                 uint128.From64(1_000_000),
}

func TestInit(t *testing.T) {
	params := defaultParams
	params.KycRegistry = hosttest.NewKey()
	f := newFixture(t, params)

	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, ModeVAMMKYC, st.Mode)
	require.Equal(t, f.lp, st.LPKey)
	require.Equal(t, KycStandard, st.MinKycLevel)
	require.True(t, st.RequireSameJurisdiction)
	require.Equal(t, params.KycRegistry, st.KycRegistry)
	require.Equal(t, uint8(0b0000_0001), st.BlockedJurisdictions)
	require.Equal(t, uint64(1_000), st.DailyVolumeCap)
	require.Zero(t, st.OraclePrice)
	require.Zero(t, st.CurrentDayVolume)
	require.Zero(t, st.DayResetTimestamp)
	require.Equal(t, uint128.From64(50_000_000), st.Liquidity)

	data, err := ctxrecord.EncodePayload(ctxrecord.OpInit, InitParams{})
	require.NoError(t, err)
	require.Len(t, data, 93)

	ix, err := NewInitInstruction(f.programID, f.lp, f.ctx.Key, params)
	require.NoError(t, err)
	require.ErrorIs(t, f.run(t, ix, 0), ctxrecord.ErrAlreadyInitialized)
}

func TestMatchPricing(t *testing.T) {
	f := newFixture(t, defaultParams)
	f.setOracle(t, 150_000_000)

	standard := f.whitelist(WhitelistEntry{KycLevel: KycStandard, Expiry: 10_000, Jurisdiction: 1})
	institutional := f.whitelist(WhitelistEntry{KycLevel: KycInstitutional, Expiry: 10_000, Jurisdiction: 1})

	price, err := f.match(t, 100, nil, standard)
	require.NoError(t, err)
	require.Equal(t, uint64(150_450_000), price)

	price, err = f.match(t, 100, nil, institutional)
	require.NoError(t, err)
	require.Equal(t, uint64(150_300_000), price)
}

func TestMatchRequiresWhitelist(t *testing.T) {
	f := newFixture(t, defaultParams)
	f.setOracle(t, 150_000_000)

	_, err := f.match(t, 100, nil)
	require.ErrorIs(t, err, ErrInsufficientKycLevel)

	open := defaultParams
	open.MinKycLevel = uint8(KycBasic)
	g := newFixture(t, open)
	g.setOracle(t, 150_000_000)
	price, err := g.match(t, 100, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(150_450_000), price)
}

func TestMatchRejections(t *testing.T) {
	f := newFixture(t, defaultParams)

	user := f.whitelist(WhitelistEntry{KycLevel: KycStandard, Expiry: 10_000, Jurisdiction: 1})
	_, err := f.match(t, 100, nil, user)
	require.ErrorIs(t, err, ErrOraclePriceNotSet)
	f.setOracle(t, 150_000_000)

	blocked := f.whitelist(WhitelistEntry{KycLevel: KycStandard, Expiry: 10_000, Jurisdiction: 0})
	_, err = f.match(t, 100, nil, blocked)
	require.ErrorIs(t, err, ErrJurisdictionBlocked)

	_, err = f.match(t, 10_001, nil, user)
	require.ErrorIs(t, err, ErrKycExpired)

	foreign := f.whitelist(WhitelistEntry{KycLevel: KycStandard, Expiry: 10_000, Jurisdiction: 2})
	_, err = f.match(t, 100, nil, user, foreign)
	require.ErrorIs(t, err, ErrJurisdictionMismatch)

	short := &host.Account{Key: hosttest.NewKey(), Data: make([]byte, WhitelistMinSize-1)}
	f.accounts[short.Key] = short
	_, err = f.match(t, 100, nil, short.Key)
	require.ErrorIs(t, err, ErrInvalidComplianceData)
}

func TestMatchChecksWhitelistOwner(t *testing.T) {
	params := defaultParams
	params.KycRegistry = hosttest.NewKey()
	f := newFixture(t, params)
	f.setOracle(t, 150_000_000)

	owned := f.whitelist(WhitelistEntry{KycLevel: KycStandard, Expiry: 10_000, Jurisdiction: 1})
	_, err := f.match(t, 100, nil, owned)
	require.NoError(t, err)

	forged := &host.Account{
		Key:  hosttest.NewKey(),
		Data: EncodeWhitelistEntry(WhitelistEntry{KycLevel: KycInstitutional, Expiry: 10_000, Jurisdiction: 1}),
	}
	f.accounts[forged.Key] = forged
	_, err = f.match(t, 100, nil, forged.Key)
	require.ErrorIs(t, err, ErrInvalidComplianceData)
}

func TestMatchDailyVolume(t *testing.T) {
	f := newFixture(t, defaultParams)
	f.setOracle(t, 150_000_000)
	user := f.whitelist(WhitelistEntry{KycLevel: KycStandard, Expiry: 1_000_000, Jurisdiction: 1})

	// The first sized trade starts a window at its own timestamp.
	_, err := f.match(t, 100_000, sizePtr(600), user)
	require.NoError(t, err)
	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(600), st.CurrentDayVolume)
	require.Equal(t, int64(100_000), st.DayResetTimestamp)

	_, err = f.match(t, 100_500, sizePtr(400), user)
	require.NoError(t, err)

	before := append([]byte(nil), f.ctx.Data...)
	_, err = f.match(t, 100_600, sizePtr(1), user)
	require.ErrorIs(t, err, ErrDailyVolumeLimitExceeded)
	require.Equal(t, before, f.ctx.Data)

	_, err = f.match(t, 100_000+DayWindowSeconds+1, sizePtr(50), user)
	require.NoError(t, err)
	st, err = Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(50), st.CurrentDayVolume)
	require.Equal(t, int64(100_000+DayWindowSeconds+1), st.DayResetTimestamp)

	// Unsized matches leave the counter alone.
	_, err = f.match(t, 100_000+DayWindowSeconds+2, nil, user)
	require.NoError(t, err)
	st, err = Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(50), st.CurrentDayVolume)
}

func TestOracleUpdate(t *testing.T) {
	f := newFixture(t, defaultParams)
	data, err := ctxrecord.EncodePayload(OpOracleUpdate, OracleUpdateParams{Price: 42})
	require.NoError(t, err)
	call := func(data []byte, accounts ...*host.Account) error {
		return Program{}.Process(hosttest.Invocation(host.Clock{}, data, accounts...))
	}

	require.ErrorIs(t, call(data, hosttest.Readonly(hosttest.NewKey()), f.ctx), ctxrecord.ErrNotSigner)
	readonly := f.ctx.Clone()
	readonly.IsWritable = false
	require.ErrorIs(t, call(data, hosttest.Signer(hosttest.NewKey()), readonly), ctxrecord.ErrNotWritable)
	require.ErrorIs(t, call(data, hosttest.Signer(hosttest.NewKey()), hosttest.Context()), ctxrecord.ErrUninitialized)

	zero, err := ctxrecord.EncodePayload(OpOracleUpdate, OracleUpdateParams{})
	require.NoError(t, err)
	require.ErrorIs(t, call(zero, hosttest.Signer(hosttest.NewKey()), f.ctx), ErrOraclePriceNotSet)

	require.NoError(t, call(data, hosttest.Signer(hosttest.NewKey()), f.ctx))
	require.Equal(t, uint64(42), OraclePrice.Get(f.ctx.Data))
}

func TestUnknownOpcode(t *testing.T) {
	require.ErrorIs(t, Program{}.Process(hosttest.Invocation(host.Clock{}, nil)), ctxrecord.ErrInvalidInstructionData)
	require.ErrorIs(t, Program{}.Process(hosttest.Invocation(host.Clock{}, []byte{0x04})), ctxrecord.ErrInvalidInstructionData)
	require.Equal(t, "oracle_update", Program{}.OpName(OpOracleUpdate))
}
