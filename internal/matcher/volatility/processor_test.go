package volatility

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
	programID       solana.PublicKey
	lp              solana.PublicKey
	varianceTracker solana.PublicKey
	volIndex        solana.PublicKey
	ctx             *host.Account
}

func newFixture(t *testing.T, base, vov, max uint32) *fixture {
	t.Helper()
	f := &fixture{
		programID:       hosttest.NewKey(),
		lp:              hosttest.NewKey(),
		varianceTracker: hosttest.NewKey(),
		volIndex:        hosttest.NewKey(),
		ctx:             hosttest.Context(),
	}
	ix, err := NewInitInstruction(f.programID, f.lp, f.ctx.Key, InitParams{
		Mode:            1,
		BaseSpreadBps:   base,
		VovSpreadBps:    vov,
		MaxSpreadBps:    max,
		ImpactKBps:      7,
		Liquidity:       uint128.From64(1_000_000_000),
		MaxFill:         uint128.From64(50_000_000),
		VarianceTracker: f.varianceTracker,
		VolIndex:        f.volIndex,
	})
	require.NoError(t, err)
	require.NoError(t, f.run(t, ix, 0))
	return f
}

func (f *fixture) run(t *testing.T, ix solana.Instruction, slot uint64) error {
	t.Helper()
	inv, err := hosttest.FromInstruction(ix, host.Clock{Slot: slot}, map[solana.PublicKey]*host.Account{f.ctx.Key: f.ctx})
	require.NoError(t, err)
	return Program{}.Process(inv)
}

func (f *fixture) sync(t *testing.T, params SyncParams, slot uint64) error {
	t.Helper()
	ix, err := NewOracleSyncInstruction(f.programID, f.ctx.Key, f.varianceTracker, f.volIndex, params)
	require.NoError(t, err)
	return f.run(t, ix, slot)
}

func (f *fixture) match(t *testing.T, slot uint64) (uint64, error) {
	t.Helper()
	err := f.run(t, NewMatchInstruction(f.programID, f.lp, f.ctx.Key), slot)
	price, _ := ctxrecord.ReadExecutionPrice(f.ctx.Data)
	return price, err
}

func TestInitDefaults(t *testing.T) {
	f := newFixture(t, 20, 30, 200)

	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint8(1), st.Mode)
	require.Equal(t, RegimeNormal, st.Regime)
	require.Equal(t, uint32(7), st.ImpactKBps)
	require.Equal(t, uint128.From64(1_000_000_000), st.Liquidity)
	require.Equal(t, uint128.From64(50_000_000), st.MaxFill)
	require.Equal(t, f.varianceTracker, st.VarianceTracker)
	require.Equal(t, f.volIndex, st.VolIndex)
	require.Zero(t, st.VolMark)

	data, err := ctxrecord.EncodePayload(ctxrecord.OpInit, InitParams{})
	require.NoError(t, err)
	require.Len(t, data, 114)
}

func TestMatchByRegime(t *testing.T) {
	tests := []struct {
		name   string
		base   uint32
		vov    uint32
		max    uint32
		regime Regime
		mark   uint64
		want   uint64
	}{
		{"normal", 20, 30, 200, RegimeNormal, 4_500_000_000, 4_522_500_000},
		{"extreme", 20, 30, 200, RegimeExtreme, 4_500_000_000, 4_542_750_000},
		{"extreme large mark", 20, 30, 200, RegimeExtreme, 4_500_000_000_000, 4_542_750_000_000},
		{"very low", 20, 30, 200, RegimeVeryLow, 4_500_000_000, 4_515_750_000},
		{"capped", 100, 200, 150, RegimeExtreme, 4_500_000_000, 4_567_500_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.base, tc.vov, tc.max)
			require.NoError(t, f.sync(t, SyncParams{CurrentVolBps: 4500, VolMark: tc.mark, Regime: uint8(tc.regime)}, 1_000))

			price, err := f.match(t, 1_050)
			require.NoError(t, err)
			require.Equal(t, tc.want, price)
		})
	}
}

func TestRegimeTable(t *testing.T) {
	want := map[Regime]uint64{
		RegimeVeryLow: 50,
		RegimeLow:     75,
		RegimeNormal:  100,
		RegimeHigh:    150,
		RegimeExtreme: 250,
	}
	for regime, multiplier := range want {
		require.Equal(t, multiplier, regime.Multiplier(), regime.String())
		require.Equal(t, regime, RegimeFromByte(uint8(regime)))
	}
	require.Equal(t, RegimeNormal, RegimeFromByte(5))
	require.Equal(t, RegimeNormal, RegimeFromByte(0xff))
	require.Equal(t, uint64(95), TotalSpread(20, 30, 200, RegimeExtreme))
}

func TestMatchStaleness(t *testing.T) {
	f := newFixture(t, 20, 30, 200)

	_, err := f.match(t, 10)
	require.ErrorIs(t, err, ErrOracleNotSynced)

	require.NoError(t, f.sync(t, SyncParams{VolMark: 4_500_000_000, Regime: uint8(RegimeNormal)}, 1_000))

	_, err = f.match(t, 1_100)
	require.NoError(t, err)

	_, err = f.match(t, 1_101)
	require.ErrorIs(t, err, ErrOracleStale)
	require.True(t, ctxrecord.KindOf(err).Retryable())

	// A clock behind the stored slot is not stale.
	_, err = f.match(t, 900)
	require.NoError(t, err)
}

func TestOracleSyncRejections(t *testing.T) {
	f := newFixture(t, 20, 30, 200)
	params := SyncParams{CurrentVolBps: 4500, VolMark: 4_500_000_000, Regime: 4, Vol7dAvgBps: 4000, Vol30dAvgBps: 3800}
	data, err := ctxrecord.EncodePayload(OpOracleSync, params)
	require.NoError(t, err)
	require.Len(t, data, 34)

	before := append([]byte(nil), f.ctx.Data...)
	call := func(data []byte, accounts ...*host.Account) error {
		return Program{}.Process(hosttest.Invocation(host.Clock{Slot: 5}, data, accounts...))
	}

	err = call(data, f.ctx, hosttest.Readonly(hosttest.NewKey()), hosttest.Readonly(f.volIndex))
	require.ErrorIs(t, err, ErrOracleAccountMismatch)
	err = call(data, f.ctx, hosttest.Readonly(f.varianceTracker), hosttest.Readonly(hosttest.NewKey()))
	require.ErrorIs(t, err, ErrOracleAccountMismatch)
	err = call(data, hosttest.Context(), hosttest.Readonly(f.varianceTracker), hosttest.Readonly(f.volIndex))
	require.ErrorIs(t, err, ctxrecord.ErrUninitialized)
	err = call(data[:33], f.ctx, hosttest.Readonly(f.varianceTracker), hosttest.Readonly(f.volIndex))
	require.ErrorIs(t, err, ctxrecord.ErrInvalidInstructionData)
	err = call(data, f.ctx, hosttest.Readonly(f.varianceTracker))
	require.ErrorIs(t, err, host.ErrNotEnoughAccountKeys)

	bad := append([]byte(nil), data...)
	bad[17] = 5
	err = call(bad, f.ctx, hosttest.Readonly(f.varianceTracker), hosttest.Readonly(f.volIndex))
	require.ErrorIs(t, err, ErrInvalidRegime)

	readonly := &host.Account{Key: f.ctx.Key, Data: f.ctx.Data}
	err = call(data, readonly, hosttest.Readonly(f.varianceTracker), hosttest.Readonly(f.volIndex))
	require.ErrorIs(t, err, ctxrecord.ErrNotWritable)

	require.Equal(t, before, f.ctx.Data)

	require.NoError(t, call(data, f.ctx, hosttest.Readonly(f.varianceTracker), hosttest.Readonly(f.volIndex)))
	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, RegimeExtreme, st.Regime)
	require.Equal(t, uint64(5), st.LastUpdateSlot)
	require.Equal(t, uint64(4000), st.Vol7dAvgBps)
	require.Equal(t, uint64(3800), st.Vol30dAvgBps)
	require.Equal(t, uint64(4500), st.CurrentVolBps)
}

func TestMatchAuthority(t *testing.T) {
	f := newFixture(t, 20, 30, 200)
	require.NoError(t, f.sync(t, SyncParams{VolMark: 4_500_000_000, Regime: 2}, 1))

	err := Program{}.Process(hosttest.Invocation(host.Clock{Slot: 2}, []byte{ctxrecord.OpMatch}, hosttest.Signer(hosttest.NewKey()), f.ctx))
	require.ErrorIs(t, err, ctxrecord.ErrAuthorityMismatch)
	err = Program{}.Process(hosttest.Invocation(host.Clock{Slot: 2}, []byte{0x09}, hosttest.Signer(f.lp), f.ctx))
	require.ErrorIs(t, err, ctxrecord.ErrInvalidInstructionData)
}

func TestOracleSyncAcceptsUnsignedOracles(t *testing.T) {
	f := newFixture(t, 20, 30, 200)
	data, err := ctxrecord.EncodePayload(OpOracleSync, SyncParams{CurrentVolBps: 4500, VolMark: 4_500_000_000, Regime: 2})
	require.NoError(t, err)

	tracker, index := hosttest.Readonly(f.varianceTracker), hosttest.Readonly(f.volIndex)
	require.False(t, tracker.IsSigner)
	require.False(t, index.IsSigner)
	require.NoError(t, Program{}.Process(hosttest.Invocation(host.Clock{Slot: 12}, data, f.ctx, tracker, index)))

	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(4500), st.CurrentVolBps)
	require.Equal(t, uint64(12), st.LastUpdateSlot)
}
