package event

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
	"github.com/coldbell/matchers/internal/host/hosttest"
)

type fixture struct {
	programID solana.PublicKey
	lp        solana.PublicKey
	oracle    solana.PublicKey
	ctx       *host.Account
}

func newFixture(t *testing.T, initialProbability uint64, slot uint64) *fixture {
	t.Helper()
	f := &fixture{
		programID: hosttest.NewKey(),
		lp:        hosttest.NewKey(),
		oracle:    hosttest.NewKey(),
		ctx:       hosttest.Context(),
	}
	ix, err := NewInitInstruction(f.programID, f.lp, f.ctx.Key, InitParams{
		Mode:                1,
		BaseSpreadBps:       20,
		EdgeSpreadBps:       30,
		MaxSpreadBps:        500,
		InitialProbability:  initialProbability,
		ResolutionTimestamp: 1_900_000_000,
		EventOracle:         f.oracle,
	})
	require.NoError(t, err)
	require.NoError(t, f.run(t, ix, slot))
	return f
}

func (f *fixture) run(t *testing.T, ix solana.Instruction, slot uint64) error {
	t.Helper()
	inv, err := hosttest.FromInstruction(ix, host.Clock{Slot: slot}, map[solana.PublicKey]*host.Account{f.ctx.Key: f.ctx})
	require.NoError(t, err)
	return Program{}.Process(inv)
}

func (f *fixture) match(t *testing.T, slot uint64) (uint64, error) {
	t.Helper()
	err := f.run(t, NewMatchInstruction(f.programID, f.lp, f.ctx.Key), slot)
	price, _ := ctxrecord.ReadExecutionPrice(f.ctx.Data)
	return price, err
}

func (f *fixture) sync(t *testing.T, params ProbabilitySyncParams, slot uint64) error {
	t.Helper()
	ix, err := NewProbabilitySyncInstruction(f.programID, f.ctx.Key, f.oracle, params)
	require.NoError(t, err)
	return f.run(t, ix, slot)
}

func (f *fixture) resolve(t *testing.T, outcome uint8) error {
	t.Helper()
	ix, err := NewResolveInstruction(f.programID, f.ctx.Key, f.oracle, outcome)
	require.NoError(t, err)
	return f.run(t, ix, 0)
}

func TestInit(t *testing.T) {
	f := newFixture(t, 500_000, 77)

	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), st.Probability)
	require.Equal(t, uint64(500_000), st.ProbabilityMark)
	require.Equal(t, uint64(77), st.LastUpdateSlot)
	require.Equal(t, int64(1_900_000_000), st.ResolutionTimestamp)
	require.False(t, st.Resolved)
	require.Equal(t, f.oracle, st.EventOracle)

	data, err := ctxrecord.EncodePayload(ctxrecord.OpInit, InitParams{})
	require.NoError(t, err)
	require.Len(t, data, 98)

	bad, err := ctxrecord.EncodePayload(ctxrecord.OpInit, InitParams{InitialProbability: MaxProbability + 1})
	require.NoError(t, err)
	ctx := hosttest.Context()
	err = Program{}.Process(hosttest.Invocation(host.Clock{}, bad, hosttest.Readonly(f.lp), ctx))
	require.ErrorIs(t, err, ErrInvalidProbability)
	require.Equal(t, ctxrecord.NewRecord(), ctx.Data)
}

func TestMatchAtInitialProbability(t *testing.T) {
	f := newFixture(t, 500_000, 100)

	price, err := f.match(t, 300)
	require.NoError(t, err)
	require.Equal(t, uint64(502_500), price)

	_, err = f.match(t, 301)
	require.ErrorIs(t, err, ErrOracleStale)
}

func TestProbabilitySync(t *testing.T) {
	f := newFixture(t, 0, 0)

	_, err := f.match(t, 0)
	require.ErrorIs(t, err, ErrProbabilityNotSet)

	require.NoError(t, f.sync(t, ProbabilitySyncParams{Probability: 100_000, SignalSeverity: SignalHigh, SignalSpreadBps: 0}, 50))
	price, err := f.match(t, 60)
	require.NoError(t, err)
	require.Equal(t, uint64(103_200), price)

	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), st.ProbabilityMark)
	require.Equal(t, SignalHigh, st.SignalSeverity)
	require.Equal(t, uint64(50), st.LastUpdateSlot)

	before := append([]byte(nil), f.ctx.Data...)
	require.ErrorIs(t, f.sync(t, ProbabilitySyncParams{Probability: MaxProbability + 1}, 70), ErrInvalidProbability)
	require.ErrorIs(t, f.sync(t, ProbabilitySyncParams{Probability: 1, SignalSeverity: 4}, 70), ErrInvalidSignalSeverity)

	data, err := ctxrecord.EncodePayload(OpProbabilitySync, ProbabilitySyncParams{Probability: 1})
	require.NoError(t, err)
	require.Len(t, data, 25)
	err = Program{}.Process(hosttest.Invocation(host.Clock{}, data, f.ctx, hosttest.Readonly(hosttest.NewKey())))
	require.ErrorIs(t, err, ErrOracleMismatch)
	err = Program{}.Process(hosttest.Invocation(host.Clock{}, data, hosttest.Context(), hosttest.Readonly(f.oracle)))
	require.ErrorIs(t, err, ctxrecord.ErrUninitialized)
	require.Equal(t, before, f.ctx.Data)
}

func TestResolveIsTerminal(t *testing.T) {
	tests := []struct {
		outcome uint8
		final   uint64
	}{
		{OutcomeNo, 0},
		{OutcomeYes, MaxProbability},
	}
	for _, tc := range tests {
		f := newFixture(t, 400_000, 0)

		require.NoError(t, f.resolve(t, tc.outcome))
		st, err := Load(f.ctx.Data)
		require.NoError(t, err)
		require.True(t, st.Resolved)
		require.Equal(t, tc.outcome, st.Outcome)
		require.Equal(t, tc.final, st.Probability)
		require.Equal(t, tc.final, st.ProbabilityMark)

		frozen := append([]byte(nil), f.ctx.Data...)
		_, err = f.match(t, 0)
		require.ErrorIs(t, err, ErrMarketResolved)
		require.ErrorIs(t, f.sync(t, ProbabilitySyncParams{Probability: 500_000}, 1), ErrMarketResolved)
		require.ErrorIs(t, f.resolve(t, OutcomeYes), ErrMarketResolved)
		require.Equal(t, frozen, f.ctx.Data)
	}
}

func TestResolveRejections(t *testing.T) {
	f := newFixture(t, 400_000, 0)
	data, err := ctxrecord.EncodePayload(OpResolve, ResolveParams{Outcome: OutcomeYes})
	require.NoError(t, err)
	call := func(data []byte, accounts ...*host.Account) error {
		return Program{}.Process(hosttest.Invocation(host.Clock{}, data, accounts...))
	}

	require.ErrorIs(t, call(data, f.ctx, hosttest.Readonly(f.oracle)), ctxrecord.ErrNotSigner)
	require.ErrorIs(t, call(data, hosttest.Context(), hosttest.Signer(f.oracle)), ctxrecord.ErrUninitialized)
	require.ErrorIs(t, call(data, f.ctx, hosttest.Signer(f.lp)), ErrOracleMismatch)
	require.ErrorIs(t, call([]byte{OpResolve, 2}, f.ctx, hosttest.Signer(f.oracle)), ErrInvalidOutcome)
	require.ErrorIs(t, call([]byte{OpResolve}, f.ctx, hosttest.Signer(f.oracle)), ctxrecord.ErrInvalidInstructionData)

	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.False(t, st.Resolved)
}

func TestProbabilitySyncAcceptsUnsignedOracle(t *testing.T) {
	f := newFixture(t, 0, 0)
	data, err := ctxrecord.EncodePayload(OpProbabilitySync, ProbabilitySyncParams{Probability: 250_000})
	require.NoError(t, err)

	oracle := hosttest.Readonly(f.oracle)
	require.False(t, oracle.IsSigner)
	require.NoError(t, Program{}.Process(hosttest.Invocation(host.Clock{Slot: 40}, data, f.ctx, oracle)))

	st, err := Load(f.ctx.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(250_000), st.ProbabilityMark)
	require.Equal(t, uint64(40), st.LastUpdateSlot)
}
