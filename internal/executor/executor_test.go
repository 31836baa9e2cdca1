package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/matcher/event"
	"github.com/coldbell/matchers/internal/matcher/solver"
	"github.com/coldbell/matchers/internal/metrics"
)

type solverFixture struct {
	exec      *Executor
	store     *MemoryStore
	programID solana.PublicKey
	lp        solana.PublicKey
	ctx       solana.PublicKey
	solver    solana.PublicKey
}

func newSolverFixture(t *testing.T) *solverFixture {
	t.Helper()
	f := &solverFixture{
		store:     NewMemoryStore(),
		programID: solana.NewWallet().PublicKey(),
		lp:        solana.NewWallet().PublicKey(),
		ctx:       solana.NewWallet().PublicKey(),
		solver:    solana.NewWallet().PublicKey(),
	}
	deployments, err := matcher.NewDeployments(map[string]solana.PublicKey{"solver": f.programID})
	require.NoError(t, err)
	f.exec = New(f.store, FixedClock{Slot: 10, UnixTimestamp: 1_700_000_000}, nil,
		WithDeployments(deployments), WithMetrics(metrics.NewCollector()))

	ix, err := solver.NewInitInstruction(f.programID, f.lp, f.ctx, f.solver, solver.InitParams{
		BaseSpreadBps: 20,
		MaxSpreadBps:  100,
		SolverFeeBps:  10,
	})
	require.NoError(t, err)
	_, err = f.exec.Invoke(context.Background(), Request{Instruction: ix, Create: true})
	require.NoError(t, err)
	return f
}

func (f *solverFixture) match(t *testing.T, req Request) (Result, error) {
	t.Helper()
	size := uint64(5)
	req.Instruction = solver.NewMatchInstruction(f.programID, f.lp, f.ctx, &size)
	return f.exec.Invoke(context.Background(), req)
}

func TestInitCreatesRecord(t *testing.T) {
	f := newSolverFixture(t)

	record, ok := f.store.Get(f.ctx)
	require.True(t, ok)
	assert.Equal(t, f.programID, record.Owner)
	assert.Equal(t, "solver", record.Program)
	assert.Len(t, record.Data, ctxrecord.Size)
	assert.True(t, ctxrecord.VerifyMagic(record.Data, solver.Magic))
}

func TestMatchCommitsAndJournals(t *testing.T) {
	f := newSolverFixture(t)

	ix, err := solver.NewOracleUpdateInstruction(f.programID, f.solver, f.ctx, 100_000_000)
	require.NoError(t, err)
	_, err = f.exec.Invoke(context.Background(), Request{Instruction: ix})
	require.NoError(t, err)

	result, err := f.match(t, Request{})
	require.NoError(t, err)
	assert.Equal(t, "match", result.Op)
	assert.True(t, result.Priced)
	assert.Equal(t, uint64(100_300_000), result.ExecPrice)
	require.Len(t, result.Updated, 1)

	record, _ := f.store.Get(f.ctx)
	assert.Equal(t, uint64(100_300_000), solver.LastExecPrice.Get(record.Data))
	assert.Equal(t, uint64(1), solver.TotalOrders.Get(record.Data))

	matches := f.store.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, f.ctx, matches[0].Context)
	require.NotNil(t, matches[0].TradeSize)
	assert.Equal(t, uint64(5), *matches[0].TradeSize)
}

func TestSimulateDoesNotCommit(t *testing.T) {
	f := newSolverFixture(t)
	ix, err := solver.NewOracleUpdateInstruction(f.programID, f.solver, f.ctx, 100_000_000)
	require.NoError(t, err)
	_, err = f.exec.Invoke(context.Background(), Request{Instruction: ix})
	require.NoError(t, err)
	before, _ := f.store.Get(f.ctx)

	result, err := f.match(t, Request{Simulate: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(100_300_000), result.ExecPrice)

	after, _ := f.store.Get(f.ctx)
	assert.Equal(t, before.Data, after.Data)
	assert.Empty(t, f.store.Matches())
}

func TestUntouchedWritableAccountsAreNotCommitted(t *testing.T) {
	f := newSolverFixture(t)
	ix, err := solver.NewOracleUpdateInstruction(f.programID, f.solver, f.ctx, 100_000_000)
	require.NoError(t, err)
	_, err = f.exec.Invoke(context.Background(), Request{Instruction: ix})
	require.NoError(t, err)

	extra := solana.NewWallet().PublicKey()
	size := uint64(5)
	match := solana.NewInstruction(f.programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(f.lp, true, true),
		solana.NewAccountMeta(f.ctx, true, false),
		solana.NewAccountMeta(extra, true, false),
	}, ctxrecord.MatchPayload(&size))

	for _, create := range []bool{false, true} {
		result, err := f.exec.Invoke(context.Background(), Request{Instruction: match, Create: create})
		require.NoError(t, err)
		require.Len(t, result.Updated, 1)
		assert.Equal(t, f.ctx, result.Updated[0].Key)

		_, ok := f.store.Get(f.lp)
		assert.False(t, ok, "lp committed with create=%v", create)
		_, ok = f.store.Get(extra)
		assert.False(t, ok, "extra account committed with create=%v", create)
	}
}

func TestCreatedContextIsDroppedWhenUnwritten(t *testing.T) {
	f := newSolverFixture(t)
	fresh := solana.NewWallet().PublicKey()

	_, err := f.exec.Invoke(context.Background(), Request{
		Instruction: solver.NewMatchInstruction(f.programID, f.lp, fresh, nil),
		Create:      true,
	})
	require.Error(t, err)
	_, ok := f.store.Get(fresh)
	assert.False(t, ok)
}

func TestFailureCommitsNothing(t *testing.T) {
	f := newSolverFixture(t)
	before, _ := f.store.Get(f.ctx)

	_, err := f.match(t, Request{})
	require.ErrorIs(t, err, solver.ErrOraclePriceNotSet)

	after, _ := f.store.Get(f.ctx)
	assert.Equal(t, before.Data, after.Data)
}

func TestResolveProgram(t *testing.T) {
	f := newSolverFixture(t)

	_, err := f.exec.Invoke(context.Background(), Request{Program: "nope", Instruction: solver.NewMatchInstruction(f.programID, f.lp, f.ctx, nil)})
	assert.ErrorIs(t, err, ErrUnknownProgram)

	stranger := solana.NewWallet().PublicKey()
	_, err = f.exec.Invoke(context.Background(), Request{Instruction: solver.NewMatchInstruction(stranger, f.lp, f.ctx, nil)})
	assert.ErrorIs(t, err, ErrUnknownProgram)

	_, err = f.exec.Invoke(context.Background(), Request{})
	assert.Error(t, err)
}

func TestDuplicateAccountsShareBuffer(t *testing.T) {
	store := NewMemoryStore()
	exec := New(store, FixedClock{Slot: 1}, nil)
	programID := solana.NewWallet().PublicKey()
	oracle := solana.NewWallet().PublicKey()
	lp := solana.NewWallet().PublicKey()
	ctxKey := solana.NewWallet().PublicKey()

	ix, err := event.NewInitInstruction(programID, lp, ctxKey, event.InitParams{
		BaseSpreadBps:      20,
		EdgeSpreadBps:      100,
		MaxSpreadBps:       500,
		InitialProbability: 500_000,
		EventOracle:        oracle,
	})
	require.NoError(t, err)
	_, err = exec.Invoke(context.Background(), Request{Program: "event", Instruction: ix, Create: true})
	require.NoError(t, err)

	// The context listed in both positions is one account; the oracle
	// check fails because the oracle key differs.
	sync, err := event.NewProbabilitySyncInstruction(programID, ctxKey, ctxKey, event.ProbabilitySyncParams{Probability: 1})
	require.NoError(t, err)
	_, err = exec.Invoke(context.Background(), Request{Program: "event", Instruction: sync})
	require.ErrorIs(t, err, event.ErrOracleMismatch)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Commit(context.Context, []Record) error { return errors.New("disk full") }

func TestCommitFailureSurfaces(t *testing.T) {
	store := failingStore{NewMemoryStore()}
	exec := New(store, FixedClock(host.Clock{Slot: 1}), nil)
	programID := solana.NewWallet().PublicKey()

	ix, err := solver.NewInitInstruction(programID, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solver.InitParams{MaxSpreadBps: 10})
	require.NoError(t, err)
	_, err = exec.Invoke(context.Background(), Request{Program: "solver", Instruction: ix, Create: true})
	assert.ErrorContains(t, err, "disk full")
}
