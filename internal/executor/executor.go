// Package executor runs matcher instructions against stored records the way
// the on-chain runtime would: every account is loaded, the program runs on
// private copies, and the writes are committed together or not at all.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
	"github.com/coldbell/matchers/internal/logging"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/metrics"
)

var ErrUnknownProgram = errors.New("unknown matcher program")

type Request struct {
	// Program names the matcher. When empty the instruction's program ID is
	// looked up in the deployment table.
	Program     string
	Instruction solana.Instruction
	// Simulate runs the instruction without committing anything.
	Simulate bool
	// Create materializes a missing context account (account 1) as a
	// zeroed record owned by the invoked program. It is committed only if
	// the program writes to it.
	Create bool
}

// contextSlot is the index of the context account in every matcher
// instruction.
const contextSlot = 1

type Result struct {
	Program string
	Op      string
	Clock   host.Clock
	// ExecPrice is the price a Match wrote into the context record.
	ExecPrice uint64
	Priced    bool
	Updated   []Record
}

type Executor struct {
	store       RecordStore
	clock       Clock
	deployments matcher.Deployments
	metrics     *metrics.Collector
	logger      *slog.Logger

	// Serializes load, process and commit so concurrent calls on one
	// record cannot lose writes.
	mu sync.Mutex
}

type Option func(*Executor)

func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Executor) { e.metrics = collector }
}

func WithDeployments(deployments matcher.Deployments) Option {
	return func(e *Executor) { e.deployments = deployments }
}

func New(store RecordStore, clock Clock, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	e := &Executor{store: store, clock: clock, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Invoke(ctx context.Context, req Request) (Result, error) {
	if req.Instruction == nil {
		return Result{}, fmt.Errorf("missing instruction")
	}
	program, err := e.resolve(req)
	if err != nil {
		return Result{}, err
	}
	data, err := req.Instruction.Data()
	if err != nil {
		return Result{}, fmt.Errorf("encode instruction data: %w", err)
	}

	result := Result{Program: program.Name(), Op: "unknown"}
	if len(data) > 0 {
		result.Op = program.OpName(data[0])
	}

	clock, err := e.clock.Now(ctx)
	if err != nil {
		return result, fmt.Errorf("read clock: %w", err)
	}
	result.Clock = clock

	e.mu.Lock()
	defer e.mu.Unlock()

	inv, snapshots, err := e.buildInvocation(ctx, req, data, clock)
	if err != nil {
		return result, err
	}

	start := time.Now()
	procErr := program.Process(inv)
	e.observe(result.Program, result.Op, procErr, time.Since(start))

	logger := logging.WithMatcher(e.logger, result.Program, contextKey(inv.Accounts)).With("op", result.Op, "slot", clock.Slot)
	if procErr != nil {
		logger.Warn("invocation rejected", append([]any{"err", procErr}, errorAttrs(procErr)...)...)
		return result, procErr
	}

	for _, acc := range uniqueAccounts(inv.Accounts) {
		if !acc.IsWritable || bytes.Equal(snapshots[acc.Key], acc.Data) {
			continue
		}
		result.Updated = append(result.Updated, Record{
			Key:     acc.Key,
			Owner:   acc.Owner,
			Program: result.Program,
			Data:    append([]byte(nil), acc.Data...),
			Slot:    clock.Slot,
		})
	}

	if len(data) > 0 && data[0] == ctxrecord.OpMatch && len(inv.Accounts) > contextSlot {
		result.ExecPrice, result.Priced = ctxrecord.ReadExecutionPrice(inv.Accounts[contextSlot].Data)
	}

	if req.Simulate {
		logger.Debug("invocation simulated", "price", result.ExecPrice)
		return result, nil
	}

	if len(result.Updated) > 0 {
		if err := e.store.Commit(ctx, result.Updated); err != nil {
			return result, fmt.Errorf("commit %d records: %w", len(result.Updated), err)
		}
	}
	if result.Priced {
		e.journalMatch(ctx, logger, result, inv, data)
	}
	logger.Info("invocation committed", "updated", len(result.Updated), "price", result.ExecPrice)
	return result, nil
}

func (e *Executor) resolve(req Request) (matcher.Program, error) {
	if req.Program != "" {
		program, ok := matcher.ByName(req.Program)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, req.Program)
		}
		return program, nil
	}
	program, ok := e.deployments.ByProgramID(req.Instruction.ProgramID())
	if !ok {
		return nil, fmt.Errorf("%w: program id %s", ErrUnknownProgram, req.Instruction.ProgramID())
	}
	return program, nil
}

// buildInvocation loads every referenced account. An account listed twice
// is one account with the union of its flags, as in the runtime.
func (e *Executor) buildInvocation(ctx context.Context, req Request, data []byte, clock host.Clock) (*host.Invocation, map[solana.PublicKey][]byte, error) {
	metas := req.Instruction.Accounts()
	keys := make([]solana.PublicKey, 0, len(metas))
	for _, meta := range metas {
		keys = append(keys, meta.PublicKey)
	}

	stored, err := e.store.Load(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("load accounts: %w", err)
	}

	programID := req.Instruction.ProgramID()
	inv := &host.Invocation{ProgramID: programID, Data: data, Clock: clock}
	byKey := make(map[solana.PublicKey]*host.Account, len(metas))
	snapshots := make(map[solana.PublicKey][]byte, len(metas))
	for i, meta := range metas {
		if acc, ok := byKey[meta.PublicKey]; ok {
			acc.IsSigner = acc.IsSigner || meta.IsSigner
			acc.IsWritable = acc.IsWritable || meta.IsWritable
			inv.Accounts = append(inv.Accounts, acc)
			continue
		}

		acc := &host.Account{Key: meta.PublicKey, IsSigner: meta.IsSigner, IsWritable: meta.IsWritable}
		if record, ok := stored[meta.PublicKey]; ok {
			acc.Owner = record.Owner
			acc.Data = append([]byte(nil), record.Data...)
		} else if req.Create && i == contextSlot && meta.IsWritable {
			acc.Owner = programID
			acc.Data = ctxrecord.NewRecord()
		}
		snapshots[meta.PublicKey] = append([]byte(nil), acc.Data...)
		byKey[meta.PublicKey] = acc
		inv.Accounts = append(inv.Accounts, acc)
	}
	return inv, snapshots, nil
}

func (e *Executor) journalMatch(ctx context.Context, logger *slog.Logger, result Result, inv *host.Invocation, data []byte) {
	ctxKey := inv.Accounts[1].Key
	if e.metrics != nil {
		e.metrics.ExecutionPrice.WithLabelValues(result.Program, ctxKey.String()).Set(float64(result.ExecPrice))
	}

	journal, ok := e.store.(MatchJournal)
	if !ok {
		return
	}
	event := MatchEvent{Context: ctxKey, Program: result.Program, Price: result.ExecPrice, Slot: result.Clock.Slot}
	if size, ok := ctxrecord.TradeSize(data); ok {
		event.TradeSize = &size
	}
	if err := journal.RecordMatch(ctx, event); err != nil {
		logger.Warn("record match failed", "err", err)
	}
}

func (e *Executor) observe(program, op string, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = ctxrecord.KindOf(err).String()
	}
	e.metrics.InvocationsTotal.WithLabelValues(program, op, outcome).Inc()
	e.metrics.InvocationLatency.WithLabelValues(program, op).Observe(elapsed.Seconds())
}

// contextKey returns the first writable account holding a matcher record.
func contextKey(accounts []*host.Account) solana.PublicKey {
	for _, acc := range accounts {
		if !acc.IsWritable {
			continue
		}
		if _, err := ctxrecord.Identify(acc.Data); err == nil {
			return acc.Key
		}
	}
	return solana.PublicKey{}
}

func uniqueAccounts(accounts []*host.Account) []*host.Account {
	seen := make(map[*host.Account]struct{}, len(accounts))
	out := make([]*host.Account, 0, len(accounts))
	for _, acc := range accounts {
		if _, ok := seen[acc]; ok {
			continue
		}
		seen[acc] = struct{}{}
		out = append(out, acc)
	}
	return out
}

// errorAttrs returns the registered code and kind of err as log attributes.
func errorAttrs(err error) []any {
	coded, ok := ctxrecord.Coded(err)
	if !ok {
		return nil
	}
	return []any{"codespace", coded.Codespace(), "code", coded.ABCICode(), "kind", ctxrecord.KindOf(err).String()}
}
