package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/dex"
	"github.com/coldbell/matchers/internal/executor"
	"github.com/coldbell/matchers/internal/host"
	"github.com/coldbell/matchers/internal/logging"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/matcher/compliance"
	"github.com/coldbell/matchers/internal/matcher/event"
	"github.com/coldbell/matchers/internal/matcher/macro"
	"github.com/coldbell/matchers/internal/matcher/solver"
	"github.com/coldbell/matchers/internal/matcher/volatility"
)

// simulateScript is a scripted run against an in-memory executor. Keys are
// base58 pubkeys, free-form labels (hashed to a stable key), or
// lp-pda:<settlement>:<slab>:<index>.
type simulateScript struct {
	Clock    scriptClockSpec `yaml:"clock"`
	Accounts []scriptAccount `yaml:"accounts"`
	Steps    []scriptStep    `yaml:"steps"`
}

type scriptClockSpec struct {
	Slot          uint64 `yaml:"slot"`
	UnixTimestamp int64  `yaml:"unix_timestamp"`
}

// scriptAccount seeds a non-matcher account, such as a KYC whitelist entry.
type scriptAccount struct {
	Key       string         `yaml:"key"`
	Owner     string         `yaml:"owner"`
	Data      string         `yaml:"data"`
	Whitelist *whitelistSpec `yaml:"whitelist"`
}

type whitelistSpec struct {
	KycLevel     uint8 `yaml:"kyc_level"`
	Expiry       int64 `yaml:"expiry"`
	Jurisdiction uint8 `yaml:"jurisdiction"`
}

type scriptStep struct {
	Name          string       `yaml:"name"`
	Program       string       `yaml:"program"`
	Op            string       `yaml:"op"`
	Accounts      []scriptMeta `yaml:"accounts"`
	Params        yaml.Node    `yaml:"params"`
	TradeSize     *uint64      `yaml:"trade_size"`
	Slot          *uint64      `yaml:"slot"`
	UnixTimestamp *int64       `yaml:"unix_timestamp"`
	// Expect is "ok", an error kind, or codespace:code.
	Expect string `yaml:"expect"`
}

type scriptMeta struct {
	Key      string `yaml:"key"`
	Signer   bool   `yaml:"signer"`
	Writable bool   `yaml:"writable"`
}

type stepOutcome struct {
	Index  int
	Step   scriptStep
	Result executor.Result
	Err    error
	Failed string
}

func newSimulateCmd() *cobra.Command {
	var (
		scriptPath string
		show       []string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted sequence of matcher instructions in memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			node, err := readYAMLNode(scriptPath)
			if err != nil {
				return err
			}
			var script simulateScript
			if err := node.Decode(&script); err != nil {
				return fmt.Errorf("decode script: %w", err)
			}

			logger := logging.Discard()
			if verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			sim := newSimulator(script.Clock, logger)
			outcomes, err := sim.run(cmd.Context(), script)
			if err != nil {
				return err
			}
			if err := printOutcomes(cmd.OutOrStdout(), outcomes); err != nil {
				return err
			}
			for _, ref := range show {
				if err := sim.show(cmd.OutOrStdout(), ref); err != nil {
					return err
				}
			}

			failed := 0
			for _, outcome := range outcomes {
				if outcome.Failed != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d steps did not match their expectation", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scriptPath, "file", "f", "", "YAML script")
	cmd.Flags().StringSliceVar(&show, "show", nil, "decode these records after the run")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every invocation to stderr")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type simulator struct {
	keys  *keyring
	store *executor.MemoryStore
	clock *scriptClock
	exec  *executor.Executor
}

type scriptClock struct {
	now host.Clock
}

func (c *scriptClock) Now(context.Context) (host.Clock, error) { return c.now, nil }

func newSimulator(start scriptClockSpec, logger *slog.Logger) *simulator {
	sim := &simulator{
		keys:  newKeyring(),
		store: executor.NewMemoryStore(),
		clock: &scriptClock{now: host.Clock{Slot: start.Slot, UnixTimestamp: start.UnixTimestamp}},
	}
	sim.exec = executor.New(sim.store, sim.clock, logger)
	return sim
}

func (s *simulator) run(ctx context.Context, script simulateScript) ([]stepOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, acc := range script.Accounts {
		if err := s.seed(acc); err != nil {
			return nil, err
		}
	}

	outcomes := make([]stepOutcome, 0, len(script.Steps))
	for i, step := range script.Steps {
		if step.Slot != nil {
			s.clock.now.Slot = *step.Slot
		}
		if step.UnixTimestamp != nil {
			s.clock.now.UnixTimestamp = *step.UnixTimestamp
		}

		req, err := s.request(step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result, invokeErr := s.exec.Invoke(ctx, req)
		outcome := stepOutcome{Index: i + 1, Step: step, Result: result, Err: invokeErr}
		outcome.Failed = checkExpectation(step.Expect, invokeErr)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *simulator) seed(acc scriptAccount) error {
	key, err := s.keys.resolve(acc.Key)
	if err != nil {
		return fmt.Errorf("account %q: %w", acc.Key, err)
	}
	owner, err := s.keys.resolve(acc.Owner)
	if err != nil {
		return fmt.Errorf("account %q owner: %w", acc.Key, err)
	}

	var data []byte
	switch {
	case acc.Whitelist != nil:
		data = compliance.EncodeWhitelistEntry(compliance.WhitelistEntry{
			KycLevel:     compliance.KycLevel(acc.Whitelist.KycLevel),
			Expiry:       acc.Whitelist.Expiry,
			Jurisdiction: acc.Whitelist.Jurisdiction,
		})
	case acc.Data != "":
		if data, err = hex.DecodeString(strings.TrimPrefix(acc.Data, "0x")); err != nil {
			return fmt.Errorf("account %q data: %w", acc.Key, err)
		}
	}
	s.store.Put(executor.Record{Key: key, Owner: owner, Data: data})
	return nil
}

func (s *simulator) request(step scriptStep) (executor.Request, error) {
	program, ok := matcher.ByName(step.Program)
	if !ok {
		return executor.Request{}, fmt.Errorf("unknown program %q", step.Program)
	}
	programID, err := s.keys.resolve("program:" + program.Name())
	if err != nil {
		return executor.Request{}, err
	}

	metas := make(solana.AccountMetaSlice, 0, len(step.Accounts))
	for _, meta := range step.Accounts {
		key, err := s.keys.resolve(meta.Key)
		if err != nil {
			return executor.Request{}, fmt.Errorf("account %q: %w", meta.Key, err)
		}
		metas = append(metas, solana.NewAccountMeta(key, meta.Writable, meta.Signer))
	}

	data, err := s.payload(program, step)
	if err != nil {
		return executor.Request{}, err
	}
	return executor.Request{
		Program:     program.Name(),
		Instruction: solana.NewInstruction(programID, metas, data),
		Create:      step.Op == "init",
	}, nil
}

func (s *simulator) payload(program matcher.Program, step scriptStep) ([]byte, error) {
	switch step.Op {
	case "match":
		return ctxrecord.MatchPayload(step.TradeSize), nil
	case "init":
		params, err := initParams(program.Name(), paramsNode(step), s.keys.resolve)
		if err != nil {
			return nil, fmt.Errorf("init params: %w", err)
		}
		return ctxrecord.EncodePayload(ctxrecord.OpInit, params)
	}

	opcode, ok := opcodeFor(program, step.Op)
	if !ok {
		return nil, fmt.Errorf("%s has no op %q", program.Name(), step.Op)
	}
	params, ok := opParams(program.Name(), step.Op)
	if !ok {
		return ctxrecord.EncodePayload(opcode, nil)
	}
	if err := paramsNode(step).Decode(params); err != nil {
		return nil, fmt.Errorf("%s params: %w", step.Op, err)
	}
	return ctxrecord.EncodePayload(opcode, reflect.ValueOf(params).Elem().Interface())
}

func paramsNode(step scriptStep) *yaml.Node {
	if step.Params.Kind == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}
	}
	return &step.Params
}

func opcodeFor(program matcher.Program, op string) (byte, bool) {
	for code := 0; code <= 0xff; code++ {
		if program.OpName(byte(code)) == op {
			return byte(code), true
		}
	}
	return 0, false
}

// opParams returns a pointer to the payload struct of a variant sync op.
func opParams(program, op string) (any, bool) {
	switch program + "/" + op {
	case "solver/oracle_update":
		return &solver.OracleUpdateParams{}, true
	case "compliance/oracle_update":
		return &compliance.OracleUpdateParams{}, true
	case "volatility/oracle_sync":
		return &volatility.SyncParams{}, true
	case "macro/index_sync":
		return &macro.IndexSyncParams{}, true
	case "macro/regime_update":
		return &macro.RegimeUpdateParams{}, true
	case "event/probability_sync":
		return &event.ProbabilitySyncParams{}, true
	case "event/resolve":
		return &event.ResolveParams{}, true
	default:
		return nil, false
	}
}

// checkExpectation returns a description of the mismatch, or "" when the
// outcome is what the step expected.
func checkExpectation(expect string, err error) string {
	expect = strings.TrimSpace(expect)
	switch {
	case expect == "":
		return ""
	case expect == "ok":
		if err != nil {
			return "expected success"
		}
		return ""
	case err == nil:
		return "expected " + expect
	}

	if ctxrecord.KindOf(err).String() == expect {
		return ""
	}
	if coded, ok := ctxrecord.Coded(err); ok && fmt.Sprintf("%s:%d", coded.Codespace(), coded.ABCICode()) == expect {
		return ""
	}
	return "expected " + expect
}

func (s *simulator) show(out io.Writer, ref string) error {
	key, err := s.keys.resolve(ref)
	if err != nil {
		return err
	}
	record, ok := s.store.Get(key)
	if !ok {
		return fmt.Errorf("no record for %q", ref)
	}
	schema, err := ctxrecord.Identify(record.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	values, err := schema.Decode(record.Data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s (%s, %s)\n", ref, key, schema.Name)
	return printValues(out, values)
}

func printOutcomes(out io.Writer, outcomes []stepOutcome) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tNAME\tPROGRAM\tOP\tRESULT\tPRICE\tCHECK")
	for _, outcome := range outcomes {
		result := "ok"
		if outcome.Err != nil {
			result = describeError(outcome.Err)
		}
		price := "-"
		if outcome.Err == nil && outcome.Result.Priced {
			price = ctxrecord.FormatE6(outcome.Result.ExecPrice)
		}
		check := "-"
		if outcome.Step.Expect != "" {
			check = "pass"
			if outcome.Failed != "" {
				check = "FAIL: " + outcome.Failed
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			outcome.Index, outcome.Step.Name, outcome.Step.Program, outcome.Result.Op, result, price, check)
	}
	return w.Flush()
}

func describeError(err error) string {
	coded, ok := ctxrecord.Coded(err)
	if !ok {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("%s (%s:%d %s)", ctxrecord.KindOf(err), coded.Codespace(), coded.ABCICode(), coded.Error())
}

type keyring struct {
	labels map[string]solana.PublicKey
}

func newKeyring() *keyring {
	return &keyring{labels: map[string]solana.PublicKey{}}
}

func (k *keyring) resolve(ref string) (solana.PublicKey, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return solana.PublicKey{}, nil
	}
	if key, ok := k.labels[ref]; ok {
		return key, nil
	}
	if key, err := solana.PublicKeyFromBase58(ref); err == nil {
		return key, nil
	}

	var key solana.PublicKey
	if rest, ok := strings.CutPrefix(ref, "lp-pda:"); ok {
		parts := strings.Split(rest, ":")
		if len(parts) != 3 {
			return solana.PublicKey{}, errors.New("lp-pda wants <settlement>:<slab>:<index>")
		}
		settlement, err := k.resolve(parts[0])
		if err != nil {
			return solana.PublicKey{}, err
		}
		slab, err := k.resolve(parts[1])
		if err != nil {
			return solana.PublicKey{}, err
		}
		index, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("lp-pda index: %w", err)
		}
		key = dex.MustDeriveLPPDA(settlement, slab, uint16(index))
	} else {
		sum := sha256.Sum256([]byte("matcherctl:" + ref))
		key = solana.PublicKeyFromBytes(sum[:])
	}
	k.labels[ref] = key
	return key, nil
}
