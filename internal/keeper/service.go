// Package keeper keeps matcher context records fresh: it watches price and
// signal feeds and sends each variant's sync instruction when the stored
// state drifts from the feed or approaches its staleness window.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/matchers/internal/config"
	"github.com/coldbell/matchers/internal/logging"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/metrics"
)

type Service struct {
	cfg         config.KeeperConfig
	rpc         *rpc.Client
	signer      solana.PrivateKey
	deployments matcher.Deployments
	feeds       *feedCache
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func New(cfg config.KeeperConfig, logger *slog.Logger) (*Service, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}

	deployments, err := matcher.NewDeployments(cfg.Programs)
	if err != nil {
		return nil, fmt.Errorf("program ids: %w", err)
	}

	feeds := newFeedCache()
	now := time.Now()
	for _, target := range cfg.Targets {
		obs, err := parseObservation(target.Static)
		if err != nil {
			return nil, fmt.Errorf("target %s static observation: %w", target.Context, err)
		}
		feeds.set(sourceStatic, target.Context.String(), obs, now)
	}

	return &Service{
		cfg:         cfg,
		rpc:         rpc.New(cfg.RPCURL),
		signer:      signer,
		deployments: deployments,
		feeds:       feeds,
		metrics:     metrics.GetCollector(),
		logger:      logger,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("keeper started",
		"rpc", s.cfg.RPCURL,
		"commitment", s.cfg.Commitment,
		"keeper", s.signer.PublicKey(),
		"targets", len(s.cfg.Targets),
		"refresh_slots", s.cfg.RefreshSlots,
	)

	go func() {
		if err := s.metrics.Serve(ctx, s.cfg.MetricsListenAddr, s.logger); err != nil {
			s.logger.Error("metrics listener failed", "err", err)
		}
	}()
	if feeds := feedsFor(s.cfg.Targets, sourcePyth); len(feeds) > 0 {
		for i := range feeds {
			feeds[i] = normalizeFeedID(feeds[i])
		}
		go s.runPythPriceStream(ctx, feeds)
	}
	if channels := feedsFor(s.cfg.Targets, sourceWS); len(channels) > 0 {
		go s.runSignalStream(ctx, channels)
	}

	if err := s.tick(ctx); err != nil {
		s.logger.Error("keeper tick failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("keeper stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("keeper tick failed", "err", err)
			}
		}
	}
}

func (s *Service) tick(ctx context.Context) error {
	if len(s.cfg.Targets) == 0 {
		return nil
	}

	slot, err := s.rpc.GetSlot(ctx, s.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}

	keys := make([]solana.PublicKey, 0, len(s.cfg.Targets))
	for _, target := range s.cfg.Targets {
		keys = append(keys, target.Context)
	}
	accounts, err := s.rpc.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{Commitment: s.cfg.Commitment})
	if err != nil {
		return fmt.Errorf("fetch context accounts: %w", err)
	}
	if accounts == nil || len(accounts.Value) != len(keys) {
		return fmt.Errorf("fetch context accounts: unexpected result size")
	}

	synced, skipped, failed := 0, 0, 0
	for i, target := range s.cfg.Targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger := logging.WithMatcher(s.logger, target.Program, target.Context)
		err := s.syncTarget(ctx, target, accounts.Value[i], slot)
		switch {
		case err == nil:
			synced++
			s.metrics.KeeperSyncsTotal.WithLabelValues(target.Program, "synced").Inc()
		case errors.Is(err, errSkipTarget):
			skipped++
			s.metrics.KeeperSyncsTotal.WithLabelValues(target.Program, "skipped").Inc()
			logger.Debug("target skipped", "reason", err)
		default:
			failed++
			s.metrics.KeeperSyncsTotal.WithLabelValues(target.Program, "failed").Inc()
			logger.Warn("target sync failed", "err", err)
		}
	}

	s.logger.Info("keeper tick complete", "slot", slot, "synced", synced, "skipped", skipped, "failed", failed)
	return nil
}

func (s *Service) syncTarget(ctx context.Context, target config.KeeperTarget, account *rpc.Account, slot uint64) error {
	programID, ok := s.deployments.IDOf(target.Program)
	if !ok {
		return fmt.Errorf("no program id for %s", target.Program)
	}
	if account == nil || account.Data == nil {
		return fmt.Errorf("%w: context account not found", errSkipTarget)
	}
	if !account.Owner.Equals(programID) {
		return fmt.Errorf("context owned by %s, expected %s", account.Owner, programID)
	}

	obs, ok := s.observationFor(target)
	if !ok {
		return fmt.Errorf("%w: no observation yet", errSkipTarget)
	}

	instructions, err := planSync(syncRequest{
		ProgramID:    programID,
		Program:      target.Program,
		Context:      target.Context,
		Keeper:       s.signer.PublicKey(),
		Record:       account.Data.GetBinary(),
		Observation:  obs,
		Slot:         slot,
		RefreshSlots: s.cfg.RefreshSlots,
	})
	if err != nil {
		return err
	}

	instructions, err = s.withComputeBudget(instructions)
	if err != nil {
		return err
	}
	sig, err := s.sendTransaction(ctx, instructions)
	if err != nil {
		return fmt.Errorf("send sync: %w", err)
	}

	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()
	if err := s.waitForConfirmation(txCtx, sig); err != nil {
		return fmt.Errorf("confirm sync %s: %w", sig, err)
	}

	logging.WithMatcher(s.logger, target.Program, target.Context).Info("context synced",
		"signature", sig,
		"instructions", len(instructions),
		"slot", slot,
	)
	return nil
}

// observationFor reads the target's feed, falling back to its static
// observation until the feed delivers.
func (s *Service) observationFor(target config.KeeperTarget) (Observation, bool) {
	if target.Source != sourceStatic {
		feed := target.Feed
		if target.Source == sourcePyth {
			feed = normalizeFeedID(feed)
		}
		if obs, _, ok := s.feeds.get(target.Source, feed); ok {
			return obs, true
		}
	}
	obs, _, ok := s.feeds.get(sourceStatic, target.Context.String())
	if !ok || obs == (Observation{}) {
		return Observation{}, false
	}
	return obs, true
}

func (s *Service) withComputeBudget(instructions []solana.Instruction) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(instructions)+2)
	if s.cfg.ComputeUnitLimit > 0 {
		cuLimitIx, err := computebudget.NewSetComputeUnitLimitInstruction(s.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		out = append(out, cuLimitIx)
	}
	if s.cfg.ComputeUnitPriceMicroLamports > 0 {
		cuPriceIx, err := computebudget.NewSetComputeUnitPriceInstruction(s.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		out = append(out, cuPriceIx)
	}
	return append(out, instructions...), nil
}

func (s *Service) sendTransaction(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	recent, err := s.rpc.GetLatestBlockhash(ctx, s.cfg.Commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(s.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.signer.PublicKey().Equals(key) {
			return &s.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       s.cfg.SkipPreflight,
		PreflightCommitment: s.cfg.Commitment,
	}
	if s.cfg.MaxRetries != nil {
		retries := *s.cfg.MaxRetries
		opts.MaxRetries = &retries
	}

	return s.rpc.SendTransactionWithOpts(ctx, tx, opts)
}

// feedsFor lists the distinct feeds the targets of one source follow.
func feedsFor(targets []config.KeeperTarget, source string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, target := range targets {
		if target.Source != source || target.Feed == "" {
			continue
		}
		if _, ok := seen[target.Feed]; ok {
			continue
		}
		seen[target.Feed] = struct{}{}
		out = append(out, target.Feed)
	}
	sort.Strings(out)
	return out
}
