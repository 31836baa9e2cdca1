// Package indexer mirrors every matcher context record owned by the
// configured programs into the store.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/matchers/internal/config"
	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/executor"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/metrics"
	"github.com/coldbell/matchers/internal/store"
)

type Service struct {
	cfg         config.IndexerConfig
	rpc         *rpc.Client
	store       *store.Store
	deployments matcher.Deployments
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func New(cfg config.IndexerConfig, logger *slog.Logger) (*Service, error) {
	deployments, err := matcher.NewDeployments(cfg.Programs)
	if err != nil {
		return nil, fmt.Errorf("program ids: %w", err)
	}

	st, err := store.NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &Service{
		cfg:         cfg,
		rpc:         rpc.New(cfg.RPCURL),
		store:       st,
		deployments: deployments,
		metrics:     metrics.GetCollector(),
		logger:      logger,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("indexer started",
		"rpc", s.cfg.RPCURL,
		"db_driver", "postgres",
		"commitment", s.cfg.Commitment,
		"programs", len(s.deployments),
	)

	go func() {
		if err := s.metrics.Serve(ctx, s.cfg.MetricsListenAddr, s.logger); err != nil {
			s.logger.Error("metrics listener failed", "err", err)
		}
	}()

	if err := s.syncOnce(ctx); err != nil {
		s.logger.Error("initial sync failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				s.logger.Error("sync failed", "err", err)
			}
		}
	}
}

func (s *Service) syncOnce(ctx context.Context) error {
	var slot uint64
	err := withRetry(ctx, s.retryPolicy(), func() error {
		var err error
		slot, err = s.rpc.GetSlot(ctx, s.cfg.Commitment)
		return err
	})
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}

	stats := map[string]int{}
	for _, programID := range s.sortedProgramIDs() {
		program := s.deployments[programID]
		count, err := s.syncProgram(ctx, programID, program, slot)
		if err != nil {
			return fmt.Errorf("sync %s: %w", program.Name(), err)
		}
		stats[program.Name()] = count
		s.metrics.IndexedRecords.WithLabelValues(program.Name()).Set(float64(count))
	}
	s.metrics.IndexerLastSlot.Set(float64(slot))

	attrs := []any{"slot", slot}
	for name, count := range stats {
		attrs = append(attrs, name, count)
	}
	s.logger.Info("sync complete", attrs...)
	return nil
}

func (s *Service) syncProgram(ctx context.Context, programID solana.PublicKey, program matcher.Program, slot uint64) (int, error) {
	var accounts rpc.GetProgramAccountsResult
	err := withRetry(ctx, s.retryPolicy(), func() error {
		var err error
		accounts, err = s.rpc.GetProgramAccountsWithOpts(ctx, programID, programAccountsOpts(program, s.cfg.Commitment))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("scan accounts for program %s: %w", programID, err)
	}

	count := 0
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, item := range accounts {
			record, err := recordFromAccount(program, item, slot)
			if err != nil {
				s.logger.Warn("failed to index account",
					"program", program.Name(),
					"pubkey", item.Pubkey,
					"slot", slot,
					"err", err,
				)
				continue
			}
			if err := s.store.UpsertRecordTx(ctx, tx, record); err != nil {
				return err
			}
			count++
		}
		return s.store.UpsertSyncStateTx(ctx, tx, program.Name(), slot)
	})
	return count, err
}

func (s *Service) sortedProgramIDs() []solana.PublicKey {
	ids := make([]solana.PublicKey, 0, len(s.deployments))
	for id := range s.deployments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.deployments[ids[i]].Name() < s.deployments[ids[j]].Name() })
	return ids
}

func (s *Service) retryPolicy() retryPolicy {
	return retryPolicy{
		attempts:  s.cfg.RPCMaxRetries,
		baseDelay: s.cfg.RPCRetryBaseDelay,
		maxDelay:  s.cfg.RPCRetryMaxDelay,
	}
}

// programAccountsOpts selects full-size records carrying the program's
// magic.
func programAccountsOpts(program matcher.Program, commitment rpc.CommitmentType) *rpc.GetProgramAccountsOpts {
	return &rpc.GetProgramAccountsOpts{
		Commitment: commitment,
		Filters: []rpc.RPCFilter{
			{DataSize: ctxrecord.Size},
			{Memcmp: &rpc.RPCFilterMemcmp{
				Offset: ctxrecord.MagicOffset,
				Bytes:  solana.Base58(ctxrecord.MagicBytes(program.Schema().Magic)),
			}},
		},
	}
}

func recordFromAccount(program matcher.Program, item *rpc.KeyedAccount, slot uint64) (executor.Record, error) {
	if item == nil || item.Account == nil || item.Account.Data == nil {
		return executor.Record{}, fmt.Errorf("empty account")
	}
	data := item.Account.Data.GetBinary()
	schema, err := ctxrecord.Identify(data)
	if err != nil {
		return executor.Record{}, err
	}
	if schema != program.Schema() {
		return executor.Record{}, fmt.Errorf("record carries %s magic under the %s program", schema.Name, program.Name())
	}
	return executor.Record{
		Key:     item.Pubkey,
		Owner:   item.Account.Owner,
		Program: program.Name(),
		Data:    append([]byte(nil), data...),
		Slot:    slot,
	}, nil
}
