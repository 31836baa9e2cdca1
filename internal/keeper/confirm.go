package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const confirmPollInterval = 700 * time.Millisecond

var errSyncRejected = errors.New("sync transaction rejected")

// waitForConfirmation polls the signature until it lands at the keeper's
// commitment or ctx ends. On timeout the last RPC failure is reported with
// the context error.
func (s *Service) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	want := confirmTarget(s.cfg.Commitment)
	timer := time.NewTimer(confirmPollInterval)
	defer timer.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w (last status error: %v)", ctx.Err(), lastErr)
			}
			return ctx.Err()
		case <-timer.C:
		}

		result, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
		switch {
		case err != nil:
			lastErr = err
			s.logger.Debug("signature status lookup failed", "signature", sig, "err", err)
		case len(result.Value) > 0:
			done, err := settled(result.Value[0], want)
			if done {
				return err
			}
		}
		timer.Reset(confirmPollInterval)
	}
}

// confirmTarget never settles below confirmed; a processed sync can still
// be dropped on a fork.
func confirmTarget(commitment rpc.CommitmentType) rpc.ConfirmationStatusType {
	if commitment == rpc.CommitmentFinalized {
		return rpc.ConfirmationStatusFinalized
	}
	return rpc.ConfirmationStatusConfirmed
}

// settled reports whether status is final for want. A failed transaction is
// settled with errSyncRejected.
func settled(status *rpc.SignatureStatusesResult, want rpc.ConfirmationStatusType) (bool, error) {
	if status == nil {
		return false, nil
	}
	if status.Err != nil {
		return true, fmt.Errorf("%w: %v", errSyncRejected, status.Err)
	}
	return confirmationRank(status.ConfirmationStatus) >= confirmationRank(want), nil
}

func confirmationRank(status rpc.ConfirmationStatusType) int {
	switch status {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}
