package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/matchers/internal/host"
)

type Clock interface {
	Now(ctx context.Context) (host.Clock, error)
}

// FixedClock always reports the same slot and time.
type FixedClock host.Clock

func (c FixedClock) Now(context.Context) (host.Clock, error) { return host.Clock(c), nil }

// RPCClock reads the cluster slot and block time. When the block time is
// unavailable it falls back to the local wall clock.
type RPCClock struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

func NewRPCClock(client *rpc.Client, commitment rpc.CommitmentType, logger *slog.Logger) *RPCClock {
	return &RPCClock{client: client, commitment: commitment, logger: logger}
}

func (c *RPCClock) Now(ctx context.Context) (host.Clock, error) {
	slot, err := c.client.GetSlot(ctx, c.commitment)
	if err != nil {
		return host.Clock{}, err
	}

	blockTime, err := c.client.GetBlockTime(ctx, slot)
	if err != nil || blockTime == nil {
		if c.logger != nil {
			c.logger.Warn("using local clock because getBlockTime unavailable", "slot", slot, "err", err)
		}
		return host.Clock{Slot: slot, UnixTimestamp: time.Now().Unix()}, nil
	}
	return host.Clock{Slot: slot, UnixTimestamp: int64(*blockTime)}, nil
}
