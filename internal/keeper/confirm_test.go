package keeper

import (
	"testing"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

func TestConfirmTarget(t *testing.T) {
	require.Equal(t, rpc.ConfirmationStatusConfirmed, confirmTarget(rpc.CommitmentProcessed))
	require.Equal(t, rpc.ConfirmationStatusConfirmed, confirmTarget(rpc.CommitmentConfirmed))
	require.Equal(t, rpc.ConfirmationStatusFinalized, confirmTarget(rpc.CommitmentFinalized))
	require.Equal(t, rpc.ConfirmationStatusConfirmed, confirmTarget(""))
}

func TestSettled(t *testing.T) {
	tests := []struct {
		name   string
		status *rpc.SignatureStatusesResult
		want   rpc.ConfirmationStatusType
		done   bool
	}{
		{name: "unknown signature", status: nil, want: rpc.ConfirmationStatusConfirmed},
		{name: "processed only", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusProcessed}, want: rpc.ConfirmationStatusConfirmed},
		{name: "confirmed", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}, want: rpc.ConfirmationStatusConfirmed, done: true},
		{name: "finalized satisfies confirmed", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized}, want: rpc.ConfirmationStatusConfirmed, done: true},
		{name: "confirmed short of finalized", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}, want: rpc.ConfirmationStatusFinalized},
		{name: "finalized", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized}, want: rpc.ConfirmationStatusFinalized, done: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, err := settled(tt.status, tt.want)
			require.NoError(t, err)
			require.Equal(t, tt.done, done)
		})
	}

	done, err := settled(&rpc.SignatureStatusesResult{
		Err:                map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 259}}},
		ConfirmationStatus: rpc.ConfirmationStatusProcessed,
	}, rpc.ConfirmationStatusConfirmed)
	require.True(t, done)
	require.ErrorIs(t, err, errSyncRejected)
	require.ErrorContains(t, err, "259")
}
