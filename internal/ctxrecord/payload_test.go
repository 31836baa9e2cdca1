package ctxrecord

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

type payloadFixture struct {
	Mode      uint8
	Spread    uint32
	Liquidity uint128.Uint128
	Oracle    solana.PublicKey
}

func TestPayloadLayout(t *testing.T) {
	oracle := solana.NewWallet().PublicKey()
	in := payloadFixture{Mode: 1, Spread: 0x01020304, Liquidity: uint128.New(5, 6), Oracle: oracle}

	data, err := EncodePayload(OpInit, in)
	require.NoError(t, err)
	require.Len(t, data, 1+1+4+16+32)
	require.Equal(t, OpInit, data[0])
	require.Equal(t, byte(1), data[1])
	require.Equal(t, []byte{4, 3, 2, 1}, data[2:6])
	require.Equal(t, uint128.New(5, 6), uint128.FromBytes(data[6:22]))
	require.Equal(t, oracle[:], data[22:54])

	var out payloadFixture
	require.NoError(t, DecodePayload(data, &out))
	require.Equal(t, in, out)

	// Trailing bytes are tolerated, truncation is not.
	require.NoError(t, DecodePayload(append(data, 0xff), &out))
	require.ErrorIs(t, DecodePayload(data[:len(data)-1], &out), ErrInvalidInstructionData)
	require.ErrorIs(t, DecodePayload(nil, &out), ErrInvalidInstructionData)
}

func TestTradeSize(t *testing.T) {
	_, ok := TradeSize([]byte{OpMatch})
	require.False(t, ok)

	size := uint64(1_000_000)
	data := MatchPayload(&size)
	got, ok := TradeSize(data)
	require.True(t, ok)
	require.Equal(t, size, got)

	require.Equal(t, []byte{OpMatch}, MatchPayload(nil))
}
