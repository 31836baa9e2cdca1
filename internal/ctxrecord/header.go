package ctxrecord

import (
	"github.com/gagliardetto/solana-go"
)

// WriteHeader moves a record from uninitialized to initialized. The caller
// must have passed VerifyInitPreconditions on the same buffer.
func WriteHeader(b []byte, magic uint64, mode uint8, lpKey solana.PublicKey) {
	ReturnData.Zero(b)
	Magic.Put(b, magic)
	VersionField.Put(b, Version)
	Mode.Put(b, mode)
	HeaderPadding.Zero(b)
	LPKey.Put(b, lpKey)
}

// WriteExecutionPrice publishes a price on the return-data channel.
func WriteExecutionPrice(b []byte, price uint64) {
	ExecPrice.Put(b, price)
}

func ReadExecutionPrice(b []byte) (uint64, bool) {
	if len(b) < ExecPrice.End() {
		return 0, false
	}
	return ExecPrice.Get(b), true
}

type Header struct {
	Magic   uint64
	Version uint32
	Mode    uint8
	LPKey   solana.PublicKey
}

func ReadHeader(b []byte) (Header, error) {
	if len(b) < Size {
		return Header{}, ErrTooSmall
	}
	return Header{
		Magic:   Magic.Get(b),
		Version: VersionField.Get(b),
		Mode:    Mode.Get(b),
		LPKey:   LPKey.Get(b),
	}, nil
}
