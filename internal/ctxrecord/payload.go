package ctxrecord

import (
	"bytes"
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	bin "github.com/gagliardetto/binary"
)

// Instruction opcodes. Every variant uses the same tag byte for the same
// role; 0x03 and 0x04 are variant specific.
const (
	OpMatch    byte = 0x00
	OpInit     byte = 0x02
	OpSync     byte = 0x03
	OpTerminal byte = 0x04
)

// DecodePayload reads the fixed little-endian struct that follows the opcode
// byte. Trailing bytes are ignored; a short payload is malformed.
func DecodePayload(data []byte, out any) error {
	if len(data) < 1 {
		return ErrInvalidInstructionData
	}
	if err := bin.NewBorshDecoder(data[1:]).Decode(out); err != nil {
		return errorsmod.Wrapf(ErrInvalidInstructionData, "decode payload: %v", err)
	}
	return nil
}

// EncodePayload is the client-side inverse of DecodePayload.
func EncodePayload(opcode byte, params any) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(opcode)
	if params != nil {
		if err := bin.NewBorshEncoder(buf).Encode(params); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// TradeSize reads the optional u64 at [1..9] carried by pricing calls.
func TradeSize(data []byte) (uint64, bool) {
	if len(data) < 9 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data[1:9]), true
}

// MatchPayload encodes a pricing call, with the trade size when one is given.
func MatchPayload(tradeSize *uint64) []byte {
	if tradeSize == nil {
		return []byte{OpMatch}
	}
	data := make([]byte, 9)
	data[0] = OpMatch
	binary.LittleEndian.PutUint64(data[1:], *tradeSize)
	return data
}
