// Package ctxrecord implements the context account protocol shared by every
// matcher program: the 320-byte record layout, the schema registry, the
// verification guards and the return-data price channel.
package ctxrecord

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

const (
	Size = 320

	ReturnDataOffset = 0
	ReturnDataSize   = 64
	MagicOffset      = 64
	VersionOffset    = 72
	ModeOffset       = 76
	HeaderPadStart   = 77
	LPKeyOffset      = 80
	BodyOffset       = 112

	// Version is written into every header at initialization.
	Version uint32 = 1
)

type FieldKind uint8

const (
	KindU8 FieldKind = iota + 1
	KindU32
	KindU64
	KindI64
	KindU128
	KindPubkey
	KindBytes
)

func (k FieldKind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindI64:
		return "i64"
	case KindU128:
		return "u128"
	case KindPubkey:
		return "pubkey"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// FieldDesc names one fixed byte range of a record.
type FieldDesc struct {
	Name   string
	Offset int
	Size   int
	Kind   FieldKind
}

func (d FieldDesc) End() int { return d.Offset + d.Size }

func (d FieldDesc) overlaps(other FieldDesc) bool {
	return d.Offset < other.End() && other.Offset < d.End()
}

type U8Field struct{ FieldDesc }

func U8(name string, offset int) U8Field {
	return U8Field{FieldDesc{Name: name, Offset: offset, Size: 1, Kind: KindU8}}
}

func (f U8Field) Get(b []byte) uint8    { return b[f.Offset] }
func (f U8Field) Put(b []byte, v uint8) { b[f.Offset] = v }

type U32Field struct{ FieldDesc }

func U32(name string, offset int) U32Field {
	return U32Field{FieldDesc{Name: name, Offset: offset, Size: 4, Kind: KindU32}}
}

func (f U32Field) Get(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b[f.Offset:f.End()])
}

func (f U32Field) Put(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b[f.Offset:f.End()], v)
}

type U64Field struct{ FieldDesc }

func U64(name string, offset int) U64Field {
	return U64Field{FieldDesc{Name: name, Offset: offset, Size: 8, Kind: KindU64}}
}

func (f U64Field) Get(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b[f.Offset:f.End()])
}

func (f U64Field) Put(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b[f.Offset:f.End()], v)
}

type I64Field struct{ FieldDesc }

func I64(name string, offset int) I64Field {
	return I64Field{FieldDesc{Name: name, Offset: offset, Size: 8, Kind: KindI64}}
}

func (f I64Field) Get(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b[f.Offset:f.End()]))
}

func (f I64Field) Put(b []byte, v int64) {
	binary.LittleEndian.PutUint64(b[f.Offset:f.End()], uint64(v))
}

type U128Field struct{ FieldDesc }

func U128(name string, offset int) U128Field {
	return U128Field{FieldDesc{Name: name, Offset: offset, Size: 16, Kind: KindU128}}
}

func (f U128Field) Get(b []byte) uint128.Uint128 {
	return uint128.FromBytes(b[f.Offset:f.End()])
}

func (f U128Field) Put(b []byte, v uint128.Uint128) {
	v.PutBytes(b[f.Offset:f.End()])
}

type KeyField struct{ FieldDesc }

func Key(name string, offset int) KeyField {
	return KeyField{FieldDesc{Name: name, Offset: offset, Size: solana.PublicKeyLength, Kind: KindPubkey}}
}

func (f KeyField) Get(b []byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(b[f.Offset:f.End()])
}

func (f KeyField) Put(b []byte, v solana.PublicKey) {
	copy(b[f.Offset:f.End()], v[:])
}

// BytesField is an opaque range such as an encryption key or padding.
type BytesField struct{ FieldDesc }

func Bytes(name string, offset, size int) BytesField {
	return BytesField{FieldDesc{Name: name, Offset: offset, Size: size, Kind: KindBytes}}
}

func (f BytesField) Get(b []byte) []byte {
	out := make([]byte, f.Size)
	copy(out, b[f.Offset:f.End()])
	return out
}

// Put copies v into the range, zero-filling whatever v does not cover.
func (f BytesField) Put(b []byte, v []byte) {
	dst := b[f.Offset:f.End()]
	n := copy(dst, v)
	clear(dst[n:])
}

func (f BytesField) Zero(b []byte) { clear(b[f.Offset:f.End()]) }

// Header fields shared by every variant.
var (
	ExecPrice     = U64("exec_price", ReturnDataOffset)
	ReturnData    = Bytes("return_data", ReturnDataOffset, ReturnDataSize)
	Magic         = U64("magic", MagicOffset)
	VersionField  = U32("version", VersionOffset)
	Mode          = U8("mode", ModeOffset)
	HeaderPadding = Bytes("header_padding", HeaderPadStart, LPKeyOffset-HeaderPadStart)
	LPKey         = Key("lp_key", LPKeyOffset)
)

// headerFields are the ranges no variant field may overlap. The padding bytes
// 77..80 are not listed; the compliance variant keeps its gate flags there.
var headerFields = []FieldDesc{
	ReturnData.FieldDesc,
	Magic.FieldDesc,
	VersionField.FieldDesc,
	Mode.FieldDesc,
	LPKey.FieldDesc,
}
