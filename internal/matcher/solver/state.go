// Package solver implements the solver-verified matcher: an oracle price
// quoted by one designated solver, marked up by a base spread and a solver fee.
package solver

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

// Magic is "PRIVMATC".
const Magic uint64 = 0x5052_4956_4d41_5443

var (
	SolverKey     = ctxrecord.Key("solver", 112)
	BaseSpread    = ctxrecord.U32("base_spread_bps", 144)
	MaxSpread     = ctxrecord.U32("max_spread_bps", 148)
	SolverFee     = ctxrecord.U32("solver_fee_bps", 152)
	OraclePrice   = ctxrecord.U64("oracle_price_e6", 156)
	LastExecPrice = ctxrecord.U64("last_exec_price_e6", 164)
	TotalVolume   = ctxrecord.U128("total_volume_e6", 172)
	TotalOrders   = ctxrecord.U64("total_orders", 188)
	EncryptionKey = ctxrecord.Bytes("encryption_key", 196, 32)
)

const reservedFrom = 228

var Schema = ctxrecord.MustRegister(ctxrecord.Schema{
	Name:  "solver",
	Magic: Magic,
	Fields: []ctxrecord.FieldDesc{
		SolverKey.FieldDesc,
		BaseSpread.FieldDesc,
		MaxSpread.FieldDesc,
		SolverFee.FieldDesc,
		OraclePrice.FieldDesc,
		LastExecPrice.FieldDesc,
		TotalVolume.FieldDesc,
		TotalOrders.FieldDesc,
		EncryptionKey.FieldDesc,
	},
	ReservedFrom: reservedFrom,
})

type State struct {
	ctxrecord.Header
	Solver        solana.PublicKey
	BaseSpreadBps uint32
	MaxSpreadBps  uint32
	SolverFeeBps  uint32
	OraclePrice   uint64
	LastExecPrice uint64
	TotalVolume   uint128.Uint128
	TotalOrders   uint64
	EncryptionKey [32]byte
}

// Load decodes an initialized solver record.
func Load(b []byte) (State, error) {
	if !ctxrecord.VerifyMagic(b, Magic) {
		return State{}, ctxrecord.ErrUninitialized
	}
	header, err := ctxrecord.ReadHeader(b)
	if err != nil {
		return State{}, err
	}
	st := State{
		Header:        header,
		Solver:        SolverKey.Get(b),
		BaseSpreadBps: BaseSpread.Get(b),
		MaxSpreadBps:  MaxSpread.Get(b),
		SolverFeeBps:  SolverFee.Get(b),
		OraclePrice:   OraclePrice.Get(b),
		LastExecPrice: LastExecPrice.Get(b),
		TotalVolume:   TotalVolume.Get(b),
		TotalOrders:   TotalOrders.Get(b),
	}
	copy(st.EncryptionKey[:], EncryptionKey.Get(b))
	return st, nil
}
