package dex

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

const (
	lpSeed        = "lp"
	whitelistSeed = "whitelist"
)

// DeriveLPPDA returns the LP PDA the settlement program signs matcher calls
// with: seeds ["lp", slab, lp_index u16 LE].
func DeriveLPPDA(settlementProgramID, slab solana.PublicKey, lpIndex uint16) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(lpSeed), slab.Bytes(), u16LE(lpIndex)}, settlementProgramID)
}

// DeriveWhitelistPDA returns the whitelist entry address a KYC registry
// keeps for user: seeds ["whitelist", user].
func DeriveWhitelistPDA(registryProgramID, user solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(whitelistSeed), user.Bytes()}, registryProgramID)
}

func MustDeriveLPPDA(settlementProgramID, slab solana.PublicKey, lpIndex uint16) solana.PublicKey {
	pk, _, err := DeriveLPPDA(settlementProgramID, slab, lpIndex)
	if err != nil {
		panic(fmt.Errorf("derive LP PDA: %w", err))
	}
	return pk
}

// NewCreateContextAccountInstruction allocates a context record owned by
// the matcher program. The new account must co-sign the transaction.
func NewCreateContextAccountInstruction(payer, context, matcherProgramID solana.PublicKey, rentLamports uint64) solana.Instruction {
	return system.NewCreateAccountInstruction(
		rentLamports,
		ctxrecord.Size,
		matcherProgramID,
		payer,
		context,
	).Build()
}

func u16LE(value uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return buf
}
