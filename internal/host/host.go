// Package host describes what a matcher program sees of the runtime that
// invokes it: the account list, the payload and the clock.
package host

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
)

const Codespace = "host"

var ErrNotEnoughAccountKeys = errorsmod.Register(Codespace, 2, "not enough account keys")

type Account struct {
	Key        solana.PublicKey
	Owner      solana.PublicKey
	IsSigner   bool
	IsWritable bool
	Data       []byte
}

// ProvesControlOf reports whether the account presents proof of control of key.
// Signature verification itself happens in the host before the program runs.
func (a *Account) ProvesControlOf(key solana.PublicKey) bool {
	return a != nil && a.IsSigner && a.Key.Equals(key)
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Data = append([]byte(nil), a.Data...)
	return &out
}

type Clock struct {
	Slot          uint64
	UnixTimestamp int64
}

type Invocation struct {
	ProgramID solana.PublicKey
	Accounts  []*Account
	Data      []byte
	Clock     Clock
}

func (inv *Invocation) Account(index int) (*Account, error) {
	if index < 0 || index >= len(inv.Accounts) || inv.Accounts[index] == nil {
		return nil, ErrNotEnoughAccountKeys
	}
	return inv.Accounts[index], nil
}

// RequireAccounts fails unless at least n accounts were supplied.
func (inv *Invocation) RequireAccounts(n int) error {
	if len(inv.Accounts) < n {
		return ErrNotEnoughAccountKeys
	}
	for _, acc := range inv.Accounts[:n] {
		if acc == nil {
			return ErrNotEnoughAccountKeys
		}
	}
	return nil
}

// Opcode returns the leading tag byte of the payload.
func (inv *Invocation) Opcode() (byte, bool) {
	if len(inv.Data) == 0 {
		return 0, false
	}
	return inv.Data[0], true
}
