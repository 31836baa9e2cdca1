// Package hosttest builds accounts and invocations for matcher tests.
package hosttest

import (
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
)

func NewKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func Signer(key solana.PublicKey) *host.Account {
	return &host.Account{Key: key, IsSigner: true}
}

func Readonly(key solana.PublicKey) *host.Account {
	return &host.Account{Key: key}
}

// Context returns a writable, zeroed record account.
func Context() *host.Account {
	return &host.Account{Key: NewKey(), IsWritable: true, Data: ctxrecord.NewRecord()}
}

// Invocation assembles a call; accounts keep their identity so tests can
// inspect the record after the call.
func Invocation(clock host.Clock, data []byte, accounts ...*host.Account) *host.Invocation {
	return &host.Invocation{Accounts: accounts, Data: data, Clock: clock}
}

// FromInstruction maps a built instruction onto known accounts, taking the
// signer and writable flags from the instruction's metas.
func FromInstruction(ix solana.Instruction, clock host.Clock, known map[solana.PublicKey]*host.Account) (*host.Invocation, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	inv := &host.Invocation{ProgramID: ix.ProgramID(), Data: data, Clock: clock}
	for _, meta := range ix.Accounts() {
		acc, ok := known[meta.PublicKey]
		if !ok {
			acc = &host.Account{Key: meta.PublicKey}
		}
		acc.IsSigner = meta.IsSigner
		acc.IsWritable = meta.IsWritable
		inv.Accounts = append(inv.Accounts, acc)
	}
	return inv, nil
}
