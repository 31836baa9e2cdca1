package ctxrecord

import (
	"github.com/coldbell/matchers/internal/host"
)

func ReadMagic(b []byte) uint64 {
	if len(b) < Magic.End() {
		return 0
	}
	return Magic.Get(b)
}

// VerifyMagic is false for any buffer shorter than a full record, even when
// the magic bytes themselves are present.
func VerifyMagic(b []byte, expected uint64) bool {
	if len(b) < Size {
		return false
	}
	return Magic.Get(b) == expected
}

// VerifyAuthority checks, in order, that the authority signed, that the
// record is initialized for expected, and that the authority is the bound LP
// key. An unsigned caller learns nothing about the record.
func VerifyAuthority(authority *host.Account, record []byte, expected uint64) error {
	if authority == nil || !authority.IsSigner {
		return ErrNotSigner
	}
	if !VerifyMagic(record, expected) {
		return ErrUninitialized
	}
	if !authority.ProvesControlOf(LPKey.Get(record)) {
		return ErrAuthorityMismatch
	}
	return nil
}

func VerifyInitPreconditions(ctxAccount *host.Account, expected uint64) error {
	if !ctxAccount.IsWritable {
		return ErrNotWritable
	}
	if len(ctxAccount.Data) < Size {
		return ErrTooSmall
	}
	if VerifyMagic(ctxAccount.Data, expected) {
		return ErrAlreadyInitialized
	}
	return nil
}

// VerifyInitialized is the guard for oracle-driven calls that do not go
// through the LP authority: writable, then initialized.
func VerifyInitialized(ctxAccount *host.Account, expected uint64) error {
	if !ctxAccount.IsWritable {
		return ErrNotWritable
	}
	if !VerifyMagic(ctxAccount.Data, expected) {
		return ErrUninitialized
	}
	return nil
}
