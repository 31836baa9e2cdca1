package ctxrecord

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"github.com/coldbell/matchers/internal/host"
)

const Codespace = "matcher"

// ErrorKind classifies a failure for the settlement engine that invoked the
// matcher. Every kind is fatal to the invocation; Staleness is the only one a
// caller is expected to clear by syncing and retrying.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindLifecycle
	KindValidation
	KindStaleness
	KindArithmetic
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindLifecycle:
		return "lifecycle"
	case KindValidation:
		return "validation"
	case KindStaleness:
		return "staleness"
	case KindArithmetic:
		return "arithmetic"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Retryable reports whether a fresh oracle sync may let the same call succeed.
func (k ErrorKind) Retryable() bool { return k == KindStaleness }

type errorKey struct {
	codespace string
	code      uint32
}

var errorKinds = map[errorKey]ErrorKind{}

// RegisterError registers a coded error and records its kind. Like
// errorsmod.Register it must only be called from package-level var blocks.
func RegisterError(codespace string, code uint32, kind ErrorKind, description string) *errorsmod.Error {
	err := errorsmod.Register(codespace, code, description)
	errorKinds[errorKey{codespace, code}] = kind
	return err
}

func classify(err *errorsmod.Error, kind ErrorKind) *errorsmod.Error {
	errorKinds[errorKey{err.Codespace(), err.ABCICode()}] = kind
	return err
}

var (
	ErrNotSigner              = RegisterError(Codespace, 2, KindAuthorization, "authority account did not sign")
	ErrUninitialized          = RegisterError(Codespace, 3, KindLifecycle, "context not initialized or magic mismatch")
	ErrAuthorityMismatch      = RegisterError(Codespace, 4, KindAuthorization, "authority key does not match the bound LP key")
	ErrNotWritable            = RegisterError(Codespace, 5, KindAuthorization, "context account is not writable")
	ErrTooSmall               = RegisterError(Codespace, 6, KindMalformed, "context account data too small")
	ErrAlreadyInitialized     = RegisterError(Codespace, 7, KindLifecycle, "context already initialized")
	ErrArithmeticOverflow     = RegisterError(Codespace, 8, KindArithmetic, "arithmetic overflow")
	ErrInvalidInstructionData = RegisterError(Codespace, 9, KindMalformed, "invalid instruction data")
	ErrUnknownSchema          = RegisterError(Codespace, 10, KindMalformed, "record magic does not belong to a registered schema")

	_ = classify(host.ErrNotEnoughAccountKeys, KindMalformed)
)

// Coded returns the registered error at the root of err, if any.
func Coded(err error) (*errorsmod.Error, bool) {
	var coded *errorsmod.Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

func KindOf(err error) ErrorKind {
	coded, ok := Coded(err)
	if !ok {
		return KindUnknown
	}
	return errorKinds[errorKey{coded.Codespace(), coded.ABCICode()}]
}
