package event

import "github.com/coldbell/matchers/internal/ctxrecord"

const Codespace = "event"

var (
	ErrMarketResolved        = ctxrecord.RegisterError(Codespace, 0x200, ctxrecord.KindLifecycle, "market resolved")
	ErrInvalidProbability    = ctxrecord.RegisterError(Codespace, 0x201, ctxrecord.KindValidation, "probability above 1_000_000")
	ErrProbabilityNotSet     = ctxrecord.RegisterError(Codespace, 0x202, ctxrecord.KindValidation, "probability not set")
	ErrOracleStale           = ctxrecord.RegisterError(Codespace, 0x203, ctxrecord.KindStaleness, "probability oracle stale")
	ErrOracleMismatch        = ctxrecord.RegisterError(Codespace, 0x204, ctxrecord.KindAuthorization, "event oracle does not match the bound key")
	ErrInvalidOutcome        = ctxrecord.RegisterError(Codespace, 0x205, ctxrecord.KindValidation, "outcome must be 0 or 1")
	ErrInvalidSignalSeverity = ctxrecord.RegisterError(Codespace, 0x206, ctxrecord.KindValidation, "invalid signal severity")
	ErrArithmeticOverflow    = ctxrecord.RegisterError(Codespace, 0x207, ctxrecord.KindArithmetic, "arithmetic overflow")
)
