package compliance

import "github.com/coldbell/matchers/internal/ctxrecord"

const Codespace = "compliance"

var (
	ErrInsufficientKycLevel     = ctxrecord.RegisterError(Codespace, 0x100, ctxrecord.KindAuthorization, "insufficient kyc level")
	ErrKycExpired               = ctxrecord.RegisterError(Codespace, 0x101, ctxrecord.KindAuthorization, "kyc expired")
	ErrJurisdictionBlocked      = ctxrecord.RegisterError(Codespace, 0x102, ctxrecord.KindAuthorization, "jurisdiction blocked")
	ErrJurisdictionMismatch     = ctxrecord.RegisterError(Codespace, 0x103, ctxrecord.KindAuthorization, "jurisdiction mismatch")
	ErrDailyVolumeLimitExceeded = ctxrecord.RegisterError(Codespace, 0x104, ctxrecord.KindValidation, "daily volume limit exceeded")
	ErrOraclePriceNotSet        = ctxrecord.RegisterError(Codespace, 0x105, ctxrecord.KindValidation, "oracle price not set")
	ErrArithmeticOverflow       = ctxrecord.RegisterError(Codespace, 0x106, ctxrecord.KindArithmetic, "arithmetic overflow")
	ErrInvalidComplianceData    = ctxrecord.RegisterError(Codespace, 0x107, ctxrecord.KindMalformed, "invalid compliance data")
)
