package volatility

import "github.com/coldbell/matchers/internal/ctxrecord"

const Codespace = "volatility"

var (
	ErrOracleNotSynced       = ctxrecord.RegisterError(Codespace, 0x20, ctxrecord.KindValidation, "volatility oracle not synced")
	ErrOracleStale           = ctxrecord.RegisterError(Codespace, 0x21, ctxrecord.KindStaleness, "volatility oracle stale")
	ErrOracleAccountMismatch = ctxrecord.RegisterError(Codespace, 0x22, ctxrecord.KindAuthorization, "oracle account does not match the bound account")
	ErrInvalidRegime         = ctxrecord.RegisterError(Codespace, 0x23, ctxrecord.KindValidation, "invalid volatility regime")
	ErrArithmeticOverflow    = ctxrecord.RegisterError(Codespace, 0x24, ctxrecord.KindArithmetic, "arithmetic overflow")
)
