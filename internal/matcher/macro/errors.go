package macro

import "github.com/coldbell/matchers/internal/ctxrecord"

const Codespace = "macro"

var (
	ErrIndexNotSynced        = ctxrecord.RegisterError(Codespace, 0x300, ctxrecord.KindValidation, "macro index not synced")
	ErrOracleStale           = ctxrecord.RegisterError(Codespace, 0x301, ctxrecord.KindStaleness, "macro index stale")
	ErrOracleMismatch        = ctxrecord.RegisterError(Codespace, 0x302, ctxrecord.KindAuthorization, "macro oracle does not match the bound key")
	ErrInvalidRegime         = ctxrecord.RegisterError(Codespace, 0x303, ctxrecord.KindValidation, "invalid macro regime")
	ErrInvalidSignalSeverity = ctxrecord.RegisterError(Codespace, 0x304, ctxrecord.KindValidation, "invalid signal severity")
	ErrArithmeticOverflow    = ctxrecord.RegisterError(Codespace, 0x305, ctxrecord.KindArithmetic, "arithmetic overflow")
	ErrInvalidIndexValue     = ctxrecord.RegisterError(Codespace, 0x306, ctxrecord.KindValidation, "invalid index value")
)
