package solver

import "github.com/coldbell/matchers/internal/ctxrecord"

const Codespace = "solver"

var (
	ErrInvalidSpreadConfig = ctxrecord.RegisterError(Codespace, 0x10, ctxrecord.KindValidation, "base spread exceeds max spread")
	ErrUnauthorizedSolver  = ctxrecord.RegisterError(Codespace, 0x11, ctxrecord.KindAuthorization, "signer is not the designated solver")
	ErrOraclePriceNotSet   = ctxrecord.RegisterError(Codespace, 0x12, ctxrecord.KindValidation, "oracle price not set")
	ErrArithmeticOverflow  = ctxrecord.RegisterError(Codespace, 0x13, ctxrecord.KindArithmetic, "arithmetic overflow")
)
