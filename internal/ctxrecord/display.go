package ctxrecord

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Display renders a decoded field for humans: e6 fixed-point values as
// decimals and bps values as percentages. Other fields render empty.
func (v Value) Display() string {
	var shift int32
	suffix := ""
	switch {
	case strings.HasSuffix(v.Name, "_e6") || v.Name == ExecPrice.Name:
		shift = -6
	case strings.HasSuffix(v.Name, "_bps"):
		shift = -2
		suffix = "%"
	default:
		return ""
	}

	var d decimal.Decimal
	switch raw := v.Value.(type) {
	case uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0)
	case uint32:
		d = decimal.NewFromInt(int64(raw))
	case int64:
		d = decimal.NewFromInt(raw)
	case string:
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return ""
		}
		d = parsed
	default:
		return ""
	}
	return d.Shift(shift).String() + suffix
}

// FormatE6 renders a 1e6 fixed-point amount as a decimal string.
func FormatE6(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -6).String()
}
