package ctxrecord

import (
	"math"

	"lukechampine.com/uint128"
)

const BpsDenominator uint64 = 10_000

// ComputeSpreadPrice returns floor(basePrice * (10000 + spreadBps) / 10000).
// The product is taken at 128 bits; a quotient that does not fit in 64 bits
// is an overflow rather than a truncated price.
func ComputeSpreadPrice(basePrice, spreadBps uint64) (uint64, error) {
	multiplier := SaturatingAdd64(BpsDenominator, spreadBps)
	quotient := uint128.From64(basePrice).Mul64(multiplier).Div64(BpsDenominator)
	if quotient.Hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return quotient.Lo, nil
}

// Spread composition saturates and is capped downstream; only price scaling
// reports overflow.

func SaturatingAdd64(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func SaturatingSub64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func SaturatingAdd128(a, b uint128.Uint128) uint128.Uint128 {
	sum := a.AddWrap(b)
	if sum.Cmp(a) < 0 {
		return uint128.Max
	}
	return sum
}

// CappedSpread is min(spread, maxSpread).
func CappedSpread(spread uint64, maxSpread uint32) uint64 {
	return min(spread, uint64(maxSpread))
}

// SlotsSince reports how far current is past last. A clock that reads behind
// the stored slot counts as zero elapsed.
func SlotsSince(current, last uint64) uint64 {
	return SaturatingSub64(current, last)
}
