// Package moremath implements floating point and wide-integer helpers that
// Go's math package doesn't provide directly, needed to match the Wasm spec
// bit-for-bit (NaN propagation rules, saturating conversions, i128 widening
// multiply). Named and scoped after the teacher's internal/moremath package.
package moremath

import "math"

// WasmCompatMin returns the Wasm-spec `min` of x and y: unlike math.Min,
// a NaN operand always yields NaN (propagated, not merely "smaller").
func WasmCompatMin(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == 0 && y == 0 {
		// Negative zero is smaller than positive zero per Wasm's min.
		if math.Signbit(x) || math.Signbit(y) {
			return math.Copysign(0, -1)
		}
		return 0
	}
	return math.Min(x, y)
}

// WasmCompatMax mirrors WasmCompatMin for max.
func WasmCompatMax(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == 0 && y == 0 {
		if math.Signbit(x) && math.Signbit(y) {
			return math.Copysign(0, -1)
		}
		return 0
	}
	return math.Max(x, y)
}

// WasmCompatMin32/Max32 are the float32 variants.
func WasmCompatMin32(x, y float32) float32 {
	return float32(WasmCompatMin(float64(x), float64(y)))
}

func WasmCompatMax32(x, y float32) float32 {
	return float32(WasmCompatMax(float64(x), float64(y)))
}

// PMin/PMax implement SIMD pmin/pmax: unlike min/max, NaN is NOT propagated
// specially — the result is simply "b < a ? b : a" (IEEE754 comparison
// semantics, NaN comparisons are false so the first operand wins).
func PMin(a, b float64) float64 {
	if b < a {
		return b
	}
	return a
}

func PMax(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

// I32TruncSatF is the saturating float-to-i32 truncation used by the
// non-trapping truncation extension: NaN clamps to 0, out-of-range
// saturates to the integer bounds, matching the trapping variant everywhere
// else (spec.md §4.3 "Trap semantics").
func I32TruncSatF(v float64, signed bool) uint64 {
	if math.IsNaN(v) {
		return 0
	}
	if signed {
		if v <= math.MinInt32 {
			return 0x80000000 // math.MinInt32's 32-bit pattern
		}
		if v >= math.MaxInt32 {
			return uint64(uint32(int32(math.MaxInt32)))
		}
		return uint64(uint32(int32(v)))
	}
	if v <= 0 {
		return 0
	}
	if v >= math.MaxUint32 {
		return uint64(uint32(math.MaxUint32))
	}
	return uint64(uint32(v))
}

// I64TruncSatF is the 64-bit counterpart of I32TruncSatF.
func I64TruncSatF(v float64, signed bool) uint64 {
	if math.IsNaN(v) {
		return 0
	}
	if signed {
		if v <= math.MinInt64 {
			return 1 << 63 // math.MinInt64's bit pattern
		}
		if v >= math.MaxInt64 {
			return uint64(int64(math.MaxInt64))
		}
		return uint64(int64(v))
	}
	if v <= 0 {
		return 0
	}
	if v >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(v)
}

// U128 is a 128-bit unsigned integer split into low/high 64-bit halves
// (spec.md SPEC_FULL "i128 arithmetic" supplement). No execution tier calls
// U128 or its helpers; i64x2.extmul is computed in xexec.ExtMul without it.
type U128 struct {
	Lo, Hi uint64
}

// Mul64To128 computes the full 128-bit product of two uint64 operands.
func Mul64To128(a, b uint64) U128 {
	hi, lo := mul64(a, b)
	return U128{Lo: lo, Hi: hi}
}

func mul64(a, b uint64) (hi, lo uint64) {
	const mask32 = 0xFFFFFFFF
	aLo, aHi := a&mask32, a>>32
	bLo, bHi := b&mask32, b>>32

	t := aLo * bLo
	w0 := t & mask32
	k := t >> 32

	t = aHi*bLo + k
	w1 := t & mask32
	w2 := t >> 32

	t = aLo*bHi + w1
	k = t >> 32

	hi = aHi*bHi + w2 + k
	lo = (t << 32) | w0
	return
}

// Add128 adds two U128 values with carry propagation.
func Add128(a, b U128) U128 {
	lo := a.Lo + b.Lo
	carry := uint64(0)
	if lo < a.Lo {
		carry = 1
	}
	return U128{Lo: lo, Hi: a.Hi + b.Hi + carry}
}
