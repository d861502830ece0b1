// Package xexec executes the SIMD and atomic representative subsets
// (spec.md §4.7) against raw lane/width parameters already decoded by a
// tier. Factoring the lane math out of internal/engine/bytecode and
// internal/engine/predecoded keeps both tiers' v128/atomic opcodes
// bit-for-bit identical, the same grounding rationale internal/numexec
// documents for scalar operators.
package xexec

import (
	"math"

	"github.com/wasmtier/execore/internal/engine/rt"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
)

// Lane tags, matching the compiler's prefixed.go tagging (i8x16=0 .. f64x2=5).
const (
	LaneI8x16 byte = iota
	LaneI16x8
	LaneI32x4
	LaneI64x2
	LaneF32x4
	LaneF64x2
)

func lanesI8(lo, hi uint64) [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(lo >> (8 * i))
		b[i+8] = byte(hi >> (8 * i))
	}
	return b
}

func i8ToSlot(b [16]byte) (lo, hi uint64) {
	for i := 0; i < 8; i++ {
		lo |= uint64(b[i]) << (8 * i)
		hi |= uint64(b[i+8]) << (8 * i)
	}
	return
}

func lanesI32(lo, hi uint64) [4]uint32 {
	return [4]uint32{uint32(lo), uint32(lo >> 32), uint32(hi), uint32(hi >> 32)}
}

func i32ToSlot(v [4]uint32) (lo, hi uint64) {
	lo = uint64(v[0]) | uint64(v[1])<<32
	hi = uint64(v[2]) | uint64(v[3])<<32
	return
}

func lanesI64(lo, hi uint64) [2]uint64 { return [2]uint64{lo, hi} }

func lanesF32(lo, hi uint64) [4]float32 {
	i := lanesI32(lo, hi)
	return [4]float32{math.Float32frombits(i[0]), math.Float32frombits(i[1]), math.Float32frombits(i[2]), math.Float32frombits(i[3])}
}

func f32ToSlot(v [4]float32) (lo, hi uint64) {
	return i32ToSlot([4]uint32{math.Float32bits(v[0]), math.Float32bits(v[1]), math.Float32bits(v[2]), math.Float32bits(v[3])})
}

func lanesF64(lo, hi uint64) [2]float64 {
	return [2]float64{math.Float64frombits(lo), math.Float64frombits(hi)}
}

func f64ToSlot(v [2]float64) (lo, hi uint64) {
	return math.Float64bits(v[0]), math.Float64bits(v[1])
}

// Splat replicates a scalar (carried in the low bits of v) across every lane.
func Splat(lane byte, v uint64) (lo, hi uint64) {
	switch lane {
	case LaneI8x16:
		var b [16]byte
		for i := range b {
			b[i] = byte(v)
		}
		return i8ToSlot(b)
	case LaneI16x8:
		var b [16]byte
		for i := 0; i < 8; i++ {
			b[2*i] = byte(v)
			b[2*i+1] = byte(v >> 8)
		}
		return i8ToSlot(b)
	case LaneI32x4:
		return i32ToSlot([4]uint32{uint32(v), uint32(v), uint32(v), uint32(v)})
	case LaneI64x2:
		return v, v
	case LaneF32x4:
		return Splat(LaneI32x4, v)
	case LaneF64x2:
		return v, v
	}
	panic("xexec: bad lane tag")
}

// Add/Sub/Mul apply the lane-wise arithmetic op named by which (0=add,1=sub,2=mul).
func Arith(lane byte, which int, aLo, aHi, bLo, bHi uint64) (lo, hi uint64) {
	switch lane {
	case LaneI8x16:
		a, b := lanesI8(aLo, aHi), lanesI8(bLo, bHi)
		var r [16]byte
		for i := range r {
			r[i] = arithByte(which, a[i], b[i])
		}
		return i8ToSlot(r)
	case LaneI32x4:
		a, b := lanesI32(aLo, aHi), lanesI32(bLo, bHi)
		var r [4]uint32
		for i := range r {
			r[i] = arithU32(which, a[i], b[i])
		}
		return i32ToSlot(r)
	case LaneI64x2:
		a, b := lanesI64(aLo, aHi), lanesI64(bLo, bHi)
		var r [2]uint64
		for i := range r {
			r[i] = arithU64(which, a[i], b[i])
		}
		return r[0], r[1]
	case LaneF32x4:
		a, b := lanesF32(aLo, aHi), lanesF32(bLo, bHi)
		var r [4]float32
		for i := range r {
			r[i] = arithF32(which, a[i], b[i])
		}
		return f32ToSlot(r)
	case LaneF64x2:
		a, b := lanesF64(aLo, aHi), lanesF64(bLo, bHi)
		var r [2]float64
		for i := range r {
			r[i] = arithF64(which, a[i], b[i])
		}
		return f64ToSlot(r)
	}
	panic("xexec: bad lane tag")
}

func arithByte(which int, a, b byte) byte {
	switch which {
	case 0:
		return a + b
	case 1:
		return a - b
	default:
		return a * b
	}
}
func arithU32(which int, a, b uint32) uint32 {
	switch which {
	case 0:
		return a + b
	case 1:
		return a - b
	default:
		return a * b
	}
}
func arithU64(which int, a, b uint64) uint64 {
	switch which {
	case 0:
		return a + b
	case 1:
		return a - b
	default:
		return a * b
	}
}
func arithF32(which int, a, b float32) float32 {
	switch which {
	case 0:
		return a + b
	case 1:
		return a - b
	default:
		return a * b
	}
}
func arithF64(which int, a, b float64) float64 {
	switch which {
	case 0:
		return a + b
	case 1:
		return a - b
	default:
		return a * b
	}
}

// Pmin/Pmax implement the IEEE-754 "pseudo-min/max" lane ops: b<a?b:a (pmin),
// a<b?b:a (pmax), with no NaN normalization, per the SIMD proposal.
func Pmin(lane byte, aLo, aHi, bLo, bHi uint64) (uint64, uint64) { return pminmax(lane, aLo, aHi, bLo, bHi, true) }
func Pmax(lane byte, aLo, aHi, bLo, bHi uint64) (uint64, uint64) { return pminmax(lane, aLo, aHi, bLo, bHi, false) }

func pminmax(lane byte, aLo, aHi, bLo, bHi uint64, isMin bool) (uint64, uint64) {
	pick := func(a, b float64) float64 {
		if isMin {
			if b < a {
				return b
			}
			return a
		}
		if a < b {
			return b
		}
		return a
	}
	switch lane {
	case LaneF32x4:
		a, b := lanesF32(aLo, aHi), lanesF32(bLo, bHi)
		var r [4]float32
		for i := range r {
			r[i] = float32(pick(float64(a[i]), float64(b[i])))
		}
		return f32ToSlot(r)
	case LaneF64x2:
		a, b := lanesF64(aLo, aHi), lanesF64(bLo, bHi)
		var r [2]float64
		for i := range r {
			r[i] = pick(a[i], b[i])
		}
		return f64ToSlot(r)
	}
	panic("xexec: pmin/pmax is float-only")
}

// ExtMul widens and multiplies either the low or high half of two i32x4
// operands into an i64x2 result (B1 selects low=0/high=1), signed per caller.
func ExtMul(aLo, aHi, bLo, bHi uint64, high, signed bool) (uint64, uint64) {
	a, b := lanesI32(aLo, aHi), lanesI32(bLo, bHi)
	base := 0
	if high {
		base = 2
	}
	mul := func(x, y uint32) uint64 {
		if signed {
			return uint64(int64(int32(x)) * int64(int32(y)))
		}
		return uint64(x) * uint64(y)
	}
	return mul(a[base], b[base]), mul(a[base+1], b[base+1])
}

// Shuffle picks 16 output bytes from the 32-byte concatenation of a and b per
// a 16-byte index mask (i8x16.shuffle, spec.md §4.7).
func Shuffle(aLo, aHi, bLo, bHi uint64, mask [16]byte) (uint64, uint64) {
	a, b := lanesI8(aLo, aHi), lanesI8(bLo, bHi)
	var cat [32]byte
	copy(cat[:16], a[:])
	copy(cat[16:], b[:])
	var out [16]byte
	for i, m := range mask {
		out[i] = cat[m&31]
	}
	return i8ToSlot(out)
}

// Swizzle picks bytes of a indexed by b, substituting zero for any
// out-of-range index (i8x16.swizzle, spec.md §4.7).
func Swizzle(aLo, aHi, bLo, bHi uint64) (uint64, uint64) {
	a, idx := lanesI8(aLo, aHi), lanesI8(bLo, bHi)
	var out [16]byte
	for i, m := range idx {
		if m < 16 {
			out[i] = a[m]
		}
	}
	return i8ToSlot(out)
}

// AtomicLoad/AtomicStore perform an ordinary load/store: this core is
// single-threaded and cooperative (spec.md §5), so atomics need no real
// memory fence — only the bounds-checked access atomics share with ordinary
// loads/stores.
func AtomicLoad(mem *wasm.Memory, ea uint64, width int) uint64 { return rt.LoadU(mem, ea, width) }
func AtomicStore(mem *wasm.Memory, ea uint64, width int, v uint64) { rt.Store(mem, ea, width, v) }

// RMW op tags.
const (
	RMWAdd = iota
	RMWSub
	RMWAnd
	RMWOr
	RMWXor
	RMWXchg
)

// AtomicRMW performs a read-modify-write, returning the prior value.
func AtomicRMW(mem *wasm.Memory, ea uint64, width int, op int, operand uint64) uint64 {
	old := rt.LoadU(mem, ea, width)
	var nv uint64
	switch op {
	case RMWAdd:
		nv = old + operand
	case RMWSub:
		nv = old - operand
	case RMWAnd:
		nv = old & operand
	case RMWOr:
		nv = old | operand
	case RMWXor:
		nv = old ^ operand
	case RMWXchg:
		nv = operand
	}
	rt.Store(mem, ea, width, nv)
	return old
}

// AtomicCmpxchg performs a compare-and-swap, returning the prior value
// regardless of whether the swap happened (matching Wasm's cmpxchg contract).
func AtomicCmpxchg(mem *wasm.Memory, ea uint64, width int, expected, replacement uint64) uint64 {
	old := rt.LoadU(mem, ea, width)
	if old == expected {
		rt.Store(mem, ea, width, replacement)
	}
	return old
}

// AtomicWait compares the memory value against expected and, since no other
// agent in this single-threaded core can ever notify, immediately returns
// "not-equal" (1) on mismatch or "timed-out" (2) on match — there is no
// waiting agent that could deliver result 0 ("notified").
func AtomicWait(mem *wasm.Memory, ea uint64, width int, expected uint64) uint32 {
	if rt.LoadU(mem, ea, width) != expected {
		return 1
	}
	return 2
}

// AtomicNotify always reports zero waiters woken: this core never blocks a
// waiter, so there is never anyone to wake.
func AtomicNotify(mem *wasm.Memory, ea uint64, count uint32) uint32 { return 0 }

// AtomicFence is a no-op under the single-agent model; it never traps.
// Kept as a function so call sites don't special-case it.
func AtomicFence() {}

// V128FromBytes converts a v128.const's 16 raw bytes to a low/high pair.
func V128FromBytes(b []byte) (lo, hi uint64) {
	if len(b) != 16 {
		panic(wasmruntime.ErrRuntimeTrap)
	}
	var arr [16]byte
	copy(arr[:], b)
	return i8ToSlot(arr)
}
