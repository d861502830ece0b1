// Package numexec executes the scalar comparison/arithmetic/conversion
// operations classified by wazeroir.ClassifyNumeric against a VM's operand
// stack. All three execution tiers call through here for these operators,
// so spec.md §8's "tier equivalence" property holds by construction rather
// than by keeping three hand-written copies in sync.
package numexec

import (
	"math"
	"math/bits"

	"github.com/wasmtier/execore/internal/moremath"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasmruntime"
	"github.com/wasmtier/execore/internal/wazeroir"
)

// Exec executes one classified numeric operation against ops, trapping via
// panic(*wasmruntime.Error) exactly as the bytecode tier's other trap sites
// do. op.Kind must be one of the kinds wazeroir.ClassifyNumeric produces;
// anything else is a programming error in the caller.
func Exec(ops *vmstate.OperandStack, op wazeroir.UnionOperation) {
	switch op.Kind {
	case wazeroir.OperationKindEqz:
		if op.B1 == 0 {
			ops.PushI32(b2i(ops.PopI32() == 0))
		} else {
			ops.PushI32(b2i(ops.PopI64() == 0))
		}
	case wazeroir.OperationKindEq:
		execCompare(ops, op.B1, relEq)
	case wazeroir.OperationKindNe:
		execCompare(ops, op.B1, relNe)
	case wazeroir.OperationKindLt:
		execCompare(ops, op.B1, relLt)
	case wazeroir.OperationKindGt:
		execCompare(ops, op.B1, relGt)
	case wazeroir.OperationKindLe:
		execCompare(ops, op.B1, relLe)
	case wazeroir.OperationKindGe:
		execCompare(ops, op.B1, relGe)

	case wazeroir.OperationKindAdd:
		execArith(ops, op.B1, func(a, b uint64) uint64 { return a + b }, func(a, b uint64) uint64 { return a + b },
			func(a, b float32) float32 { return a + b }, func(a, b float64) float64 { return a + b })
	case wazeroir.OperationKindSub:
		execArith(ops, op.B1, func(a, b uint64) uint64 { return a - b }, func(a, b uint64) uint64 { return a - b },
			func(a, b float32) float32 { return a - b }, func(a, b float64) float64 { return a - b })
	case wazeroir.OperationKindMul:
		execArith(ops, op.B1, func(a, b uint64) uint64 { return a * b }, func(a, b uint64) uint64 { return a * b },
			func(a, b float32) float32 { return a * b }, func(a, b float64) float64 { return a * b })
	case wazeroir.OperationKindAnd:
		execIntOnly(ops, op.B1, func(a, b uint64) uint64 { return a & b })
	case wazeroir.OperationKindOr:
		execIntOnly(ops, op.B1, func(a, b uint64) uint64 { return a | b })
	case wazeroir.OperationKindXor:
		execIntOnly(ops, op.B1, func(a, b uint64) uint64 { return a ^ b })
	case wazeroir.OperationKindShl:
		if op.B1 == 0 {
			b := ops.PopI32()
			a := ops.PopI32()
			ops.PushI32(a << (b & 31))
		} else {
			b := ops.PopI64()
			a := ops.PopI64()
			ops.PushI64(a << (b & 63))
		}
	case wazeroir.OperationKindShr:
		execShr(ops, wazeroir.SignedType(op.B1))
	case wazeroir.OperationKindRotl:
		if op.B1 == 0 {
			b := ops.PopI32()
			a := ops.PopI32()
			ops.PushI32(bits.RotateLeft32(a, int(b)))
		} else {
			b := ops.PopI64()
			a := ops.PopI64()
			ops.PushI64(bits.RotateLeft64(a, int(b)))
		}
	case wazeroir.OperationKindRotr:
		if op.B1 == 0 {
			b := ops.PopI32()
			a := ops.PopI32()
			ops.PushI32(bits.RotateLeft32(a, -int(b)))
		} else {
			b := ops.PopI64()
			a := ops.PopI64()
			ops.PushI64(bits.RotateLeft64(a, -int(b)))
		}
	case wazeroir.OperationKindClz:
		if op.B1 == 0 {
			ops.PushI32(uint32(bits.LeadingZeros32(ops.PopI32())))
		} else {
			ops.PushI64(uint64(bits.LeadingZeros64(ops.PopI64())))
		}
	case wazeroir.OperationKindCtz:
		if op.B1 == 0 {
			ops.PushI32(uint32(bits.TrailingZeros32(ops.PopI32())))
		} else {
			ops.PushI64(uint64(bits.TrailingZeros64(ops.PopI64())))
		}
	case wazeroir.OperationKindPopcnt:
		if op.B1 == 0 {
			ops.PushI32(uint32(bits.OnesCount32(ops.PopI32())))
		} else {
			ops.PushI64(uint64(bits.OnesCount64(ops.PopI64())))
		}
	case wazeroir.OperationKindDiv:
		execDiv(ops, wazeroir.SignedType(op.B1))
	case wazeroir.OperationKindRem:
		execRem(ops, wazeroir.SignedInt(op.B1))

	case wazeroir.OperationKindAbs:
		if op.B1 == 0 {
			v := math.Float32frombits(ops.PopF32())
			ops.PushF32(math.Float32bits(float32(math.Abs(float64(v)))))
		} else {
			v := math.Float64frombits(ops.PopF64())
			ops.PushF64(math.Float64bits(math.Abs(v)))
		}
	case wazeroir.OperationKindNeg:
		if op.B1 == 0 {
			v := math.Float32frombits(ops.PopF32())
			ops.PushF32(math.Float32bits(-v))
		} else {
			v := math.Float64frombits(ops.PopF64())
			ops.PushF64(math.Float64bits(-v))
		}
	case wazeroir.OperationKindCeil:
		execUnaryFloat(ops, op.B1, math.Ceil)
	case wazeroir.OperationKindFloor:
		execUnaryFloat(ops, op.B1, math.Floor)
	case wazeroir.OperationKindTrunc:
		execUnaryFloat(ops, op.B1, math.Trunc)
	case wazeroir.OperationKindNearest:
		execUnaryFloat(ops, op.B1, roundTiesToEven)
	case wazeroir.OperationKindSqrt:
		execUnaryFloat(ops, op.B1, math.Sqrt)
	case wazeroir.OperationKindMin:
		if op.B1 == 0 {
			b := math.Float32frombits(ops.PopF32())
			a := math.Float32frombits(ops.PopF32())
			ops.PushF32(math.Float32bits(moremath.WasmCompatMin32(a, b)))
		} else {
			b := math.Float64frombits(ops.PopF64())
			a := math.Float64frombits(ops.PopF64())
			ops.PushF64(math.Float64bits(moremath.WasmCompatMin(a, b)))
		}
	case wazeroir.OperationKindMax:
		if op.B1 == 0 {
			b := math.Float32frombits(ops.PopF32())
			a := math.Float32frombits(ops.PopF32())
			ops.PushF32(math.Float32bits(moremath.WasmCompatMax32(a, b)))
		} else {
			b := math.Float64frombits(ops.PopF64())
			a := math.Float64frombits(ops.PopF64())
			ops.PushF64(math.Float64bits(moremath.WasmCompatMax(a, b)))
		}
	case wazeroir.OperationKindCopysign:
		if op.B1 == 0 {
			b := math.Float32frombits(ops.PopF32())
			a := math.Float32frombits(ops.PopF32())
			ops.PushF32(math.Float32bits(float32(math.Copysign(float64(a), float64(b)))))
		} else {
			b := math.Float64frombits(ops.PopF64())
			a := math.Float64frombits(ops.PopF64())
			ops.PushF64(math.Float64bits(math.Copysign(a, b)))
		}

	case wazeroir.OperationKindI32WrapFromI64:
		ops.PushI32(uint32(ops.PopI64()))
	case wazeroir.OperationKindITruncFromF:
		execTrunc(ops, op)
	case wazeroir.OperationKindFConvertFromI:
		execConvert(ops, op)
	case wazeroir.OperationKindF32DemoteFromF64:
		ops.PushF32(math.Float32bits(float32(math.Float64frombits(ops.PopF64()))))
	case wazeroir.OperationKindF64PromoteFromF32:
		ops.PushF64(math.Float64bits(float64(math.Float32frombits(ops.PopF32()))))
	case wazeroir.OperationKindExtend:
		if op.B1 == 1 {
			ops.PushI64(uint64(int64(int32(ops.PopI32()))))
		} else {
			ops.PushI64(uint64(ops.PopI32()))
		}
	case wazeroir.OperationKindSignExtend32From8:
		ops.PushI32(uint32(int32(int8(ops.PopI32()))))
	case wazeroir.OperationKindSignExtend32From16:
		ops.PushI32(uint32(int32(int16(ops.PopI32()))))
	case wazeroir.OperationKindSignExtend64From8:
		ops.PushI64(uint64(int64(int8(ops.PopI64()))))
	case wazeroir.OperationKindSignExtend64From16:
		ops.PushI64(uint64(int64(int16(ops.PopI64()))))
	case wazeroir.OperationKindSignExtend64From32:
		ops.PushI64(uint64(int64(int32(ops.PopI64()))))
	default:
		panic("numexec: unclassified operation " + op.Kind.String())
	}
}

func b2i(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// relation identifies which of the six comparison operators is being
// evaluated. Floats need this instead of a collapsed three-way compare
// because an unordered (NaN) pair must yield false for every relation
// except Ne (which is true) — a three-way int can't represent "unordered"
// without a fragile sentinel.
type relation int

const (
	relEq relation = iota
	relNe
	relLt
	relGt
	relLe
	relGe
)

// execCompare handles Eq/Ne/Lt/Gt/Le/Ge for every SignedType.
func execCompare(ops *vmstate.OperandStack, st byte, rel relation) {
	switch wazeroir.SignedType(st) {
	case wazeroir.SignedTypeInt32:
		b := int32(ops.PopI32())
		a := int32(ops.PopI32())
		ops.PushI32(b2i(intRel(rel, int64(a), int64(b))))
	case wazeroir.SignedTypeUint32:
		b := ops.PopI32()
		a := ops.PopI32()
		ops.PushI32(b2i(uintRel(rel, uint64(a), uint64(b))))
	case wazeroir.SignedTypeInt64:
		b := int64(ops.PopI64())
		a := int64(ops.PopI64())
		ops.PushI32(b2i(intRel(rel, a, b)))
	case wazeroir.SignedTypeUint64:
		b := ops.PopI64()
		a := ops.PopI64()
		ops.PushI32(b2i(uintRel(rel, a, b)))
	case wazeroir.SignedTypeFloat32:
		b := math.Float32frombits(ops.PopF32())
		a := math.Float32frombits(ops.PopF32())
		ops.PushI32(b2i(floatRel(rel, float64(a), float64(b))))
	case wazeroir.SignedTypeFloat64:
		b := math.Float64frombits(ops.PopF64())
		a := math.Float64frombits(ops.PopF64())
		ops.PushI32(b2i(floatRel(rel, a, b)))
	}
}

func intRel(rel relation, a, b int64) bool {
	switch rel {
	case relEq:
		return a == b
	case relNe:
		return a != b
	case relLt:
		return a < b
	case relGt:
		return a > b
	case relLe:
		return a <= b
	default:
		return a >= b
	}
}

func uintRel(rel relation, a, b uint64) bool {
	switch rel {
	case relEq:
		return a == b
	case relNe:
		return a != b
	case relLt:
		return a < b
	case relGt:
		return a > b
	case relLe:
		return a <= b
	default:
		return a >= b
	}
}

// floatRel matches Wasm's float comparison semantics: an unordered (NaN)
// pair is false for every relation except Ne.
func floatRel(rel relation, a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return rel == relNe
	}
	switch rel {
	case relEq:
		return a == b
	case relNe:
		return a != b
	case relLt:
		return a < b
	case relGt:
		return a > b
	case relLe:
		return a <= b
	default:
		return a >= b
	}
}

// execArith applies one of four width-specific binary functions picked by
// tag (0=i32,1=i64,2=f32,3=f64).
func execArith(ops *vmstate.OperandStack, tag byte, i32f, i64f func(a, b uint64) uint64, f32f func(a, b float32) float32, f64f func(a, b float64) float64) {
	switch tag {
	case 0:
		b := uint64(ops.PopI32())
		a := uint64(ops.PopI32())
		ops.PushI32(uint32(i32f(a, b)))
	case 1:
		b := ops.PopI64()
		a := ops.PopI64()
		ops.PushI64(i64f(a, b))
	case 2:
		b := math.Float32frombits(ops.PopF32())
		a := math.Float32frombits(ops.PopF32())
		ops.PushF32(math.Float32bits(f32f(a, b)))
	case 3:
		b := math.Float64frombits(ops.PopF64())
		a := math.Float64frombits(ops.PopF64())
		ops.PushF64(math.Float64bits(f64f(a, b)))
	}
}

func execIntOnly(ops *vmstate.OperandStack, tag byte, f func(a, b uint64) uint64) {
	if tag == 0 {
		b := uint64(ops.PopI32())
		a := uint64(ops.PopI32())
		ops.PushI32(uint32(f(a, b)))
	} else {
		b := ops.PopI64()
		a := ops.PopI64()
		ops.PushI64(f(a, b))
	}
}

func execShr(ops *vmstate.OperandStack, st wazeroir.SignedType) {
	switch st {
	case wazeroir.SignedTypeInt32:
		b := ops.PopI32()
		a := int32(ops.PopI32())
		ops.PushI32(uint32(a >> (b & 31)))
	case wazeroir.SignedTypeUint32:
		b := ops.PopI32()
		a := ops.PopI32()
		ops.PushI32(a >> (b & 31))
	case wazeroir.SignedTypeInt64:
		b := ops.PopI64()
		a := int64(ops.PopI64())
		ops.PushI64(uint64(a >> (b & 63)))
	case wazeroir.SignedTypeUint64:
		b := ops.PopI64()
		a := ops.PopI64()
		ops.PushI64(a >> (b & 63))
	}
}

func execDiv(ops *vmstate.OperandStack, st wazeroir.SignedType) {
	switch st {
	case wazeroir.SignedTypeInt32:
		b := int32(ops.PopI32())
		a := int32(ops.PopI32())
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if a == math.MinInt32 && b == -1 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		ops.PushI32(uint32(a / b))
	case wazeroir.SignedTypeUint32:
		b := ops.PopI32()
		a := ops.PopI32()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		ops.PushI32(a / b)
	case wazeroir.SignedTypeInt64:
		b := int64(ops.PopI64())
		a := int64(ops.PopI64())
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if a == math.MinInt64 && b == -1 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		ops.PushI64(uint64(a / b))
	case wazeroir.SignedTypeUint64:
		b := ops.PopI64()
		a := ops.PopI64()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		ops.PushI64(a / b)
	case wazeroir.SignedTypeFloat32:
		b := math.Float32frombits(ops.PopF32())
		a := math.Float32frombits(ops.PopF32())
		ops.PushF32(math.Float32bits(a / b))
	case wazeroir.SignedTypeFloat64:
		b := math.Float64frombits(ops.PopF64())
		a := math.Float64frombits(ops.PopF64())
		ops.PushF64(math.Float64bits(a / b))
	}
}

func execRem(ops *vmstate.OperandStack, si wazeroir.SignedInt) {
	switch si {
	case wazeroir.SignedInt32:
		b := int32(ops.PopI32())
		a := int32(ops.PopI32())
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if b == -1 {
			ops.PushI32(0) // INT_MIN % -1 doesn't overflow like division does.
			return
		}
		ops.PushI32(uint32(a % b))
	case wazeroir.SignedUint32:
		b := ops.PopI32()
		a := ops.PopI32()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		ops.PushI32(a % b)
	case wazeroir.SignedInt64:
		b := int64(ops.PopI64())
		a := int64(ops.PopI64())
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if b == -1 {
			ops.PushI64(0)
			return
		}
		ops.PushI64(uint64(a % b))
	case wazeroir.SignedUint64:
		b := ops.PopI64()
		a := ops.PopI64()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		ops.PushI64(a % b)
	}
}

func execUnaryFloat(ops *vmstate.OperandStack, tag byte, f func(float64) float64) {
	if tag == 0 {
		v := math.Float32frombits(ops.PopF32())
		ops.PushF32(math.Float32bits(float32(f(float64(v)))))
	} else {
		v := math.Float64frombits(ops.PopF64())
		ops.PushF64(math.Float64bits(f(v)))
	}
}

func roundTiesToEven(v float64) float64 { return math.RoundToEven(v) }

// execTrunc implements both the trapping (§4.3) and non-trapping-saturating
// (misc prefix) truncation families. B3 bit0 is signedness, bit1 is the
// saturating flag (set only by compileMisc).
func execTrunc(ops *vmstate.OperandStack, op wazeroir.UnionOperation) {
	signed := op.B3&1 != 0
	saturating := op.B3&(1<<1) != 0
	var v float64
	if op.B2 == 0 {
		v = float64(math.Float32frombits(ops.PopF32()))
	} else {
		v = math.Float64frombits(ops.PopF64())
	}
	if op.B1 == 0 { // destination i32
		if saturating {
			ops.PushI32(uint32(moremath.I32TruncSatF(v, signed)))
			return
		}
		ops.PushI32(uint32(truncToI32(v, signed)))
		return
	}
	if saturating {
		ops.PushI64(moremath.I64TruncSatF(v, signed))
		return
	}
	ops.PushI64(truncToI64(v, signed))
}

func truncToI32(v float64, signed bool) uint64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		return uint64(uint32(int32(t)))
	}
	if t < 0 || t > math.MaxUint32 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(uint32(t))
}

func truncToI64(v float64, signed bool) uint64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt64 || t >= math.MaxInt64 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		return uint64(int64(t))
	}
	if t < 0 || t >= math.MaxUint64 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(t)
}

// execConvert implements f32/f64.convert_i32/i64_s/u. B1=dest type
// (0=f32,1=f64), B2=source width (0=i32,1=i64), B3 bit0=signed.
func execConvert(ops *vmstate.OperandStack, op wazeroir.UnionOperation) {
	signed := op.B3&1 != 0
	var v float64
	if op.B2 == 0 {
		if signed {
			v = float64(int32(ops.PopI32()))
		} else {
			v = float64(ops.PopI32())
		}
	} else {
		if signed {
			v = float64(int64(ops.PopI64()))
		} else {
			v = float64(ops.PopI64())
		}
	}
	if op.B1 == 0 {
		ops.PushF32(math.Float32bits(float32(v)))
	} else {
		ops.PushF64(math.Float64bits(v))
	}
}
