package numexec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasmruntime"
	"github.com/wasmtier/execore/internal/wazeroir"
)

func mustTrap(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a trap")
		err, ok := r.(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, want), "got %v, want %v", err, want)
	}()
	fn()
}

func TestExec_DivI64_IntMinByMinusOneOverflows(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushI64(uint64(math.MaxInt64) + 1) // math.MinInt64's bit pattern
	ops.PushI64(math.MaxUint64)            // -1

	mustTrap(t, wasmruntime.ErrRuntimeIntegerOverflow, func() {
		Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindDiv, B1: byte(wazeroir.SignedTypeInt64)})
	})
}

func TestExec_DivU32_ByZeroTraps(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushI32(9)
	ops.PushI32(0)

	mustTrap(t, wasmruntime.ErrRuntimeIntegerDivideByZero, func() {
		Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindDiv, B1: byte(wazeroir.SignedTypeUint32)})
	})
}

func TestExec_RemI32_IntMinByMinusOneDoesNotOverflow(t *testing.T) {
	// Unlike division, INT_MIN % -1 is well-defined (always 0): the quotient
	// that would overflow is never materialized.
	ops := vmstate.NewOperandStack()
	ops.PushI32(uint32(math.MaxInt32) + 1) // math.MinInt32's bit pattern
	ops.PushI32(math.MaxUint32)            // -1

	Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindRem, B1: byte(wazeroir.SignedInt32)})
	require.Equal(t, uint32(0), ops.PopI32())
}

func TestExec_RemI64_ByZeroTraps(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushI64(5)
	ops.PushI64(0)

	mustTrap(t, wasmruntime.ErrRuntimeIntegerDivideByZero, func() {
		Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindRem, B1: byte(wazeroir.SignedInt64)})
	})
}

func TestExec_RemU32_NegativeOperandsTreatedUnsigned(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushI32(math.MaxUint32) // 0xffffffff as unsigned
	ops.PushI32(10)

	Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindRem, B1: byte(wazeroir.SignedUint32)})
	require.Equal(t, uint32(math.MaxUint32)%10, ops.PopI32())
}

func TestExec_TruncF64ToI32_NaNTraps(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushF64(math.Float64bits(math.NaN()))

	mustTrap(t, wasmruntime.ErrRuntimeInvalidConversionToInteger, func() {
		Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindITruncFromF, B1: 0, B2: 1, B3: 1})
	})
}

func TestExec_TruncF64ToI32_OutOfRangeOverflows(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushF64(math.Float64bits(1e10))

	mustTrap(t, wasmruntime.ErrRuntimeIntegerOverflow, func() {
		Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindITruncFromF, B1: 0, B2: 1, B3: 1})
	})
}

func TestExec_FloatCompare_NaNIsUnordered(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushF64(math.Float64bits(math.NaN()))
	ops.PushF64(math.Float64bits(1))
	Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindLt, B1: byte(wazeroir.SignedTypeFloat64)})
	require.Equal(t, uint32(0), ops.PopI32(), "NaN is not less than anything")

	ops.PushF64(math.Float64bits(math.NaN()))
	ops.PushF64(math.Float64bits(1))
	Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindNe, B1: byte(wazeroir.SignedTypeFloat64)})
	require.Equal(t, uint32(1), ops.PopI32(), "NaN is unequal to everything, including itself")
}

func TestExec_SignExtend32From8(t *testing.T) {
	ops := vmstate.NewOperandStack()
	ops.PushI32(0xff) // -1 as an 8-bit value
	Exec(ops, wazeroir.UnionOperation{Kind: wazeroir.OperationKindSignExtend32From8})
	require.Equal(t, uint32(0xffffffff), ops.PopI32())
}
