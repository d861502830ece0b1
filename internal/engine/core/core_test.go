package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/engine/bytecode"
	"github.com/wasmtier/execore/internal/engine/predecoded"
	"github.com/wasmtier/execore/internal/engine/regir"
	"github.com/wasmtier/execore/internal/enginetest"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
)

// addBody is `(a, b i32) -> i32 { a + b }`, the smallest function that
// exercises locals, the operand stack, and a scalar binary op identically
// across every tier.
func addBody() []byte {
	return enginetest.Bytes(
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(0),
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(1),
		[]byte{0x6a}, // i32.add
		[]byte{wasm.OpcodeEnd},
	)
}

// runTier pushes a call frame exactly as CallFunction does, then runs fn
// through exec directly, letting a test pick a specific tier rather than
// going through execute's promotion ladder.
func runTier(vm *vmstate.VM, fn *wasm.Function, args []uint64, exec func(*vmstate.VM, *wasm.Function) ([]uint64, error)) ([]uint64, error) {
	entry := vm.Operands.Len()
	pushLocals(vm, fn, args)
	vm.Frames.Push(vmstate.Frame{
		LocalsStart: entry,
		LocalsCount: len(fn.Type.Params) + int(bodyLocals(fn)),
		ReturnArity: len(fn.Type.Results),
		OperandBase: entry,
		LabelBase:   vm.Labels.Len(),
		Instance:    fn.Module,
		Fn:          fn,
	})
	prev := vm.CurrentInstance
	vm.CurrentInstance = fn.Module
	results, err := exec(vm, fn)
	vm.Frames.Pop()
	vm.CurrentInstance = prev
	return results, err
}

func TestTierEquivalence_Add(t *testing.T) {
	tiers := []struct {
		name string
		exec func(*vmstate.VM, *wasm.Function) ([]uint64, error)
	}{
		{"bytecode", bytecode.Execute},
		{"predecoded", predecoded.Execute},
		{"regir", regir.Execute},
	}

	for _, tc := range tiers {
		t.Run(tc.name, func(t *testing.T) {
			mod := enginetest.NewModule("m")
			fn := enginetest.AddFunction(mod, "add", []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, 0, addBody())
			vm := enginetest.NewVM()

			results, err := runTier(vm, fn, []uint64{40, 2}, tc.exec)
			require.NoError(t, err)
			require.Equal(t, []uint64{42}, results)
			require.Equal(t, 0, vm.Operands.Len(), "operand stack must be back to call entry height")
		})
	}
}

func TestTierEquivalence_TrapsAgree(t *testing.T) {
	// (a, b i32) -> i32 { a / b } (signed)
	divBody := enginetest.Bytes(
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(0),
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(1),
		[]byte{0x6d}, // i32.div_s
		[]byte{wasm.OpcodeEnd},
	)

	tiers := []struct {
		name string
		exec func(*vmstate.VM, *wasm.Function) ([]uint64, error)
	}{
		{"bytecode", bytecode.Execute},
		{"predecoded", predecoded.Execute},
		{"regir", regir.Execute},
	}

	cases := []struct {
		name    string
		a, b    uint32
		wantErr error
	}{
		{"divide by zero", 7, 0, wasmruntime.ErrRuntimeIntegerDivideByZero},
		{"INT_MIN / -1 overflows, does not wrap", 0x80000000, 0xffffffff, wasmruntime.ErrRuntimeIntegerOverflow},
	}

	for _, tc := range tiers {
		for _, c := range cases {
			t.Run(tc.name+"/"+c.name, func(t *testing.T) {
				mod := enginetest.NewModule("m")
				fn := enginetest.AddFunction(mod, "div", []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, 0, divBody)
				vm := enginetest.NewVM()

				func() {
					defer func() {
						r := recover()
						require.NotNil(t, r, "expected a panic/trap")
						err, ok := r.(error)
						require.True(t, ok)
						require.True(t, errors.Is(err, c.wantErr), "got %v, want %v", err, c.wantErr)
					}()
					_, _ = runTier(vm, fn, []uint64{uint64(c.a), uint64(c.b)}, tc.exec)
				}()
			})
		}
	}
}

func TestInvoke_TierPromotionAcrossRepeatedCalls(t *testing.T) {
	mod := enginetest.NewModule("m")
	fn := enginetest.AddFunction(mod, "add", []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, 0, addBody())
	vm := enginetest.NewVM()

	// Call enough times to walk every rung of the promotion ladder
	// (predecoded -> register-IR -> JIT-eligible-or-not) without ever
	// changing the observable result.
	for i := 0; i < jitAfterCalls+4; i++ {
		results, err := Invoke(vm, mod, "add", []uint64{40, 2})
		require.NoError(t, err)
		require.Equal(t, []uint64{42}, results)
	}
}

func TestInvoke_FuelExhaustion(t *testing.T) {
	mod := enginetest.NewModule("m")
	fn := enginetest.AddFunction(mod, "add", []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, 0, addBody())
	vm := enginetest.NewVM()
	_ = fn

	fuel := int64(0)
	vm.Fuel = &fuel

	_, err := Invoke(vm, mod, "add", []uint64{1, 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, wasmruntime.ErrRuntimeFuelExhausted))
}

func TestInvoke_FunctionNotFound(t *testing.T) {
	mod := enginetest.NewModule("m")
	vm := enginetest.NewVM()
	_, err := Invoke(vm, mod, "nope", nil)
	require.Error(t, err)
}

func TestInvokeByIndex_OutOfRangePanicsAsTrap(t *testing.T) {
	mod := enginetest.NewModule("m")
	vm := enginetest.NewVM()
	_, err := InvokeByIndex(vm, mod, 0, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, wasmruntime.ErrRuntimeInvalidTableAccess))
}

func TestPushPopOperandHelpers(t *testing.T) {
	vm := enginetest.NewVM()
	PushOperand(vm, 5, 0)
	lo, _ := PopOperand(vm)
	require.Equal(t, uint64(5), lo)

	vm.Operands.PushI32(7)
	require.Equal(t, uint32(7), PopI32(vm))

	vm.Operands.PushI32(9)
	require.Equal(t, uint32(9), PopU32(vm))

	vm.Operands.PushI64(11)
	require.Equal(t, uint64(11), PopI64(vm))
}
