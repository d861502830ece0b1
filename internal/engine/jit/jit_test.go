package jit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/enginetest"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
)

// invoke pushes a call frame for fn exactly as internal/engine/core's
// CallFunction does, then runs it through jit.Execute directly, so a test
// can observe this tier's behavior (compiled or falling back to regir)
// without going through the full promotion ladder.
func invoke(vm *vmstate.VM, fn *wasm.Function, args []uint64) ([]uint64, error) {
	entry := vm.Operands.Len()
	for _, a := range args {
		vm.Operands.PushSlot(vmstate.Slot{Lo: a})
	}
	for i := uint32(0); i < fn.Body.NumLocals; i++ {
		vm.Operands.PushSlot(vmstate.Slot{})
	}
	vm.Frames.Push(vmstate.Frame{
		LocalsStart: entry,
		LocalsCount: len(fn.Type.Params) + int(fn.Body.NumLocals),
		ReturnArity: len(fn.Type.Results),
		OperandBase: entry,
		LabelBase:   vm.Labels.Len(),
		Instance:    fn.Module,
		Fn:          fn,
	})
	vm.CurrentInstance = fn.Module
	results, err := Execute(vm, fn)
	vm.Frames.Pop()
	return results, err
}

func TestExecute_EligibleArithmetic(t *testing.T) {
	// (a, b i32) -> i32 { (a + b) * a - b }, entirely within this tier's
	// straight-line i32-arithmetic eligible subset.
	body := enginetest.Bytes(
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(0),
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(1),
		[]byte{0x6a}, // add
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(0),
		[]byte{0x6c}, // mul
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(1),
		[]byte{0x6b}, // sub
		[]byte{wasm.OpcodeEnd},
	)
	mod := enginetest.NewModule("m")
	fn := enginetest.AddFunction(mod, "f", []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, 0, body)
	vm := enginetest.NewVM()

	results, err := invoke(vm, fn, []uint64{3, 5})
	require.NoError(t, err)
	// (3+5)*3-5 = 19
	require.Equal(t, []uint64{19}, results)
	require.Equal(t, 0, vm.Operands.Len())
}

func TestExecute_IneligibleBodyFallsBackToRegir(t *testing.T) {
	// A function with a memory load is never in this tier's eligible
	// subset (spec.md §4.6 "bails out of compilation entirely"); it must
	// still produce a correct result by falling back to regir/predecoded.
	body := enginetest.Bytes(
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(0),
		[]byte{wasm.OpcodeI32Load}, enginetest.LEBU(0), enginetest.LEBU(0),
		[]byte{wasm.OpcodeEnd},
	)
	mod := enginetest.NewModule("m")
	enginetest.AddMemory(mod, 1, 0, 0)
	fn := enginetest.AddFunction(mod, "load", []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, 0, body)
	vm := enginetest.NewVM()

	mem := mod.Memories[0]
	mem.Data[4] = 0x2a // 42, little-endian

	results, err := invoke(vm, fn, []uint64{4})
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)

	_, failed, done := fn.Caches.JITCode.Get()
	require.True(t, done)
	require.True(t, failed, "an ineligible body must latch as a declined compile, not retry forever")
}

func TestExecute_MultiValueReturnFallsBack(t *testing.T) {
	body := enginetest.Bytes(
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(0),
		[]byte{wasm.OpcodeLocalGet}, enginetest.LEBU(0),
		[]byte{wasm.OpcodeEnd},
	)
	mod := enginetest.NewModule("m")
	fn := enginetest.AddFunction(mod, "dup", []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, 0, body)
	vm := enginetest.NewVM()

	results, err := invoke(vm, fn, []uint64{9})
	require.NoError(t, err)
	require.Equal(t, []uint64{9, 9}, results)
}
