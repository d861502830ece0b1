package rt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
)

func mustPanic(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, want), "got %v, want %v", err, want)
	}()
	fn()
}

func TestStore_OutOfBoundsIsAtomic(t *testing.T) {
	mem := &wasm.Memory{Data: make([]byte, 16)}
	before := append([]byte(nil), mem.Data...)

	mustPanic(t, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess, func() {
		Store(mem, 12, 8, 0xdeadbeefdeadbeef) // [12,20) past the 16-byte memory
	})
	require.Equal(t, before, mem.Data, "an out-of-bounds store must not partially write")
}

func TestMemCopy_OutOfBoundsSourceLeavesDestUntouched(t *testing.T) {
	mem := &wasm.Memory{Data: make([]byte, 16)}
	for i := range mem.Data[:8] {
		mem.Data[i] = byte(i + 1)
	}
	before := append([]byte(nil), mem.Data...)

	// src range [10, 18) overflows the 16-byte memory; dst range is in
	// bounds, so a naive copy-then-check would have clobbered it.
	mustPanic(t, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess, func() {
		MemCopy(mem, 0, 10, 8)
	})
	require.Equal(t, before, mem.Data, "a failed memory.copy must leave the destination range untouched")
}

func TestMemCopy_OverlapForward(t *testing.T) {
	mem := &wasm.Memory{Data: make([]byte, 16)}
	for i := range mem.Data[:8] {
		mem.Data[i] = byte(i + 1)
	}
	MemCopy(mem, 2, 0, 8)
	require.Equal(t, []byte{1, 2, 1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0}, mem.Data)
}

func TestLoadStore_RoundTrip(t *testing.T) {
	mem := &wasm.Memory{Data: make([]byte, 16)}
	Store(mem, 4, 4, 0xcafef00d)
	require.Equal(t, uint64(0xcafef00d), LoadU(mem, 4, 4))
	require.Equal(t, int64(-0x35010ff3), LoadS(mem, 4, 4)) // 0xcafef00d sign-extended
}

func TestMemoryGrow_PageCeiling(t *testing.T) {
	mem := &wasm.Memory{Data: make([]byte, 65536), Min: 1, Max: 2}
	vm := vmstate.NewVM()

	old := MemoryGrow(vm, mem, 1)
	require.Equal(t, int32(1), old)
	require.Equal(t, uint32(2), mem.SizePages())

	require.Equal(t, int32(-1), MemoryGrow(vm, mem, 1), "growing past Max must fail, not grow partially")
	require.Equal(t, uint32(2), mem.SizePages())
}

func TestMemoryGrow_VMWideByteCeiling(t *testing.T) {
	mod := &wasm.ModuleInstance{}
	mem := &wasm.Memory{Data: make([]byte, 65536)}
	mod.Memories = append(mod.Memories, mem)

	vm := vmstate.NewVM()
	vm.CurrentInstance = mod
	vm.MemoryCeilingBytes = 65536 * 2 // room for exactly one more page

	require.Equal(t, int32(1), MemoryGrow(vm, mem, 1))
	require.Equal(t, int32(-1), MemoryGrow(vm, mem, 1), "a second grow must be rejected once the VM-wide ceiling is hit")
}

func TestResolveCallIndirect_SignatureMismatch(t *testing.T) {
	mod := &wasm.ModuleInstance{}
	i32 := &wasm.FunctionType{Params: nil, Results: nil}
	i32i32 := &wasm.FunctionType{Params: []byte{0x7f}, Results: nil}
	mod.Types = []*wasm.FunctionType{i32, i32i32}
	callee := &wasm.Function{Type: i32}
	mod.Functions = []*wasm.Function{callee}
	mod.Tables = []*wasm.Table{{Elements: []uint64{1}}} // element 0 -> function 0

	mustPanic(t, wasmruntime.ErrRuntimeMismatchedSignatures, func() {
		ResolveCallIndirect(mod, 0, 1, 0) // caller expects i32i32's signature
	})
}

func TestResolveCallIndirect_NullElement(t *testing.T) {
	mod := &wasm.ModuleInstance{}
	mod.Types = []*wasm.FunctionType{{}}
	mod.Tables = []*wasm.Table{{Elements: []uint64{0}}} // null

	mustPanic(t, wasmruntime.ErrRuntimeInvalidTableAccess, func() {
		ResolveCallIndirect(mod, 0, 0, 0)
	})
}
