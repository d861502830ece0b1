// Package jit implements the optional native-code tier (spec.md §4.6): it
// lowers a narrow, straight-line subset of a function's register-IR into
// real amd64 machine code via golang-asm's obj.Prog builder (the same
// library the teacher's own golang-asm-backed assembler wraps), maps it
// W^X via golang.org/x/sys/unix, and calls into it through a hand-written
// System-V-ABI trampoline. Any function outside that subset — anything
// with control flow, calls, memory access, or a non-i32 signature — bails
// out of compilation entirely (spec.md §4.6 "falls back... by bailing out
// of compilation entirely, not per-instruction") and runs on the
// register-IR interpreter instead, the same compute-once/latch-failure
// discipline as every other tier (spec.md §9).
package jit

import (
	"github.com/wasmtier/execore/internal/engine/regir"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
	"github.com/wasmtier/execore/internal/wazeroir"
)

// errorCodes maps a native entry point's returned error code back onto the
// VM's trap taxonomy (spec.md §4.6 "Error code 0 is success; non-zero codes
// map back to the VM's error taxonomy"). This tier's eligible subset (pure
// i32 register arithmetic, no memory/calls/div) can never actually produce
// a nonzero code today; the table exists so extending codegen later with an
// operation that can trap doesn't also require inventing the ABI contract.
var errorCodes = map[int32]error{
	0: nil,
	1: wasmruntime.ErrRuntimeIntegerDivideByZero,
	2: wasmruntime.ErrRuntimeIntegerOverflow,
	3: wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess,
}

// compiledFn is the cached payload of fn.Caches.JITCode: machine code plus
// the bookkeeping needed to invoke it and map its result into the returned
// results slice.
type compiledFn struct {
	code        *codeBuffer // mmapped, W^X executable machine code
	numRegSlots int         // register-file slots this function's code expects
	numLocals   int
	returnArity int // 0 or 1; jit never compiles multi-value returns
}

// Execute runs fn through the native-code tier, compiling it on first call
// past the hot-call/back-edge threshold and latching the result (success or
// ineligibility) in fn.Caches.JITCode. Falls back to internal/engine/regir
// for any function this tier declines to compile.
func Execute(vm *vmstate.VM, fn *wasm.Function) (results []uint64, err error) {
	cfn, ok := compiled(fn)
	if !ok {
		return regir.Execute(vm, fn)
	}
	frame := *vm.Frames.Top()

	// Reserve at least one slot even for a no-local, no-result function so
	// invokeNative always has a non-empty window to take an address of.
	n := cfn.numRegSlots
	if n == 0 {
		n = 1
	}
	regBase := vm.Registers.Reserve(n)
	defer vm.Registers.Release(regBase)
	win := vm.Registers.Window(regBase, n)
	for i := 0; i < cfn.numLocals; i++ {
		win[i] = vm.Operands.PeekSlot(frame.LocalsStart + i).Lo
	}

	if errCode := invokeNative(cfn.code, win, vm, fn.Module); errCode != 0 {
		return nil, classifyErrorCode(errCode)
	}
	vm.Operands.TruncateTo(frame.OperandBase)
	if cfn.returnArity == 1 {
		return []uint64{uint64(uint32(win[cfn.numLocals]))}, nil
	}
	return nil, nil
}

func compiled(fn *wasm.Function) (*compiledFn, bool) {
	if v, failed, done := fn.Caches.JITCode.Get(); done {
		if failed {
			return nil, false
		}
		return v.(*compiledFn), true
	}
	cf, err := obtainIR(fn)
	if err != nil {
		fn.Caches.JITCode.Store(nil, err)
		return nil, false
	}
	cfn, err := compileFunction(fn, cf)
	fn.Caches.JITCode.Store(cfn, err)
	if err != nil {
		return nil, false
	}
	return cfn, true
}

// obtainIR reuses fn's already-compiled predecoded/register IR if another
// tier got there first (PredecodedIR and RegisterIR hold the identical
// *wazeroir.CompiledFunction shape, spec.md §4.5), recompiling only if
// neither cache is populated yet.
func obtainIR(fn *wasm.Function) (*wazeroir.CompiledFunction, error) {
	for _, slot := range []*wasm.Slot{&fn.Caches.RegisterIR, &fn.Caches.PredecodedIR} {
		if v, failed, done := slot.Get(); done && !failed {
			return v.(*wazeroir.CompiledFunction), nil
		}
	}
	numLocals := len(fn.Type.Params) + int(fn.Body.NumLocals)
	return wazeroir.Compile(fn.Body.Bytecode, fn.Module.Types, fn.Type, numLocals)
}

func classifyErrorCode(code int32) error {
	if e, ok := errorCodes[code]; ok {
		return e
	}
	return wasmruntime.ErrRuntimeTrap
}
