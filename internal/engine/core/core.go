// Package core implements the execution core's only embedder-facing
// surface (spec.md §6): invoke, invoke_by_index, and the call glue every
// tier recurses through for call/call_indirect/call_ref. It owns tier
// selection (spec.md §4.1/§9) and the panic-to-error trap boundary, the
// teacher's callNativeFunc/callGoFuncWithStack idiom generalized across
// three interpreter tiers instead of one.
package core

import (
	"fmt"

	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/engine/bytecode"
	"github.com/wasmtier/execore/internal/engine/callhook"
	"github.com/wasmtier/execore/internal/engine/jit"
	"github.com/wasmtier/execore/internal/engine/predecoded"
	"github.com/wasmtier/execore/internal/engine/regir"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmdebug"
	"github.com/wasmtier/execore/internal/wasmruntime"
)

func init() {
	callhook.Call = CallFunction
}

// promoteAfterCalls is the per-function call count (fn.Caches.IncCalls) from
// which a function runs on the register-IR tier instead of the predecoded
// interpreter. Picked small enough that even a short-lived test exercises
// promotion, not tuned for throughput.
const promoteAfterCalls = 4

// Invoke is the top-level embedder entry point (spec.md §6 "invoke"): looks
// up fn by name within mod and calls it with args, wrapping any trap with a
// readable stack trace before it escapes.
func Invoke(vm *vmstate.VM, mod *wasm.ModuleInstance, name string, args []uint64) (results []uint64, err error) {
	for _, fn := range mod.Functions {
		if fn.Def != nil && fn.Def.Name == name {
			return invokeTraced(vm, fn, args)
		}
	}
	return nil, fmt.Errorf("core: function %q not found in module %q", name, mod.Name)
}

// InvokeByIndex is invoke's index-addressed sibling (spec.md §6
// "invoke_by_index"), used by table/export lookups that already resolved a
// function index rather than a name.
func InvokeByIndex(vm *vmstate.VM, mod *wasm.ModuleInstance, idx uint32, args []uint64) (results []uint64, err error) {
	if int(idx) >= len(mod.Functions) {
		return nil, wasmruntime.ErrRuntimeInvalidTableAccess
	}
	return invokeTraced(vm, mod.Functions[idx], args)
}

// invokeTraced is the shared body of Invoke/InvokeByIndex: it owns the one
// recover() that turns a tier's panic into a returned error and, for a trap
// (not a plain error from malformed input), attaches a wasmdebug trace
// reconstructed from the live frame stack (spec.md §7 "Recovery").
func invokeTraced(vm *vmstate.VM, fn *wasm.Function, args []uint64) (results []uint64, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rerr, ok := r.(error)
		if !ok {
			panic(r)
		}
		err = wasmdebug.Wrap(rerr, captureTrace(vm))
		results = nil
	}()
	return CallFunction(vm, fn, args)
}

// captureTrace reads the live frame stack (outermost-first, matching
// vmstate.FrameStack.Frames's storage order) into wasmdebug's trace format,
// using each frame's Fn to recover the function definition a trap occurred
// in (spec.md §7 "Recovery").
func captureTrace(vm *vmstate.VM) []wasmdebug.FrameInfo {
	live := vm.Frames.Frames()
	frames := make([]wasmdebug.FrameInfo, len(live))
	for i, f := range live {
		var def *api.FunctionDefinition
		if fn, ok := f.Fn.(*wasm.Function); ok && fn != nil {
			def = fn.Def
		}
		frames[i] = wasmdebug.FrameInfo{Def: def, PC: f.ResumePC}
	}
	return frames
}

// CallFunction is the single recursive call entry (spec.md §6 "call_function"):
// it marshals a flat host-boundary argument slice into locals, pushes a call
// frame, selects a tier, and runs fn to completion. Every call/call_indirect/
// call_ref/return_call* opcode in every tier reaches this exact function,
// via callhook.Call, for a nested Wasm-to-Wasm call.
func CallFunction(vm *vmstate.VM, fn *wasm.Function, args []uint64) (results []uint64, err error) {
	if fn.GoFunc != nil {
		return fn.GoFunc(fn.Module, args)
	}

	entry := vm.Operands.Len()
	pushLocals(vm, fn, args)

	prevInstance := vm.CurrentInstance
	vm.CurrentInstance = fn.Module

	vm.Frames.Push(vmstate.Frame{
		LocalsStart: entry,
		LocalsCount: len(fn.Type.Params) + int(bodyLocals(fn)),
		ReturnArity: len(fn.Type.Results),
		OperandBase: entry,
		LabelBase:   vm.Labels.Len(),
		Instance:    fn.Module,
		Fn:          fn,
	})

	results, err = execute(vm, fn)

	vm.Frames.Pop()
	vm.CurrentInstance = prevInstance
	return results, err
}

func bodyLocals(fn *wasm.Function) uint32 {
	if fn.Body == nil {
		return 0
	}
	return fn.Body.NumLocals
}

// pushLocals pushes one Slot per declared local (params, expanded from the
// flat args slice, followed by zero-initialized declared locals), matching
// the tiers' LocalsStart/local.get|set contract.
func pushLocals(vm *vmstate.VM, fn *wasm.Function, args []uint64) {
	i := 0
	for _, t := range fn.Type.Params {
		if t == api.ValueTypeV128 {
			vm.Operands.PushSlot(vmstate.Slot{Lo: args[i], Hi: args[i+1]})
			i += 2
		} else {
			vm.Operands.PushSlot(vmstate.Slot{Lo: args[i]})
			i++
		}
	}
	for j := uint32(0); j < bodyLocals(fn); j++ {
		vm.Operands.PushSlot(vmstate.Slot{})
	}
}

// execute picks fn's tier per spec.md §9's promotion ladder: calls below
// promoteAfterCalls run on the predecoded interpreter, later calls on the
// register-IR tier, and calls from jitAfterCalls on the JIT tier. When
// profiling is attached, promotion is disabled and every call runs on the
// bytecode tier (spec.md §3 invariants "Profiling disables tier promotion").
func execute(vm *vmstate.VM, fn *wasm.Function) ([]uint64, error) {
	if vm.TierPromotionDisabled() {
		return bytecode.Execute(vm, fn)
	}
	calls := fn.Caches.IncCalls()
	if calls < promoteAfterCalls {
		return predecoded.Execute(vm, fn)
	}
	if calls >= jitAfterCalls {
		return jit.Execute(vm, fn)
	}
	results, err := regir.Execute(vm, fn)
	if wasmruntime.IsJitRestart(err) {
		// regir.go already unwound this call's operand/label state back to
		// its frame base before signaling restart (spec.md §9); it is safe
		// to re-run the same call from scratch through the JIT tier.
		return jit.Execute(vm, fn)
	}
	return results, err
}

// jitAfterCalls is the hot-call threshold (spec.md §2 "JIT compilation is
// triggered when the hot-call threshold is reached") past which a function
// tries the native-code tier directly instead of waiting for a register-IR
// back-edge to trigger it.
const jitAfterCalls = 64

// PushOperand/PopOperand/PopI32/PopU32/PopI64/GetMemory are the low-level
// host-function primitive surface (spec.md §6): direct operand-stack and
// memory access for a host function that wants more than the ordinary flat
// GoFunc(mod, params) convention gives it.
func PushOperand(vm *vmstate.VM, lo, hi uint64) { vm.Operands.PushSlot(vmstate.Slot{Lo: lo, Hi: hi}) }

func PopOperand(vm *vmstate.VM) (lo, hi uint64) {
	s := vm.Operands.PopSlot()
	return s.Lo, s.Hi
}

func PopI32(vm *vmstate.VM) uint32 { return vm.Operands.PopI32() }
func PopU32(vm *vmstate.VM) uint32 { return vm.Operands.PopI32() }
func PopI64(vm *vmstate.VM) uint64 { return vm.Operands.PopI64() }

func GetMemory(mod *wasm.ModuleInstance) *wasm.Memory { return mod.Memory() }
