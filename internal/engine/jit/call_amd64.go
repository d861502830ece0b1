//go:build amd64 && (linux || darwin)

package jit

import (
	"unsafe"

	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
)

// callNative is implemented in call_amd64.s: a NOSPLIT trampoline that
// loads regs, vmPtr and instPtr into DI, SI and DX (the first three System-V
// integer argument registers), CALLs the address in code through AX, and
// returns code's EAX in ret. The
// generated machine code itself follows that same System-V convention
// (spec.md §4.6 "C-ABI entry point taking (registers pointer, VM pointer,
// instance pointer)"), so this is a plain call, not a context switch.
func callNative(code, regs, vmPtr, instPtr unsafe.Pointer) int32

// invokeNative calls into cfn's compiled machine code over the register
// window win, passing vm and mod through untouched for a future codegen
// extension (memory access, calls) that needs them; this tier's current
// eligible subset never dereferences either.
func invokeNative(code *codeBuffer, win []uint64, vm *vmstate.VM, mod *wasm.ModuleInstance) int32 {
	return callNative(unsafe.Pointer(&code.mem[0]), unsafe.Pointer(&win[0]), unsafe.Pointer(vm), unsafe.Pointer(mod))
}
