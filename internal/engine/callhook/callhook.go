// Package callhook breaks the import cycle between the tier packages
// (bytecode, predecoded, regir) and internal/engine/core: core selects and
// invokes a tier, but every tier's call/call_indirect/return_call* handler
// must itself be able to invoke the call glue recursively (for a nested
// Wasm-to-Wasm call) without importing core directly. The same trick the
// teacher uses for *wasm.Function's GoFunc field and the api.FunctionListener
// seam — wire a function value in after construction rather than import the
// concrete package — applied at call-glue granularity instead of per-function.
package callhook

import (
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
)

// Call is set by internal/engine/core's init to core.CallFunction. It is the
// single recursive call entry every tier uses for call/call_indirect/
// call_ref and for the return_call family. A tail call goes through it as
// an ordinary nested call: the caller's frame is not reused, so each
// return_call* adds one frame to vm.Frames while its callee runs.
var Call func(vm *vmstate.VM, fn *wasm.Function, args []uint64) (results []uint64, err error)
