//go:build !(amd64 && (linux || darwin))

package jit

import (
	"fmt"

	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wazeroir"
)

// codeBuffer has no payload on platforms this tier doesn't target: compile
// attempts fail before one is ever allocated (spec.md §4.6 "Architecture-
// specific details... are permitted to diverge").
type codeBuffer struct{}

func compileFunction(*wasm.Function, *wazeroir.CompiledFunction) (*compiledFn, error) {
	return nil, fmt.Errorf("jit: unsupported architecture")
}

func mmapExecutable([]byte) (*codeBuffer, error) {
	return nil, fmt.Errorf("jit: unsupported architecture")
}

func invokeNative(*codeBuffer, []uint64, *vmstate.VM, *wasm.ModuleInstance) int32 {
	panic("jit: invokeNative called on unsupported architecture")
}
