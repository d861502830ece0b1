// Package enginetest builds small, hand-assembled modules for exercising
// the execution tiers directly, the way the teacher's own internal/testing
// packages (internal/testing/require, internal/testing/binaryencoding) give
// every package's tests a shared, un-duplicated fixture layer instead of
// each _test.go reinventing module construction.
package enginetest

import (
	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
)

// NewModule returns an empty, ready-to-populate module instance.
func NewModule(name string) *wasm.ModuleInstance {
	return &wasm.ModuleInstance{Name: name}
}

// NewVM allocates a fresh VM, the per-goroutine execution state every
// invocation chain needs (spec.md §5).
func NewVM() *vmstate.VM { return vmstate.NewVM() }

// AddFunction decodes a function with the given signature and raw bytecode
// body into mod, wiring its Index/Module/Def so call/call_indirect and
// invoke_by_index all resolve it correctly.
func AddFunction(mod *wasm.ModuleInstance, name string, params, results []api.ValueType, numLocals uint32, body []byte) *wasm.Function {
	ft := &wasm.FunctionType{Params: params, Results: results}
	mod.Types = append(mod.Types, ft)
	fn := &wasm.Function{
		Def:   &api.FunctionDefinition{Name: name, ModuleName: mod.Name, ParamTypes: params, ResultTypes: results},
		Type:  ft,
		Body:  &wasm.FunctionBody{Bytecode: body, NumLocals: numLocals},
		Module: mod,
		Index: uint32(len(mod.Functions)),
	}
	mod.Functions = append(mod.Functions, fn)
	return fn
}

// AddHostFunction wires a Go function into mod's function space, exercising
// the call/call_indirect glue's host-call shortcut (core.CallFunction's
// `fn.GoFunc != nil` branch) the same way a decoder's import resolution
// would.
func AddHostFunction(mod *wasm.ModuleInstance, name string, params, results []api.ValueType, fn func(mod *wasm.ModuleInstance, args []uint64) ([]uint64, error)) *wasm.Function {
	ft := &wasm.FunctionType{Params: params, Results: results}
	mod.Types = append(mod.Types, ft)
	f := &wasm.Function{
		Def:    &api.FunctionDefinition{Name: name, ModuleName: mod.Name, ParamTypes: params, ResultTypes: results},
		Type:   ft,
		GoFunc: fn,
		Module: mod,
		Index:  uint32(len(mod.Functions)),
	}
	mod.Functions = append(mod.Functions, f)
	return f
}

// AddMemory attaches a single linear memory to mod, sized minPages initially
// with an optional page ceiling (0 = unbounded by Max) and an optional
// absolute byte ceiling.
func AddMemory(mod *wasm.ModuleInstance, minPages, maxPages uint32, maxBytes uint64) *wasm.Memory {
	mem := &wasm.Memory{Data: make([]byte, uint64(minPages)*65536), Min: minPages, Max: maxPages, MaxBytes: maxBytes}
	mod.Memories = append(mod.Memories, mem)
	return mem
}

// AddTag registers an exception tag with the given payload signature.
func AddTag(mod *wasm.ModuleInstance, name string, payload []api.ValueType) *wasm.Tag {
	tag := &wasm.Tag{Name: name, Type: &wasm.FunctionType{Params: payload}}
	mod.Tags = append(mod.Tags, tag)
	return tag
}

// LEBU encodes v as an unsigned LEB128 varint, the immediate encoding every
// index/count/depth operand in the raw bytecode format uses.
func LEBU(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// LEBI encodes v as a signed LEB128 varint (used by i32.const/i64.const and
// block-type immediates).
func LEBI(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// LE32/LE64 little-endian encode f32.const/f64.const's fixed-width immediate.
func LE32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func LE64(v uint64) []byte {
	return append(LE32(uint32(v)), LE32(uint32(v>>32))...)
}

// Bytes concatenates instruction fragments into one function body, purely
// for readability at call sites building a body out of op/immediate pieces.
func Bytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
