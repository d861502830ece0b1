// Package api includes constants and interfaces used by both end-users and
// internal implementations of the execution core.
package api

import "fmt"

// ValueType describes a parameter or result type mapped to a WebAssembly
// function signature.
//
// The following describes how to convert between Wasm and Go types:
//
//   - ValueTypeI32 - uint64(uint32,int32)
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32/DecodeF32 from float32
//   - ValueTypeF64 - EncodeF64/DecodeF64 from float64
//   - ValueTypeFuncref / ValueTypeExternref - null = 0, else store
//     address + 1 (see §3 "A null reference is encoded as 0")
//   - ValueTypeV128 - occupies two uint64 slots, low-64 then high-64
//
// Note: This is a type alias as it is easier to encode and decode in the
// binary format consumed upstream of this core.
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeV128 is a 128-bit fixed-width SIMD value. It occupies two
	// slots in api-level args/results arrays (low-64 then high-64), but one
	// operand-stack slot internally.
	ValueTypeV128 ValueType = 0x7b
	// ValueTypeFuncref is a nullable reference to a function.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is a nullable opaque host reference.
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the type name of the given ValueType, matching the
// names used in the WebAssembly text format. Returns "unknown" otherwise.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// ValueTypeSlots returns how many 64-bit arg/result slots a value of type t
// occupies at the host boundary.
func ValueTypeSlots(t ValueType) int {
	if t == ValueTypeV128 {
		return 2
	}
	return 1
}

// ExternType classifies imports and exports with their respective types.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
	ExternTypeTag    ExternType = 0x04
)

// FunctionDefinition is the static, immutable metadata of a function needed
// by the core to call into it and to describe it in traps/traces.
type FunctionDefinition struct {
	Name        string
	ModuleName  string
	ParamTypes  []ValueType
	ResultTypes []ValueType
}

func (f *FunctionDefinition) String() string {
	if f == nil {
		return "?"
	}
	return fmt.Sprintf("%s.%s", f.ModuleName, f.Name)
}

// FunctionListener is an optional observability seam with hooks for before
// and after a call. Nothing in the execution core attaches or invokes a
// listener, and tier selection does not consult one; only an attached
// profile (§3 invariants) disables tier promotion.
type FunctionListener interface {
	Before(def *FunctionDefinition, params []uint64)
	After(def *FunctionDefinition, results []uint64, err error)
}
