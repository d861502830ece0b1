// Package gcexec executes the struct/array representative subset (spec.md
// §4.7) against a module instance's GC heap. Object identity and field
// access are modeled exactly; the full GC type-subtyping lattice is not —
// ref.test/ref.cast/br_on_cast answer by heap-object identity (is it a live
// heap object whose recorded type index matches exactly) rather than
// walking a declared subtype hierarchy, which this core doesn't decode (see
// DESIGN.md).
package gcexec

import (
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
)

// StructNew allocates a struct of typeIdx from fields popped by the caller
// in declaration order (fieldsLo/fieldsHi have equal length, one entry per
// field; scalar fields leave the Hi half zero).
func StructNew(mod *wasm.ModuleInstance, typeIdx int, fieldsLo, fieldsHi []uint64) uint64 {
	return mod.AllocGCObject(&wasm.GCObject{TypeIndex: typeIdx, Fields: fieldsLo, FieldsHi: fieldsHi})
}

// ArrayNew allocates an array of typeIdx with n copies of one initializer
// value (array.new) or, when initial is per-element, the caller instead
// passes the already-expanded slices (array.new_fixed/new_data/new_elem).
func ArrayNew(mod *wasm.ModuleInstance, typeIdx int, lo, hi []uint64) uint64 {
	return mod.AllocGCObject(&wasm.GCObject{TypeIndex: typeIdx, IsArray: true, Fields: lo, FieldsHi: hi})
}

func deref(mod *wasm.ModuleInstance, ref uint64) *wasm.GCObject {
	obj, ok := mod.GCObjectAt(ref)
	if !ok {
		panic(wasmruntime.ErrRuntimeTrap)
	}
	return obj
}

// StructGet/StructSet access a struct field by index.
func StructGet(mod *wasm.ModuleInstance, ref uint64, field int) (lo, hi uint64) {
	o := deref(mod, ref)
	if field < 0 || field >= len(o.Fields) {
		panic(wasmruntime.ErrRuntimeTrap)
	}
	return o.Fields[field], o.FieldsHi[field]
}

func StructSet(mod *wasm.ModuleInstance, ref uint64, field int, lo, hi uint64) {
	o := deref(mod, ref)
	if field < 0 || field >= len(o.Fields) {
		panic(wasmruntime.ErrRuntimeTrap)
	}
	o.Fields[field] = lo
	o.FieldsHi[field] = hi
}

// ArrayLen/ArrayGet/ArraySet access array elements, bounds-checked against
// the undefined-element trap (the same Kind call_indirect uses for an
// out-of-range table access).
func ArrayLen(mod *wasm.ModuleInstance, ref uint64) uint32 { return uint32(len(deref(mod, ref).Fields)) }

func ArrayGet(mod *wasm.ModuleInstance, ref uint64, idx uint32) (lo, hi uint64) {
	o := deref(mod, ref)
	if idx >= uint32(len(o.Fields)) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	return o.Fields[idx], o.FieldsHi[idx]
}

func ArraySet(mod *wasm.ModuleInstance, ref uint64, idx uint32, lo, hi uint64) {
	o := deref(mod, ref)
	if idx >= uint32(len(o.Fields)) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	o.Fields[idx] = lo
	o.FieldsHi[idx] = hi
}

// ArrayFill/ArrayCopy back the folded array.fill/array.copy opcodes (spec.md
// §4.7 "folding onto array.set"). array.init_data/array.init_elem fold onto
// the same opcode but do not call either function.
func ArrayFill(mod *wasm.ModuleInstance, ref uint64, offset, n uint32, lo, hi uint64) {
	o := deref(mod, ref)
	if uint64(offset)+uint64(n) > uint64(len(o.Fields)) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	for i := uint32(0); i < n; i++ {
		o.Fields[offset+i] = lo
		o.FieldsHi[offset+i] = hi
	}
}

func ArrayCopy(mod *wasm.ModuleInstance, dstRef uint64, dstOff uint32, srcRef uint64, srcOff, n uint32) {
	dst, src := deref(mod, dstRef), deref(mod, srcRef)
	if uint64(dstOff)+uint64(n) > uint64(len(dst.Fields)) || uint64(srcOff)+uint64(n) > uint64(len(src.Fields)) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	copy(dst.Fields[dstOff:dstOff+n], src.Fields[srcOff:srcOff+n])
	copy(dst.FieldsHi[dstOff:dstOff+n], src.FieldsHi[srcOff:srcOff+n])
}

// RefTest reports whether ref (null=0, valid=address+1) names a live heap
// object of the given type index; a null ref yields nullable. ref.cast and
// br_on_cast call it too and decide trap-vs-fallthrough themselves on a
// false result (plain cast traps, br_on_cast branches).
func RefTest(mod *wasm.ModuleInstance, ref uint64, typeIdx int, nullable bool) bool {
	if ref == 0 {
		return nullable
	}
	o, ok := mod.GCObjectAt(ref)
	return ok && o.TypeIndex == typeIdx
}

// RefI31/I31Get implement the unboxed-scalar i31ref representative subset:
// a 31-bit payload packed directly into the ref encoding's low bits with
// the heap-object high bit (bit 31) set so it's never confused with a
// GCHeap index (spec.md §3 "null=0, valid=address+1" leaves bit 31 free for
// ordinary heap refs well under 2^31 objects).
const i31Tag = uint64(1) << 31

func RefI31(v uint32) uint64 { return i31Tag | uint64(v&0x7fffffff) }

func I31Get(ref uint64, signed bool) uint32 {
	if ref&i31Tag == 0 {
		panic(wasmruntime.ErrRuntimeTrap)
	}
	v := uint32(ref & 0x7fffffff)
	if signed && v&0x40000000 != 0 {
		v |= 0x80000000
	}
	return v
}

func IsI31(ref uint64) bool { return ref&i31Tag != 0 }
