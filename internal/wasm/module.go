// Package wasm holds the store-side data model the execution core consumes:
// already-decoded module bodies and the instantiated objects (functions,
// memories, tables, globals, tags) they reference. Decoding the binary
// format and instantiation itself (resolving imports, evaluating
// initializer expressions, allocating these objects) are out of scope
// (spec.md §1) — this package only shapes what a decoder/instantiator
// would have already produced by the time `invoke` is called.
package wasm

import "github.com/wasmtier/execore/api"

// ModuleID identifies a decoded module for per-function-cache keying
// (spec.md §9 "Lazy per-function caches").
type ModuleID string

// FunctionType is a function signature: parameter and result type slices.
// call_indirect compares these element-wise, not merely by length
// (spec.md §4.3 contract on call_indirect).
type FunctionType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Equal reports whether ft and o declare the same parameter and result
// types, element-wise.
func (ft *FunctionType) Equal(o *FunctionType) bool {
	if ft == o {
		return true
	}
	if ft == nil || o == nil {
		return false
	}
	return sliceEqual(ft.Params, o.Params) && sliceEqual(ft.Results, o.Results)
}

func sliceEqual(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ParamSlots/ResultSlots account for v128 occupying two 64-bit slots at the
// host args/results boundary (spec.md §6).
func (ft *FunctionType) ParamSlots() int  { return slotsOf(ft.Params) }
func (ft *FunctionType) ResultSlots() int { return slotsOf(ft.Results) }

func slotsOf(types []api.ValueType) int {
	n := 0
	for _, t := range types {
		n += api.ValueTypeSlots(t)
	}
	return n
}

// Tag is a globally-unique exception tag identity (spec.md §4.8). Identity
// is by pointer; Name is diagnostic only.
type Tag struct {
	Name string
	Type *FunctionType // tag "signature": its parameter types are the payload shape.
}

// FunctionBody is the immutable, already-validated raw bytecode of a
// function plus the locals it declares beyond its parameters.
type FunctionBody struct {
	Bytecode  []byte
	NumLocals uint32 // locals declared beyond params; locals are zero-initialized.
}

// Function is a decoded function: its static type, body, and the module it
// was defined in. The per-function lazily-computed tier caches (§9) live on
// *Function, not on the body, so repeated calls reuse them.
type Function struct {
	Def  *api.FunctionDefinition
	Type *FunctionType
	Body *FunctionBody // nil for host/imported Go functions.

	// GoFunc, when non-nil, makes this a host function: invoked directly by
	// the call/call_indirect glue instead of entering any tier.
	GoFunc func(mod *ModuleInstance, params []uint64) (results []uint64, err error)

	// Module is the instance this function was instantiated into; needed to
	// resolve local.get/set locals-start offsets relative to nothing else,
	// and to set CurrentInstance on call entry (spec.md §9).
	Module *ModuleInstance

	// Index is this function's index in Module's function space, used for
	// diagnostics and for invoke_by_index.
	Index uint32

	// caches populated lazily by each tier on first use; see FunctionCaches.
	Caches FunctionCaches
}

// Memory is an instantiated linear memory.
type Memory struct {
	Data       []byte
	Min, Max   uint32 // in pages
	PageSize   uint32 // custom page sizes extension; default 65536.
	MaxBytes   uint64 // optional ceiling (spec.md §3 "Memory ceiling"), 0 = unset.
	Shared     bool   // shared memory, relevant to atomics wait/notify (§4.7).
}

func (m *Memory) pageSize() uint64 {
	if m.PageSize == 0 {
		return 65536
	}
	return uint64(m.PageSize)
}

// EffectivePageSize exposes pageSize to the execution tiers, which need it
// to convert a memory.grow delta into bytes when enforcing a VM-wide
// MemoryCeilingBytes (spec.md §3 "Memory ceiling") that spans every memory
// reachable from the current instance, not just this one.
func (m *Memory) EffectivePageSize() uint64 { return m.pageSize() }

// SizePages returns the current size of the memory in pages.
func (m *Memory) SizePages() uint32 { return uint32(uint64(len(m.Data)) / m.pageSize()) }

// Grow attempts to grow the memory by delta pages, returning the old size in
// pages, or -1 if honoring the request would exceed the ceiling or Max.
func (m *Memory) Grow(delta uint32) int32 {
	old := uint32(uint64(len(m.Data)) / m.pageSize())
	newPages := uint64(old) + uint64(delta)
	newBytes := newPages * m.pageSize()
	if m.Max != 0 && newPages > uint64(m.Max) {
		return -1
	}
	if m.MaxBytes != 0 && newBytes > m.MaxBytes {
		return -1
	}
	grown := make([]byte, newBytes)
	copy(grown, m.Data)
	m.Data = grown
	return int32(old)
}

// Table is an instantiated table of opaque references (funcref or
// externref). Elements are encoded with the null=0/valid=address+1 scheme
// (spec.md §3 invariants).
type Table struct {
	Elements []uint64
	Type     api.ValueType
}

// Global is an instantiated mutable or immutable global.
type Global struct {
	Type    api.ValueType
	Mutable bool
	Val     uint64
	ValHi   uint64 // high 64 bits, used only when Type == ValueTypeV128.
}

// CompositeType describes a GC struct or array type's arity (spec.md §4.7
// representative subset). Field/element types aren't retained: the engine
// only needs counts to pop the right number of initializer operands and to
// size a new object's Fields, not to enforce the full GC type hierarchy
// (ref.test/ref.cast against this subset are identity/arity checks, not a
// full subtyping lattice — see DESIGN.md).
type CompositeType struct {
	IsArray   bool
	NumFields int // struct field count; always 1 for arrays (the element slot).
}

// GCObject is a heap-allocated struct or array instance. Fields holds one
// operand-stack slot (as a pair of uint64s, matching Global's Val/ValHi) per
// struct field or array element.
type GCObject struct {
	TypeIndex int
	IsArray   bool // true for array objects, false for structs.
	Fields    []uint64
	FieldsHi  []uint64 // high halves, used only for v128-typed fields/elements.
}

// ModuleInstance ties together all store objects reachable from one
// instantiation: its functions, memories, tables, globals and tags, plus
// the CallContext state host functions observe (current instance pointer,
// spec.md §9 "Instance pointer re-entry").
type ModuleInstance struct {
	Name      string
	Functions []*Function
	Memories  []*Memory
	Tables    []*Table
	Globals   []*Global
	Tags      []*Tag
	Types     []*FunctionType

	// CompositeTypes and GCHeap back the struct/array representative subset
	// (spec.md §4.7). Heap objects are addressed with the same null=0,
	// valid=index+1 encoding Table.Elements uses for funcref/externref.
	CompositeTypes []CompositeType
	GCHeap         []*GCObject
}

// AllocGCObject appends obj to the heap and returns its ref encoding.
func (m *ModuleInstance) AllocGCObject(obj *GCObject) uint64 {
	m.GCHeap = append(m.GCHeap, obj)
	return uint64(len(m.GCHeap))
}

// GCObjectAt dereferences a GC ref, trapping via the caller's bounds check
// convention (returns nil, false on a null or out-of-range ref).
func (m *ModuleInstance) GCObjectAt(ref uint64) (*GCObject, bool) {
	if ref == 0 || ref > uint64(len(m.GCHeap)) {
		return nil, false
	}
	return m.GCHeap[ref-1], true
}

// Memory returns the module's first (and, pre multi-memory, only) memory,
// or nil if it has none.
func (m *ModuleInstance) Memory() *Memory {
	if len(m.Memories) == 0 {
		return nil
	}
	return m.Memories[0]
}

// MemoryAt returns the memory at idx, used by multi-memory instructions
// whose memarg carries an explicit memory index (spec.md §4.3).
func (m *ModuleInstance) MemoryAt(idx uint32) *Memory {
	if int(idx) >= len(m.Memories) {
		return nil
	}
	return m.Memories[idx]
}
