// Package vmstate implements the operand/frame/label stacks shared by all
// three execution tiers (spec.md §4.1). Tiers borrow these mutably while
// they execute and must not hold long-lived references across a call
// boundary (spec.md §9 "Cross-tier state sharing") — every accessor here
// returns by value or a short-lived index, never a pointer into the
// backing arrays that could be invalidated by a later grow.
package vmstate

import "github.com/wasmtier/execore/internal/wasmruntime"

const (
	// OperandStackCapacity is the bound from spec.md §3: "capacity ~4096
	// slots".
	OperandStackCapacity = 4096
	// FrameStackCapacity is the bound from spec.md §3: "capacity ~1024".
	FrameStackCapacity = 1024
	// LabelStackCapacity is the bound from spec.md §3: "capacity ~4096".
	LabelStackCapacity = 4096
	// MaxCatches is the per-label catch-clause cap from spec.md §3.
	MaxCatches = 8
)

// Slot is a 128-bit operand-stack cell. Scalars occupy the low 64 bits
// (Hi left zero); v128 values use the full 128 bits (spec.md §4.1).
type Slot struct {
	Lo, Hi uint64
}

// OperandStack is the bounded, ordered sequence of 128-bit slots shared by
// every tier within one VM instance.
type OperandStack struct {
	slots []Slot
}

// NewOperandStack allocates a stack with spec's default capacity reserved
// up front, so steady-state execution never reallocates.
func NewOperandStack() *OperandStack {
	return &OperandStack{slots: make([]Slot, 0, OperandStackCapacity)}
}

// Len returns the current operand-stack height (operand pointer).
func (s *OperandStack) Len() int { return len(s.slots) }

// Reset empties the stack, used when the embedder discards/recycles a VM
// (spec.md §7 "Recovery").
func (s *OperandStack) Reset() { s.slots = s.slots[:0] }

func (s *OperandStack) push(v Slot) {
	if len(s.slots) >= OperandStackCapacity {
		panic(wasmruntime.ErrRuntimeCallStackOverflow)
	}
	s.slots = append(s.slots, v)
}

func (s *OperandStack) pop() Slot {
	n := len(s.slots)
	if n == 0 {
		panic(wasmruntime.ErrRuntimeCallStackUnderflow)
	}
	v := s.slots[n-1]
	s.slots = s.slots[:n-1]
	return v
}

// PushI32/PushI64/PushF32/PushF64 push a scalar in the low bits of a slot.
func (s *OperandStack) PushI32(v uint32) { s.push(Slot{Lo: uint64(v)}) }
func (s *OperandStack) PushI64(v uint64) { s.push(Slot{Lo: v}) }
func (s *OperandStack) PushF32(bits uint32) { s.push(Slot{Lo: uint64(bits)}) }
func (s *OperandStack) PushF64(bits uint64) { s.push(Slot{Lo: bits}) }

// PushRef pushes a reference using the null=0/valid=address+1 encoding
// (spec.md §3 invariants).
func (s *OperandStack) PushRef(v uint64) { s.push(Slot{Lo: v}) }

// PushV128 pushes a full 128-bit lane value.
func (s *OperandStack) PushV128(lo, hi uint64) { s.push(Slot{Lo: lo, Hi: hi}) }

// PopI32/PopI64/PopF32/PopF64/PopRef pop a scalar from the low bits.
func (s *OperandStack) PopI32() uint32  { return uint32(s.pop().Lo) }
func (s *OperandStack) PopI64() uint64  { return s.pop().Lo }
func (s *OperandStack) PopF32() uint32  { return uint32(s.pop().Lo) }
func (s *OperandStack) PopF64() uint64  { return s.pop().Lo }
func (s *OperandStack) PopRef() uint64  { return s.pop().Lo }

// PopV128 pops a full 128-bit value, returning (lo, hi).
func (s *OperandStack) PopV128() (uint64, uint64) {
	v := s.pop()
	return v.Lo, v.Hi
}

// PeekSlot returns the slot at absolute index idx without popping it, for
// label-base bookkeeping and result shuffling.
func (s *OperandStack) PeekSlot(idx int) Slot { return s.slots[idx] }

// SetSlot overwrites the slot at absolute index idx.
func (s *OperandStack) SetSlot(idx int, v Slot) { s.slots[idx] = v }

// TruncateTo unwinds the stack to height n, discarding everything above it.
// Used by br/return/catch unwinding (spec.md §4.3, §4.8).
func (s *OperandStack) TruncateTo(n int) {
	if n > len(s.slots) {
		panic(wasmruntime.ErrRuntimeCallStackUnderflow)
	}
	s.slots = s.slots[:n]
}

// CopyRange copies the n slots starting at src to dst. Ranges may overlap
// (Go's copy has move semantics). No tier calls it; call arguments and
// results move through rt.PopArgs and the flat results slice.
func (s *OperandStack) CopyRange(dst, src, n int) {
	copy(s.slots[dst:dst+n], s.slots[src:src+n])
}

// Slots exposes the backing slice for direct indexing; no tier calls it.
// Callers must not retain the returned slice across a push/pop that can
// grow it.
func (s *OperandStack) Slots() []Slot { return s.slots }

// PushSlot/PopSlot expose the raw 128-bit push/pop to callers outside this
// package that need a type-agnostic operand move — call argument/result
// marshalling in internal/engine/core, which copies values whose api.ValueType
// it only knows at the byte level (spec.md §6 host call-boundary surface).
func (s *OperandStack) PushSlot(v Slot) { s.push(v) }
func (s *OperandStack) PopSlot() Slot   { return s.pop() }
