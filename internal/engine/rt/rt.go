// Package rt holds the bounds-checked memory/table access helpers and
// call_indirect signature resolution shared by every interpreter tier
// (spec.md §4.3, §4.7). Factoring these out of internal/engine/bytecode and
// internal/engine/predecoded means the two tiers can never drift on trap
// conditions for loads, stores, or table dispatch — the same grounding
// rationale internal/numexec documents for scalar operators.
package rt

import (
	"encoding/binary"
	"fmt"

	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
)

// TagIdentity converts a *wasm.Tag's pointer identity (wasm.Tag's doc:
// "Identity is by pointer; Name is diagnostic only") into the stable string
// key PendingException.TagID and CatchClause.TagID compare against.
func TagIdentity(tag *wasm.Tag) string { return fmt.Sprintf("%p", tag) }

// MemCopy implements memory.copy: an overlap-safe bulk move within (or
// between, once multi-memory is wired) linear memories.
func MemCopy(mem *wasm.Memory, dst, src, n uint64) {
	checkBounds(mem, dst, n)
	checkBounds(mem, src, n)
	copy(mem.Data[dst:dst+n], mem.Data[src:src+n])
}

// MemFill implements memory.fill.
func MemFill(mem *wasm.Memory, dst uint64, val byte, n uint64) {
	checkBounds(mem, dst, n)
	for i := uint64(0); i < n; i++ {
		mem.Data[dst+i] = val
	}
}

func checkBounds(mem *wasm.Memory, ea, n uint64) {
	if mem == nil {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	end := ea + n
	if end < ea || end > uint64(len(mem.Data)) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
}

// LoadU reads width bytes (1, 2, 4 or 8) little-endian and zero-extends.
func LoadU(mem *wasm.Memory, ea uint64, width int) uint64 {
	checkBounds(mem, ea, uint64(width))
	switch width {
	case 1:
		return uint64(mem.Data[ea])
	case 2:
		return uint64(binary.LittleEndian.Uint16(mem.Data[ea:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(mem.Data[ea:]))
	case 8:
		return binary.LittleEndian.Uint64(mem.Data[ea:])
	default:
		panic("rt: bad load width")
	}
}

// LoadS reads width bytes and sign-extends to 64 bits.
func LoadS(mem *wasm.Memory, ea uint64, width int) int64 {
	u := LoadU(mem, ea, width)
	switch width {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

// Store writes the low width bytes of v little-endian.
func Store(mem *wasm.Memory, ea uint64, width int, v uint64) {
	checkBounds(mem, ea, uint64(width))
	switch width {
	case 1:
		mem.Data[ea] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(mem.Data[ea:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(mem.Data[ea:], uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(mem.Data[ea:], v)
	default:
		panic("rt: bad store width")
	}
}

// LoadV128 reads 16 bytes as (lo, hi), matching the operand stack's
// low-64-then-high-64 convention (spec.md §4.1).
func LoadV128(mem *wasm.Memory, ea uint64) (lo, hi uint64) {
	checkBounds(mem, ea, 16)
	return binary.LittleEndian.Uint64(mem.Data[ea:]), binary.LittleEndian.Uint64(mem.Data[ea+8:])
}

// StoreV128 writes 16 bytes from (lo, hi).
func StoreV128(mem *wasm.Memory, ea uint64, lo, hi uint64) {
	checkBounds(mem, ea, 16)
	binary.LittleEndian.PutUint64(mem.Data[ea:], lo)
	binary.LittleEndian.PutUint64(mem.Data[ea+8:], hi)
}

// MemoryGrow applies both the module-instance ceiling (wasm.Memory.Grow,
// which already checks Max pages and MaxBytes) and the VM-wide
// MemoryCeilingBytes, which bounds total linear-memory bytes across every
// memory reachable from the current instance (spec.md §3 "Memory
// ceiling"). This is the one place both ceilings are actually enforced, per
// MemoryCeilingBytes's own doc comment.
func MemoryGrow(vm *vmstate.VM, mem *wasm.Memory, delta uint32) int32 {
	if vm.MemoryCeilingBytes != 0 {
		var total uint64
		if inst, ok := vm.CurrentInstance.(*wasm.ModuleInstance); ok {
			for _, m := range inst.Memories {
				total += uint64(len(m.Data))
			}
		} else {
			total = uint64(len(mem.Data))
		}
		if total+uint64(delta)*mem.EffectivePageSize() > vm.MemoryCeilingBytes {
			return -1
		}
	}
	return mem.Grow(delta)
}

// TableGet/TableSet bounds-check against an undefined-element trap, the
// same Kind call_indirect's null/out-of-range element checks use.
func TableGet(t *wasm.Table, idx uint32) uint64 {
	if t == nil || idx >= uint32(len(t.Elements)) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	return t.Elements[idx]
}

func TableSet(t *wasm.Table, idx uint32, v uint64) {
	if t == nil || idx >= uint32(len(t.Elements)) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	t.Elements[idx] = v
}

// FuncRef resolves a call_ref operand: null (0) or an out-of-range index
// traps, matching call_indirect's own element checks.
func FuncRef(mod *wasm.ModuleInstance, ref uint64) *wasm.Function {
	if ref == 0 {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	idx := uint32(ref - 1)
	if int(idx) >= len(mod.Functions) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	return mod.Functions[idx]
}

// PopArgs pops ft.ParamSlots() flat values off the operand stack, in
// declaration order, expanding any v128 param to its two 64-bit halves —
// the marshalling contract every tier's call/call_indirect/call_ref and
// return_call* opcodes share (spec.md §4.9).
func PopArgs(vm *vmstate.VM, ft *wasm.FunctionType) []uint64 {
	n := len(ft.Params)
	slots := make([]vmstate.Slot, n)
	for i := n - 1; i >= 0; i-- {
		slots[i] = vm.Operands.PopSlot()
	}
	flat := make([]uint64, 0, ft.ParamSlots())
	for i, t := range ft.Params {
		flat = append(flat, slots[i].Lo)
		if t == api.ValueTypeV128 {
			flat = append(flat, slots[i].Hi)
		}
	}
	return flat
}

// PushResults pushes a flat host-boundary result slice back onto the
// operand stack as Slots, folding a v128's two 64-bit halves back into one.
func PushResults(vm *vmstate.VM, types []api.ValueType, flat []uint64) {
	i := 0
	for _, t := range types {
		if t == api.ValueTypeV128 {
			vm.Operands.PushSlot(vmstate.Slot{Lo: flat[i], Hi: flat[i+1]})
			i += 2
		} else {
			vm.Operands.PushSlot(vmstate.Slot{Lo: flat[i]})
			i++
		}
	}
}

// ResolveCallIndirect performs the full call_indirect contract (spec.md
// §4.3): table bounds, null-element, and element-type-vs-declared-type
// checks, ending in the element-vs-expected signature comparison that must
// compare FunctionType element-wise, not merely by arity.
func ResolveCallIndirect(mod *wasm.ModuleInstance, tableIdx, typeIdx, elemIdx uint32) *wasm.Function {
	if int(tableIdx) >= len(mod.Tables) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	raw := TableGet(mod.Tables[tableIdx], elemIdx)
	if raw == 0 {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	fnIdx := uint32(raw - 1)
	if int(fnIdx) >= len(mod.Functions) {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	fn := mod.Functions[fnIdx]
	if int(typeIdx) >= len(mod.Types) {
		panic(wasmruntime.ErrRuntimeTrap)
	}
	if !fn.Type.Equal(mod.Types[typeIdx]) {
		panic(wasmruntime.ErrRuntimeMismatchedSignatures)
	}
	return fn
}
