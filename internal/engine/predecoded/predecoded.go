// Package predecoded implements the tier-2 execution core (spec.md §4.4): a
// function is lowered once into a flat array of wazeroir.UnionOperation
// records (branch targets and block arities pre-resolved to IR indices,
// locals/constants interned), then every subsequent call walks that array
// directly instead of re-decoding LEB128 immediates from raw bytes. The
// scalar/SIMD/atomic/GC execution itself is shared with internal/engine/
// bytecode via numexec/rt/xexec/gcexec so the two tiers can never drift on
// operator semantics (spec.md §8 "tier equivalence").
package predecoded

import (
	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/engine/bytecode"
	"github.com/wasmtier/execore/internal/engine/callhook"
	"github.com/wasmtier/execore/internal/engine/gcexec"
	"github.com/wasmtier/execore/internal/engine/rt"
	"github.com/wasmtier/execore/internal/engine/xexec"
	"github.com/wasmtier/execore/internal/numexec"
	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
	"github.com/wasmtier/execore/internal/wazeroir"
)

// Execute runs fn's predecoded IR, compiling and latching it on first call
// (spec.md §9 "compute-once"). A function whose body wazeroir.Compile can't
// lower (an opcode this core doesn't model) falls back to the bytecode
// tier rather than failing the call outright; the failure is latched so
// every later call skips straight to that fallback.
func Execute(vm *vmstate.VM, fn *wasm.Function) (results []uint64, err error) {
	cf, ok := compiled(fn)
	if !ok {
		return bytecode.Execute(vm, fn)
	}
	frame := *vm.Frames.Top()
	s := &state{
		vm: vm, fn: fn, mod: fn.Module, cf: cf,
		labelBase: frame.LabelBase, operandBase: frame.OperandBase,
		localsStart: frame.LocalsStart, returnArity: frame.ReturnArity,
	}
	return s.run(0)
}

func compiled(fn *wasm.Function) (*wazeroir.CompiledFunction, bool) {
	if v, failed, done := fn.Caches.PredecodedIR.Get(); done {
		if failed {
			return nil, false
		}
		return v.(*wazeroir.CompiledFunction), true
	}
	numLocals := len(fn.Type.Params) + int(fn.Body.NumLocals)
	cf, err := wazeroir.Compile(fn.Body.Bytecode, fn.Module.Types, fn.Type, numLocals)
	fn.Caches.PredecodedIR.Store(cf, err)
	if err != nil {
		return nil, false
	}
	return cf, true
}

type state struct {
	vm  *vmstate.VM
	fn  *wasm.Function
	mod *wasm.ModuleInstance
	cf  *wazeroir.CompiledFunction

	labelBase, operandBase, localsStart, returnArity int
}

// run is bytecode.state.run's exact twin, specialized to an IR-index
// program counter instead of a byte offset (spec.md §4.8).
func (s *state) run(ip int) (results []uint64, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		we, ok := r.(*wasmruntime.WasmException)
		if !ok {
			panic(r)
		}
		target, cc, found := s.findCatch(we)
		if !found {
			s.vm.Labels.TruncateTo(s.labelBase)
			s.vm.Operands.TruncateTo(s.operandBase)
			panic(r)
		}
		newIP := s.applyCatch(target, cc)
		results, err = s.run(newIP)
	}()
	return s.loop(ip)
}

func (s *state) loop(ip int) ([]uint64, error) {
	vm, mod := s.vm, s.mod
	ops := s.cf.Operations
	stack := vm.Operands

	for {
		if ip >= len(ops) {
			return s.doReturn(), nil
		}
		vm.ConsumeFuel()
		op := ops[ip]

		switch op.Kind {
		case wazeroir.OperationKindUnreachable:
			panic(wasmruntime.ErrRuntimeUnreachable)

		case wazeroir.OperationKindBlock:
			params := int(uint32(op.U1))
			results := int(uint32(op.U2))
			end := int(op.U2 >> 32)
			vm.Labels.Push(vmstate.Label{ResultArity: results, OperandBase: stack.Len() - params,
				Target: vmstate.Target{Kind: vmstate.TargetBlockEndIR, Offset: end}})
			ip++

		case wazeroir.OperationKindLoop:
			params := int(uint32(op.U1))
			vm.Labels.Push(vmstate.Label{ResultArity: params, OperandBase: stack.Len() - params,
				Target: vmstate.Target{Kind: vmstate.TargetLoopStartIR, Offset: ip + 1}})
			ip++

		case wazeroir.OperationKindIf:
			params := int(uint32(op.U1))
			results := int(uint32(op.U2))
			end := int(op.U2 >> 32)
			hasElse := op.U1&(1<<32) != 0
			cond := stack.PopI32()
			vm.Labels.Push(vmstate.Label{ResultArity: results, OperandBase: stack.Len() - params,
				Target: vmstate.Target{Kind: vmstate.TargetBlockEndIR, Offset: end}})
			switch {
			case cond != 0:
				ip++
			case hasElse:
				ip = int(op.Us[0])
			default:
				ip = end
			}

		case wazeroir.OperationKindElse:
			lbl := vm.Labels.Pop()
			ip = lbl.Target.Offset

		case wazeroir.OperationKindEnd:
			if vm.Labels.Len() == s.labelBase {
				return s.doReturn(), nil
			}
			vm.Labels.Pop()
			ip++

		case wazeroir.OperationKindBr:
			ip = s.branchTo(int(op.U1))

		case wazeroir.OperationKindBrIf:
			if stack.PopI32() != 0 {
				ip = s.branchTo(int(op.U1))
			} else {
				ip++
			}

		case wazeroir.OperationKindBrTable:
			idx := stack.PopI32()
			depths := op.Us
			if int(idx) >= len(depths) {
				idx = uint32(len(depths) - 1)
			}
			ip = s.branchTo(int(depths[idx]))

		case wazeroir.OperationKindReturn:
			return s.doReturn(), nil

		case wazeroir.OperationKindCall:
			s.doCall(mod.Functions[op.U1])
			ip++

		case wazeroir.OperationKindCallIndirect:
			elemIdx := stack.PopI32()
			callee := rt.ResolveCallIndirect(mod, uint32(op.U2), uint32(op.U1), elemIdx)
			s.doCall(callee)
			ip++

		case wazeroir.OperationKindCallRef:
			callee := rt.FuncRef(mod, stack.PopRef())
			s.doCall(callee)
			ip++

		case wazeroir.OperationKindReturnCall:
			return s.doTailCall(mod.Functions[op.U1]), nil

		case wazeroir.OperationKindReturnCallIndirect:
			elemIdx := stack.PopI32()
			callee := rt.ResolveCallIndirect(mod, uint32(op.U2), uint32(op.U1), elemIdx)
			return s.doTailCall(callee), nil

		case wazeroir.OperationKindReturnCallRef:
			callee := rt.FuncRef(mod, stack.PopRef())
			return s.doTailCall(callee), nil

		case wazeroir.OperationKindDrop:
			stack.PopSlot()
			ip++

		case wazeroir.OperationKindSelect:
			cond := stack.PopI32()
			b := stack.PopSlot()
			a := stack.PopSlot()
			if cond != 0 {
				stack.PushSlot(a)
			} else {
				stack.PushSlot(b)
			}
			ip++

		case wazeroir.OperationKindLocalGet:
			stack.PushSlot(stack.PeekSlot(s.localsStart + int(op.U1)))
			ip++
		case wazeroir.OperationKindLocalSet:
			stack.SetSlot(s.localsStart+int(op.U1), stack.PopSlot())
			ip++
		case wazeroir.OperationKindLocalTee:
			v := stack.PopSlot()
			stack.PushSlot(v)
			stack.SetSlot(s.localsStart+int(op.U1), v)
			ip++

		case wazeroir.OperationKindSuperLocalGetLocalGet:
			stack.PushSlot(stack.PeekSlot(s.localsStart + int(op.U1)))
			stack.PushSlot(stack.PeekSlot(s.localsStart + int(op.U2)))
			ip++
		case wazeroir.OperationKindSuperLocalGetConstI32:
			stack.PushSlot(stack.PeekSlot(s.localsStart + int(op.U1)))
			stack.PushI32(uint32(op.U2))
			ip++
		case wazeroir.OperationKindSuperLocalGetLocalGetAdd:
			a := stack.PeekSlot(s.localsStart + int(op.U1)).Lo
			b := stack.PeekSlot(s.localsStart + int(op.U2)).Lo
			stack.PushI32(uint32(a) + uint32(b))
			ip++
		case wazeroir.OperationKindSuperLocalGetLocalGetSub:
			a := stack.PeekSlot(s.localsStart + int(op.U1)).Lo
			b := stack.PeekSlot(s.localsStart + int(op.U2)).Lo
			stack.PushI32(uint32(a) - uint32(b))
			ip++
		case wazeroir.OperationKindSuperLocalGetLocalGetGtS:
			a := int32(stack.PeekSlot(s.localsStart + int(op.U1)).Lo)
			b := int32(stack.PeekSlot(s.localsStart + int(op.U2)).Lo)
			stack.PushI32(b2i(a > b))
			ip++
		case wazeroir.OperationKindSuperLocalGetLocalGetLeS:
			a := int32(stack.PeekSlot(s.localsStart + int(op.U1)).Lo)
			b := int32(stack.PeekSlot(s.localsStart + int(op.U2)).Lo)
			stack.PushI32(b2i(a <= b))
			ip++
		case wazeroir.OperationKindSuperLocalGetConstAdd:
			a := uint32(stack.PeekSlot(s.localsStart + int(op.U1)).Lo)
			stack.PushI32(a + uint32(op.U2))
			ip++
		case wazeroir.OperationKindSuperLocalGetConstSub:
			a := uint32(stack.PeekSlot(s.localsStart + int(op.U1)).Lo)
			stack.PushI32(a - uint32(op.U2))
			ip++
		case wazeroir.OperationKindSuperLocalGetConstLtS:
			a := int32(stack.PeekSlot(s.localsStart + int(op.U1)).Lo)
			stack.PushI32(b2i(a < int32(op.U2)))
			ip++
		case wazeroir.OperationKindSuperLocalGetConstGeS:
			a := int32(stack.PeekSlot(s.localsStart + int(op.U1)).Lo)
			stack.PushI32(b2i(a >= int32(op.U2)))
			ip++
		case wazeroir.OperationKindSuperLocalGetConstLtU:
			a := uint32(stack.PeekSlot(s.localsStart + int(op.U1)).Lo)
			stack.PushI32(b2i(a < uint32(op.U2)))
			ip++
		case wazeroir.OperationKindSuperLocalGet:
			stack.PushSlot(stack.PeekSlot(s.localsStart + int(op.U1)))
			ip++

		case wazeroir.OperationKindGlobalGet:
			g := mod.Globals[op.U1]
			stack.PushSlot(vmstate.Slot{Lo: g.Val, Hi: g.ValHi})
			ip++
		case wazeroir.OperationKindGlobalSet:
			v := stack.PopSlot()
			g := mod.Globals[op.U1]
			g.Val, g.ValHi = v.Lo, v.Hi
			ip++

		case wazeroir.OperationKindTableGet:
			i := stack.PopI32()
			stack.PushRef(rt.TableGet(mod.Tables[op.U1], i))
			ip++
		case wazeroir.OperationKindTableSet:
			v := stack.PopRef()
			i := stack.PopI32()
			rt.TableSet(mod.Tables[op.U1], i, v)
			ip++

		case wazeroir.OperationKindLoad, wazeroir.OperationKindLoad8, wazeroir.OperationKindLoad16, wazeroir.OperationKindLoad32:
			s.execLoad(op)
			ip++
		case wazeroir.OperationKindStore, wazeroir.OperationKindStore8, wazeroir.OperationKindStore16, wazeroir.OperationKindStore32:
			s.execStore(op)
			ip++

		case wazeroir.OperationKindMemorySize:
			stack.PushI32(mod.Memory().SizePages())
			ip++
		case wazeroir.OperationKindMemoryGrow:
			delta := stack.PopI32()
			stack.PushI32(uint32(int32(rt.MemoryGrow(vm, mod.Memory(), delta))))
			ip++

		case wazeroir.OperationKindConstI32:
			stack.PushI32(uint32(op.U1))
			ip++
		case wazeroir.OperationKindConstI64:
			stack.PushI64(s.cf.Pool64[op.U1])
			ip++
		case wazeroir.OperationKindConstF32:
			stack.PushF32(uint32(op.U1))
			ip++
		case wazeroir.OperationKindConstF64:
			stack.PushF64(s.cf.Pool64[op.U1])
			ip++

		case wazeroir.OperationKindRefNull:
			stack.PushRef(0)
			ip++
		case wazeroir.OperationKindRefIsNull:
			if op.B1 == 1 { // ref.as_non_null
				if stack.PeekSlot(stack.Len()-1).Lo == 0 {
					panic(wasmruntime.ErrRuntimeTrap)
				}
			} else {
				stack.PushI32(b2i(stack.PopRef() == 0))
			}
			ip++
		case wazeroir.OperationKindRefFunc:
			stack.PushRef(op.U1 + 1)
			ip++

		case wazeroir.OperationKindBrOnNull:
			if stack.PeekSlot(stack.Len()-1).Lo == 0 {
				stack.PopSlot()
				ip = s.branchTo(int(op.U1))
			} else {
				ip++
			}
		case wazeroir.OperationKindBrOnNonNull:
			if stack.PeekSlot(stack.Len()-1).Lo != 0 {
				ip = s.branchTo(int(op.U1))
			} else {
				ip++
			}

		case wazeroir.OperationKindThrow:
			s.doThrow(mod.Tags[op.U1])

		case wazeroir.OperationKindThrowRef:
			if stack.PopRef() == 0 {
				panic(wasmruntime.ErrRuntimeTrap)
			}
			panic(&wasmruntime.WasmException{TagID: vm.Pending.TagID})

		case wazeroir.OperationKindTryTable:
			ip = s.enterTryTable(op, ip)

		case wazeroir.OperationKindMemoryInit:
			n := stack.PopI32()
			_ = stack.PopI32() // src, within the (unmodeled) data segment.
			dst := stack.PopI32()
			mem := mod.Memory()
			if uint64(dst)+uint64(n) > uint64(len(mem.Data)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
			ip++
		case wazeroir.OperationKindDataDrop:
			ip++
		case wazeroir.OperationKindMemoryCopy:
			n := stack.PopI32()
			src := stack.PopI32()
			dst := stack.PopI32()
			rt.MemCopy(mod.Memory(), uint64(dst), uint64(src), uint64(n))
			ip++
		case wazeroir.OperationKindMemoryFill:
			n := stack.PopI32()
			val := byte(stack.PopI32())
			dst := stack.PopI32()
			rt.MemFill(mod.Memory(), uint64(dst), val, uint64(n))
			ip++
		case wazeroir.OperationKindTableInit:
			n := stack.PopI32()
			_ = stack.PopI32() // src, within the (unmodeled) element segment.
			dst := stack.PopI32()
			t := mod.Tables[0]
			if uint64(dst)+uint64(n) > uint64(len(t.Elements)) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			ip++
		case wazeroir.OperationKindElemDrop:
			ip++
		case wazeroir.OperationKindTableCopy:
			n := stack.PopI32()
			src := stack.PopI32()
			dst := stack.PopI32()
			srcT, dstT := mod.Tables[op.U2], mod.Tables[op.U1]
			for i := uint32(0); i < n; i++ {
				rt.TableSet(dstT, dst+i, rt.TableGet(srcT, src+i))
			}
			ip++
		case wazeroir.OperationKindTableGrow:
			n := stack.PopI32()
			v := stack.PopRef()
			t := mod.Tables[op.U1]
			old := uint32(len(t.Elements))
			for i := uint32(0); i < n; i++ {
				t.Elements = append(t.Elements, v)
			}
			stack.PushI32(old)
			ip++
		case wazeroir.OperationKindTableSize:
			stack.PushI32(uint32(len(mod.Tables[op.U1].Elements)))
			ip++
		case wazeroir.OperationKindTableFill:
			n := stack.PopI32()
			v := stack.PopRef()
			i := stack.PopI32()
			t := mod.Tables[op.U1]
			for k := uint32(0); k < n; k++ {
				rt.TableSet(t, i+k, v)
			}
			ip++

		case wazeroir.OperationKindV128Const:
			lo, hi := xexec.V128FromBytes(op.Rs)
			stack.PushV128(lo, hi)
			ip++
		case wazeroir.OperationKindV128Shuffle:
			var mask [16]byte
			copy(mask[:], op.Rs)
			bLo, bHi := stack.PopV128()
			aLo, aHi := stack.PopV128()
			lo, hi := xexec.Shuffle(aLo, aHi, bLo, bHi, mask)
			stack.PushV128(lo, hi)
			ip++
		case wazeroir.OperationKindV128Swizzle:
			bLo, bHi := stack.PopV128()
			aLo, aHi := stack.PopV128()
			lo, hi := xexec.Swizzle(aLo, aHi, bLo, bHi)
			stack.PushV128(lo, hi)
			ip++
		case wazeroir.OperationKindV128Load:
			if op.B1 != byte(wasm.OpcodeSIMDV128Load) {
				panic(wasmruntime.ErrRuntimeTrap) // splat-loads: not modeled by either tier.
			}
			base := stack.PopI32()
			lo, hi := rt.LoadV128(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1)
			stack.PushV128(lo, hi)
			ip++
		case wazeroir.OperationKindV128Store:
			lo, hi := stack.PopV128()
			base := stack.PopI32()
			rt.StoreV128(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, lo, hi)
			ip++
		case wazeroir.OperationKindV128Splat:
			var v uint64
			if op.B1 == xexec.LaneF64x2 || op.B1 == xexec.LaneI64x2 {
				v = stack.PopI64()
			} else {
				v = uint64(stack.PopI32())
			}
			stack.PushV128(xexec.Splat(op.B1, v))
			ip++
		case wazeroir.OperationKindV128Add, wazeroir.OperationKindV128Sub, wazeroir.OperationKindV128Mul:
			bLo, bHi := stack.PopV128()
			aLo, aHi := stack.PopV128()
			sub := map[wazeroir.OperationKind]int{wazeroir.OperationKindV128Add: 0, wazeroir.OperationKindV128Sub: 1, wazeroir.OperationKindV128Mul: 2}[op.Kind]
			stack.PushV128(xexec.Arith(op.B1, sub, aLo, aHi, bLo, bHi))
			ip++
		case wazeroir.OperationKindV128Pmin:
			bLo, bHi := stack.PopV128()
			aLo, aHi := stack.PopV128()
			stack.PushV128(xexec.Pmin(op.B1, aLo, aHi, bLo, bHi))
			ip++
		case wazeroir.OperationKindV128Pmax:
			bLo, bHi := stack.PopV128()
			aLo, aHi := stack.PopV128()
			stack.PushV128(xexec.Pmax(op.B1, aLo, aHi, bLo, bHi))
			ip++
		case wazeroir.OperationKindV128ExtMul:
			bLo, bHi := stack.PopV128()
			aLo, aHi := stack.PopV128()
			stack.PushV128(xexec.ExtMul(aLo, aHi, bLo, bHi, op.B1 == 1, op.B2 == 1))
			ip++

		case wazeroir.OperationKindAtomicFence:
			xexec.AtomicFence()
			ip++
		case wazeroir.OperationKindAtomicNotify:
			count := stack.PopI32()
			base := stack.PopI32()
			stack.PushI32(xexec.AtomicNotify(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, count))
			ip++
		case wazeroir.OperationKindAtomicWait:
			_ = stack.PopI64() // timeout: ignored, this core never actually blocks.
			width := 4
			var expected uint64
			if op.B1 == 1 {
				width = 8
				expected = stack.PopI64()
			} else {
				expected = uint64(stack.PopI32())
			}
			base := stack.PopI32()
			stack.PushI32(xexec.AtomicWait(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, width, expected))
			ip++
		case wazeroir.OperationKindAtomicLoad:
			base := stack.PopI32()
			if op.B1 == 1 {
				stack.PushI64(xexec.AtomicLoad(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, 8))
			} else {
				stack.PushI32(uint32(xexec.AtomicLoad(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, 4)))
			}
			ip++
		case wazeroir.OperationKindAtomicStore:
			if op.B1 == 1 {
				v := stack.PopI64()
				base := stack.PopI32()
				xexec.AtomicStore(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, 8, v)
			} else {
				v := stack.PopI32()
				base := stack.PopI32()
				xexec.AtomicStore(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, 4, uint64(v))
			}
			ip++
		case wazeroir.OperationKindAtomicRMW:
			if op.B1 == 1 {
				v := stack.PopI64()
				base := stack.PopI32()
				stack.PushI64(xexec.AtomicRMW(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, 8, xexec.RMWAdd, v))
			} else {
				v := stack.PopI32()
				base := stack.PopI32()
				stack.PushI32(uint32(xexec.AtomicRMW(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, 4, rmwOpFor(op.B2), uint64(v))))
			}
			ip++
		case wazeroir.OperationKindAtomicRMWCmpxchg:
			repl := stack.PopI32()
			exp := stack.PopI32()
			base := stack.PopI32()
			stack.PushI32(uint32(xexec.AtomicCmpxchg(mod.MemoryAt(uint32(op.U2)), uint64(base)+op.U1, 4, uint64(exp), uint64(repl))))
			ip++

		case wazeroir.OperationKindStructNew:
			ip = s.execStructNew(op, ip)
		case wazeroir.OperationKindStructGet:
			field := int(op.U2)
			ref := stack.PopRef()
			lo, hi := gcexec.StructGet(mod, ref, field)
			stack.PushSlot(vmstate.Slot{Lo: lo, Hi: hi})
			ip++
		case wazeroir.OperationKindStructSet:
			field := int(op.U2)
			v := stack.PopSlot()
			ref := stack.PopRef()
			gcexec.StructSet(mod, ref, field, v.Lo, v.Hi)
			ip++
		case wazeroir.OperationKindArrayNew:
			ip = s.execArrayNew(op, ip)
		case wazeroir.OperationKindArrayGet:
			idx := stack.PopI32()
			ref := stack.PopRef()
			lo, hi := gcexec.ArrayGet(mod, ref, idx)
			stack.PushSlot(vmstate.Slot{Lo: lo, Hi: hi})
			ip++
		case wazeroir.OperationKindArraySet:
			switch op.B1 {
			case 1: // array.fill
				n := stack.PopI32()
				v := stack.PopSlot()
				off := stack.PopI32()
				ref := stack.PopRef()
				gcexec.ArrayFill(mod, ref, off, n, v.Lo, v.Hi)
			case 2: // array.copy
				n := stack.PopI32()
				srcOff := stack.PopI32()
				srcRef := stack.PopRef()
				dstOff := stack.PopI32()
				dstRef := stack.PopRef()
				gcexec.ArrayCopy(mod, dstRef, dstOff, srcRef, srcOff, n)
			case 3, 4: // array.init_data/init_elem: unmodeled segments, no-op.
			default:
				v := stack.PopSlot()
				idx := stack.PopI32()
				ref := stack.PopRef()
				gcexec.ArraySet(mod, ref, idx, v.Lo, v.Hi)
			}
			ip++
		case wazeroir.OperationKindArrayLen:
			ref := stack.PopRef()
			stack.PushI32(gcexec.ArrayLen(mod, ref))
			ip++
		case wazeroir.OperationKindRefTest:
			ref := stack.PopRef()
			stack.PushI32(b2i(gcexec.RefTest(mod, ref, int(op.U1), op.B1 == 1)))
			ip++
		case wazeroir.OperationKindRefCast:
			ref := stack.PeekSlot(stack.Len() - 1).Lo
			if !gcexec.RefTest(mod, ref, int(op.U1), op.B1 == 1) {
				panic(wasmruntime.ErrRuntimeTrap)
			}
			ip++
		case wazeroir.OperationKindBrOnCast:
			ref := stack.PeekSlot(stack.Len() - 1).Lo
			matches := gcexec.RefTest(mod, ref, int(op.B3), true)
			if op.B1&(1<<7) != 0 { // br_on_cast_fail
				matches = !matches
			}
			if matches {
				ip = s.branchTo(int(op.U1))
			} else {
				ip++
			}
		case wazeroir.OperationKindAnyConvertExtern, wazeroir.OperationKindExternConvertAny:
			ip++
		case wazeroir.OperationKindRefI31:
			stack.PushRef(gcexec.RefI31(stack.PopI32()))
			ip++
		case wazeroir.OperationKindI31Get:
			stack.PushI32(gcexec.I31Get(stack.PopRef(), op.B1 == 1))
			ip++

		case wazeroir.OperationKindI32WrapFromI64, wazeroir.OperationKindITruncFromF, wazeroir.OperationKindFConvertFromI,
			wazeroir.OperationKindF32DemoteFromF64, wazeroir.OperationKindF64PromoteFromF32, wazeroir.OperationKindExtend,
			wazeroir.OperationKindSignExtend32From8, wazeroir.OperationKindSignExtend32From16, wazeroir.OperationKindSignExtend64From8,
			wazeroir.OperationKindSignExtend64From16, wazeroir.OperationKindSignExtend64From32,
			wazeroir.OperationKindEq, wazeroir.OperationKindNe, wazeroir.OperationKindEqz, wazeroir.OperationKindLt, wazeroir.OperationKindGt,
			wazeroir.OperationKindLe, wazeroir.OperationKindGe, wazeroir.OperationKindAdd, wazeroir.OperationKindSub, wazeroir.OperationKindMul,
			wazeroir.OperationKindClz, wazeroir.OperationKindCtz, wazeroir.OperationKindPopcnt, wazeroir.OperationKindDiv, wazeroir.OperationKindRem,
			wazeroir.OperationKindAnd, wazeroir.OperationKindOr, wazeroir.OperationKindXor, wazeroir.OperationKindShl, wazeroir.OperationKindShr,
			wazeroir.OperationKindRotl, wazeroir.OperationKindRotr, wazeroir.OperationKindAbs, wazeroir.OperationKindNeg, wazeroir.OperationKindCeil,
			wazeroir.OperationKindFloor, wazeroir.OperationKindTrunc, wazeroir.OperationKindNearest, wazeroir.OperationKindSqrt,
			wazeroir.OperationKindMin, wazeroir.OperationKindMax, wazeroir.OperationKindCopysign:
			numexec.Exec(stack, op)
			ip++

		default:
			panic(wasmruntime.ErrRuntimeTrap)
		}
	}
}

func rmwOpFor(b2 byte) int {
	switch b2 {
	case 1:
		return xexec.RMWSub
	case 2:
		return xexec.RMWXchg
	default:
		return xexec.RMWAdd
	}
}

func (s *state) execLoad(op wazeroir.UnionOperation) {
	mem := s.mod.MemoryAt(uint32(op.U2))
	base := s.vm.Operands.PopI32()
	ea := uint64(base) + op.U1
	switch op.Kind {
	case wazeroir.OperationKindLoad:
		switch op.B1 {
		case 0:
			s.vm.Operands.PushI32(uint32(rt.LoadU(mem, ea, 4)))
		case 1:
			s.vm.Operands.PushI64(rt.LoadU(mem, ea, 8))
		case 2:
			s.vm.Operands.PushF32(uint32(rt.LoadU(mem, ea, 4)))
		case 3:
			s.vm.Operands.PushF64(rt.LoadU(mem, ea, 8))
		}
	case wazeroir.OperationKindLoad8:
		switch op.B1 {
		case 0:
			s.vm.Operands.PushI32(uint32(int32(rt.LoadS(mem, ea, 1))))
		case 1:
			s.vm.Operands.PushI32(uint32(rt.LoadU(mem, ea, 1)))
		case 2:
			s.vm.Operands.PushI64(uint64(rt.LoadS(mem, ea, 1)))
		case 3:
			s.vm.Operands.PushI64(rt.LoadU(mem, ea, 1))
		}
	case wazeroir.OperationKindLoad16:
		switch op.B1 {
		case 0:
			s.vm.Operands.PushI32(uint32(int32(rt.LoadS(mem, ea, 2))))
		case 1:
			s.vm.Operands.PushI32(uint32(rt.LoadU(mem, ea, 2)))
		case 2:
			s.vm.Operands.PushI64(uint64(rt.LoadS(mem, ea, 2)))
		case 3:
			s.vm.Operands.PushI64(rt.LoadU(mem, ea, 2))
		}
	case wazeroir.OperationKindLoad32:
		if op.B1 == 0 {
			s.vm.Operands.PushI64(uint64(rt.LoadS(mem, ea, 4)))
		} else {
			s.vm.Operands.PushI64(rt.LoadU(mem, ea, 4))
		}
	}
}

func (s *state) execStore(op wazeroir.UnionOperation) {
	mem := s.mod.MemoryAt(uint32(op.U2))
	var v uint64
	switch op.Kind {
	case wazeroir.OperationKindStore:
		if op.B1 == 1 || op.B1 == 3 {
			v = s.vm.Operands.PopI64()
		} else {
			v = uint64(s.vm.Operands.PopI32())
		}
	case wazeroir.OperationKindStore8, wazeroir.OperationKindStore16:
		if op.B1 == 1 {
			v = s.vm.Operands.PopI64()
		} else {
			v = uint64(s.vm.Operands.PopI32())
		}
	case wazeroir.OperationKindStore32:
		v = s.vm.Operands.PopI64()
	}
	base := s.vm.Operands.PopI32()
	ea := uint64(base) + op.U1
	switch op.Kind {
	case wazeroir.OperationKindStore:
		if op.B1 == 1 || op.B1 == 3 {
			rt.Store(mem, ea, 8, v)
		} else {
			rt.Store(mem, ea, 4, v)
		}
	case wazeroir.OperationKindStore8:
		rt.Store(mem, ea, 1, v)
	case wazeroir.OperationKindStore16:
		rt.Store(mem, ea, 2, v)
	case wazeroir.OperationKindStore32:
		rt.Store(mem, ea, 4, v)
	}
}

func (s *state) execStructNew(op wazeroir.UnionOperation, ip int) int {
	typeIdx := int(op.U1)
	ct := s.mod.CompositeTypes[typeIdx]
	lo, hi := make([]uint64, ct.NumFields), make([]uint64, ct.NumFields)
	if op.B1 == 0 { // struct.new: fields popped in declaration order.
		for i := ct.NumFields - 1; i >= 0; i-- {
			v := s.vm.Operands.PopSlot()
			lo[i], hi[i] = v.Lo, v.Hi
		}
	}
	s.vm.Operands.PushRef(gcexec.StructNew(s.mod, typeIdx, lo, hi))
	return ip + 1
}

func (s *state) execArrayNew(op wazeroir.UnionOperation, ip int) int {
	typeIdx := int(op.U1)
	stack := s.vm.Operands
	switch op.B1 {
	case 1: // array.new_default
		n := stack.PopI32()
		stack.PushRef(gcexec.ArrayNew(s.mod, typeIdx, make([]uint64, n), make([]uint64, n)))
	case 2: // array.new_fixed
		n := int(op.U2)
		lo, hi := make([]uint64, n), make([]uint64, n)
		for i := n - 1; i >= 0; i-- {
			v := stack.PopSlot()
			lo[i], hi[i] = v.Lo, v.Hi
		}
		stack.PushRef(gcexec.ArrayNew(s.mod, typeIdx, lo, hi))
	case 3, 4: // array.new_data/new_elem: unmodeled segments, zero-length array.
		stack.PushRef(gcexec.ArrayNew(s.mod, typeIdx, nil, nil))
	default: // array.new: n copies of one initializer.
		n := stack.PopI32()
		v := stack.PopSlot()
		lo, hi := make([]uint64, n), make([]uint64, n)
		for i := range lo {
			lo[i], hi[i] = v.Lo, v.Hi
		}
		stack.PushRef(gcexec.ArrayNew(s.mod, typeIdx, lo, hi))
	}
	return ip + 1
}

// branchTo is bytecode.state.branchTo's exact twin.
func (s *state) branchTo(depth int) int {
	lbl := s.vm.Labels.PopN(depth)
	arity := lbl.ResultArity
	top := s.vm.Operands.Len()
	vals := make([]vmstate.Slot, arity)
	for i := 0; i < arity; i++ {
		vals[i] = s.vm.Operands.PeekSlot(top - arity + i)
	}
	s.vm.Operands.TruncateTo(lbl.OperandBase)
	for _, v := range vals {
		s.vm.Operands.PushSlot(v)
	}
	if lbl.Target.Kind.IsLoop() {
		s.vm.Labels.Push(lbl)
	}
	return lbl.Target.Offset
}

func (s *state) doReturn() []uint64 {
	arity := s.returnArity
	top := s.vm.Operands.Len()
	resTypes := s.fn.Type.Results
	flat := make([]uint64, 0, arity*2)
	for i := 0; i < arity; i++ {
		slot := s.vm.Operands.PeekSlot(top - arity + i)
		flat = append(flat, slot.Lo)
		if i < len(resTypes) && resTypes[i] == api.ValueTypeV128 {
			flat = append(flat, slot.Hi)
		}
	}
	s.vm.Operands.TruncateTo(s.operandBase)
	return flat
}

func (s *state) doTailCall(callee *wasm.Function) []uint64 {
	args := rt.PopArgs(s.vm, callee.Type)
	results, err := callhook.Call(s.vm, callee, args)
	if err != nil {
		panic(err)
	}
	s.vm.Operands.TruncateTo(s.operandBase)
	return results
}

func (s *state) doCall(callee *wasm.Function) {
	args := rt.PopArgs(s.vm, callee.Type)
	results, err := callhook.Call(s.vm, callee, args)
	if err != nil {
		panic(err)
	}
	rt.PushResults(s.vm, callee.Type.Results, results)
}

func (s *state) doThrow(tag *wasm.Tag) {
	n := len(tag.Type.Params)
	if n > len(s.vm.Pending.Payload) {
		panic(wasmruntime.ErrRuntimeTrap)
	}
	slots := make([]vmstate.Slot, n)
	for i := n - 1; i >= 0; i-- {
		slots[i] = s.vm.Operands.PopSlot()
	}
	var pe vmstate.PendingException
	pe.Active = true
	pe.TagID = rt.TagIdentity(tag)
	pe.NumVals = n
	for i, sl := range slots {
		pe.Payload[i] = sl.Lo
	}
	s.vm.Pending = pe
	panic(&wasmruntime.WasmException{TagID: pe.TagID})
}

func (s *state) enterTryTable(op wazeroir.UnionOperation, ip int) int {
	params := int(uint32(op.U1))
	results := int(uint32(op.U2))
	end := int(op.U2 >> 32)
	count := len(op.Us) / 3
	catches := make([]vmstate.CatchClause, count)
	for i := 0; i < count; i++ {
		kind, tagIdx, depth := op.Us[i*3], op.Us[i*3+1], op.Us[i*3+2]
		tagID := ""
		if kind == 0 || kind == 1 {
			tagID = rt.TagIdentity(s.mod.Tags[tagIdx])
		}
		catches[i] = vmstate.CatchClause{Kind: vmstate.CatchClauseKind(kind), TagID: tagID, LabelIdx: int(depth)}
	}
	s.vm.Labels.Push(vmstate.Label{
		ResultArity: results,
		OperandBase: s.vm.Operands.Len() - params,
		Target:      vmstate.Target{Kind: vmstate.TargetBlockEndIR, Offset: end},
		Catches:     catches,
	})
	return ip + 1
}

// findCatch/applyCatch are bytecode.state's exact twins.
func (s *state) findCatch(we *wasmruntime.WasmException) (target int, cc vmstate.CatchClause, found bool) {
	n := s.vm.Labels.Len()
	for depth := 0; depth < n-s.labelBase; depth++ {
		l := s.vm.Labels.Peek(depth)
		idxL := n - 1 - depth
		for _, c := range l.Catches {
			if c.Kind == vmstate.CatchAll || c.Kind == vmstate.CatchAllWithExnRef || c.TagID == we.TagID {
				return idxL - c.LabelIdx, c, true
			}
		}
	}
	return 0, vmstate.CatchClause{}, false
}

func (s *state) applyCatch(target int, cc vmstate.CatchClause) int {
	n := s.vm.Labels.Len()
	lbl := s.vm.Labels.PopN(n - 1 - target)
	s.vm.Operands.TruncateTo(lbl.OperandBase)
	for i := 0; i < s.vm.Pending.NumVals; i++ {
		s.vm.Operands.PushI64(s.vm.Pending.Payload[i])
	}
	if cc.Kind == vmstate.CatchWithExnRef || cc.Kind == vmstate.CatchAllWithExnRef {
		s.vm.Operands.PushRef(1)
	}
	s.vm.Pending = vmstate.PendingException{}
	return lbl.Target.Offset
}

func b2i(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
