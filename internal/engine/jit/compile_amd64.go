//go:build amd64 && (linux || darwin)

package jit

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wazeroir"
)

// maxRegSlots bounds how large a function's compile-time operand-stack
// simulation plus locals may grow before this tier declines to compile it
// (spec.md §4.6's "first ~11 virtual registers... overflow spills to the
// per-call register file" taken to its limit: here every slot is a spill,
// so the cap just keeps generated code and the reserved register window
// small instead of modeling a real register allocator, spec.md Non-goals
// "fully general register allocation across call boundaries").
const maxRegSlots = 48

// compileFunction lowers cf into amd64 machine code, or declines with an
// error if cf uses anything outside this tier's narrow eligible subset:
// i32-only params/results (arity <= 1), and a body built exclusively from
// straight-line constant/local/arithmetic operations with no control flow,
// calls, memory access, or traps.
func compileFunction(fn *wasm.Function, cf *wazeroir.CompiledFunction) (*compiledFn, error) {
	ft := fn.Type
	for _, t := range ft.Params {
		if t != api.ValueTypeI32 {
			return nil, fmt.Errorf("jit: non-i32 param")
		}
	}
	if len(ft.Results) > 1 {
		return nil, fmt.Errorf("jit: multi-value return")
	}
	for _, t := range ft.Results {
		if t != api.ValueTypeI32 {
			return nil, fmt.Errorf("jit: non-i32 result")
		}
	}
	numLocals := len(ft.Params) + int(fn.Body.NumLocals)

	b, err := goasm.NewBuilder("amd64", 64+len(cf.Operations)*8)
	if err != nil {
		return nil, fmt.Errorf("jit: new builder: %w", err)
	}

	sp := 0   // compile-time simulated operand-stack depth
	peak := 0 // high-water mark of numLocals+sp, for sizing the register window
	emit := func(as obj.As, from, to obj.Addr) {
		p := b.NewProg()
		p.As = as
		p.From = from
		p.To = to
		b.AddInstruction(p)
	}
	memSlot := func(i int) obj.Addr {
		return obj.Addr{Type: obj.TYPE_MEM, Reg: x86.REG_DI, Offset: int64(i) * 8}
	}
	regAX := obj.Addr{Type: obj.TYPE_REG, Reg: x86.REG_AX}
	constImm := func(v int64) obj.Addr { return obj.Addr{Type: obj.TYPE_CONST, Offset: v} }

	for idx, op := range cf.Operations {
		switch op.Kind {
		case wazeroir.OperationKindEnd:
			if idx != len(cf.Operations)-1 {
				return nil, fmt.Errorf("jit: mid-body end")
			}
		case wazeroir.OperationKindDrop:
			sp--
		case wazeroir.OperationKindConstI32:
			emit(x86.AMOVQ, constImm(int64(int32(uint32(op.U1)))), memSlot(numLocals+sp))
			sp++
		case wazeroir.OperationKindLocalGet:
			if int(op.U1) >= numLocals {
				return nil, fmt.Errorf("jit: local index out of range")
			}
			emit(x86.AMOVL, memSlot(int(op.U1)), regAX)
			emit(x86.AMOVQ, regAX, memSlot(numLocals+sp))
			sp++
		case wazeroir.OperationKindLocalSet, wazeroir.OperationKindLocalTee:
			if int(op.U1) >= numLocals {
				return nil, fmt.Errorf("jit: local index out of range")
			}
			sp--
			emit(x86.AMOVL, memSlot(numLocals+sp), regAX)
			emit(x86.AMOVL, regAX, memSlot(int(op.U1)))
			if op.Kind == wazeroir.OperationKindLocalTee {
				emit(x86.AMOVQ, regAX, memSlot(numLocals+sp))
				sp++
			}
		case wazeroir.OperationKindAdd, wazeroir.OperationKindSub, wazeroir.OperationKindMul,
			wazeroir.OperationKindAnd, wazeroir.OperationKindOr, wazeroir.OperationKindXor:
			if op.B1 != 0 {
				return nil, fmt.Errorf("jit: non-i32 arithmetic")
			}
			sp -= 2
			a, bSlot := numLocals+sp, numLocals+sp+1
			emit(x86.AMOVL, memSlot(a), regAX)
			emit(arithOp(op.Kind), memSlot(bSlot), regAX)
			emit(x86.AMOVL, regAX, memSlot(a))
			sp++
		default:
			return nil, fmt.Errorf("jit: unsupported opcode %v", op.Kind)
		}
		if numLocals+sp > peak {
			peak = numLocals + sp
		}
		if peak > maxRegSlots {
			return nil, fmt.Errorf("jit: register window too large")
		}
	}
	if len(ft.Results) == 1 && sp != 1 {
		return nil, fmt.Errorf("jit: body doesn't leave exactly one result")
	}
	if len(ft.Results) == 0 && sp != 0 {
		return nil, fmt.Errorf("jit: body leaves unconsumed values")
	}

	emit(x86.AMOVL, constImm(0), obj.Addr{Type: obj.TYPE_REG, Reg: x86.REG_AX})
	ret := b.NewProg()
	ret.As = obj.ARET
	b.AddInstruction(ret)

	machineCode := b.Assemble()
	buf, err := mmapExecutable(machineCode)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap: %w", err)
	}
	return &compiledFn{code: buf, numRegSlots: peak, numLocals: numLocals, returnArity: len(ft.Results)}, nil
}

func arithOp(k wazeroir.OperationKind) obj.As {
	switch k {
	case wazeroir.OperationKindAdd:
		return x86.AADDL
	case wazeroir.OperationKindSub:
		return x86.ASUBL
	case wazeroir.OperationKindMul:
		return x86.AIMULL
	case wazeroir.OperationKindAnd:
		return x86.AANDL
	case wazeroir.OperationKindOr:
		return x86.AORL
	default:
		return x86.AXORL
	}
}
