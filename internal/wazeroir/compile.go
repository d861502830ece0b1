package wazeroir

import (
	"fmt"

	"github.com/wasmtier/execore/internal/leb128"
	"github.com/wasmtier/execore/internal/wasm"
)

// CompiledFunction is the predecoded IR of one function body (spec.md §4.4):
// a flat array of fixed-width records plus a side pool of 64-bit constants
// (spec.md GLOSSARY "Pool64") too wide for a 32-bit operand.
type CompiledFunction struct {
	Operations []UnionOperation
	Pool64     []uint64
	// NumLocals is params + declared locals, needed to size the locals
	// window on call entry.
	NumLocals int
}

type controlFrame struct {
	isLoop       bool
	isIf         bool
	hasElse      bool
	opIndex      int // index in ops of the Block/Loop/If record itself.
	paramArity   int
	resultArity  int
	labelID      LabelID
	stackBaseCheckpoint int // not used at compile time; reserved for future validation hookup.
}

type compiler struct {
	body    []byte
	types   []*wasm.FunctionType
	fn      *wasm.FunctionType // the function being compiled, for `return`'s arity.
	ops     []UnionOperation
	pool64  []uint64
	frames  []controlFrame
	nextFrameID uint32
}

// Compile lowers a function body to predecoded IR (spec.md §4.4). types is
// the module's type section, used to resolve block-type indices; fn is the
// function's own signature, used by `return`.
func Compile(body []byte, types []*wasm.FunctionType, fn *wasm.FunctionType, numParamsAndLocals int) (*CompiledFunction, error) {
	c := &compiler{body: body, types: types, fn: fn}
	if err := c.run(); err != nil {
		return nil, err
	}
	return &CompiledFunction{Operations: c.ops, Pool64: c.pool64, NumLocals: numParamsAndLocals}, nil
}

func (c *compiler) emit(op UnionOperation) int {
	c.ops = append(c.ops, op)
	return len(c.ops) - 1
}

func (c *compiler) internPool64(v uint64) uint64 {
	c.pool64 = append(c.pool64, v)
	return uint64(len(c.pool64) - 1)
}

func (c *compiler) pushFrame(f controlFrame) {
	f.labelID = label{Kind: frameLabelKind(f), FrameID: c.nextFrameID}.ID()
	c.nextFrameID++
	c.frames = append(c.frames, f)
}

func frameLabelKind(f controlFrame) LabelKind {
	if f.isLoop {
		return LabelKindHeader
	}
	return LabelKindContinuation
}

func (c *compiler) run() error {
	offset := uint64(0)
	for offset < uint64(len(c.body)) {
		op := c.body[offset]
		offset++
		var err error
		offset, err = c.compileOne(op, offset)
		if err != nil {
			return fmt.Errorf("wazeroir: compile error at byte %d: %w", offset, err)
		}
	}
	if len(c.frames) != 0 {
		return fmt.Errorf("wazeroir: unterminated block(s) at EOF")
	}
	return nil
}

func (c *compiler) blockArity(offset uint64) (params, results int, next uint64, err error) {
	if offset >= uint64(len(c.body)) {
		return 0, 0, 0, fmt.Errorf("truncated block type")
	}
	b := c.body[offset]
	if b == 0x40 {
		return 0, 0, offset + 1, nil
	}
	if isValueTypeByte(b) {
		return 0, 1, offset + 1, nil
	}
	idx, next, err := leb128.DecodeInt32(c.body, offset)
	if err != nil {
		return 0, 0, 0, err
	}
	if int(idx) < 0 || int(idx) >= len(c.types) {
		return 0, 0, 0, fmt.Errorf("block type index %d out of range", idx)
	}
	t := c.types[idx]
	return len(t.Params), len(t.Results), next, nil
}

// compileOne compiles a single opcode, returning the offset of the next
// one. Superop fusion (local.get;local.get, local.get;i32.const, and the
// arithmetic-fused forms named in spec.md §4.4) is attempted first for
// opcodes that can start a fusable pattern.
func (c *compiler) compileOne(op byte, offset uint64) (uint64, error) {
	switch op {
	case wasm.OpcodeUnreachable:
		c.emit(UnionOperation{Kind: OperationKindUnreachable})
		return offset, nil
	case wasm.OpcodeNop:
		return offset, nil
	case wasm.OpcodeBlock, wasm.OpcodeLoop:
		params, results, next, err := c.blockArity(offset)
		if err != nil {
			return 0, err
		}
		kind := OperationKindBlock
		isLoop := op == wasm.OpcodeLoop
		if isLoop {
			kind = OperationKindLoop
		}
		idx := c.emit(UnionOperation{Kind: kind, U1: uint64(params), U2: uint64(results)})
		f := controlFrame{isLoop: isLoop, opIndex: idx, paramArity: params, resultArity: results}
		if isLoop {
			// Loop header target is the loop op itself: known immediately.
			c.ops[idx].Us = []uint64{uint64(idx)}
		}
		c.pushFrame(f)
		return next, nil
	case wasm.OpcodeIf:
		params, results, next, err := c.blockArity(offset)
		if err != nil {
			return 0, err
		}
		idx := c.emit(UnionOperation{Kind: OperationKindIf, U1: uint64(params), U2: uint64(results)})
		c.pushFrame(controlFrame{isIf: true, opIndex: idx, paramArity: params, resultArity: results})
		return next, nil
	case wasm.OpcodeElse:
		if len(c.frames) == 0 || !c.frames[len(c.frames)-1].isIf {
			return 0, fmt.Errorf("else without if")
		}
		top := &c.frames[len(c.frames)-1]
		top.hasElse = true
		elseIdx := c.emit(UnionOperation{Kind: OperationKindElse})
		// Patch the `if`'s else-target to just past this Else record.
		c.ops[top.opIndex].U1 |= 1 << 32 // mark "has else" (bit above the 32-bit params field is unused here).
		c.ops[top.opIndex].Us = []uint64{uint64(elseIdx + 1)}
		return offset, nil
	case wasm.OpcodeEnd:
		if len(c.frames) == 0 {
			return offset, nil // end of function body.
		}
		f := c.frames[len(c.frames)-1]
		c.frames = c.frames[:len(c.frames)-1]
		endIdx := c.emit(UnionOperation{Kind: OperationKindEnd})
		// Patch the opening record's end-target to just past this End.
		c.ops[f.opIndex].U2 |= uint64(endIdx+1) << 32
		return offset, nil
	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		depth, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		kind := OperationKindBr
		if op == wasm.OpcodeBrIf {
			kind = OperationKindBrIf
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(depth)})
		return next, nil
	case wasm.OpcodeBrTable:
		count, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		depths := make([]uint64, 0, count+1)
		offset = next
		for i := uint32(0); i <= count; i++ {
			var d uint32
			d, offset, err = leb128.DecodeUint32(c.body, offset)
			if err != nil {
				return 0, err
			}
			depths = append(depths, uint64(d))
		}
		c.emit(UnionOperation{Kind: OperationKindBrTable, Us: depths})
		return offset, nil
	case wasm.OpcodeReturn:
		c.emit(UnionOperation{Kind: OperationKindReturn, U1: uint64(len(c.fn.Results))})
		return offset, nil
	case wasm.OpcodeCall, wasm.OpcodeReturnCall:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		kind := OperationKindCall
		if op == wasm.OpcodeReturnCall {
			kind = OperationKindReturnCall
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeCallIndirect, wasm.OpcodeReturnCallIndirect:
		typeIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		tableIdx, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		kind := OperationKindCallIndirect
		if op == wasm.OpcodeReturnCallIndirect {
			kind = OperationKindReturnCallIndirect
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(typeIdx), U2: uint64(tableIdx)})
		return next2, nil
	case wasm.OpcodeCallRef, wasm.OpcodeReturnCallRef:
		typeIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		kind := OperationKindCallRef
		if op == wasm.OpcodeReturnCallRef {
			kind = OperationKindReturnCallRef
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(typeIdx)})
		return next, nil
	case wasm.OpcodeDrop:
		c.emit(UnionOperation{Kind: OperationKindDrop})
		return offset, nil
	case wasm.OpcodeSelect:
		c.emit(UnionOperation{Kind: OperationKindSelect})
		return offset, nil
	case wasm.OpcodeSelectT:
		count, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindSelect})
		return next + uint64(count), nil
	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		return c.compileLocalOrFuse(op, offset)
	case wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		kind := OperationKindGlobalGet
		if op == wasm.OpcodeGlobalSet {
			kind = OperationKindGlobalSet
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeTableGet, wasm.OpcodeTableSet:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		kind := OperationKindTableGet
		if op == wasm.OpcodeTableSet {
			kind = OperationKindTableSet
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeI32Const:
		return c.compileConstOrFuse(offset)
	case wasm.OpcodeI64Const:
		v, next, err := leb128.DecodeInt64(c.body, offset)
		if err != nil {
			return 0, err
		}
		idx := c.internPool64(uint64(v))
		c.emit(UnionOperation{Kind: OperationKindConstI64, U1: idx})
		return next, nil
	case wasm.OpcodeF32Const:
		bits := le32(c.body, offset)
		c.emit(UnionOperation{Kind: OperationKindConstF32, U1: uint64(bits)})
		return offset + 4, nil
	case wasm.OpcodeF64Const:
		bits := le64(c.body, offset)
		idx := c.internPool64(bits)
		c.emit(UnionOperation{Kind: OperationKindConstF64, U1: idx})
		return offset + 8, nil
	case wasm.OpcodeRefNull:
		c.emit(UnionOperation{Kind: OperationKindRefNull})
		return offset + 1, nil
	case wasm.OpcodeRefIsNull:
		c.emit(UnionOperation{Kind: OperationKindRefIsNull})
		return offset, nil
	case wasm.OpcodeRefFunc:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindRefFunc, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeRefAsNonNull:
		c.emit(UnionOperation{Kind: OperationKindRefIsNull, B1: 1}) // B1=1: assert-non-null variant.
		return offset, nil
	case wasm.OpcodeBrOnNull, wasm.OpcodeBrOnNonNull:
		depth, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		kind := OperationKindBrOnNull
		if op == wasm.OpcodeBrOnNonNull {
			kind = OperationKindBrOnNonNull
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(depth)})
		return next, nil
	case wasm.OpcodeThrow:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindThrow, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeThrowRef:
		c.emit(UnionOperation{Kind: OperationKindThrowRef})
		return offset, nil
	case wasm.OpcodeTryTable:
		return c.compileTryTable(offset)
	case wasm.OpcodeMiscPrefix:
		return c.compileMisc(offset)
	case wasm.OpcodeGCPrefix:
		return c.compileGC(offset)
	case wasm.OpcodeSIMDPrefix:
		return c.compileSIMD(offset)
	case wasm.OpcodeAtomicPrefix:
		return c.compileAtomic(offset)
	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		kind := OperationKindMemorySize
		if op == wasm.OpcodeMemoryGrow {
			kind = OperationKindMemoryGrow
		}
		c.emit(UnionOperation{Kind: kind})
		return offset + 1, nil // reserved memory-index byte, not a memarg.
	default:
		if isMemoryOpcode(op) {
			return c.compileMemOp(op, offset)
		}
		return c.compileNumeric(op, offset)
	}
}

func (c *compiler) compileTryTable(offset uint64) (uint64, error) {
	params, results, next, err := c.blockArity(offset)
	if err != nil {
		return 0, err
	}
	offset = next
	count, offset, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	catchesData := make([]uint64, 0, count*3)
	for i := uint32(0); i < count; i++ {
		kind := c.body[offset]
		offset++
		var tagIdx uint32
		if kind == 0 || kind == 1 {
			tagIdx, offset, err = leb128.DecodeUint32(c.body, offset)
			if err != nil {
				return 0, err
			}
		}
		var depth uint32
		depth, offset, err = leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		catchesData = append(catchesData, uint64(kind), uint64(tagIdx), uint64(depth))
	}
	idx := c.emit(UnionOperation{Kind: OperationKindTryTable, U1: uint64(params), U2: uint64(results), Us: catchesData})
	c.pushFrame(controlFrame{opIndex: idx, paramArity: params, resultArity: results})
	return offset, nil
}

// compileLocalOrFuse compiles local.get/set/tee, attempting the fused
// patterns spec.md §4.4 names ("local.get; local.get",
// "local.get; i32.const", and the arithmetic-fused forms).
func (c *compiler) compileLocalOrFuse(op byte, offset uint64) (uint64, error) {
	idx, next, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	switch op {
	case wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		kind := OperationKindLocalSet
		if op == wasm.OpcodeLocalTee {
			kind = OperationKindLocalTee
		}
		c.emit(UnionOperation{Kind: kind, U1: uint64(idx)})
		return next, nil
	}
	// op == LocalGet: look ahead one opcode for a fusable pattern.
	if next < uint64(len(c.body)) {
		follow := c.body[next]
		if follow == wasm.OpcodeLocalGet {
			idx2, next2, err := leb128.DecodeUint32(c.body, next+1)
			if err == nil && next2 < uint64(len(c.body)) {
				if _, next3, ok := c.tryFuseLocalLocalArith(idx, idx2, next2); ok {
					return next3, nil
				}
			}
			c.emit(UnionOperation{Kind: OperationKindSuperLocalGetLocalGet, U1: uint64(idx), U2: uint64(idx2)})
			return next2, nil
		}
		if follow == wasm.OpcodeI32Const {
			cval, next2, err := leb128.DecodeInt32(c.body, next+1)
			if err == nil {
				if _, next3, ok := c.tryFuseLocalConstArith(idx, cval, next2); ok {
					return next3, nil
				}
				c.emit(UnionOperation{Kind: OperationKindSuperLocalGetConstI32, U1: uint64(idx), U2: uint64(uint32(cval))})
				return next2, nil
			}
		}
	}
	c.emit(UnionOperation{Kind: OperationKindLocalGet, U1: uint64(idx)})
	return next, nil
}

// tryFuseLocalLocalArith fuses "local.get a; local.get b; <op>" into one
// superop when <op> is one of the patterns spec.md §4.4 lists
// (add/sub/gt_s/le_s).
func (c *compiler) tryFuseLocalLocalArith(a, b uint32, offset uint64) (UnionOperation, uint64, bool) {
	if offset >= uint64(len(c.body)) {
		return UnionOperation{}, 0, false
	}
	var kind OperationKind
	switch c.body[offset] {
	case 0x6a: // i32.add
		kind = OperationKindSuperLocalGetLocalGetAdd
	case 0x6b: // i32.sub
		kind = OperationKindSuperLocalGetLocalGetSub
	case 0x4a: // i32.gt_s
		kind = OperationKindSuperLocalGetLocalGetGtS
	case 0x4c: // i32.le_s
		kind = OperationKindSuperLocalGetLocalGetLeS
	default:
		return UnionOperation{}, 0, false
	}
	op := UnionOperation{Kind: kind, U1: uint64(a), U2: uint64(b)}
	c.emit(op)
	return op, offset + 1, true
}

// tryFuseLocalConstArith fuses "local.get a; i32.const k; <op>".
func (c *compiler) tryFuseLocalConstArith(a uint32, k int32, offset uint64) (UnionOperation, uint64, bool) {
	if offset >= uint64(len(c.body)) {
		return UnionOperation{}, 0, false
	}
	var kind OperationKind
	switch c.body[offset] {
	case 0x6a:
		kind = OperationKindSuperLocalGetConstAdd
	case 0x6b:
		kind = OperationKindSuperLocalGetConstSub
	case 0x48: // i32.lt_s
		kind = OperationKindSuperLocalGetConstLtS
	case 0x4e: // i32.ge_s
		kind = OperationKindSuperLocalGetConstGeS
	case 0x49: // i32.lt_u
		kind = OperationKindSuperLocalGetConstLtU
	default:
		return UnionOperation{}, 0, false
	}
	op := UnionOperation{Kind: kind, U1: uint64(a), U2: uint64(uint32(k))}
	c.emit(op)
	return op, offset + 1, true
}

// compileConstOrFuse compiles i32.const, with the "local.get; i32.const"
// direction not applicable here (that's handled from the local.get side);
// this only covers a bare i32.const.
func (c *compiler) compileConstOrFuse(offset uint64) (uint64, error) {
	v, next, err := leb128.DecodeInt32(c.body, offset)
	if err != nil {
		return 0, err
	}
	c.emit(UnionOperation{Kind: OperationKindConstI32, U1: uint64(uint32(v))})
	return next, nil
}

func (c *compiler) compileMemOp(op byte, offset uint64) (uint64, error) {
	align, offset, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	memIdx := uint32(0)
	if align&0x40 != 0 {
		memIdx, offset, err = leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
	}
	memOffset, offset, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	kind, width := memOpKind(op)
	c.emit(UnionOperation{Kind: kind, B1: width, U1: uint64(memOffset), U2: uint64(memIdx)})
	return offset, nil
}

// memOpKind maps a load/store opcode to its OperationKind and a B1 tag: for
// Load/Store 0=i32, 1=i64, 2=f32, 3=f64; for Load8/Load16 0=i32 signed,
// 1=i32 unsigned, 2=i64 signed, 3=i64 unsigned; for Load32 0=signed,
// 1=unsigned; for Store8/Store16 0=i32, 1=i64.
func memOpKind(op byte) (OperationKind, byte) {
	switch op {
	case wasm.OpcodeI32Load:
		return OperationKindLoad, 0
	case wasm.OpcodeI64Load:
		return OperationKindLoad, 1
	case wasm.OpcodeF32Load:
		return OperationKindLoad, 2
	case wasm.OpcodeF64Load:
		return OperationKindLoad, 3
	case wasm.OpcodeI32Load8S:
		return OperationKindLoad8, 0
	case wasm.OpcodeI32Load8U:
		return OperationKindLoad8, 1
	case wasm.OpcodeI64Load8S:
		return OperationKindLoad8, 2
	case wasm.OpcodeI64Load8U:
		return OperationKindLoad8, 3
	case wasm.OpcodeI32Load16S:
		return OperationKindLoad16, 0
	case wasm.OpcodeI32Load16U:
		return OperationKindLoad16, 1
	case wasm.OpcodeI64Load16S:
		return OperationKindLoad16, 2
	case wasm.OpcodeI64Load16U:
		return OperationKindLoad16, 3
	case wasm.OpcodeI64Load32S:
		return OperationKindLoad32, 0
	case wasm.OpcodeI64Load32U:
		return OperationKindLoad32, 1
	case wasm.OpcodeI32Store:
		return OperationKindStore, 0
	case wasm.OpcodeI64Store:
		return OperationKindStore, 1
	case wasm.OpcodeF32Store:
		return OperationKindStore, 2
	case wasm.OpcodeF64Store:
		return OperationKindStore, 3
	case wasm.OpcodeI32Store8:
		return OperationKindStore8, 0
	case wasm.OpcodeI64Store8:
		return OperationKindStore8, 1
	case wasm.OpcodeI32Store16:
		return OperationKindStore16, 0
	case wasm.OpcodeI64Store16:
		return OperationKindStore16, 1
	case wasm.OpcodeI64Store32:
		return OperationKindStore32, 0
	case wasm.OpcodeMemorySize:
		return OperationKindMemorySize, 0
	case wasm.OpcodeMemoryGrow:
		return OperationKindMemoryGrow, 0
	}
	panic("unreachable: caller guarantees isMemoryOpcode")
}

func le32(b []byte, offset uint64) uint32 {
	return uint32(b[offset]) | uint32(b[offset+1])<<8 | uint32(b[offset+2])<<16 | uint32(b[offset+3])<<24
}

func le64(b []byte, offset uint64) uint64 {
	lo := le32(b, offset)
	hi := le32(b, offset+4)
	return uint64(lo) | uint64(hi)<<32
}
