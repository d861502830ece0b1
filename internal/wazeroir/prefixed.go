package wazeroir

import (
	"fmt"

	"github.com/wasmtier/execore/internal/leb128"
	"github.com/wasmtier/execore/internal/wasm"
)

// decodeMemArg reads a memarg immediate (spec.md GLOSSARY "Memarg"), shared
// by the SIMD and atomic prefixed dispatchers below and by compileMemOp.
func decodeMemArg(body []byte, offset uint64) (memOffset, memIdx uint32, next uint64, err error) {
	align, next, err := leb128.DecodeUint32(body, offset)
	if err != nil {
		return 0, 0, 0, err
	}
	if align&0x40 != 0 {
		memIdx, next, err = leb128.DecodeUint32(body, next)
		if err != nil {
			return 0, 0, 0, err
		}
	}
	memOffset, next, err = leb128.DecodeUint32(body, next)
	return memOffset, memIdx, next, err
}

// compileMisc lowers the 0xFC-prefixed saturating-truncation and bulk
// memory/table opcodes (spec.md §4.7), mirroring skipMiscImmediate's
// immediate shapes.
func (c *compiler) compileMisc(offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	satTrunc := func(destI64, srcF64, signed bool) {
		var b3 byte
		if signed {
			b3 |= 1
		}
		b3 |= 1 << 1 // saturating, never traps.
		b1, b2 := byte(0), byte(0)
		if destI64 {
			b1 = 1
		}
		if srcF64 {
			b2 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindITruncFromF, B1: b1, B2: b2, B3: b3})
	}
	switch byte(sub) {
	case wasm.OpcodeMiscI32TruncSatF32S:
		satTrunc(false, false, true)
	case wasm.OpcodeMiscI32TruncSatF32U:
		satTrunc(false, false, false)
	case wasm.OpcodeMiscI32TruncSatF64S:
		satTrunc(false, true, true)
	case wasm.OpcodeMiscI32TruncSatF64U:
		satTrunc(false, true, false)
	case wasm.OpcodeMiscI64TruncSatF32S:
		satTrunc(true, false, true)
	case wasm.OpcodeMiscI64TruncSatF32U:
		satTrunc(true, false, false)
	case wasm.OpcodeMiscI64TruncSatF64S:
		satTrunc(true, true, true)
	case wasm.OpcodeMiscI64TruncSatF64U:
		satTrunc(true, true, false)
	case wasm.OpcodeMiscMemoryInit:
		dataIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		memIdx, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindMemoryInit, U1: uint64(dataIdx), U2: uint64(memIdx)})
		return next2, nil
	case wasm.OpcodeMiscDataDrop:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindDataDrop, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeMiscMemoryCopy:
		dst, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		src, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindMemoryCopy, U1: uint64(dst), U2: uint64(src)})
		return next2, nil
	case wasm.OpcodeMiscMemoryFill:
		memIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindMemoryFill, U1: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeMiscTableInit:
		elemIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		tableIdx, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindTableInit, U1: uint64(elemIdx), U2: uint64(tableIdx)})
		return next2, nil
	case wasm.OpcodeMiscElemDrop:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindElemDrop, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeMiscTableCopy:
		dst, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		src, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindTableCopy, U1: uint64(dst), U2: uint64(src)})
		return next2, nil
	case wasm.OpcodeMiscTableGrow:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindTableGrow, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeMiscTableSize:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindTableSize, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeMiscTableFill:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindTableFill, U1: uint64(idx)})
		return next, nil
	default:
		return 0, fmt.Errorf("unsupported misc opcode 0x%02x", sub)
	}
	return offset, nil
}

// compileGC lowers the 0xFB-prefixed struct/array/cast opcodes (spec.md
// §4.7, representative subset). Array variants with no dedicated
// OperationKind (fill/copy/init_data/init_elem) are folded onto
// OperationKindArraySet with a B1 discriminator, the same "representative
// subset, not exhaustive" tradeoff operations.go documents for this prefix.
func (c *compiler) compileGC(offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	switch byte(sub) {
	case wasm.OpcodeGCStructNew, wasm.OpcodeGCStructNewDefault:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeGCStructNewDefault {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindStructNew, U1: uint64(idx), B1: b1})
		return next, nil
	case wasm.OpcodeGCStructGet, wasm.OpcodeGCStructGetS, wasm.OpcodeGCStructGetU:
		typeIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		fieldIdx, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		switch byte(sub) {
		case wasm.OpcodeGCStructGetS:
			b1 = 1
		case wasm.OpcodeGCStructGetU:
			b1 = 2
		}
		c.emit(UnionOperation{Kind: OperationKindStructGet, U1: uint64(typeIdx), U2: uint64(fieldIdx), B1: b1})
		return next2, nil
	case wasm.OpcodeGCStructSet:
		typeIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		fieldIdx, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindStructSet, U1: uint64(typeIdx), U2: uint64(fieldIdx)})
		return next2, nil
	case wasm.OpcodeGCArrayNew, wasm.OpcodeGCArrayNewDefault:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeGCArrayNewDefault {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindArrayNew, U1: uint64(idx), B1: b1})
		return next, nil
	case wasm.OpcodeGCArrayNewFixed:
		typeIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		count, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindArrayNew, U1: uint64(typeIdx), U2: uint64(count), B1: 2})
		return next2, nil
	case wasm.OpcodeGCArrayNewData, wasm.OpcodeGCArrayNewElem:
		typeIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		srcIdx, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		b1 := byte(3)
		if byte(sub) == wasm.OpcodeGCArrayNewElem {
			b1 = 4
		}
		c.emit(UnionOperation{Kind: OperationKindArrayNew, U1: uint64(typeIdx), U2: uint64(srcIdx), B1: b1})
		return next2, nil
	case wasm.OpcodeGCArrayGet, wasm.OpcodeGCArrayGetS, wasm.OpcodeGCArrayGetU:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		switch byte(sub) {
		case wasm.OpcodeGCArrayGetS:
			b1 = 1
		case wasm.OpcodeGCArrayGetU:
			b1 = 2
		}
		c.emit(UnionOperation{Kind: OperationKindArrayGet, U1: uint64(idx), B1: b1})
		return next, nil
	case wasm.OpcodeGCArraySet:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindArraySet, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeGCArrayLen:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindArrayLen, U1: uint64(idx)})
		return next, nil
	case wasm.OpcodeGCArrayFill:
		idx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindArraySet, U1: uint64(idx), B1: 1})
		return next, nil
	case wasm.OpcodeGCArrayCopy:
		dst, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		src, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindArraySet, U1: uint64(dst), U2: uint64(src), B1: 2})
		return next2, nil
	case wasm.OpcodeGCArrayInitData, wasm.OpcodeGCArrayInitElem:
		typeIdx, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		srcIdx, next2, err := leb128.DecodeUint32(c.body, next)
		if err != nil {
			return 0, err
		}
		b1 := byte(3)
		if byte(sub) == wasm.OpcodeGCArrayInitElem {
			b1 = 4
		}
		c.emit(UnionOperation{Kind: OperationKindArraySet, U1: uint64(typeIdx), U2: uint64(srcIdx), B1: b1})
		return next2, nil
	case wasm.OpcodeGCRefTest, wasm.OpcodeGCRefTestNull:
		if offset >= uint64(len(c.body)) {
			return 0, fmt.Errorf("truncated ref.test heap type")
		}
		heapType := c.body[offset]
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeGCRefTestNull {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindRefTest, U1: uint64(heapType), B1: b1})
		return offset + 1, nil
	case wasm.OpcodeGCRefCast, wasm.OpcodeGCRefCastNull:
		if offset >= uint64(len(c.body)) {
			return 0, fmt.Errorf("truncated ref.cast heap type")
		}
		heapType := c.body[offset]
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeGCRefCastNull {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindRefCast, U1: uint64(heapType), B1: b1})
		return offset + 1, nil
	case wasm.OpcodeGCBrOnCast, wasm.OpcodeGCBrOnCastFail:
		if offset >= uint64(len(c.body)) {
			return 0, fmt.Errorf("truncated br_on_cast flags")
		}
		flags := c.body[offset]
		offset++
		depth, next, err := leb128.DecodeUint32(c.body, offset)
		if err != nil {
			return 0, err
		}
		if next+2 > uint64(len(c.body)) {
			return 0, fmt.Errorf("truncated br_on_cast heap types")
		}
		srcType, destType := c.body[next], c.body[next+1]
		b1 := flags
		if byte(sub) == wasm.OpcodeGCBrOnCastFail {
			b1 |= 1 << 7
		}
		c.emit(UnionOperation{Kind: OperationKindBrOnCast, U1: uint64(depth), B1: b1, B2: srcType, B3: destType})
		return next + 2, nil
	case wasm.OpcodeGCAnyConvertExtern:
		c.emit(UnionOperation{Kind: OperationKindAnyConvertExtern})
	case wasm.OpcodeGCExternConvertAny:
		c.emit(UnionOperation{Kind: OperationKindExternConvertAny})
	case wasm.OpcodeGCRefI31:
		c.emit(UnionOperation{Kind: OperationKindRefI31})
	case wasm.OpcodeGCI31GetS:
		c.emit(UnionOperation{Kind: OperationKindI31Get, B1: 1})
	case wasm.OpcodeGCI31GetU:
		c.emit(UnionOperation{Kind: OperationKindI31Get, B1: 0})
	default:
		return 0, fmt.Errorf("unsupported gc opcode 0x%02x", sub)
	}
	return offset, nil
}

// simdLaneTag maps a splat/arith sub-opcode family to the B1 lane-shape tag
// the predecoded interpreter's V128 handlers switch on.
const (
	laneI8x16 = iota
	laneI16x8
	laneI32x4
	laneI64x2
	laneF32x4
	laneF64x2
)

// compileSIMD lowers the 0xFD-prefixed vector opcodes (spec.md §4.7,
// representative subset).
func (c *compiler) compileSIMD(offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	switch byte(sub) {
	case wasm.OpcodeSIMDV128Const:
		if offset+16 > uint64(len(c.body)) {
			return 0, fmt.Errorf("truncated v128.const")
		}
		raw := append([]byte(nil), c.body[offset:offset+16]...)
		c.emit(UnionOperation{Kind: OperationKindV128Const, Rs: raw})
		return offset + 16, nil
	case wasm.OpcodeSIMDI8x16Shuffle:
		if offset+16 > uint64(len(c.body)) {
			return 0, fmt.Errorf("truncated i8x16.shuffle mask")
		}
		mask := append([]byte(nil), c.body[offset:offset+16]...)
		c.emit(UnionOperation{Kind: OperationKindV128Shuffle, Rs: mask})
		return offset + 16, nil
	case wasm.OpcodeSIMDI8x16Swizzle:
		c.emit(UnionOperation{Kind: OperationKindV128Swizzle})
		return offset, nil
	case wasm.OpcodeSIMDV128Load, wasm.OpcodeSIMDV128Load8Splat, wasm.OpcodeSIMDV128Load16Splat,
		wasm.OpcodeSIMDV128Load32Splat, wasm.OpcodeSIMDV128Load64Splat:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindV128Load, B1: byte(sub), U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeSIMDV128Store:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindV128Store, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeSIMDI8x16Splat:
		c.emit(UnionOperation{Kind: OperationKindV128Splat, B1: laneI8x16})
	case wasm.OpcodeSIMDI16x8Splat:
		c.emit(UnionOperation{Kind: OperationKindV128Splat, B1: laneI16x8})
	case wasm.OpcodeSIMDI32x4Splat:
		c.emit(UnionOperation{Kind: OperationKindV128Splat, B1: laneI32x4})
	case wasm.OpcodeSIMDI64x2Splat:
		c.emit(UnionOperation{Kind: OperationKindV128Splat, B1: laneI64x2})
	case wasm.OpcodeSIMDF32x4Splat:
		c.emit(UnionOperation{Kind: OperationKindV128Splat, B1: laneF32x4})
	case wasm.OpcodeSIMDF64x2Splat:
		c.emit(UnionOperation{Kind: OperationKindV128Splat, B1: laneF64x2})
	case wasm.OpcodeSIMDI32x4Add:
		c.emit(UnionOperation{Kind: OperationKindV128Add, B1: laneI32x4})
	case wasm.OpcodeSIMDI32x4Sub:
		c.emit(UnionOperation{Kind: OperationKindV128Sub, B1: laneI32x4})
	case wasm.OpcodeSIMDI32x4Mul:
		c.emit(UnionOperation{Kind: OperationKindV128Mul, B1: laneI32x4})
	case wasm.OpcodeSIMDF32x4Add:
		c.emit(UnionOperation{Kind: OperationKindV128Add, B1: laneF32x4})
	case wasm.OpcodeSIMDF32x4Sub:
		c.emit(UnionOperation{Kind: OperationKindV128Sub, B1: laneF32x4})
	case wasm.OpcodeSIMDF32x4Mul:
		c.emit(UnionOperation{Kind: OperationKindV128Mul, B1: laneF32x4})
	case wasm.OpcodeSIMDF32x4Pmin:
		c.emit(UnionOperation{Kind: OperationKindV128Pmin, B1: laneF32x4})
	case wasm.OpcodeSIMDF32x4Pmax:
		c.emit(UnionOperation{Kind: OperationKindV128Pmax, B1: laneF32x4})
	case wasm.OpcodeSIMDI64x2ExtmulLowI32x4S:
		c.emit(UnionOperation{Kind: OperationKindV128ExtMul, B1: 0, B2: 1})
	case wasm.OpcodeSIMDI64x2ExtmulHighI32x4S:
		c.emit(UnionOperation{Kind: OperationKindV128ExtMul, B1: 1, B2: 1})
	default:
		return 0, fmt.Errorf("unsupported simd opcode 0x%02x", sub)
	}
	return offset, nil
}

// compileAtomic lowers the 0xFE-prefixed atomic opcodes (spec.md §4.7,
// §5 "single-threaded atomics": these execute with ordinary load/store
// semantics since no second thread can ever observe interleaving).
func (c *compiler) compileAtomic(offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(c.body, offset)
	if err != nil {
		return 0, err
	}
	switch byte(sub) {
	case wasm.OpcodeAtomicMemoryNotify:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicNotify, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeAtomicMemoryWait32, wasm.OpcodeAtomicMemoryWait64:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeAtomicMemoryWait64 {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicWait, B1: b1, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeAtomicFence:
		if offset >= uint64(len(c.body)) {
			return 0, fmt.Errorf("truncated atomic.fence")
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicFence})
		return offset + 1, nil
	case wasm.OpcodeAtomicI32Load, wasm.OpcodeAtomicI64Load:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeAtomicI64Load {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicLoad, B1: b1, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeAtomicI32Store, wasm.OpcodeAtomicI64Store:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeAtomicI64Store {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicStore, B1: b1, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeAtomicI32RmwAdd, wasm.OpcodeAtomicI64RmwAdd:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		b1 := byte(0)
		if byte(sub) == wasm.OpcodeAtomicI64RmwAdd {
			b1 = 1
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicRMW, B1: b1, B2: 0, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeAtomicI32RmwSub:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicRMW, B1: 0, B2: 1, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeAtomicI32RmwXchg:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicRMW, B1: 0, B2: 2, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	case wasm.OpcodeAtomicI32RmwCmpxchg:
		memOffset, memIdx, next, err := decodeMemArg(c.body, offset)
		if err != nil {
			return 0, err
		}
		c.emit(UnionOperation{Kind: OperationKindAtomicRMWCmpxchg, B1: 0, U1: uint64(memOffset), U2: uint64(memIdx)})
		return next, nil
	default:
		return 0, fmt.Errorf("unsupported atomic opcode 0x%02x", sub)
	}
}
