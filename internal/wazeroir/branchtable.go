package wazeroir

import (
	"fmt"

	"github.com/wasmtier/execore/internal/leb128"
	"github.com/wasmtier/execore/internal/wasm"
)

// BranchTable maps a structured block/loop/if/try_table start offset to the
// byte offset just past its matching `end`, and an `if` with an else branch
// to the byte offset just past its `else` (spec.md §4.2).
type BranchTable struct {
	EndOffsets  map[uint64]uint64
	ElseOffsets map[uint64]uint64
}

// scratchEntry tracks one nesting level while scanning a function body.
type scratchEntry struct {
	startOffset uint64
	opcode      byte
}

// ComputeBranchTable runs the one-pass side-table computation described in
// spec.md §4.2. It tracks nesting with a scratch stack and must skip every
// opcode's immediates correctly: LEB128 integers, SIMD lane indices, memarg
// (with the optional memory-index bit in the alignment byte), and
// GC/SIMD/atomic prefix sub-opcodes.
//
// Failure to compute the table is non-fatal to the interpreter (it falls
// back to ScanForward with identical semantics), so this returns an error
// rather than panicking on malformed input.
func ComputeBranchTable(body []byte) (*BranchTable, error) {
	bt := &BranchTable{EndOffsets: map[uint64]uint64{}, ElseOffsets: map[uint64]uint64{}}
	var stack []scratchEntry
	offset := uint64(0)
	for offset < uint64(len(body)) {
		opStart := offset
		op := body[offset]
		offset++
		switch op {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf, wasm.OpcodeTryTable:
			var err error
			offset, err = skipBlockType(body, offset)
			if err != nil {
				return nil, err
			}
			if op == wasm.OpcodeTryTable {
				offset, err = skipTryTableCatches(body, offset)
				if err != nil {
					return nil, err
				}
			}
			stack = append(stack, scratchEntry{startOffset: opStart, opcode: op})
		case wasm.OpcodeElse:
			if len(stack) == 0 {
				return nil, fmt.Errorf("wazeroir: else without matching if at %d", opStart)
			}
			top := &stack[len(stack)-1]
			if top.opcode != wasm.OpcodeIf {
				return nil, fmt.Errorf("wazeroir: else without matching if at %d", opStart)
			}
			bt.ElseOffsets[top.startOffset] = offset
		case wasm.OpcodeEnd:
			if len(stack) == 0 {
				// end of function body itself; nothing to record.
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			bt.EndOffsets[top.startOffset] = offset
		default:
			var err error
			offset, err = skipImmediate(body, op, offset)
			if err != nil {
				return nil, err
			}
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("wazeroir: unterminated block(s) at EOF")
	}
	return bt, nil
}

// ScanForward finds the offset just past the matching `end` (or, if
// untilElse is true, just past an `else` at the same nesting depth) for a
// block/loop/if/try_table starting at bodyStart, by scanning on demand. It
// must produce byte-identical results to ComputeBranchTable (spec.md §8
// "Branch-table consistency").
func ScanForward(body []byte, bodyStart uint64, untilElse bool) (uint64, error) {
	offset := bodyStart
	op := body[offset]
	offset++
	var err error
	offset, err = skipBlockType(body, offset)
	if err != nil {
		return 0, err
	}
	if op == wasm.OpcodeTryTable {
		offset, err = skipTryTableCatches(body, offset)
		if err != nil {
			return 0, err
		}
	}
	depth := 0
	for offset < uint64(len(body)) {
		b := body[offset]
		offset++
		switch b {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf, wasm.OpcodeTryTable:
			offset, err = skipBlockType(body, offset)
			if err != nil {
				return 0, err
			}
			if b == wasm.OpcodeTryTable {
				offset, err = skipTryTableCatches(body, offset)
				if err != nil {
					return 0, err
				}
			}
			depth++
		case wasm.OpcodeElse:
			if depth == 0 && untilElse {
				return offset, nil
			}
		case wasm.OpcodeEnd:
			if depth == 0 {
				return offset, nil
			}
			depth--
		default:
			offset, err = skipImmediate(body, b, offset)
			if err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("wazeroir: end not found scanning from %d", bodyStart)
}

// skipBlockType skips a block-type immediate: 0x40 (empty), a single
// value-type byte, or a signed LEB128 type-section index.
func skipBlockType(body []byte, offset uint64) (uint64, error) {
	if offset >= uint64(len(body)) {
		return 0, fmt.Errorf("wazeroir: truncated block type at %d", offset)
	}
	b := body[offset]
	if b == 0x40 || isValueTypeByte(b) {
		return offset + 1, nil
	}
	// Signed LEB128 index into the type section.
	_, next, err := leb128.DecodeInt32(body, offset)
	return next, err
}

func isValueTypeByte(b byte) bool {
	switch b {
	case 0x7f, 0x7e, 0x7d, 0x7c, 0x7b, 0x70, 0x6f:
		return true
	}
	return false
}

// skipTryTableCatches skips a try_table's vector of catch clauses: a count
// followed by, per clause, a catch-kind byte, an optional tag index, and a
// label depth (spec.md §4.8).
func skipTryTableCatches(body []byte, offset uint64) (uint64, error) {
	count, offset, err := leb128.DecodeUint32(body, offset)
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < count; i++ {
		if offset >= uint64(len(body)) {
			return 0, fmt.Errorf("wazeroir: truncated catch clause at %d", offset)
		}
		kind := body[offset]
		offset++
		if kind == 0 || kind == 1 { // plain / with-exnref: has a tag index.
			_, offset, err = leb128.DecodeUint32(body, offset)
			if err != nil {
				return 0, err
			}
		}
		_, offset, err = leb128.DecodeUint32(body, offset) // label depth
		if err != nil {
			return 0, err
		}
	}
	return offset, nil
}

// skipImmediate advances past the immediate(s) of a non-structured opcode,
// including the GC/misc/SIMD/atomic prefix sub-opcode byte and whatever
// immediates that sub-opcode itself carries.
func skipImmediate(body []byte, op byte, offset uint64) (uint64, error) {
	var err error
	switch op {
	case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
		wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet,
		wasm.OpcodeRefFunc, wasm.OpcodeTableGet, wasm.OpcodeTableSet,
		wasm.OpcodeReturnCall, wasm.OpcodeCallRef, wasm.OpcodeReturnCallRef,
		wasm.OpcodeBrOnNull, wasm.OpcodeBrOnNonNull:
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeCallIndirect, wasm.OpcodeReturnCallIndirect:
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		_, offset, err = leb128.DecodeUint32(body, offset) // table index
		return offset, err
	case wasm.OpcodeBrTable:
		count, next, err := leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		offset = next
		for i := uint32(0); i <= count; i++ { // count entries + 1 default
			_, offset, err = leb128.DecodeUint32(body, offset)
			if err != nil {
				return 0, err
			}
		}
		return offset, nil
	case wasm.OpcodeSelectT:
		count, next, err := leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		return next + uint64(count), nil
	case wasm.OpcodeI32Const:
		_, offset, err = leb128.DecodeInt32(body, offset)
		return offset, err
	case wasm.OpcodeI64Const:
		_, offset, err = leb128.DecodeInt64(body, offset)
		return offset, err
	case wasm.OpcodeF32Const:
		return offset + 4, nil
	case wasm.OpcodeF64Const:
		return offset + 8, nil
	case wasm.OpcodeRefNull:
		return offset + 1, nil // heap-type byte
	case wasm.OpcodeThrow:
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeMiscPrefix:
		return skipMiscImmediate(body, offset)
	case wasm.OpcodeGCPrefix:
		return skipGCImmediate(body, offset)
	case wasm.OpcodeSIMDPrefix:
		return skipSIMDImmediate(body, offset)
	case wasm.OpcodeAtomicPrefix:
		return skipAtomicImmediate(body, offset)
	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		return offset + 1, nil // reserved memory-index byte, not a memarg.
	default:
		if isMemoryOpcode(op) {
			return skipMemArg(body, offset)
		}
		// No immediate: plain numeric/comparison/control opcode.
		return offset, nil
	}
}

// isMemoryOpcode reports whether op carries a true memarg immediate
// (alignment + byte offset). memory.size/memory.grow sit right after this
// range in opcode order but carry only a single reserved byte, so they're
// deliberately excluded and skipped by their own case.
func isMemoryOpcode(op byte) bool {
	return op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32
}

// skipMemArg skips a memarg: alignment (LEB128, with bit 6 signaling a
// following explicit memory-index immediate for multi-memory) then byte
// offset (LEB128) (spec.md GLOSSARY "Memarg").
func skipMemArg(body []byte, offset uint64) (uint64, error) {
	align, next, err := leb128.DecodeUint32(body, offset)
	if err != nil {
		return 0, err
	}
	offset = next
	if align&0x40 != 0 { // multi-memory: explicit memory index follows.
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
	}
	_, offset, err = leb128.DecodeUint32(body, offset) // byte offset
	return offset, err
}

func skipMiscImmediate(body []byte, offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(body, offset)
	if err != nil {
		return 0, err
	}
	switch byte(sub) {
	case wasm.OpcodeMiscMemoryInit, wasm.OpcodeMiscTableInit:
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeMiscDataDrop, wasm.OpcodeMiscElemDrop,
		wasm.OpcodeMiscTableGrow, wasm.OpcodeMiscTableSize, wasm.OpcodeMiscTableFill:
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeMiscMemoryCopy, wasm.OpcodeMiscTableCopy:
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeMiscMemoryFill:
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	default: // truncation ops: no immediate.
		return offset, nil
	}
}

func skipGCImmediate(body []byte, offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(body, offset)
	if err != nil {
		return 0, err
	}
	switch byte(sub) {
	case wasm.OpcodeGCStructNew, wasm.OpcodeGCStructNewDefault,
		wasm.OpcodeGCArrayNew, wasm.OpcodeGCArrayNewDefault,
		wasm.OpcodeGCArrayLen:
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeGCStructGet, wasm.OpcodeGCStructGetS, wasm.OpcodeGCStructGetU,
		wasm.OpcodeGCStructSet:
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		_, offset, err = leb128.DecodeUint32(body, offset) // field index
		return offset, err
	case wasm.OpcodeGCArrayGet, wasm.OpcodeGCArrayGetS, wasm.OpcodeGCArrayGetU,
		wasm.OpcodeGCArraySet, wasm.OpcodeGCArrayFill:
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeGCArrayNewFixed:
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		_, offset, err = leb128.DecodeUint32(body, offset) // element count
		return offset, err
	case wasm.OpcodeGCArrayNewData, wasm.OpcodeGCArrayNewElem,
		wasm.OpcodeGCArrayCopy, wasm.OpcodeGCArrayInitData, wasm.OpcodeGCArrayInitElem:
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		_, offset, err = leb128.DecodeUint32(body, offset)
		return offset, err
	case wasm.OpcodeGCRefTest, wasm.OpcodeGCRefTestNull,
		wasm.OpcodeGCRefCast, wasm.OpcodeGCRefCastNull:
		return offset + 1, nil // heap-type byte; see Open Questions.
	case wasm.OpcodeGCBrOnCast, wasm.OpcodeGCBrOnCastFail:
		offset++ // flags byte
		_, offset, err = leb128.DecodeUint32(body, offset)
		if err != nil {
			return 0, err
		}
		return offset + 2, nil // two heap-type bytes (source, target)
	default: // ref.i31, i31.get_s/u, any/extern.convert: no immediate.
		return offset, nil
	}
}

func skipSIMDImmediate(body []byte, offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(body, offset)
	if err != nil {
		return 0, err
	}
	switch byte(sub) {
	case wasm.OpcodeSIMDV128Const, wasm.OpcodeSIMDI8x16Shuffle:
		return offset + 16, nil // 16 raw bytes (const payload or shuffle mask)
	case wasm.OpcodeSIMDV128Load, wasm.OpcodeSIMDV128Load8Splat,
		wasm.OpcodeSIMDV128Load16Splat, wasm.OpcodeSIMDV128Load32Splat,
		wasm.OpcodeSIMDV128Load64Splat, wasm.OpcodeSIMDV128Store:
		return skipMemArg(body, offset)
	default: // lane arithmetic: no further immediate in this subset.
		return offset, nil
	}
}

func skipAtomicImmediate(body []byte, offset uint64) (uint64, error) {
	sub, offset, err := leb128.DecodeUint32(body, offset)
	if err != nil {
		return 0, err
	}
	if byte(sub) == wasm.OpcodeAtomicFence {
		return offset + 1, nil // reserved byte
	}
	return skipMemArg(body, offset)
}
