package wasm

// Opcode is a raw byte from a function body, as laid out by the binary
// format this core consumes (out of scope: decoding that format; in
// scope: the opcode constants the interpreter tiers dispatch on).
type Opcode = byte

// Control and numeric opcodes, values per the Wasm 2.0 MVP binary encoding.
const (
	OpcodeUnreachable Opcode = 0x00
	OpcodeNop         Opcode = 0x01
	OpcodeBlock       Opcode = 0x02
	OpcodeLoop        Opcode = 0x03
	OpcodeIf          Opcode = 0x04
	OpcodeElse        Opcode = 0x05
	OpcodeTry         Opcode = 0x06 // legacy EH, superseded by try_table below
	OpcodeCatch       Opcode = 0x07
	OpcodeThrow       Opcode = 0x08
	OpcodeRethrow     Opcode = 0x09
	OpcodeEnd         Opcode = 0x0b
	OpcodeBr          Opcode = 0x0c
	OpcodeBrIf        Opcode = 0x0d
	OpcodeBrTable     Opcode = 0x0e
	OpcodeReturn      Opcode = 0x0f
	OpcodeCall        Opcode = 0x10
	OpcodeCallIndirect Opcode = 0x11
	OpcodeReturnCall        Opcode = 0x12
	OpcodeReturnCallIndirect Opcode = 0x13
	OpcodeCallRef           Opcode = 0x14
	OpcodeReturnCallRef     Opcode = 0x15
	OpcodeThrowRef          Opcode = 0x0a
	OpcodeTryTable          Opcode = 0x1f
	OpcodeDrop        Opcode = 0x1a
	OpcodeSelect      Opcode = 0x1b
	OpcodeSelectT     Opcode = 0x1c

	OpcodeLocalGet  Opcode = 0x20
	OpcodeLocalSet  Opcode = 0x21
	OpcodeLocalTee  Opcode = 0x22
	OpcodeGlobalGet Opcode = 0x23
	OpcodeGlobalSet Opcode = 0x24

	OpcodeTableGet Opcode = 0x25
	OpcodeTableSet Opcode = 0x26

	OpcodeI32Load    Opcode = 0x28
	OpcodeI64Load    Opcode = 0x29
	OpcodeF32Load    Opcode = 0x2a
	OpcodeF64Load    Opcode = 0x2b
	OpcodeI32Load8S  Opcode = 0x2c
	OpcodeI32Load8U  Opcode = 0x2d
	OpcodeI32Load16S Opcode = 0x2e
	OpcodeI32Load16U Opcode = 0x2f
	OpcodeI64Load8S  Opcode = 0x30
	OpcodeI64Load8U  Opcode = 0x31
	OpcodeI64Load16S Opcode = 0x32
	OpcodeI64Load16U Opcode = 0x33
	OpcodeI64Load32S Opcode = 0x34
	OpcodeI64Load32U Opcode = 0x35
	OpcodeI32Store   Opcode = 0x36
	OpcodeI64Store   Opcode = 0x37
	OpcodeF32Store   Opcode = 0x38
	OpcodeF64Store   Opcode = 0x39
	OpcodeI32Store8  Opcode = 0x3a
	OpcodeI32Store16 Opcode = 0x3b
	OpcodeI64Store8  Opcode = 0x3c
	OpcodeI64Store16 Opcode = 0x3d
	OpcodeI64Store32 Opcode = 0x3e
	OpcodeMemorySize Opcode = 0x3f
	OpcodeMemoryGrow Opcode = 0x40

	OpcodeI32Const Opcode = 0x41
	OpcodeI64Const Opcode = 0x42
	OpcodeF32Const Opcode = 0x43
	OpcodeF64Const Opcode = 0x44

	// Comparisons / arithmetic occupy 0x45-0xc4 contiguously; individual
	// constants aren't enumerated here, the bytecode interpreter switches on
	// the raw byte directly as the teacher's does.

	OpcodeRefNull   Opcode = 0xd0
	OpcodeRefIsNull Opcode = 0xd1
	OpcodeRefFunc   Opcode = 0xd2
	OpcodeRefAsNonNull Opcode = 0xd3
	OpcodeBrOnNull     Opcode = 0xd4
	OpcodeBrOnNonNull  Opcode = 0xd6

	// Prefix bytes routing to specialized sub-dispatch tables (spec §4.7).
	OpcodeMiscPrefix   Opcode = 0xfc
	OpcodeGCPrefix     Opcode = 0xfb
	OpcodeSIMDPrefix   Opcode = 0xfd
	OpcodeAtomicPrefix Opcode = 0xfe
)

// Misc (0xFC) sub-opcodes: saturating truncation and bulk memory/table ops.
const (
	OpcodeMiscI32TruncSatF32S Opcode = 0x00
	OpcodeMiscI32TruncSatF32U Opcode = 0x01
	OpcodeMiscI32TruncSatF64S Opcode = 0x02
	OpcodeMiscI32TruncSatF64U Opcode = 0x03
	OpcodeMiscI64TruncSatF32S Opcode = 0x04
	OpcodeMiscI64TruncSatF32U Opcode = 0x05
	OpcodeMiscI64TruncSatF64S Opcode = 0x06
	OpcodeMiscI64TruncSatF64U Opcode = 0x07
	OpcodeMiscMemoryInit      Opcode = 0x08
	OpcodeMiscDataDrop        Opcode = 0x09
	OpcodeMiscMemoryCopy      Opcode = 0x0a
	OpcodeMiscMemoryFill      Opcode = 0x0b
	OpcodeMiscTableInit       Opcode = 0x0c
	OpcodeMiscElemDrop        Opcode = 0x0d
	OpcodeMiscTableCopy       Opcode = 0x0e
	OpcodeMiscTableGrow       Opcode = 0x0f
	OpcodeMiscTableSize       Opcode = 0x10
	OpcodeMiscTableFill       Opcode = 0x11
)

// GC (0xFB) sub-opcodes, a representative subset of §4.7.
const (
	OpcodeGCStructNew        Opcode = 0x00
	OpcodeGCStructNewDefault Opcode = 0x01
	OpcodeGCStructGet        Opcode = 0x02
	OpcodeGCStructGetS       Opcode = 0x03
	OpcodeGCStructGetU       Opcode = 0x04
	OpcodeGCStructSet        Opcode = 0x05
	OpcodeGCArrayNew         Opcode = 0x06
	OpcodeGCArrayNewDefault  Opcode = 0x07
	OpcodeGCArrayNewFixed    Opcode = 0x08
	OpcodeGCArrayNewData     Opcode = 0x09
	OpcodeGCArrayNewElem     Opcode = 0x0a
	OpcodeGCArrayGet         Opcode = 0x0b
	OpcodeGCArrayGetS        Opcode = 0x0c
	OpcodeGCArrayGetU        Opcode = 0x0d
	OpcodeGCArraySet         Opcode = 0x0e
	OpcodeGCArrayLen         Opcode = 0x0f
	OpcodeGCArrayFill        Opcode = 0x10
	OpcodeGCArrayCopy        Opcode = 0x11
	OpcodeGCArrayInitData    Opcode = 0x12
	OpcodeGCArrayInitElem    Opcode = 0x13
	OpcodeGCRefTest          Opcode = 0x14
	OpcodeGCRefTestNull      Opcode = 0x15
	OpcodeGCRefCast          Opcode = 0x16
	OpcodeGCRefCastNull      Opcode = 0x17
	OpcodeGCBrOnCast         Opcode = 0x18
	OpcodeGCBrOnCastFail     Opcode = 0x19
	OpcodeGCAnyConvertExtern Opcode = 0x1a
	OpcodeGCExternConvertAny Opcode = 0x1b
	OpcodeGCRefI31           Opcode = 0x1c
	OpcodeGCI31GetS          Opcode = 0x1d
	OpcodeGCI31GetU          Opcode = 0x1e
)

// Atomic (0xFE) sub-opcodes, a representative subset of §4.7.
const (
	OpcodeAtomicMemoryNotify  Opcode = 0x00
	OpcodeAtomicMemoryWait32  Opcode = 0x01
	OpcodeAtomicMemoryWait64  Opcode = 0x02
	OpcodeAtomicFence         Opcode = 0x03
	OpcodeAtomicI32Load       Opcode = 0x10
	OpcodeAtomicI64Load       Opcode = 0x11
	OpcodeAtomicI32Store      Opcode = 0x17
	OpcodeAtomicI64Store      Opcode = 0x18
	OpcodeAtomicI32RmwAdd     Opcode = 0x1e
	OpcodeAtomicI64RmwAdd     Opcode = 0x1f
	OpcodeAtomicI32RmwSub     Opcode = 0x25
	OpcodeAtomicI32RmwXchg    Opcode = 0x41
	OpcodeAtomicI32RmwCmpxchg Opcode = 0x48
)

// SIMD (0xFD) sub-opcodes, a representative subset of §4.7 covering load
// variants, lane arithmetic, saturating ops and shuffle/swizzle.
const (
	OpcodeSIMDV128Load        Opcode = 0x00
	OpcodeSIMDV128Load8Splat  Opcode = 0x07
	OpcodeSIMDV128Load16Splat Opcode = 0x08
	OpcodeSIMDV128Load32Splat Opcode = 0x09
	OpcodeSIMDV128Load64Splat Opcode = 0x0a
	OpcodeSIMDV128Store       Opcode = 0x0b
	OpcodeSIMDV128Const       Opcode = 0x0c
	OpcodeSIMDI8x16Shuffle    Opcode = 0x0d
	OpcodeSIMDI8x16Swizzle    Opcode = 0x0e
	OpcodeSIMDI8x16Splat      Opcode = 0x0f
	OpcodeSIMDI16x8Splat      Opcode = 0x10
	OpcodeSIMDI32x4Splat      Opcode = 0x11
	OpcodeSIMDI64x2Splat      Opcode = 0x12
	OpcodeSIMDF32x4Splat      Opcode = 0x13
	OpcodeSIMDF64x2Splat      Opcode = 0x14
	OpcodeSIMDI32x4Add        Opcode = 0xae
	OpcodeSIMDI32x4Sub        Opcode = 0xb1
	OpcodeSIMDI32x4Mul        Opcode = 0xb5
	OpcodeSIMDF32x4Add        Opcode = 0xe4
	OpcodeSIMDF32x4Sub        Opcode = 0xe5
	OpcodeSIMDF32x4Mul        Opcode = 0xe6
	OpcodeSIMDF32x4Min        Opcode = 0xe7
	OpcodeSIMDF32x4Max        Opcode = 0xe8
	OpcodeSIMDF32x4Pmin       Opcode = 0xe9
	OpcodeSIMDF32x4Pmax       Opcode = 0xea
	OpcodeSIMDI64x2ExtmulLowI32x4S  Opcode = 0xdc
	OpcodeSIMDI64x2ExtmulHighI32x4S Opcode = 0xdd
)
