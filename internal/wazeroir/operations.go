// Package wazeroir defines the pre-decoded intermediate representation
// (spec.md §4.4) shared by the predecoded-IR tier and, after a further
// lowering pass, the register-IR tier. It also implements the one-pass
// branch-target pre-computation described in spec.md §4.2.
package wazeroir

import "fmt"

// OperationKind discriminates a UnionOperation (spec.md §4.4). Kinds are
// numbered consecutively from zero and do not share values with Wasm
// opcodes; the prefixed (SIMD, atomic, GC) kinds and the fused
// super-instructions follow the single-byte ones.
type OperationKind int

const (
	OperationKindUnreachable OperationKind = iota
	OperationKindNop
	OperationKindBlock
	OperationKindLoop
	OperationKindIf
	OperationKindElse
	OperationKindEnd
	OperationKindBr
	OperationKindBrIf
	OperationKindBrTable
	OperationKindReturn
	OperationKindCall
	OperationKindCallIndirect
	OperationKindCallRef
	OperationKindReturnCall
	OperationKindReturnCallIndirect
	OperationKindReturnCallRef
	OperationKindDrop
	OperationKindSelect
	OperationKindPick
	OperationKindSwap
	OperationKindLocalGet
	OperationKindLocalSet
	OperationKindLocalTee
	OperationKindGlobalGet
	OperationKindGlobalSet
	OperationKindLoad
	OperationKindLoad8
	OperationKindLoad16
	OperationKindLoad32
	OperationKindStore
	OperationKindStore8
	OperationKindStore16
	OperationKindStore32
	OperationKindMemorySize
	OperationKindMemoryGrow
	OperationKindConstI32
	OperationKindConstI64
	OperationKindConstF32
	OperationKindConstF64
	OperationKindEq
	OperationKindNe
	OperationKindEqz
	OperationKindLt
	OperationKindGt
	OperationKindLe
	OperationKindGe
	OperationKindAdd
	OperationKindSub
	OperationKindMul
	OperationKindClz
	OperationKindCtz
	OperationKindPopcnt
	OperationKindDiv
	OperationKindRem
	OperationKindAnd
	OperationKindOr
	OperationKindXor
	OperationKindShl
	OperationKindShr
	OperationKindRotl
	OperationKindRotr
	OperationKindAbs
	OperationKindNeg
	OperationKindCeil
	OperationKindFloor
	OperationKindTrunc
	OperationKindNearest
	OperationKindSqrt
	OperationKindMin
	OperationKindMax
	OperationKindCopysign
	OperationKindI32WrapFromI64
	OperationKindITruncFromF
	OperationKindFConvertFromI
	OperationKindF32DemoteFromF64
	OperationKindF64PromoteFromF32
	OperationKindExtend
	OperationKindSignExtend32From8
	OperationKindSignExtend32From16
	OperationKindSignExtend64From8
	OperationKindSignExtend64From16
	OperationKindSignExtend64From32
	OperationKindMemoryInit
	OperationKindDataDrop
	OperationKindMemoryCopy
	OperationKindMemoryFill
	OperationKindTableInit
	OperationKindElemDrop
	OperationKindTableCopy
	OperationKindTableGet
	OperationKindTableSet
	OperationKindTableGrow
	OperationKindTableSize
	OperationKindTableFill
	OperationKindRefNull
	OperationKindRefFunc
	OperationKindRefIsNull
	OperationKindTryTable
	OperationKindThrow
	OperationKindThrowRef
	// SIMD, representative subset (spec.md §4.7).
	OperationKindV128Const
	OperationKindV128Load
	OperationKindV128Store
	OperationKindV128Add
	OperationKindV128Sub
	OperationKindV128Mul
	OperationKindV128Splat
	OperationKindV128Shuffle
	OperationKindV128Swizzle
	OperationKindV128Pmin
	OperationKindV128Pmax
	OperationKindV128ExtMul
	// Atomics, representative subset (spec.md §4.7).
	OperationKindAtomicLoad
	OperationKindAtomicStore
	OperationKindAtomicRMW
	OperationKindAtomicRMWCmpxchg
	OperationKindAtomicWait
	OperationKindAtomicNotify
	OperationKindAtomicFence
	// GC, representative subset (spec.md §4.7).
	OperationKindStructNew
	OperationKindStructGet
	OperationKindStructSet
	OperationKindArrayNew
	OperationKindArrayGet
	OperationKindArraySet
	OperationKindArrayLen
	OperationKindRefTest
	OperationKindRefCast
	OperationKindBrOnCast
	OperationKindRefI31
	OperationKindI31Get
	OperationKindAnyConvertExtern
	OperationKindExternConvertAny

	// br_on_null/br_on_non_null (spec.md §4.3 reference-type branches).
	OperationKindBrOnNull
	OperationKindBrOnNonNull

	// Super-instructions: fused patterns (spec.md §4.4 "predecode.OP_*").
	OperationKindSuperLocalGetLocalGet
	OperationKindSuperLocalGetConstI32
	OperationKindSuperLocalGetLocalGetAdd
	OperationKindSuperLocalGetLocalGetSub
	OperationKindSuperLocalGetLocalGetGtS
	OperationKindSuperLocalGetLocalGetLeS
	OperationKindSuperLocalGetConstAdd
	OperationKindSuperLocalGetConstSub
	OperationKindSuperLocalGetConstLtS
	OperationKindSuperLocalGetConstGeS
	OperationKindSuperLocalGetConstLtU
	OperationKindSuperLocalGet

	operationKindEnd
)

var operationKindNames = [...]string{
	"Unreachable", "Nop", "Block", "Loop", "If", "Else", "End", "Br", "BrIf",
	"BrTable", "Return", "Call", "CallIndirect", "CallRef", "ReturnCall",
	"ReturnCallIndirect", "ReturnCallRef", "Drop", "Select", "Pick", "Swap",
	"LocalGet", "LocalSet", "LocalTee",
	"GlobalGet", "GlobalSet", "Load", "Load8", "Load16", "Load32", "Store",
	"Store8", "Store16", "Store32", "MemorySize", "MemoryGrow", "ConstI32",
	"ConstI64", "ConstF32", "ConstF64", "Eq", "Ne", "Eqz", "Lt", "Gt", "Le",
	"Ge", "Add", "Sub", "Mul", "Clz", "Ctz", "Popcnt", "Div", "Rem", "And",
	"Or", "Xor", "Shl", "Shr", "Rotl", "Rotr", "Abs", "Neg", "Ceil", "Floor",
	"Trunc", "Nearest", "Sqrt", "Min", "Max", "Copysign", "I32WrapFromI64",
	"ITruncFromF", "FConvertFromI", "F32DemoteFromF64", "F64PromoteFromF32",
	"Extend", "SignExtend32From8", "SignExtend32From16", "SignExtend64From8",
	"SignExtend64From16", "SignExtend64From32", "MemoryInit", "DataDrop",
	"MemoryCopy", "MemoryFill", "TableInit", "ElemDrop", "TableCopy",
	"TableGet", "TableSet", "TableGrow", "TableSize", "TableFill", "RefNull",
	"RefFunc", "RefIsNull", "TryTable", "Throw", "ThrowRef", "V128Const",
	"V128Load", "V128Store", "V128Add", "V128Sub", "V128Mul", "V128Splat",
	"V128Shuffle", "V128Swizzle", "V128Pmin", "V128Pmax", "V128ExtMul",
	"AtomicLoad", "AtomicStore", "AtomicRMW", "AtomicRMWCmpxchg",
	"AtomicWait", "AtomicNotify", "AtomicFence", "StructNew", "StructGet",
	"StructSet", "ArrayNew", "ArrayGet", "ArraySet", "ArrayLen", "RefTest",
	"RefCast", "BrOnCast", "RefI31", "I31Get", "AnyConvertExtern",
	"ExternConvertAny", "BrOnNull", "BrOnNonNull",
	"SuperLocalGetLocalGet", "SuperLocalGetConstI32",
	"SuperLocalGetLocalGetAdd", "SuperLocalGetLocalGetSub",
	"SuperLocalGetLocalGetGtS", "SuperLocalGetLocalGetLeS",
	"SuperLocalGetConstAdd", "SuperLocalGetConstSub",
	"SuperLocalGetConstLtS", "SuperLocalGetConstGeS",
	"SuperLocalGetConstLtU", "SuperLocalGet",
}

func (k OperationKind) String() string {
	if int(k) < len(operationKindNames) {
		return operationKindNames[k]
	}
	return fmt.Sprintf("OperationKind(%d)", k)
}

// SignedType/SignedInt parameterize arithmetic ops that differ by
// signedness and width, matching b1 field usage across Div/Rem/Lt/Gt/etc.
type SignedType byte

const (
	SignedTypeInt32 SignedType = iota
	SignedTypeUint32
	SignedTypeInt64
	SignedTypeUint64
	SignedTypeFloat32
	SignedTypeFloat64
)

type SignedInt byte

const (
	SignedInt32 SignedInt = iota
	SignedInt64
	SignedUint32
	SignedUint64
)

// InclusiveRange describes an operand-stack range to discard underneath the
// top of stack, e.g. for `select`/block-result shuffling after a `drop`.
type InclusiveRange struct {
	Start, End int
}

// MemArg is a memory-operation immediate: byte offset plus, for
// multi-memory modules, an explicit memory index (spec.md GLOSSARY
// "Memarg").
type MemArg struct {
	Offset    uint32
	Alignment uint32
	MemoryIndex uint32
}

// UnionOperation is the fixed-width IR record (spec.md §4.4): one opcode
// plus a 32-bit operand and a 16-bit extra field, generalized here to two
// uint64 payload words (U1, U2) and three byte fields (B1, B2, B3) so a
// single Go struct can carry every operation kind's payload without a
// separate type per kind — the "tagged union... modelled as a sum" from
// spec.md §9, rendered as a flat record rather than an interface, matching
// the teacher's own UnionOperation.
type UnionOperation struct {
	Kind OperationKind
	B1, B2, B3 byte
	U1, U2     uint64
	// Us holds variable-length payloads: br_table's target depths, a
	// struct/array field-index list, catch-clause data, etc.
	Us []uint64
	// Rs holds result-type or other []byte shaped sub-payloads (e.g. a
	// v128.const's 16 raw bytes, or a shuffle's 16-byte lane mask).
	Rs []byte
}

func (o UnionOperation) String() string {
	return fmt.Sprintf("%s(b1=%d,b2=%d,b3=%d,u1=%d,u2=%d)", o.Kind, o.B1, o.B2, o.B3, o.U1, o.U2)
}

// LabelKind classifies a label the way the branch-target table and the
// predecoded IR both reference it.
type LabelKind byte

const (
	LabelKindHeader LabelKind = iota // loop header: `br` re-enters it.
	LabelKindContinuation            // block/if end: `br` falls through past it.
	LabelKindElse
	LabelKindReturn
	LabelKindNum
)

// label names one structured-control point. FrameID disambiguates labels of
// the same Kind across nested scopes within one function body.
type label struct {
	Kind    LabelKind
	FrameID uint32
}

// LabelID packs a label's Kind and FrameID into a single comparable value,
// cheap to use as a map key or IR operand (spec.md §4.4 "Branch targets in
// the IR are pre-resolved to IR indices").
type LabelID uint64

func (l label) ID() LabelID {
	return LabelID(uint64(l.Kind)<<32 | uint64(l.FrameID))
}

func (id LabelID) Kind() LabelKind { return LabelKind(id >> 32) }
func (id LabelID) FrameID() int    { return int(id & 0xffffffff) }
