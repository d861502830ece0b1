package wazeroir

import "fmt"

// ClassifyNumeric maps a single-byte comparison/arithmetic/conversion opcode
// (0x45-0xc4) to the UnionOperation shape that executes it. It is the single
// source of truth both compileNumeric (compile time, predecoded/register-IR
// tiers) and the bytecode tier (run time, no compilation step) dispatch
// through, so all three tiers agree on operator semantics by construction
// (spec.md §8 "tier equivalence").
//
// ok is false for the reinterpret opcodes (0xbc-0xbf): the operand stack
// already stores every scalar as a raw bit pattern (spec.md §4.1), so an
// i32<->f32 or i64<->f64 reinterpret is the identity function on this
// representation and has nothing to classify.
func ClassifyNumeric(op byte) (result UnionOperation, ok bool, err error) {
	switch op {
	case 0x45:
		return UnionOperation{Kind: OperationKindEqz, B1: 0}, true, nil
	case 0x46:
		return UnionOperation{Kind: OperationKindEq, B1: byte(SignedTypeInt32)}, true, nil
	case 0x47:
		return UnionOperation{Kind: OperationKindNe, B1: byte(SignedTypeInt32)}, true, nil
	case 0x48:
		return UnionOperation{Kind: OperationKindLt, B1: byte(SignedTypeInt32)}, true, nil
	case 0x49:
		return UnionOperation{Kind: OperationKindLt, B1: byte(SignedTypeUint32)}, true, nil
	case 0x4a:
		return UnionOperation{Kind: OperationKindGt, B1: byte(SignedTypeInt32)}, true, nil
	case 0x4b:
		return UnionOperation{Kind: OperationKindGt, B1: byte(SignedTypeUint32)}, true, nil
	case 0x4c:
		return UnionOperation{Kind: OperationKindLe, B1: byte(SignedTypeInt32)}, true, nil
	case 0x4d:
		return UnionOperation{Kind: OperationKindLe, B1: byte(SignedTypeUint32)}, true, nil
	case 0x4e:
		return UnionOperation{Kind: OperationKindGe, B1: byte(SignedTypeInt32)}, true, nil
	case 0x4f:
		return UnionOperation{Kind: OperationKindGe, B1: byte(SignedTypeUint32)}, true, nil
	case 0x50:
		return UnionOperation{Kind: OperationKindEqz, B1: 1}, true, nil
	case 0x51:
		return UnionOperation{Kind: OperationKindEq, B1: byte(SignedTypeInt64)}, true, nil
	case 0x52:
		return UnionOperation{Kind: OperationKindNe, B1: byte(SignedTypeInt64)}, true, nil
	case 0x53:
		return UnionOperation{Kind: OperationKindLt, B1: byte(SignedTypeInt64)}, true, nil
	case 0x54:
		return UnionOperation{Kind: OperationKindLt, B1: byte(SignedTypeUint64)}, true, nil
	case 0x55:
		return UnionOperation{Kind: OperationKindGt, B1: byte(SignedTypeInt64)}, true, nil
	case 0x56:
		return UnionOperation{Kind: OperationKindGt, B1: byte(SignedTypeUint64)}, true, nil
	case 0x57:
		return UnionOperation{Kind: OperationKindLe, B1: byte(SignedTypeInt64)}, true, nil
	case 0x58:
		return UnionOperation{Kind: OperationKindLe, B1: byte(SignedTypeUint64)}, true, nil
	case 0x59:
		return UnionOperation{Kind: OperationKindGe, B1: byte(SignedTypeInt64)}, true, nil
	case 0x5a:
		return UnionOperation{Kind: OperationKindGe, B1: byte(SignedTypeUint64)}, true, nil
	case 0x5b:
		return UnionOperation{Kind: OperationKindEq, B1: byte(SignedTypeFloat32)}, true, nil
	case 0x5c:
		return UnionOperation{Kind: OperationKindNe, B1: byte(SignedTypeFloat32)}, true, nil
	case 0x5d:
		return UnionOperation{Kind: OperationKindLt, B1: byte(SignedTypeFloat32)}, true, nil
	case 0x5e:
		return UnionOperation{Kind: OperationKindGt, B1: byte(SignedTypeFloat32)}, true, nil
	case 0x5f:
		return UnionOperation{Kind: OperationKindLe, B1: byte(SignedTypeFloat32)}, true, nil
	case 0x60:
		return UnionOperation{Kind: OperationKindGe, B1: byte(SignedTypeFloat32)}, true, nil
	case 0x61:
		return UnionOperation{Kind: OperationKindEq, B1: byte(SignedTypeFloat64)}, true, nil
	case 0x62:
		return UnionOperation{Kind: OperationKindNe, B1: byte(SignedTypeFloat64)}, true, nil
	case 0x63:
		return UnionOperation{Kind: OperationKindLt, B1: byte(SignedTypeFloat64)}, true, nil
	case 0x64:
		return UnionOperation{Kind: OperationKindGt, B1: byte(SignedTypeFloat64)}, true, nil
	case 0x65:
		return UnionOperation{Kind: OperationKindLe, B1: byte(SignedTypeFloat64)}, true, nil
	case 0x66:
		return UnionOperation{Kind: OperationKindGe, B1: byte(SignedTypeFloat64)}, true, nil
	case 0x67:
		return UnionOperation{Kind: OperationKindClz, B1: 0}, true, nil
	case 0x68:
		return UnionOperation{Kind: OperationKindCtz, B1: 0}, true, nil
	case 0x69:
		return UnionOperation{Kind: OperationKindPopcnt, B1: 0}, true, nil
	case 0x6a:
		return UnionOperation{Kind: OperationKindAdd, B1: 0}, true, nil
	case 0x6b:
		return UnionOperation{Kind: OperationKindSub, B1: 0}, true, nil
	case 0x6c:
		return UnionOperation{Kind: OperationKindMul, B1: 0}, true, nil
	case 0x6d:
		return UnionOperation{Kind: OperationKindDiv, B1: byte(SignedTypeInt32)}, true, nil
	case 0x6e:
		return UnionOperation{Kind: OperationKindDiv, B1: byte(SignedTypeUint32)}, true, nil
	case 0x6f:
		return UnionOperation{Kind: OperationKindRem, B1: byte(SignedInt32)}, true, nil
	case 0x70:
		return UnionOperation{Kind: OperationKindRem, B1: byte(SignedUint32)}, true, nil
	case 0x71:
		return UnionOperation{Kind: OperationKindAnd, B1: 0}, true, nil
	case 0x72:
		return UnionOperation{Kind: OperationKindOr, B1: 0}, true, nil
	case 0x73:
		return UnionOperation{Kind: OperationKindXor, B1: 0}, true, nil
	case 0x74:
		return UnionOperation{Kind: OperationKindShl, B1: 0}, true, nil
	case 0x75:
		return UnionOperation{Kind: OperationKindShr, B1: byte(SignedTypeInt32)}, true, nil
	case 0x76:
		return UnionOperation{Kind: OperationKindShr, B1: byte(SignedTypeUint32)}, true, nil
	case 0x77:
		return UnionOperation{Kind: OperationKindRotl, B1: 0}, true, nil
	case 0x78:
		return UnionOperation{Kind: OperationKindRotr, B1: 0}, true, nil
	case 0x79:
		return UnionOperation{Kind: OperationKindClz, B1: 1}, true, nil
	case 0x7a:
		return UnionOperation{Kind: OperationKindCtz, B1: 1}, true, nil
	case 0x7b:
		return UnionOperation{Kind: OperationKindPopcnt, B1: 1}, true, nil
	case 0x7c:
		return UnionOperation{Kind: OperationKindAdd, B1: 1}, true, nil
	case 0x7d:
		return UnionOperation{Kind: OperationKindSub, B1: 1}, true, nil
	case 0x7e:
		return UnionOperation{Kind: OperationKindMul, B1: 1}, true, nil
	case 0x7f:
		return UnionOperation{Kind: OperationKindDiv, B1: byte(SignedTypeInt64)}, true, nil
	case 0x80:
		return UnionOperation{Kind: OperationKindDiv, B1: byte(SignedTypeUint64)}, true, nil
	case 0x81:
		return UnionOperation{Kind: OperationKindRem, B1: byte(SignedInt64)}, true, nil
	case 0x82:
		return UnionOperation{Kind: OperationKindRem, B1: byte(SignedUint64)}, true, nil
	case 0x83:
		return UnionOperation{Kind: OperationKindAnd, B1: 1}, true, nil
	case 0x84:
		return UnionOperation{Kind: OperationKindOr, B1: 1}, true, nil
	case 0x85:
		return UnionOperation{Kind: OperationKindXor, B1: 1}, true, nil
	case 0x86:
		return UnionOperation{Kind: OperationKindShl, B1: 1}, true, nil
	case 0x87:
		return UnionOperation{Kind: OperationKindShr, B1: byte(SignedTypeInt64)}, true, nil
	case 0x88:
		return UnionOperation{Kind: OperationKindShr, B1: byte(SignedTypeUint64)}, true, nil
	case 0x89:
		return UnionOperation{Kind: OperationKindRotl, B1: 1}, true, nil
	case 0x8a:
		return UnionOperation{Kind: OperationKindRotr, B1: 1}, true, nil
	case 0x8b:
		return UnionOperation{Kind: OperationKindAbs, B1: 0}, true, nil
	case 0x8c:
		return UnionOperation{Kind: OperationKindNeg, B1: 0}, true, nil
	case 0x8d:
		return UnionOperation{Kind: OperationKindCeil, B1: 0}, true, nil
	case 0x8e:
		return UnionOperation{Kind: OperationKindFloor, B1: 0}, true, nil
	case 0x8f:
		return UnionOperation{Kind: OperationKindTrunc, B1: 0}, true, nil
	case 0x90:
		return UnionOperation{Kind: OperationKindNearest, B1: 0}, true, nil
	case 0x91:
		return UnionOperation{Kind: OperationKindSqrt, B1: 0}, true, nil
	case 0x92:
		return UnionOperation{Kind: OperationKindAdd, B1: 2}, true, nil
	case 0x93:
		return UnionOperation{Kind: OperationKindSub, B1: 2}, true, nil
	case 0x94:
		return UnionOperation{Kind: OperationKindMul, B1: 2}, true, nil
	case 0x95:
		return UnionOperation{Kind: OperationKindDiv, B1: byte(SignedTypeFloat32)}, true, nil
	case 0x96:
		return UnionOperation{Kind: OperationKindMin, B1: 0}, true, nil
	case 0x97:
		return UnionOperation{Kind: OperationKindMax, B1: 0}, true, nil
	case 0x98:
		return UnionOperation{Kind: OperationKindCopysign, B1: 0}, true, nil
	case 0x99:
		return UnionOperation{Kind: OperationKindAbs, B1: 1}, true, nil
	case 0x9a:
		return UnionOperation{Kind: OperationKindNeg, B1: 1}, true, nil
	case 0x9b:
		return UnionOperation{Kind: OperationKindCeil, B1: 1}, true, nil
	case 0x9c:
		return UnionOperation{Kind: OperationKindFloor, B1: 1}, true, nil
	case 0x9d:
		return UnionOperation{Kind: OperationKindTrunc, B1: 1}, true, nil
	case 0x9e:
		return UnionOperation{Kind: OperationKindNearest, B1: 1}, true, nil
	case 0x9f:
		return UnionOperation{Kind: OperationKindSqrt, B1: 1}, true, nil
	case 0xa0:
		return UnionOperation{Kind: OperationKindAdd, B1: 3}, true, nil
	case 0xa1:
		return UnionOperation{Kind: OperationKindSub, B1: 3}, true, nil
	case 0xa2:
		return UnionOperation{Kind: OperationKindMul, B1: 3}, true, nil
	case 0xa3:
		return UnionOperation{Kind: OperationKindDiv, B1: byte(SignedTypeFloat64)}, true, nil
	case 0xa4:
		return UnionOperation{Kind: OperationKindMin, B1: 1}, true, nil
	case 0xa5:
		return UnionOperation{Kind: OperationKindMax, B1: 1}, true, nil
	case 0xa6:
		return UnionOperation{Kind: OperationKindCopysign, B1: 1}, true, nil
	case 0xa7:
		return UnionOperation{Kind: OperationKindI32WrapFromI64}, true, nil
	case 0xa8:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 0, B2: 0, B3: 1}, true, nil
	case 0xa9:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 0, B2: 0, B3: 0}, true, nil
	case 0xaa:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 0, B2: 1, B3: 1}, true, nil
	case 0xab:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 0, B2: 1, B3: 0}, true, nil
	case 0xac:
		return UnionOperation{Kind: OperationKindExtend, B1: 1}, true, nil
	case 0xad:
		return UnionOperation{Kind: OperationKindExtend, B1: 0}, true, nil
	case 0xae:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 1, B2: 0, B3: 1}, true, nil
	case 0xaf:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 1, B2: 0, B3: 0}, true, nil
	case 0xb0:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 1, B2: 1, B3: 1}, true, nil
	case 0xb1:
		return UnionOperation{Kind: OperationKindITruncFromF, B1: 1, B2: 1, B3: 0}, true, nil
	case 0xb2:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 0, B2: 0, B3: 1}, true, nil
	case 0xb3:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 0, B2: 0, B3: 0}, true, nil
	case 0xb4:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 0, B2: 1, B3: 1}, true, nil
	case 0xb5:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 0, B2: 1, B3: 0}, true, nil
	case 0xb6:
		return UnionOperation{Kind: OperationKindF32DemoteFromF64}, true, nil
	case 0xb7:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 1, B2: 0, B3: 1}, true, nil
	case 0xb8:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 1, B2: 0, B3: 0}, true, nil
	case 0xb9:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 1, B2: 1, B3: 1}, true, nil
	case 0xba:
		return UnionOperation{Kind: OperationKindFConvertFromI, B1: 1, B2: 1, B3: 0}, true, nil
	case 0xbb:
		return UnionOperation{Kind: OperationKindF64PromoteFromF32}, true, nil
	case 0xbc, 0xbd, 0xbe, 0xbf:
		return UnionOperation{}, false, nil
	case 0xc0:
		return UnionOperation{Kind: OperationKindSignExtend32From8}, true, nil
	case 0xc1:
		return UnionOperation{Kind: OperationKindSignExtend32From16}, true, nil
	case 0xc2:
		return UnionOperation{Kind: OperationKindSignExtend64From8}, true, nil
	case 0xc3:
		return UnionOperation{Kind: OperationKindSignExtend64From16}, true, nil
	case 0xc4:
		return UnionOperation{Kind: OperationKindSignExtend64From32}, true, nil
	default:
		return UnionOperation{}, false, fmt.Errorf("unsupported opcode 0x%02x", op)
	}
}

// compileNumeric lowers a single-byte comparison/arithmetic/conversion
// opcode via ClassifyNumeric. None of these opcodes carry immediates, so
// this only ever returns offset unchanged.
func (c *compiler) compileNumeric(op byte, offset uint64) (uint64, error) {
	shape, ok, err := ClassifyNumeric(op)
	if err != nil {
		return 0, err
	}
	if ok {
		c.emit(shape)
	}
	return offset, nil
}
