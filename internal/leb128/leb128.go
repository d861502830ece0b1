// Package leb128 decodes the variable-length integers used for Wasm
// instruction immediates. The branch-target pre-computation pass (§4.2)
// and the wazeroir compiler both advance over immediates with the
// DecodeXxx functions, the same way the teacher's internal/leb128 package
// is consulted from both the decoder and the wazeroir compiler.
package leb128

import "fmt"

// DecodeUint32 reads an unsigned LEB128 value from buf starting at offset,
// returning the value and the offset of the first byte after it.
func DecodeUint32(buf []byte, offset uint64) (uint32, uint64, error) {
	v, n, err := decodeUint(buf, offset, 32)
	return uint32(v), n, err
}

// DecodeInt32 reads a signed LEB128 value into an int32.
func DecodeInt32(buf []byte, offset uint64) (int32, uint64, error) {
	v, n, err := decodeInt(buf, offset, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed LEB128 value into an int64.
func DecodeInt64(buf []byte, offset uint64) (int64, uint64, error) {
	return decodeInt(buf, offset, 64)
}

// DecodeUint64 reads an unsigned LEB128 value into a uint64.
func DecodeUint64(buf []byte, offset uint64) (uint64, uint64, error) {
	return decodeUint(buf, offset, 64)
}

// Skip advances past a LEB128 varint (signed or unsigned, same encoding)
// without materializing its value, returning the offset just past it.
func Skip(buf []byte, offset uint64) (uint64, error) {
	for i := offset; i < uint64(len(buf)); i++ {
		if buf[i]&0x80 == 0 {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("leb128: unterminated varint at offset %d", offset)
}

func decodeUint(buf []byte, offset uint64, bits int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	i := offset
	for {
		if i >= uint64(len(buf)) {
			return 0, 0, fmt.Errorf("leb128: unexpected EOF at offset %d", i)
		}
		b := buf[i]
		i++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= uint(bits)+7 {
			return 0, 0, fmt.Errorf("leb128: varint too long at offset %d", offset)
		}
	}
	return result, i, nil
}

func decodeInt(buf []byte, offset uint64, bits int) (int64, uint64, error) {
	var result int64
	var shift uint
	i := offset
	var b byte
	for {
		if i >= uint64(len(buf)) {
			return 0, 0, fmt.Errorf("leb128: unexpected EOF at offset %d", i)
		}
		b = buf[i]
		i++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= uint(bits) {
			return 0, 0, fmt.Errorf("leb128: varint too long at offset %d", offset)
		}
	}
	if shift < uint(bits) && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, i, nil
}
