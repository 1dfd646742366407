// Package leb128 implements LEB128 variable-length integer encoding used
// throughout the WebAssembly binary format.
package leb128

import (
	"fmt"
	"io"
)

const maxVarintLen64 = 10

// DecodeUint32 reads an unsigned LEB128-encoded uint32 from r.
func DecodeUint32(r io.ByteReader) (uint32, uint32, error) {
	v, n, err := decodeUint(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned LEB128-encoded uint64 from r.
func DecodeUint64(r io.ByteReader) (uint64, uint32, error) {
	return decodeUint(r, 64)
}

func decodeUint(r io.ByteReader, bitSize int) (uint64, uint32, error) {
	var result uint64
	var shift uint
	var read uint32
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, read, fmt.Errorf("readByte failed: %w", err)
		}
		read++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift+7 < uint(bitSize) || b <= (1<<(uint(bitSize)-shift)-1) {
				break
			}
			return 0, read, fmt.Errorf("overflow for uint%d", bitSize)
		}
		shift += 7
		if shift >= 64 {
			return 0, read, fmt.Errorf("leb128 integer too large")
		}
	}
	return result, read, nil
}

// DecodeInt32 reads a signed LEB128-encoded int32 from r.
func DecodeInt32(r io.ByteReader) (int32, uint32, error) {
	v, n, err := decodeInt(r, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed LEB128-encoded int64 from r.
func DecodeInt64(r io.ByteReader) (int64, uint32, error) {
	return decodeInt(r, 64)
}

func decodeInt(r io.ByteReader, bitSize int) (int64, uint32, error) {
	var result int64
	var shift int
	var read uint32
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, read, fmt.Errorf("readByte failed: %w", err)
		}
		read++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 64 {
			return 0, read, fmt.Errorf("leb128 integer too large")
		}
	}
	if shift < bitSize && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, read, nil
}

// EncodeUint32 encodes v as unsigned LEB128.
func EncodeUint32(v uint32) []byte { return EncodeUint64(uint64(v)) }

// EncodeUint64 encodes v as unsigned LEB128.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// EncodeInt32 encodes v as signed LEB128.
func EncodeInt32(v int32) []byte { return EncodeInt64(int64(v)) }

// EncodeInt64 encodes v as signed LEB128.
func EncodeInt64(v int64) []byte {
	out := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}
