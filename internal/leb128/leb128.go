// Package leb128 implements the LEB128 variable-length integer encoding
// used throughout the WebAssembly binary format: section and vector counts,
// type/function/memory/table/global indices, i32.const/i64.const
// immediates, and memory-access offset/align immediates.
package leb128

import (
	"fmt"
	"io"
)

// maxVarint32Bytes is the maximum byte length of a 32-bit LEB128 value:
// ceil(32/7) = 5 bytes of 7 payload bits each, the last with 4 used bits.
const maxVarint32Bytes = 5

// maxVarint64Bytes is the maximum byte length of a 64-bit LEB128 value:
// ceil(64/7) = 10 bytes, the last with 1 used bit.
const maxVarint64Bytes = 10

var (
	errTooLong  = fmt.Errorf("invalid LEB128 encoding: integer representation too long")
	errTooLarge = fmt.Errorf("invalid LEB128 encoding: integer too large")
)

// LoadUint32 decodes an unsigned 32-bit LEB128 value from the front of buf,
// returning the value, the number of bytes consumed, and an error if buf is
// truncated or the encoding overflows 32 bits.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	var result uint32
	var shift uint
	for i := 0; i < maxVarint32Bytes; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if shift == 28 && b&0xf0 != 0 {
			// Only the low 4 bits of the 5th byte fit in 32 bits; any of
			// the high 4 bits (including a set continuation bit) overflows.
			return 0, 0, errTooLong
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, errTooLarge
}

// LoadUint64 is the 64-bit analogue of LoadUint32.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxVarint64Bytes; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if shift == 63 && b&0xfe != 0 {
			// Only bit 0 of the 10th byte fits in 64 bits.
			return 0, 0, errTooLong
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, errTooLarge
}

// LoadInt32 decodes a signed 32-bit LEB128 value, sign-extending from the
// terminal byte's sign bit.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := loadSigned(buf, 32)
	return int32(v), n, err
}

// LoadInt64 decodes a signed 64-bit LEB128 value.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return loadSigned(buf, 64)
}

// loadSigned implements the shared signed-LEB128 decode for a value of the
// given bit width. Bytes beyond the width boundary ("extra bits", when
// width isn't a multiple of 7) must all equal the sign bit of the in-width
// value; any other pattern is "integer too large".
func loadSigned(buf []byte, width uint) (int64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result int64
	var shift uint
	for i := uint(0); i < maxBytes; i++ {
		if i >= uint(len(buf)) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		payload := int64(b & 0x7f)
		if shift+7 > width {
			if err := checkSignedOverflow(payload, shift, width); err != nil {
				return 0, 0, err
			}
		}
		result |= payload << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < width && payload&0x40 != 0 {
				result |= -1 << shift
			}
			return result, uint64(i + 1), nil
		}
	}
	return 0, 0, errTooLarge
}

// checkSignedOverflow validates the "extra" bits of a terminal byte that
// crosses the width boundary: the bits of payload at or above position
// (width-shift) must all equal the in-width sign bit, the bit just below
// that boundary (or the sign of the value decoded so far, if the whole
// byte lies beyond width).
func checkSignedOverflow(payload int64, shift, width uint) error {
	inWidthBits := uint(0)
	if width > shift {
		inWidthBits = width - shift
	}
	if inWidthBits >= 7 {
		return nil
	}
	extraBits := 7 - inWidthBits
	var signBit int64
	if inWidthBits == 0 {
		// The entire byte lies beyond width; nothing in it establishes the
		// sign, so only an all-zero or all-one byte is self-consistent.
		allOnes := int64(1)<<7 - 1
		if payload != 0 && payload != allOnes {
			return errTooLong
		}
		return nil
	}
	signBit = (payload >> (inWidthBits - 1)) & 1
	extra := payload >> inWidthBits
	var expect int64
	if signBit != 0 {
		expect = int64(1)<<extraBits - 1
	}
	if extra != expect {
		return errTooLong
	}
	return nil
}

// EncodeInt32 encodes v as a signed LEB128 byte sequence.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as a signed LEB128 byte sequence.
func EncodeInt64(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// EncodeUint32 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint64(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// DecodeUint32 decodes an unsigned 32-bit LEB128 value from r.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	var result uint32
	var shift uint
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		n++
		if shift == 28 && b&0xf0 != 0 {
			return 0, 0, errTooLong
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, n, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, 0, errTooLarge
		}
	}
}

// DecodeInt32 decodes a signed 32-bit LEB128 value from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt64 decodes a signed 64-bit LEB128 value from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64)
}

// DecodeInt33AsInt64 decodes a signed 33-bit LEB128 value (the s33 block
// type / memory64 immediate encoding) into an int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33)
}

func decodeSigned(r io.ByteReader, width uint) (int64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result int64
	var shift uint
	var n uint64
	for i := uint(0); i < maxBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		n++
		payload := int64(b & 0x7f)
		if shift+7 > width {
			if err := checkSignedOverflow(payload, shift, width); err != nil {
				return 0, 0, err
			}
		}
		result |= payload << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < width && payload&0x40 != 0 {
				result |= -1 << shift
			}
			return result, n, nil
		}
	}
	return 0, 0, errTooLarge
}
