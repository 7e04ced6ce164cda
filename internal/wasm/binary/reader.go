package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasmbin"
)

// readCountVec reads the leb128 u32 element count that begins almost
// every vector-shaped field in the binary format.
func readCountVec(b []byte) (uint32, []byte, error) {
	n, k, err := leb128.LoadUint32(b)
	if err != nil {
		return 0, nil, fmt.Errorf("read vector count: %w", err)
	}
	return n, b[k:], nil
}

func readByte(b []byte) (byte, []byte, error) {
	if len(b) < 1 {
		return 0, nil, fmt.Errorf("unexpected end of section")
	}
	return b[0], b[1:], nil
}

func readU32(b []byte) (uint32, []byte, error) {
	v, k, err := leb128.LoadUint32(b)
	if err != nil {
		return 0, nil, err
	}
	return v, b[k:], nil
}

func readU64(b []byte) (uint64, []byte, error) {
	v, k, err := leb128.LoadUint64(b)
	if err != nil {
		return 0, nil, err
	}
	return v, b[k:], nil
}

func readS32(b []byte) (int32, []byte, error) {
	v, k, err := leb128.LoadInt32(b)
	if err != nil {
		return 0, nil, err
	}
	return v, b[k:], nil
}

func readS64(b []byte) (int64, []byte, error) {
	v, k, err := leb128.LoadInt64(b)
	if err != nil {
		return 0, nil, err
	}
	return v, b[k:], nil
}

// readName reads a length-prefixed, UTF-8-validated string (module/field
// names, export names, custom-section sub-names).
func readName(b []byte) (string, []byte, error) {
	n, rest, err := readCountVec(b)
	if err != nil {
		return "", nil, fmt.Errorf("read name length: %w", err)
	}
	if uint64(n) > uint64(len(rest)) {
		return "", nil, fmt.Errorf("unexpected end of name")
	}
	raw := rest[:n]
	if err := wasmbin.ValidateUTF8(raw); err != nil {
		return "", nil, err
	}
	return string(raw), rest[n:], nil
}

// readBytes reads a length-prefixed raw byte string (data segment
// contents).
func readBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := readCountVec(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(n) > uint64(len(rest)) {
		return nil, nil, fmt.Errorf("unexpected end of data")
	}
	return rest[:n], rest[n:], nil
}
