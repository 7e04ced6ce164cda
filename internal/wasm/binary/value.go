// Package binary implements the per-section decoders (the module
// builder): it turns the section sequence produced by
// internal/wasmbin into a fully resolved internal/wasm.Module.
package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeValueType reads a single value-type byte and validates it against
// the set this loader understands (numeric types, v128, funcref).
func decodeValueType(b []byte) (wasm.ValueType, []byte, error) {
	if len(b) < 1 {
		return 0, nil, fmt.Errorf("unexpected end of value type")
	}
	switch t := b[0]; t {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64,
		wasm.ValueTypeV128, wasm.ValueTypeFuncref:
		return t, b[1:], nil
	default:
		return 0, nil, fmt.Errorf("invalid value type: 0x%x", t)
	}
}

// decodeValueTypeVector reads a leb128 count followed by that many value
// types.
func decodeValueTypeVector(b []byte) ([]wasm.ValueType, []byte, error) {
	n, rest, err := readCountVec(b)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, rest, nil
	}
	out := make([]wasm.ValueType, n)
	for i := range out {
		t, r, err := decodeValueType(rest)
		if err != nil {
			return nil, nil, err
		}
		out[i] = t
		rest = r
	}
	return out, rest, nil
}
