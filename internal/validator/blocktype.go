package validator

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeBlockType reads a block/loop/if immediate: either 0x40 (empty),
// one of the value-type bytes (single result), or a signed 33-bit type
// index into the module's type section. typeIdx is -1 unless the multi-value type-index form
// was used.
func decodeBlockType(m *wasm.Module, b []byte) (params, results []wasm.ValueType, typeIdx int64, consumed int, err error) {
	br := &byteReader{b: b}
	v, n, err := leb128.DecodeInt33AsInt64(br)
	if err != nil {
		return nil, nil, -1, 0, fmt.Errorf("block type: %w", err)
	}
	if v >= 0 {
		if v >= int64(len(m.TypeSection)) {
			return nil, nil, -1, 0, fmt.Errorf("block type: unknown type %d", v)
		}
		ft := m.TypeSection[v]
		return ft.Params, ft.Results, v, int(n), nil
	}
	vt := wasm.ValueType(v & 0x7f)
	if vt == wasm.ValueTypeVoid {
		return nil, nil, -1, int(n), nil
	}
	switch vt {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64, wasm.ValueTypeV128, wasm.ValueTypeFuncref:
		return nil, []wasm.ValueType{vt}, -1, int(n), nil
	default:
		return nil, nil, -1, 0, fmt.Errorf("invalid block type: 0x%x", vt)
	}
}

// byteReader adapts a byte slice to the io.ByteReader interface
// leb128.DecodeInt33AsInt64 expects.
type byteReader struct {
	b []byte
}

func (r *byteReader) ReadByte() (byte, error) {
	if len(r.b) == 0 {
		return 0, fmt.Errorf("unexpected end of block type")
	}
	c := r.b[0]
	r.b = r.b[1:]
	return c, nil
}
