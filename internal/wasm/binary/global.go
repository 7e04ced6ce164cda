package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeGlobalSection decodes the global section: a (type, mutability,
// init expression) triple per entry, with the init expression's type
// checked against the declared global type.
func decodeGlobalSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("global count: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		vt, r, err := decodeValueType(rest)
		if err != nil {
			return fmt.Errorf("global[%d] type: %w", i, err)
		}
		rest = r
		mutByte, r, err := readByte(rest)
		if err != nil {
			return fmt.Errorf("global[%d] mutability: %w", i, err)
		}
		if mutByte > 1 {
			return fmt.Errorf("global[%d]: invalid mutability: 0x%x", i, mutByte)
		}
		rest = r

		ce, r, err := decodeConstExpr(rest)
		if err != nil {
			return fmt.Errorf("global[%d] init: %w", i, err)
		}
		rest = r
		if err := validateGlobalGetSource(m, ce); err != nil {
			return fmt.Errorf("global[%d]: %w", i, err)
		}
		if ct := constExprType(ce); ct != vt && ct != wasm.ValueTypeAny {
			return fmt.Errorf("global[%d]: init expression type %s does not match declared type %s",
				i, wasm.ValueTypeName(ct), wasm.ValueTypeName(vt))
		}

		m.GlobalSection = append(m.GlobalSection, wasm.Global{
			Type:    vt,
			Mutable: mutByte == 1,
			Init:    ce,
		})
	}
	return nil
}
