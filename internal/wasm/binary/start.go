package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeStartSection decodes the start section: a single function index
// whose type must be the nullary ()->() signature.
func decodeStartSection(m *wasm.Module, body []byte) error {
	idx, rest, err := readU32(body)
	if err != nil {
		return fmt.Errorf("start function index: %w", err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("start section: trailing bytes")
	}
	if idx >= m.NumFuncs() {
		return fmt.Errorf("start function %d: out of range", idx)
	}
	ft, err := m.TypeOfFunc(idx)
	if err != nil {
		return err
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function %d must have type ()->() ", idx)
	}
	m.StartSection = &idx
	return nil
}
