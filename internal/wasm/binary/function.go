package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeFunctionSection decodes the function section: one type index per
// module-defined function. The corresponding bodies are filled in later by
// decodeCodeSection, once both section lengths are known to agree.
func decodeFunctionSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("function count: %w", err)
	}
	m.FunctionSection = make([]wasm.Function, n)
	for i := uint32(0); i < n; i++ {
		typeIdx, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("function[%d] type index: %w", i, err)
		}
		if typeIdx >= uint32(len(m.TypeSection)) {
			return fmt.Errorf("function[%d]: unknown type %d", i, typeIdx)
		}
		m.FunctionSection[i].TypeIndex = typeIdx
		m.FunctionSection[i].Type = m.TypeSection[typeIdx]
		rest = r
	}
	return nil
}
