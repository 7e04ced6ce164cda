package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeTableSection decodes the table section. Only zero or one entry is
// legal once the import section's count is taken into account.
func decodeTableSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("table count: %w", err)
	}
	if m.ImportTableCount+n > 1 {
		return fmt.Errorf("multiple tables are not supported")
	}
	for i := uint32(0); i < n; i++ {
		elemType, r, err := readByte(rest)
		if err != nil {
			return fmt.Errorf("table[%d] element type: %w", i, err)
		}
		if elemType != wasm.ValueTypeFuncref {
			return fmt.Errorf("table[%d]: element type must be funcref", i)
		}
		rest = r
		lim, r, err := decodeLimits(rest)
		if err != nil {
			return fmt.Errorf("table[%d] limits: %w", i, err)
		}
		rest = r
		t := wasm.Table{Limits: lim}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("table[%d]: %w", i, err)
		}
		m.TableSection = append(m.TableSection, t)
	}
	return nil
}

// decodeMemorySection decodes the memory section, subject to the same
// at-most-one-instance rule as tables.
func decodeMemorySection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("memory count: %w", err)
	}
	if m.ImportMemoryCount+n > 1 {
		return fmt.Errorf("multiple memories are not supported")
	}
	for i := uint32(0); i < n; i++ {
		lim, r, err := decodeLimits(rest)
		if err != nil {
			return fmt.Errorf("memory[%d] limits: %w", i, err)
		}
		rest = r
		mem := wasm.Memory{Limits: lim}
		if err := mem.Validate(); err != nil {
			return fmt.Errorf("memory[%d]: %w", i, err)
		}
		m.MemorySection = append(m.MemorySection, mem)
	}
	return nil
}
