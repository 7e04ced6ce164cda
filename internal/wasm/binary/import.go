package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeImportSection decodes the import section into m.ImportSection,
// tallying the per-kind counts used throughout the rest of the loader to
// translate between "import space" and "definition space" indices. A module may import at most one table and one memory, mirroring
// the single-instance invariant placed on their respective definitions.
func decodeImportSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("import count: %w", err)
	}
	m.ImportSection = make([]wasm.Import, 0, n)
	for i := uint32(0); i < n; i++ {
		mod, r, err := readName(rest)
		if err != nil {
			return fmt.Errorf("import[%d] module name: %w", i, err)
		}
		rest = r
		name, r, err := readName(rest)
		if err != nil {
			return fmt.Errorf("import[%d] field name: %w", i, err)
		}
		rest = r

		kind, r, err := readByte(rest)
		if err != nil {
			return fmt.Errorf("import[%d] kind: %w", i, err)
		}
		rest = r

		imp := wasm.Import{Type: kind, Module: mod, Name: name}
		switch kind {
		case wasm.ExternTypeFunc:
			typeIdx, r, err := readU32(rest)
			if err != nil {
				return fmt.Errorf("import[%d] type index: %w", i, err)
			}
			if typeIdx >= uint32(len(m.TypeSection)) {
				return fmt.Errorf("import[%d]: unknown type %d", i, typeIdx)
			}
			imp.DescFunc = typeIdx
			rest = r
			m.ImportFunctionCount++
		case wasm.ExternTypeTable:
			if m.ImportTableCount > 0 {
				return fmt.Errorf("import[%d]: multiple tables are not supported", i)
			}
			elemType, r, err := readByte(rest)
			if err != nil {
				return fmt.Errorf("import[%d] table element type: %w", i, err)
			}
			if elemType != wasm.ValueTypeFuncref {
				return fmt.Errorf("import[%d]: table element type must be funcref", i)
			}
			rest = r
			lim, r, err := decodeLimits(rest)
			if err != nil {
				return fmt.Errorf("import[%d] table limits: %w", i, err)
			}
			rest = r
			imp.DescTable = wasm.Table{Limits: lim}
			if err := imp.DescTable.Validate(); err != nil {
				return fmt.Errorf("import[%d]: %w", i, err)
			}
			m.ImportTableCount++
		case wasm.ExternTypeMemory:
			if m.ImportMemoryCount > 0 {
				return fmt.Errorf("import[%d]: multiple memories are not supported", i)
			}
			lim, r, err := decodeLimits(rest)
			if err != nil {
				return fmt.Errorf("import[%d] memory limits: %w", i, err)
			}
			rest = r
			imp.DescMem = wasm.Memory{Limits: lim}
			if err := imp.DescMem.Validate(); err != nil {
				return fmt.Errorf("import[%d]: %w", i, err)
			}
			m.ImportMemoryCount++
		case wasm.ExternTypeGlobal:
			vt, r, err := decodeValueType(rest)
			if err != nil {
				return fmt.Errorf("import[%d] global type: %w", i, err)
			}
			rest = r
			mutByte, r, err := readByte(rest)
			if err != nil {
				return fmt.Errorf("import[%d] global mutability: %w", i, err)
			}
			if mutByte > 1 {
				return fmt.Errorf("import[%d]: invalid global mutability: 0x%x", i, mutByte)
			}
			rest = r
			imp.DescGlobal = wasm.GlobalType{ValType: vt, Mutable: mutByte == 1}
			m.ImportGlobalCount++
		default:
			return fmt.Errorf("import[%d]: invalid import kind: 0x%x", i, kind)
		}

		m.ImportSection = append(m.ImportSection, imp)
	}
	return nil
}
