package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeExportSection decodes the export section. Export names must be
// unique within the module; each entry's index must fall within the
// combined import+definition space of its kind.
func decodeExportSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("export count: %w", err)
	}
	seen := make(map[string]struct{}, n)
	for i := uint32(0); i < n; i++ {
		name, r, err := readName(rest)
		if err != nil {
			return fmt.Errorf("export[%d] name: %w", i, err)
		}
		rest = r
		if _, dup := seen[name]; dup {
			return fmt.Errorf("export[%d]: duplicate export name %q", i, name)
		}
		seen[name] = struct{}{}

		kind, r, err := readByte(rest)
		if err != nil {
			return fmt.Errorf("export[%d] kind: %w", i, err)
		}
		rest = r
		idx, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("export[%d] index: %w", i, err)
		}
		rest = r

		var bound wasm.Index
		switch kind {
		case wasm.ExternTypeFunc:
			bound = m.NumFuncs()
		case wasm.ExternTypeTable:
			bound = m.NumTables()
		case wasm.ExternTypeMemory:
			bound = m.NumMemories()
		case wasm.ExternTypeGlobal:
			bound = m.NumGlobals()
		default:
			return fmt.Errorf("export[%d]: invalid export kind: 0x%x", i, kind)
		}
		if idx >= bound {
			return fmt.Errorf("export[%d] %q: index %d out of range (have %d)", i, name, idx, bound)
		}

		m.ExportSection = append(m.ExportSection, wasm.Export{Type: kind, Name: name, Index: idx})
	}
	return nil
}
