package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeRelocSection decodes a "reloc.CODE" or "reloc.DATA" custom
// section: relocation entries applying against the code or data section,
// as recorded by a linking toolchain, used only by internal/compiler's
// no-sandbox-mode fixups. Each entry is validated here so a fixup never
// patches out of bounds: offsets must be monotonically non-decreasing,
// offset plus the type's encoded width must stay inside the target
// section's body, and the symbol index must name a decoded symbol.
func decodeRelocSection(m *wasm.Module, body []byte, targetBodySize int) ([]wasm.Relocation, error) {
	_, rest, err := readU32(body) // target section index; the section kind is implied by the custom name
	if err != nil {
		return nil, fmt.Errorf("reloc target section: %w", err)
	}
	n, rest, err := readCountVec(rest)
	if err != nil {
		return nil, fmt.Errorf("reloc count: %w", err)
	}
	out := make([]wasm.Relocation, 0, n)
	var prevOffset uint32
	for i := uint32(0); i < n; i++ {
		typByte, r, err := readByte(rest)
		if err != nil {
			return nil, fmt.Errorf("reloc[%d] type: %w", i, err)
		}
		rest = r
		typ := wasm.RelocType(typByte)
		width, ok := typ.EncodedWidth()
		if !ok {
			return nil, fmt.Errorf("reloc[%d]: unknown relocation type %d", i, typByte)
		}

		offset, r, err := readU32(rest)
		if err != nil {
			return nil, fmt.Errorf("reloc[%d] offset: %w", i, err)
		}
		rest = r
		index, r, err := readU32(rest)
		if err != nil {
			return nil, fmt.Errorf("reloc[%d] index: %w", i, err)
		}
		rest = r

		if i > 0 && offset < prevOffset {
			return nil, fmt.Errorf("reloc[%d]: relocations not in offset order", i)
		}
		prevOffset = offset
		if uint64(offset)+uint64(width) > uint64(targetBodySize) {
			return nil, fmt.Errorf("reloc[%d]: invalid relocation offset %d", i, offset)
		}
		if int(index) >= len(m.Symbols) {
			return nil, fmt.Errorf("reloc[%d]: unknown symbol %d", i, index)
		}

		rel := wasm.Relocation{Type: typ, Offset: offset, Index: index}
		if relocHasAddend(typ) {
			addend, r2, err := readS32(rest)
			if err != nil {
				return nil, fmt.Errorf("reloc[%d] addend: %w", i, err)
			}
			rest = r2
			rel.Addend = addend
		}
		out = append(out, rel)
	}
	return out, nil
}

func relocHasAddend(t wasm.RelocType) bool {
	switch t {
	case wasm.RelocTableIndexSLEB, wasm.RelocTableIndexI32,
		wasm.RelocMemoryAddrLEB, wasm.RelocMemoryAddrSLEB, wasm.RelocMemoryAddrI32,
		wasm.RelocFunctionOffsetI32, wasm.RelocSectionOffsetI32,
		wasm.RelocMemoryAddrLEB64, wasm.RelocMemoryAddrSLEB64, wasm.RelocMemoryAddrI64,
		wasm.RelocTableIndexSLEB64, wasm.RelocTableIndexI64:
		return true
	default:
		return false
	}
}
