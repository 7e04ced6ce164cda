package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeDataCountSection decodes the data count section: a single u32
// announcing how many entries the later data section will contain. Its
// presence (not just its value) matters: bulk-memory's memory.init
// instruction requires it.
func decodeDataCountSection(m *wasm.Module, body []byte) error {
	n, rest, err := readU32(body)
	if err != nil {
		return fmt.Errorf("data count: %w", err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("data count section: trailing bytes")
	}
	m.HasDataCount = true
	m.DataCountSection = n
	return nil
}

// decodeDataSection decodes the data section's three segment forms: active
// against memory 0, passive, and active against an explicit memory index.
// If a data count section was present, its value must
// match the number of entries decoded here.
func decodeDataSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("data count: %w", err)
	}
	if m.HasDataCount && n != m.DataCountSection {
		return fmt.Errorf("data section count (%d) does not match data count section (%d)", n, m.DataCountSection)
	}

	mem, hasMem := m.SoleMemory()
	offsetType := wasm.ValueType(wasm.ValueTypeI32)
	if hasMem && mem.Limits.Index64() {
		offsetType = wasm.ValueTypeI64
	}

	for i := uint32(0); i < n; i++ {
		flag, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("data[%d] flag: %w", i, err)
		}
		rest = r

		seg := wasm.DataSegment{}
		switch flag {
		case 0:
			seg.Mode = wasm.DataSegmentModeActiveMem0
			ce, r, err := decodeConstExpr(rest)
			if err != nil {
				return fmt.Errorf("data[%d] offset: %w", i, err)
			}
			rest = r
			if err := validateGlobalGetSource(m, ce); err != nil {
				return fmt.Errorf("data[%d]: %w", i, err)
			}
			if t := constExprType(ce); t != offsetType {
				return fmt.Errorf("data[%d]: offset expression must produce %s, got %s",
					i, wasm.ValueTypeName(offsetType), wasm.ValueTypeName(t))
			}
			seg.OffsetExpr = ce
		case 1:
			seg.Mode = wasm.DataSegmentModePassive
		case 2:
			seg.Mode = wasm.DataSegmentModeActiveExplicit
			memIdx, r, err := readU32(rest)
			if err != nil {
				return fmt.Errorf("data[%d] memory index: %w", i, err)
			}
			if memIdx != 0 {
				return fmt.Errorf("data[%d]: memory index must be 0", i)
			}
			rest = r
			seg.MemoryIndex = memIdx
			ce, r, err := decodeConstExpr(rest)
			if err != nil {
				return fmt.Errorf("data[%d] offset: %w", i, err)
			}
			rest = r
			if err := validateGlobalGetSource(m, ce); err != nil {
				return fmt.Errorf("data[%d]: %w", i, err)
			}
			if t := constExprType(ce); t != offsetType {
				return fmt.Errorf("data[%d]: offset expression must produce %s, got %s",
					i, wasm.ValueTypeName(offsetType), wasm.ValueTypeName(t))
			}
			seg.OffsetExpr = ce
		default:
			return fmt.Errorf("data[%d]: invalid data segment flag %d", i, flag)
		}

		init, r, err := readBytes(rest)
		if err != nil {
			return fmt.Errorf("data[%d] init: %w", i, err)
		}
		rest = r
		seg.Init = init
		// reloc.DATA offsets are relative to the section body; record where
		// this segment's payload starts so fixups can be mapped back to it.
		seg.SectionOffset = uint32(len(body) - len(rest) - len(init))

		m.DataSection = append(m.DataSection, seg)
	}
	return nil
}
