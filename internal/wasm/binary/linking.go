package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

const (
	linkingSubsectionSegmentInfo = 5
	linkingSubsectionSymbolTable = 8
)

// decodeLinkingSection decodes the custom "linking" section: the
// object-file symbol table and segment-info metadata lld-compatible
// toolchains attach to a relocatable module, consumed only by
// internal/compiler's no-sandbox-mode
// relocation fixups.
func decodeLinkingSection(m *wasm.Module, body []byte) error {
	version, rest, err := readU32(body)
	if err != nil {
		return fmt.Errorf("linking section version: %w", err)
	}
	if version != 2 {
		return fmt.Errorf("unsupported linking section version: %d", version)
	}

	for len(rest) > 0 {
		id, r, err := readByte(rest)
		if err != nil {
			return fmt.Errorf("linking sub-section id: %w", err)
		}
		size, r, err := readU32(r)
		if err != nil {
			return fmt.Errorf("linking sub-section size: %w", err)
		}
		if uint64(size) > uint64(len(r)) {
			return fmt.Errorf("linking sub-section: truncated")
		}
		payload := r[:size]
		rest = r[size:]

		switch id {
		case linkingSubsectionSymbolTable:
			if err := decodeSymbolTable(m, payload); err != nil {
				return err
			}
		case linkingSubsectionSegmentInfo:
			if err := decodeSegmentInfo(m, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeSymbolTable(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("symbol count: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		kindByte, r, err := readByte(rest)
		if err != nil {
			return fmt.Errorf("symbol[%d] kind: %w", i, err)
		}
		rest = r
		flags, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("symbol[%d] flags: %w", i, err)
		}
		rest = r

		sym := wasm.Symbol{Kind: wasm.SymbolKind(kindByte), Flags: flags}
		const bindingBits = wasm.SymbolFlagBindingWeak | wasm.SymbolFlagBindingLocal
		if flags&bindingBits == bindingBits {
			// The binding bits are mutually exclusive; reading them both
			// set means a corrupt table, not a binding choice.
			return fmt.Errorf("symbol[%d]: invalid binding flags 0x%x", i, flags)
		}
		undefined := !sym.IsDefined()
		explicitName := flags&wasm.SymbolFlagExplicitName != 0

		switch sym.Kind {
		case wasm.SymbolKindFunction, wasm.SymbolKindGlobal, wasm.SymbolKindTable, wasm.SymbolKindTag:
			idx, r2, err := readU32(rest)
			if err != nil {
				return fmt.Errorf("symbol[%d] index: %w", i, err)
			}
			rest = r2
			sym.Index = idx
			if !undefined || explicitName {
				name, r3, err := readName(rest)
				if err != nil {
					return fmt.Errorf("symbol[%d] name: %w", i, err)
				}
				rest = r3
				sym.Name = name
			}
			if err := validateIndexedSymbol(m, i, sym); err != nil {
				return err
			}
		case wasm.SymbolKindData:
			name, r2, err := readName(rest)
			if err != nil {
				return fmt.Errorf("symbol[%d] name: %w", i, err)
			}
			rest = r2
			sym.Name = name
			if !undefined {
				segIdx, r3, err := readU32(rest)
				if err != nil {
					return fmt.Errorf("symbol[%d] data segment: %w", i, err)
				}
				rest = r3
				off, r4, err := readU32(rest)
				if err != nil {
					return fmt.Errorf("symbol[%d] data offset: %w", i, err)
				}
				rest = r4
				sz, r5, err := readU32(rest)
				if err != nil {
					return fmt.Errorf("symbol[%d] data size: %w", i, err)
				}
				rest = r5
				sym.DataSegmentIndex = segIdx
				sym.DataOffset = off
				sym.DataSize = sz
				// An absolute data symbol carries a raw address, not a
				// segment-relative window; only the relative form is
				// bounds-checked.
				if flags&wasm.SymbolFlagAbsolute == 0 {
					if int(segIdx) >= len(m.DataSection) {
						return fmt.Errorf("symbol[%d] %q: unknown data segment %d", i, name, segIdx)
					}
					segLen := uint64(len(m.DataSection[segIdx].Init))
					if uint64(off) > segLen || uint64(off)+uint64(sz) > segLen {
						return fmt.Errorf("symbol[%d] %q: data offset %d+%d exceeds segment size %d", i, name, off, sz, segLen)
					}
				}
			}
		case wasm.SymbolKindSection:
			idx, r2, err := readU32(rest)
			if err != nil {
				return fmt.Errorf("symbol[%d] section index: %w", i, err)
			}
			rest = r2
			sym.Index = idx
			if !sym.IsLocal() {
				return fmt.Errorf("symbol[%d]: section symbols must be local-bound", i)
			}
			if int(idx) >= len(m.CustomSections) {
				return fmt.Errorf("symbol[%d]: unknown section %d", i, idx)
			}
		default:
			return fmt.Errorf("symbol[%d]: unknown symbol kind %d", i, kindByte)
		}

		m.Symbols = append(m.Symbols, sym)
	}
	return nil
}

// validateIndexedSymbol bounds-checks a function/global/table symbol's
// index against the module it claims to describe: an undefined symbol
// must reference an import, a defined one a module-local definition.
// Undefined weak global and table symbols are rejected outright. Tag
// symbols are skipped but validated: the record's shape and binding are
// checked, but this loader carries no tag section to bound the index
// against.
func validateIndexedSymbol(m *wasm.Module, i uint32, sym wasm.Symbol) error {
	var importCount, total wasm.Index
	var kind string
	switch sym.Kind {
	case wasm.SymbolKindFunction:
		importCount, total, kind = m.ImportFunctionCount, m.NumFuncs(), "function"
	case wasm.SymbolKindGlobal:
		importCount, total, kind = m.ImportGlobalCount, m.NumGlobals(), "global"
	case wasm.SymbolKindTable:
		importCount, total, kind = m.ImportTableCount, m.NumTables(), "table"
	case wasm.SymbolKindTag:
		return nil
	}
	if !sym.IsDefined() {
		if sym.IsWeak() && (sym.Kind == wasm.SymbolKindGlobal || sym.Kind == wasm.SymbolKindTable) {
			return fmt.Errorf("symbol[%d] %q: undefined weak %s symbol", i, sym.Name, kind)
		}
		if sym.Index >= importCount {
			return fmt.Errorf("symbol[%d] %q: undefined %s symbol index %d does not reference an import", i, sym.Name, kind, sym.Index)
		}
		return nil
	}
	if sym.Index < importCount || sym.Index >= total {
		return fmt.Errorf("symbol[%d] %q: unknown %s %d", i, sym.Name, kind, sym.Index)
	}
	return nil
}

func decodeSegmentInfo(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("segment info count: %w", err)
	}
	for i := uint32(0); i < n && int(i) < len(m.DataSection); i++ {
		name, r, err := readName(rest)
		if err != nil {
			return fmt.Errorf("segment info[%d] name: %w", i, err)
		}
		rest = r
		align, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("segment info[%d] alignment: %w", i, err)
		}
		rest = r
		flags, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("segment info[%d] flags: %w", i, err)
		}
		rest = r

		m.DataSection[i].Name = name
		m.DataSection[i].Alignment = align
		m.DataSection[i].Flags = flags
	}
	return nil
}
