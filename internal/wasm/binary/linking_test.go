package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

func u32(v uint32) []byte { return leb128.EncodeUint32(v) }

func symName(s string) []byte {
	return append(u32(uint32(len(s))), s...)
}

// sym builds one symbol-table entry: kind, flags, then the kind-specific
// payload.
func sym(kind byte, flags uint32, payload ...[]byte) []byte {
	out := append([]byte{kind}, u32(flags)...)
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

func symTable(entries ...[]byte) []byte {
	out := u32(uint32(len(entries)))
	for _, e := range entries {
		out = append(out, e...)
	}
	return out
}

func linkingModule() *wasm.Module {
	return &wasm.Module{
		ImportFunctionCount: 1,
		ImportGlobalCount:   1,
		FunctionSection:     []wasm.Function{{}},
		GlobalSection:       []wasm.Global{{Type: wasm.ValueTypeI32}},
		TableSection:        []wasm.Table{{}},
		DataSection: []wasm.DataSegment{
			{Init: []byte{1, 2, 3, 4}},
		},
		CustomSections: []wasm.CustomSection{{Name: "producers"}},
	}
}

func TestDecodeSymbolTable(t *testing.T) {
	const (
		kindFunc    = byte(wasm.SymbolKindFunction)
		kindData    = byte(wasm.SymbolKindData)
		kindGlobal  = byte(wasm.SymbolKindGlobal)
		kindSection = byte(wasm.SymbolKindSection)
		kindTable   = byte(wasm.SymbolKindTable)
	)

	tests := []struct {
		name        string
		table       []byte
		expectedErr string
	}{
		{
			name:  "defined function symbol",
			table: symTable(sym(kindFunc, 0, u32(1), symName("f"))),
		},
		{
			name:  "undefined function symbol referencing the import",
			table: symTable(sym(kindFunc, wasm.SymbolFlagUndefined, u32(0))),
		},
		{
			name:        "defined function symbol referencing an import",
			table:       symTable(sym(kindFunc, 0, u32(0), symName("f"))),
			expectedErr: `symbol[0] "f": unknown function 0`,
		},
		{
			name:        "function symbol index out of range",
			table:       symTable(sym(kindFunc, 0, u32(9), symName("f"))),
			expectedErr: `symbol[0] "f": unknown function 9`,
		},
		{
			name:        "undefined function symbol not referencing an import",
			table:       symTable(sym(kindFunc, wasm.SymbolFlagUndefined, u32(1))),
			expectedErr: `symbol[0] "": undefined function symbol index 1 does not reference an import`,
		},
		{
			name:        "undefined weak global symbol",
			table:       symTable(sym(kindGlobal, wasm.SymbolFlagUndefined|wasm.SymbolFlagBindingWeak, u32(0))),
			expectedErr: `symbol[0] "": undefined weak global symbol`,
		},
		{
			name:        "undefined weak table symbol",
			table:       symTable(sym(kindTable, wasm.SymbolFlagUndefined|wasm.SymbolFlagBindingWeak, u32(0))),
			expectedErr: `symbol[0] "": undefined weak table symbol`,
		},
		{
			name:        "both binding bits set",
			table:       symTable(sym(kindFunc, wasm.SymbolFlagBindingWeak|wasm.SymbolFlagBindingLocal, u32(1), symName("f"))),
			expectedErr: "symbol[0]: invalid binding flags 0x3",
		},
		{
			name:  "section symbol with local binding",
			table: symTable(sym(kindSection, wasm.SymbolFlagBindingLocal, u32(0))),
		},
		{
			name:        "section symbol without local binding",
			table:       symTable(sym(kindSection, 0, u32(0))),
			expectedErr: "symbol[0]: section symbols must be local-bound",
		},
		{
			name:        "section symbol index out of range",
			table:       symTable(sym(kindSection, wasm.SymbolFlagBindingLocal, u32(7))),
			expectedErr: "symbol[0]: unknown section 7",
		},
		{
			name:  "data symbol within its segment",
			table: symTable(sym(kindData, 0, symName("d"), u32(0), u32(1), u32(3))),
		},
		{
			name:        "data symbol with unknown segment",
			table:       symTable(sym(kindData, 0, symName("d"), u32(5), u32(0), u32(1))),
			expectedErr: `symbol[0] "d": unknown data segment 5`,
		},
		{
			name:        "data symbol overrunning its segment",
			table:       symTable(sym(kindData, 0, symName("d"), u32(0), u32(2), u32(3))),
			expectedErr: `symbol[0] "d": data offset 2+3 exceeds segment size 4`,
		},
		{
			name:  "absolute data symbol skips segment bounds",
			table: symTable(sym(kindData, wasm.SymbolFlagAbsolute, symName("d"), u32(5), u32(100), u32(100))),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := decodeSymbolTable(linkingModule(), tc.table)
			if tc.expectedErr == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tc.expectedErr)
			}
		})
	}
}

// relocBody builds a reloc section payload: target section index, count,
// then (type, offset, index[, addend]) entries.
func relocBody(entries ...[]byte) []byte {
	out := u32(0)
	out = append(out, u32(uint32(len(entries)))...)
	for _, e := range entries {
		out = append(out, e...)
	}
	return out
}

func relocEntry(typ byte, offset, index uint32) []byte {
	out := append([]byte{typ}, u32(offset)...)
	return append(out, u32(index)...)
}

func TestDecodeRelocSection(t *testing.T) {
	m := &wasm.Module{Symbols: make([]wasm.Symbol, 2)}
	funcIndexLEB := byte(wasm.RelocFunctionIndexLEB) // encoded width 5

	t.Run("valid entries", func(t *testing.T) {
		body := relocBody(
			relocEntry(funcIndexLEB, 0, 0),
			relocEntry(funcIndexLEB, 10, 1),
		)
		relocs, err := decodeRelocSection(m, body, 100)
		require.NoError(t, err)
		require.Len(t, relocs, 2)
		require.Equal(t, uint32(10), relocs[1].Offset)
	})

	t.Run("offsets out of order", func(t *testing.T) {
		body := relocBody(
			relocEntry(funcIndexLEB, 10, 0),
			relocEntry(funcIndexLEB, 9, 0),
		)
		_, err := decodeRelocSection(m, body, 100)
		require.EqualError(t, err, "reloc[1]: relocations not in offset order")
	})

	t.Run("offset plus width exceeds target body", func(t *testing.T) {
		// A 5-byte-wide relocation at offset 96 of a 100-byte body.
		body := relocBody(relocEntry(funcIndexLEB, 96, 0))
		_, err := decodeRelocSection(m, body, 100)
		require.EqualError(t, err, "reloc[0]: invalid relocation offset 96")
	})

	t.Run("symbol index out of range", func(t *testing.T) {
		body := relocBody(relocEntry(funcIndexLEB, 0, 2))
		_, err := decodeRelocSection(m, body, 100)
		require.EqualError(t, err, "reloc[0]: unknown symbol 2")
	})

	t.Run("unknown relocation type", func(t *testing.T) {
		body := relocBody(relocEntry(0x7f, 0, 0))
		_, err := decodeRelocSection(m, body, 100)
		require.EqualError(t, err, "reloc[0]: unknown relocation type 127")
	})
}
