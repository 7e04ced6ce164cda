package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/w2n-dev/wasm2native/internal/config"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

func TestSignatureStrings(t *testing.T) {
	tests := []struct {
		name         string
		params       []wasm.ValueType
		results      []wasm.ValueType
		expectedFlat string
		expectedExp  string
	}{
		{
			name:         "add",
			params:       []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			results:      []wasm.ValueType{wasm.ValueTypeI32},
			expectedFlat: "iii",
			expectedExp:  "(ii)i",
		},
		{
			name:         "mixed widths",
			params:       []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64},
			results:      []wasm.ValueType{wasm.ValueTypeI64},
			expectedFlat: "IfFI",
			expectedExp:  "(IfF)I",
		},
		{
			name:         "void",
			expectedFlat: "",
			expectedExp:  "()",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ft := wasm.NewFunctionType(tc.params, tc.results)
			require.Equal(t, tc.expectedFlat, flatSignature(ft))
			require.Equal(t, tc.expectedExp, exportSignature(ft))
		})
	}
}

func TestQuickCallSuffix(t *testing.T) {
	require.Equal(t, "ii_i", quickCallSuffix("(ii)i"))
	require.Equal(t, "_", quickCallSuffix("()"))
	require.Equal(t, "IfF_I", quickCallSuffix("(IfF)I"))
}

func TestTruncRangeBounds(t *testing.T) {
	lo, hi := truncRange(true, false, true) // f64 -> i32 signed
	require.Equal(t, -2147483649.0, lo)
	require.Equal(t, 2147483648.0, hi)

	lo, hi = truncRange(true, false, false) // f32 -> i32 signed
	require.Equal(t, -2147483904.0, lo)
	require.Equal(t, 2147483648.0, hi)

	lo, hi = truncRange(false, true, true) // f64 -> i64 unsigned
	require.Equal(t, -1.0, lo)
	require.Equal(t, 18446744073709551616.0, hi)
}

func TestLeU64(t *testing.T) {
	require.Equal(t, uint64(0x0807060504030201), leU64([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.Equal(t, uint64(0), leU64(make([]byte, 8)))
}

func TestAllZero(t *testing.T) {
	require.True(t, allZero(nil))
	require.True(t, allZero(make([]byte, 16)))
	require.False(t, allZero([]byte{0, 0, 1}))
}

func i32Const(v byte) wasm.ConstantExpression {
	return wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{v}}
}

func testModuleWithTable(tableMin uint64, elems ...wasm.ElementSegment) *wasm.Module {
	return &wasm.Module{
		TableSection:   []wasm.Table{{Limits: wasm.Limits{Min: tableMin}}},
		ElementSection: elems,
	}
}

func TestResolveTable(t *testing.T) {
	m := testModuleWithTable(4, wasm.ElementSegment{
		OffsetExpr: i32Const(1),
		Init:       []wasm.Index{7, 8},
	})
	c := &Compiler{m: m}
	require.NoError(t, c.resolveTable())
	require.Equal(t, uint64(4), c.tableSize)
	require.Equal(t, []uint32{uninitializedElem, 7, 8, uninitializedElem}, c.tableInit)

	fidx, err := c.tableIndexForAddend(1)
	require.NoError(t, err)
	require.Equal(t, wasm.Index(7), fidx)

	_, err = c.tableIndexForAddend(0)
	require.EqualError(t, err, "table-index relocation addend 0 names an uninitialized element")
	_, err = c.tableIndexForAddend(9)
	require.EqualError(t, err, "table-index relocation addend 9 out of range")
}

func TestComputeLayoutHeap(t *testing.T) {
	mem := wasm.Memory{Limits: wasm.Limits{Flags: wasm.LimitsFlagHasMax, Min: 2, Max: 2}}

	c := &Compiler{
		m:    &wasm.Module{MemorySection: []wasm.Memory{mem}},
		opts: config.NewCompOptions().WithHeapSize(4096),
	}
	require.NoError(t, c.computeLayout())
	require.True(t, c.layout.fixedSize)
	require.Equal(t, uint64(2*65536), c.layout.heapOffset)
	require.Equal(t, uint64(2*65536+4096), c.layout.memDataSize)

	// A growable memory rejects the heap.
	growable := wasm.Memory{Limits: wasm.Limits{Flags: wasm.LimitsFlagHasMax, Min: 1, Max: 4}}
	c = &Compiler{
		m:    &wasm.Module{MemorySection: []wasm.Memory{growable}},
		opts: config.NewCompOptions().WithHeapSize(4096),
	}
	require.EqualError(t, c.computeLayout(), "heap size requires a fixed-size memory")
}

func TestCheckActiveSegmentBounds(t *testing.T) {
	mem := wasm.Memory{Limits: wasm.Limits{Min: 1}}
	seg := wasm.DataSegment{
		Mode:       wasm.DataSegmentModeActiveMem0,
		OffsetExpr: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: encodeU32AsSLEB(65534)},
		Init:       []byte{1, 2, 3},
	}
	c := &Compiler{
		m:    &wasm.Module{MemorySection: []wasm.Memory{mem}, DataSection: []wasm.DataSegment{seg}},
		opts: config.NewCompOptions(),
	}
	require.EqualError(t, c.computeLayout(), "out of bounds memory access from data segment 0")
}

// encodeU32AsSLEB produces the signed-leb bytes i32.const immediates use.
func encodeU32AsSLEB(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

func TestFindAuxGlobals(t *testing.T) {
	m := &wasm.Module{
		GlobalSection: []wasm.Global{
			{Type: wasm.ValueTypeI32, Mutable: true, Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: encodeU32AsSLEB(4096)}},
			{Type: wasm.ValueTypeI32, Mutable: false, Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: encodeU32AsSLEB(8192)}},
			{Type: wasm.ValueTypeI32, Mutable: false, Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: encodeU32AsSLEB(2048)}},
		},
		ExportSection: []wasm.Export{
			{Type: wasm.ExternTypeGlobal, Name: "__heap_base", Index: 1},
			{Type: wasm.ExternTypeGlobal, Name: "__data_end", Index: 2},
		},
	}
	c := &Compiler{m: m, opts: config.NewCompOptions()}
	require.NoError(t, c.computeLayout())
	require.True(t, c.aux.hasAuxStack)
	require.Equal(t, wasm.Index(0), c.aux.auxStackIndex)
	require.Equal(t, uint64(4096), c.aux.auxStackTop)
	require.Equal(t, uint64(2048), c.aux.auxStackBound)
	require.Equal(t, uint64(8192), c.aux.heapBase)
}
