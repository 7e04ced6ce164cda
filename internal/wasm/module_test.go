package wasm

import "testing"

import "github.com/stretchr/testify/require"

func TestFunctionTypeString(t *testing.T) {
	for _, tc := range []struct {
		ft  *FunctionType
		exp string
	}{
		{ft: &FunctionType{}, exp: "null_null"},
		{ft: &FunctionType{Params: []ValueType{ValueTypeI32}}, exp: "i32_null"},
		{ft: &FunctionType{Results: []ValueType{ValueTypeI64}}, exp: "null_i64"},
		{
			ft:  &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}},
			exp: "i32_i64",
		},
	} {
		require.Equal(t, tc.exp, tc.ft.String())
	}
}

func TestSectionIDName(t *testing.T) {
	for _, tc := range []struct {
		id  SectionID
		exp string
	}{
		{SectionIDCustom, "custom"},
		{SectionIDType, "type"},
		{SectionIDCode, "code"},
		{SectionIDData, "data"},
		{SectionIDDataCount, "data count"},
		{100, "unknown"},
	} {
		require.Equal(t, tc.exp, SectionIDName(tc.id))
	}
}

func TestExternTypeName(t *testing.T) {
	require.Equal(t, "func", ExternTypeName(ExternTypeFunc))
	require.Equal(t, "memory", ExternTypeName(ExternTypeMemory))
	require.Equal(t, "0x64", ExternTypeName(100))
}

func TestCellsOf(t *testing.T) {
	require.Equal(t, 1, CellsOf(ValueTypeI32))
	require.Equal(t, 1, CellsOf(ValueTypeF32))
	require.Equal(t, 2, CellsOf(ValueTypeI64))
	require.Equal(t, 2, CellsOf(ValueTypeF64))
	require.Equal(t, 4, CellsOf(ValueTypeV128))
}

func TestMemoryValidate(t *testing.T) {
	max := uint32(10)
	_ = max
	m := Memory{Limits: Limits{Flags: LimitsFlagHasMax, Min: 1, Max: 65537}}
	require.Error(t, m.Validate())

	m = Memory{Limits: Limits{Min: 65537}}
	require.Error(t, m.Validate())

	m = Memory{Limits: Limits{Flags: LimitsFlagShared, Min: 1}}
	require.Error(t, m.Validate())

	m = Memory{Limits: Limits{Flags: LimitsFlagHasMax | LimitsFlagShared, Min: 1, Max: 2}}
	require.NoError(t, m.Validate())

	m64 := Memory{Limits: Limits{Flags: LimitsFlag64BitIndex, Min: uint64(MemoryMaxPages64)}}
	require.NoError(t, m64.Validate())
}

func TestTableDefaults(t *testing.T) {
	tb := Table{Limits: Limits{Min: 3}}
	require.NoError(t, tb.Validate())
	require.Equal(t, uint64(TableMaxSizeDefault), tb.EffectiveMax())

	tb2 := Table{Limits: Limits{Min: 10000}}
	require.Equal(t, uint64(20000), tb2.EffectiveMax())

	shared := Table{Limits: Limits{Flags: LimitsFlagShared, Min: 1}}
	require.Error(t, shared.Validate())
}

func TestModuleInternType(t *testing.T) {
	m := &Module{}
	idx1, err := m.InternType(NewFunctionType([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}))
	require.NoError(t, err)
	idx2, err := m.InternType(NewFunctionType([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}))
	require.NoError(t, err)
	require.NotEqual(t, idx1, idx2)
	// Both slots alias one shared instance with a bumped ref count, so
	// declared indices stay stable while identical types compare
	// pointer-equal.
	require.Len(t, m.TypeSection, 2)
	require.Same(t, m.TypeSection[idx1], m.TypeSection[idx2])
	require.EqualValues(t, 2, m.TypeSection[0].RefCount())

	idx3, err := m.InternType(NewFunctionType([]ValueType{ValueTypeI64}, nil))
	require.NoError(t, err)
	require.NotEqual(t, idx1, idx3)
	require.Len(t, m.TypeSection, 3)
	require.NotSame(t, m.TypeSection[idx1], m.TypeSection[idx3])
}

func TestModuleCounts(t *testing.T) {
	m := &Module{
		ImportFunctionCount: 2,
		FunctionSection:     []Function{{}, {}, {}},
	}
	require.EqualValues(t, 5, m.NumFuncs())
}
