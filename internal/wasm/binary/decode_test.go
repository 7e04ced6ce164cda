package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/w2n-dev/wasm2native/internal/wasm"
	"github.com/w2n-dev/wasm2native/internal/wasmbin"
)

func header() []byte { return append(append([]byte{}, wasmbin.Magic[:]...), wasmbin.Version[:]...) }

// section appends a section with id and a precomputed leb128 size prefix
// (every test body here is under 128 bytes, so a raw byte works as size).
func section(id byte, body []byte) []byte {
	return append([]byte{id, byte(len(body))}, body...)
}

func TestDecodeMinimalModule(t *testing.T) {
	buf := header()
	m, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, wasm.Index(0), m.NumFuncs())
}

func TestDecodeIdentityFunction(t *testing.T) {
	buf := header()
	// type section: one type, (i32)->(i32)
	buf = append(buf, section(wasm.SectionIDType, []byte{
		1,          // count
		0x60,       // func tag
		1, 0x7f,    // 1 param: i32
		1, 0x7f,    // 1 result: i32
	})...)
	// function section: one function of type 0
	buf = append(buf, section(wasm.SectionIDFunction, []byte{1, 0})...)
	// export section: export it as "identity"
	name := []byte("identity")
	exportBody := append([]byte{1, byte(len(name))}, name...)
	exportBody = append(exportBody, wasm.ExternTypeFunc, 0)
	buf = append(buf, section(wasm.SectionIDExport, exportBody)...)
	// code section: one body, no locals, local.get 0; end
	codeBody := []byte{
		4,          // body size
		0,          // 0 local groups
		0x20, 0x00, // local.get 0
		0x0b, // end
	}
	buf = append(buf, section(wasm.SectionIDCode, append([]byte{1}, codeBody...))...)

	m, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, wasm.Index(1), m.NumFuncs())
	require.Len(t, m.ExportSection, 1)
	require.Equal(t, "identity", m.ExportSection[0].Name)
	require.Equal(t, []byte{0x20, 0x00, 0x0b}, m.FunctionSection[0].Body)
	require.Equal(t, wasm.ValueTypeI32, m.FunctionSection[0].Type.Params[0])
}

func TestDecodeRejectsFunctionCodeMismatch(t *testing.T) {
	buf := header()
	buf = append(buf, section(wasm.SectionIDType, []byte{1, 0x60, 0, 0})...)
	buf = append(buf, section(wasm.SectionIDFunction, []byte{1, 0})...)
	// no code section at all
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeRejectsDuplicateExportName(t *testing.T) {
	buf := header()
	buf = append(buf, section(wasm.SectionIDType, []byte{1, 0x60, 0, 0})...)
	buf = append(buf, section(wasm.SectionIDFunction, []byte{2, 0, 0})...)
	name := []byte("f")
	one := append([]byte{byte(len(name))}, name...)
	one = append(one, wasm.ExternTypeFunc, 0)
	two := append([]byte{byte(len(name))}, name...)
	two = append(two, wasm.ExternTypeFunc, 1)
	exportBody := append([]byte{2}, one...)
	exportBody = append(exportBody, two...)
	buf = append(buf, section(wasm.SectionIDExport, exportBody)...)
	codeBody := []byte{2, 0, 0x0b} // size=2, 0 local groups, end
	buf = append(buf, section(wasm.SectionIDCode, append([]byte{2}, append(codeBody, codeBody...)...))...)

	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeMemoryAndGlobal(t *testing.T) {
	buf := header()
	buf = append(buf, section(wasm.SectionIDMemory, []byte{1, 0, 1})...)           // 1 memory, flags=0, min=1
	buf = append(buf, section(wasm.SectionIDGlobal, []byte{1, 0x7f, 0, 0x41, 5, 0x0b})...) // i32 immutable = 5
	m, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, wasm.Index(1), m.NumMemories())
	require.Len(t, m.GlobalSection, 1)
	require.False(t, m.GlobalSection[0].Mutable)
}

func TestDecodeRejectsBadTypeTag(t *testing.T) {
	buf := header()
	buf = append(buf, section(wasm.SectionIDType, []byte{1, 0x61, 0, 0})...)
	_, err := Decode(buf)
	require.Error(t, err)
}
