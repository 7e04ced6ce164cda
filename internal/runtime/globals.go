package runtime

import "github.com/w2n-dev/wasm2native/internal/wasm"

// LinkedGlobal is one entry of the built-in imported-global link table:
// the (module, name) key, the declared type/mutability it
// must match, and the raw value bits the compiler bakes into the
// wasm_import_global#N initializer.
type LinkedGlobal struct {
	Module  string
	Name    string
	Type    wasm.ValueType
	Mutable bool
	Value   uint64
}

// builtinGlobals carries the spectest/test globals the reference suites
// import. Float values are stored as their IEEE bit patterns.
var builtinGlobals = []LinkedGlobal{
	{Module: "spectest", Name: "global_i32", Type: wasm.ValueTypeI32, Value: 666},
	{Module: "spectest", Name: "global_i64", Type: wasm.ValueTypeI64, Value: 666},
	{Module: "spectest", Name: "global_f32", Type: wasm.ValueTypeF32, Value: 0x4426a666},         // 666.6f
	{Module: "spectest", Name: "global_f64", Type: wasm.ValueTypeF64, Value: 0x4084d4cccccccccd}, // 666.6
	{Module: "test", Name: "global-i32", Type: wasm.ValueTypeI32, Value: 0},
	{Module: "test", Name: "global-f32", Type: wasm.ValueTypeF32, Value: 0},
	{Module: "test", Name: "global-mut-i32", Type: wasm.ValueTypeI32, Mutable: true, Value: 0},
	{Module: "test", Name: "global-mut-i64", Type: wasm.ValueTypeI64, Mutable: true, Value: 0},
}

// ResolveBuiltinGlobal looks an imported global up by (module, name);
// unlinked globals are a warning, not an error.
func ResolveBuiltinGlobal(module, name string) (LinkedGlobal, bool) {
	for _, g := range builtinGlobals {
		if g.Module == module && g.Name == name {
			return g, true
		}
	}
	return LinkedGlobal{}, false
}
