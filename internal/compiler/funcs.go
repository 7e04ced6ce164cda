package compiler

import (
	"fmt"
	"strings"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// aotFuncName is the internal-linkage name of the function at absolute
// index idx.
func aotFuncName(idx wasm.Index) string {
	return fmt.Sprintf("aot_func#%d", idx)
}

func unlinkedStubName(idx wasm.Index) string {
	return fmt.Sprintf("wasm_unlinked_import#%d", idx)
}

// llvmFuncType maps a wasm function type to LLVM: parameters map
// one-to-one, multi-value results become a struct return.
func (c *Compiler) llvmFuncType(ft *wasm.FunctionType) llvm.Type {
	params := make([]llvm.Type, len(ft.Params))
	for i, p := range ft.Params {
		params[i] = c.cc.TypeOf(p)
	}
	return llvm.FunctionType(c.cc.ReturnType(ft.Results), params, false)
}

// sigChar is the one-character signature encoding of the import resolver:
// i/I/f/F for i32/i64/f32/f64, v for the vector type no native resolver
// entry carries.
func sigChar(t wasm.ValueType) byte {
	switch t {
	case wasm.ValueTypeI32:
		return 'i'
	case wasm.ValueTypeI64:
		return 'I'
	case wasm.ValueTypeF32:
		return 'f'
	case wasm.ValueTypeF64:
		return 'F'
	default:
		return 'v'
	}
}

// flatSignature renders params-then-results as a flat character string,
// the form the libc resolver tables are keyed against.
func flatSignature(ft *wasm.FunctionType) string {
	var sb strings.Builder
	for _, p := range ft.Params {
		sb.WriteByte(sigChar(p))
	}
	for _, r := range ft.Results {
		sb.WriteByte(sigChar(r))
	}
	return sb.String()
}

// exportSignature renders the host-facing "(params)results" form used by
// the exported-API table and the quick-call entries, e.g. "(ii)i".
func exportSignature(ft *wasm.FunctionType) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range ft.Params {
		sb.WriteByte(sigChar(p))
	}
	sb.WriteByte(')')
	for _, r := range ft.Results {
		sb.WriteByte(sigChar(r))
	}
	return sb.String()
}

// declareFunctions populates funcTypes/funcs for the whole index space:
// imported functions resolve against the libc tables — resolved imports become external declarations under their native
// name, unresolved ones an internal stub that raises
// EXCE_CALL_UNLINKED_IMPORT_FUNC when actually called; defined functions
// become internal definitions named aot_func#N.
func (c *Compiler) declareFunctions() error {
	n := c.m.NumFuncs()
	c.funcTypes = make([]llvm.Type, n)
	c.funcs = make([]llvm.Value, n)

	idx := wasm.Index(0)
	for i := range c.m.ImportSection {
		imp := &c.m.ImportSection[i]
		if imp.Type != wasm.ExternTypeFunc {
			continue
		}
		ft := c.m.TypeSection[imp.DescFunc]
		lt := c.llvmFuncType(ft)
		c.funcTypes[idx] = lt

		meta := importFunc{imp: imp}
		if lk, ok := runtime.ResolveLibcImport(c.opts.NoSandboxMode, c.layout.index64, imp.Name); ok &&
			lk.Module == imp.Module && lk.Signature == flatSignature(ft) {
			meta.resolved = true
			meta.native = lk.Name
			meta.signature = lk.Signature
			fn := c.cc.DeclareFunc(lk.Name, lt)
			c.funcs[idx] = fn
		} else {
			c.log.Warnf("failed to link import function %s.%s", imp.Module, imp.Name)
			fn := c.cc.DeclareFunc(unlinkedStubName(idx), lt)
			fn.SetLinkage(llvm.InternalLinkage)
			c.funcs[idx] = fn
		}
		c.importFuncs = append(c.importFuncs, meta)
		idx++
	}

	for i := range c.m.FunctionSection {
		f := &c.m.FunctionSection[i]
		lt := c.llvmFuncType(f.Type)
		abs := c.m.ImportFunctionCount + wasm.Index(i)
		fn := c.cc.DeclareFunc(aotFuncName(abs), lt)
		fn.SetLinkage(llvm.InternalLinkage)
		c.funcTypes[abs] = lt
		c.funcs[abs] = fn
	}
	return nil
}

// emitImportStubs gives every unresolved import its trap body: store
// EXCE_CALL_UNLINKED_IMPORT_FUNC and return a zero value.
func (c *Compiler) emitImportStubs() error {
	for i, meta := range c.importFuncs {
		if meta.resolved {
			continue
		}
		idx := wasm.Index(i)
		fn := c.funcs[idx]
		entry := c.cc.LLVM.AddBasicBlock(fn, "entry")
		b := c.cc.Builder
		b.SetInsertPointAtEnd(entry)
		excID := c.cc.ConstI32(int32(runtime.ExceptionCallUnlinkedImportFunc))
		b.CreateStore(excID, c.cc.NamedGlobal(runtime.GlobalExceptionID))
		ft := c.m.TypeSection[meta.imp.DescFunc]
		c.emitZeroReturn(ft)
	}
	return nil
}

// emitZeroReturn returns the zero value of the current function's result
// shape from the builder's current position.
func (c *Compiler) emitZeroReturn(ft *wasm.FunctionType) {
	b := c.cc.Builder
	switch len(ft.Results) {
	case 0:
		b.CreateRetVoid()
	case 1:
		b.CreateRet(c.cc.ZeroOf(c.cc.TypeOf(ft.Results[0])))
	default:
		b.CreateRet(c.cc.ZeroOf(c.cc.ReturnType(ft.Results)))
	}
}
