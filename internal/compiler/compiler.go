// Package compiler turns a decoded, validated wasm module into an LLVM
// module: the compiler context, the runtime globals and
// instance constructor/destructor of §4.5, and the opcode-by-opcode
// function emitter. It is the only package that touches both the wasm data
// model and the LLVM backend wrapper.
package compiler

import (
	"fmt"

	"go.uber.org/zap"
	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/config"
	"github.com/w2n-dev/wasm2native/internal/llvmgen"
	"github.com/w2n-dev/wasm2native/internal/validator"
	"github.com/w2n-dev/wasm2native/internal/wasm"
	"github.com/w2n-dev/wasm2native/internal/wasm/binary"
)

// Compiler is the per-module compilation context: the
// decoded module, the LLVM context, and the tables shared by every
// per-function emitter.
type Compiler struct {
	m    *wasm.Module
	opts *config.CompOptions
	cc   *llvmgen.Context
	log  *zap.SugaredLogger

	// results holds the validator's output per defined function, in
	// FunctionSection order.
	results []*validator.Result

	// funcTypes and funcs are the LLVM function type and value for every
	// function in the combined import+definition index space.
	funcTypes []llvm.Type
	funcs     []llvm.Value

	// importFuncs mirrors the imported-function prefix of the index space
	// with resolution state.
	importFuncs []importFunc

	layout memLayout
	aux    auxStackInfo

	// memAddrGlobals marks no-sandbox globals holding linear-memory
	// offsets that read/write as native pointers.
	memAddrGlobals map[wasm.Index]bool

	// tableInit is the resolved table_elems initializer:
	// uninitializedElem for slots no element segment covers.
	tableInit []uint32
	tableSize uint64
}

type importFunc struct {
	imp      *wasm.Import
	resolved bool
	// native is the host symbol the import resolved to, e.g. "printf64".
	native    string
	signature string
}

// uninitializedElem marks a table slot no element segment wrote; an
// indirect call through it raises EXCE_UNINITIALIZED_ELEMENT.
const uninitializedElem = 0xffff_ffff

// Compile runs the full front end over a raw wasm binary: decode,
// per-function validation, then IR emission, returning the live LLVM
// context holding the finished module. buf is borrowed until Compile
// returns (the validator rewrites code bytes in place).
func Compile(buf []byte, opts *config.CompOptions) (*llvmgen.Context, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m, err := binary.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("WASM module load failed: %w", err)
	}

	results := make([]*validator.Result, len(m.FunctionSection))
	for i := range m.FunctionSection {
		r, err := validator.Validate(m, wasm.Index(i))
		if err != nil {
			return nil, fmt.Errorf("WASM module load failed: %w", err)
		}
		results[i] = r
	}

	cc, err := llvmgen.NewContext("wasm2native", opts)
	if err != nil {
		return nil, err
	}

	c := &Compiler{m: m, opts: opts, cc: cc, log: opts.Logger, results: results}
	if err := c.emitModule(); err != nil {
		cc.Dispose()
		return nil, fmt.Errorf("WASM module compile failed: %w", err)
	}
	return cc, nil
}

// emitModule drives the one-per-module emission stages in dependency
// order: layout, globals, function declarations, bodies, the instance
// constructor/destructor, and the host-facing ABI surface.
func (c *Compiler) emitModule() error {
	if err := c.computeLayout(); err != nil {
		return err
	}
	if err := c.resolveTable(); err != nil {
		return err
	}
	if err := c.declareFunctions(); err != nil {
		return err
	}
	if err := c.emitRuntimeGlobals(); err != nil {
		return err
	}
	for i := range c.m.FunctionSection {
		if err := c.emitFunctionBody(wasm.Index(i)); err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
	}
	if err := c.emitImportStubs(); err != nil {
		return err
	}
	if err := c.emitInstanceCreate(); err != nil {
		return err
	}
	c.emitInstanceDestroy()
	c.emitHostAccessors()
	if err := c.emitExportAPIs(); err != nil {
		return err
	}
	if c.opts.NoSandboxMode {
		if err := c.emitNoSandboxMain(); err != nil {
			return err
		}
	}
	c.reemitCustomSections()
	return nil
}

// globalType resolves the declared (type, mutability) of global index idx
// across the import+definition space.
func (c *Compiler) globalType(idx wasm.Index) (wasm.GlobalType, error) {
	if idx < c.m.ImportGlobalCount {
		n := wasm.Index(0)
		for i := range c.m.ImportSection {
			imp := &c.m.ImportSection[i]
			if imp.Type != wasm.ExternTypeGlobal {
				continue
			}
			if n == idx {
				return imp.DescGlobal, nil
			}
			n++
		}
		return wasm.GlobalType{}, fmt.Errorf("unknown global %d", idx)
	}
	di := idx - c.m.ImportGlobalCount
	if di >= wasm.Index(len(c.m.GlobalSection)) {
		return wasm.GlobalType{}, fmt.Errorf("unknown global %d", idx)
	}
	g := c.m.GlobalSection[di]
	return wasm.GlobalType{ValType: g.Type, Mutable: g.Mutable}, nil
}

// exportOf finds the export with the given name and kind.
func (c *Compiler) exportOf(name string, kind wasm.ExternType) (wasm.Export, bool) {
	for _, e := range c.m.ExportSection {
		if e.Name == name && e.Type == kind {
			return e, true
		}
	}
	return wasm.Export{}, false
}

// reemitCustomSections records the custom sections the caller asked to
// carry into the output object as
// metadata globals the object writer picks up.
func (c *Compiler) reemitCustomSections() {
	for _, want := range c.opts.CustomSections {
		for _, cs := range c.m.CustomSections {
			if cs.Name != want {
				continue
			}
			arr := llvm.ConstArray(c.cc.I8, byteConsts(c.cc, cs.Data))
			g := llvm.AddGlobal(c.cc.Module, arr.Type(), "wasm_custom_section_"+cs.Name)
			g.SetInitializer(arr)
			g.SetLinkage(llvm.InternalLinkage)
			g.SetSection(".custom_sections")
			g.SetGlobalConstant(true)
		}
	}
}

func byteConsts(cc *llvmgen.Context, data []byte) []llvm.Value {
	vals := make([]llvm.Value, len(data))
	for i, b := range data {
		vals[i] = llvm.ConstInt(cc.I8, uint64(b), false)
	}
	return vals
}
