// Package llvmgen wraps the LLVM-C binding the emitter generates code
// through: context/module/builder construction, target-machine selection,
// the basic type and constant tables, and the output stages (verify,
// optimize, print IR, emit object). The rest of the compiler treats LLVM
// as an opaque backend; this package is the seam.
package llvmgen

import (
	"fmt"
	"os"
	"sync"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/config"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

var initLLVMOnce sync.Once

func initLLVM() {
	initLLVMOnce.Do(func() {
		llvm.InitializeAllTargetInfos()
		llvm.InitializeAllTargets()
		llvm.InitializeAllTargetMCs()
		llvm.InitializeAllAsmParsers()
		llvm.InitializeAllAsmPrinters()
	})
}

// Context owns the LLVM context/module/builder/target-machine quadruple
// and the pre-built type table every emit site shares.
type Context struct {
	LLVM    llvm.Context
	Module  llvm.Module
	Builder llvm.Builder
	Target  llvm.TargetMachine

	Triple    string
	Pointer64 bool

	I1, I8, I16, I32, I64 llvm.Type
	F32, F64              llvm.Type
	V128                  llvm.Type
	Ptr                   llvm.Type
	Void                  llvm.Type
}

// NewContext builds the LLVM context and target machine from the options,
// applying the host-defaulting rules. Any target option equal to
// "help" prints the supported list and returns ErrHelpRequested.
func NewContext(moduleName string, opts *config.CompOptions) (*Context, error) {
	initLLVM()

	if opts.TargetArch == "help" || opts.TargetCPU == "help" ||
		opts.TargetABI == "help" || opts.CPUFeatures == "help" {
		printSupportedTargets()
		return nil, ErrHelpRequested
	}

	var triple string
	if opts.TargetArch == "" && opts.TargetABI == "" {
		triple = llvm.DefaultTargetTriple()
	} else {
		triple = BuildTriple(opts.TargetArch, opts.TargetABI)
	}
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return nil, fmt.Errorf("unsupported target %q: %w", triple, err)
	}

	cpu := opts.TargetCPU
	features := opts.CPUFeatures
	abi := opts.TargetABI
	if IsRISCV(triple) {
		if abi == "" || abi == "msvc" {
			abi = DefaultRISCVABI(triple)
		}
		features = RISCVFeatures(abi, features)
	}

	tm := target.CreateTargetMachine(triple, cpu, features,
		codeGenLevel(opts.OptLevel), llvm.RelocPIC, codeModel(opts.SizeLevel))

	ctx := llvm.NewContext()
	mod := ctx.NewModule(moduleName)
	mod.SetTarget(triple)
	td := tm.CreateTargetData()
	mod.SetDataLayout(td.String())

	if IsRISCV(triple) {
		// riscv needs the abi recorded as a module flag or the backend
		// silently picks the soft-float calling convention.
		mod.AddNamedMetadataOperand("llvm.module.flags",
			ctx.MDNode([]llvm.Metadata{
				llvm.ConstInt(ctx.Int32Type(), 1, false).ConstantAsMetadata(),
				ctx.MDString("target-abi"),
				ctx.MDString(abi),
			}))
	}

	c := &Context{
		LLVM:      ctx,
		Module:    mod,
		Builder:   ctx.NewBuilder(),
		Target:    tm,
		Triple:    triple,
		Pointer64: Pointer64(triple),
		I1:        ctx.Int1Type(),
		I8:        ctx.Int8Type(),
		I16:       ctx.Int16Type(),
		I32:       ctx.Int32Type(),
		I64:       ctx.Int64Type(),
		F32:       ctx.FloatType(),
		F64:       ctx.DoubleType(),
		Void:      ctx.VoidType(),
	}
	c.V128 = llvm.VectorType(c.I64, 2)
	c.Ptr = llvm.PointerType(c.I8, 0)
	return c, nil
}

func codeGenLevel(optLevel int) llvm.CodeGenOptLevel {
	switch optLevel {
	case 0:
		return llvm.CodeGenLevelNone
	case 1:
		return llvm.CodeGenLevelLess
	case 2:
		return llvm.CodeGenLevelDefault
	default:
		return llvm.CodeGenLevelAggressive
	}
}

// codeModel maps the size level onto the LLVM code model:
// 0=large, 1=medium, 2=kernel, >=3=small.
func codeModel(sizeLevel int) llvm.CodeModel {
	switch sizeLevel {
	case 0:
		return llvm.CodeModelLarge
	case 1:
		return llvm.CodeModelMedium
	case 2:
		return llvm.CodeModelKernel
	default:
		return llvm.CodeModelSmall
	}
}

func printSupportedTargets() {
	fmt.Fprintln(os.Stderr, "supported targets:")
	for t := llvm.FirstTarget(); t.C != nil; t = t.NextTarget() {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", t.Name(), t.Description())
	}
}

// Dispose releases the builder, module, target machine and context. The
// produced object/IR text must be extracted first.
func (c *Context) Dispose() {
	c.Builder.Dispose()
	c.Module.Dispose()
	c.Target.Dispose()
	c.LLVM.Dispose()
}

// TypeOf maps a wasm value type onto its LLVM representation.
func (c *Context) TypeOf(vt wasm.ValueType) llvm.Type {
	switch vt {
	case wasm.ValueTypeI32:
		return c.I32
	case wasm.ValueTypeI64:
		return c.I64
	case wasm.ValueTypeF32:
		return c.F32
	case wasm.ValueTypeF64:
		return c.F64
	case wasm.ValueTypeV128:
		return c.V128
	case wasm.ValueTypeFuncref:
		return c.I32
	case wasm.ValueTypeVoid:
		return c.Void
	default:
		panic("no LLVM type for value type " + wasm.ValueTypeName(vt))
	}
}

// ReturnType maps a function's result list onto an LLVM return type: void
// for none, the value type for one, an anonymous struct for multi-value.
func (c *Context) ReturnType(results []wasm.ValueType) llvm.Type {
	switch len(results) {
	case 0:
		return c.Void
	case 1:
		return c.TypeOf(results[0])
	default:
		fields := make([]llvm.Type, len(results))
		for i, r := range results {
			fields[i] = c.TypeOf(r)
		}
		return c.LLVM.StructType(fields, false)
	}
}

// SizeType is the native pointer-width integer type (i64 on 64-bit
// targets, i32 otherwise).
func (c *Context) SizeType() llvm.Type {
	if c.Pointer64 {
		return c.I64
	}
	return c.I32
}

// ConstI32 and friends are shorthand for the constants every emit site
// needs.
func (c *Context) ConstI32(v int32) llvm.Value {
	return llvm.ConstInt(c.I32, uint64(uint32(v)), true)
}

func (c *Context) ConstU32(v uint32) llvm.Value {
	return llvm.ConstInt(c.I32, uint64(v), false)
}

func (c *Context) ConstI64(v int64) llvm.Value {
	return llvm.ConstInt(c.I64, uint64(v), true)
}

func (c *Context) ConstU64(v uint64) llvm.Value {
	return llvm.ConstInt(c.I64, v, false)
}

func (c *Context) ConstI8(v int8) llvm.Value {
	return llvm.ConstInt(c.I8, uint64(uint8(v)), true)
}

func (c *Context) ConstSize(v uint64) llvm.Value {
	return llvm.ConstInt(c.SizeType(), v, false)
}

// ZeroOf returns the zero value of t, the value every trap path returns.
func (c *Context) ZeroOf(t llvm.Type) llvm.Value {
	return llvm.ConstNull(t)
}

// InternString interns s as a private null-terminated byte array global
// and returns a pointer to its first byte. Each call adds a new global;
// calls with the same content are not merged.
func (c *Context) InternString(name, s string) llvm.Value {
	arr := c.LLVM.ConstString(s, true)
	g := llvm.AddGlobal(c.Module, arr.Type(), name)
	g.SetInitializer(arr)
	g.SetLinkage(llvm.PrivateLinkage)
	g.SetGlobalConstant(true)
	g.SetUnnamedAddr(true)
	return g
}

// DeclareFunc adds (or returns the existing) function named name with the
// given type.
func (c *Context) DeclareFunc(name string, ft llvm.Type) llvm.Value {
	if fn := c.Module.NamedFunction(name); !fn.IsNil() {
		return fn
	}
	return llvm.AddFunction(c.Module, name, ft)
}

// NamedGlobal looks a previously emitted global up by name; every emit
// site resolves globals this way rather than holding cached pointers, so
// emission order within a function is free.
func (c *Context) NamedGlobal(name string) llvm.Value {
	g := c.Module.NamedGlobal(name)
	if g.IsNil() {
		panic("runtime global not yet emitted: " + name)
	}
	return g
}
