package compiler

import (
	"fmt"
	"math"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// wasmGlobalsSection is the object section every runtime global lands in.
const wasmGlobalsSection = ".wasm_globals"

// addRuntimeGlobal emits one internal-linkage global into .wasm_globals.
func (c *Compiler) addRuntimeGlobal(name string, t llvm.Type, init llvm.Value) llvm.Value {
	g := llvm.AddGlobal(c.cc.Module, t, name)
	g.SetInitializer(init)
	g.SetLinkage(llvm.InternalLinkage)
	g.SetSection(wasmGlobalsSection)
	return g
}

// emitRuntimeGlobals materializes every runtime global except
// exported_apis (emitted with the export table): the memory geometry
// globals, bound-check caches, data segments, table, function tables,
// wasm globals, and the exception state.
func (c *Compiler) emitRuntimeGlobals() error {
	cc := c.cc
	l := &c.layout

	c.addRuntimeGlobal(runtime.GlobalMemoryData, cc.Ptr, llvm.ConstPointerNull(cc.Ptr))
	c.addRuntimeGlobal(runtime.GlobalMemoryDataSize, cc.I64, cc.ConstU64(l.memDataSize))
	c.addRuntimeGlobal(runtime.GlobalNumBytesPerPage, cc.I32, cc.ConstU32(wasm.MemoryPageSize))
	c.addRuntimeGlobal(runtime.GlobalCurPageCount, cc.I32, cc.ConstU32(uint32(l.initPages)))
	c.addRuntimeGlobal(runtime.GlobalMaxPageCount, cc.I32, cc.ConstU32(uint32(l.maxPages)))
	c.addRuntimeGlobal(runtime.GlobalHostManagedHeap, cc.Ptr, llvm.ConstPointerNull(cc.Ptr))

	if !c.opts.NoSandboxMode {
		// Per-width bound caches: an access of N bytes at offset o is in
		// bounds iff o <= memory_data_size - N.
		for _, w := range runtime.MemBoundCheckWidths {
			bound := int64(l.memDataSize) - int64(w)
			c.addRuntimeGlobal(runtime.MemBoundCheckGlobal(w), cc.I64, cc.ConstI64(bound))
		}
	}

	c.emitDataSegGlobals()
	c.emitTableGlobals()
	c.emitFuncTables()
	if err := c.emitWasmGlobals(); err != nil {
		return err
	}
	c.emitExceptionGlobals()

	c.addRuntimeGlobal(runtime.GlobalIsInstanceInited, cc.I8, cc.ConstI8(0))
	return nil
}

// emitDataSegGlobals emits data_seg#N byte arrays plus the data_segs
// pointer table and the passive-length table memory.init/data.drop
// consult.
func (c *Compiler) emitDataSegGlobals() {
	cc := c.cc
	n := len(c.m.DataSection)
	segPtrs := make([]llvm.Value, n)
	passiveLens := make([]llvm.Value, n)

	for i, d := range c.m.DataSection {
		arrType := llvm.ArrayType(cc.I8, len(d.Init))
		g := llvm.AddGlobal(cc.Module, arrType, runtime.DataSegGlobal(i))
		g.SetInitializer(llvm.ConstArray(cc.I8, byteConsts(cc, d.Init)))
		g.SetLinkage(llvm.InternalLinkage)
		g.SetSection(wasmGlobalsSection)
		g.SetGlobalConstant(true)
		// Segment-info alignment is a log2 exponent in the lld format.
		if d.Alignment > 0 && d.Alignment < 16 {
			g.SetAlignment(1 << d.Alignment)
		}
		segPtrs[i] = g
		if d.Mode == wasm.DataSegmentModePassive {
			passiveLens[i] = cc.ConstU32(uint32(len(d.Init)))
		} else {
			passiveLens[i] = cc.ConstU32(0)
		}
	}

	segsInit := llvm.ConstArray(cc.Ptr, segPtrs)
	c.addRuntimeGlobal(runtime.GlobalDataSegs, llvm.ArrayType(cc.Ptr, n), segsInit)
	lensInit := llvm.ConstArray(cc.I32, passiveLens)
	c.addRuntimeGlobal(runtime.GlobalDataSegLengthsPassive, llvm.ArrayType(cc.I32, n), lensInit)
}

// emitTableGlobals emits table_elems with its resolved initializer;
// uninitialized slots hold the sentinel an indirect call rejects.
func (c *Compiler) emitTableGlobals() {
	cc := c.cc
	vals := make([]llvm.Value, len(c.tableInit))
	for i, fidx := range c.tableInit {
		vals[i] = cc.ConstU32(fidx)
	}
	init := llvm.ConstArray(cc.I32, vals)
	c.addRuntimeGlobal(runtime.GlobalTableElems, llvm.ArrayType(cc.I32, len(vals)), init)
}

// emitFuncTables emits func_ptrs and func_type_indexes over the combined
// import+definition space.
func (c *Compiler) emitFuncTables() {
	cc := c.cc
	n := int(c.m.NumFuncs())
	ptrs := make([]llvm.Value, n)
	typeIdxs := make([]llvm.Value, n)

	for i := 0; i < n; i++ {
		idx := wasm.Index(i)
		// Unresolved imports start from their trap stub; in sandbox mode the
		// constructor overwrites the slot with null at run time after warning.
		ptrs[i] = c.funcs[i]
		// Indices are canonicalized to the smallest structurally-equal
		// entry so the indirect-call check compares plain integers.
		if idx < c.m.ImportFunctionCount {
			typeIdxs[i] = cc.ConstU32(c.m.CanonicalTypeIndex(c.importFuncs[i].imp.DescFunc))
		} else {
			typeIdxs[i] = cc.ConstU32(c.m.CanonicalTypeIndex(c.m.FunctionSection[idx-c.m.ImportFunctionCount].TypeIndex))
		}
	}

	c.addRuntimeGlobal(runtime.GlobalFuncPtrs, llvm.ArrayType(cc.Ptr, n), llvm.ConstArray(cc.Ptr, ptrs))
	c.addRuntimeGlobal(runtime.GlobalFuncTypeIndexes, llvm.ArrayType(cc.I32, n), llvm.ConstArray(cc.I32, typeIdxs))
}

// emitWasmGlobals emits one LLVM global per wasm global:
// wasm_import_global#N for the import space (link-table value, zero when
// unlinked), wasm_global#N for definitions with their decoded constant
// initializer.
func (c *Compiler) emitWasmGlobals() error {
	importIdx := 0
	for i := range c.m.ImportSection {
		imp := &c.m.ImportSection[i]
		if imp.Type != wasm.ExternTypeGlobal {
			continue
		}
		t := c.cc.TypeOf(imp.DescGlobal.ValType)
		init := c.cc.ZeroOf(t)
		if lg, ok := runtime.ResolveBuiltinGlobal(imp.Module, imp.Name); ok &&
			lg.Type == imp.DescGlobal.ValType && lg.Mutable == imp.DescGlobal.Mutable {
			init = c.linkedGlobalConst(lg)
		} else {
			c.log.Warnf("failed to link import global %s.%s", imp.Module, imp.Name)
		}
		c.addRuntimeGlobal(runtime.WasmImportGlobal(importIdx), t, init)
		importIdx++
	}
	for i, g := range c.m.GlobalSection {
		t := c.cc.TypeOf(g.Type)
		init, err := c.constExprValue(g.Init, g.Type)
		if err != nil {
			return fmt.Errorf("global %d initializer: %w", i, err)
		}
		c.addRuntimeGlobal(runtime.WasmGlobal(i), t, init)
	}
	return nil
}

// linkedGlobalConst materializes a built-in linked global's raw value
// bits as a constant of its declared type.
func (c *Compiler) linkedGlobalConst(lg runtime.LinkedGlobal) llvm.Value {
	cc := c.cc
	switch lg.Type {
	case wasm.ValueTypeI32:
		return cc.ConstU32(uint32(lg.Value))
	case wasm.ValueTypeI64:
		return cc.ConstU64(lg.Value)
	case wasm.ValueTypeF32:
		return llvm.ConstFloat(cc.F32, float64(math.Float32frombits(uint32(lg.Value))))
	case wasm.ValueTypeF64:
		return llvm.ConstFloat(cc.F64, math.Float64frombits(lg.Value))
	default:
		return cc.ZeroOf(cc.TypeOf(lg.Type))
	}
}

// constExprValue lowers a constant expression to an LLVM constant of the
// declared type.
func (c *Compiler) constExprValue(ce wasm.ConstantExpression, declared wasm.ValueType) (llvm.Value, error) {
	cc := c.cc
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		v, _, err := leb128.LoadInt32(ce.Data)
		if err != nil {
			return llvm.Value{}, err
		}
		return cc.ConstI32(v), nil
	case wasm.OpcodeI64Const:
		v, _, err := leb128.LoadInt64(ce.Data)
		if err != nil {
			return llvm.Value{}, err
		}
		return cc.ConstI64(v), nil
	case wasm.OpcodeF32Const:
		return llvm.ConstFloat(cc.F32, float64(constExprFloat32(ce.Data))), nil
	case wasm.OpcodeF64Const:
		return llvm.ConstFloat(cc.F64, constExprFloat64(ce.Data)), nil
	case wasm.OpcodeV128Const:
		// ce.Data is sub-opcode leb + 16 raw bytes; the raw lane bytes are
		// the trailing 16.
		raw := ce.Data[len(ce.Data)-16:]
		lo := leU64(raw[:8])
		hi := leU64(raw[8:])
		return llvm.ConstVector([]llvm.Value{cc.ConstU64(lo), cc.ConstU64(hi)}, false), nil
	case wasm.OpcodeRefFunc:
		v, _, err := leb128.LoadUint32(ce.Data)
		if err != nil {
			return llvm.Value{}, err
		}
		return cc.ConstU32(v), nil
	case wasm.OpcodeGlobalGet:
		// References an imported global; resolved through the link table,
		// zero when unlinked.
		idx, _, err := leb128.LoadUint32(ce.Data)
		if err != nil {
			return llvm.Value{}, err
		}
		return c.linkedGlobalConst(runtime.LinkedGlobal{Type: declared, Value: c.importedGlobalValue(idx)}), nil
	default:
		return llvm.Value{}, fmt.Errorf("invalid constant expression opcode 0x%x", ce.Opcode)
	}
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// emitExceptionGlobals emits exception_msgs (pointers into interned
// message strings) and exception_id.
func (c *Compiler) emitExceptionGlobals() {
	cc := c.cc
	msgs := runtime.ExceptionMessageTable()
	ptrs := make([]llvm.Value, len(msgs))
	for i, msg := range msgs {
		ptrs[i] = cc.InternString(fmt.Sprintf("exception_msg#%d", i), msg)
	}
	c.addRuntimeGlobal(runtime.GlobalExceptionMsgs, llvm.ArrayType(cc.Ptr, len(ptrs)), llvm.ConstArray(cc.Ptr, ptrs))
	c.addRuntimeGlobal(runtime.GlobalExceptionID, cc.I32, cc.ConstI32(0))
}
