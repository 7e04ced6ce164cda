package compiler

import (
	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// pushCallResults unpacks a call's return value onto the stack: nothing,
// the single value, or the fields of a multi-value struct.
func (fc *funcCtx) pushCallResults(ret llvm.Value, results []wasm.ValueType) {
	switch len(results) {
	case 0:
	case 1:
		fc.push(ret, results[0])
	default:
		for i, r := range results {
			fc.push(fc.b.CreateExtractValue(ret, i, ""), r)
		}
	}
}

// emitCall lowers a direct call to function index idx: parameters are
// popped in reverse, the callee invoked, a pending callee exception
// propagated, and results pushed.
func (fc *funcCtx) emitCall(idx wasm.Index) {
	ft, _ := fc.c.m.TypeOfFunc(idx)
	args := make([]llvm.Value, len(ft.Params))
	for i := len(ft.Params) - 1; i >= 0; i-- {
		args[i] = fc.pop().v
	}
	ret := fc.b.CreateCall(fc.c.funcTypes[idx], fc.c.funcs[idx], args, "")
	fc.emitCalleeExceptionCheck()
	fc.pushCallResults(ret, ft.Results)
}

// emitCallIndirect lowers call_indirect: the element index is checked
// against the table, the slot against the uninitialized sentinel, the
// callee's registered type index against the instruction's, and the
// function pointer against null, each with its own trap.
func (fc *funcCtx) emitCallIndirect(typeIdx wasm.Index) {
	cc := fc.c.cc
	elem := fc.pop()

	elemIdx := elem.v
	if elem.t == wasm.ValueTypeI64 {
		// 64-bit-indexed tables still address at most 2^32 slots here; the
		// range check below runs on the full value first.
		tooBig := fc.b.CreateICmp(llvm.IntUGE, elemIdx, cc.ConstU64(fc.c.tableSize), "")
		fc.emitTrapIf(tooBig, runtime.ExceptionUndefinedElement)
		elemIdx = fc.b.CreateTrunc(elemIdx, cc.I32, "")
	} else {
		tooBig := fc.b.CreateICmp(llvm.IntUGE, elemIdx, cc.ConstU32(uint32(fc.c.tableSize)), "")
		fc.emitTrapIf(tooBig, runtime.ExceptionUndefinedElement)
	}

	tableType := llvm.ArrayType(cc.I32, len(fc.c.tableInit))
	slotPtr := fc.b.CreateInBoundsGEP(tableType, cc.NamedGlobal(runtime.GlobalTableElems),
		[]llvm.Value{cc.ConstU32(0), elemIdx}, "")
	funcIdx := fc.b.CreateLoad(cc.I32, slotPtr, "")

	uninit := fc.b.CreateICmp(llvm.IntEQ, funcIdx, cc.ConstU32(uninitializedElem), "")
	fc.emitTrapIf(uninit, runtime.ExceptionUninitializedElement)

	n := int(fc.c.m.NumFuncs())
	typesType := llvm.ArrayType(cc.I32, n)
	typePtr := fc.b.CreateInBoundsGEP(typesType, cc.NamedGlobal(runtime.GlobalFuncTypeIndexes),
		[]llvm.Value{cc.ConstU32(0), funcIdx}, "")
	actualType := fc.b.CreateLoad(cc.I32, typePtr, "")
	mismatch := fc.b.CreateICmp(llvm.IntNE, actualType, cc.ConstU32(fc.c.m.CanonicalTypeIndex(typeIdx)), "")
	fc.emitTrapIf(mismatch, runtime.ExceptionInvalidFunctionTypeIndex)

	ptrsType := llvm.ArrayType(cc.Ptr, n)
	fnSlot := fc.b.CreateInBoundsGEP(ptrsType, cc.NamedGlobal(runtime.GlobalFuncPtrs),
		[]llvm.Value{cc.ConstU32(0), funcIdx}, "")
	fnPtr := fc.b.CreateLoad(cc.Ptr, fnSlot, "")
	isNull := fc.b.CreateICmp(llvm.IntEQ, fnPtr, llvm.ConstPointerNull(cc.Ptr), "")
	fc.emitTrapIf(isNull, runtime.ExceptionCallUnlinkedImportFunc)

	ft := fc.c.m.TypeSection[typeIdx]
	args := make([]llvm.Value, len(ft.Params))
	for i := len(ft.Params) - 1; i >= 0; i-- {
		args[i] = fc.pop().v
	}
	ret := fc.b.CreateCall(fc.c.llvmFuncType(ft), fnPtr, args, "")
	fc.emitCalleeExceptionCheck()
	fc.pushCallResults(ret, ft.Results)
}

// wasmGlobalName maps a global index onto its §6.3 symbol name.
func (fc *funcCtx) wasmGlobalName(idx wasm.Index) string {
	if idx < fc.c.m.ImportGlobalCount {
		return runtime.WasmImportGlobal(int(idx))
	}
	return runtime.WasmGlobal(int(idx - fc.c.m.ImportGlobalCount))
}

// emitGlobalGet loads a wasm global; in no-sandbox mode a global holding
// a linear-memory offset reads as a native pointer value instead.
func (fc *funcCtx) emitGlobalGet(idx wasm.Index) error {
	cc := fc.c.cc
	gt, err := fc.c.globalType(idx)
	if err != nil {
		return err
	}
	v := fc.b.CreateLoad(cc.TypeOf(gt.ValType), cc.NamedGlobal(fc.wasmGlobalName(idx)), "")
	if fc.c.isMemoryAddressGlobal(idx) {
		base := fc.b.CreateLoad(cc.Ptr, cc.NamedGlobal(runtime.GlobalMemoryData), "")
		off := v
		if gt.ValType == wasm.ValueTypeI32 {
			off = fc.b.CreateZExt(off, cc.I64, "")
		}
		p := fc.b.CreateInBoundsGEP(cc.I8, base, []llvm.Value{off}, "")
		v = fc.b.CreatePtrToInt(p, cc.TypeOf(gt.ValType), "")
	}
	fc.push(v, gt.ValType)
	return nil
}

// emitGlobalSet stores a wasm global, applying the inverse of the
// no-sandbox pointer mapping, and, when aux-stack checks are enabled, the
// overflow/underflow checks on a store to the shadow-stack pointer (the
// global found at layout time, or an aux-stack-tagged opcode).
func (fc *funcCtx) emitGlobalSet(idx wasm.Index, auxStack bool) error {
	cc := fc.c.cc
	gt, err := fc.c.globalType(idx)
	if err != nil {
		return err
	}
	v := fc.pop().v

	if auxStack || (fc.c.aux.hasAuxStack && idx == fc.c.aux.auxStackIndex) {
		if fc.c.opts.EnableAuxStackCheck {
			over := fc.b.CreateICmp(llvm.IntULT, v, cc.ConstU32(uint32(fc.c.aux.auxStackBound)), "")
			fc.emitTrapIf(over, runtime.ExceptionAuxStackOverflow)
			under := fc.b.CreateICmp(llvm.IntUGT, v, cc.ConstU32(uint32(fc.c.aux.auxStackTop)), "")
			fc.emitTrapIf(under, runtime.ExceptionAuxStackUnderflow)
		}
	}

	if fc.c.isMemoryAddressGlobal(idx) {
		base := fc.b.CreateLoad(cc.Ptr, cc.NamedGlobal(runtime.GlobalMemoryData), "")
		baseInt := fc.b.CreatePtrToInt(base, cc.I64, "")
		wide := v
		if gt.ValType == wasm.ValueTypeI32 {
			wide = fc.b.CreateZExt(wide, cc.I64, "")
		}
		diff := fc.b.CreateSub(wide, baseInt, "")
		if gt.ValType == wasm.ValueTypeI32 {
			diff = fc.b.CreateTrunc(diff, cc.I32, "")
		}
		v = diff
	}

	fc.b.CreateStore(v, cc.NamedGlobal(fc.wasmGlobalName(idx)))
	return nil
}

// emitTableAccess lowers table.get/table.set against table_elems.
func (fc *funcCtx) emitTableAccess(isSet bool) {
	cc := fc.c.cc
	tableType := llvm.ArrayType(cc.I32, len(fc.c.tableInit))
	if isSet {
		val := fc.pop()
		idx := fc.pop()
		tooBig := fc.b.CreateICmp(llvm.IntUGE, idx.v, cc.ConstU32(uint32(fc.c.tableSize)), "")
		fc.emitTrapIf(tooBig, runtime.ExceptionOutOfBoundsTableAccess)
		slot := fc.b.CreateInBoundsGEP(tableType, cc.NamedGlobal(runtime.GlobalTableElems),
			[]llvm.Value{cc.ConstU32(0), idx.v}, "")
		fc.b.CreateStore(val.v, slot)
		return
	}
	idx := fc.pop()
	tooBig := fc.b.CreateICmp(llvm.IntUGE, idx.v, cc.ConstU32(uint32(fc.c.tableSize)), "")
	fc.emitTrapIf(tooBig, runtime.ExceptionOutOfBoundsTableAccess)
	slot := fc.b.CreateInBoundsGEP(tableType, cc.NamedGlobal(runtime.GlobalTableElems),
		[]llvm.Value{cc.ConstU32(0), idx.v}, "")
	fc.push(fc.b.CreateLoad(cc.I32, slot, ""), wasm.ValueTypeFuncref)
}
