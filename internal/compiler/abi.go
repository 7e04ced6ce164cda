package compiler

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// emitHostAccessors builds the small external-linkage getters of the host
// ABI: each loads (or stores) one runtime global and returns.
func (c *Compiler) emitHostAccessors() {
	cc := c.cc
	b := cc.Builder

	simpleLoad := func(name string, t llvm.Type, global string) {
		ft := llvm.FunctionType(t, nil, false)
		fn := cc.DeclareFunc(name, ft)
		entry := cc.LLVM.AddBasicBlock(fn, "entry")
		b.SetInsertPointAtEnd(entry)
		b.CreateRet(b.CreateLoad(t, cc.NamedGlobal(global), ""))
	}

	simpleLoad(runtime.FuncInstanceIsCreated, cc.I8, runtime.GlobalIsInstanceInited)
	simpleLoad(runtime.FuncGetMemory, cc.Ptr, runtime.GlobalMemoryData)
	simpleLoad(runtime.FuncGetMemorySize, cc.I64, runtime.GlobalMemoryDataSize)
	simpleLoad(runtime.FuncGetHeapHandle, cc.Ptr, runtime.GlobalHostManagedHeap)
	simpleLoad(runtime.FuncGetException, cc.I32, runtime.GlobalExceptionID)

	// wasm_get_exception_msg: index the exception_msgs table by the stored
	// id. Ids are negative (-1 maps to slot 0); a zero id means no
	// exception and returns null.
	{
		ft := llvm.FunctionType(cc.Ptr, nil, false)
		fn := cc.DeclareFunc(runtime.FuncGetExceptionMsg, ft)
		entry := cc.LLVM.AddBasicBlock(fn, "entry")
		noneBB := cc.LLVM.AddBasicBlock(fn, "no_exception")
		lookupBB := cc.LLVM.AddBasicBlock(fn, "lookup")
		b.SetInsertPointAtEnd(entry)
		id := b.CreateLoad(cc.I32, cc.NamedGlobal(runtime.GlobalExceptionID), "")
		isZero := b.CreateICmp(llvm.IntEQ, id, cc.ConstI32(0), "")
		b.CreateCondBr(isZero, noneBB, lookupBB)

		b.SetInsertPointAtEnd(noneBB)
		b.CreateRet(llvm.ConstPointerNull(cc.Ptr))

		b.SetInsertPointAtEnd(lookupBB)
		// id -1 maps to slot 0, -2 to slot 1, ...
		slot := b.CreateSub(cc.ConstI32(-1), id, "")
		nMsgs := len(runtime.ExceptionMessageTable())
		clamped := b.CreateICmp(llvm.IntUGE, slot, cc.ConstI32(int32(nMsgs)), "")
		last := cc.ConstI32(int32(nMsgs - 1))
		slot = b.CreateSelect(clamped, last, slot, "")
		msgsType := llvm.ArrayType(cc.Ptr, nMsgs)
		p := b.CreateInBoundsGEP(msgsType, cc.NamedGlobal(runtime.GlobalExceptionMsgs),
			[]llvm.Value{cc.ConstU32(0), slot}, "")
		b.CreateRet(b.CreateLoad(cc.Ptr, p, ""))
	}

	// wasm_set_exception(i32).
	{
		ft := llvm.FunctionType(cc.Void, []llvm.Type{cc.I32}, false)
		fn := cc.DeclareFunc(runtime.FuncSetException, ft)
		entry := cc.LLVM.AddBasicBlock(fn, "entry")
		b.SetInsertPointAtEnd(entry)
		b.CreateStore(fn.Param(0), cc.NamedGlobal(runtime.GlobalExceptionID))
		b.CreateRetVoid()
	}
}

// emitExportAPIs emits the exported_apis registry — one {name, function,
// signature} row per exported wasm function — its two accessors, and the
// signature-keyed quick-call trampolines.
func (c *Compiler) emitExportAPIs() error {
	cc := c.cc
	b := cc.Builder

	type exportRow struct {
		export wasm.Export
		ft     *wasm.FunctionType
	}
	var rows []exportRow
	for _, e := range c.m.ExportSection {
		if e.Type != wasm.ExternTypeFunc {
			continue
		}
		ft, err := c.m.TypeOfFunc(e.Index)
		if err != nil {
			return err
		}
		rows = append(rows, exportRow{export: e, ft: ft})
	}

	rowType := cc.LLVM.StructType([]llvm.Type{cc.Ptr, cc.Ptr, cc.Ptr}, false)
	entries := make([]llvm.Value, len(rows))
	quickSigs := map[string]*wasm.FunctionType{}
	for i, r := range rows {
		sig := exportSignature(r.ft)
		name := cc.InternString(fmt.Sprintf("export_name#%d", i), r.export.Name)
		sigStr := cc.InternString(fmt.Sprintf("export_sig#%d", i), sig)
		entries[i] = cc.LLVM.ConstStruct([]llvm.Value{name, c.funcs[r.export.Index], sigStr}, false)
		quickSigs[sig] = r.ft
	}

	g := llvm.AddGlobal(cc.Module, llvm.ArrayType(rowType, len(entries)), runtime.GlobalExportedAPIs)
	g.SetInitializer(llvm.ConstArray(rowType, entries))
	g.SetLinkage(llvm.InternalLinkage)
	g.SetSection(wasmGlobalsSection)

	{
		ft := llvm.FunctionType(cc.Ptr, nil, false)
		fn := cc.DeclareFunc(runtime.FuncGetExportAPIs, ft)
		entry := cc.LLVM.AddBasicBlock(fn, "entry")
		b.SetInsertPointAtEnd(entry)
		b.CreateRet(g)
	}
	{
		ft := llvm.FunctionType(cc.I32, nil, false)
		fn := cc.DeclareFunc(runtime.FuncGetExportAPINum, ft)
		entry := cc.LLVM.AddBasicBlock(fn, "entry")
		b.SetInsertPointAtEnd(entry)
		b.CreateRet(cc.ConstU32(uint32(len(entries))))
	}

	for sig, ft := range quickSigs {
		c.emitQuickCallEntry(sig, ft)
	}
	return nil
}

// emitQuickCallEntry generates the signature-specialized trampoline
// quick_invoke_<sig>(fn, argv): arguments are unpacked from an i64-slot
// buffer into native registers and the result written back to argv[0].
func (c *Compiler) emitQuickCallEntry(sig string, ft *wasm.FunctionType) {
	for _, t := range ft.Params {
		if t == wasm.ValueTypeV128 {
			return
		}
	}
	for _, t := range ft.Results {
		if t == wasm.ValueTypeV128 {
			return
		}
	}
	cc := c.cc
	b := cc.Builder

	name := "quick_invoke_" + quickCallSuffix(sig)
	fnType := llvm.FunctionType(cc.Void, []llvm.Type{cc.Ptr, cc.Ptr}, false)
	fn := cc.DeclareFunc(name, fnType)
	if !fn.EntryBasicBlock().IsNil() {
		return
	}
	entry := cc.LLVM.AddBasicBlock(fn, "entry")
	b.SetInsertPointAtEnd(entry)

	target := fn.Param(0)
	argv := fn.Param(1)

	args := make([]llvm.Value, len(ft.Params))
	for i, p := range ft.Params {
		slot := b.CreateInBoundsGEP(cc.I64, argv, []llvm.Value{cc.ConstU32(uint32(i))}, "")
		raw := b.CreateLoad(cc.I64, slot, "")
		switch p {
		case wasm.ValueTypeI32:
			args[i] = b.CreateTrunc(raw, cc.I32, "")
		case wasm.ValueTypeI64:
			args[i] = raw
		case wasm.ValueTypeF32:
			args[i] = b.CreateBitCast(b.CreateTrunc(raw, cc.I32, ""), cc.F32, "")
		case wasm.ValueTypeF64:
			args[i] = b.CreateBitCast(raw, cc.F64, "")
		}
	}

	ret := b.CreateCall(c.llvmFuncType(ft), target, args, "")
	if len(ft.Results) > 0 {
		res := ret
		if len(ft.Results) > 1 {
			res = b.CreateExtractValue(ret, 0, "")
		}
		var wide llvm.Value
		switch ft.Results[0] {
		case wasm.ValueTypeI32:
			wide = b.CreateZExt(res, cc.I64, "")
		case wasm.ValueTypeI64:
			wide = res
		case wasm.ValueTypeF32:
			wide = b.CreateZExt(b.CreateBitCast(res, cc.I32, ""), cc.I64, "")
		case wasm.ValueTypeF64:
			wide = b.CreateBitCast(res, cc.I64, "")
		}
		slot0 := b.CreateInBoundsGEP(cc.I64, argv, []llvm.Value{cc.ConstU32(0)}, "")
		b.CreateStore(wide, slot0)
	}
	b.CreateRetVoid()
}

// quickCallSuffix maps "(ii)i" onto a symbol-safe "ii_i".
func quickCallSuffix(sig string) string {
	out := make([]byte, 0, len(sig))
	for i := 0; i < len(sig); i++ {
		switch sig[i] {
		case '(':
		case ')':
			out = append(out, '_')
		default:
			out = append(out, sig[i])
		}
	}
	return string(out)
}

// emitNoSandboxMain emits main(argc, argv) forwarding into the module's
// __main_argc_argv export, generated only when that export exists.
func (c *Compiler) emitNoSandboxMain() error {
	e, ok := c.exportOf(runtime.WasmMainExport, wasm.ExternTypeFunc)
	if !ok {
		return nil
	}
	ft, err := c.m.TypeOfFunc(e.Index)
	if err != nil {
		return err
	}
	if len(ft.Params) != 2 || len(ft.Results) != 1 || ft.Results[0] != wasm.ValueTypeI32 {
		return fmt.Errorf("%s export has unsupported signature %s", runtime.WasmMainExport, exportSignature(ft))
	}

	cc := c.cc
	b := cc.Builder
	mainType := llvm.FunctionType(cc.I32, []llvm.Type{cc.I32, cc.I64}, false)
	fn := cc.DeclareFunc(runtime.FuncMain, mainType)
	entry := cc.LLVM.AddBasicBlock(fn, "entry")
	b.SetInsertPointAtEnd(entry)

	args := make([]llvm.Value, 2)
	args[0] = fn.Param(0)
	if ft.Params[0] == wasm.ValueTypeI64 {
		args[0] = b.CreateZExt(args[0], cc.I64, "")
	}
	args[1] = fn.Param(1)
	if ft.Params[1] == wasm.ValueTypeI32 {
		args[1] = b.CreateTrunc(args[1], cc.I32, "")
	}
	ret := b.CreateCall(c.funcTypes[e.Index], c.funcs[e.Index], args, "")
	b.CreateRet(ret)
	return nil
}
