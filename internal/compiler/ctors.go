package compiler

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// emitInstanceCreate builds wasm_instance_create: guarded
// by is_instance_inited, it links imports, allocates and initializes
// linear memory, applies no-sandbox data relocations, sets up the
// host-managed heap, runs the start function and __wasm_call_ctors, then
// marks the instance live.
func (c *Compiler) emitInstanceCreate() error {
	cc := c.cc
	b := cc.Builder
	ft := llvm.FunctionType(cc.Void, nil, false)
	fn := cc.DeclareFunc(runtime.FuncInstanceCreate, ft)

	entry := cc.LLVM.AddBasicBlock(fn, "entry")
	alreadyBB := cc.LLVM.AddBasicBlock(fn, "already_inited")
	initBB := cc.LLVM.AddBasicBlock(fn, "init")
	b.SetInsertPointAtEnd(entry)
	inited := b.CreateLoad(cc.I8, cc.NamedGlobal(runtime.GlobalIsInstanceInited), "")
	isSet := b.CreateICmp(llvm.IntNE, inited, cc.ConstI8(0), "")
	b.CreateCondBr(isSet, alreadyBB, initBB)
	b.SetInsertPointAtEnd(alreadyBB)
	b.CreateRetVoid()

	b.SetInsertPointAtEnd(initBB)

	// Step 1: unresolved imports warn once and null their func_ptrs slot.
	if !c.opts.NoSandboxMode {
		putsFn, putsType := c.libcPuts()
		nFuncs := int(c.m.NumFuncs())
		ptrsType := llvm.ArrayType(cc.Ptr, nFuncs)
		for i, meta := range c.importFuncs {
			if meta.resolved {
				continue
			}
			msg := cc.InternString(fmt.Sprintf("link_warning#%d", i),
				fmt.Sprintf("warning: failed to link import function (%s, %s)", meta.imp.Module, meta.imp.Name))
			b.CreateCall(putsType, putsFn, []llvm.Value{msg}, "")
			slot := b.CreateInBoundsGEP(ptrsType, cc.NamedGlobal(runtime.GlobalFuncPtrs),
				[]llvm.Value{cc.ConstU32(0), cc.ConstU32(uint32(i))}, "")
			b.CreateStore(llvm.ConstPointerNull(cc.Ptr), slot)
		}
	}

	failBB := cc.LLVM.AddBasicBlock(fn, "alloc_failed")

	// Step 2: allocate and zero the linear memory.
	var memBase llvm.Value
	if c.layout.hasMemory || c.layout.memDataSize > 0 {
		mallocFn, mallocType := c.libcMalloc()
		size := cc.ConstU64(c.layout.memDataSize)
		memBase = b.CreateCall(mallocType, mallocFn, []llvm.Value{size}, "")
		isNull := b.CreateICmp(llvm.IntEQ, memBase, llvm.ConstPointerNull(cc.Ptr), "")
		contBB := cc.LLVM.AddBasicBlock(fn, "mem_alloced")
		b.CreateCondBr(isNull, failBB, contBB)
		b.SetInsertPointAtEnd(contBB)
		c.emitMemset(b, memBase, cc.ConstI8(0), size)
		b.CreateStore(memBase, cc.NamedGlobal(runtime.GlobalMemoryData))
	}

	// Step 3: copy active data segments, skipping all-zero payloads.
	for i, d := range c.m.DataSection {
		if !d.IsActive() || allZero(d.Init) || len(d.Init) == 0 {
			continue
		}
		base, err := c.evalConstOffset(d.OffsetExpr)
		if err != nil {
			return err
		}
		dst := b.CreateInBoundsGEP(cc.I8, memBase, []llvm.Value{cc.ConstU64(base)}, "")
		seg := cc.NamedGlobal(runtime.DataSegGlobal(i))
		c.emitMemcpy(b, dst, seg, cc.ConstU64(uint64(len(d.Init))))
	}

	// Step 4: no-sandbox data relocations.
	if c.opts.NoSandboxMode {
		if err := c.emitDataRelocFixups(b, memBase); err != nil {
			return err
		}
	}

	// Step 5: host-managed heap.
	if c.layout.heapSize != 0 {
		createFn, createType := c.memAllocatorCreate()
		heapBase := b.CreateInBoundsGEP(cc.I8, memBase, []llvm.Value{cc.ConstU64(c.layout.heapOffset)}, "")
		handle := b.CreateCall(createType, createFn,
			[]llvm.Value{heapBase, cc.ConstU32(uint32(c.layout.heapSize))}, "")
		isNull := b.CreateICmp(llvm.IntEQ, handle, llvm.ConstPointerNull(cc.Ptr), "")
		contBB := cc.LLVM.AddBasicBlock(fn, "heap_created")
		b.CreateCondBr(isNull, failBB, contBB)
		b.SetInsertPointAtEnd(contBB)
		b.CreateStore(handle, cc.NamedGlobal(runtime.GlobalHostManagedHeap))
	}

	// Step 6: the wasm start function.
	if c.m.StartSection != nil {
		idx := *c.m.StartSection
		b.CreateCall(c.funcTypes[idx], c.funcs[idx], nil, "")
	}

	// Step 7: __wasm_call_ctors, when exported with type () -> ().
	if e, ok := c.exportOf(runtime.WasmCtorsExport, wasm.ExternTypeFunc); ok {
		ctorsType, err := c.m.TypeOfFunc(e.Index)
		if err == nil && len(ctorsType.Params) == 0 && len(ctorsType.Results) == 0 {
			b.CreateCall(c.funcTypes[e.Index], c.funcs[e.Index], nil, "")
			// A constructor trap leaves its id behind and aborts the init.
			excID := b.CreateLoad(cc.I32, cc.NamedGlobal(runtime.GlobalExceptionID), "")
			pending := b.CreateICmp(llvm.IntNE, excID, cc.ConstI32(0), "")
			abortBB := cc.LLVM.AddBasicBlock(fn, "ctors_trapped")
			doneBB := cc.LLVM.AddBasicBlock(fn, "ctors_done")
			b.CreateCondBr(pending, abortBB, doneBB)
			b.SetInsertPointAtEnd(abortBB)
			b.CreateRetVoid()
			b.SetInsertPointAtEnd(doneBB)
		}
	}

	// Step 8: mark live.
	b.CreateStore(cc.ConstI8(1), cc.NamedGlobal(runtime.GlobalIsInstanceInited))
	b.CreateRetVoid()

	b.SetInsertPointAtEnd(failBB)
	b.CreateStore(cc.ConstI32(int32(runtime.ExceptionAllocateMemoryFailed)),
		cc.NamedGlobal(runtime.GlobalExceptionID))
	b.CreateRetVoid()

	if c.opts.NoSandboxMode {
		c.registerGlobalCtor(fn)
	}
	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// emitDataRelocFixups walks reloc.DATA in no-sandbox mode and patches the
// in-memory 8-byte slots: memory-address relocations become real pointers
// into the freshly allocated memory, table-index relocations become native
// function pointers; any other kind is fatal.
func (c *Compiler) emitDataRelocFixups(b llvm.Builder, memBase llvm.Value) error {
	cc := c.cc
	for _, r := range c.m.DataRelocations {
		seg, segBase, err := c.segmentForRelocOffset(r.Offset)
		if err != nil {
			return err
		}
		slotMemOff := segBase + uint64(r.Offset-seg.SectionOffset)
		slotPtr := b.CreateInBoundsGEP(cc.I8, memBase, []llvm.Value{cc.ConstU64(slotMemOff)}, "")

		switch r.Type {
		case wasm.RelocMemoryAddrI64:
			if int(r.Index) >= len(c.m.Symbols) {
				return fmt.Errorf("data relocation references unknown symbol %d", r.Index)
			}
			sym := c.m.Symbols[r.Index]
			if sym.Kind != wasm.SymbolKindData {
				return fmt.Errorf("memory-address relocation against non-data symbol %q", sym.Name)
			}
			targetSegBase, err := c.evalConstOffset(c.m.DataSection[sym.DataSegmentIndex].OffsetExpr)
			if err != nil {
				return err
			}
			targetOff := targetSegBase + uint64(sym.DataOffset) + uint64(int64(r.Addend))
			target := b.CreateInBoundsGEP(cc.I8, memBase, []llvm.Value{cc.ConstU64(targetOff)}, "")
			b.CreateStore(b.CreatePtrToInt(target, cc.I64, ""), slotPtr)

		case wasm.RelocTableIndexI64:
			// The slot's original 8-byte value in the binary is the table
			// index the pointer stands for.
			initOff := r.Offset - seg.SectionOffset
			if int(initOff)+8 > len(seg.Init) {
				return fmt.Errorf("table-index relocation at %d overruns its segment", r.Offset)
			}
			addend := int64(leU64(seg.Init[initOff : initOff+8]))
			fidx, err := c.tableIndexForAddend(addend)
			if err != nil {
				return err
			}
			fnPtr := b.CreatePtrToInt(c.funcs[fidx], cc.I64, "")
			b.CreateStore(fnPtr, slotPtr)

		default:
			return fmt.Errorf("unsupported relocation kind %d in reloc.DATA", r.Type)
		}
	}
	return nil
}

// segmentForRelocOffset maps a data-section-body offset onto the segment
// whose payload contains it, returning the segment and its memory base.
func (c *Compiler) segmentForRelocOffset(off uint32) (*wasm.DataSegment, uint64, error) {
	for i := range c.m.DataSection {
		d := &c.m.DataSection[i]
		if off >= d.SectionOffset && off < d.SectionOffset+uint32(len(d.Init)) {
			if !d.IsActive() {
				return nil, 0, fmt.Errorf("data relocation at %d targets a passive segment", off)
			}
			base, err := c.evalConstOffset(d.OffsetExpr)
			return d, base, err
		}
	}
	return nil, 0, fmt.Errorf("invalid relocation offset %d", off)
}

// emitInstanceDestroy builds wasm_instance_destroy: guarded by the same
// flag, frees the memory, and clears both.
func (c *Compiler) emitInstanceDestroy() {
	cc := c.cc
	b := cc.Builder
	ft := llvm.FunctionType(cc.Void, nil, false)
	fn := cc.DeclareFunc(runtime.FuncInstanceDestroy, ft)

	entry := cc.LLVM.AddBasicBlock(fn, "entry")
	notInitBB := cc.LLVM.AddBasicBlock(fn, "not_inited")
	teardownBB := cc.LLVM.AddBasicBlock(fn, "teardown")
	b.SetInsertPointAtEnd(entry)
	inited := b.CreateLoad(cc.I8, cc.NamedGlobal(runtime.GlobalIsInstanceInited), "")
	isSet := b.CreateICmp(llvm.IntNE, inited, cc.ConstI8(0), "")
	b.CreateCondBr(isSet, teardownBB, notInitBB)
	b.SetInsertPointAtEnd(notInitBB)
	b.CreateRetVoid()

	b.SetInsertPointAtEnd(teardownBB)
	mem := b.CreateLoad(cc.Ptr, cc.NamedGlobal(runtime.GlobalMemoryData), "")
	isNull := b.CreateICmp(llvm.IntEQ, mem, llvm.ConstPointerNull(cc.Ptr), "")
	freeBB := cc.LLVM.AddBasicBlock(fn, "free_mem")
	doneBB := cc.LLVM.AddBasicBlock(fn, "done")
	b.CreateCondBr(isNull, doneBB, freeBB)

	b.SetInsertPointAtEnd(freeBB)
	freeFn, freeType := c.libcFree()
	b.CreateCall(freeType, freeFn, []llvm.Value{mem}, "")
	b.CreateBr(doneBB)

	b.SetInsertPointAtEnd(doneBB)
	b.CreateStore(llvm.ConstPointerNull(cc.Ptr), cc.NamedGlobal(runtime.GlobalMemoryData))
	b.CreateStore(cc.ConstI8(0), cc.NamedGlobal(runtime.GlobalIsInstanceInited))
	b.CreateRetVoid()

	if c.opts.NoSandboxMode {
		c.registerGlobalDtor(fn)
	}
}

// registerGlobalCtor/Dtor append the function to llvm.global_ctors /
// llvm.global_dtors so the produced object runs instance setup and
// teardown automatically in no-sandbox mode.
func (c *Compiler) registerGlobalCtor(fn llvm.Value) {
	c.appendGlobalCtorEntry("llvm.global_ctors", fn)
}

func (c *Compiler) registerGlobalDtor(fn llvm.Value) {
	c.appendGlobalCtorEntry("llvm.global_dtors", fn)
}

func (c *Compiler) appendGlobalCtorEntry(listName string, fn llvm.Value) {
	cc := c.cc
	entryType := cc.LLVM.StructType([]llvm.Type{cc.I32, cc.Ptr, cc.Ptr}, false)
	entry := cc.LLVM.ConstStruct([]llvm.Value{
		llvm.ConstInt(cc.I32, 65535, false), fn, llvm.ConstPointerNull(cc.Ptr),
	}, false)
	arr := llvm.ConstArray(entryType, []llvm.Value{entry})
	g := llvm.AddGlobal(cc.Module, arr.Type(), listName)
	g.SetInitializer(arr)
	g.SetLinkage(llvm.AppendingLinkage)
}
