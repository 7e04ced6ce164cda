package compiler

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// memAccessInfo mirrors the validator's per-opcode load/store table with
// the emission detail it omits: the in-memory width, sign behavior, and
// the value's LLVM representation width.
type memAccessInfo struct {
	valType  wasm.ValueType
	isStore  bool
	bytes    int
	signExt  bool
	isFloat  bool
}

func memAccessInfoFor(op byte) (memAccessInfo, bool) {
	i32, i64, f32, f64 := wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64
	switch op {
	case 0x28:
		return memAccessInfo{i32, false, 4, false, false}, true
	case 0x29:
		return memAccessInfo{i64, false, 8, false, false}, true
	case 0x2a:
		return memAccessInfo{f32, false, 4, false, true}, true
	case 0x2b:
		return memAccessInfo{f64, false, 8, false, true}, true
	case 0x2c:
		return memAccessInfo{i32, false, 1, true, false}, true
	case 0x2d:
		return memAccessInfo{i32, false, 1, false, false}, true
	case 0x2e:
		return memAccessInfo{i32, false, 2, true, false}, true
	case 0x2f:
		return memAccessInfo{i32, false, 2, false, false}, true
	case 0x30:
		return memAccessInfo{i64, false, 1, true, false}, true
	case 0x31:
		return memAccessInfo{i64, false, 1, false, false}, true
	case 0x32:
		return memAccessInfo{i64, false, 2, true, false}, true
	case 0x33:
		return memAccessInfo{i64, false, 2, false, false}, true
	case 0x34:
		return memAccessInfo{i64, false, 4, true, false}, true
	case 0x35:
		return memAccessInfo{i64, false, 4, false, false}, true
	case 0x36:
		return memAccessInfo{i32, true, 4, false, false}, true
	case 0x37:
		return memAccessInfo{i64, true, 8, false, false}, true
	case 0x38:
		return memAccessInfo{f32, true, 4, false, true}, true
	case 0x39:
		return memAccessInfo{f64, true, 8, false, true}, true
	case 0x3a:
		return memAccessInfo{i32, true, 1, false, false}, true
	case 0x3b:
		return memAccessInfo{i32, true, 2, false, false}, true
	case 0x3c:
		return memAccessInfo{i64, true, 1, false, false}, true
	case 0x3d:
		return memAccessInfo{i64, true, 2, false, false}, true
	case 0x3e:
		return memAccessInfo{i64, true, 4, false, false}, true
	default:
		return memAccessInfo{}, false
	}
}

// narrowIntType returns the iN type of a bytes-wide integer access.
func (fc *funcCtx) narrowIntType(bytes int) llvm.Type {
	switch bytes {
	case 1:
		return fc.cc.I8
	case 2:
		return fc.cc.I16
	case 4:
		return fc.cc.I32
	case 8:
		return fc.cc.I64
	default:
		return fc.cc.V128
	}
}

// memAddr computes the native address of a bytes-wide access at
// addr+offset. In sandbox mode the total offset is checked against the
// cached mem_bound_check_Nbytes bound and raises
// EXCE_OUT_OF_BOUNDS_MEMORY_ACCESS; in no-sandbox mode the
// wasm address is itself a native pointer and the sum converts directly.
func (fc *funcCtx) memAddr(addr stackValue, offset uint64, bytes int) llvm.Value {
	cc := fc.c.cc
	wide := addr.v
	if addr.t == wasm.ValueTypeI32 {
		wide = fc.b.CreateZExt(wide, cc.I64, "")
	}
	total := fc.b.CreateAdd(wide, cc.ConstU64(offset), "")

	if fc.c.opts.NoSandboxMode {
		return fc.b.CreateIntToPtr(total, cc.Ptr, "")
	}

	bound := fc.b.CreateLoad(cc.I64, cc.NamedGlobal(runtime.MemBoundCheckGlobal(bytes)), "")
	oob := fc.b.CreateICmp(llvm.IntSGT, total, bound, "")
	fc.emitTrapIf(oob, runtime.ExceptionOutOfBoundsMemoryAccess)

	base := fc.b.CreateLoad(cc.Ptr, cc.NamedGlobal(runtime.GlobalMemoryData), "")
	return fc.b.CreateInBoundsGEP(cc.I8, base, []llvm.Value{total}, "")
}

// emitMemAccess lowers the plain load/store family (0x28..0x3e): typed
// load/store through a bound-checked pointer with alignment 1.
func (fc *funcCtx) emitMemAccess(op byte) error {
	info, ok := memAccessInfoFor(op)
	if !ok {
		return fmt.Errorf("unsupported memory opcode 0x%x", op)
	}
	if _, err := fc.readU32(); err != nil { // align, validated already
		return err
	}
	offset, err := fc.readMemOffset()
	if err != nil {
		return err
	}
	cc := fc.c.cc

	if info.isStore {
		val := fc.pop()
		addr := fc.pop()
		ptr := fc.memAddr(addr, offset, info.bytes)
		st := val.v
		if !info.isFloat && info.bytes < wasm.CellsOf(info.valType)*4 {
			st = fc.b.CreateTrunc(st, fc.narrowIntType(info.bytes), "")
		}
		inst := fc.b.CreateStore(st, ptr)
		inst.SetAlignment(1)
		return nil
	}

	addr := fc.pop()
	ptr := fc.memAddr(addr, offset, info.bytes)
	loadType := cc.TypeOf(info.valType)
	narrow := !info.isFloat && info.bytes < wasm.CellsOf(info.valType)*4
	if narrow {
		loadType = fc.narrowIntType(info.bytes)
	}
	v := fc.b.CreateLoad(loadType, ptr, "")
	v.SetAlignment(1)
	if narrow {
		if info.signExt {
			v = fc.b.CreateSExt(v, cc.TypeOf(info.valType), "")
		} else {
			v = fc.b.CreateZExt(v, cc.TypeOf(info.valType), "")
		}
	}
	fc.push(v, info.valType)
	return nil
}

// emitMemoryGrow lowers memory.grow: realloc to the new size, zero-fill
// the growth, refresh every memory global and bound cache, or push -1
// leaving all state untouched on any failure.
func (fc *funcCtx) emitMemoryGrow() {
	cc := fc.c.cc
	delta := fc.pop()

	failBB := cc.LLVM.AddBasicBlock(fc.fn, "grow_fail")
	tryBB := cc.LLVM.AddBasicBlock(fc.fn, "grow_try")
	reallocBB := cc.LLVM.AddBasicBlock(fc.fn, "grow_realloc")
	okBB := cc.LLVM.AddBasicBlock(fc.fn, "grow_ok")
	doneBB := cc.LLVM.AddBasicBlock(fc.fn, "grow_done")
	resultPhi := fc.makePhis(doneBB, []wasm.ValueType{wasm.ValueTypeI32})[0]

	cur := fc.b.CreateLoad(cc.I32, cc.NamedGlobal(runtime.GlobalCurPageCount), "")
	maxPages := fc.b.CreateLoad(cc.I32, cc.NamedGlobal(runtime.GlobalMaxPageCount), "")
	newPages := fc.b.CreateAdd(cur, delta.v, "")

	// Overflow or exceeding max both fail without touching state.
	wrapped := fc.b.CreateICmp(llvm.IntULT, newPages, cur, "")
	tooBig := fc.b.CreateICmp(llvm.IntUGT, newPages, maxPages, "")
	bad := fc.b.CreateOr(wrapped, tooBig, "")
	fc.b.CreateCondBr(bad, failBB, tryBB)

	fc.b.SetInsertPointAtEnd(failBB)
	resultPhi.AddIncoming([]llvm.Value{cc.ConstI32(-1)}, []llvm.BasicBlock{failBB})
	fc.b.CreateBr(doneBB)

	fc.b.SetInsertPointAtEnd(tryBB)
	unchanged := fc.b.CreateICmp(llvm.IntEQ, delta.v, cc.ConstI32(0), "")
	resultPhi.AddIncoming([]llvm.Value{cur}, []llvm.BasicBlock{tryBB})
	fc.b.CreateCondBr(unchanged, doneBB, reallocBB)

	fc.b.SetInsertPointAtEnd(reallocBB)
	oldSize := fc.b.CreateLoad(cc.I64, cc.NamedGlobal(runtime.GlobalMemoryDataSize), "")
	newSize := fc.b.CreateMul(fc.b.CreateZExt(newPages, cc.I64, ""), cc.ConstU64(wasm.MemoryPageSize), "")
	oldBase := fc.b.CreateLoad(cc.Ptr, cc.NamedGlobal(runtime.GlobalMemoryData), "")
	reallocFn, reallocType := fc.c.libcRealloc()
	newBase := fc.b.CreateCall(reallocType, reallocFn, []llvm.Value{oldBase, newSize}, "")
	isNull := fc.b.CreateICmp(llvm.IntEQ, newBase, llvm.ConstPointerNull(cc.Ptr), "")
	reallocEnd := fc.b.GetInsertBlock()
	resultPhi.AddIncoming([]llvm.Value{cc.ConstI32(-1)}, []llvm.BasicBlock{reallocEnd})
	fc.b.CreateCondBr(isNull, doneBB, okBB)

	fc.b.SetInsertPointAtEnd(okBB)
	growBase := fc.b.CreateInBoundsGEP(cc.I8, newBase, []llvm.Value{oldSize}, "")
	growLen := fc.b.CreateSub(newSize, oldSize, "")
	fc.c.emitMemset(fc.b, growBase, cc.ConstI8(0), growLen)
	fc.b.CreateStore(newBase, cc.NamedGlobal(runtime.GlobalMemoryData))
	fc.b.CreateStore(newSize, cc.NamedGlobal(runtime.GlobalMemoryDataSize))
	fc.b.CreateStore(newPages, cc.NamedGlobal(runtime.GlobalCurPageCount))
	if !fc.c.opts.NoSandboxMode {
		for _, w := range runtime.MemBoundCheckWidths {
			bound := fc.b.CreateSub(newSize, cc.ConstI64(int64(w)), "")
			fc.b.CreateStore(bound, cc.NamedGlobal(runtime.MemBoundCheckGlobal(w)))
		}
	}
	resultPhi.AddIncoming([]llvm.Value{cur}, []llvm.BasicBlock{okBB})
	fc.b.CreateBr(doneBB)

	fc.b.SetInsertPointAtEnd(doneBB)
	fc.push(resultPhi, wasm.ValueTypeI32)
}

// emitRangeCheck traps with EXCE_OUT_OF_BOUNDS_MEMORY_ACCESS when
// offset+len exceeds the live memory size; the shared helper behind
// memory.copy/fill/init. No-sandbox mode carries no bound
// state and skips the check.
func (fc *funcCtx) emitRangeCheck(offset, length llvm.Value) {
	if fc.c.opts.NoSandboxMode {
		return
	}
	cc := fc.c.cc
	end := fc.b.CreateAdd(fc.b.CreateZExt(offset, cc.I64, ""), fc.b.CreateZExt(length, cc.I64, ""), "")
	size := fc.b.CreateLoad(cc.I64, cc.NamedGlobal(runtime.GlobalMemoryDataSize), "")
	oob := fc.b.CreateICmp(llvm.IntUGT, end, size, "")
	fc.emitTrapIf(oob, runtime.ExceptionOutOfBoundsMemoryAccess)
}

// memBasePlus resolves a wasm memory offset to a native pointer: relative
// to memory_data in sandbox mode, the offset reinterpreted directly in
// no-sandbox mode.
func (fc *funcCtx) memBasePlus(offset llvm.Value) llvm.Value {
	cc := fc.c.cc
	wide := fc.b.CreateZExt(offset, cc.I64, "")
	if fc.c.opts.NoSandboxMode {
		return fc.b.CreateIntToPtr(wide, cc.Ptr, "")
	}
	base := fc.b.CreateLoad(cc.Ptr, cc.NamedGlobal(runtime.GlobalMemoryData), "")
	return fc.b.CreateInBoundsGEP(cc.I8, base, []llvm.Value{wide}, "")
}

// emitMiscOp dispatches the 0xFC family: saturating truncation and bulk
// memory/table operations.
func (fc *funcCtx) emitMiscOp() error {
	sub, err := fc.readU32()
	if err != nil {
		return err
	}
	if sub <= 0x07 {
		return fc.emitTruncSat(sub)
	}
	cc := fc.c.cc

	switch sub {
	case 0x08: // memory.init
		dataIdx, err := fc.readU32()
		if err != nil {
			return err
		}
		if _, err := fc.readU32(); err != nil { // memory index
			return err
		}
		length := fc.pop()
		srcOff := fc.pop()
		dstOff := fc.pop()

		// Source bounds run against the segment's live passive length
		// (zero after data.drop).
		n := len(fc.c.m.DataSection)
		lensType := llvm.ArrayType(cc.I32, n)
		lenPtr := fc.b.CreateInBoundsGEP(lensType, cc.NamedGlobal(runtime.GlobalDataSegLengthsPassive),
			[]llvm.Value{cc.ConstU32(0), cc.ConstU32(dataIdx)}, "")
		segLen := fc.b.CreateLoad(cc.I32, lenPtr, "")
		srcEnd := fc.b.CreateAdd(srcOff.v, length.v, "")
		srcOOB := fc.b.CreateICmp(llvm.IntUGT, srcEnd, segLen, "")
		fc.emitTrapIf(srcOOB, runtime.ExceptionOutOfBoundsMemoryAccess)
		fc.emitRangeCheck(dstOff.v, length.v)

		segsType := llvm.ArrayType(cc.Ptr, n)
		segSlot := fc.b.CreateInBoundsGEP(segsType, cc.NamedGlobal(runtime.GlobalDataSegs),
			[]llvm.Value{cc.ConstU32(0), cc.ConstU32(dataIdx)}, "")
		segBase := fc.b.CreateLoad(cc.Ptr, segSlot, "")
		src := fc.b.CreateInBoundsGEP(cc.I8, segBase, []llvm.Value{fc.b.CreateZExt(srcOff.v, cc.I64, "")}, "")
		dst := fc.memBasePlus(dstOff.v)
		fc.c.emitMemcpy(fc.b, dst, src, fc.b.CreateZExt(length.v, cc.I64, ""))
		return nil

	case 0x09: // data.drop
		dataIdx, err := fc.readU32()
		if err != nil {
			return err
		}
		n := len(fc.c.m.DataSection)
		lensType := llvm.ArrayType(cc.I32, n)
		lenPtr := fc.b.CreateInBoundsGEP(lensType, cc.NamedGlobal(runtime.GlobalDataSegLengthsPassive),
			[]llvm.Value{cc.ConstU32(0), cc.ConstU32(dataIdx)}, "")
		fc.b.CreateStore(cc.ConstU32(0), lenPtr)
		return nil

	case 0x0a: // memory.copy
		if _, err := fc.readU32(); err != nil {
			return err
		}
		if _, err := fc.readU32(); err != nil {
			return err
		}
		length := fc.pop()
		srcOff := fc.pop()
		dstOff := fc.pop()
		fc.emitRangeCheck(srcOff.v, length.v)
		fc.emitRangeCheck(dstOff.v, length.v)
		dst := fc.memBasePlus(dstOff.v)
		src := fc.memBasePlus(srcOff.v)
		fc.c.emitMemmove(fc.b, dst, src, fc.b.CreateZExt(length.v, cc.I64, ""))
		return nil

	case 0x0b: // memory.fill
		if _, err := fc.readU32(); err != nil {
			return err
		}
		length := fc.pop()
		val := fc.pop()
		dstOff := fc.pop()
		fc.emitRangeCheck(dstOff.v, length.v)
		dst := fc.memBasePlus(dstOff.v)
		b8 := fc.b.CreateTrunc(val.v, cc.I8, "")
		fc.c.emitMemset(fc.b, dst, b8, fc.b.CreateZExt(length.v, cc.I64, ""))
		return nil

	case 0x0c, 0x0e, 0x11: // table.init / table.copy / table.fill
		// The single, fixed-size funcref table never participates in bulk
		// table transfers produced by the supported toolchains; treat a
		// dynamic use as an out-of-bounds table condition.
		if _, err := fc.readU32(); err != nil {
			return err
		}
		if sub != 0x11 {
			if _, err := fc.readU32(); err != nil {
				return err
			}
		}
		fc.popN(3)
		fc.emitTrap(runtime.ExceptionOutOfBoundsTableAccess)
		fc.enterDead()
		return nil

	case 0x0d: // elem.drop: passive element segments are never retained
		_, err := fc.readU32()
		return err

	case 0x0f: // table.grow: fixed table, always -1
		if _, err := fc.readU32(); err != nil {
			return err
		}
		fc.popN(2)
		fc.push(cc.ConstI32(-1), wasm.ValueTypeI32)
		return nil

	case 0x10: // table.size
		if _, err := fc.readU32(); err != nil {
			return err
		}
		fc.push(cc.ConstU32(uint32(fc.c.tableSize)), wasm.ValueTypeI32)
		return nil

	default:
		return fmt.Errorf("unsupported misc opcode 0xfc 0x%x", sub)
	}
}
