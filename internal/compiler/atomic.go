package compiler

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// atomicAccess describes one 0xFE opcode for emission: operand type,
// access width, and shape.
type atomicAccess struct {
	valType wasm.ValueType
	bytes   int
	kind    atomicEmitKind
	rmwOp   llvm.AtomicRMWBinOp
}

type atomicEmitKind int

const (
	atomicEmitLoad atomicEmitKind = iota
	atomicEmitStore
	atomicEmitRMW
	atomicEmitCmpxchg
	atomicEmitWaitNotify
	atomicEmitFence
)

func atomicAccessFor(sub uint32) (atomicAccess, bool) {
	i32, i64 := wasm.ValueTypeI32, wasm.ValueTypeI64
	switch sub {
	case 0x00:
		return atomicAccess{i32, 4, atomicEmitWaitNotify, 0}, true
	case 0x01:
		return atomicAccess{i32, 4, atomicEmitWaitNotify, 0}, true
	case 0x02:
		return atomicAccess{i64, 8, atomicEmitWaitNotify, 0}, true
	case 0x03:
		return atomicAccess{0, 0, atomicEmitFence, 0}, true
	case 0x10:
		return atomicAccess{i32, 4, atomicEmitLoad, 0}, true
	case 0x11:
		return atomicAccess{i64, 8, atomicEmitLoad, 0}, true
	case 0x12:
		return atomicAccess{i32, 1, atomicEmitLoad, 0}, true
	case 0x13:
		return atomicAccess{i32, 2, atomicEmitLoad, 0}, true
	case 0x14:
		return atomicAccess{i64, 1, atomicEmitLoad, 0}, true
	case 0x15:
		return atomicAccess{i64, 2, atomicEmitLoad, 0}, true
	case 0x16:
		return atomicAccess{i64, 4, atomicEmitLoad, 0}, true
	case 0x17:
		return atomicAccess{i32, 4, atomicEmitStore, 0}, true
	case 0x18:
		return atomicAccess{i64, 8, atomicEmitStore, 0}, true
	case 0x19:
		return atomicAccess{i32, 1, atomicEmitStore, 0}, true
	case 0x1a:
		return atomicAccess{i32, 2, atomicEmitStore, 0}, true
	case 0x1b:
		return atomicAccess{i64, 1, atomicEmitStore, 0}, true
	case 0x1c:
		return atomicAccess{i64, 2, atomicEmitStore, 0}, true
	case 0x1d:
		return atomicAccess{i64, 4, atomicEmitStore, 0}, true
	}

	// rmw add/sub/and/or/xor/xchg then cmpxchg, each over seven widths
	// (mirroring the validator's atomicRMWRange).
	const base = 0x1e
	const kindWidth = 7
	if sub < base {
		return atomicAccess{}, false
	}
	rel := sub - base
	kindIdx := int(rel) / kindWidth
	widthIdx := int(rel) % kindWidth
	rmwOps := []llvm.AtomicRMWBinOp{
		llvm.AtomicRMWBinOpAdd, llvm.AtomicRMWBinOpSub, llvm.AtomicRMWBinOpAnd,
		llvm.AtomicRMWBinOpOr, llvm.AtomicRMWBinOpXor, llvm.AtomicRMWBinOpXchg,
	}
	widths := []struct {
		valType wasm.ValueType
		bytes   int
	}{
		{i32, 4}, {i32, 1}, {i32, 2},
		{i64, 8}, {i64, 1}, {i64, 2}, {i64, 4},
	}
	if kindIdx > len(rmwOps) || widthIdx >= len(widths) {
		return atomicAccess{}, false
	}
	w := widths[widthIdx]
	if kindIdx == len(rmwOps) {
		return atomicAccess{w.valType, w.bytes, atomicEmitCmpxchg, 0}, true
	}
	return atomicAccess{w.valType, w.bytes, atomicEmitRMW, rmwOps[kindIdx]}, true
}

// atomicAddr computes the checked access address, with the extra exact
// alignment pre-check atomics require: a misaligned address raises
// EXCE_UNALIGNED_ATOMIC before the bound check runs.
func (fc *funcCtx) atomicAddr(addr stackValue, offset uint64, bytes int) llvm.Value {
	cc := fc.c.cc
	if bytes > 1 {
		wide := addr.v
		if addr.t == wasm.ValueTypeI32 {
			wide = fc.b.CreateZExt(wide, cc.I64, "")
		}
		total := fc.b.CreateAdd(wide, cc.ConstU64(offset), "")
		masked := fc.b.CreateAnd(total, cc.ConstU64(uint64(bytes-1)), "")
		misaligned := fc.b.CreateICmp(llvm.IntNE, masked, cc.ConstU64(0), "")
		fc.emitTrapIf(misaligned, runtime.ExceptionUnalignedAtomic)
	}
	return fc.memAddr(addr, offset, bytes)
}

// emitAtomicOp dispatches the 0xFE threads family: SequentiallyConsistent
// volatile accesses throughout.
func (fc *funcCtx) emitAtomicOp() error {
	cc := fc.c.cc
	sub, err := fc.readU32()
	if err != nil {
		return err
	}
	info, ok := atomicAccessFor(sub)
	if !ok {
		return fmt.Errorf("unsupported atomic opcode 0xfe 0x%x", sub)
	}

	if info.kind == atomicEmitFence {
		fc.pos++ // reserved byte
		fc.b.CreateFence(llvm.AtomicOrderingSequentiallyConsistent, false, "")
		return nil
	}

	if _, err := fc.readU32(); err != nil { // align, validated exact
		return err
	}
	offset, err := fc.readMemOffset()
	if err != nil {
		return err
	}

	valType := cc.TypeOf(info.valType)
	narrowType := fc.narrowIntType(info.bytes)
	narrow := info.bytes < wasm.CellsOf(info.valType)*4

	switch info.kind {
	case atomicEmitWaitNotify:
		// The single-instance, single-threaded runtime model
		// never blocks: notify wakes nobody, wait observes the value once
		// and reports "not-equal" or "timed out" immediately.
		if sub == 0x00 {
			fc.pop() // count
			addr := fc.pop()
			fc.atomicAddr(addr, offset, info.bytes)
			fc.push(cc.ConstI32(0), wasm.ValueTypeI32)
			return nil
		}
		fc.pop() // timeout
		expected := fc.pop()
		addr := fc.pop()
		ptr := fc.atomicAddr(addr, offset, info.bytes)
		ld := fc.b.CreateLoad(valType, ptr, "")
		ld.SetOrdering(llvm.AtomicOrderingSequentiallyConsistent)
		ld.SetVolatile(true)
		ld.SetAlignment(info.bytes)
		eq := fc.b.CreateICmp(llvm.IntEQ, ld, expected.v, "")
		res := fc.b.CreateSelect(eq, cc.ConstI32(2), cc.ConstI32(1), "")
		fc.push(res, wasm.ValueTypeI32)
		return nil

	case atomicEmitLoad:
		addr := fc.pop()
		ptr := fc.atomicAddr(addr, offset, info.bytes)
		loadType := valType
		if narrow {
			loadType = narrowType
		}
		ld := fc.b.CreateLoad(loadType, ptr, "")
		ld.SetOrdering(llvm.AtomicOrderingSequentiallyConsistent)
		ld.SetVolatile(true)
		ld.SetAlignment(info.bytes)
		v := ld
		if narrow {
			v = fc.b.CreateZExt(v, valType, "")
		}
		fc.push(v, info.valType)
		return nil

	case atomicEmitStore:
		val := fc.pop()
		addr := fc.pop()
		ptr := fc.atomicAddr(addr, offset, info.bytes)
		st := val.v
		if narrow {
			st = fc.b.CreateTrunc(st, narrowType, "")
		}
		inst := fc.b.CreateStore(st, ptr)
		inst.SetOrdering(llvm.AtomicOrderingSequentiallyConsistent)
		inst.SetVolatile(true)
		inst.SetAlignment(info.bytes)
		return nil

	case atomicEmitRMW:
		val := fc.pop()
		addr := fc.pop()
		ptr := fc.atomicAddr(addr, offset, info.bytes)
		op := val.v
		if narrow {
			op = fc.b.CreateTrunc(op, narrowType, "")
		}
		rmw := fc.b.CreateAtomicRMW(info.rmwOp, ptr, op, llvm.AtomicOrderingSequentiallyConsistent, false)
		rmw.SetVolatile(true)
		v := rmw
		if narrow {
			v = fc.b.CreateZExt(v, valType, "")
		}
		fc.push(v, info.valType)
		return nil

	default: // cmpxchg
		repl := fc.pop()
		expected := fc.pop()
		addr := fc.pop()
		ptr := fc.atomicAddr(addr, offset, info.bytes)
		e, r := expected.v, repl.v
		if narrow {
			e = fc.b.CreateTrunc(e, narrowType, "")
			r = fc.b.CreateTrunc(r, narrowType, "")
		}
		cx := fc.b.CreateAtomicCmpXchg(ptr, e, r,
			llvm.AtomicOrderingSequentiallyConsistent, llvm.AtomicOrderingSequentiallyConsistent, false)
		cx.SetVolatile(true)
		v := fc.b.CreateExtractValue(cx, 0, "")
		if narrow {
			v = fc.b.CreateZExt(v, valType, "")
		}
		fc.push(v, info.valType)
		return nil
	}
}
