package validator

import "github.com/w2n-dev/wasm2native/internal/wasm"

// memoryOpInfo describes a non-atomic load/store opcode: the value type it
// moves, whether it's a store (pop only, no push) or a load (push only),
// the access width in bytes (used to select the mem_bound_check_Nbytes
// global), and the maximum (natural) alignment exponent permitted for the
// opcode family.
type memoryOpInfo struct {
	valType    wasm.ValueType
	isStore    bool
	size       int
	maxAlign   uint32
	recognized bool
}

func memOpInfo(op byte) memoryOpInfo {
	i32, i64, f32, f64 := wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64
	switch op {
	case 0x28:
		return memoryOpInfo{i32, false, 4, 2, true}
	case 0x29:
		return memoryOpInfo{i64, false, 8, 3, true}
	case 0x2a:
		return memoryOpInfo{f32, false, 4, 2, true}
	case 0x2b:
		return memoryOpInfo{f64, false, 8, 3, true}
	case 0x2c:
		return memoryOpInfo{i32, false, 1, 0, true}
	case 0x2d:
		return memoryOpInfo{i32, false, 1, 0, true}
	case 0x2e:
		return memoryOpInfo{i32, false, 2, 1, true}
	case 0x2f:
		return memoryOpInfo{i32, false, 2, 1, true}
	case 0x30:
		return memoryOpInfo{i64, false, 1, 0, true}
	case 0x31:
		return memoryOpInfo{i64, false, 1, 0, true}
	case 0x32:
		return memoryOpInfo{i64, false, 2, 1, true}
	case 0x33:
		return memoryOpInfo{i64, false, 2, 1, true}
	case 0x34:
		return memoryOpInfo{i64, false, 4, 2, true}
	case 0x35:
		return memoryOpInfo{i64, false, 4, 2, true}
	case 0x36:
		return memoryOpInfo{i32, true, 4, 2, true}
	case 0x37:
		return memoryOpInfo{i64, true, 8, 3, true}
	case 0x38:
		return memoryOpInfo{f32, true, 4, 2, true}
	case 0x39:
		return memoryOpInfo{f64, true, 8, 3, true}
	case 0x3a:
		return memoryOpInfo{i32, true, 1, 0, true}
	case 0x3b:
		return memoryOpInfo{i32, true, 2, 1, true}
	case 0x3c:
		return memoryOpInfo{i64, true, 1, 0, true}
	case 0x3d:
		return memoryOpInfo{i64, true, 2, 1, true}
	case 0x3e:
		return memoryOpInfo{i64, true, 4, 2, true}
	default:
		return memoryOpInfo{}
	}
}

// atomicOpInfo describes a 0xFE-prefixed threads opcode. Atomics require
// exact natural alignment, not merely "at most".
type atomicOpInfo struct {
	valType    wasm.ValueType
	kind       atomicKind
	size       int
	align      uint32
	recognized bool
}

type atomicKind int

const (
	atomicLoad atomicKind = iota
	atomicStore
	atomicRMW
	atomicCmpxchg
	atomicFence
)

func atomicOpInfoFor(sub uint32) atomicOpInfo {
	i32, i64 := wasm.ValueTypeI32, wasm.ValueTypeI64
	switch sub {
	case 0x00: // memory.atomic.notify
		return atomicOpInfo{i32, atomicRMW, 4, 2, true}
	case 0x01, 0x02: // memory.atomic.wait32/64
		if sub == 0x01 {
			return atomicOpInfo{i32, atomicRMW, 4, 2, true}
		}
		return atomicOpInfo{i64, atomicRMW, 8, 3, true}
	case 0x03:
		return atomicOpInfo{0, atomicFence, 0, 0, true}
	case 0x10:
		return atomicOpInfo{i32, atomicLoad, 4, 2, true}
	case 0x11:
		return atomicOpInfo{i64, atomicLoad, 8, 3, true}
	case 0x12:
		return atomicOpInfo{i32, atomicLoad, 1, 0, true}
	case 0x13:
		return atomicOpInfo{i32, atomicLoad, 2, 1, true}
	case 0x14:
		return atomicOpInfo{i64, atomicLoad, 1, 0, true}
	case 0x15:
		return atomicOpInfo{i64, atomicLoad, 2, 1, true}
	case 0x16:
		return atomicOpInfo{i64, atomicLoad, 4, 2, true}
	case 0x17:
		return atomicOpInfo{i32, atomicStore, 4, 2, true}
	case 0x18:
		return atomicOpInfo{i64, atomicStore, 8, 3, true}
	case 0x19:
		return atomicOpInfo{i32, atomicStore, 1, 0, true}
	case 0x1a:
		return atomicOpInfo{i32, atomicStore, 2, 1, true}
	case 0x1b:
		return atomicOpInfo{i64, atomicStore, 1, 0, true}
	case 0x1c:
		return atomicOpInfo{i64, atomicStore, 2, 1, true}
	case 0x1d:
		return atomicOpInfo{i64, atomicStore, 4, 2, true}
	default:
		// rmw.add/sub/and/or/xor/xchg and cmpxchg, for both i32/i64 and
		// every narrow width, follow a contiguous block from 0x1e..0x4e
		// in groups of 7 widths (i32, i32_8u, i32_16u, i64, i64_8u,
		// i64_16u, i64_32u) per opcode kind.
		return atomicRMWRange(sub)
	}
}

func atomicRMWRange(sub uint32) atomicOpInfo {
	i32, i64 := wasm.ValueTypeI32, wasm.ValueTypeI64
	widths := []struct {
		valType wasm.ValueType
		size    int
		align   uint32
	}{
		{i32, 4, 2}, {i32, 1, 0}, {i32, 2, 1},
		{i64, 8, 3}, {i64, 1, 0}, {i64, 2, 1}, {i64, 4, 2},
	}
	kinds := []atomicKind{atomicRMW, atomicRMW, atomicRMW, atomicRMW, atomicRMW, atomicRMW, atomicCmpxchg}
	const base = 0x1e
	const kindWidth = 7
	if sub < base {
		return atomicOpInfo{}
	}
	rel := sub - base
	kindIdx := int(rel) / kindWidth
	widthIdx := int(rel) % kindWidth
	if kindIdx >= len(kinds) || widthIdx >= len(widths) {
		return atomicOpInfo{}
	}
	w := widths[widthIdx]
	return atomicOpInfo{w.valType, kinds[kindIdx], w.size, w.align, true}
}
