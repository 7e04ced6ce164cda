package validator

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// validateAtomicOpcode handles the 0xFE-prefixed threads family. Atomics
// require exact natural alignment, not merely "at most".
func validateAtomicOpcode(m *wasm.Module, body []byte, pos *int, stack *operandStack, floor int, poly bool) error {
	sub, n, err := leb128.LoadUint32(body[*pos:])
	if err != nil {
		return fmt.Errorf("atomic opcode: %w", err)
	}
	*pos += int(n)

	info := atomicOpInfoFor(sub)
	if !info.recognized {
		return fmt.Errorf("unsupported atomic opcode 0xfe 0x%x", sub)
	}

	if info.kind == atomicFence {
		if *pos >= len(body) || body[*pos] != 0 {
			return fmt.Errorf("atomic.fence: reserved byte must be 0")
		}
		*pos++
		return nil
	}

	align, n, err := leb128.LoadUint32(body[*pos:])
	if err != nil {
		return err
	}
	*pos += int(n)
	if align != info.align {
		return fmt.Errorf("atomic access requires exact natural alignment")
	}
	mem, hasMem := m.SoleMemory()
	if !hasMem {
		return fmt.Errorf("atomic memory access without a memory")
	}
	if mem.Limits.Index64() {
		_, n, err = leb128.LoadUint64(body[*pos:])
	} else {
		_, n, err = leb128.LoadUint32(body[*pos:])
	}
	if err != nil {
		return err
	}
	*pos += int(n)

	addrType := wasm.ValueType(wasm.ValueTypeI32)
	if mem.Limits.Index64() {
		addrType = wasm.ValueTypeI64
	}

	switch sub {
	case 0x00: // memory.atomic.notify: addr, count -> i32
		if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
			return err
		}
		if err := stack.popExpect(addrType, floor, poly); err != nil {
			return err
		}
		return stack.push(wasm.ValueTypeI32)
	case 0x01, 0x02: // memory.atomic.wait32/64: addr, expected, timeout -> i32
		if err := stack.popExpect(wasm.ValueTypeI64, floor, poly); err != nil {
			return err
		}
		if err := stack.popExpect(info.valType, floor, poly); err != nil {
			return err
		}
		if err := stack.popExpect(addrType, floor, poly); err != nil {
			return err
		}
		return stack.push(wasm.ValueTypeI32)
	}

	switch info.kind {
	case atomicLoad:
		if err := stack.popExpect(addrType, floor, poly); err != nil {
			return err
		}
		return stack.push(info.valType)
	case atomicStore:
		if err := stack.popExpect(info.valType, floor, poly); err != nil {
			return err
		}
		return stack.popExpect(addrType, floor, poly)
	case atomicRMW:
		if err := stack.popExpect(info.valType, floor, poly); err != nil {
			return err
		}
		if err := stack.popExpect(addrType, floor, poly); err != nil {
			return err
		}
		return stack.push(info.valType)
	case atomicCmpxchg:
		if err := stack.popExpect(info.valType, floor, poly); err != nil {
			return err
		}
		if err := stack.popExpect(info.valType, floor, poly); err != nil {
			return err
		}
		if err := stack.popExpect(addrType, floor, poly); err != nil {
			return err
		}
		return stack.push(info.valType)
	default:
		return fmt.Errorf("unsupported atomic opcode 0xfe 0x%x", sub)
	}
}
