package validator

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// validateMiscOpcode handles the 0xFC-prefixed family: saturating
// truncation (sub 0x00-0x07) and bulk-memory (sub 0x08-0x11). pos points
// just past the 0xFC byte on entry and is advanced past the whole
// instruction (sub-opcode plus any immediates) on return.
func validateMiscOpcode(m *wasm.Module, body []byte, pos *int, stack *operandStack, floor int, poly bool) (uint32, error) {
	sub, n, err := leb128.LoadUint32(body[*pos:])
	if err != nil {
		return 0, fmt.Errorf("misc opcode: %w", err)
	}
	*pos += int(n)

	if sub <= 0x07 {
		sig := miscTruncSaturatingSignature(sub)
		if !sig.valid {
			return sub, fmt.Errorf("unsupported misc opcode 0xfc 0x%x", sub)
		}
		for _, p := range sig.pops {
			if err := stack.popExpect(p, floor, poly); err != nil {
				return sub, err
			}
		}
		return sub, stack.push(sig.push)
	}

	switch sub {
	case 0x08: // memory.init
		dataIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if !m.HasDataCount {
			return sub, fmt.Errorf("memory.init requires a data count section")
		}
		if dataIdx >= m.DataCountSection {
			return sub, fmt.Errorf("unknown data segment %d", dataIdx)
		}
		memIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if memIdx != 0 {
			return sub, fmt.Errorf("memory.init: memory index must be 0")
		}
		if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
			return sub, err
		}
		if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
			return sub, err
		}
		return sub, stack.popExpect(wasm.ValueTypeI32, floor, poly)

	case 0x09: // data.drop
		dataIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if !m.HasDataCount || dataIdx >= m.DataCountSection {
			return sub, fmt.Errorf("unknown data segment %d", dataIdx)
		}
		return sub, nil

	case 0x0a: // memory.copy
		dst, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		src, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if dst != 0 || src != 0 {
			return sub, fmt.Errorf("memory.copy: memory index must be 0")
		}
		for i := 0; i < 3; i++ {
			if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
				return sub, err
			}
		}
		return sub, nil

	case 0x0b: // memory.fill
		memIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if memIdx != 0 {
			return sub, fmt.Errorf("memory.fill: memory index must be 0")
		}
		for i := 0; i < 3; i++ {
			if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
				return sub, err
			}
		}
		return sub, nil

	case 0x0c: // table.init
		_, n, err := leb128.LoadUint32(body[*pos:]) // elem index
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		tableIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if tableIdx != 0 {
			return sub, fmt.Errorf("table.init: table index must be 0")
		}
		for i := 0; i < 3; i++ {
			if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
				return sub, err
			}
		}
		return sub, nil

	case 0x0d: // elem.drop
		_, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		return sub, nil

	case 0x0e: // table.copy
		dst, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		src, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if dst != 0 || src != 0 {
			return sub, fmt.Errorf("table.copy: table index must be 0")
		}
		for i := 0; i < 3; i++ {
			if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
				return sub, err
			}
		}
		return sub, nil

	case 0x0f: // table.grow
		tableIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if tableIdx != 0 {
			return sub, fmt.Errorf("table.grow: table index must be 0")
		}
		if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
			return sub, err
		}
		if err := stack.popExpect(wasm.ValueTypeFuncref, floor, poly); err != nil {
			return sub, err
		}
		return sub, stack.push(wasm.ValueTypeI32)

	case 0x10: // table.size
		tableIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if tableIdx != 0 {
			return sub, fmt.Errorf("table.size: table index must be 0")
		}
		return sub, stack.push(wasm.ValueTypeI32)

	case 0x11: // table.fill
		tableIdx, n, err := leb128.LoadUint32(body[*pos:])
		if err != nil {
			return sub, err
		}
		*pos += int(n)
		if tableIdx != 0 {
			return sub, fmt.Errorf("table.fill: table index must be 0")
		}
		if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
			return sub, err
		}
		if err := stack.popExpect(wasm.ValueTypeFuncref, floor, poly); err != nil {
			return sub, err
		}
		return sub, stack.popExpect(wasm.ValueTypeI32, floor, poly)

	default:
		return sub, fmt.Errorf("unsupported misc opcode 0xfc 0x%x", sub)
	}
}
