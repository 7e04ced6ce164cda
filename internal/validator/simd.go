package validator

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// validateSimdOpcode handles the 0xFD-prefixed vector family. Only the
// opcodes the compiler backend actually emits are recognized: v128.load,
// v128.store, v128.const, and the lane extract/replace ops; the full
// ~200-entry SIMD catalog is out of scope.
func validateSimdOpcode(m *wasm.Module, body []byte, pos *int, stack *operandStack, floor int, poly bool) error {
	sub, n, err := leb128.LoadUint32(body[*pos:])
	if err != nil {
		return fmt.Errorf("simd opcode: %w", err)
	}
	*pos += int(n)

	v128 := wasm.ValueTypeV128

	switch sub {
	case 0x00: // v128.load
		return validateSimdMemArg(m, body, pos, stack, floor, poly, 16, false, wasm.ValueTypeAny)
	case 0x0b: // v128.store
		return validateSimdMemArg(m, body, pos, stack, floor, poly, 16, true, v128)
	case 0x0c: // v128.const
		if *pos+16 > len(body) {
			return fmt.Errorf("v128.const: truncated")
		}
		*pos += 16
		return stack.push(v128)

	case 0x15, 0x16, 0x17, 0x18: // i8x16/i16x8/i32x4/i64x2.extract_lane (+_s/_u variants collapse by sub range below)
		return validateLaneIndex(body, pos, laneCountFor(sub), stack, floor, poly, v128, extractResultType(sub))
	case 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20, 0x21, 0x22:
		// remaining extract_lane_u/replace_lane variants across widths;
		// handled generically via opcode table below.
		return validateExtractOrReplace(sub, body, pos, stack, floor, poly)

	default:
		return fmt.Errorf("unsupported simd opcode 0xfd 0x%x", sub)
	}
}

func validateSimdMemArg(m *wasm.Module, body []byte, pos *int, stack *operandStack, floor int, poly bool, maxAlign uint32, isStore bool, storeVal wasm.ValueType) error {
	align, n, err := leb128.LoadUint32(body[*pos:])
	if err != nil {
		return err
	}
	*pos += int(n)
	if align > 4 { // natural alignment exponent for 16-byte access is 4
		return fmt.Errorf("alignment must not be larger than natural")
	}
	mem, hasMem := m.SoleMemory()
	if !hasMem {
		return fmt.Errorf("memory access without a memory")
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
	if isStore {
		if err := stack.popExpect(storeVal, floor, poly); err != nil {
			return err
		}
		return stack.popExpect(addrType, floor, poly)
	}
	if err := stack.popExpect(addrType, floor, poly); err != nil {
		return err
	}
	return stack.push(wasm.ValueTypeV128)
}

func laneCountFor(sub uint32) int {
	switch sub {
	case 0x15:
		return 16
	case 0x16:
		return 8
	case 0x17:
		return 4
	default:
		return 2
	}
}

func extractResultType(sub uint32) wasm.ValueType {
	switch sub {
	case 0x15, 0x16:
		return wasm.ValueTypeI32
	case 0x17:
		return wasm.ValueTypeI32
	case 0x18:
		return wasm.ValueTypeI64
	default:
		return wasm.ValueTypeI32
	}
}

func validateLaneIndex(body []byte, pos *int, laneCount int, stack *operandStack, floor int, poly bool, operand, result wasm.ValueType) error {
	if *pos >= len(body) {
		return fmt.Errorf("lane index: truncated")
	}
	lane := body[*pos]
	*pos++
	if int(lane) >= laneCount {
		return fmt.Errorf("lane index %d out of range for %d lanes", lane, laneCount)
	}
	if err := stack.popExpect(operand, floor, poly); err != nil {
		return err
	}
	return stack.push(result)
}

func validateExtractOrReplace(sub uint32, body []byte, pos *int, stack *operandStack, floor int, poly bool) error {
	if *pos >= len(body) {
		return fmt.Errorf("lane index: truncated")
	}
	lane := body[*pos]
	*pos++

	type laneOp struct {
		laneCount  int
		isReplace  bool
		scalarType wasm.ValueType
	}
	ops := map[uint32]laneOp{
		0x19: {16, false, wasm.ValueTypeI32}, // i8x16.extract_lane_u
		0x1a: {16, true, wasm.ValueTypeI32},  // i8x16.replace_lane
		0x1b: {8, false, wasm.ValueTypeI32},  // i16x8.extract_lane_u
		0x1c: {8, true, wasm.ValueTypeI32},   // i16x8.replace_lane
		0x1d: {4, true, wasm.ValueTypeI32},   // i32x4.replace_lane
		0x1e: {2, true, wasm.ValueTypeI64},   // i64x2.replace_lane
		0x1f: {4, false, wasm.ValueTypeF32},  // f32x4.extract_lane
		0x20: {4, true, wasm.ValueTypeF32},   // f32x4.replace_lane
		0x21: {2, false, wasm.ValueTypeF64},  // f64x2.extract_lane
		0x22: {2, true, wasm.ValueTypeF64},   // f64x2.replace_lane
	}
	op, ok := ops[sub]
	if !ok {
		return fmt.Errorf("unsupported simd lane opcode 0xfd 0x%x", sub)
	}
	if int(lane) >= op.laneCount {
		return fmt.Errorf("lane index %d out of range for %d lanes", lane, op.laneCount)
	}
	if op.isReplace {
		if err := stack.popExpect(op.scalarType, floor, poly); err != nil {
			return err
		}
		if err := stack.popExpect(wasm.ValueTypeV128, floor, poly); err != nil {
			return err
		}
		return stack.push(wasm.ValueTypeV128)
	}
	if err := stack.popExpect(wasm.ValueTypeV128, floor, poly); err != nil {
		return err
	}
	return stack.push(op.scalarType)
}
