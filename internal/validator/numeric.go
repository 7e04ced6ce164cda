package validator

import "github.com/w2n-dev/wasm2native/internal/wasm"

// numericSignature describes the (pop, push) shape of a plain numeric
// opcode: comparisons, arithmetic, and conversions. Control-flow, memory,
// local/global, and parametric opcodes are handled separately since their
// shape depends on an immediate or the enclosing block, not just the
// opcode byte.
type numericSignature struct {
	pops  []wasm.ValueType
	push  wasm.ValueType
	valid bool
}

func sig1(pop, push wasm.ValueType) numericSignature {
	return numericSignature{pops: []wasm.ValueType{pop}, push: push, valid: true}
}

func sig2(pop wasm.ValueType, push wasm.ValueType) numericSignature {
	return numericSignature{pops: []wasm.ValueType{pop, pop}, push: push, valid: true}
}

// numericOpcodeSignature returns the operand/result shape for the large,
// regular family of MVP numeric opcodes (0x45..0xbf) plus the
// sign-extension ops (0xc0..0xc4). Most of this range
// is organized in fixed-width runs by type and arity, mirroring the
// canonical WebAssembly opcode table.
func numericOpcodeSignature(op byte) numericSignature {
	i32, i64, f32, f64 := wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64
	switch {
	case op == 0x45: // i32.eqz
		return sig1(i32, i32)
	case op >= 0x46 && op <= 0x4f: // i32 relops
		return sig2(i32, i32)
	case op == 0x50: // i64.eqz
		return sig1(i64, i32)
	case op >= 0x51 && op <= 0x5a: // i64 relops
		return sig2(i64, i32)
	case op >= 0x5b && op <= 0x60: // f32 relops
		return sig2(f32, i32)
	case op >= 0x61 && op <= 0x66: // f64 relops
		return sig2(f64, i32)
	case op >= 0x67 && op <= 0x69: // i32 clz/ctz/popcnt
		return sig1(i32, i32)
	case op >= 0x6a && op <= 0x78: // i32 binops
		return sig2(i32, i32)
	case op >= 0x79 && op <= 0x7b: // i64 clz/ctz/popcnt
		return sig1(i64, i64)
	case op >= 0x7c && op <= 0x8a: // i64 binops
		return sig2(i64, i64)
	case op >= 0x8b && op <= 0x91: // f32 unops
		return sig1(f32, f32)
	case op >= 0x92 && op <= 0x98: // f32 binops
		return sig2(f32, f32)
	case op >= 0x99 && op <= 0x9f: // f64 unops
		return sig1(f64, f64)
	case op >= 0xa0 && op <= 0xa6: // f64 binops
		return sig2(f64, f64)
	case op == 0xa7: // i32.wrap_i64
		return sig1(i64, i32)
	case op >= 0xa8 && op <= 0xa9: // i32.trunc_f32_s/u
		return sig1(f32, i32)
	case op >= 0xaa && op <= 0xab: // i32.trunc_f64_s/u
		return sig1(f64, i32)
	case op >= 0xac && op <= 0xad: // i64.extend_i32_s/u
		return sig1(i32, i64)
	case op >= 0xae && op <= 0xaf: // i64.trunc_f32_s/u
		return sig1(f32, i64)
	case op >= 0xb0 && op <= 0xb1: // i64.trunc_f64_s/u
		return sig1(f64, i64)
	case op >= 0xb2 && op <= 0xb3: // f32.convert_i32_s/u
		return sig1(i32, f32)
	case op >= 0xb4 && op <= 0xb5: // f32.convert_i64_s/u
		return sig1(i64, f32)
	case op == 0xb6: // f32.demote_f64
		return sig1(f64, f32)
	case op >= 0xb7 && op <= 0xb8: // f64.convert_i32_s/u
		return sig1(i32, f64)
	case op >= 0xb9 && op <= 0xba: // f64.convert_i64_s/u
		return sig1(i64, f64)
	case op == 0xbb: // f64.promote_f32
		return sig1(f32, f64)
	case op == 0xbc: // i32.reinterpret_f32
		return sig1(f32, i32)
	case op == 0xbd: // i64.reinterpret_f64
		return sig1(f64, i64)
	case op == 0xbe: // f32.reinterpret_i32
		return sig1(i32, f32)
	case op == 0xbf: // f64.reinterpret_i64
		return sig1(i64, f64)
	case op >= 0xc0 && op <= 0xc4: // sign-extension ops (i32/i64 extend8/16/32_s)
		if op <= 0xc1 {
			return sig1(i32, i32)
		}
		return sig1(i64, i64)
	default:
		return numericSignature{}
	}
}

// miscTruncSaturatingSignature handles the 0xFC 0x00..0x07 saturating
// truncation family, which shares the trunc opcodes' type shape but never
// traps.
func miscTruncSaturatingSignature(sub uint32) numericSignature {
	i32, i64, f32, f64 := wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64
	switch sub {
	case 0, 1:
		return sig1(f32, i32)
	case 2, 3:
		return sig1(f64, i32)
	case 4, 5:
		return sig1(f32, i64)
	case 6, 7:
		return sig1(f64, i64)
	default:
		return numericSignature{}
	}
}
