package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeConstExpr reads a constant expression: one recognized opcode, its
// immediate, and the terminating 0x0b. Only the handful of opcodes legal in
// a global/element/data initializer are accepted.
func decodeConstExpr(b []byte) (wasm.ConstantExpression, []byte, error) {
	op, rest, err := readByte(b)
	if err != nil {
		return wasm.ConstantExpression{}, nil, fmt.Errorf("const expr opcode: %w", err)
	}
	start := rest
	switch op {
	case wasm.OpcodeI32Const:
		_, rest, err = readS32(rest)
	case wasm.OpcodeI64Const:
		_, rest, err = readS64(rest)
	case wasm.OpcodeF32Const:
		if len(rest) < 4 {
			return wasm.ConstantExpression{}, nil, fmt.Errorf("truncated f32.const")
		}
		rest = rest[4:]
	case wasm.OpcodeF64Const:
		if len(rest) < 8 {
			return wasm.ConstantExpression{}, nil, fmt.Errorf("truncated f64.const")
		}
		rest = rest[8:]
	case wasm.OpcodeV128Const:
		// 0xFD prefix is itself the opcode byte here; the sub-opcode leb
		// (0x0C for v128.const) precedes the 16 raw bytes.
		sub, r, serr := readU32(rest)
		if serr != nil {
			return wasm.ConstantExpression{}, nil, fmt.Errorf("v128.const sub-opcode: %w", serr)
		}
		if sub != 0x0c {
			return wasm.ConstantExpression{}, nil, fmt.Errorf("invalid simd const expr sub-opcode: %d", sub)
		}
		if len(r) < 16 {
			return wasm.ConstantExpression{}, nil, fmt.Errorf("truncated v128.const")
		}
		rest = r[16:]
	case wasm.OpcodeRefFunc:
		_, rest, err = readU32(rest)
	case wasm.OpcodeGlobalGet:
		_, rest, err = readU32(rest)
	default:
		return wasm.ConstantExpression{}, nil, fmt.Errorf("invalid constant expression opcode: 0x%x", op)
	}
	if err != nil {
		return wasm.ConstantExpression{}, nil, fmt.Errorf("const expr immediate: %w", err)
	}
	data := start[:len(start)-len(rest)]

	end, rest, err := readByte(rest)
	if err != nil {
		return wasm.ConstantExpression{}, nil, fmt.Errorf("const expr end: %w", err)
	}
	if end != wasm.OpcodeEnd {
		return wasm.ConstantExpression{}, nil, fmt.Errorf("constant expression must end with 0x0b")
	}
	return wasm.ConstantExpression{Opcode: op, Data: data}, rest, nil
}

// constExprType reports the value type a const expr produces, for type
// checking against a global's or table's declared type.
func constExprType(ce wasm.ConstantExpression) wasm.ValueType {
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		return wasm.ValueTypeI32
	case wasm.OpcodeI64Const:
		return wasm.ValueTypeI64
	case wasm.OpcodeF32Const:
		return wasm.ValueTypeF32
	case wasm.OpcodeF64Const:
		return wasm.ValueTypeF64
	case wasm.OpcodeV128Const:
		return wasm.ValueTypeV128
	case wasm.OpcodeRefFunc:
		return wasm.ValueTypeFuncref
	default:
		return wasm.ValueTypeAny
	}
}

// validateGlobalGetSource enforces the rule that a global.get
// appearing in a constant expression may reference only an imported
// global (its mutability is not checked here): forward references to module-defined globals would
// require an instantiation-time evaluation order this loader doesn't model.
func validateGlobalGetSource(m *wasm.Module, ce wasm.ConstantExpression) error {
	if ce.Opcode != wasm.OpcodeGlobalGet {
		return nil
	}
	idx, _, err := readU32(ce.Data)
	if err != nil {
		return err
	}
	if idx >= m.ImportGlobalCount {
		return fmt.Errorf("constant expression global.get %d must reference an imported global", idx)
	}
	return nil
}
