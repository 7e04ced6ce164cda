package wasm

// ConstantExpressionOpcode enumerates the handful of opcodes legal in a
// global/element/data initializer expression.
type ConstantExpressionOpcode = byte

const (
	OpcodeI32Const ConstantExpressionOpcode = 0x41
	OpcodeI64Const ConstantExpressionOpcode = 0x42
	OpcodeF32Const ConstantExpressionOpcode = 0x43
	OpcodeF64Const ConstantExpressionOpcode = 0x44
	OpcodeV128Const ConstantExpressionOpcode = 0xfd // 0xFD 0x0C, v128.const
	OpcodeRefFunc  ConstantExpressionOpcode = 0xd2
	OpcodeGlobalGet ConstantExpressionOpcode = 0x23
	OpcodeEnd       ConstantExpressionOpcode = 0x0b
)

// ConstantExpression is a global/element/data-segment initializer: a
// single constant-producing opcode plus its immediate bytes (the raw
// encoded form, since the value's representation differs by opcode).
type ConstantExpression struct {
	Opcode ConstantExpressionOpcode
	Data   []byte // immediate bytes, not including the trailing `end`
}

// Global is a (type, mutability, init expression) declaration, import or
// definition.
type Global struct {
	Type       ValueType
	Mutable    bool
	Init       ConstantExpression
}

// GlobalType classifies a global by its declared value type and
// mutability, independent of any particular instance.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}
