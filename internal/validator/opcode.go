// Package validator implements the single-pass function validator:
// abstract interpretation of a function body against an
// operand-stack-of-cells and a control stack, producing the opcode
// rewrites the emitter depends on (extended block/loop/if opcodes, 64-bit
// drop/select/global variants, the br_table depth-cache rewrite) as a side
// effect of walking the code once.
package validator

// Control-flow and structural opcodes.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0b
	OpBr          byte = 0x0c
	OpBrIf        byte = 0x0d
	OpBrTable     byte = 0x0e
	OpReturn      byte = 0x0f
	OpCall        byte = 0x10
	OpCallIndirect byte = 0x11
	OpReturnCall  byte = 0x12
	OpReturnCallIndirect byte = 0x13

	OpDrop   byte = 0x1a
	OpSelect byte = 0x1b
	OpSelectT byte = 0x1c // typed select (bulk-memory/reftypes proposal)

	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24

	OpTableGet byte = 0x25
	OpTableSet byte = 0x26

	OpMemorySizeOp byte = 0x3f
	OpMemoryGrowOp byte = 0x40

	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF32Const byte = 0x43
	OpF64Const byte = 0x44

	OpRefNull   byte = 0xd0
	OpRefIsNull byte = 0xd1
	OpRefFunc   byte = 0xd2

	OpMiscPrefix byte = 0xfc // bulk memory, saturating truncation
	OpSimdPrefix byte = 0xfd
	OpAtomicPrefix byte = 0xfe
)

// Extended opcodes the validator rewrites block/loop/if into when their
// immediate names a multi-value type index rather than an inline value
// type.
const (
	ExtOpBlock byte = 0xe0 + iota
	ExtOpLoop
	ExtOpIf
)

// 64-bit-operand variants that drop/select/get_global/set_global are
// rewritten into when their operand occupies two cells.
const (
	ExtOpDrop64 byte = 0xe8 + iota
	ExtOpSelect64
	ExtOpGetGlobal64
	ExtOpSetGlobal64
	ExtOpSetGlobalAuxStack
)

// ExtOpBrTableCache replaces a br_table whose immediates include any depth
// greater than 255; the trailing depth bytes are nop-padded and the real
// 32-bit depths are recorded in the side table the validator returns.
const ExtOpBrTableCache byte = 0xf0

// OpNopPad is written over bytes the rewrite no longer needs, so the
// emitter's instruction-length table stays uniform.
const OpNopPad byte = OpNop
