// Package wasm defines the in-memory representation of a validated
// WebAssembly module: value and function types, limits, memories, tables,
// globals, imports, exports, element and data segments, the linking-section
// symbol table, and object-file relocations. It is the data model
// populated by internal/wasm/binary and consumed by
// internal/validator and internal/compiler.
package wasm

import "fmt"

// ValueType is one of the four WebAssembly 1.0 numeric types, plus the
// v128 vector type (simd), the funcref reference type, and the two
// pseudo-types the validator uses
// internally: ValueTypeVoid for empty block signatures and ValueTypeAny to
// model the polymorphic stack after an unconditional control transfer.
//
// Binary encoding matches the wire format's one-byte type tags so decoding never
// needs a translation table.
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
	ValueTypeV128 ValueType = 0x7b
	ValueTypeFuncref ValueType = 0x70

	// ValueTypeVoid denotes an empty block type. It never appears in an
	// encoded vector of value types, only as FunctionType.Results == nil.
	ValueTypeVoid ValueType = 0x40

	// ValueTypeAny exists only inside the validator's operand stack, to
	// model a value whose type is unconstrained because the current block
	// is unreachable.
	ValueTypeAny ValueType = 0x00
)

// ValueTypeName returns the WebAssembly text format name of t, or
// "unknown" for an unrecognized byte.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeVoid:
		return "void"
	case ValueTypeAny:
		return "any"
	default:
		return "unknown"
	}
}

// CellsOf returns the number of 32-bit operand-stack cells t occupies, per
// i32/f32 are one cell, i64/f64 two, v128 four.
func CellsOf(t ValueType) int {
	switch t {
	case ValueTypeI64, ValueTypeF64:
		return 2
	case ValueTypeV128:
		return 4
	default:
		return 1
	}
}

// CellsOfAll sums CellsOf over a slice of value types.
func CellsOfAll(ts []ValueType) int {
	n := 0
	for _, t := range ts {
		n += CellsOf(t)
	}
	return n
}

// ExternType classifies an import or export: func, table, memory, or
// global.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the text format field name for et.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	default:
		return fmt.Sprintf("0x%x", et)
	}
}

// SectionID identifies a top-level section of the binary format.
type SectionID = byte

const (
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
	SectionIDDataCount
)

// SectionIDName returns the human-readable name of a section id, or
// "unknown".
func SectionIDName(id SectionID) string {
	switch id {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	case SectionIDDataCount:
		return "data count"
	default:
		return "unknown"
	}
}

// Index is a module-relative index: into the combined import+definition
// space of a func/table/memory/global, or into types/elements/data/locals.
type Index = uint32
