package wasm

// SymbolKind enumerates the linking-section symbol table's tagged union.
type SymbolKind byte

const (
	SymbolKindFunction SymbolKind = iota
	SymbolKindData
	SymbolKindGlobal
	SymbolKindSection
	SymbolKindTable
	SymbolKindTag
)

// Symbol flag bits from the LLVM lld wasm object format.
const (
	SymbolFlagUndefined    = 1 << 4
	SymbolFlagExplicitName = 1 << 6
	SymbolFlagNoStrip      = 1 << 7
	SymbolFlagTLS          = 1 << 8
	SymbolFlagAbsolute     = 1 << 9
	SymbolFlagBindingWeak  = 1 << 0
	SymbolFlagBindingLocal = 1 << 1
	symbolBindingMask      = SymbolFlagBindingWeak | SymbolFlagBindingLocal
)

// Symbol is a decoded entry of the "linking" custom section's symbol
// table (LLVM lld format version 2).
type Symbol struct {
	Kind  SymbolKind
	Flags uint32
	Name  string

	// Index addresses an import (when !IsDefined) or a definition,
	// depending on Kind: into FunctionSection+imports for
	// SymbolKindFunction, GlobalSection+imports for SymbolKindGlobal,
	// TableSection+imports for SymbolKindTable, or CustomSections for
	// SymbolKindSection.
	Index Index

	// Data-symbol fields, valid only when Kind == SymbolKindData and the
	// SymbolFlagAbsolute bit is clear.
	DataSegmentIndex Index
	DataOffset       uint32
	DataSize         uint32
}

// IsDefined reports whether the symbol names a module-local definition
// rather than an import.
func (s Symbol) IsDefined() bool { return s.Flags&SymbolFlagUndefined == 0 }

// IsWeak reports the weak-binding flag.
func (s Symbol) IsWeak() bool { return s.Flags&symbolBindingMask == SymbolFlagBindingWeak }

// IsLocal reports the local-binding flag.
func (s Symbol) IsLocal() bool { return s.Flags&symbolBindingMask == SymbolFlagBindingLocal }

// RelocType enumerates the supported R_WASM_* relocation kinds.
// Each carries a fixed encoded width used both to validate the "offset +
// encoded-size <= section body size" invariant and, for R_WASM_*_SLEB,
// *_I32 style kinds, to know how many bytes to patch.
type RelocType byte

const (
	RelocFunctionIndexLEB RelocType = iota
	RelocTableIndexSLEB
	RelocTableIndexI32
	RelocMemoryAddrLEB
	RelocMemoryAddrSLEB
	RelocMemoryAddrI32
	RelocTypeIndexLEB
	RelocGlobalIndexLEB
	RelocFunctionOffsetI32
	RelocSectionOffsetI32
	RelocTagIndexLEB
	RelocMemoryAddrLEB64
	RelocMemoryAddrSLEB64
	RelocMemoryAddrI64
	RelocTableIndexSLEB64
	RelocTableIndexI64
	RelocTableNumberLEB
	RelocGlobalIndexI32
)

// EncodedWidth returns the fixed byte width a relocation of kind k patches
// in its containing section: 4, 5, 8 or 10 bytes depending on kind.
func (k RelocType) EncodedWidth() (int, bool) {
	switch k {
	case RelocFunctionIndexLEB, RelocTypeIndexLEB, RelocGlobalIndexLEB,
		RelocMemoryAddrLEB, RelocMemoryAddrSLEB, RelocTableIndexSLEB, RelocTagIndexLEB:
		return 5, true
	case RelocTableIndexI32, RelocMemoryAddrI32, RelocFunctionOffsetI32,
		RelocSectionOffsetI32, RelocGlobalIndexI32, RelocTableNumberLEB:
		return 4, true
	case RelocMemoryAddrLEB64, RelocMemoryAddrSLEB64, RelocTableIndexSLEB64:
		return 10, true
	case RelocMemoryAddrI64, RelocTableIndexI64:
		return 8, true
	default:
		return 0, false
	}
}

// Relocation is a single entry of a reloc.CODE or reloc.DATA custom
// section.
type Relocation struct {
	Type   RelocType
	Offset uint32
	Index  Index // index into the symbol table
	Addend int32 // valid for the *_SLEB*/ *_I32/ *_I64 address-carrying kinds
}
