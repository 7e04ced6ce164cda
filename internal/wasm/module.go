package wasm

import "fmt"

// CustomSection is a verbatim, unparsed custom section other than the
// handful whose contents this loader consumes directly (name, linking,
// reloc.CODE, reloc.DATA).
type CustomSection struct {
	Name string
	Data []byte
}

// Module is the fully parsed and validated in-memory representation of a
// wasm binary. It owns every table the
// loader produces and borrows its code bodies from the caller-supplied
// input buffer for its entire lifetime; names are copied into Go strings.
type Module struct {
	// TypeSection holds one entry per declared type; structurally
	// identical signatures alias a single shared *FunctionType, so
	// declared indices stay stable while equal types compare
	// pointer-equal.
	TypeSection []*FunctionType

	ImportFunctionCount Index
	ImportTableCount    Index
	ImportMemoryCount   Index
	ImportGlobalCount   Index
	ImportSection       []Import

	// FunctionSection holds only module-defined functions; imported
	// functions live in ImportSection. A function's absolute index is
	// ImportFunctionCount + its position here.
	FunctionSection []Function

	// TableSection and MemorySection hold at most one entry each; it is a definition only if the module
	// didn't import one.
	TableSection  []Table
	MemorySection []Memory

	GlobalSection []Global
	ExportSection []Export

	ElementSection []ElementSegment
	DataSection    []DataSegment

	// DataCountSection, when present, must equal len(DataSection); bulk-memory's memory.init additionally requires its presence.
	HasDataCount     bool
	DataCountSection uint32

	StartSection *Index

	CustomSections []CustomSection

	// Symbols and Relocations are populated from the "linking",
	// "reloc.CODE" and "reloc.DATA" custom sections, used
	// only by internal/compiler's no-sandbox-mode relocation fixups.
	Symbols          []Symbol
	CodeRelocations  []Relocation
	DataRelocations  []Relocation

	// NameSection function-name sub-section results, keyed by absolute
	// function index (import space included).
	FunctionNames map[Index]string
}

// CanonicalTypeIndex maps a declared type index to the smallest index
// whose entry shares the same deduplicated storage, so structurally equal
// signatures compare equal as indices (used by the indirect-call type
// check).
func (m *Module) CanonicalTypeIndex(idx Index) Index {
	if idx >= Index(len(m.TypeSection)) {
		return idx
	}
	t := m.TypeSection[idx]
	for i, existing := range m.TypeSection {
		if existing == t {
			return Index(i)
		}
	}
	return idx
}

// NumFuncs returns the combined import+definition count for functions.
func (m *Module) NumFuncs() Index { return m.ImportFunctionCount + Index(len(m.FunctionSection)) }

// NumTables returns the combined import+definition count for tables (0 or 1).
func (m *Module) NumTables() Index { return m.ImportTableCount + Index(len(m.TableSection)) }

// NumMemories returns the combined import+definition count for memories (0 or 1).
func (m *Module) NumMemories() Index { return m.ImportMemoryCount + Index(len(m.MemorySection)) }

// NumGlobals returns the combined import+definition count for globals.
func (m *Module) NumGlobals() Index { return m.ImportGlobalCount + Index(len(m.GlobalSection)) }

// TypeOfFunc resolves the *FunctionType of the function at absolute index
// idx, whether imported or defined.
func (m *Module) TypeOfFunc(idx Index) (*FunctionType, error) {
	if idx < m.ImportFunctionCount {
		n := Index(0)
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			if imp.Type != ExternTypeFunc {
				continue
			}
			if n == idx {
				return m.TypeSection[imp.DescFunc], nil
			}
			n++
		}
		return nil, fmt.Errorf("unknown function %d", idx)
	}
	di := idx - m.ImportFunctionCount
	if di >= Index(len(m.FunctionSection)) {
		return nil, fmt.Errorf("unknown function %d", idx)
	}
	return m.FunctionSection[di].Type, nil
}

// SoleMemory returns the module's single memory, whether imported or
// defined, and whether one exists at all.
func (m *Module) SoleMemory() (Memory, bool) {
	for i := range m.ImportSection {
		if m.ImportSection[i].Type == ExternTypeMemory {
			return m.ImportSection[i].DescMem, true
		}
	}
	if len(m.MemorySection) > 0 {
		return m.MemorySection[0], true
	}
	return Memory{}, false
}

// SoleTable returns the module's single table, whether imported or
// defined, and whether one exists at all.
func (m *Module) SoleTable() (Table, bool) {
	for i := range m.ImportSection {
		if m.ImportSection[i].Type == ExternTypeTable {
			return m.ImportSection[i].DescTable, true
		}
	}
	if len(m.TableSection) > 0 {
		return m.TableSection[0], true
	}
	return Table{}, false
}

// InternType appends ft to TypeSection, sharing storage with a
// pre-existing structurally-equal entry when one exists: the new slot
// aliases the earlier *FunctionType (its ref count bumped, the fresh
// allocation discarded), so declared type indices stay stable while
// identical signatures compare pointer-equal.
func (m *Module) InternType(ft *FunctionType) (Index, error) {
	for _, existing := range m.TypeSection {
		if existing.Equal(ft) {
			if existing.addRef() {
				return 0, fmt.Errorf("function type reference count overflow")
			}
			m.TypeSection = append(m.TypeSection, existing)
			return Index(len(m.TypeSection) - 1), nil
		}
	}
	ft.addRef()
	m.TypeSection = append(m.TypeSection, ft)
	return Index(len(m.TypeSection) - 1), nil
}
