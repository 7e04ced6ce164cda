package wasm

// Import is a single entry of the import section: a (module, field) name
// pair tagged with the kind of external it resolves to.
type Import struct {
	Type       ExternType
	Module     string
	Name       string
	DescFunc   Index // valid if Type == ExternTypeFunc: index into TypeSection
	DescTable  Table
	DescMem    Memory
	DescGlobal GlobalType
}

// Export is a single entry of the export section. Export names are unique
// within a module.
type Export struct {
	Type  ExternType
	Name  string
	Index Index // index into the combined import+definition space for Type
}

// Function is a single entry of the function+code sections: the declared
// type plus the still-unparsed body bytes the validator will later rewrite
// in place.
type Function struct {
	TypeIndex Index
	Type      *FunctionType

	// LocalTypes is the expanded (not run-length-encoded) list of
	// additional local variable types, in declaration order, following the
	// function's parameters.
	LocalTypes []ValueType

	// Body is the validator-owned, in-place-rewritable instruction stream
	// for this function, a window into the module's borrowed input buffer.
	Body []byte

	// Name is attached from the custom "name" section's function
	// sub-section, if present.
	Name string
}

// NumLocals returns the number of declared locals, not counting
// parameters.
func (f *Function) NumLocals() int { return len(f.LocalTypes) }

// LocalType returns the type of local index idx, where indices 0..len(Params)-1
// address parameters and the rest address f.LocalTypes.
func (f *Function) LocalType(idx Index) ValueType {
	np := Index(len(f.Type.Params))
	if idx < np {
		return f.Type.Params[idx]
	}
	return f.LocalTypes[idx-np]
}
