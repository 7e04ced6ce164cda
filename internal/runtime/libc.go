package runtime

import "sort"

// LibcImport describes one resolvable native import: its (module, name)
// pair and a compact signature string, one character per parameter then
// result — 'i'/'I' for a 32-bit/64-bit-pointer-or-size integer, 'f'/'F' for
// f32/f64.
type LibcImport struct {
	Module    string
	Name      string
	Signature string
}

// resolverTable is a name-sorted slice searched once per unresolved import
// via sort.Search, built once at table-construction time (one table per ABI variant rather
// than a single map, since the runtime ABI distinguishes the sandboxed
// 32-bit, sandboxed 64-bit, and no-sandbox tables by pointer width and
// naming convention).
type resolverTable []LibcImport

func newResolverTable(entries []LibcImport) resolverTable {
	t := make(resolverTable, len(entries))
	copy(t, entries)
	sort.Slice(t, func(i, j int) bool { return t[i].Name < t[j].Name })
	return t
}

// Lookup performs a case-sensitive bsearch by name.
func (t resolverTable) Lookup(name string) (LibcImport, bool) {
	i := sort.Search(len(t), func(i int) bool { return t[i].Name >= name })
	if i < len(t) && t[i].Name == name {
		return t[i], true
	}
	return LibcImport{}, false
}

// sandboxed32 and sandboxed64 carry the same function set; 64-bit entries
// use a "64" name suffix and the 'I' pointer-signature character in place
// of 'i'.
var sandboxed32 = newResolverTable([]LibcImport{
	{"env", "printf", "ii"},
	{"env", "sprintf", "iii"},
	{"env", "snprintf", "iiii"},
	{"env", "puts", "ii"},
	{"env", "putchar", "ii"},
	{"env", "malloc", "ii"},
	{"env", "free", "i"},
	{"env", "memcpy", "iiii"},
	{"env", "memmove", "iiii"},
	{"env", "memset", "iiii"},
	{"env", "strlen", "ii"},
	{"env", "strcmp", "iii"},
	{"env", "strcpy", "iii"},
	{"env", "strncpy", "iiii"},
	{"env", "abort", ""},
	{"env", "exit", "i"},
	{"env", "clock", "i"},
})

var sandboxed64 = newResolverTable([]LibcImport{
	{"env", "printf64", "Ii"},
	{"env", "sprintf64", "IIi"},
	{"env", "snprintf64", "IIIi"},
	{"env", "puts64", "Ii"},
	{"env", "putchar64", "ii"},
	{"env", "malloc64", "II"},
	{"env", "free64", "I"},
	{"env", "memcpy64", "IIII"},
	{"env", "memmove64", "IIII"},
	{"env", "memset64", "IIiI"},
	{"env", "strlen64", "II"},
	{"env", "strcmp64", "Iii"},
	{"env", "strcpy64", "III"},
	{"env", "strncpy64", "IIII"},
	{"env", "abort64", ""},
	{"env", "exit64", "i"},
	{"env", "clock64", "I"},
})

// noSandbox carries canonical host libc names with the 'I' pointer
// signature.
var noSandbox = newResolverTable([]LibcImport{
	{"env", "printf", "Ii"},
	{"env", "sprintf", "IIi"},
	{"env", "snprintf", "IIIi"},
	{"env", "puts", "Ii"},
	{"env", "putchar", "ii"},
	{"env", "malloc", "II"},
	{"env", "free", "I"},
	{"env", "memcpy", "IIII"},
	{"env", "memmove", "IIII"},
	{"env", "memset", "IIiI"},
	{"env", "strlen", "II"},
	{"env", "strcmp", "Iii"},
	{"env", "strcpy", "III"},
	{"env", "strncpy", "IIII"},
	{"env", "abort", ""},
	{"env", "exit", "i"},
	{"env", "clock", "I"},
})

// ResolveLibcImport picks the resolver table selected by (noSandboxMode,
// is64Bit) and looks up name within it.
func ResolveLibcImport(noSandboxMode, is64Bit bool, name string) (LibcImport, bool) {
	switch {
	case noSandboxMode:
		return noSandbox.Lookup(name)
	case is64Bit:
		return sandboxed64.Lookup(name)
	default:
		return sandboxed32.Lookup(name)
	}
}
