package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// maxFunctionLocals bounds the total (declared, expanded) local count a
// single function body may declare, catching a maliciously large
// run-length-encoded local-group count before it is expanded into a slice.
const maxFunctionLocals = 1 << 18

// decodeCodeSection decodes the code section, filling in Body and
// LocalTypes for each entry already allocated by decodeFunctionSection. The
// two sections' lengths must agree.
func decodeCodeSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("code count: %w", err)
	}
	if int(n) != len(m.FunctionSection) {
		return fmt.Errorf("code section count (%d) does not match function section count (%d)", n, len(m.FunctionSection))
	}
	for i := uint32(0); i < n; i++ {
		size, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("code[%d] size: %w", i, err)
		}
		if uint64(size) > uint64(len(r)) {
			return fmt.Errorf("code[%d]: truncated function body", i)
		}
		entry := r[:size]
		rest = r[size:]

		locals, codeStart, err := decodeLocalDeclarations(entry)
		if err != nil {
			return fmt.Errorf("code[%d] locals: %w", i, err)
		}
		if len(entry) == 0 || entry[len(entry)-1] != 0x0b {
			return fmt.Errorf("code[%d]: function body must end with 0x0b", i)
		}

		f := &m.FunctionSection[i]
		f.LocalTypes = locals
		f.Body = entry[codeStart:]
	}
	return nil
}

// decodeLocalDeclarations reads the run-length-encoded local groups at the
// front of a function body, returning the fully expanded local type slice
// and the offset at which the instruction stream begins.
func decodeLocalDeclarations(entry []byte) ([]wasm.ValueType, int, error) {
	numGroups, rest, err := readCountVec(entry)
	if err != nil {
		return nil, 0, fmt.Errorf("local group count: %w", err)
	}
	var total uint64
	type group struct {
		count uint32
		typ   wasm.ValueType
	}
	groups := make([]group, numGroups)
	for i := uint32(0); i < numGroups; i++ {
		count, r, err := readU32(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("local group[%d] count: %w", i, err)
		}
		rest = r
		typ, r, err := decodeValueType(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("local group[%d] type: %w", i, err)
		}
		rest = r
		total += uint64(count)
		if total > maxFunctionLocals {
			return nil, 0, fmt.Errorf("too many locals: %d", total)
		}
		groups[i] = group{count, typ}
	}
	locals := make([]wasm.ValueType, 0, total)
	for _, g := range groups {
		for j := uint32(0); j < g.count; j++ {
			locals = append(locals, g.typ)
		}
	}
	return locals, len(entry) - len(rest), nil
}
