package compiler

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// memLayout fixes the linear-memory geometry the runtime globals encode:
// the malloc'd size, the optional host-managed heap
// appended past the fixed memory, and whether growth is possible at all.
type memLayout struct {
	hasMemory bool
	index64   bool
	initPages uint64
	maxPages  uint64
	fixedSize bool

	// memDataSize is initPages*PageSize + heapSize, the constructor's
	// malloc argument.
	memDataSize uint64
	heapOffset  uint64
	heapSize    uint64
}

// auxStackInfo captures the Clang/Emscripten shadow-stack convention the
// emitter special-cases: the sole
// mutable i32 global whose initial value is at most __heap_base.
type auxStackInfo struct {
	heapBase uint64
	dataEnd  uint64

	hasAuxStack   bool
	auxStackIndex wasm.Index
	auxStackTop   uint64 // initial stack-pointer value
	auxStackBound uint64 // overflow boundary, __data_end
}

func (c *Compiler) computeLayout() error {
	mem, hasMem := c.m.SoleMemory()
	l := &c.layout
	l.hasMemory = hasMem
	if hasMem {
		l.index64 = mem.Limits.Index64()
		l.initPages = mem.Limits.Min
		l.maxPages = mem.Limits.Min
		if mem.Limits.HasMax() {
			l.maxPages = mem.Limits.Max
		} else if !c.opts.NoSandboxMode {
			l.maxPages = mem.MaxPages()
		}
		l.fixedSize = l.initPages == l.maxPages || c.opts.NoSandboxMode
		l.memDataSize = wasm.BytesForPages(l.initPages)
	}

	if hs := uint64(c.opts.HeapSize); hs != 0 {
		if !hasMem {
			return fmt.Errorf("heap size requires a linear memory")
		}
		if !l.fixedSize {
			return fmt.Errorf("heap size requires a fixed-size memory")
		}
		l.heapOffset = l.memDataSize
		l.heapSize = hs
		l.memDataSize += hs
	}

	if err := c.checkActiveSegments(); err != nil {
		return err
	}
	c.findAuxGlobals()
	c.findMemoryAddressGlobals()
	return nil
}

// findMemoryAddressGlobals collects, for no-sandbox mode, the globals
// whose value is a linear-memory offset and must therefore read and write
// as native pointers: the shadow-stack
// pointer and any global the linking section names with the toolchain's
// memory-address conventions.
func (c *Compiler) findMemoryAddressGlobals() {
	if !c.opts.NoSandboxMode {
		return
	}
	c.memAddrGlobals = map[wasm.Index]bool{}
	if c.aux.hasAuxStack {
		c.memAddrGlobals[c.aux.auxStackIndex] = true
	}
	for _, s := range c.m.Symbols {
		if s.Kind != wasm.SymbolKindGlobal {
			continue
		}
		switch s.Name {
		case "__stack_pointer", "__memory_base", "__tls_base":
			c.memAddrGlobals[s.Index] = true
		}
	}
}

// isMemoryAddressGlobal reports whether global idx holds a linear-memory
// offset rewritten to a native pointer in no-sandbox mode.
func (c *Compiler) isMemoryAddressGlobal(idx wasm.Index) bool {
	return c.memAddrGlobals[idx]
}

// checkActiveSegments enforces the load-time bounds: active
// data segments fit the initial memory, active element segments fit the
// table's initial size.
func (c *Compiler) checkActiveSegments() error {
	for i, d := range c.m.DataSection {
		if !d.IsActive() {
			continue
		}
		base, err := c.evalConstOffset(d.OffsetExpr)
		if err != nil {
			return fmt.Errorf("data segment %d: %w", i, err)
		}
		if base+uint64(len(d.Init)) > c.layout.memDataSize-c.layout.heapSize {
			return fmt.Errorf("out of bounds memory access from data segment %d", i)
		}
	}
	table, hasTable := c.m.SoleTable()
	for i, e := range c.m.ElementSection {
		if !hasTable {
			return fmt.Errorf("element segment %d without a table", i)
		}
		base, err := c.evalConstOffset(e.OffsetExpr)
		if err != nil {
			return fmt.Errorf("element segment %d: %w", i, err)
		}
		if base+uint64(len(e.Init)) > table.Limits.Min {
			return fmt.Errorf("out of bounds table access from element segment %d", i)
		}
	}
	return nil
}

// findAuxGlobals resolves __heap_base/__data_end from the export table and
// detects the auxiliary-stack global by the toolchain convention: the sole
// mutable i32 global whose initial value is at most __heap_base.
func (c *Compiler) findAuxGlobals() {
	a := &c.aux
	if e, ok := c.exportOf("__heap_base", wasm.ExternTypeGlobal); ok {
		if v, err := c.globalInitValue(e.Index); err == nil {
			a.heapBase = v
		}
	}
	if e, ok := c.exportOf("__data_end", wasm.ExternTypeGlobal); ok {
		if v, err := c.globalInitValue(e.Index); err == nil {
			a.dataEnd = v
		}
	}
	if a.heapBase == 0 {
		return
	}

	// The aux stack pointer is the sole mutable i32 global whose initial
	// value is at most __heap_base.
	found := false
	for i, g := range c.m.GlobalSection {
		if !g.Mutable || g.Type != wasm.ValueTypeI32 {
			continue
		}
		init, err := c.evalConstOffset(g.Init)
		if err != nil || init > a.heapBase {
			continue
		}
		if found {
			// Ambiguous; leave the aux stack undetected rather than guess.
			a.hasAuxStack = false
			return
		}
		found = true
		a.hasAuxStack = true
		a.auxStackIndex = c.m.ImportGlobalCount + wasm.Index(i)
		a.auxStackTop = init
		a.auxStackBound = a.dataEnd
	}
}

// globalInitValue returns the numeric initial value of global index idx
// (imported globals resolve through their link table and default to zero).
func (c *Compiler) globalInitValue(idx wasm.Index) (uint64, error) {
	if idx < c.m.ImportGlobalCount {
		return c.importedGlobalValue(idx), nil
	}
	di := idx - c.m.ImportGlobalCount
	if di >= wasm.Index(len(c.m.GlobalSection)) {
		return 0, fmt.Errorf("unknown global %d", idx)
	}
	return c.evalConstOffset(c.m.GlobalSection[di].Init)
}

// evalConstOffset evaluates a constant expression to its numeric value,
// for use as a data/element base offset or a global's compile-time value.
// global.get resolves through the imported-global link table, which this
// loader leaves at zero for unlinked test globals.
func (c *Compiler) evalConstOffset(ce wasm.ConstantExpression) (uint64, error) {
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		v, _, err := leb128.LoadInt32(ce.Data)
		return uint64(uint32(v)), err
	case wasm.OpcodeI64Const:
		v, _, err := leb128.LoadInt64(ce.Data)
		return uint64(v), err
	case wasm.OpcodeGlobalGet:
		idx, _, err := leb128.LoadUint32(ce.Data)
		if err != nil {
			return 0, err
		}
		return c.importedGlobalValue(idx), nil
	default:
		return 0, fmt.Errorf("constant expression opcode 0x%x is not a valid offset", ce.Opcode)
	}
}

// importedGlobalValue resolves an imported global's link-table value;
// unlinked globals stay at zero.
func (c *Compiler) importedGlobalValue(idx wasm.Index) uint64 {
	n := wasm.Index(0)
	for i := range c.m.ImportSection {
		imp := &c.m.ImportSection[i]
		if imp.Type != wasm.ExternTypeGlobal {
			continue
		}
		if n == idx {
			if lg, ok := runtime.ResolveBuiltinGlobal(imp.Module, imp.Name); ok && lg.Type == imp.DescGlobal.ValType {
				return lg.Value
			}
			return 0
		}
		n++
	}
	return 0
}

// constExprFloat64/32 decode the raw little-endian immediate of a float
// constant expression.
func constExprFloat32(data []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data))
}

func constExprFloat64(data []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(data))
}

// resolveTable materializes table_elems' initializer: every slot starts
// uninitialized, then active element segments are applied in order.
func (c *Compiler) resolveTable() error {
	table, hasTable := c.m.SoleTable()
	if !hasTable {
		return nil
	}
	c.tableSize = table.Limits.Min
	c.tableInit = make([]uint32, c.tableSize)
	for i := range c.tableInit {
		c.tableInit[i] = uninitializedElem
	}
	for i, e := range c.m.ElementSection {
		base, err := c.evalConstOffset(e.OffsetExpr)
		if err != nil {
			return fmt.Errorf("element segment %d: %w", i, err)
		}
		for j, fidx := range e.Init {
			c.tableInit[base+uint64(j)] = fidx
		}
	}
	return nil
}

// tableIndexForAddend resolves which table slot an original init-time
// addend points at, for no-sandbox R_WASM_TABLE_INDEX_I64 fixups: the addend is the table index itself under the lld
// convention, validated against the resolved table.
func (c *Compiler) tableIndexForAddend(addend int64) (wasm.Index, error) {
	if addend < 0 || uint64(addend) >= c.tableSize {
		return 0, fmt.Errorf("table-index relocation addend %d out of range", addend)
	}
	fidx := c.tableInit[addend]
	if fidx == uninitializedElem {
		return 0, fmt.Errorf("table-index relocation addend %d names an uninitialized element", addend)
	}
	return fidx, nil
}
