package validator

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// Result is a validated function's derived metadata: the emitter consumes
// these instead of re-scanning the body.
type Result struct {
	MaxStackCells int
	MaxBlockDepth int

	// BrTableCache holds the full 32-bit depth vector for every br_table
	// rewritten to EXT_OP_BR_TABLE_CACHE, keyed by the rewritten opcode's
	// byte offset within the function body.
	BrTableCache map[int][]uint32
}

// Validate runs a single-pass abstract interpreter over
// function funcIdx's body, rewriting its opcodes in place as it goes. The
// function's Body is borrowed storage; Validate mutates it
// through the same backing array the caller's input buffer owns.
func Validate(m *wasm.Module, funcIdx wasm.Index) (*Result, error) {
	f := &m.FunctionSection[funcIdx]
	body := f.Body
	if len(body) == 0 {
		return nil, fmt.Errorf("function %d: empty body", funcIdx)
	}

	numParams := wasm.Index(len(f.Type.Params))
	numLocals := numParams + wasm.Index(len(f.LocalTypes))

	stack := &operandStack{}
	root := &controlFrame{kind: controlFrameKindFunction, results: f.Type.Results, startAddr: 0, elseAddr: -1}
	frames := []*controlFrame{root}
	brTableCache := map[int][]uint32{}
	maxDepth := 1

	pos := 0
	for pos < len(body) {
		opAddr := pos
		op := body[pos]
		pos++
		top := frames[len(frames)-1]
		floor, poly := top.stackCellsAtEntry, top.isPolymorphic

		switch {
		case op == OpUnreachable:
			top.isPolymorphic = true
			stack.truncateToFloor(floor)

		case op == OpNop:
			// no-op

		case op == OpBlock || op == OpLoop || op == OpIf:
			if op == OpIf {
				if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: if condition: %w", funcIdx, opAddr, err)
				}
			}
			params, results, typeIdx, n, err := decodeBlockType(m, body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			for i := len(params) - 1; i >= 0; i-- {
				if err := stack.popExpect(params[i], floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: block params: %w", funcIdx, opAddr, err)
				}
			}
			if typeIdx >= 0 {
				switch op {
				case OpBlock:
					body[opAddr] = ExtOpBlock
				case OpLoop:
					body[opAddr] = ExtOpLoop
				case OpIf:
					body[opAddr] = ExtOpIf
				}
			}
			pos += n
			kind := controlFrameKindBlock
			if op == OpLoop {
				kind = controlFrameKindLoop
			} else if op == OpIf {
				kind = controlFrameKindIf
			}
			entryFloor := stack.cells
			for _, p := range params {
				if err := stack.push(p); err != nil {
					return nil, err
				}
			}
			frames = append(frames, &controlFrame{
				kind: kind, params: params, results: results,
				startAddr: opAddr, elseAddr: -1, stackCellsAtEntry: entryFloor,
			})
			if len(frames) > maxDepth {
				maxDepth = len(frames)
			}
			if maxDepth > maxBlockDepth {
				return nil, fmt.Errorf("func %d: too many nested blocks", funcIdx)
			}

		case op == OpElse:
			if top.kind != controlFrameKindIf || top.elseAddr != -1 {
				return nil, fmt.Errorf("func %d @%d: else without matching if", funcIdx, opAddr)
			}
			if err := checkBlockExit(stack, top); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			top.elseAddr = opAddr
			top.isPolymorphic = false
			stack.truncateToFloor(top.stackCellsAtEntry)
			for _, p := range top.params {
				if err := stack.push(p); err != nil {
					return nil, err
				}
			}

		case op == OpEnd:
			if err := checkBlockExit(stack, top); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			if top.kind == controlFrameKindIf && top.elseAddr == -1 && !sameTypes(top.params, top.results) {
				return nil, fmt.Errorf("func %d @%d: type mismatch: else branch missing", funcIdx, opAddr)
			}
			top.endAddr = opAddr
			frames = frames[:len(frames)-1]
			for _, r := range top.results {
				if err := stack.push(r); err != nil {
					return nil, err
				}
			}
			if len(frames) == 0 && pos != len(body) {
				return nil, fmt.Errorf("func %d: unexpected content after function end", funcIdx)
			}

		case op == OpBr:
			depth, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: br depth: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			target, err := branchTarget(frames, depth)
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			if err := checkBranchArity(stack, target, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			top.isPolymorphic = true
			stack.truncateToFloor(floor)

		case op == OpBrIf:
			depth, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: br_if depth: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: br_if condition: %w", funcIdx, opAddr, err)
			}
			target, err := branchTarget(frames, depth)
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			arity := target.branchArity()
			for i := len(arity) - 1; i >= 0; i-- {
				if err := stack.popExpect(arity[i], floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: br_if arity: %w", funcIdx, opAddr, err)
				}
			}
			for _, t := range arity {
				if err := stack.push(t); err != nil {
					return nil, err
				}
			}

		case op == OpBrTable:
			start := pos
			n, k, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: br_table count: %w", funcIdx, opAddr, err)
			}
			pos += int(k)
			depths := make([]uint32, n+1)
			maxDepthSeen := uint32(0)
			for i := uint32(0); i <= n; i++ {
				d, k, err := leb128.LoadUint32(body[pos:])
				if err != nil {
					return nil, fmt.Errorf("func %d @%d: br_table target %d: %w", funcIdx, opAddr, i, err)
				}
				pos += int(k)
				depths[i] = d
				if d > maxDepthSeen {
					maxDepthSeen = d
				}
			}
			defaultTarget, err := branchTarget(frames, depths[n])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			arity := defaultTarget.branchArity()
			for i := uint32(0); i < n; i++ {
				tgt, err := branchTarget(frames, depths[i])
				if err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
				// Every target must carry the same branch types, not just
				// the same count.
				if !sameTypes(tgt.branchArity(), arity) {
					return nil, fmt.Errorf("func %d @%d: type mismatch: br_table targets must all use same result type", funcIdx, opAddr)
				}
			}
			if err := checkBranchArity(stack, defaultTarget, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			if maxDepthSeen > 255 {
				body[opAddr] = ExtOpBrTableCache
				for i := start; i < pos; i++ {
					body[i] = OpNopPad
				}
				brTableCache[opAddr] = depths
			}
			top.isPolymorphic = true
			stack.truncateToFloor(floor)

		case op == OpReturn:
			arity := root.results
			for i := len(arity) - 1; i >= 0; i-- {
				if err := stack.popExpect(arity[i], floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: return: %w", funcIdx, opAddr, err)
				}
			}
			top.isPolymorphic = true
			stack.truncateToFloor(floor)

		case op == OpCall:
			idx, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: call index: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if idx >= m.NumFuncs() {
				return nil, fmt.Errorf("func %d @%d: unknown function %d", funcIdx, opAddr, idx)
			}
			ft, _ := m.TypeOfFunc(idx)
			if err := applyCallSignature(stack, ft, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}

		case op == OpReturnCall:
			idx, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: return_call index: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if idx >= m.NumFuncs() {
				return nil, fmt.Errorf("func %d @%d: unknown function %d", funcIdx, opAddr, idx)
			}
			ft, _ := m.TypeOfFunc(idx)
			if !sameTypes(ft.Results, root.results) {
				return nil, fmt.Errorf("func %d @%d: return_call: callee result types do not match enclosing function", funcIdx, opAddr)
			}
			for i := len(ft.Params) - 1; i >= 0; i-- {
				if err := stack.popExpect(ft.Params[i], floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
			}
			top.isPolymorphic = true
			stack.truncateToFloor(floor)

		case op == OpCallIndirect || op == OpReturnCallIndirect:
			typeIdx, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: call_indirect type: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			tableIdx, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: call_indirect table: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if tableIdx != 0 {
				return nil, fmt.Errorf("func %d @%d: call_indirect: table index must be 0", funcIdx, opAddr)
			}
			if typeIdx >= uint32(len(m.TypeSection)) {
				return nil, fmt.Errorf("func %d @%d: indirect call type mismatch: unknown type %d", funcIdx, opAddr, typeIdx)
			}
			table, hasTable := m.SoleTable()
			if !hasTable {
				return nil, fmt.Errorf("func %d @%d: call_indirect: no table", funcIdx, opAddr)
			}
			idxType := wasm.ValueType(wasm.ValueTypeI32)
			if table.Limits.Index64() {
				idxType = wasm.ValueTypeI64
			}
			if err := stack.popExpect(idxType, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: call_indirect: %w", funcIdx, opAddr, err)
			}
			ft := m.TypeSection[typeIdx]
			if op == OpReturnCallIndirect {
				if !sameTypes(ft.Results, root.results) {
					return nil, fmt.Errorf("func %d @%d: return_call_indirect: callee result types do not match enclosing function", funcIdx, opAddr)
				}
				for i := len(ft.Params) - 1; i >= 0; i-- {
					if err := stack.popExpect(ft.Params[i], floor, poly); err != nil {
						return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
					}
				}
				top.isPolymorphic = true
				stack.truncateToFloor(floor)
			} else if err := applyCallSignature(stack, ft, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}

		case op == OpDrop:
			t, err := stack.pop(floor, poly)
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: drop: %w", funcIdx, opAddr, err)
			}
			if wasm.CellsOf(t) == 2 {
				body[opAddr] = ExtOpDrop64
			}

		case op == OpSelect:
			if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: select condition: %w", funcIdx, opAddr, err)
			}
			t2, err := stack.pop(floor, poly)
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: select: %w", funcIdx, opAddr, err)
			}
			t1, err := stack.pop(floor, poly)
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: select: %w", funcIdx, opAddr, err)
			}
			if t1 != wasm.ValueTypeAny && t2 != wasm.ValueTypeAny && t1 != t2 {
				return nil, fmt.Errorf("func %d @%d: type mismatch: select operands differ", funcIdx, opAddr)
			}
			result := t1
			if result == wasm.ValueTypeAny {
				result = t2
			}
			if err := stack.push(result); err != nil {
				return nil, err
			}
			if wasm.CellsOf(result) == 2 {
				body[opAddr] = ExtOpSelect64
			}

		case op == OpSelectT:
			vtCount, n, err := leb128.LoadUint32(body[pos:])
			if err != nil || vtCount != 1 {
				return nil, fmt.Errorf("func %d @%d: typed select: unsupported arity", funcIdx, opAddr)
			}
			pos += int(n)
			if pos >= len(body) {
				return nil, fmt.Errorf("func %d @%d: typed select: truncated", funcIdx, opAddr)
			}
			vt := body[pos]
			pos++
			if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: select condition: %w", funcIdx, opAddr, err)
			}
			if err := stack.popExpect(vt, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			if err := stack.popExpect(vt, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			if err := stack.push(vt); err != nil {
				return nil, err
			}

		case op == OpLocalGet || op == OpLocalSet || op == OpLocalTee:
			idx, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: local index: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if idx >= numLocals {
				return nil, fmt.Errorf("func %d @%d: unknown local %d", funcIdx, opAddr, idx)
			}
			lt := f.LocalType(idx)
			switch op {
			case OpLocalGet:
				if err := stack.push(lt); err != nil {
					return nil, err
				}
			case OpLocalSet:
				if err := stack.popExpect(lt, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
			case OpLocalTee:
				if err := stack.popExpect(lt, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
				if err := stack.push(lt); err != nil {
					return nil, err
				}
			}

		case op == OpGlobalGet || op == OpGlobalSet:
			idx, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: global index: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			gt, err := globalTypeOf(m, idx)
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			if op == OpGlobalGet {
				if err := stack.push(gt.ValType); err != nil {
					return nil, err
				}
				if wasm.CellsOf(gt.ValType) == 2 {
					body[opAddr] = ExtOpGetGlobal64
				}
			} else {
				if !gt.Mutable {
					return nil, fmt.Errorf("func %d @%d: global %d is immutable", funcIdx, opAddr, idx)
				}
				if err := stack.popExpect(gt.ValType, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
				if wasm.CellsOf(gt.ValType) == 2 {
					body[opAddr] = ExtOpSetGlobal64
				}
			}

		case op == OpTableGet || op == OpTableSet:
			_, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: table index: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if op == OpTableGet {
				if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
				if err := stack.push(wasm.ValueTypeFuncref); err != nil {
					return nil, err
				}
			} else {
				if err := stack.popExpect(wasm.ValueTypeFuncref, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
				if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
			}

		case op == OpMemorySizeOp || op == OpMemoryGrowOp:
			if pos >= len(body) || body[pos] != 0 {
				return nil, fmt.Errorf("func %d @%d: reserved byte must be 0", funcIdx, opAddr)
			}
			pos++
			if op == OpMemoryGrowOp {
				if err := stack.popExpect(wasm.ValueTypeI32, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
			}
			if err := stack.push(wasm.ValueTypeI32); err != nil {
				return nil, err
			}

		case op == OpI32Const:
			_, n, err := leb128.LoadInt32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: i32.const: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if err := stack.push(wasm.ValueTypeI32); err != nil {
				return nil, err
			}

		case op == OpI64Const:
			_, n, err := leb128.LoadInt64(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: i64.const: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if err := stack.push(wasm.ValueTypeI64); err != nil {
				return nil, err
			}

		case op == OpF32Const:
			if pos+4 > len(body) {
				return nil, fmt.Errorf("func %d @%d: f32.const: truncated", funcIdx, opAddr)
			}
			pos += 4
			if err := stack.push(wasm.ValueTypeF32); err != nil {
				return nil, err
			}

		case op == OpF64Const:
			if pos+8 > len(body) {
				return nil, fmt.Errorf("func %d @%d: f64.const: truncated", funcIdx, opAddr)
			}
			pos += 8
			if err := stack.push(wasm.ValueTypeF64); err != nil {
				return nil, err
			}

		case op == OpRefNull:
			if pos >= len(body) {
				return nil, fmt.Errorf("func %d @%d: ref.null: truncated", funcIdx, opAddr)
			}
			pos++
			if err := stack.push(wasm.ValueTypeFuncref); err != nil {
				return nil, err
			}

		case op == OpRefIsNull:
			if err := stack.popExpect(wasm.ValueTypeFuncref, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			if err := stack.push(wasm.ValueTypeI32); err != nil {
				return nil, err
			}

		case op == OpRefFunc:
			idx, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: ref.func: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if idx >= m.NumFuncs() {
				return nil, fmt.Errorf("func %d @%d: ref.func: unknown function %d", funcIdx, opAddr, idx)
			}
			if err := stack.push(wasm.ValueTypeFuncref); err != nil {
				return nil, err
			}

		case op >= 0x28 && op <= 0x3e:
			info := memOpInfo(op)
			if !info.recognized {
				return nil, fmt.Errorf("func %d @%d: unsupported opcode 0x%x", funcIdx, opAddr, op)
			}
			align, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: memarg align: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			if align > info.maxAlign {
				return nil, fmt.Errorf("func %d @%d: alignment must not be larger than natural", funcIdx, opAddr)
			}
			mem, hasMem := m.SoleMemory()
			if !hasMem {
				return nil, fmt.Errorf("func %d @%d: memory access without a memory", funcIdx, opAddr)
			}
			if mem.Limits.Index64() {
				_, n, err = leb128.LoadUint64(body[pos:])
			} else {
				_, n, err = leb128.LoadUint32(body[pos:])
			}
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: memarg offset: %w", funcIdx, opAddr, err)
			}
			pos += int(n)
			addrType := wasm.ValueType(wasm.ValueTypeI32)
			if mem.Limits.Index64() {
				addrType = wasm.ValueTypeI64
			}
			if info.isStore {
				if err := stack.popExpect(info.valType, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
				if err := stack.popExpect(addrType, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
			} else {
				if err := stack.popExpect(addrType, floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
				if err := stack.push(info.valType); err != nil {
					return nil, err
				}
			}

		case numericOpcodeSignature(op).valid:
			sig := numericOpcodeSignature(op)
			for i := len(sig.pops) - 1; i >= 0; i-- {
				if err := stack.popExpect(sig.pops[i], floor, poly); err != nil {
					return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
				}
			}
			if err := stack.push(sig.push); err != nil {
				return nil, err
			}

		case op == OpMiscPrefix:
			n, err := validateMiscOpcode(m, body, &pos, stack, floor, poly)
			if err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}
			_ = n

		case op == OpAtomicPrefix:
			if err := validateAtomicOpcode(m, body, &pos, stack, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}

		case op == OpSimdPrefix:
			if err := validateSimdOpcode(m, body, &pos, stack, floor, poly); err != nil {
				return nil, fmt.Errorf("func %d @%d: %w", funcIdx, opAddr, err)
			}

		default:
			return nil, fmt.Errorf("func %d @%d: unsupported opcode 0x%x", funcIdx, opAddr, op)
		}
	}

	if len(frames) != 0 {
		return nil, fmt.Errorf("func %d: END opcode expected", funcIdx)
	}
	if stack.maxCells > maxStackCells {
		return nil, fmt.Errorf("func %d: operand stack too deep", funcIdx)
	}

	return &Result{MaxStackCells: stack.maxCells, MaxBlockDepth: maxDepth, BrTableCache: brTableCache}, nil
}

func sameTypes(a, b []wasm.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkBlockExit(stack *operandStack, f *controlFrame) error {
	for i := len(f.results) - 1; i >= 0; i-- {
		if err := stack.popExpect(f.results[i], f.stackCellsAtEntry, f.isPolymorphic); err != nil {
			return fmt.Errorf("type mismatch: %w", err)
		}
	}
	if !f.isPolymorphic && stack.cells != f.stackCellsAtEntry {
		return fmt.Errorf("type mismatch: too many values on the stack at block exit")
	}
	return nil
}

func branchTarget(frames []*controlFrame, depth uint32) (*controlFrame, error) {
	if int(depth) >= len(frames) {
		return nil, fmt.Errorf("unknown label %d", depth)
	}
	return frames[len(frames)-1-int(depth)], nil
}

func checkBranchArity(stack *operandStack, target *controlFrame, floor int, poly bool) error {
	arity := target.branchArity()
	for i := len(arity) - 1; i >= 0; i-- {
		if err := stack.popExpect(arity[i], floor, poly); err != nil {
			return fmt.Errorf("type mismatch: branch arity: %w", err)
		}
	}
	return nil
}

func applyCallSignature(stack *operandStack, ft *wasm.FunctionType, floor int, poly bool) error {
	for i := len(ft.Params) - 1; i >= 0; i-- {
		if err := stack.popExpect(ft.Params[i], floor, poly); err != nil {
			return err
		}
	}
	for _, r := range ft.Results {
		if err := stack.push(r); err != nil {
			return err
		}
	}
	return nil
}

func globalTypeOf(m *wasm.Module, idx wasm.Index) (wasm.GlobalType, error) {
	if idx < m.ImportGlobalCount {
		n := wasm.Index(0)
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			if imp.Type != wasm.ExternTypeGlobal {
				continue
			}
			if n == idx {
				return imp.DescGlobal, nil
			}
			n++
		}
		return wasm.GlobalType{}, fmt.Errorf("unknown global %d", idx)
	}
	di := idx - m.ImportGlobalCount
	if di >= wasm.Index(len(m.GlobalSection)) {
		return wasm.GlobalType{}, fmt.Errorf("unknown global %d", idx)
	}
	g := m.GlobalSection[di]
	return wasm.GlobalType{ValType: g.Type, Mutable: g.Mutable}, nil
}
