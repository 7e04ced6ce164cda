package compiler

import (
	"encoding/binary"
	"fmt"
	"math"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/llvmgen"
	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/validator"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// stackValue is one entry of the emitter's value stack: the LLVM value,
// its wasm type, and — when it came straight off a local.get — the local
// index, kept so later passes can fold redundant reloads.
type stackValue struct {
	v     llvm.Value
	t     wasm.ValueType
	local int
}

type emitFrameKind int

const (
	frameFunc emitFrameKind = iota
	frameBlock
	frameLoop
	frameIf
)

// emitFrame mirrors the validator's control frame on the emission side:
// the basic blocks a block contributes, the phis collecting its results
// (or, for a loop, its parameters), and enough saved state to replay the
// if-params into the else arm.
type emitFrame struct {
	kind    emitFrameKind
	params  []wasm.ValueType
	results []wasm.ValueType

	endBB      llvm.BasicBlock
	elseBB     llvm.BasicBlock
	headerBB   llvm.BasicBlock
	endPhis    []llvm.Value
	headerPhis []llvm.Value

	savedParams []stackValue
	stackHeight int
	endReached  bool
	hadElse     bool
}

// branchArity returns the types a branch to this frame carries: loop
// parameters for a loop, results otherwise.
func (f *emitFrame) branchArity() []wasm.ValueType {
	if f.kind == frameLoop {
		return f.params
	}
	return f.results
}

// funcCtx is the per-function emission state.
type funcCtx struct {
	c  *Compiler
	cc *llvmgen.Context
	b  llvm.Builder

	fn     llvm.Value
	wf     *wasm.Function
	ft     *wasm.FunctionType
	res    *validator.Result
	absIdx wasm.Index

	body []byte
	pos  int

	locals     []llvm.Value
	localTypes []wasm.ValueType

	stack  []stackValue
	frames []*emitFrame

	// dead is set after an unconditional transfer; opcodes are skipped
	// until the matching else/end re-anchors emission.
	dead     bool
	deadNest int

	gotExcBB    llvm.BasicBlock
	gotExcPhi   llvm.Value
	propagateBB llvm.BasicBlock
}

func (fc *funcCtx) push(v llvm.Value, t wasm.ValueType) {
	fc.stack = append(fc.stack, stackValue{v: v, t: t, local: -1})
}

func (fc *funcCtx) pushLocal(v llvm.Value, t wasm.ValueType, local int) {
	fc.stack = append(fc.stack, stackValue{v: v, t: t, local: local})
}

func (fc *funcCtx) pop() stackValue {
	sv := fc.stack[len(fc.stack)-1]
	fc.stack = fc.stack[:len(fc.stack)-1]
	return sv
}

func (fc *funcCtx) popN(n int) []stackValue {
	vals := make([]stackValue, n)
	copy(vals, fc.stack[len(fc.stack)-n:])
	fc.stack = fc.stack[:len(fc.stack)-n]
	return vals
}

func (fc *funcCtx) top() *emitFrame { return fc.frames[len(fc.frames)-1] }

// emitFunctionBody lowers defined function defIdx, driven by the
// validator's rewritten opcode stream and side tables.
func (c *Compiler) emitFunctionBody(defIdx wasm.Index) error {
	abs := c.m.ImportFunctionCount + defIdx
	wf := &c.m.FunctionSection[defIdx]
	fc := &funcCtx{
		c: c, cc: c.cc, b: c.cc.Builder,
		fn: c.funcs[abs], wf: wf, ft: wf.Type,
		res: c.results[defIdx], absIdx: abs,
		body: wf.Body,
	}
	if wf.Name != "" {
		// Keep the name-section name visible in the IR for debuggability.
		fc.fn.SetName(aotFuncName(abs) + "_" + wf.Name)
	}

	entry := c.cc.LLVM.AddBasicBlock(fc.fn, "entry")
	fc.b.SetInsertPointAtEnd(entry)

	numParams := len(wf.Type.Params)
	fc.localTypes = make([]wasm.ValueType, 0, numParams+len(wf.LocalTypes))
	fc.localTypes = append(fc.localTypes, wf.Type.Params...)
	fc.localTypes = append(fc.localTypes, wf.LocalTypes...)
	fc.locals = make([]llvm.Value, len(fc.localTypes))
	for i, lt := range fc.localTypes {
		t := c.cc.TypeOf(lt)
		a := fc.b.CreateAlloca(t, fmt.Sprintf("local%d", i))
		fc.locals[i] = a
		if i < numParams {
			fc.b.CreateStore(fc.fn.Param(i), a)
		} else {
			fc.b.CreateStore(c.cc.ZeroOf(t), a)
		}
	}

	// The function-level frame routes both `return` and depth-max
	// branches to one shared return block.
	root := &emitFrame{kind: frameFunc, results: wf.Type.Results}
	root.endBB = c.cc.LLVM.AddBasicBlock(fc.fn, "func_ret")
	root.endPhis = fc.makePhis(root.endBB, wf.Type.Results)
	fc.frames = []*emitFrame{root}

	for fc.pos < len(fc.body) {
		if err := fc.step(); err != nil {
			return err
		}
	}
	if len(fc.frames) != 0 {
		return fmt.Errorf("unterminated control frames at end of body")
	}
	return nil
}

// makePhis appends one phi per result type at the start of bb and returns
// them, leaving the builder where it was.
func (fc *funcCtx) makePhis(bb llvm.BasicBlock, types []wasm.ValueType) []llvm.Value {
	if len(types) == 0 {
		return nil
	}
	cur := fc.b.GetInsertBlock()
	fc.b.SetInsertPointAtEnd(bb)
	phis := make([]llvm.Value, len(types))
	for i, t := range types {
		phis[i] = fc.b.CreatePHI(fc.cc.TypeOf(t), "")
	}
	if !cur.IsNil() {
		fc.b.SetInsertPointAtEnd(cur)
	}
	return phis
}

// branchTo wires a branch to target: arity values are consumed into the
// target's phis and an unconditional br is emitted. The caller decides
// whether emission continues (br_if) or goes dead (br).
func (fc *funcCtx) branchTo(target *emitFrame, consume bool) {
	arity := target.branchArity()
	var vals []stackValue
	if consume {
		vals = fc.popN(len(arity))
	} else {
		vals = make([]stackValue, len(arity))
		copy(vals, fc.stack[len(fc.stack)-len(arity):])
	}
	cur := fc.b.GetInsertBlock()
	if target.kind == frameLoop {
		for i := range arity {
			target.headerPhis[i].AddIncoming([]llvm.Value{vals[i].v}, []llvm.BasicBlock{cur})
		}
		fc.b.CreateBr(target.headerBB)
	} else {
		for i := range arity {
			target.endPhis[i].AddIncoming([]llvm.Value{vals[i].v}, []llvm.BasicBlock{cur})
		}
		target.endReached = true
		fc.b.CreateBr(target.endBB)
	}
}

// condBranchTo wires a br_if: the branch edge feeds the target's phis (or
// loop header) from a dedicated trampoline block so fall-through state is
// untouched.
func (fc *funcCtx) condBranchTo(target *emitFrame, cond llvm.Value) {
	tramp := fc.cc.LLVM.AddBasicBlock(fc.fn, "br_if")
	cont := fc.cc.LLVM.AddBasicBlock(fc.fn, "")
	fc.b.CreateCondBr(cond, tramp, cont)
	fc.b.SetInsertPointAtEnd(tramp)
	fc.branchTo(target, false)
	fc.b.SetInsertPointAtEnd(cont)
}

func (fc *funcCtx) frameAt(depth uint32) (*emitFrame, error) {
	if int(depth) >= len(fc.frames) {
		return nil, fmt.Errorf("unknown label %d", depth)
	}
	return fc.frames[len(fc.frames)-1-int(depth)], nil
}

func (fc *funcCtx) readU32() (uint32, error) {
	v, n, err := leb128.LoadUint32(fc.body[fc.pos:])
	fc.pos += int(n)
	return v, err
}

func (fc *funcCtx) readS32() (int32, error) {
	v, n, err := leb128.LoadInt32(fc.body[fc.pos:])
	fc.pos += int(n)
	return v, err
}

func (fc *funcCtx) readS64() (int64, error) {
	v, n, err := leb128.LoadInt64(fc.body[fc.pos:])
	fc.pos += int(n)
	return v, err
}

// readMemOffset reads a memarg offset with the width selected by the
// memory's 64-bit-index flag.
func (fc *funcCtx) readMemOffset() (uint64, error) {
	if fc.c.layout.index64 {
		v, n, err := leb128.LoadUint64(fc.body[fc.pos:])
		fc.pos += int(n)
		return v, err
	}
	v, err := fc.readU32()
	return uint64(v), err
}

// enterDead begins dead-code skipping after an unconditional transfer;
// instructions are structurally skipped until the matching else/end.
func (fc *funcCtx) enterDead() {
	fc.dead = true
	fc.deadNest = 0
}

// step emits (or, in dead mode, skips) one instruction.
func (fc *funcCtx) step() error {
	opAddr := fc.pos
	op := fc.body[fc.pos]
	fc.pos++

	if fc.dead {
		return fc.stepDead(op)
	}

	switch op {
	case validator.OpUnreachable:
		fc.emitTrap(runtime.ExceptionUnreachable)
		fc.enterDead()

	case validator.OpNop:

	case validator.OpBlock, validator.OpLoop, validator.OpIf,
		validator.ExtOpBlock, validator.ExtOpLoop, validator.ExtOpIf:
		return fc.emitBlockStart(op)

	case validator.OpElse:
		return fc.emitElse()

	case validator.OpEnd:
		return fc.emitEnd()

	case validator.OpBr:
		depth, err := fc.readU32()
		if err != nil {
			return err
		}
		target, err := fc.frameAt(depth)
		if err != nil {
			return err
		}
		fc.branchTo(target, true)
		fc.enterDead()

	case validator.OpBrIf:
		depth, err := fc.readU32()
		if err != nil {
			return err
		}
		cond := fc.pop()
		target, err := fc.frameAt(depth)
		if err != nil {
			return err
		}
		nz := fc.b.CreateICmp(llvm.IntNE, cond.v, fc.cc.ConstI32(0), "")
		fc.condBranchTo(target, nz)

	case validator.OpBrTable:
		return fc.emitBrTable(opAddr, false)

	case validator.ExtOpBrTableCache:
		return fc.emitBrTable(opAddr, true)

	case validator.OpReturn:
		fc.branchTo(fc.frames[0], true)
		fc.enterDead()

	case validator.OpCall:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		fc.emitCall(idx)

	case validator.OpReturnCall:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		fc.emitCall(idx)
		fc.branchTo(fc.frames[0], true)
		fc.enterDead()

	case validator.OpCallIndirect, validator.OpReturnCallIndirect:
		typeIdx, err := fc.readU32()
		if err != nil {
			return err
		}
		if _, err := fc.readU32(); err != nil { // table index, validated 0
			return err
		}
		fc.emitCallIndirect(typeIdx)
		if op == validator.OpReturnCallIndirect {
			fc.branchTo(fc.frames[0], true)
			fc.enterDead()
		}

	case validator.OpDrop, validator.ExtOpDrop64:
		fc.pop()

	case validator.OpSelect, validator.ExtOpSelect64:
		cond := fc.pop()
		v2 := fc.pop()
		v1 := fc.pop()
		nz := fc.b.CreateICmp(llvm.IntNE, cond.v, fc.cc.ConstI32(0), "")
		fc.push(fc.b.CreateSelect(nz, v1.v, v2.v, ""), v1.t)

	case validator.OpSelectT:
		if _, err := fc.readU32(); err != nil { // type vector length, validated 1
			return err
		}
		fc.pos++ // the value type byte
		cond := fc.pop()
		v2 := fc.pop()
		v1 := fc.pop()
		nz := fc.b.CreateICmp(llvm.IntNE, cond.v, fc.cc.ConstI32(0), "")
		fc.push(fc.b.CreateSelect(nz, v1.v, v2.v, ""), v1.t)

	case validator.OpLocalGet:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		t := fc.localTypes[idx]
		v := fc.b.CreateLoad(fc.cc.TypeOf(t), fc.locals[idx], "")
		fc.pushLocal(v, t, int(idx))

	case validator.OpLocalSet:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		fc.b.CreateStore(fc.pop().v, fc.locals[idx])

	case validator.OpLocalTee:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		top := fc.stack[len(fc.stack)-1]
		fc.b.CreateStore(top.v, fc.locals[idx])

	case validator.OpGlobalGet, validator.ExtOpGetGlobal64:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		return fc.emitGlobalGet(idx)

	case validator.OpGlobalSet, validator.ExtOpSetGlobal64, validator.ExtOpSetGlobalAuxStack:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		return fc.emitGlobalSet(idx, op == validator.ExtOpSetGlobalAuxStack)

	case validator.OpMemorySizeOp:
		fc.pos++ // reserved byte
		v := fc.b.CreateLoad(fc.cc.I32, fc.cc.NamedGlobal(runtime.GlobalCurPageCount), "")
		fc.push(v, wasm.ValueTypeI32)

	case validator.OpMemoryGrowOp:
		fc.pos++ // reserved byte
		fc.emitMemoryGrow()

	case validator.OpI32Const:
		v, err := fc.readS32()
		if err != nil {
			return err
		}
		fc.push(fc.cc.ConstI32(v), wasm.ValueTypeI32)

	case validator.OpI64Const:
		v, err := fc.readS64()
		if err != nil {
			return err
		}
		fc.push(fc.cc.ConstI64(v), wasm.ValueTypeI64)

	case validator.OpF32Const:
		bits := binary.LittleEndian.Uint32(fc.body[fc.pos:])
		fc.pos += 4
		fc.push(llvm.ConstFloat(fc.cc.F32, float64(math.Float32frombits(bits))), wasm.ValueTypeF32)

	case validator.OpF64Const:
		bits := binary.LittleEndian.Uint64(fc.body[fc.pos:])
		fc.pos += 8
		fc.push(llvm.ConstFloat(fc.cc.F64, math.Float64frombits(bits)), wasm.ValueTypeF64)

	case validator.OpRefNull:
		fc.pos++ // heap type byte
		fc.push(fc.cc.ConstU32(uninitializedElem), wasm.ValueTypeFuncref)

	case validator.OpRefIsNull:
		v := fc.pop()
		isNull := fc.b.CreateICmp(llvm.IntEQ, v.v, fc.cc.ConstU32(uninitializedElem), "")
		fc.push(fc.b.CreateZExt(isNull, fc.cc.I32, ""), wasm.ValueTypeI32)

	case validator.OpRefFunc:
		idx, err := fc.readU32()
		if err != nil {
			return err
		}
		fc.push(fc.cc.ConstU32(idx), wasm.ValueTypeFuncref)

	case validator.OpTableGet, validator.OpTableSet:
		if _, err := fc.readU32(); err != nil {
			return err
		}
		fc.emitTableAccess(op == validator.OpTableSet)

	case validator.OpMiscPrefix:
		return fc.emitMiscOp()

	case validator.OpAtomicPrefix:
		return fc.emitAtomicOp()

	case validator.OpSimdPrefix:
		return fc.emitSimdOp()

	default:
		if op >= 0x28 && op <= 0x3e {
			return fc.emitMemAccess(op)
		}
		if op >= 0x45 && op <= 0xc4 {
			return fc.emitNumericOp(op)
		}
		return fmt.Errorf("unsupported opcode 0x%x at %d", op, opAddr)
	}
	return nil
}

// emitBlockStart opens a block/loop/if frame and its basic blocks.
func (fc *funcCtx) emitBlockStart(op byte) error {
	var params, results []wasm.ValueType
	if op >= validator.ExtOpBlock && op <= validator.ExtOpIf {
		// Validator-rewritten form: the immediate is always a type index.
		tidx, err := fc.readU32()
		if err != nil {
			return err
		}
		ft := fc.c.m.TypeSection[tidx]
		params, results = ft.Params, ft.Results
	} else {
		// The raw form's immediate is a one-byte value type (or 0x40);
		// signed type-index encodings were rewritten away by the validator.
		bt := fc.body[fc.pos]
		fc.pos++
		if bt != wasm.ValueTypeVoid {
			results = []wasm.ValueType{bt}
		}
	}

	var cond llvm.Value
	isIf := op == validator.OpIf || op == validator.ExtOpIf
	isLoop := op == validator.OpLoop || op == validator.ExtOpLoop
	if isIf {
		c := fc.pop()
		cond = fc.b.CreateICmp(llvm.IntNE, c.v, fc.cc.ConstI32(0), "")
	}

	f := &emitFrame{params: params, results: results}
	f.endBB = fc.cc.LLVM.AddBasicBlock(fc.fn, "")
	f.endPhis = fc.makePhis(f.endBB, results)

	switch {
	case isLoop:
		f.kind = frameLoop
		f.headerBB = fc.cc.LLVM.AddBasicBlock(fc.fn, "loop")
		f.headerPhis = fc.makePhis(f.headerBB, params)
		vals := fc.popN(len(params))
		cur := fc.b.GetInsertBlock()
		for i := range params {
			f.headerPhis[i].AddIncoming([]llvm.Value{vals[i].v}, []llvm.BasicBlock{cur})
		}
		fc.b.CreateBr(f.headerBB)
		fc.b.SetInsertPointAtEnd(f.headerBB)
		f.stackHeight = len(fc.stack)
		for i, p := range params {
			fc.push(f.headerPhis[i], p)
		}
	case isIf:
		f.kind = frameIf
		f.savedParams = fc.popN(len(params))
		f.stackHeight = len(fc.stack)
		thenBB := fc.cc.LLVM.AddBasicBlock(fc.fn, "if_then")
		f.elseBB = fc.cc.LLVM.AddBasicBlock(fc.fn, "if_else")
		fc.b.CreateCondBr(cond, thenBB, f.elseBB)
		fc.b.SetInsertPointAtEnd(thenBB)
		fc.stack = append(fc.stack, f.savedParams...)
	default:
		f.kind = frameBlock
		f.stackHeight = len(fc.stack) - len(params)
	}

	fc.frames = append(fc.frames, f)
	return nil
}

func (fc *funcCtx) emitElse() error {
	f := fc.top()
	// Close the then-arm into the end block.
	vals := fc.popN(len(f.results))
	cur := fc.b.GetInsertBlock()
	for i := range f.results {
		f.endPhis[i].AddIncoming([]llvm.Value{vals[i].v}, []llvm.BasicBlock{cur})
	}
	f.endReached = true
	fc.b.CreateBr(f.endBB)

	f.hadElse = true
	fc.stack = fc.stack[:f.stackHeight]
	fc.b.SetInsertPointAtEnd(f.elseBB)
	fc.stack = append(fc.stack, f.savedParams...)
	return nil
}

func (fc *funcCtx) emitEnd() error {
	f := fc.top()
	fc.frames = fc.frames[:len(fc.frames)-1]

	// Close the falling-through arm.
	vals := fc.popN(len(f.results))
	cur := fc.b.GetInsertBlock()
	if f.kind == frameFunc {
		for i := range f.results {
			f.endPhis[i].AddIncoming([]llvm.Value{vals[i].v}, []llvm.BasicBlock{cur})
		}
		f.endReached = true
		fc.b.CreateBr(f.endBB)
		fc.finishFunctionReturn(f)
		return nil
	}
	for i := range f.results {
		f.endPhis[i].AddIncoming([]llvm.Value{vals[i].v}, []llvm.BasicBlock{cur})
	}
	f.endReached = true
	fc.b.CreateBr(f.endBB)

	if f.kind == frameIf && !f.hadElse {
		// if-without-else: the else arm forwards the params (validated to
		// equal the results) straight to the end block.
		fc.b.SetInsertPointAtEnd(f.elseBB)
		for i := range f.results {
			f.endPhis[i].AddIncoming([]llvm.Value{f.savedParams[i].v}, []llvm.BasicBlock{f.elseBB})
		}
		fc.b.CreateBr(f.endBB)
	}

	fc.stack = fc.stack[:f.stackHeight]
	fc.b.SetInsertPointAtEnd(f.endBB)
	for i, r := range f.results {
		fc.push(f.endPhis[i], r)
	}
	return nil
}

// finishFunctionReturn seals the shared func_ret block with the final ret.
func (fc *funcCtx) finishFunctionReturn(root *emitFrame) {
	fc.b.SetInsertPointAtEnd(root.endBB)
	if !root.endReached {
		// No path returns normally; every predecessor trapped or looped.
		fc.b.CreateUnreachable()
		return
	}
	switch len(root.results) {
	case 0:
		fc.b.CreateRetVoid()
	case 1:
		fc.b.CreateRet(root.endPhis[0])
	default:
		agg := llvm.Undef(fc.cc.ReturnType(root.results))
		for i, phi := range root.endPhis {
			agg = fc.b.CreateInsertValue(agg, phi, i, "")
		}
		fc.b.CreateRet(agg)
	}
}

// emitBrTable lowers br_table through per-case trampoline blocks so each
// phi edge has a unique predecessor. Cached form reads depths from the
// validator's side table.
func (fc *funcCtx) emitBrTable(opAddr int, cached bool) error {
	var depths []uint32
	if cached {
		var ok bool
		depths, ok = fc.res.BrTableCache[opAddr]
		if !ok {
			return fmt.Errorf("missing br_table cache entry at %d", opAddr)
		}
		// Skip the nop-padded original immediates.
		for fc.pos < len(fc.body) && fc.body[fc.pos] == validator.OpNopPad {
			fc.pos++
		}
	} else {
		n, err := fc.readU32()
		if err != nil {
			return err
		}
		depths = make([]uint32, n+1)
		for i := range depths {
			if depths[i], err = fc.readU32(); err != nil {
				return err
			}
		}
	}

	idx := fc.pop()
	defaultDepth := depths[len(depths)-1]
	cases := depths[:len(depths)-1]

	makeTramp := func(depth uint32) (llvm.BasicBlock, error) {
		target, err := fc.frameAt(depth)
		if err != nil {
			return llvm.BasicBlock{}, err
		}
		cur := fc.b.GetInsertBlock()
		tramp := fc.cc.LLVM.AddBasicBlock(fc.fn, "br_table_case")
		fc.b.SetInsertPointAtEnd(tramp)
		fc.branchTo(target, false)
		fc.b.SetInsertPointAtEnd(cur)
		return tramp, nil
	}

	defaultBB, err := makeTramp(defaultDepth)
	if err != nil {
		return err
	}
	sw := fc.b.CreateSwitch(idx.v, defaultBB, len(cases))
	for i, d := range cases {
		bb, err := makeTramp(d)
		if err != nil {
			return err
		}
		sw.AddCase(fc.cc.ConstU32(uint32(i)), bb)
	}

	// The branch arity values were peeked by each trampoline; consume them
	// now that every edge is wired.
	target, _ := fc.frameAt(defaultDepth)
	fc.popN(len(target.branchArity()))
	fc.enterDead()
	return nil
}

// stepDead structurally skips one instruction in unreachable code,
// re-anchoring at the matching else/end.
func (fc *funcCtx) stepDead(op byte) error {
	switch op {
	case validator.OpBlock, validator.OpLoop, validator.OpIf,
		validator.ExtOpBlock, validator.ExtOpLoop, validator.ExtOpIf:
		fc.deadNest++
		return fc.skipImmediates(op)

	case validator.OpElse:
		if fc.deadNest > 0 {
			return nil
		}
		f := fc.top()
		f.hadElse = true
		fc.stack = fc.stack[:f.stackHeight]
		fc.b.SetInsertPointAtEnd(f.elseBB)
		fc.stack = append(fc.stack, f.savedParams...)
		fc.dead = false
		return nil

	case validator.OpEnd:
		if fc.deadNest > 0 {
			fc.deadNest--
			return nil
		}
		f := fc.top()
		fc.frames = fc.frames[:len(fc.frames)-1]

		if f.kind == frameIf && !f.hadElse {
			fc.b.SetInsertPointAtEnd(f.elseBB)
			for i := range f.results {
				f.endPhis[i].AddIncoming([]llvm.Value{f.savedParams[i].v}, []llvm.BasicBlock{f.elseBB})
			}
			f.endReached = true
			fc.b.CreateBr(f.endBB)
		}

		if f.kind == frameFunc {
			fc.finishFunctionReturn(f)
			fc.dead = false
			return nil
		}

		fc.stack = fc.stack[:f.stackHeight]
		if !f.endReached {
			// Nothing branches here: the code after this block is itself
			// unreachable, so stay dead at the enclosing level.
			f.endBB.EraseFromParent()
			return nil
		}
		fc.b.SetInsertPointAtEnd(f.endBB)
		for i, r := range f.results {
			fc.push(f.endPhis[i], r)
		}
		fc.dead = false
		return nil

	default:
		return fc.skipImmediates(op)
	}
}

// skipImmediates advances pos past op's immediates without emitting.
func (fc *funcCtx) skipImmediates(op byte) error {
	skipU32 := func() error { _, err := fc.readU32(); return err }
	switch {
	case op >= validator.ExtOpBlock && op <= validator.ExtOpIf:
		return skipU32()
	case op == validator.OpBlock || op == validator.OpLoop || op == validator.OpIf:
		fc.pos++ // inline value type
		return nil
	case op == validator.OpBr || op == validator.OpBrIf || op == validator.OpCall ||
		op == validator.OpReturnCall || op == validator.OpLocalGet || op == validator.OpLocalSet ||
		op == validator.OpLocalTee || op == validator.OpGlobalGet || op == validator.OpGlobalSet ||
		op == validator.ExtOpGetGlobal64 || op == validator.ExtOpSetGlobal64 ||
		op == validator.ExtOpSetGlobalAuxStack || op == validator.OpRefFunc ||
		op == validator.OpTableGet || op == validator.OpTableSet:
		return skipU32()
	case op == validator.OpBrTable:
		n, err := fc.readU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			if err := skipU32(); err != nil {
				return err
			}
		}
		return nil
	case op == validator.ExtOpBrTableCache:
		for fc.pos < len(fc.body) && fc.body[fc.pos] == validator.OpNopPad {
			fc.pos++
		}
		return nil
	case op == validator.OpCallIndirect || op == validator.OpReturnCallIndirect:
		if err := skipU32(); err != nil {
			return err
		}
		return skipU32()
	case op == validator.OpSelectT:
		if err := skipU32(); err != nil {
			return err
		}
		fc.pos++
		return nil
	case op == validator.OpMemorySizeOp || op == validator.OpMemoryGrowOp || op == validator.OpRefNull:
		fc.pos++
		return nil
	case op == validator.OpI32Const:
		_, err := fc.readS32()
		return err
	case op == validator.OpI64Const:
		_, err := fc.readS64()
		return err
	case op == validator.OpF32Const:
		fc.pos += 4
		return nil
	case op == validator.OpF64Const:
		fc.pos += 8
		return nil
	case op >= 0x28 && op <= 0x3e:
		if err := skipU32(); err != nil { // align
			return err
		}
		_, err := fc.readMemOffset()
		return err
	case op == validator.OpMiscPrefix:
		return fc.skipMiscImmediates()
	case op == validator.OpAtomicPrefix:
		return fc.skipAtomicImmediates()
	case op == validator.OpSimdPrefix:
		return fc.skipSimdImmediates()
	default:
		// All remaining recognized opcodes are immediate-free.
		return nil
	}
}

func (fc *funcCtx) skipMiscImmediates() error {
	sub, err := fc.readU32()
	if err != nil {
		return err
	}
	switch {
	case sub <= 0x07: // trunc_sat
		return nil
	case sub == 0x08 || sub == 0x0a || sub == 0x0c || sub == 0x0e: // two index immediates
		if _, err := fc.readU32(); err != nil {
			return err
		}
		_, err := fc.readU32()
		return err
	default: // one index immediate
		_, err := fc.readU32()
		return err
	}
}

func (fc *funcCtx) skipAtomicImmediates() error {
	sub, err := fc.readU32()
	if err != nil {
		return err
	}
	if sub == 0x03 { // fence
		fc.pos++
		return nil
	}
	if _, err := fc.readU32(); err != nil { // align
		return err
	}
	_, err = fc.readMemOffset()
	return err
}

func (fc *funcCtx) skipSimdImmediates() error {
	sub, err := fc.readU32()
	if err != nil {
		return err
	}
	switch sub {
	case 0x00, 0x0b: // v128.load/store
		if _, err := fc.readU32(); err != nil {
			return err
		}
		_, err := fc.readMemOffset()
		return err
	case 0x0c: // v128.const
		fc.pos += 16
		return nil
	default: // lane ops carry a single lane byte
		fc.pos++
		return nil
	}
}
