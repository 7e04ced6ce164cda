package compiler

import (
	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
)

// excBlock lazily creates the per-function got_exception block: a phi collects the exception id from every raise site, stores it
// into the exception_id global, and the function returns a zero value.
func (fc *funcCtx) excBlock() (llvm.BasicBlock, llvm.Value) {
	if !fc.gotExcBB.IsNil() {
		return fc.gotExcBB, fc.gotExcPhi
	}
	cc := fc.c.cc
	cur := fc.b.GetInsertBlock()
	fc.gotExcBB = cc.LLVM.AddBasicBlock(fc.fn, "got_exception")
	fc.b.SetInsertPointAtEnd(fc.gotExcBB)
	fc.gotExcPhi = fc.b.CreatePHI(cc.I32, "exception_phi")
	fc.b.CreateStore(fc.gotExcPhi, cc.NamedGlobal(runtime.GlobalExceptionID))
	fc.c.emitZeroReturn(fc.ft)
	fc.b.SetInsertPointAtEnd(cur)
	return fc.gotExcBB, fc.gotExcPhi
}

// emitTrap unconditionally raises id: branch to the got_exception block.
// The caller is responsible for entering dead-code mode afterwards.
func (fc *funcCtx) emitTrap(id runtime.ExceptionID) {
	bb, phi := fc.excBlock()
	cur := fc.b.GetInsertBlock()
	phi.AddIncoming([]llvm.Value{fc.c.cc.ConstI32(int32(id))}, []llvm.BasicBlock{cur})
	fc.b.CreateBr(bb)
}

// emitTrapIf raises id when cond holds and leaves the builder positioned
// in the false successor.
func (fc *funcCtx) emitTrapIf(cond llvm.Value, id runtime.ExceptionID) {
	bb, phi := fc.excBlock()
	cur := fc.b.GetInsertBlock()
	phi.AddIncoming([]llvm.Value{fc.c.cc.ConstI32(int32(id))}, []llvm.BasicBlock{cur})
	cont := fc.c.cc.LLVM.AddBasicBlock(fc.fn, "")
	fc.b.CreateCondBr(cond, bb, cont)
	fc.b.SetInsertPointAtEnd(cont)
}

// emitCalleeExceptionCheck propagates a callee's pending exception: after
// any call into another wasm function, a nonzero exception_id aborts this
// frame with a zero return, without overwriting the stored id.
func (fc *funcCtx) emitCalleeExceptionCheck() {
	cc := fc.c.cc
	if fc.propagateBB.IsNil() {
		cur := fc.b.GetInsertBlock()
		fc.propagateBB = cc.LLVM.AddBasicBlock(fc.fn, "propagate_exception")
		fc.b.SetInsertPointAtEnd(fc.propagateBB)
		fc.c.emitZeroReturn(fc.ft)
		fc.b.SetInsertPointAtEnd(cur)
	}
	id := fc.b.CreateLoad(cc.I32, cc.NamedGlobal(runtime.GlobalExceptionID), "")
	cond := fc.b.CreateICmp(llvm.IntNE, id, cc.ConstI32(0), "")
	cont := cc.LLVM.AddBasicBlock(fc.fn, "")
	fc.b.CreateCondBr(cond, fc.propagateBB, cont)
	fc.b.SetInsertPointAtEnd(cont)
}
