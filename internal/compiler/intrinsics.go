package compiler

import (
	"tinygo.org/x/go-llvm"
)

// Host allocator and libc declarations the constructor and memory.grow
// call into. Each is declared once, on first use.

func (c *Compiler) libcMalloc() (llvm.Value, llvm.Type) {
	ft := llvm.FunctionType(c.cc.Ptr, []llvm.Type{c.cc.I64}, false)
	return c.cc.DeclareFunc("malloc", ft), ft
}

func (c *Compiler) libcFree() (llvm.Value, llvm.Type) {
	ft := llvm.FunctionType(c.cc.Void, []llvm.Type{c.cc.Ptr}, false)
	return c.cc.DeclareFunc("free", ft), ft
}

func (c *Compiler) libcRealloc() (llvm.Value, llvm.Type) {
	ft := llvm.FunctionType(c.cc.Ptr, []llvm.Type{c.cc.Ptr, c.cc.I64}, false)
	return c.cc.DeclareFunc("realloc", ft), ft
}

func (c *Compiler) libcPuts() (llvm.Value, llvm.Type) {
	ft := llvm.FunctionType(c.cc.I32, []llvm.Type{c.cc.Ptr}, false)
	return c.cc.DeclareFunc("puts", ft), ft
}

func (c *Compiler) memAllocatorCreate() (llvm.Value, llvm.Type) {
	ft := llvm.FunctionType(c.cc.Ptr, []llvm.Type{c.cc.Ptr, c.cc.I32}, false)
	return c.cc.DeclareFunc("mem_allocator_create", ft), ft
}

func (c *Compiler) memAllocatorDestroy() (llvm.Value, llvm.Type) {
	ft := llvm.FunctionType(c.cc.Void, []llvm.Type{c.cc.Ptr}, false)
	return c.cc.DeclareFunc("mem_allocator_destroy", ft), ft
}

// intrinsic declares (once) and returns a named LLVM intrinsic with an
// explicit type, the table-free alternative to binding every intrinsic id.
func (c *Compiler) intrinsic(name string, ret llvm.Type, params []llvm.Type) (llvm.Value, llvm.Type) {
	ft := llvm.FunctionType(ret, params, false)
	return c.cc.DeclareFunc(name, ft), ft
}

// emitMemcpy/emitMemmove/emitMemset call the width-64 memory intrinsics.
func (c *Compiler) emitMemcpy(b llvm.Builder, dst, src, n llvm.Value) {
	fn, ft := c.intrinsic("llvm.memcpy.p0.p0.i64", c.cc.Void,
		[]llvm.Type{c.cc.Ptr, c.cc.Ptr, c.cc.I64, c.cc.I1})
	b.CreateCall(ft, fn, []llvm.Value{dst, src, n, llvm.ConstInt(c.cc.I1, 0, false)}, "")
}

func (c *Compiler) emitMemmove(b llvm.Builder, dst, src, n llvm.Value) {
	fn, ft := c.intrinsic("llvm.memmove.p0.p0.i64", c.cc.Void,
		[]llvm.Type{c.cc.Ptr, c.cc.Ptr, c.cc.I64, c.cc.I1})
	b.CreateCall(ft, fn, []llvm.Value{dst, src, n, llvm.ConstInt(c.cc.I1, 0, false)}, "")
}

func (c *Compiler) emitMemset(b llvm.Builder, dst, val, n llvm.Value) {
	fn, ft := c.intrinsic("llvm.memset.p0.i64", c.cc.Void,
		[]llvm.Type{c.cc.Ptr, c.cc.I8, c.cc.I64, c.cc.I1})
	b.CreateCall(ft, fn, []llvm.Value{dst, val, n, llvm.ConstInt(c.cc.I1, 0, false)}, "")
}

// callUnary/callBinary invoke a same-typed math intrinsic, e.g.
// llvm.sqrt.f64.
func (fc *funcCtx) callUnary(name string, t llvm.Type, x llvm.Value) llvm.Value {
	fn, ft := fc.c.intrinsic(name, t, []llvm.Type{t})
	return fc.b.CreateCall(ft, fn, []llvm.Value{x}, "")
}

func (fc *funcCtx) callBinary(name string, t llvm.Type, x, y llvm.Value) llvm.Value {
	fn, ft := fc.c.intrinsic(name, t, []llvm.Type{t, t})
	return fc.b.CreateCall(ft, fn, []llvm.Value{x, y}, "")
}
