package compiler

import (
	"fmt"
	"math"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/runtime"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// emitNumericOp lowers the MVP numeric family (0x45..0xc4): comparisons,
// integer/float arithmetic, and conversions, including the div/rem and
// float-to-int trap checks.
func (fc *funcCtx) emitNumericOp(op byte) error {
	cc := fc.c.cc
	b := fc.b
	i32t, i64t := wasm.ValueTypeI32, wasm.ValueTypeI64
	f32t, f64t := wasm.ValueTypeF32, wasm.ValueTypeF64

	boolToI32 := func(v llvm.Value) llvm.Value { return b.CreateZExt(v, cc.I32, "") }

	icmp := func(pred llvm.IntPredicate) {
		y := fc.pop()
		x := fc.pop()
		fc.push(boolToI32(b.CreateICmp(pred, x.v, y.v, "")), i32t)
	}
	fcmp := func(pred llvm.FloatPredicate) {
		y := fc.pop()
		x := fc.pop()
		fc.push(boolToI32(b.CreateFCmp(pred, x.v, y.v, "")), i32t)
	}

	intBin := func(t wasm.ValueType, f func(x, y llvm.Value) llvm.Value) {
		y := fc.pop()
		x := fc.pop()
		fc.push(f(x.v, y.v), t)
	}
	floatUn := func(t wasm.ValueType, f func(x llvm.Value) llvm.Value) {
		x := fc.pop()
		fc.push(f(x.v), t)
	}

	// Shift amounts are taken modulo the bit width.
	maskShift := func(t llvm.Type, amt llvm.Value, width uint64) llvm.Value {
		return b.CreateAnd(amt, llvm.ConstInt(t, width-1, false), "")
	}

	switch {
	case op == 0x45: // i32.eqz
		x := fc.pop()
		fc.push(boolToI32(b.CreateICmp(llvm.IntEQ, x.v, cc.ConstI32(0), "")), i32t)
	case op >= 0x46 && op <= 0x4f:
		icmp(intPredFor(op - 0x46))
	case op == 0x50: // i64.eqz
		x := fc.pop()
		fc.push(boolToI32(b.CreateICmp(llvm.IntEQ, x.v, cc.ConstI64(0), "")), i32t)
	case op >= 0x51 && op <= 0x5a:
		icmp(intPredFor(op - 0x51))
	case op >= 0x5b && op <= 0x60:
		fcmp(floatPredFor(op - 0x5b))
	case op >= 0x61 && op <= 0x66:
		fcmp(floatPredFor(op - 0x61))

	case op >= 0x67 && op <= 0x69: // i32 clz/ctz/popcnt
		fc.emitIntCount(op-0x67, cc.I32, i32t)
	case op >= 0x6a && op <= 0x78: // i32 binops
		sub := op - 0x6a
		switch sub {
		case 0:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateAdd(x, y, "") })
		case 1:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateSub(x, y, "") })
		case 2:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateMul(x, y, "") })
		case 3, 4, 5, 6:
			fc.emitIntDivRem(sub, cc.I32, i32t, math.MinInt32)
		case 7:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateAnd(x, y, "") })
		case 8:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateOr(x, y, "") })
		case 9:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateXor(x, y, "") })
		case 10:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateShl(x, maskShift(cc.I32, y, 32), "") })
		case 11:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateAShr(x, maskShift(cc.I32, y, 32), "") })
		case 12:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return b.CreateLShr(x, maskShift(cc.I32, y, 32), "") })
		case 13:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return fc.emitRotate("llvm.fshl.i32", cc.I32, x, y) })
		case 14:
			intBin(i32t, func(x, y llvm.Value) llvm.Value { return fc.emitRotate("llvm.fshr.i32", cc.I32, x, y) })
		}

	case op >= 0x79 && op <= 0x7b: // i64 clz/ctz/popcnt
		fc.emitIntCount(op-0x79, cc.I64, i64t)
	case op >= 0x7c && op <= 0x8a: // i64 binops
		sub := op - 0x7c
		switch sub {
		case 0:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateAdd(x, y, "") })
		case 1:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateSub(x, y, "") })
		case 2:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateMul(x, y, "") })
		case 3, 4, 5, 6:
			fc.emitIntDivRem(sub, cc.I64, i64t, math.MinInt64)
		case 7:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateAnd(x, y, "") })
		case 8:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateOr(x, y, "") })
		case 9:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateXor(x, y, "") })
		case 10:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateShl(x, maskShift(cc.I64, y, 64), "") })
		case 11:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateAShr(x, maskShift(cc.I64, y, 64), "") })
		case 12:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return b.CreateLShr(x, maskShift(cc.I64, y, 64), "") })
		case 13:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return fc.emitRotate("llvm.fshl.i64", cc.I64, x, y) })
		case 14:
			intBin(i64t, func(x, y llvm.Value) llvm.Value { return fc.emitRotate("llvm.fshr.i64", cc.I64, x, y) })
		}

	case op >= 0x8b && op <= 0x91: // f32 unops
		fc.emitFloatUnop(op-0x8b, cc.F32, f32t)
	case op >= 0x92 && op <= 0x98: // f32 binops
		fc.emitFloatBinop(op-0x92, cc.F32, f32t)
	case op >= 0x99 && op <= 0x9f: // f64 unops
		fc.emitFloatUnop(op-0x99, cc.F64, f64t)
	case op >= 0xa0 && op <= 0xa6: // f64 binops
		fc.emitFloatBinop(op-0xa0, cc.F64, f64t)

	case op == 0xa7: // i32.wrap_i64
		floatUn(i32t, func(x llvm.Value) llvm.Value { return b.CreateTrunc(x, cc.I32, "") })
	case op >= 0xa8 && op <= 0xab: // i32.trunc_f*
		fc.emitFloatToInt(op == 0xa8 || op == 0xaa, op >= 0xaa, cc.I32, i32t, false)
	case op == 0xac:
		floatUn(i64t, func(x llvm.Value) llvm.Value { return b.CreateSExt(x, cc.I64, "") })
	case op == 0xad:
		floatUn(i64t, func(x llvm.Value) llvm.Value { return b.CreateZExt(x, cc.I64, "") })
	case op >= 0xae && op <= 0xb1: // i64.trunc_f*
		fc.emitFloatToInt(op == 0xae || op == 0xb0, op >= 0xb0, cc.I64, i64t, false)

	case op == 0xb2:
		floatUn(f32t, func(x llvm.Value) llvm.Value { return b.CreateSIToFP(x, cc.F32, "") })
	case op == 0xb3:
		floatUn(f32t, func(x llvm.Value) llvm.Value { return b.CreateUIToFP(x, cc.F32, "") })
	case op == 0xb4:
		floatUn(f32t, func(x llvm.Value) llvm.Value { return b.CreateSIToFP(x, cc.F32, "") })
	case op == 0xb5:
		floatUn(f32t, func(x llvm.Value) llvm.Value { return b.CreateUIToFP(x, cc.F32, "") })
	case op == 0xb6:
		floatUn(f32t, func(x llvm.Value) llvm.Value { return b.CreateFPTrunc(x, cc.F32, "") })
	case op == 0xb7:
		floatUn(f64t, func(x llvm.Value) llvm.Value { return b.CreateSIToFP(x, cc.F64, "") })
	case op == 0xb8:
		floatUn(f64t, func(x llvm.Value) llvm.Value { return b.CreateUIToFP(x, cc.F64, "") })
	case op == 0xb9:
		floatUn(f64t, func(x llvm.Value) llvm.Value { return b.CreateSIToFP(x, cc.F64, "") })
	case op == 0xba:
		floatUn(f64t, func(x llvm.Value) llvm.Value { return b.CreateUIToFP(x, cc.F64, "") })
	case op == 0xbb:
		floatUn(f64t, func(x llvm.Value) llvm.Value { return b.CreateFPExt(x, cc.F64, "") })

	case op == 0xbc:
		floatUn(i32t, func(x llvm.Value) llvm.Value { return b.CreateBitCast(x, cc.I32, "") })
	case op == 0xbd:
		floatUn(i64t, func(x llvm.Value) llvm.Value { return b.CreateBitCast(x, cc.I64, "") })
	case op == 0xbe:
		floatUn(f32t, func(x llvm.Value) llvm.Value { return b.CreateBitCast(x, cc.F32, "") })
	case op == 0xbf:
		floatUn(f64t, func(x llvm.Value) llvm.Value { return b.CreateBitCast(x, cc.F64, "") })

	case op >= 0xc0 && op <= 0xc4: // sign-extension ops
		narrow := map[byte]llvm.Type{0xc0: cc.I8, 0xc1: cc.I16, 0xc2: cc.I8, 0xc3: cc.I16, 0xc4: cc.I32}[op]
		wide := cc.I32
		t := i32t
		if op >= 0xc2 {
			wide = cc.I64
			t = i64t
		}
		floatUn(t, func(x llvm.Value) llvm.Value {
			return b.CreateSExt(b.CreateTrunc(x, narrow, ""), wide, "")
		})

	default:
		return fmt.Errorf("unsupported numeric opcode 0x%x", op)
	}
	return nil
}

func intPredFor(sub byte) llvm.IntPredicate {
	// eq ne lt_s lt_u gt_s gt_u le_s le_u ge_s ge_u
	return []llvm.IntPredicate{
		llvm.IntEQ, llvm.IntNE, llvm.IntSLT, llvm.IntULT, llvm.IntSGT,
		llvm.IntUGT, llvm.IntSLE, llvm.IntULE, llvm.IntSGE, llvm.IntUGE,
	}[sub]
}

func floatPredFor(sub byte) llvm.FloatPredicate {
	// eq ne lt gt le ge
	return []llvm.FloatPredicate{
		llvm.FloatOEQ, llvm.FloatUNE, llvm.FloatOLT, llvm.FloatOGT, llvm.FloatOLE, llvm.FloatOGE,
	}[sub]
}

// emitIntCount lowers clz/ctz/popcnt via the ct* intrinsics.
func (fc *funcCtx) emitIntCount(sub byte, t llvm.Type, wt wasm.ValueType) {
	x := fc.pop()
	width := "i32"
	if t == fc.c.cc.I64 {
		width = "i64"
	}
	var v llvm.Value
	switch sub {
	case 0, 1:
		name := "llvm.ctlz." + width
		if sub == 1 {
			name = "llvm.cttz." + width
		}
		fn, ft := fc.c.intrinsic(name, t, []llvm.Type{t, fc.c.cc.I1})
		v = fc.b.CreateCall(ft, fn, []llvm.Value{x.v, llvm.ConstInt(fc.c.cc.I1, 0, false)}, "")
	default:
		fn, ft := fc.c.intrinsic("llvm.ctpop."+width, t, []llvm.Type{t})
		v = fc.b.CreateCall(ft, fn, []llvm.Value{x.v}, "")
	}
	fc.push(v, wt)
}

func (fc *funcCtx) emitRotate(name string, t llvm.Type, x, y llvm.Value) llvm.Value {
	fn, ft := fc.c.intrinsic(name, t, []llvm.Type{t, t, t})
	return fc.b.CreateCall(ft, fn, []llvm.Value{x, x, y}, "")
}

// emitIntDivRem lowers div_s/div_u/rem_s/rem_u (sub 3..6 within the binop
// run) with the zero-divisor and signed-overflow traps.
func (fc *funcCtx) emitIntDivRem(sub byte, t llvm.Type, wt wasm.ValueType, minVal int64) {
	b := fc.b
	y := fc.pop()
	x := fc.pop()

	zero := llvm.ConstNull(t)
	divZero := b.CreateICmp(llvm.IntEQ, y.v, zero, "")
	fc.emitTrapIf(divZero, runtime.ExceptionIntegerDivideByZero)

	signed := sub == 3 || sub == 5
	var overflow llvm.Value
	if signed {
		minC := llvm.ConstInt(t, uint64(minVal), true)
		negOne := llvm.ConstInt(t, ^uint64(0), true)
		isMin := b.CreateICmp(llvm.IntEQ, x.v, minC, "")
		isNegOne := b.CreateICmp(llvm.IntEQ, y.v, negOne, "")
		overflow = b.CreateAnd(isMin, isNegOne, "")
	}

	var v llvm.Value
	switch sub {
	case 3: // div_s traps on MIN/-1
		fc.emitTrapIf(overflow, runtime.ExceptionIntegerOverflow)
		v = b.CreateSDiv(x.v, y.v, "")
	case 4:
		v = b.CreateUDiv(x.v, y.v, "")
	case 5: // rem_s: MIN rem -1 is defined as 0; dodge the poison divisor
		one := llvm.ConstInt(t, 1, false)
		safeY := b.CreateSelect(overflow, one, y.v, "")
		v = b.CreateSRem(x.v, safeY, "")
	default:
		v = b.CreateURem(x.v, y.v, "")
	}
	fc.push(v, wt)
}

// emitFloatUnop lowers abs/neg/ceil/floor/trunc/nearest/sqrt.
func (fc *funcCtx) emitFloatUnop(sub byte, t llvm.Type, wt wasm.ValueType) {
	x := fc.pop()
	suffix := "f32"
	if t == fc.c.cc.F64 {
		suffix = "f64"
	}
	var v llvm.Value
	switch sub {
	case 0:
		v = fc.callUnary("llvm.fabs."+suffix, t, x.v)
	case 1:
		v = fc.b.CreateFNeg(x.v, "")
	case 2:
		v = fc.callUnary("llvm.ceil."+suffix, t, x.v)
	case 3:
		v = fc.callUnary("llvm.floor."+suffix, t, x.v)
	case 4:
		v = fc.callUnary("llvm.trunc."+suffix, t, x.v)
	case 5:
		// round-to-even under the default environment
		v = fc.callUnary("llvm.rint."+suffix, t, x.v)
	default:
		v = fc.callUnary("llvm.sqrt."+suffix, t, x.v)
	}
	fc.push(v, wt)
}

// emitFloatBinop lowers add/sub/mul/div/min/max/copysign; min/max use the
// NaN-propagating minimum/maximum intrinsics wasm semantics require.
func (fc *funcCtx) emitFloatBinop(sub byte, t llvm.Type, wt wasm.ValueType) {
	y := fc.pop()
	x := fc.pop()
	suffix := "f32"
	if t == fc.c.cc.F64 {
		suffix = "f64"
	}
	var v llvm.Value
	switch sub {
	case 0:
		v = fc.b.CreateFAdd(x.v, y.v, "")
	case 1:
		v = fc.b.CreateFSub(x.v, y.v, "")
	case 2:
		v = fc.b.CreateFMul(x.v, y.v, "")
	case 3:
		v = fc.b.CreateFDiv(x.v, y.v, "")
	case 4:
		v = fc.callBinary("llvm.minimum."+suffix, t, x.v, y.v)
	case 5:
		v = fc.callBinary("llvm.maximum."+suffix, t, x.v, y.v)
	default:
		v = fc.callBinary("llvm.copysign."+suffix, t, x.v, y.v)
	}
	fc.push(v, wt)
}

// truncRange returns the exclusive bounds outside which a float-to-int
// truncation overflows: the nearest representable value of the source
// float type strictly outside the target's range on each side, so that
// every in-range value (including the exact type minimum) passes.
func truncRange(signed, to64, from64 bool) (lo, hi float64) {
	switch {
	case signed && !to64:
		if from64 {
			return -2147483649.0, 2147483648.0
		}
		return -2147483904.0, 2147483648.0
	case !signed && !to64:
		return -1.0, 4294967296.0
	case signed && to64:
		if from64 {
			return -9223372036854777856.0, 9223372036854775808.0
		}
		return -9223373136366403584.0, 9223372036854775808.0
	default:
		return -1.0, 18446744073709551616.0
	}
}

// emitFloatToInt lowers the trapping trunc family: NaN raises
// EXCE_INVALID_CONVERSION_TO_INTEGER, out-of-range raises
// EXCE_INTEGER_OVERFLOW; the saturating variants clamp via
// the fpto*i.sat intrinsics instead.
func (fc *funcCtx) emitFloatToInt(signed, from64 bool, to llvm.Type, wt wasm.ValueType, saturating bool) {
	cc := fc.c.cc
	x := fc.pop()

	if saturating {
		name := "llvm.fptoui.sat."
		if signed {
			name = "llvm.fptosi.sat."
		}
		toName := "i32"
		if to == cc.I64 {
			toName = "i64"
		}
		fromName := "f32"
		if from64 {
			fromName = "f64"
		}
		fn, ft := fc.c.intrinsic(name+toName+"."+fromName, to, []llvm.Type{x.v.Type()})
		fc.push(fc.b.CreateCall(ft, fn, []llvm.Value{x.v}, ""), wt)
		return
	}

	isNaN := fc.b.CreateFCmp(llvm.FloatUNO, x.v, x.v, "")
	fc.emitTrapIf(isNaN, runtime.ExceptionInvalidConversionToInteger)

	lo, hi := truncRange(signed, to == cc.I64, from64)
	ft := x.v.Type()
	tooLow := fc.b.CreateFCmp(llvm.FloatOLE, x.v, llvm.ConstFloat(ft, lo), "")
	tooHigh := fc.b.CreateFCmp(llvm.FloatOGE, x.v, llvm.ConstFloat(ft, hi), "")
	fc.emitTrapIf(fc.b.CreateOr(tooLow, tooHigh, ""), runtime.ExceptionIntegerOverflow)

	var v llvm.Value
	if signed {
		v = fc.b.CreateFPToSI(x.v, to, "")
	} else {
		v = fc.b.CreateFPToUI(x.v, to, "")
	}
	fc.push(v, wt)
}

// emitTruncSat dispatches the 0xFC 0x00..0x07 saturating truncations.
func (fc *funcCtx) emitTruncSat(sub uint32) error {
	cc := fc.c.cc
	// i32.trunc_sat_f32_s, _f32_u, _f64_s, _f64_u, then the i64 run.
	to := cc.I32
	wt := wasm.ValueTypeI32
	if sub >= 4 {
		to = cc.I64
		wt = wasm.ValueTypeI64
	}
	rel := sub % 4
	signed := rel == 0 || rel == 2
	from64 := rel >= 2
	fc.emitFloatToInt(signed, from64, to, wt, true)
	return nil
}
