package compiler

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// emitSimdOp dispatches the supported 0xFD vector subset: v128
// load/store/const and the lane extract/replace family, matching exactly
// what the validator admits.
func (fc *funcCtx) emitSimdOp() error {
	cc := fc.c.cc
	sub, err := fc.readU32()
	if err != nil {
		return err
	}

	switch sub {
	case 0x00: // v128.load
		if _, err := fc.readU32(); err != nil {
			return err
		}
		offset, err := fc.readMemOffset()
		if err != nil {
			return err
		}
		addr := fc.pop()
		ptr := fc.memAddr(addr, offset, 16)
		v := fc.b.CreateLoad(cc.V128, ptr, "")
		v.SetAlignment(1)
		fc.push(v, wasm.ValueTypeV128)
		return nil

	case 0x0b: // v128.store
		if _, err := fc.readU32(); err != nil {
			return err
		}
		offset, err := fc.readMemOffset()
		if err != nil {
			return err
		}
		val := fc.pop()
		addr := fc.pop()
		ptr := fc.memAddr(addr, offset, 16)
		st := fc.b.CreateStore(val.v, ptr)
		st.SetAlignment(1)
		return nil

	case 0x0c: // v128.const
		lo := leU64(fc.body[fc.pos : fc.pos+8])
		hi := leU64(fc.body[fc.pos+8 : fc.pos+16])
		fc.pos += 16
		v := llvm.ConstVector([]llvm.Value{cc.ConstU64(lo), cc.ConstU64(hi)}, false)
		fc.push(v, wasm.ValueTypeV128)
		return nil
	}

	// Lane ops: one lane-index byte immediate.
	lane := fc.body[fc.pos]
	fc.pos++
	laneIdx := cc.ConstU32(uint32(lane))

	// bitcastLanes reinterprets the canonical <2 x i64> as the lane shape
	// the opcode addresses.
	bitcastLanes := func(v llvm.Value, elem llvm.Type, count int) llvm.Value {
		return fc.b.CreateBitCast(v, llvm.VectorType(elem, count), "")
	}

	extractInt := func(elem llvm.Type, count int, signExt bool, wide llvm.Type, wt wasm.ValueType) {
		v := fc.pop()
		lanes := bitcastLanes(v.v, elem, count)
		e := fc.b.CreateExtractElement(lanes, laneIdx, "")
		if elem != wide {
			if signExt {
				e = fc.b.CreateSExt(e, wide, "")
			} else {
				e = fc.b.CreateZExt(e, wide, "")
			}
		}
		fc.push(e, wt)
	}
	replaceInt := func(elem llvm.Type, count int) {
		s := fc.pop()
		v := fc.pop()
		lanes := bitcastLanes(v.v, elem, count)
		scalar := s.v
		if scalar.Type() != elem {
			scalar = fc.b.CreateTrunc(scalar, elem, "")
		}
		res := fc.b.CreateInsertElement(lanes, scalar, laneIdx, "")
		fc.push(fc.b.CreateBitCast(res, cc.V128, ""), wasm.ValueTypeV128)
	}
	extractFloat := func(elem llvm.Type, count int, wt wasm.ValueType) {
		v := fc.pop()
		lanes := bitcastLanes(v.v, elem, count)
		fc.push(fc.b.CreateExtractElement(lanes, laneIdx, ""), wt)
	}
	replaceFloat := func(elem llvm.Type, count int) {
		s := fc.pop()
		v := fc.pop()
		lanes := bitcastLanes(v.v, elem, count)
		res := fc.b.CreateInsertElement(lanes, s.v, laneIdx, "")
		fc.push(fc.b.CreateBitCast(res, cc.V128, ""), wasm.ValueTypeV128)
	}

	switch sub {
	case 0x15: // i8x16.extract_lane_s
		extractInt(cc.I8, 16, true, cc.I32, wasm.ValueTypeI32)
	case 0x16: // i16x8.extract_lane_s
		extractInt(cc.I16, 8, true, cc.I32, wasm.ValueTypeI32)
	case 0x17: // i32x4.extract_lane
		extractInt(cc.I32, 4, false, cc.I32, wasm.ValueTypeI32)
	case 0x18: // i64x2.extract_lane
		extractInt(cc.I64, 2, false, cc.I64, wasm.ValueTypeI64)
	case 0x19: // i8x16.extract_lane_u
		extractInt(cc.I8, 16, false, cc.I32, wasm.ValueTypeI32)
	case 0x1a: // i8x16.replace_lane
		replaceInt(cc.I8, 16)
	case 0x1b: // i16x8.extract_lane_u
		extractInt(cc.I16, 8, false, cc.I32, wasm.ValueTypeI32)
	case 0x1c: // i16x8.replace_lane
		replaceInt(cc.I16, 8)
	case 0x1d: // i32x4.replace_lane
		replaceInt(cc.I32, 4)
	case 0x1e: // i64x2.replace_lane
		replaceInt(cc.I64, 2)
	case 0x1f: // f32x4.extract_lane
		extractFloat(cc.F32, 4, wasm.ValueTypeF32)
	case 0x20: // f32x4.replace_lane
		replaceFloat(cc.F32, 4)
	case 0x21: // f64x2.extract_lane
		extractFloat(cc.F64, 2, wasm.ValueTypeF64)
	case 0x22: // f64x2.replace_lane
		replaceFloat(cc.F64, 2)
	default:
		return fmt.Errorf("unsupported simd opcode 0xfd 0x%x", sub)
	}
	return nil
}
