package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

func moduleWithFunc(fn wasm.Function) *wasm.Module {
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{fn.Type},
		FunctionSection: []wasm.Function{fn},
	}
}

func TestValidateAddFunction(t *testing.T) {
	ft := wasm.NewFunctionType([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
	body := []byte{
		OpLocalGet, 0,
		OpLocalGet, 1,
		0x6a, // i32.add
		OpEnd,
	}
	m := moduleWithFunc(wasm.Function{Type: ft, Body: append([]byte{}, body...)})

	res, err := Validate(m, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.MaxStackCells)
}

func TestValidateTypeMismatch(t *testing.T) {
	// function declares an f64 result but its body only produces an i32.
	ft := wasm.NewFunctionType(nil, []wasm.ValueType{wasm.ValueTypeF64})
	m := moduleWithFunc(wasm.Function{Type: ft, Body: []byte{OpI32Const, 1, OpEnd}})
	_, err := Validate(m, 0)
	require.Error(t, err)
}

func TestValidateBlockTypeIndexRewrite(t *testing.T) {
	blockType := wasm.NewFunctionType([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
	fnType := wasm.NewFunctionType([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
	body := []byte{
		OpLocalGet, 0,
		OpBlock, 0x00, // type index 0 (fits in one leb128 byte, positive)
		OpEnd, // end block
		OpEnd, // end function
	}
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{blockType, fnType},
		FunctionSection: []wasm.Function{{Type: fnType, Body: append([]byte{}, body...)}},
	}
	_, err := Validate(m, 0)
	require.NoError(t, err)
	require.Equal(t, ExtOpBlock, m.FunctionSection[0].Body[2])
}

func TestValidateDrop64Rewrite(t *testing.T) {
	ft := wasm.NewFunctionType(nil, nil)
	body := []byte{
		OpI64Const, 5,
		OpDrop,
		OpEnd,
	}
	m := moduleWithFunc(wasm.Function{Type: ft, Body: append([]byte{}, body...)})
	_, err := Validate(m, 0)
	require.NoError(t, err)
	require.Equal(t, ExtOpDrop64, m.FunctionSection[0].Body[2])
}

func TestValidateUnreachablePolymorphic(t *testing.T) {
	ft := wasm.NewFunctionType(nil, []wasm.ValueType{wasm.ValueTypeI32})
	body := []byte{
		OpUnreachable,
		OpEnd, // block exit check should be vacuous after unreachable
	}
	m := moduleWithFunc(wasm.Function{Type: ft, Body: append([]byte{}, body...)})
	_, err := Validate(m, 0)
	require.NoError(t, err)
}

func TestValidateMemoryAccessRequiresMemory(t *testing.T) {
	ft := wasm.NewFunctionType(nil, nil)
	body := []byte{
		OpI32Const, 0,
		0x28, 2, 0, // i32.load align=2 offset=0
		OpDrop,
		OpEnd,
	}
	m := moduleWithFunc(wasm.Function{Type: ft, Body: append([]byte{}, body...)})
	_, err := Validate(m, 0)
	require.Error(t, err)
}

func TestValidateMemoryAccessAlignmentTooLarge(t *testing.T) {
	ft := wasm.NewFunctionType(nil, nil)
	body := []byte{
		OpI32Const, 0,
		0x28, 3, 0, // i32.load align=3 exceeds natural alignment of 2
		OpDrop,
		OpEnd,
	}
	m := moduleWithFunc(wasm.Function{Type: ft, Body: append([]byte{}, body...)})
	m.MemorySection = []wasm.Memory{{Limits: wasm.Limits{Min: 1}}}
	_, err := Validate(m, 0)
	require.Error(t, err)
}

func TestValidateMemoryAccessValid(t *testing.T) {
	ft := wasm.NewFunctionType(nil, nil)
	body := []byte{
		OpI32Const, 0,
		0x28, 2, 0, // i32.load align=2 offset=0
		OpDrop,
		OpEnd,
	}
	m := moduleWithFunc(wasm.Function{Type: ft, Body: append([]byte{}, body...)})
	m.MemorySection = []wasm.Memory{{Limits: wasm.Limits{Min: 1}}}
	_, err := Validate(m, 0)
	require.NoError(t, err)
}

func TestValidateCall(t *testing.T) {
	calleeType := wasm.NewFunctionType([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
	callerType := wasm.NewFunctionType(nil, []wasm.ValueType{wasm.ValueTypeI32})
	body := []byte{
		OpI32Const, 7,
		OpCall, 0,
		OpEnd,
	}
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{calleeType, callerType},
		ImportFunctionCount: 1,
		ImportSection: []wasm.Import{
			{Type: wasm.ExternTypeFunc, Module: "env", Name: "callee", DescFunc: 0},
		},
		FunctionSection: []wasm.Function{{Type: callerType, Body: append([]byte{}, body...)}},
	}
	_, err := Validate(m, 0)
	require.NoError(t, err)
}

func TestValidateBrTableInconsistentTargetTypes(t *testing.T) {
	// Two targets with the same branch-arity count but different value
	// types: the outer block yields i32, the inner f32. A depth-only count
	// comparison would accept this; the types must match.
	ft := wasm.NewFunctionType(nil, nil)
	body := []byte{
		OpBlock, 0x7f, // block (result i32)
		OpBlock, 0x7d, // block (result f32)
		0x43, 0, 0, 0, 0, // f32.const 0
		OpI32Const, 0, // selector
		OpBrTable, 0x01, 0x00, 0x01, // targets: depth 0 (f32), default depth 1 (i32)
		OpEnd,
		OpDrop,
		OpEnd,
		OpEnd,
	}
	m := moduleWithFunc(wasm.Function{Type: ft, Body: body})
	_, err := Validate(m, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "br_table targets must all use same result type")
}

func TestValidateBrTableDeepCache(t *testing.T) {
	ft := wasm.NewFunctionType(nil, nil)
	const depth = 300

	var body []byte
	for i := 0; i < depth; i++ {
		body = append(body, OpBlock, 0x40)
	}
	body = append(body, OpI32Const, 0)
	brAddr := len(body)
	body = append(body, OpBrTable, 0x00, byte(depth&0x7f)|0x80, byte(depth>>7))
	for i := 0; i < depth; i++ {
		body = append(body, OpEnd)
	}
	body = append(body, OpEnd)

	m := moduleWithFunc(wasm.Function{Type: ft, Body: body})
	res, err := Validate(m, 0)
	require.NoError(t, err)
	require.Equal(t, ExtOpBrTableCache, m.FunctionSection[0].Body[brAddr])
	require.Contains(t, res.BrTableCache, brAddr)
	require.Equal(t, uint32(depth), res.BrTableCache[brAddr][0])
}
