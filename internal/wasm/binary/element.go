package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeElementSection decodes the element section. Every active segment
// must target table index 0;
// this loader only supports the func-index-list element kind, since
// call_indirect through more than one table is out of scope.
func decodeElementSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("element count: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		flag, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("element[%d] flag: %w", i, err)
		}
		rest = r

		seg := wasm.ElementSegment{}
		switch flag {
		case 0: // active, table 0, expr offset, func index vector
			ce, r, err := decodeConstExpr(rest)
			if err != nil {
				return fmt.Errorf("element[%d] offset: %w", i, err)
			}
			rest = r
			if err := checkOffsetExprType(m, ce); err != nil {
				return fmt.Errorf("element[%d]: %w", i, err)
			}
			seg.OffsetExpr = ce
			idxs, r, err := decodeFuncIndexVec(rest)
			if err != nil {
				return fmt.Errorf("element[%d] init: %w", i, err)
			}
			rest = r
			seg.Init = idxs
		case 1: // passive, elemkind + func index vector
			ek, r, err := readByte(rest)
			if err != nil || ek != 0 {
				return fmt.Errorf("element[%d]: unsupported elemkind", i)
			}
			rest = r
			idxs, r, err := decodeFuncIndexVec(rest)
			if err != nil {
				return fmt.Errorf("element[%d] init: %w", i, err)
			}
			rest = r
			seg.Init = idxs
		case 2: // active, explicit table index, offset expr, elemkind, func index vector
			tableIdx, r, err := readU32(rest)
			if err != nil {
				return fmt.Errorf("element[%d] table index: %w", i, err)
			}
			if tableIdx != 0 {
				return fmt.Errorf("element[%d]: table index must be 0", i)
			}
			rest = r
			ce, r, err := decodeConstExpr(rest)
			if err != nil {
				return fmt.Errorf("element[%d] offset: %w", i, err)
			}
			rest = r
			if err := checkOffsetExprType(m, ce); err != nil {
				return fmt.Errorf("element[%d]: %w", i, err)
			}
			seg.OffsetExpr = ce
			ek, r, err := readByte(rest)
			if err != nil || ek != 0 {
				return fmt.Errorf("element[%d]: unsupported elemkind", i)
			}
			rest = r
			idxs, r, err := decodeFuncIndexVec(rest)
			if err != nil {
				return fmt.Errorf("element[%d] init: %w", i, err)
			}
			rest = r
			seg.Init = idxs
		case 3: // declared, elemkind + func index vector
			ek, r, err := readByte(rest)
			if err != nil || ek != 0 {
				return fmt.Errorf("element[%d]: unsupported elemkind", i)
			}
			rest = r
			idxs, r, err := decodeFuncIndexVec(rest)
			if err != nil {
				return fmt.Errorf("element[%d] init: %w", i, err)
			}
			rest = r
			seg.Init = idxs
		default:
			return fmt.Errorf("element[%d]: unsupported element segment flag %d", i, flag)
		}
		m.ElementSection = append(m.ElementSection, seg)
	}
	return nil
}

func decodeFuncIndexVec(b []byte) ([]wasm.Index, []byte, error) {
	n, rest, err := readCountVec(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]wasm.Index, n)
	for i := range out {
		v, r, err := readU32(rest)
		if err != nil {
			return nil, nil, err
		}
		out[i] = v
		rest = r
	}
	return out, rest, nil
}

// checkOffsetExprType enforces an offset expression's type matches the
// addressing width of the module's table (i32 normally, i64 only under the
// 64-bit-index flag, which tables never set since they reject memory64's
// sibling flag on purpose -- offsets are always i32 here).
func checkOffsetExprType(m *wasm.Module, ce wasm.ConstantExpression) error {
	if err := validateGlobalGetSource(m, ce); err != nil {
		return err
	}
	if t := constExprType(ce); t != wasm.ValueTypeI32 {
		return fmt.Errorf("offset expression must produce i32, got %s", wasm.ValueTypeName(t))
	}
	return nil
}
