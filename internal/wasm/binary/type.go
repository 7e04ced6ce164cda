package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

const functionTypeTag = 0x60

// decodeTypeSection decodes the type section body into m.TypeSection,
// deduplicating structurally identical entries as it goes.
func decodeTypeSection(m *wasm.Module, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("type count: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		tag, r, err := readByte(rest)
		if err != nil {
			return err
		}
		if tag != functionTypeTag {
			return fmt.Errorf("invalid function type tag: 0x%x", tag)
		}
		rest = r

		paramCount, r, err := readCountVec(rest)
		if err != nil {
			return fmt.Errorf("param count: %w", err)
		}
		if paramCount > 1<<16-1 {
			return fmt.Errorf("too many parameters: %d", paramCount)
		}
		rest = r
		params := make([]wasm.ValueType, paramCount)
		for j := range params {
			t, r, err := decodeValueType(rest)
			if err != nil {
				return err
			}
			params[j] = t
			rest = r
		}

		resultCount, r, err := readCountVec(rest)
		if err != nil {
			return fmt.Errorf("result count: %w", err)
		}
		if resultCount > 1<<16-1 {
			return fmt.Errorf("too many results: %d", resultCount)
		}
		rest = r
		results := make([]wasm.ValueType, resultCount)
		for j := range results {
			t, r, err := decodeValueType(rest)
			if err != nil {
				return err
			}
			results[j] = t
			rest = r
		}

		ft := wasm.NewFunctionType(params, results)
		if _, err := m.InternType(ft); err != nil {
			return err
		}
	}
	return nil
}
