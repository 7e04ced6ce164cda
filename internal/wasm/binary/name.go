package binary

import "fmt"

const nameSubsectionFunction = 1

// decodeNameSection decodes the custom "name" section's function-name
// sub-section into dst, keyed by absolute function index. Other
// sub-sections (module name, local names) are ignored; nothing downstream
// needs them.
func decodeNameSection(dst map[uint32]string, body []byte) error {
	rest := body
	for len(rest) > 0 {
		id, r, err := readByte(rest)
		if err != nil {
			return fmt.Errorf("name sub-section id: %w", err)
		}
		size, r, err := readU32(r)
		if err != nil {
			return fmt.Errorf("name sub-section size: %w", err)
		}
		if uint64(size) > uint64(len(r)) {
			return fmt.Errorf("name sub-section: truncated")
		}
		payload := r[:size]
		rest = r[size:]

		if id == nameSubsectionFunction {
			if err := decodeFunctionNameSubsection(dst, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeFunctionNameSubsection(dst map[uint32]string, body []byte) error {
	n, rest, err := readCountVec(body)
	if err != nil {
		return fmt.Errorf("function name count: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		idx, r, err := readU32(rest)
		if err != nil {
			return fmt.Errorf("function name[%d] index: %w", i, err)
		}
		rest = r
		name, r, err := readName(rest)
		if err != nil {
			return fmt.Errorf("function name[%d]: %w", i, err)
		}
		rest = r
		dst[idx] = name
	}
	return nil
}
