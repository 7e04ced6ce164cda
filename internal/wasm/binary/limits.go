package binary

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// decodeLimits reads a limits record: a flags byte followed by a min
// value and, if LimitsFlagHasMax is set, a max value. The width of min/max
// (32- or 64-bit leb) is chosen by the 64-bit-index flag.
func decodeLimits(b []byte) (wasm.Limits, []byte, error) {
	flags, rest, err := readByte(b)
	if err != nil {
		return wasm.Limits{}, nil, fmt.Errorf("limits flags: %w", err)
	}
	if err := wasm.ValidateFlags(flags); err != nil {
		return wasm.Limits{}, nil, err
	}
	wide := flags&wasm.LimitsFlag64BitIndex != 0

	min, rest, err := readLimitsValue(rest, wide)
	if err != nil {
		return wasm.Limits{}, nil, fmt.Errorf("limits min: %w", err)
	}
	l := wasm.Limits{Flags: flags, Min: min}
	if flags&wasm.LimitsFlagHasMax != 0 {
		max, r, err := readLimitsValue(rest, wide)
		if err != nil {
			return wasm.Limits{}, nil, fmt.Errorf("limits max: %w", err)
		}
		l.Max = max
		rest = r
	}
	return l, rest, nil
}

func readLimitsValue(b []byte, wide bool) (uint64, []byte, error) {
	if wide {
		return readU64(b)
	}
	v, rest, err := readU32(b)
	return uint64(v), rest, err
}
