package wasm

import "fmt"

// Limits flag bits.
const (
	LimitsFlagHasMax    = 1 << 0
	LimitsFlagShared    = 1 << 1
	LimitsFlag64BitIndex = 1 << 2

	// limitsFlagMask is the legal 3-bit set; anything outside it is a load
	// error ("invalid limits flags").
	limitsFlagMask = LimitsFlagHasMax | LimitsFlagShared | LimitsFlag64BitIndex
)

// Limits is the (flags, initial, optional max) triple shared by memory and
// table declarations.
type Limits struct {
	Flags   byte
	Min     uint64
	Max     uint64 // valid only if Flags&LimitsFlagHasMax != 0
}

// HasMax reports whether l declares an explicit maximum.
func (l Limits) HasMax() bool { return l.Flags&LimitsFlagHasMax != 0 }

// Shared reports the shared-memory flag.
func (l Limits) Shared() bool { return l.Flags&LimitsFlagShared != 0 }

// Index64 reports the memory64 flag.
func (l Limits) Index64() bool { return l.Flags&LimitsFlag64BitIndex != 0 }

// ValidateFlags rejects any bit outside the legal 3-bit set.
func ValidateFlags(flags byte) error {
	if flags&^limitsFlagMask != 0 {
		return fmt.Errorf("invalid limits flags: 0x%x", flags)
	}
	return nil
}
