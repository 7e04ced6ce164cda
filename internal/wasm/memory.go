package wasm

import "fmt"

// MemoryPageSize is the fixed wasm page size, 64KiB.
const MemoryPageSize = 65536

// MemoryPageSizeInBits lets callers compute byte<->page conversions with a
// shift instead of a divide.
const MemoryPageSizeInBits = 16

// MemoryMaxPages32 is the default page ceiling for a 32-bit-addressed
// memory: 65536 pages * 64KiB/page == 4GiB, the full 32-bit
// address space.
const MemoryMaxPages32 = 65536

// MemoryMaxPages64 is the page ceiling for a 64-bit-addressed (memory64)
// memory: 2^32-1.
const MemoryMaxPages64 = 1<<32 - 1

// Memory is the module's single linear memory declaration (import or
// definition; a module may not carry more than one of either).
type Memory struct {
	Limits Limits
}

// MaxPages returns the effective page ceiling for m's addressing mode.
func (m Memory) MaxPages() uint64 {
	if m.Limits.Index64() {
		return MemoryMaxPages64
	}
	return MemoryMaxPages32
}

// Validate enforces the memory invariants: legal flag bits, a
// max-page ceiling appropriate to the addressing mode, min <= max, and
// shared memories must declare a max.
func (m Memory) Validate() error {
	if err := ValidateFlags(m.Limits.Flags); err != nil {
		return err
	}
	ceiling := m.MaxPages()
	if m.Limits.Min > ceiling {
		return fmt.Errorf("memory size must be at most %d pages", ceiling)
	}
	if m.Limits.HasMax() {
		if m.Limits.Max > ceiling {
			return fmt.Errorf("memory size must be at most %d pages", ceiling)
		}
		if m.Limits.Min > m.Limits.Max {
			return fmt.Errorf("size minimum must not be greater than maximum")
		}
	} else if m.Limits.Shared() {
		return fmt.Errorf("shared memory must have a maximum size")
	}
	return nil
}

// BytesForPages converts a page count to a byte count using the module's
// fixed 64KiB page size.
func BytesForPages(pages uint64) uint64 { return pages * MemoryPageSize }
