package wasm

import "fmt"

// TableMaxSizeDefault is the default maximum table size used when a table
// declares no explicit maximum: max(init*2, TableMaxSizeDefault).
const TableMaxSizeDefault = 10 * 1024

// Table is the module's single table declaration (import or definition).
// Its element type is always funcref in the core profile targeted here;
// reference types (externref, GC) are an explicit Non-goal.
type Table struct {
	Limits Limits
}

// Validate enforces the table invariants: legal flags, and shared
// tables are rejected outright.
func (t Table) Validate() error {
	if err := ValidateFlags(t.Limits.Flags); err != nil {
		return err
	}
	if t.Limits.Shared() {
		return fmt.Errorf("tables cannot be shared")
	}
	if t.Limits.HasMax() && t.Limits.Min > t.Limits.Max {
		return fmt.Errorf("size minimum must not be greater than maximum")
	}
	return nil
}

// EffectiveMax returns the table's maximum, defaulting per
// TableMaxSizeDefault when none was declared.
func (t Table) EffectiveMax() uint64 {
	if t.Limits.HasMax() {
		return t.Limits.Max
	}
	d := t.Limits.Min * 2
	if d < TableMaxSizeDefault {
		d = TableMaxSizeDefault
	}
	return d
}
