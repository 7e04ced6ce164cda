package wasm

import (
	"strings"
	"sync/atomic"
)

// FunctionType is a (params, results) signature. Identical signatures are
// deduplicated across a module; RefCount counts the type-section slots that
// share this instance, so the builder can tell a freshly-allocated,
// never-shared type from one that was folded into an existing entry.
type FunctionType struct {
	Params, Results []ValueType

	// ParamCells and ResultCells are CellsOfAll(Params)/CellsOfAll(Results),
	// precomputed and capped at 16 bits each.
	ParamCells, ResultCells uint16

	// refCount is accessed with sync/atomic only because the module builder
	// may dedupe types discovered from different sections (import, code,
	// block-type) in any order; one module is otherwise single-threaded.
	refCount int32
}

// NewFunctionType precomputes the cell counts for params/results. The
// caller is responsible for deduplicating against Module.TypeSection
// before keeping the result (see wasm.Module.InternType).
func NewFunctionType(params, results []ValueType) *FunctionType {
	return &FunctionType{
		Params:      params,
		Results:     results,
		ParamCells:  uint16(CellsOfAll(params)),
		ResultCells: uint16(CellsOfAll(results)),
	}
}

// Equal reports whether ft has the same params and results as other,
// i.e. the same structural signature.
func (ft *FunctionType) Equal(other *FunctionType) bool {
	if ft == other {
		return true
	}
	if other == nil || len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i, p := range ft.Params {
		if other.Params[i] != p {
			return false
		}
	}
	for i, r := range ft.Results {
		if other.Results[i] != r {
			return false
		}
	}
	return true
}

// RefCount returns the current reference count.
func (ft *FunctionType) RefCount() int32 { return atomic.LoadInt32(&ft.refCount) }

// addRef increments the reference count and reports whether it now
// exceeds the 2^16-1 ceiling; the builder treats that as a load error.
func (ft *FunctionType) addRef() (overflowed bool) {
	n := atomic.AddInt32(&ft.refCount, 1)
	return n > 1<<16-1
}

// String renders a compact signature key, e.g. "i32i64_f64" for
// params (i32,i64) results (f64), and "null" for an empty side. Used both
// for debug output and as a cheap structural-equality pre-filter.
func (ft *FunctionType) String() string {
	return typeListString(ft.Params) + "_" + typeListString(ft.Results)
}

func typeListString(ts []ValueType) string {
	if len(ts) == 0 {
		return "null"
	}
	var sb strings.Builder
	for _, t := range ts {
		sb.WriteString(ValueTypeName(t))
	}
	return sb.String()
}
