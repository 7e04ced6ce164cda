// Package runtime names the host-facing ABI the compiler backend emits
// against: global/function symbol names, the exception
// taxonomy (§6.4), and the native libc import resolver tables (§6.5).
// Nothing here touches LLVM; it is pure naming and lookup-table data that
// internal/compiler consults when emitting globals, functions, and calls.
package runtime

import "strconv"

// Global variable names, all emitted with internal linkage into the
// .wasm_globals section.
const (
	GlobalMemoryData           = "memory_data"
	GlobalMemoryDataSize       = "memory_data_size"
	GlobalNumBytesPerPage      = "num_bytes_per_page"
	GlobalCurPageCount         = "cur_page_count"
	GlobalMaxPageCount         = "max_page_count"
	GlobalHostManagedHeap      = "host_managed_heap_handle"
	GlobalTableElems           = "table_elems"
	GlobalFuncPtrs             = "func_ptrs"
	GlobalFuncTypeIndexes      = "func_type_indexes"
	GlobalExceptionMsgs        = "exception_msgs"
	GlobalExceptionID          = "exception_id"
	GlobalIsInstanceInited     = "is_instance_inited"
	GlobalExportedAPIs         = "exported_apis"
	GlobalDataSegs             = "data_segs"
	GlobalDataSegLengthsPassive = "data_seg_lengths_passive"
)

// MemBoundCheckWidths are the access widths a sandbox-mode memory access is
// checked against.
var MemBoundCheckWidths = []int{1, 2, 4, 8, 16}

// MemBoundCheckGlobal returns the global name caching the bound for a
// width-byte access, e.g. "mem_bound_check_4bytes".
func MemBoundCheckGlobal(widthBytes int) string {
	switch widthBytes {
	case 1:
		return "mem_bound_check_1bytes"
	case 2:
		return "mem_bound_check_2bytes"
	case 4:
		return "mem_bound_check_4bytes"
	case 8:
		return "mem_bound_check_8bytes"
	case 16:
		return "mem_bound_check_16bytes"
	default:
		panic("unsupported bound-check width")
	}
}

// DataSegGlobal and WasmImportGlobal/WasmGlobal produce the per-index
// global names §6.3 specifies ("data_seg#N", "wasm_import_global#N",
// "wasm_global#N").
func DataSegGlobal(idx int) string       { return indexedName("data_seg", idx) }
func WasmImportGlobal(idx int) string    { return indexedName("wasm_import_global", idx) }
func WasmGlobal(idx int) string          { return indexedName("wasm_global", idx) }

func indexedName(prefix string, idx int) string {
	return prefix + "#" + strconv.Itoa(idx)
}

// Function names, emitted with external linkage so a host can call them.
const (
	FuncInstanceCreate   = "wasm_instance_create"
	FuncInstanceDestroy  = "wasm_instance_destroy"
	FuncInstanceIsCreated = "wasm_instance_is_created"
	FuncGetMemory        = "wasm_get_memory"
	FuncGetMemorySize    = "wasm_get_memory_size"
	FuncGetHeapHandle    = "wasm_get_heap_handle"
	FuncGetException     = "wasm_get_exception"
	FuncGetExceptionMsg  = "wasm_get_exception_msg"
	FuncSetException     = "wasm_set_exception"
	FuncGetExportAPIs    = "wasm_get_export_apis"
	FuncGetExportAPINum  = "wasm_get_export_api_num"

	// FuncMain is emitted only in no-sandbox mode, only when the wasm
	// module exports __main_argc_argv.
	FuncMain = "main"

	// WasmMainExport is the export name whose presence gates FuncMain's
	// emission.
	WasmMainExport = "__main_argc_argv"

	// WasmCtorsExport is the optional exported global-constructor thunk
	// wasm_instance_create calls after data initialization.
	WasmCtorsExport = "__wasm_call_ctors"
)
