package binary

import (
	"fmt"
	"strings"

	"github.com/w2n-dev/wasm2native/internal/wasm"
	"github.com/w2n-dev/wasm2native/internal/wasmbin"
)

// Decode turns a raw wasm binary into a fully resolved *wasm.Module,
// running wasmbin.Split to get the ordered section sequence and then
// dispatching each section body to its decoder. buf is borrowed for the module's entire lifetime: function
// bodies and custom-section payloads alias into it rather than being
// copied.
func Decode(buf []byte) (*wasm.Module, error) {
	secs, err := wasmbin.Split(buf)
	if err != nil {
		return nil, fmt.Errorf("split sections: %w", err)
	}

	m := &wasm.Module{FunctionNames: map[wasm.Index]string{}}

	var sawCode, sawFunction bool
	// Reloc-section offsets are bounded against the body of the section
	// they patch; lld emits reloc.* after its target, so the size is known
	// by the time the custom section is dispatched.
	var codeBodyLen, dataBodyLen int
	for _, s := range secs {
		switch s.ID {
		case wasm.SectionIDCustom:
			if err := decodeCustomSection(m, s.Name, s.Body, codeBodyLen, dataBodyLen); err != nil {
				return nil, fmt.Errorf("custom section %q: %w", s.Name, err)
			}
		case wasm.SectionIDType:
			if err := decodeTypeSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("type section: %w", err)
			}
		case wasm.SectionIDImport:
			if err := decodeImportSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
		case wasm.SectionIDFunction:
			if err := decodeFunctionSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("function section: %w", err)
			}
			sawFunction = true
		case wasm.SectionIDTable:
			if err := decodeTableSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("table section: %w", err)
			}
		case wasm.SectionIDMemory:
			if err := decodeMemorySection(m, s.Body); err != nil {
				return nil, fmt.Errorf("memory section: %w", err)
			}
		case wasm.SectionIDGlobal:
			if err := decodeGlobalSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("global section: %w", err)
			}
		case wasm.SectionIDExport:
			if err := decodeExportSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("export section: %w", err)
			}
		case wasm.SectionIDStart:
			if err := decodeStartSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("start section: %w", err)
			}
		case wasm.SectionIDElement:
			if err := decodeElementSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("element section: %w", err)
			}
		case wasm.SectionIDDataCount:
			if err := decodeDataCountSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("data count section: %w", err)
			}
		case wasm.SectionIDCode:
			if !sawFunction {
				return nil, fmt.Errorf("code section without a function section")
			}
			if err := decodeCodeSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("code section: %w", err)
			}
			sawCode = true
			codeBodyLen = len(s.Body)
		case wasm.SectionIDData:
			if err := decodeDataSection(m, s.Body); err != nil {
				return nil, fmt.Errorf("data section: %w", err)
			}
			dataBodyLen = len(s.Body)
		default:
			return nil, fmt.Errorf("unknown section id %d", s.ID)
		}
	}

	if len(m.FunctionSection) > 0 && !sawCode {
		return nil, fmt.Errorf("function section present without a code section")
	}
	if m.HasDataCount && len(m.DataSection) != int(m.DataCountSection) {
		return nil, fmt.Errorf("data count section (%d) does not match data section (%d)", m.DataCountSection, len(m.DataSection))
	}

	return m, nil
}

// decodeCustomSection dispatches the handful of custom sections this
// loader understands directly (name, linking, reloc.CODE/reloc.DATA);
// everything else is retained verbatim for the caller.
func decodeCustomSection(m *wasm.Module, name string, body []byte, codeBodyLen, dataBodyLen int) error {
	switch {
	case name == "name":
		if m.FunctionNames == nil {
			m.FunctionNames = map[wasm.Index]string{}
		}
		return decodeNameSection(m.FunctionNames, body)
	case name == "linking":
		return decodeLinkingSection(m, body)
	case strings.HasPrefix(name, "reloc."):
		targetBodyLen := codeBodyLen
		if strings.HasSuffix(name, "DATA") {
			targetBodyLen = dataBodyLen
		}
		relocs, err := decodeRelocSection(m, body, targetBodyLen)
		if err != nil {
			return err
		}
		switch {
		case strings.HasSuffix(name, "CODE"):
			m.CodeRelocations = append(m.CodeRelocations, relocs...)
		case strings.HasSuffix(name, "DATA"):
			m.DataRelocations = append(m.DataRelocations, relocs...)
		}
		return nil
	default:
		m.CustomSections = append(m.CustomSections, wasm.CustomSection{Name: name, Data: body})
		return nil
	}
}
