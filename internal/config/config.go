// Package config defines CompOptions, the compiler's option surface: an
// immutable options value plus fluent With* setters that clone before
// mutating, so a base configuration can be shared across compiles.
package config

import (
	"fmt"

	"go.uber.org/zap"
)

// OutputFormat selects what the backend writes out.
type OutputFormat int

const (
	// OutputLLVMIRUnopt prints the module's IR before any optimization
	// passes run.
	OutputLLVMIRUnopt OutputFormat = iota
	// OutputLLVMIROpt prints the IR after the default pass pipeline.
	OutputLLVMIROpt
	// OutputObject emits a relocatable native object file.
	OutputObject
)

// MinHeapSize is the smallest nonzero host-managed heap size accepted.
const MinHeapSize = 512

// CompOptions carries every compilation knob. The zero value is not
// usable; construct with NewCompOptions.
type CompOptions struct {
	OptLevel  int
	SizeLevel int

	// TargetArch/TargetABI/TargetCPU/CPUFeatures may each be empty, in
	// which case the host's values are used. The value
	// "help" for any of them prints the supported list and early-exits.
	TargetArch  string
	TargetABI   string
	TargetCPU   string
	CPUFeatures string

	Output OutputFormat

	// HeapSize, when nonzero, appends a host-managed heap of this many
	// bytes past the fixed linear memory. Requires a fixed-size memory.
	HeapSize uint32

	EnableSIMD          bool
	EnableAuxStackCheck bool
	DisableLLVMLTO      bool
	NoSandboxMode       bool

	// CustomSections names custom sections to re-emit verbatim into the
	// output object.
	CustomSections []string

	// Logger receives unresolved-import warnings and constructor/linking
	// diagnostics. Defaults to a no-op logger so the library stays silent
	// unless the caller asks otherwise.
	Logger *zap.SugaredLogger
}

// NewCompOptions returns the default configuration: full optimization,
// object output, sandboxed memory, SIMD on, no host-managed heap.
func NewCompOptions() *CompOptions {
	return &CompOptions{
		OptLevel:   3,
		SizeLevel:  3,
		Output:     OutputObject,
		EnableSIMD: true,
		Logger:     zap.NewNop().Sugar(),
	}
}

func (o *CompOptions) clone() *CompOptions {
	c := *o
	c.CustomSections = append([]string(nil), o.CustomSections...)
	return &c
}

// WithOptLevel sets the LLVM optimization level, 0..3.
func (o *CompOptions) WithOptLevel(level int) *CompOptions {
	c := o.clone()
	c.OptLevel = level
	return c
}

// WithSizeLevel sets the size level, 0..3; it maps onto the LLVM code
// model (0=large, 1=medium, 2=kernel, >=3=small).
func (o *CompOptions) WithSizeLevel(level int) *CompOptions {
	c := o.clone()
	c.SizeLevel = level
	return c
}

// WithTarget sets the target arch/abi/cpu/features strings; any may be
// empty to default to the host.
func (o *CompOptions) WithTarget(arch, abi, cpu, features string) *CompOptions {
	c := o.clone()
	c.TargetArch, c.TargetABI, c.TargetCPU, c.CPUFeatures = arch, abi, cpu, features
	return c
}

// WithOutput sets the output format.
func (o *CompOptions) WithOutput(f OutputFormat) *CompOptions {
	c := o.clone()
	c.Output = f
	return c
}

// WithHeapSize sets the host-managed heap size in bytes.
func (o *CompOptions) WithHeapSize(n uint32) *CompOptions {
	c := o.clone()
	c.HeapSize = n
	return c
}

// WithNoSandboxMode toggles no-sandbox linear memory treatment.
func (o *CompOptions) WithNoSandboxMode(on bool) *CompOptions {
	c := o.clone()
	c.NoSandboxMode = on
	return c
}

// WithAuxStackCheck toggles auxiliary-stack overflow/underflow checks.
func (o *CompOptions) WithAuxStackCheck(on bool) *CompOptions {
	c := o.clone()
	c.EnableAuxStackCheck = on
	return c
}

// WithCustomSections sets the list of custom sections to re-emit.
func (o *CompOptions) WithCustomSections(names []string) *CompOptions {
	c := o.clone()
	c.CustomSections = append([]string(nil), names...)
	return c
}

// WithLogger sets the diagnostic logger.
func (o *CompOptions) WithLogger(l *zap.SugaredLogger) *CompOptions {
	c := o.clone()
	c.Logger = l
	return c
}

// Validate enforces the option constraints: levels in
// 0..3 and a heap size of either zero or at least MinHeapSize.
func (o *CompOptions) Validate() error {
	if o.OptLevel < 0 || o.OptLevel > 3 {
		return fmt.Errorf("opt level must be in 0..3, got %d", o.OptLevel)
	}
	if o.SizeLevel < 0 || o.SizeLevel > 3 {
		return fmt.Errorf("size level must be in 0..3, got %d", o.SizeLevel)
	}
	if o.HeapSize != 0 && o.HeapSize < MinHeapSize {
		return fmt.Errorf("heap size must be 0 or at least %d bytes, got %d", MinHeapSize, o.HeapSize)
	}
	if o.Output < OutputLLVMIRUnopt || o.Output > OutputObject {
		return fmt.Errorf("unknown output format %d", o.Output)
	}
	if o.Logger == nil {
		return fmt.Errorf("logger must not be nil (use zap.NewNop())")
	}
	return nil
}
