package llvmgen

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"github.com/w2n-dev/wasm2native/internal/config"
)

// Verify runs the LLVM module verifier and returns its diagnostics as an
// error rather than aborting the process.
func (c *Context) Verify() error {
	if err := llvm.VerifyModule(c.Module, llvm.ReturnStatusAction); err != nil {
		return fmt.Errorf("LLVM module verification failed: %w", err)
	}
	return nil
}

// Optimize runs the default new-pass-manager pipeline for the configured
// optimization level.
func (c *Context) Optimize(opts *config.CompOptions) error {
	pbo := llvm.NewPassBuilderOptions()
	defer pbo.Dispose()
	pipeline := fmt.Sprintf("default<O%d>", opts.OptLevel)
	if err := c.Module.RunPasses(pipeline, c.Target, pbo); err != nil {
		return fmt.Errorf("optimization pipeline %q: %w", pipeline, err)
	}
	return nil
}

// EmitIR returns the module's textual IR.
func (c *Context) EmitIR() string {
	return c.Module.String()
}

// EmitObject lowers the module to a relocatable native object file.
func (c *Context) EmitObject() ([]byte, error) {
	buf, err := c.Target.EmitToMemoryBuffer(c.Module, llvm.ObjectFile)
	if err != nil {
		return nil, fmt.Errorf("emit object: %w", err)
	}
	defer buf.Dispose()
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Produce drives verify → (optimize) → output per the configured format.
func (c *Context) Produce(opts *config.CompOptions) ([]byte, error) {
	if err := c.Verify(); err != nil {
		return nil, err
	}
	if opts.Output == config.OutputLLVMIRUnopt {
		return []byte(c.EmitIR()), nil
	}
	if err := c.Optimize(opts); err != nil {
		return nil, err
	}
	if opts.Output == config.OutputLLVMIROpt {
		return []byte(c.EmitIR()), nil
	}
	return c.EmitObject()
}
