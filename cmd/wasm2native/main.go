// Command wasm2native compiles a WebAssembly binary to a native object
// file (or LLVM IR) through the loader/validator and LLVM-emitting
// front end under internal/.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/w2n-dev/wasm2native/internal/compiler"
	"github.com/w2n-dev/wasm2native/internal/config"
	"github.com/w2n-dev/wasm2native/internal/llvmgen"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, llvmgen.ErrHelpRequested) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("wasm2native", pflag.ContinueOnError)
	optLevel := flags.Int("opt-level", 3, "LLVM optimization level (0..3)")
	sizeLevel := flags.Int("size-level", 3, "code size level (0..3)")
	targetArch := flags.String("target", "", "target architecture (or \"help\")")
	targetABI := flags.String("target-abi", "", "target abi (or \"help\")")
	targetCPU := flags.String("cpu", "", "target cpu (or \"help\")")
	cpuFeatures := flags.String("cpu-features", "", "cpu features (or \"help\")")
	format := flags.String("format", "object", "output format: llvmir-unopt, llvmir-opt, object")
	heapSize := flags.Uint32("heap-size", 0, "host-managed heap size in bytes (0 or >= 512)")
	noSandbox := flags.Bool("no-sandbox-mode", false, "treat linear-memory offsets as native pointers")
	auxStackCheck := flags.Bool("enable-aux-stack-check", false, "emit auxiliary-stack overflow checks")
	disableSIMD := flags.Bool("disable-simd", false, "reject simd opcodes")
	disableLTO := flags.Bool("disable-llvm-lto", false, "disable link-time optimization metadata")
	customSections := flags.StringSlice("emit-custom-sections", nil, "custom sections to re-emit into the output")
	output := flags.StringP("output", "o", "", "output file (default: <input>.o or stdout for IR)")
	verbose := flags.BoolP("verbose", "v", false, "log compilation diagnostics")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: wasm2native [flags] <module.wasm>")
	}
	input := flags.Arg(0)

	logger := zap.NewNop().Sugar()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck
		logger = l.Sugar()
	}

	var of config.OutputFormat
	switch *format {
	case "llvmir-unopt":
		of = config.OutputLLVMIRUnopt
	case "llvmir-opt":
		of = config.OutputLLVMIROpt
	case "object":
		of = config.OutputObject
	default:
		return fmt.Errorf("unknown output format %q", *format)
	}

	opts := config.NewCompOptions().
		WithOptLevel(*optLevel).
		WithSizeLevel(*sizeLevel).
		WithTarget(*targetArch, *targetABI, *targetCPU, *cpuFeatures).
		WithOutput(of).
		WithHeapSize(*heapSize).
		WithNoSandboxMode(*noSandbox).
		WithAuxStackCheck(*auxStackCheck).
		WithCustomSections(*customSections).
		WithLogger(logger)
	opts.EnableSIMD = !*disableSIMD
	opts.DisableLLVMLTO = *disableLTO

	buf, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	cc, err := compiler.Compile(buf, opts)
	if err != nil {
		return err
	}
	defer cc.Dispose()

	out, err := cc.Produce(opts)
	if err != nil {
		return err
	}

	dest := *output
	if dest == "" {
		if of == config.OutputObject {
			dest = input + ".o"
		} else {
			_, err := os.Stdout.Write(out)
			return err
		}
	}
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return err
	}
	logger.Infow("compiled", "input", input, "output", dest, "bytes", len(out))
	return nil
}
