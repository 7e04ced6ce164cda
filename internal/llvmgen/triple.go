package llvmgen

import (
	"fmt"
	"strings"
)

// BuildTriple derives a full LLVM target triple from the arch and abi
// option strings: msvc abis get a -pc-win32- or
// -pc-windows- vendor/system pair, bare-metal gets -unknown-none-, and
// everything else defaults to -pc-linux-.
func BuildTriple(arch, abi string) string {
	if arch == "" {
		arch = HostArch()
	}
	if strings.Contains(arch, "-") {
		// Caller passed a full triple already.
		return arch
	}
	switch {
	case abi == "msvc":
		if arch == "i386" || arch == "i686" {
			return arch + "-pc-win32-msvc"
		}
		return arch + "-pc-windows-msvc"
	case abi == "none" || strings.HasPrefix(arch, "thumb") || strings.HasPrefix(arch, "xtensa"):
		if abi == "" || abi == "none" {
			return arch + "-unknown-none"
		}
		return arch + "-unknown-none-" + abi
	case abi != "":
		return arch + "-pc-linux-" + abi
	default:
		return arch + "-pc-linux-gnu"
	}
}

// IsRISCV reports whether the triple's architecture component is a riscv
// variant, which needs a target-abi module flag.
func IsRISCV(triple string) bool {
	return strings.HasPrefix(triple, "riscv32") || strings.HasPrefix(triple, "riscv64")
}

// RISCVFeatures ensures the +d feature is present when the abi requires
// hardware double-float (lp64d/ilp32d).
func RISCVFeatures(abi, features string) string {
	if abi != "lp64d" && abi != "ilp32d" {
		return features
	}
	for _, f := range strings.Split(features, ",") {
		if f == "+d" {
			return features
		}
	}
	if features == "" {
		return "+d"
	}
	return features + ",+d"
}

// DefaultRISCVABI picks the conventional abi for a riscv triple when the
// caller supplied none.
func DefaultRISCVABI(triple string) string {
	if strings.HasPrefix(triple, "riscv32") {
		return "ilp32d"
	}
	return "lp64d"
}

// Pointer64 reports whether the triple addresses a 64-bit target; it
// drives the native pointer/size width the emitter uses for libc
// signatures and memory arithmetic.
func Pointer64(triple string) bool {
	arch := triple
	if i := strings.IndexByte(triple, '-'); i >= 0 {
		arch = triple[:i]
	}
	switch {
	case strings.HasPrefix(arch, "x86_64"), strings.HasPrefix(arch, "aarch64"),
		strings.HasPrefix(arch, "arm64"), strings.HasPrefix(arch, "riscv64"),
		strings.HasPrefix(arch, "mips64"), strings.HasPrefix(arch, "ppc64"),
		strings.HasPrefix(arch, "powerpc64"), strings.HasPrefix(arch, "loongarch64"),
		strings.HasPrefix(arch, "s390x"), strings.HasPrefix(arch, "sparc64"),
		strings.HasPrefix(arch, "wasm64"):
		return true
	default:
		return false
	}
}

// goarchToLLVM maps a Go GOARCH name onto the LLVM architecture
// component used as a fallback when uname is unavailable.
func goarchToLLVM(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		return "aarch64"
	case "arm":
		return "armv7"
	case "riscv64":
		return "riscv64"
	case "mips64le":
		return "mips64el"
	case "ppc64le":
		return "powerpc64le"
	case "s390x":
		return "s390x"
	case "loong64":
		return "loongarch64"
	default:
		return goarch
	}
}

// ErrHelpRequested is returned by NewContext when any target option is the
// string "help"; the supported list has already been printed.
var ErrHelpRequested = fmt.Errorf("help requested")
