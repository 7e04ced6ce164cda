//go:build !unix

package llvmgen

import "runtime"

// HostArch resolves the default target architecture from the Go runtime's
// GOARCH on platforms without uname.
func HostArch() string {
	return goarchToLLVM(runtime.GOARCH)
}
