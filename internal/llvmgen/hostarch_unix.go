//go:build unix

package llvmgen

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// HostArch resolves the default target architecture from the running
// kernel's machine name, falling back to a GOARCH mapping when uname is
// unavailable.
func HostArch() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err == nil {
		if m := utsString(u.Machine[:]); m != "" {
			return m
		}
	}
	return goarchToLLVM(runtime.GOARCH)
}

func utsString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
