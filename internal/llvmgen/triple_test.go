package llvmgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTriple(t *testing.T) {
	tests := []struct {
		name     string
		arch     string
		abi      string
		expected string
	}{
		{name: "msvc x86_64", arch: "x86_64", abi: "msvc", expected: "x86_64-pc-windows-msvc"},
		{name: "msvc i686", arch: "i686", abi: "msvc", expected: "i686-pc-win32-msvc"},
		{name: "bare metal", arch: "thumbv7m", abi: "", expected: "thumbv7m-unknown-none"},
		{name: "explicit none abi", arch: "riscv32", abi: "none", expected: "riscv32-unknown-none"},
		{name: "linux default", arch: "x86_64", abi: "", expected: "x86_64-pc-linux-gnu"},
		{name: "linux with abi", arch: "riscv64", abi: "lp64d", expected: "riscv64-pc-linux-lp64d"},
		{name: "full triple passthrough", arch: "aarch64-unknown-linux-gnu", abi: "", expected: "aarch64-unknown-linux-gnu"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, BuildTriple(tc.arch, tc.abi))
		})
	}
}

func TestRISCVFeatures(t *testing.T) {
	require.Equal(t, "+d", RISCVFeatures("lp64d", ""))
	require.Equal(t, "+m,+d", RISCVFeatures("ilp32d", "+m"))
	require.Equal(t, "+d,+m", RISCVFeatures("lp64d", "+d,+m"))
	require.Equal(t, "+m", RISCVFeatures("lp64", "+m"))
}

func TestPointer64(t *testing.T) {
	require.True(t, Pointer64("x86_64-pc-linux-gnu"))
	require.True(t, Pointer64("aarch64-unknown-linux-gnu"))
	require.True(t, Pointer64("riscv64-pc-linux-lp64d"))
	require.False(t, Pointer64("i686-pc-win32-msvc"))
	require.False(t, Pointer64("riscv32-unknown-none"))
	require.False(t, Pointer64("thumbv7m-unknown-none"))
}

func TestIsRISCV(t *testing.T) {
	require.True(t, IsRISCV("riscv64-pc-linux-lp64d"))
	require.True(t, IsRISCV("riscv32-unknown-none"))
	require.False(t, IsRISCV("x86_64-pc-linux-gnu"))
}
