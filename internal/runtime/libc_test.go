package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLibcImportSandboxed32(t *testing.T) {
	imp, ok := ResolveLibcImport(false, false, "memcpy")
	require.True(t, ok)
	require.Equal(t, "iiii", imp.Signature)
}

func TestResolveLibcImportSandboxed64(t *testing.T) {
	imp, ok := ResolveLibcImport(false, true, "memcpy64")
	require.True(t, ok)
	require.Equal(t, "IIII", imp.Signature)
}

func TestResolveLibcImportNoSandbox(t *testing.T) {
	imp, ok := ResolveLibcImport(true, true, "malloc")
	require.True(t, ok)
	require.Equal(t, "II", imp.Signature)
}

func TestResolveLibcImportUnknown(t *testing.T) {
	_, ok := ResolveLibcImport(false, false, "not_a_real_function")
	require.False(t, ok)
}

func TestExceptionMessageTableOrder(t *testing.T) {
	msgs := ExceptionMessageTable()
	require.Equal(t, "unreachable", msgs[0])
	require.Equal(t, "unknown error", msgs[len(msgs)-1])
}

func TestExceptionMessageUnknownID(t *testing.T) {
	require.Equal(t, "unknown error", ExceptionMessage(ExceptionID(-999)))
}
