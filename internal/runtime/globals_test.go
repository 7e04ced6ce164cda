package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

func TestResolveBuiltinGlobal(t *testing.T) {
	g, ok := ResolveBuiltinGlobal("spectest", "global_i32")
	require.True(t, ok)
	require.Equal(t, wasm.ValueTypeI32, g.Type)
	require.Equal(t, uint64(666), g.Value)
	require.False(t, g.Mutable)

	g, ok = ResolveBuiltinGlobal("test", "global-mut-i32")
	require.True(t, ok)
	require.True(t, g.Mutable)

	_, ok = ResolveBuiltinGlobal("env", "no_such_global")
	require.False(t, ok)
}
