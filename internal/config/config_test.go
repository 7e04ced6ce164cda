package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCompOptionsDefaults(t *testing.T) {
	o := NewCompOptions()
	require.NoError(t, o.Validate())
	require.Equal(t, 3, o.OptLevel)
	require.Equal(t, 3, o.SizeLevel)
	require.Equal(t, OutputObject, o.Output)
	require.True(t, o.EnableSIMD)
	require.False(t, o.NoSandboxMode)
	require.Zero(t, o.HeapSize)
}

func TestWithSettersClone(t *testing.T) {
	base := NewCompOptions()
	derived := base.WithOptLevel(0).WithNoSandboxMode(true).WithHeapSize(4096)

	require.Equal(t, 3, base.OptLevel)
	require.False(t, base.NoSandboxMode)

	require.Equal(t, 0, derived.OptLevel)
	require.True(t, derived.NoSandboxMode)
	require.Equal(t, uint32(4096), derived.HeapSize)
	require.NoError(t, derived.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*CompOptions)
		expectedErr string
	}{
		{
			name:        "opt level too large",
			mutate:      func(o *CompOptions) { o.OptLevel = 4 },
			expectedErr: "opt level must be in 0..3, got 4",
		},
		{
			name:        "size level negative",
			mutate:      func(o *CompOptions) { o.SizeLevel = -1 },
			expectedErr: "size level must be in 0..3, got -1",
		},
		{
			name:        "heap size below minimum",
			mutate:      func(o *CompOptions) { o.HeapSize = 511 },
			expectedErr: "heap size must be 0 or at least 512 bytes, got 511",
		},
		{
			name:   "heap size at minimum",
			mutate: func(o *CompOptions) { o.HeapSize = 512 },
		},
		{
			name:        "nil logger",
			mutate:      func(o *CompOptions) { o.Logger = nil },
			expectedErr: "logger must not be nil (use zap.NewNop())",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := NewCompOptions()
			tc.mutate(o)
			err := o.Validate()
			if tc.expectedErr == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tc.expectedErr)
			}
		})
	}
}
