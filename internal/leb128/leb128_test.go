package leb128

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeInt32(t *testing.T) {
	for _, c := range []struct {
		input    int32
		expected []byte
	}{
		{input: -165675008, expected: []byte{0x80, 0x80, 0x80, 0xb1, 0x7f}},
		{input: -624485, expected: []byte{0x9b, 0xf1, 0x59}},
		{input: -16256, expected: []byte{0x80, 0x81, 0x7f}},
		{input: -4, expected: []byte{0x7c}},
		{input: -1, expected: []byte{0x7f}},
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 4, expected: []byte{0x04}},
		{input: 16256, expected: []byte{0x80, 0xff, 0x0}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: 165675008, expected: []byte{0x80, 0x80, 0x80, 0xcf, 0x0}},
		{input: int32(math.MaxInt32), expected: []byte{0xff, 0xff, 0xff, 0xff, 0x7}},
	} {
		require.Equal(t, c.expected, EncodeInt32(c.input))
		decoded, n, err := LoadInt32(c.expected)
		require.NoError(t, err)
		require.Equal(t, c.input, decoded)
		require.Equal(t, uint64(len(c.expected)), n)
	}
}

func TestEncodeDecodeInt64(t *testing.T) {
	for _, c := range []struct {
		input    int64
		expected []byte
	}{
		{input: -math.MaxInt32, expected: []byte{0x81, 0x80, 0x80, 0x80, 0x78}},
		{input: -165675008, expected: []byte{0x80, 0x80, 0x80, 0xb1, 0x7f}},
		{input: -1, expected: []byte{0x7f}},
		{input: 0, expected: []byte{0x00}},
		{input: math.MaxInt32, expected: []byte{0xff, 0xff, 0xff, 0xff, 0x7}},
		{
			input:    math.MaxInt64,
			expected: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x0},
		},
	} {
		require.Equal(t, c.expected, EncodeInt64(c.input))
		decoded, _, err := LoadInt64(c.expected)
		require.NoError(t, err)
		require.Equal(t, c.input, decoded)
	}
}

func TestDecodeUint32(t *testing.T) {
	for _, c := range []struct {
		name   string
		bytes  []byte
		exp    uint32
		expErr bool
	}{
		{name: "max", bytes: []byte{0xff, 0xff, 0xff, 0xff, 0xf}, exp: math.MaxUint32},
		{name: "zero", bytes: []byte{0x00}, exp: 0},
		{name: "two bytes", bytes: []byte{0x80, 0x7f}, exp: 16256},
		{name: "too many bytes", bytes: []byte{0x83, 0x80, 0x80, 0x80, 0x80, 0x00}, expErr: true},
		{name: "overflow in 5th byte", bytes: []byte{0x82, 0x80, 0x80, 0x80, 0x70}, expErr: true},
		{name: "all continuation", bytes: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, expErr: true},
	} {
		t.Run(c.name, func(t *testing.T) {
			actual, n, err := LoadUint32(c.bytes)
			if c.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.exp, actual)
			require.Equal(t, uint64(len(c.bytes)), n)
		})
	}
}

func TestDecodeInt32(t *testing.T) {
	for _, c := range []struct {
		name   string
		bytes  []byte
		exp    int32
		expErr bool
	}{
		{name: "positive one byte", bytes: []byte{0x13}, exp: 19},
		{name: "negative one byte", bytes: []byte{0x7f}, exp: -1},
		{name: "positive two bytes", bytes: []byte{0x81, 0x01}, exp: 129},
		{name: "negative two bytes", bytes: []byte{0x81, 0x7f}, exp: -127},
		{name: "overflow nonzero high bits", bytes: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, expErr: true},
		{name: "overflow mismatched sign", bytes: []byte{0xff, 0xff, 0xff, 0xff, 0x4f}, expErr: true},
		{name: "overflow positive pattern", bytes: []byte{0x80, 0x80, 0x80, 0x80, 0x70}, expErr: true},
	} {
		t.Run(c.name, func(t *testing.T) {
			actual, n, err := LoadInt32(c.bytes)
			if c.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.exp, actual)
			require.Equal(t, uint64(len(c.bytes)), n)
		})
	}
}

func TestDecodeInt33AsInt64(t *testing.T) {
	for _, c := range []struct {
		bytes []byte
		exp   int64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x40}, exp: -64},
		{bytes: []byte{0x7f}, exp: -1},
		{bytes: []byte{0xFF, 0x00}, exp: 127},
		{bytes: []byte{0x81, 0x01}, exp: 129},
	} {
		actual, n, err := DecodeInt33AsInt64(bytes.NewReader(c.bytes))
		require.NoError(t, err)
		require.Equal(t, c.exp, actual)
		require.Equal(t, uint64(len(c.bytes)), n)
	}
}

func TestDecodeInt64(t *testing.T) {
	for _, c := range []struct {
		bytes []byte
		exp   int64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0xFF, 0x00}, exp: 127},
		{bytes: []byte{0x7f}, exp: -1},
		{
			bytes: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f},
			exp:   math.MinInt64,
		},
	} {
		actual, n, err := LoadInt64(c.bytes)
		require.NoError(t, err)
		require.Equal(t, c.exp, actual)
		require.Equal(t, uint64(len(c.bytes)), n)
	}
}

func TestLoadUint32_truncated(t *testing.T) {
	_, _, err := LoadUint32([]byte{0x80})
	require.Error(t, err)
}

func TestDecodeReaderVariants(t *testing.T) {
	data := []byte{0x80, 0x80, 0x80, 0x4f}
	v32, n, err := DecodeUint32(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), n)

	v32Slice, _, err := LoadUint32(data)
	require.NoError(t, err)
	require.Equal(t, v32Slice, v32)

	iv32, _, err := DecodeInt32(bytes.NewReader(data))
	require.NoError(t, err)
	iv32Slice, _, err := LoadInt32(data)
	require.NoError(t, err)
	require.Equal(t, iv32Slice, iv32)

	iv64, _, err := DecodeInt64(bytes.NewReader(data))
	require.NoError(t, err)
	iv64Slice, _, err := LoadInt64(data)
	require.NoError(t, err)
	require.Equal(t, iv64Slice, iv64)
}
