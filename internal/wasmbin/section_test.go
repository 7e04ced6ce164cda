package wasmbin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func header() []byte { return append(append([]byte{}, Magic[:]...), Version[:]...) }

func TestSplitRejectsBadMagic(t *testing.T) {
	_, err := Split([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Error(t, err)
}

func TestSplitRejectsBadVersion(t *testing.T) {
	buf := append(append([]byte{}, Magic[:]...), 2, 0, 0, 0)
	_, err := Split(buf)
	require.Error(t, err)
}

func TestSplitEmptyModule(t *testing.T) {
	secs, err := Split(header())
	require.NoError(t, err)
	require.Empty(t, secs)
}

func TestSplitOrdering(t *testing.T) {
	buf := header()
	buf = append(buf, 1, 0)  // type section, empty
	buf = append(buf, 3, 0)  // function section, empty
	secs, err := Split(buf)
	require.NoError(t, err)
	require.Len(t, secs, 2)
}

func TestSplitOutOfOrderFails(t *testing.T) {
	buf := header()
	buf = append(buf, 3, 0) // function
	buf = append(buf, 1, 0) // type, after function: illegal
	_, err := Split(buf)
	require.Error(t, err)
}

func TestSplitDataCountBeforeCode(t *testing.T) {
	buf := header()
	buf = append(buf, 9, 0)  // element
	buf = append(buf, 12, 0) // datacount
	buf = append(buf, 10, 0) // code
	buf = append(buf, 11, 0) // data
	secs, err := Split(buf)
	require.NoError(t, err)
	require.Len(t, secs, 4)
}

func TestSplitDataCountAfterCodeFails(t *testing.T) {
	buf := header()
	buf = append(buf, 10, 0) // code
	buf = append(buf, 12, 0) // datacount: illegal after code
	_, err := Split(buf)
	require.Error(t, err)
}

func TestSplitCustomSectionsAnywhere(t *testing.T) {
	buf := header()
	buf = append(buf, 0, 6, 4, 'n', 'a', 'm', 'e', 0x00) // custom "name", 1 byte body
	buf = append(buf, 1, 0)                              // type
	buf = append(buf, 0, 4, 3, 'f', 'o', 'o')             // custom "foo"
	secs, err := Split(buf)
	require.NoError(t, err)
	require.Len(t, secs, 3)
	require.Equal(t, "name", secs[0].Name)
	require.Equal(t, "foo", secs[2].Name)
}

func TestSplitTruncatedSectionSize(t *testing.T) {
	buf := header()
	buf = append(buf, 1, 10) // claims 10 byte body, but none follows
	_, err := Split(buf)
	require.Error(t, err)
}

func TestValidateUTF8(t *testing.T) {
	require.NoError(t, ValidateUTF8([]byte("hello world")))
	require.Error(t, ValidateUTF8([]byte{0x00}))
	require.Error(t, ValidateUTF8([]byte{0xc0, 0x80})) // overlong NUL
	require.Error(t, ValidateUTF8([]byte{0xe0, 0x80, 0x80}))
	require.Error(t, ValidateUTF8([]byte{0xed, 0xa0, 0x80})) // surrogate
	require.NoError(t, ValidateUTF8([]byte{0xc2, 0x80}))     // U+0080, smallest legal 2-byte
	require.NoError(t, ValidateUTF8([]byte{0xf0, 0x90, 0x80, 0x80}))
	require.Error(t, ValidateUTF8([]byte{0xf4, 0x90, 0x80, 0x80})) // beyond U+10FFFF
}
