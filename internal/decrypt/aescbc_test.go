package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

// encrypt is the reference encryption used to build fixtures.
func encrypt(t *testing.T, plain, key, iv []byte) []byte {
	t.Helper()

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return out
}

func TestRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 1000, 100_000} {
		plain := bytes.Repeat([]byte{0x5a, 0x01, 0xff}, size/3+1)[:size]
		ct := encrypt(t, plain, testKey, testIV)

		got, err := Bytes(ct, testKey, testIV)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, plain, got, "size %d", size)
	}
}

func TestStreamingSmallReads(t *testing.T) {
	plain := bytes.Repeat([]byte("page-image-bytes"), 300)
	ct := encrypt(t, plain, testKey, testIV)

	r, err := NewReader(iotest.OneByteReader(bytes.NewReader(ct)), testKey, testIV)
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestTypedErrors(t *testing.T) {
	ct := encrypt(t, []byte("hello"), testKey, testIV)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"short key", func() error { _, err := Bytes(ct, testKey[:5], testIV); return err }, ErrKeyLength},
		{"short iv", func() error { _, err := Bytes(ct, testKey, testIV[:8]); return err }, ErrIVLength},
		{"truncated", func() error { _, err := Bytes(ct[:len(ct)-3], testKey, testIV); return err }, ErrBlockAlignment},
		{"empty", func() error { _, err := Bytes(nil, testKey, testIV); return err }, ErrBlockAlignment},
		{"wrong key", func() error { _, err := Bytes(ct, []byte("ffffffffffffffff"), testIV); return err }, ErrPadding},
		{"bad hex", func() error { _, err := ParseHex("zz"); return err }, ErrKeyMaterial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)

			var derr *Error
			assert.True(t, errors.As(err, &derr))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseHex(t *testing.T) {
	b, err := ParseHex("0x30313233")
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), b)
}

func TestUnwrapDataURI(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	got, mt, ok := UnwrapDataURI([]byte(uri))
	require.True(t, ok)
	assert.Equal(t, "image/png", mt)
	assert.Equal(t, payload, got)

	_, _, ok = UnwrapDataURI([]byte("\xff\xd8 not a uri"))
	assert.False(t, ok)

	_, _, ok = UnwrapDataURI([]byte("data:text/plain,hello"))
	assert.False(t, ok)

	_, _, ok = UnwrapDataURI([]byte("data:image/png;base64,@@@"))
	assert.False(t, ok)
}

func TestUnwrapDataURILeavesInputAlone(t *testing.T) {
	uri := []byte("  data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg")) + "\n")
	orig := append([]byte(nil), uri...)

	got, mt, ok := UnwrapDataURI(uri)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", mt)
	assert.Equal(t, []byte("jpeg"), got)
	assert.Equal(t, orig, uri)

	binary := append([]byte{0xff, 0xd8, 0xff}, make([]byte, 4<<20)...)
	_, _, ok = UnwrapDataURI(binary)
	assert.False(t, ok)
}
