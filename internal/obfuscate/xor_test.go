package obfuscate

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int, seed int64) []byte {
	t.Helper()
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func TestXORRoundTrip(t *testing.T) {
	for _, key := range []int{0, 1, 174, 255, 256, 1000, -3} {
		for _, limit := range []int{-1, 0, 1, 16, 1024, 5000} {
			orig := randomBytes(t, 2000, int64(key*31+limit))
			buf := append([]byte(nil), orig...)

			XOR(XOR(buf, key, limit), key, limit)
			assert.Equal(t, orig, buf, "key=%d limit=%d", key, limit)
		}
	}
}

func TestXORPrefixOnly(t *testing.T) {
	orig := randomBytes(t, 2000, 7)
	buf := XOR(append([]byte(nil), orig...), 174, 1024)

	for i := 0; i < 1024; i++ {
		require.Equal(t, orig[i]^0xAE, buf[i], "byte %d", i)
	}
	assert.Equal(t, orig[1024:], buf[1024:])
}

func TestXORKeyIsReducedModulo256(t *testing.T) {
	a := XOR([]byte{1, 2, 3}, 174, 0)
	b := XOR([]byte{1, 2, 3}, 174+256, 0)
	assert.Equal(t, a, b)
}

func TestReaderMatchesXOR(t *testing.T) {
	orig := randomBytes(t, 3000, 11)
	want := XOR(append([]byte(nil), orig...), 174, 1024)

	r := NewReader(iotest.OneByteReader(bytes.NewReader(orig)), 174, 1024)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	r = NewReader(bytes.NewReader(orig), 9, 0)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, XOR(append([]byte(nil), orig...), 9, 0), got)
}
