package obfuscate

import "io"

// XOR flips bytes [0, min(len(b), limit)) with key mod 256, in place.
// A limit <= 0 covers the whole buffer. Applying it twice restores b.
func XOR(b []byte, key, limit int) []byte {
	k := byte(key & 0xff)
	n := len(b)
	if limit > 0 && limit < n {
		n = limit
	}

	for i := 0; i < n; i++ {
		b[i] ^= k
	}

	return b
}

type reader struct {
	r     io.Reader
	key   byte
	limit int64
	pos   int64
}

// NewReader streams the same transform as XOR over r.
func NewReader(r io.Reader, key, limit int) io.Reader {
	return &reader{r: r, key: byte(key & 0xff), limit: int64(limit)}
}

func (x *reader) Read(p []byte) (int, error) {
	n, err := x.r.Read(p)
	for i := 0; i < n; i++ {
		if x.limit <= 0 || x.pos < x.limit {
			p[i] ^= x.key
		}
		x.pos++
	}

	return n, err
}
