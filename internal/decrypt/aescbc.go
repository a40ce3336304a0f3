// Package decrypt removes AES-CBC encryption some sites apply to page images.
// Decryption streams: only one cipher block is held back so PKCS#7 padding
// can be stripped once the end of the body is reached.
package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrKeyLength      = errors.New("invalid key length")
	ErrIVLength       = errors.New("invalid iv length")
	ErrKeyMaterial    = errors.New("invalid hex key material")
	ErrBlockAlignment = errors.New("ciphertext is not a whole number of blocks")
	ErrPadding        = errors.New("bad PKCS#7 padding")
)

// Error is returned for every decryption failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decrypt %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const chunkSize = 32 * 1024

type cbcReader struct {
	src     io.Reader
	mode    cipher.BlockMode
	buf     []byte
	pending []byte
	held    []byte
	out     []byte
	err     error
}

// NewReader returns a reader yielding the plaintext of the AES-CBC stream r.
func NewReader(r io.Reader, key, iv []byte) (io.Reader, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, &Error{Op: "init", Err: fmt.Errorf("%w: %d bytes", ErrKeyLength, len(key))}
	}
	if len(iv) != aes.BlockSize {
		return nil, &Error{Op: "init", Err: fmt.Errorf("%w: %d bytes", ErrIVLength, len(iv))}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &Error{Op: "init", Err: err}
	}

	return &cbcReader{
		src:  r,
		mode: cipher.NewCBCDecrypter(block, iv),
		buf:  make([]byte, chunkSize),
	}, nil
}

func (r *cbcReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.fill()
	}

	n := copy(p, r.out)
	r.out = r.out[n:]

	return n, nil
}

func (r *cbcReader) fill() {
	n, err := r.src.Read(r.buf)
	r.pending = append(r.pending, r.buf[:n]...)

	bs := aes.BlockSize
	if full := len(r.pending) / bs * bs; full > 0 {
		plain := make([]byte, full)
		r.mode.CryptBlocks(plain, r.pending[:full])
		r.pending = append(r.pending[:0], r.pending[full:]...)

		r.out = append(r.out, r.held...)
		r.out = append(r.out, plain[:full-bs]...)
		r.held = append(r.held[:0], plain[full-bs:]...)
	}

	switch {
	case err == io.EOF:
		r.finish()
	case err != nil:
		r.err = err
	}
}

func (r *cbcReader) finish() {
	if len(r.pending) != 0 || len(r.held) == 0 {
		r.err = &Error{Op: "stream", Err: ErrBlockAlignment}
		return
	}

	last, err := unpad(r.held)
	if err != nil {
		r.err = &Error{Op: "stream", Err: err}
		return
	}

	r.out = append(r.out, last...)
	r.err = io.EOF
}

func unpad(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, ErrPadding
	}

	pad := int(block[len(block)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(block) {
		return nil, ErrPadding
	}
	for _, b := range block[len(block)-pad:] {
		if int(b) != pad {
			return nil, ErrPadding
		}
	}

	return block[:len(block)-pad], nil
}

// Bytes decrypts a whole ciphertext held in memory.
func Bytes(ciphertext, key, iv []byte) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(ciphertext), key, iv)
	if err != nil {
		return nil, err
	}

	return io.ReadAll(r)
}

// ParseHex decodes hex-encoded key material as found in URL fragments.
func ParseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(b) == 0 {
		return nil, &Error{Op: "parse", Err: ErrKeyMaterial}
	}

	return b, nil
}

var (
	dataScheme   = []byte("data:")
	base64Marker = []byte(";base64")
)

// UnwrapDataURI turns a decrypted "data:<mime>;base64,<payload>" body into
// the raw payload. ok is false when b is not such a URI.
func UnwrapDataURI(b []byte) (payload []byte, mimeType string, ok bool) {
	b = bytes.TrimSpace(b)
	if !bytes.HasPrefix(b, dataScheme) {
		return nil, "", false
	}

	meta, data, found := bytes.Cut(b[len(dataScheme):], []byte(","))
	if !found || !bytes.HasSuffix(meta, base64Marker) {
		return nil, "", false
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return nil, "", false
	}

	return raw[:n], string(bytes.TrimSuffix(meta, base64Marker)), true
}
