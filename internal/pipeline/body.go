package pipeline

import (
	"bytes"
	"image"
	"io"
	"net/http"

	"github.com/brogergvhs/mangapipe/internal/descramble"
)

// Body is the response payload as it moves through the interceptors. It
// stays a stream while only byte transforms apply and is decoded into pixels
// at most once for any number of image transforms.
type Body struct {
	stream      io.Reader
	data        []byte
	img         image.Image
	format      string
	contentType string
	changed     bool
}

func newBody(r io.Reader, contentType string) *Body {
	return &Body{stream: r, contentType: contentType}
}

// WrapStream layers a byte transform over the current payload.
func (b *Body) WrapStream(wrap func(io.Reader) (io.Reader, error)) error {
	var cur io.Reader
	switch {
	case b.img != nil:
		if err := b.encode(); err != nil {
			return err
		}
		cur = bytes.NewReader(b.data)
	case b.stream != nil:
		cur = b.stream
	default:
		cur = bytes.NewReader(b.data)
	}

	r, err := wrap(cur)
	if err != nil {
		return err
	}

	b.stream, b.data = r, nil
	b.contentType = ""
	b.changed = true

	return nil
}

// Bytes materializes the payload.
func (b *Body) Bytes() ([]byte, error) {
	if b.img != nil {
		if err := b.encode(); err != nil {
			return nil, err
		}
	}
	if b.stream != nil {
		data, err := io.ReadAll(b.stream)
		if err != nil {
			return nil, err
		}
		b.stream, b.data = nil, data
	}

	return b.data, nil
}

// SetBytes replaces the payload. An empty contentType is sniffed later.
func (b *Body) SetBytes(data []byte, contentType string) {
	b.stream, b.img = nil, nil
	b.data = data
	b.contentType = contentType
	b.changed = true
}

// Image decodes the payload into pixels.
func (b *Body) Image() (image.Image, error) {
	if b.img != nil {
		return b.img, nil
	}

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	img, format, err := descramble.Decode(data)
	if err != nil {
		return nil, err
	}
	b.img, b.format = img, format

	return img, nil
}

// SetImage replaces the payload with pixels to be re-encoded on output.
func (b *Body) SetImage(img image.Image) {
	b.img = img
	b.stream, b.data = nil, nil
	b.changed = true
}

func (b *Body) encode() error {
	data, ct, err := descramble.Encode(b.img, b.format)
	if err != nil {
		return err
	}
	b.img = nil
	b.data, b.contentType = data, ct

	return nil
}

// ContentType is the type of the current payload.
func (b *Body) ContentType() string {
	if b.changed && b.contentType == "" && b.data != nil {
		return http.DetectContentType(b.data)
	}
	return b.contentType
}
