package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/decrypt"
	"github.com/brogergvhs/mangapipe/internal/descramble"
	"github.com/brogergvhs/mangapipe/internal/obfuscate"
	"github.com/brogergvhs/mangapipe/internal/transform"
)

const (
	OrderDecrypt     = 10
	OrderDeobfuscate = 20
	OrderComposite   = 30
	OrderCompanion   = 35
	OrderTile        = 40
)

// decryptInterceptor fails the request on bad key material or ciphertext.
type decryptInterceptor struct{}

func (decryptInterceptor) Name() string { return "decrypt" }
func (decryptInterceptor) Order() int   { return OrderDecrypt }

func (decryptInterceptor) Applicable(u *url.URL) bool {
	return carrier.HasFragment(u, carrier.FragmentKey) || carrier.HasFragment(u, carrier.FragmentIV)
}

func (decryptInterceptor) Apply(_ context.Context, x *Exchange) error {
	p, err := carrier.Cipher(x.URL)
	if err != nil {
		return &decrypt.Error{Op: "carrier", Err: err}
	}
	cp, ok := p.(transform.CipherParams)
	if !ok {
		return nil
	}
	if cp.Algorithm != transform.AESCBCPKCS7 {
		return &decrypt.Error{Op: "carrier", Err: fmt.Errorf("unsupported algorithm %s", cp.Algorithm)}
	}

	err = x.Body.WrapStream(func(r io.Reader) (io.Reader, error) {
		return decrypt.NewReader(r, cp.Key, cp.IV)
	})
	if err != nil {
		return err
	}

	plain, err := x.Body.Bytes()
	if err != nil {
		return err
	}
	if raw, mimeType, ok := decrypt.UnwrapDataURI(plain); ok {
		x.Body.SetBytes(raw, mimeType)
	}

	return nil
}

type deobfuscateInterceptor struct {
	limit int
}

func (deobfuscateInterceptor) Name() string { return "deobfuscate" }
func (deobfuscateInterceptor) Order() int   { return OrderDeobfuscate }

func (deobfuscateInterceptor) Applicable(u *url.URL) bool {
	return u.Query().Has(carrier.XORKey)
}

func (d deobfuscateInterceptor) Apply(_ context.Context, x *Exchange) error {
	p, err := carrier.Obfuscation(x.URL, d.limit)
	if err != nil {
		return skip(err)
	}
	op, ok := p.(transform.ObfuscationParams)
	if !ok {
		return nil
	}

	return x.Body.WrapStream(func(r io.Reader) (io.Reader, error) {
		return obfuscate.NewReader(r, op.Key, op.Limit), nil
	})
}

type compositeInterceptor struct{}

func (compositeInterceptor) Name() string { return "composite-descramble" }
func (compositeInterceptor) Order() int   { return OrderComposite }

func (compositeInterceptor) Applicable(u *url.URL) bool {
	return carrier.HasFragment(u, carrier.FragmentTiles)
}

func (compositeInterceptor) Apply(_ context.Context, x *Exchange) error {
	p, err := carrier.Composite(x.URL)
	if err != nil {
		return skip(err)
	}
	cp, ok := p.(transform.CompositeDescrambleParams)
	if !ok {
		return nil
	}

	img, err := x.Body.Image()
	if err != nil {
		return skip(err)
	}
	x.Body.SetImage(descramble.Composite(img, cp))

	return nil
}

type tileInterceptor struct{}

func (tileInterceptor) Name() string { return "tile-descramble" }
func (tileInterceptor) Order() int   { return OrderTile }

func (tileInterceptor) Applicable(u *url.URL) bool {
	q := u.Query()
	return q.Has(carrier.ScrambleW) || q.Has(carrier.ScrambleH) || q.Has(carrier.ScrambleOrder)
}

func (tileInterceptor) Apply(_ context.Context, x *Exchange) error {
	p, err := carrier.TileScramble(x.URL)
	if err != nil {
		return skip(err)
	}

	return applyTiles(x, p)
}

func applyTiles(x *Exchange, p transform.Params) error {
	tp, ok := p.(transform.TileScrambleParams)
	if !ok {
		return nil
	}
	if !tp.Valid() {
		return skip(fmt.Errorf("permutation of %d entries does not cover a %dx%d grid",
			len(tp.Permutation), tp.GridWidth, tp.GridHeight))
	}

	img, err := x.Body.Image()
	if err != nil {
		return skip(err)
	}
	x.Body.SetImage(descramble.Apply(img, tp))

	return nil
}
