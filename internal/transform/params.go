// Package transform holds the parameter variants the response pipeline
// understands. A connector encodes one or more of them into a request URL;
// the pipeline extracts them again before the request leaves the process.
package transform

import (
	"fmt"
	"image"
)

type Kind int

const (
	KindObfuscation Kind = iota + 1
	KindTileScramble
	KindCipher
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindObfuscation:
		return "obfuscation"
	case KindTileScramble:
		return "tile-scramble"
	case KindCipher:
		return "cipher"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Params is implemented by every parameter variant.
type Params interface {
	Kind() Kind
}

// DefaultObfuscationLimit is the prefix length most sites obfuscate.
const DefaultObfuscationLimit = 1024

type ObfuscationParams struct {
	Key   int
	Limit int // <= 0 means the whole body
}

func (ObfuscationParams) Kind() Kind { return KindObfuscation }

// TileScrambleParams describes a uniform grid shuffle. Permutation[d] names
// the source tile copied into destination tile d.
type TileScrambleParams struct {
	Permutation []int
	GridWidth   int
	GridHeight  int
}

func (TileScrambleParams) Kind() Kind { return KindTileScramble }

// Valid reports whether the permutation names one in-range source tile for
// every destination tile. A source tile may be used more than once.
func (p TileScrambleParams) Valid() bool {
	n := p.GridWidth * p.GridHeight
	if p.GridWidth <= 0 || p.GridHeight <= 0 || len(p.Permutation) != n {
		return false
	}

	for _, s := range p.Permutation {
		if s < 0 || s >= n {
			return false
		}
	}

	return true
}

// Inverse returns the permutation that undoes p. It is only meaningful
// when p is a bijection.
func (p TileScrambleParams) Inverse() TileScrambleParams {
	inv := make([]int, len(p.Permutation))
	for d, s := range p.Permutation {
		inv[s] = d
	}

	return TileScrambleParams{Permutation: inv, GridWidth: p.GridWidth, GridHeight: p.GridHeight}
}

type Algorithm int

const (
	AESCBCPKCS7 Algorithm = iota + 1
)

func (a Algorithm) String() string {
	if a == AESCBCPKCS7 {
		return "AES-CBC-PKCS7"
	}

	return fmt.Sprintf("algorithm(%d)", int(a))
}

type CipherParams struct {
	Key       []byte
	IV        []byte
	Algorithm Algorithm
}

func (CipherParams) Kind() Kind { return KindCipher }

// CompositeDescrambleParams describes an irregular tile layout. Tiles maps a
// tile id to its rectangle; Permutation maps a destination tile id to the
// source tile id whose pixels belong there.
type CompositeDescrambleParams struct {
	SourceWidth  int
	SourceHeight int
	Tiles        map[string]image.Rectangle
	Permutation  map[string]string
}

func (CompositeDescrambleParams) Kind() Kind { return KindComposite }
