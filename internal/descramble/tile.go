// Package descramble reverses pixel-block shuffles applied to page images.
package descramble

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/brogergvhs/mangapipe/internal/transform"
)

// tileAlign is the JPEG macroblock size tile edges are rounded down to.
const tileAlign = 8

// Tiles undoes a uniform grid shuffle. Destination tile d receives source
// tile perm[d], both in row-major order. Pixels outside the tiled area are
// copied verbatim. Invalid geometry returns src unchanged.
func Tiles(src image.Image, perm []int, gw, gh int) image.Image {
	p := transform.TileScrambleParams{Permutation: perm, GridWidth: gw, GridHeight: gh}
	if !p.Valid() {
		return src
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < tileAlign*gw || h < tileAlign*gh {
		return src
	}

	tw := w / gw / tileAlign * tileAlign
	th := h / gh / tileAlign * tileAlign

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	for d, s := range perm {
		dx, dy := d%gw*tw, d/gw*th
		sp := image.Pt(b.Min.X+s%gw*tw, b.Min.Y+s/gw*th)
		draw.Draw(dst, image.Rect(dx, dy, dx+tw, dy+th), src, sp, draw.Src)
	}

	return dst
}

// Apply is Tiles driven by extracted parameters.
func Apply(src image.Image, p transform.TileScrambleParams) image.Image {
	return Tiles(src, p.Permutation, p.GridWidth, p.GridHeight)
}
