package descramble

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/brogergvhs/mangapipe/internal/transform"
)

// Composite copies irregular rectangles as described by p. Each destination
// tile receives the pixels of its mapped source tile, clipped to the smaller
// of the two rectangles. A descriptor referencing unknown tiles or pixels
// outside the image leaves src unchanged.
func Composite(src image.Image, p transform.CompositeDescrambleParams) image.Image {
	b := src.Bounds()

	w, h := p.SourceWidth, p.SourceHeight
	if w <= 0 || h <= 0 {
		w, h = b.Dx(), b.Dy()
	}
	if len(p.Permutation) == 0 || w > b.Dx() || h > b.Dy() {
		return src
	}

	bounds := image.Rect(0, 0, w, h)
	for dstID, srcID := range p.Permutation {
		dr, ok := p.Tiles[dstID]
		if !ok || !dr.In(bounds) {
			return src
		}
		sr, ok := p.Tiles[srcID]
		if !ok || !sr.In(bounds) {
			return src
		}
	}

	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, b.Min, draw.Src)

	for dstID, srcID := range p.Permutation {
		dr, sr := p.Tiles[dstID], p.Tiles[srcID]

		size := image.Pt(min(dr.Dx(), sr.Dx()), min(dr.Dy(), sr.Dy()))
		target := image.Rectangle{Min: dr.Min, Max: dr.Min.Add(size)}
		draw.Draw(dst, target, src, b.Min.Add(sr.Min), draw.Src)
	}

	return dst
}
