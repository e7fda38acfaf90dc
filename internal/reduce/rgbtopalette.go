package reduce

import (
	"sort"

	"github.com/optipng-go/optipng/internal/pngimage"
)

// maxPaletteEntries is the hard ceiling a PNG palette can hold.
const maxPaletteEntries = 256

// rgba is an 8-bit-per-channel color tuple collected into the candidate
// palette.
type rgba struct{ r, g, b, a uint8 }

// less orders tuples by (A, R, G, B), which puts every translucent entry
// (A < 255) ahead of the opaque ones so tRNS stays a palette prefix.
func (c rgba) less(o rgba) bool {
	if c.a != o.a {
		return c.a < o.a
	}
	if c.r != o.r {
		return c.r < o.r
	}
	if c.g != o.g {
		return c.g < o.g
	}
	return c.b < o.b
}

// reduceRGBtoPalette implements RGBtoPalette, the inverse reduction:
// valid for 8-bit RGB/RGBA images whose distinct (R,G,B,A) tuples number
// at most 256, and only when the uncompressed indexed form (pixels +
// PLTE + tRNS) is strictly smaller than the uncompressed RGB(A) form:
// width*height*(channels-1) > 3*|palette| + |trans|.
func reduceRGBtoPalette(img *pngimage.Image) bool {
	if img.ColorType != pngimage.RGBColor && img.ColorType != pngimage.RGBAlpha {
		return false
	}
	if img.BitDepth != 8 {
		return false
	}

	channels := img.Channels()
	hasAlpha := img.ColorType == pngimage.RGBAlpha

	pixelKey := func(row []byte, x int) rgba {
		r := uint8(pngimage.GetSample(row, x, 0, channels, 8))
		g := uint8(pngimage.GetSample(row, x, 1, channels, 8))
		b := uint8(pngimage.GetSample(row, x, 2, channels, 8))
		a := uint8(255)
		if hasAlpha {
			a = uint8(pngimage.GetSample(row, x, 3, channels, 8))
		}
		return rgba{r, g, b, a}
	}

	seen := make(map[rgba]struct{}, maxPaletteEntries)
	for _, row := range img.Rows {
		for x := 0; x < int(img.Width); x++ {
			key := pixelKey(row, x)
			if _, ok := seen[key]; ok {
				continue
			}
			if len(seen) >= maxPaletteEntries {
				return false
			}
			seen[key] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return false
	}

	order := make([]rgba, 0, len(seen))
	for key := range seen {
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].less(order[j]) })

	numTrans := 0
	for _, c := range order {
		if c.a < 255 {
			numTrans++
		}
	}

	// The indexed form must actually be smaller than the RGB(A) form
	// (chunk overhead ignored); the dimension guard mirrors the original
	// arithmetic-overflow protection.
	if img.Width <= 384 && img.Height <= 384 &&
		int(img.Width)*int(img.Height)*(channels-1) <= 3*len(order)+numTrans {
		return false
	}

	index := make(map[rgba]int, len(order))
	palette := make([]pngimage.RGB8, len(order))
	for i, c := range order {
		index[c] = i
		palette[i] = pngimage.RGB8{R: c.r, G: c.g, B: c.b}
	}

	var trans pngimage.Trans
	if numTrans > 0 {
		trans.Kind = pngimage.TransPalette
		trans.PaletteAlpha = make([]uint8, numTrans)
		for i := 0; i < numTrans; i++ {
			trans.PaletteAlpha[i] = order[i].a
		}
	}

	depth := minDepthFor(len(order))
	stride := pngimage.RowStride(int(img.Width), depth)
	newRows := make([][]byte, img.Height)
	for y, row := range img.Rows {
		nr := make([]byte, stride)
		for x := 0; x < int(img.Width); x++ {
			idx := index[pixelKey(row, x)]
			pngimage.SetSample(nr, x, 0, 1, depth, uint16(idx))
		}
		newRows[y] = nr
	}

	img.Rows = newRows
	img.ColorType = pngimage.PaletteColor
	img.BitDepth = uint8(depth)
	img.Palette = palette
	img.Trans = trans
	if img.BKGD.Present {
		key := rgba{uint8(img.BKGD.Red), uint8(img.BKGD.Green), uint8(img.BKGD.Blue), 255}
		if idx, ok := index[key]; ok {
			img.BKGD.PaletteIndex = idx
		} else {
			img.BKGD.Present = false
		}
	}
	img.HIST = nil
	return true
}
