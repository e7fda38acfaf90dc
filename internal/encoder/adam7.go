package encoder

import "github.com/optipng-go/optipng/internal/pngimage"

// adam7Pass is one of Adam7's seven interlace passes: the sub-image
// starts at (x0,y0) and samples every dx-th column, dy-th row.
type adam7Pass struct {
	x0, y0, dx, dy int
}

var adam7Passes = [7]adam7Pass{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// adam7PassDims returns the sub-image width/height pass p covers for a
// width x height image. Either can be zero, meaning the pass is absent
// (PNG's rule for images narrower/shorter than a pass's sampling grid).
func adam7PassDims(width, height, pass int) (int, int) {
	p := adam7Passes[pass]
	w := (width - p.x0 + p.dx - 1) / p.dx
	h := (height - p.y0 + p.dy - 1) / p.dy
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w, h
}

// adam7ExtractPass builds the packed sub-image rows for pass from img's
// full pixel grid, resampling every dx-th column of every dy-th row
// starting at (x0,y0) into its own densely-packed row of passWidth
// pixels.
func adam7ExtractPass(img *pngimage.Image, pass, passWidth, passHeight int) [][]byte {
	p := adam7Passes[pass]
	channels := img.Channels()
	bitDepth := int(img.BitDepth)
	stride := pngimage.RowStride(passWidth, channels*bitDepth)

	rows := make([][]byte, passHeight)
	for py := 0; py < passHeight; py++ {
		srcRow := img.Rows[p.y0+py*p.dy]
		dstRow := make([]byte, stride)
		for px := 0; px < passWidth; px++ {
			srcX := p.x0 + px*p.dx
			for c := 0; c < channels; c++ {
				v := pngimage.GetSample(srcRow, srcX, c, channels, bitDepth)
				pngimage.SetSample(dstRow, px, c, channels, bitDepth, v)
			}
		}
		rows[py] = dstRow
	}
	return rows
}
