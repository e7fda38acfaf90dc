package reduce

import (
	"github.com/optipng-go/optipng/internal/pngimage"
)

// Reduce applies every allowed sub-reduction to img in place, in a fixed
// composition order, and reports which ones actually fired. It never
// returns an error: a sub-reduction that does not apply is simply
// skipped.
func Reduce(img *pngimage.Image, mask Mask, sink Sink) Applied {
	var applied Applied
	if refused(img) {
		return applied
	}

	if mask&MaskBitDepth != 0 {
		applied.R16to8 = reduce16to8(img)
	}
	if mask&MaskColor != 0 {
		applied.RGBtoGray = reduceRGBtoGray(img)
		applied.StripAlpha = reduceStripAlpha(img)
	}
	if mask&MaskPalette != 0 && img.ColorType == pngimage.PaletteColor {
		applied.PalettePrune = reducePalettePrune(img, sink)
		applied.PaletteToGray = reducePaletteToGray(img)
		if img.ColorType == pngimage.PaletteColor {
			applied.To4_2_1 = reduce8to4_2_1(img)
		}
	}
	if mask&MaskPalette != 0 {
		applied.RGBtoPalette = reduceRGBtoPalette(img)
	}

	return applied
}

// reduce16to8 implements R16to8: valid if every 16-bit sample's two bytes
// agree.
func reduce16to8(img *pngimage.Image) bool {
	if img.BitDepth != 16 || img.ColorType == pngimage.PaletteColor {
		return false
	}
	a := analyze(img)
	if !a.all16Equal {
		return false
	}

	channels := img.Channels()
	stride := pngimage.RowStride(int(img.Width), channels*8)
	newRows := make([][]byte, img.Height)
	for y, row := range img.Rows {
		nr := make([]byte, stride)
		for x := 0; x < int(img.Width); x++ {
			for c := 0; c < channels; c++ {
				v := pngimage.GetSample(row, x, c, channels, 16)
				pngimage.SetSample(nr, x, c, channels, 8, v>>8)
			}
		}
		newRows[y] = nr
	}
	img.Rows = newRows
	img.BitDepth = 8

	if img.Trans.Kind == pngimage.TransColorKey {
		for i := range img.Trans.Key {
			img.Trans.Key[i] >>= 8
		}
	}
	if img.SBIT.Present {
		img.SBIT.Gray = min8(img.SBIT.Gray, 8)
		img.SBIT.Red = min8(img.SBIT.Red, 8)
		img.SBIT.Green = min8(img.SBIT.Green, 8)
		img.SBIT.Blue = min8(img.SBIT.Blue, 8)
		img.SBIT.Alpha = min8(img.SBIT.Alpha, 8)
	}
	return true
}

func min8(v, max uint8) uint8 {
	if v > max {
		return max
	}
	return v
}

// reduceRGBtoGray implements RGBtoGray: valid if every pixel has R=G=B and
// (if present) bKGD also satisfies R=G=B.
func reduceRGBtoGray(img *pngimage.Image) bool {
	if img.ColorType != pngimage.RGBColor && img.ColorType != pngimage.RGBAlpha {
		return false
	}
	a := analyze(img)
	if !a.allRGBEqual || !a.bkgdRGBEqual {
		return false
	}

	srcChannels := img.Channels()
	bitDepth := int(img.BitDepth)
	hasAlpha := img.ColorType == pngimage.RGBAlpha
	dstColorType := pngimage.Gray
	dstChannels := 1
	if hasAlpha {
		dstColorType = pngimage.GrayAlpha
		dstChannels = 2
	}

	stride := pngimage.RowStride(int(img.Width), dstChannels*bitDepth)
	newRows := make([][]byte, img.Height)
	for y, row := range img.Rows {
		nr := make([]byte, stride)
		for x := 0; x < int(img.Width); x++ {
			gray := pngimage.GetSample(row, x, 0, srcChannels, bitDepth) // R == G == B
			pngimage.SetSample(nr, x, 0, dstChannels, bitDepth, gray)
			if hasAlpha {
				av := pngimage.GetSample(row, x, 3, srcChannels, bitDepth)
				pngimage.SetSample(nr, x, 1, dstChannels, bitDepth, av)
			}
		}
		newRows[y] = nr
	}
	img.Rows = newRows
	img.ColorType = dstColorType

	if img.BKGD.Present {
		img.BKGD.Gray = img.BKGD.Red
	}
	if img.SBIT.Present {
		img.SBIT.Gray = maxOf3(img.SBIT.Red, img.SBIT.Green, img.SBIT.Blue)
	}
	// A non-gray color-key tRNS cannot survive an RGB-to-gray conversion
	// with no further information; it is dropped, not an error.
	if img.Trans.Kind == pngimage.TransColorKey {
		if img.Trans.Key[0] == img.Trans.Key[1] && img.Trans.Key[1] == img.Trans.Key[2] {
			img.Trans.Key[1], img.Trans.Key[2] = 0, 0
		} else {
			img.Trans.Kind = pngimage.TransNone
		}
	}
	return true
}

func maxOf3(a, b, c uint8) uint8 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// reduceStripAlpha implements StripAlpha: valid if every alpha sample
// equals the bit depth's maximum.
func reduceStripAlpha(img *pngimage.Image) bool {
	if !img.ColorType.HasAlpha() {
		return false
	}
	a := analyze(img)
	if !a.alphaConstMax {
		return false
	}

	srcChannels := img.Channels()
	bitDepth := int(img.BitDepth)
	dstColorType := pngimage.Gray
	if img.ColorType == pngimage.RGBAlpha {
		dstColorType = pngimage.RGBColor
	}
	dstChannels := dstColorType.Channels()

	stride := pngimage.RowStride(int(img.Width), dstChannels*bitDepth)
	newRows := make([][]byte, img.Height)
	for y, row := range img.Rows {
		nr := make([]byte, stride)
		for x := 0; x < int(img.Width); x++ {
			for c := 0; c < dstChannels; c++ {
				v := pngimage.GetSample(row, x, c, srcChannels, bitDepth)
				pngimage.SetSample(nr, x, c, dstChannels, bitDepth, v)
			}
		}
		newRows[y] = nr
	}
	img.Rows = newRows
	img.ColorType = dstColorType
	if img.SBIT.Present {
		img.SBIT.Alpha = 0
	}
	return true
}

// reducePalettePrune implements PalettePrune: trims trailing unused
// palette entries (including the bKGD index, if any) and trims tRNS to
// the last index whose alpha is < 255.
func reducePalettePrune(img *pngimage.Image, sink Sink) bool {
	a := analyze(img)

	lastUsed := -1
	for i := len(img.Palette) - 1; i >= 0; i-- {
		if a.used[i] {
			lastUsed = i
			break
		}
	}
	if lastUsed < 0 {
		if sink != nil {
			sink.Warn("reduce: palette image has no used entries")
		}
		return false
	}
	newLen := lastUsed + 1
	if newLen == len(img.Palette) {
		// still trim tRNS, in case it is longer than the used prefix
		return trimTrans(img, newLen)
	}

	img.Palette = img.Palette[:newLen]
	if img.HIST != nil {
		img.HIST = img.HIST[:newLen]
	}
	trimTrans(img, newLen)
	return true
}

func trimTrans(img *pngimage.Image, paletteLen int) bool {
	if img.Trans.Kind != pngimage.TransPalette {
		return false
	}
	last := -1
	for i, av := range img.Trans.PaletteAlpha {
		if i >= paletteLen {
			break
		}
		if av < 255 {
			last = i
		}
	}
	newLen := last + 1
	if newLen > paletteLen {
		newLen = paletteLen
	}
	changed := newLen != len(img.Trans.PaletteAlpha)
	img.Trans.PaletteAlpha = img.Trans.PaletteAlpha[:newLen]
	if len(img.Trans.PaletteAlpha) == 0 {
		img.Trans.Kind = pngimage.TransNone
	}
	return changed
}

// reducePaletteToGray implements PaletteToGray: valid for 8-bit palette
// images where every used entry has R=G=B, and (if any transparency
// exists) all transparent entries share the same gray value.
func reducePaletteToGray(img *pngimage.Image) bool {
	if img.ColorType != pngimage.PaletteColor || img.BitDepth != 8 {
		return false
	}
	a := analyze(img)

	grayOf := make([]uint8, len(img.Palette))
	transGray := -1
	for i, c := range img.Palette {
		if !a.used[i] {
			continue
		}
		if c.R != c.G || c.G != c.B {
			return false
		}
		grayOf[i] = c.R
		if img.Trans.Kind == pngimage.TransPalette && i < len(img.Trans.PaletteAlpha) && img.Trans.PaletteAlpha[i] < 255 {
			if transGray == -1 {
				transGray = int(c.R)
			} else if transGray != int(c.R) {
				return false
			}
		}
	}

	channels := img.Channels()
	stride := pngimage.RowStride(int(img.Width), 8)
	newRows := make([][]byte, img.Height)
	for y, row := range img.Rows {
		nr := make([]byte, stride)
		for x := 0; x < int(img.Width); x++ {
			idx := pngimage.GetSample(row, x, 0, channels, 8)
			pngimage.SetSample(nr, x, 0, 1, 8, uint16(grayOf[idx]))
		}
		newRows[y] = nr
	}
	img.Rows = newRows
	img.ColorType = pngimage.Gray
	img.Palette = nil
	if transGray >= 0 {
		img.Trans = pngimage.Trans{Kind: pngimage.TransColorKey, Key: [3]uint16{uint16(transGray), 0, 0}}
	} else {
		img.Trans = pngimage.Trans{}
	}
	if img.BKGD.Present {
		img.BKGD.Gray = uint16(grayOf[img.BKGD.PaletteIndex])
	}
	img.HIST = nil
	return true
}

// reduce8to4_2_1 implements 8to4_2_1: packs an 8-bit palette image with
// <=16 entries to the minimum of {1,2,4} bits that fits the palette.
func reduce8to4_2_1(img *pngimage.Image) bool {
	if img.ColorType != pngimage.PaletteColor || img.BitDepth != 8 {
		return false
	}
	if len(img.Palette) > 16 {
		return false
	}

	target := minDepthFor(len(img.Palette))
	if target >= 8 {
		return false
	}

	stride := pngimage.RowStride(int(img.Width), target)
	newRows := make([][]byte, img.Height)
	for y, row := range img.Rows {
		nr := make([]byte, stride)
		for x := 0; x < int(img.Width); x++ {
			v := pngimage.GetSample(row, x, 0, 1, 8)
			pngimage.SetSample(nr, x, 0, 1, target, v)
		}
		newRows[y] = nr
	}
	img.Rows = newRows
	img.BitDepth = uint8(target)
	return true
}

func minDepthFor(paletteLen int) int {
	switch {
	case paletteLen <= 2:
		return 1
	case paletteLen <= 4:
		return 2
	case paletteLen <= 16:
		return 4
	default:
		return 8
	}
}
