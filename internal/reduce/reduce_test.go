package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/pngimage"
)

func newRGBA(width, height int, bitDepth uint8) *pngimage.Image {
	img := &pngimage.Image{
		Width: uint32(width), Height: uint32(height),
		BitDepth:  bitDepth,
		ColorType: pngimage.RGBAlpha,
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	return img
}

func setRGBA(img *pngimage.Image, x, y int, r, g, b, a uint16) {
	pngimage.SetSample(img.Rows[y], x, 0, 4, int(img.BitDepth), r)
	pngimage.SetSample(img.Rows[y], x, 1, 4, int(img.BitDepth), g)
	pngimage.SetSample(img.Rows[y], x, 2, 4, int(img.BitDepth), b)
	pngimage.SetSample(img.Rows[y], x, 3, 4, int(img.BitDepth), a)
}

func TestReduce16to8_AllBytesEqual(t *testing.T) {
	img := newRGBA(2, 1, 16)
	setRGBA(img, 0, 0, 0x1111, 0x2222, 0x3333, 0xFFFF)
	setRGBA(img, 1, 0, 0x4444, 0x5555, 0x6666, 0xFFFF)
	before := img.Clone()

	applied := Reduce(img, All, nil)
	assert.True(t, applied.R16to8)
	assert.EqualValues(t, 8, img.BitDepth)
	assert.True(t, pngimage.Equivalent(before, img))
}

func TestReduce16to8_Refused(t *testing.T) {
	img := newRGBA(1, 1, 16)
	setRGBA(img, 0, 0, 0x1234, 0x0000, 0x0000, 0xFFFF)

	applied := Reduce(img, All, nil)
	assert.False(t, applied.R16to8)
	assert.EqualValues(t, 16, img.BitDepth)
}

func TestReduceRGBtoGray_AllEqual(t *testing.T) {
	img := newRGBA(2, 2, 8)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			setRGBA(img, x, y, 42, 42, 42, 255)
		}
	}
	before := img.Clone()

	applied := Reduce(img, All, nil)
	assert.True(t, applied.RGBtoGray)
	assert.True(t, applied.StripAlpha)
	assert.Equal(t, pngimage.Gray, img.ColorType)
	assert.True(t, pngimage.Equivalent(before, img))
}

func TestReduceRGBtoGray_Refused(t *testing.T) {
	img := newRGBA(1, 1, 8)
	setRGBA(img, 0, 0, 1, 2, 3, 255)

	applied := Reduce(img, All, nil)
	assert.False(t, applied.RGBtoGray)
	// StripAlpha still fires on the constant-max alpha; the image stays color.
	assert.Equal(t, pngimage.RGBColor, img.ColorType)
}

func TestReduceStripAlpha_ConstMax(t *testing.T) {
	img := newRGBA(2, 1, 8)
	setRGBA(img, 0, 0, 10, 20, 30, 255)
	setRGBA(img, 1, 0, 40, 50, 60, 255)
	before := img.Clone()

	applied := Reduce(img, MaskColor, nil)
	assert.True(t, applied.StripAlpha)
	assert.Equal(t, pngimage.RGBColor, img.ColorType)
	assert.True(t, pngimage.Equivalent(before, img))
}

func TestReducePalettePrune(t *testing.T) {
	img := &pngimage.Image{
		Width: 2, Height: 1, BitDepth: 8, ColorType: pngimage.PaletteColor,
		Palette: []pngimage.RGB8{{R: 1}, {R: 2}, {R: 3}, {R: 4}},
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	pngimage.SetSample(img.Rows[0], 0, 0, 1, 8, 0)
	pngimage.SetSample(img.Rows[0], 1, 0, 1, 8, 1)

	applied := Reduce(img, MaskPalette, nil)
	assert.True(t, applied.PalettePrune)
	assert.Len(t, img.Palette, 2)
}

func TestReducePaletteToGray(t *testing.T) {
	img := &pngimage.Image{
		Width: 2, Height: 1, BitDepth: 8, ColorType: pngimage.PaletteColor,
		Palette: []pngimage.RGB8{{R: 10, G: 10, B: 10}, {R: 20, G: 20, B: 20}},
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	pngimage.SetSample(img.Rows[0], 0, 0, 1, 8, 0)
	pngimage.SetSample(img.Rows[0], 1, 0, 1, 8, 1)

	applied := Reduce(img, MaskPalette, nil)
	assert.True(t, applied.PaletteToGray)
	assert.Equal(t, pngimage.Gray, img.ColorType)
}

func TestReduce8to4_2_1(t *testing.T) {
	img := &pngimage.Image{
		Width: 2, Height: 1, BitDepth: 8, ColorType: pngimage.PaletteColor,
		Palette: []pngimage.RGB8{{R: 1}, {R: 2}, {R: 3}},
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	pngimage.SetSample(img.Rows[0], 0, 0, 1, 8, 0)
	pngimage.SetSample(img.Rows[0], 1, 0, 1, 8, 2)

	applied := Reduce(img, MaskPalette, nil)
	assert.True(t, applied.To4_2_1)
	assert.EqualValues(t, 2, img.BitDepth)
	assert.Equal(t, uint16(0), pngimage.GetSample(img.Rows[0], 0, 0, 1, 2))
	assert.Equal(t, uint16(2), pngimage.GetSample(img.Rows[0], 1, 0, 1, 2))
}

func TestReduceRGBtoPalette_SmallColorCount(t *testing.T) {
	img := newRGBA(3, 1, 8)
	setRGBA(img, 0, 0, 10, 20, 30, 255)
	setRGBA(img, 1, 0, 10, 20, 30, 255)
	setRGBA(img, 2, 0, 200, 100, 50, 0)
	before := img.Clone()

	applied := Reduce(img, All, nil)
	require.True(t, applied.RGBtoPalette)
	assert.Equal(t, pngimage.PaletteColor, img.ColorType)
	// translucent entries sort ahead of opaque ones, so tRNS is a prefix
	assert.Equal(t, []uint8{0}, img.Trans.PaletteAlpha)
	assert.Equal(t, pngimage.RGB8{R: 200, G: 100, B: 50}, img.Palette[0])
	assert.True(t, pngimage.Equivalent(before, img))
}

func TestReduceRGBtoPalette_RefusedWhenIndexedFormIsNotSmaller(t *testing.T) {
	// 2x1: two distinct opaque colors cost 6 PLTE bytes against 6 saved
	// pixel bytes (2 pixels x 3 bytes), so the indexed form is not smaller
	// and the reduction skips.
	img := newRGBA(2, 1, 8)
	setRGBA(img, 0, 0, 10, 20, 30, 255)
	setRGBA(img, 1, 0, 200, 100, 50, 255)

	applied := Reduce(img, MaskPalette, nil)
	assert.False(t, applied.RGBtoPalette)
}

func TestReduceRGBtoPalette_TooManyColors(t *testing.T) {
	img := newRGBA(300, 1, 8)
	for x := 0; x < 300; x++ {
		setRGBA(img, x, 0, uint16(x%256), uint16(x/256), uint16((x*7)%256), 255)
	}

	applied := Reduce(img, MaskPalette, nil)
	assert.False(t, applied.RGBtoPalette)
	assert.Equal(t, pngimage.RGBAlpha, img.ColorType)
}

func TestReduce_RefusedOnDigitalSignature(t *testing.T) {
	img := newRGBA(1, 1, 8)
	setRGBA(img, 0, 0, 5, 5, 5, 255)
	img.DigitalSignature = true

	applied := Reduce(img, All, nil)
	assert.False(t, applied.Any())
}

func TestReduce_RefusedOnAPNG(t *testing.T) {
	img := newRGBA(1, 1, 8)
	setRGBA(img, 0, 0, 5, 5, 5, 255)
	img.APNGFrameCount = 3

	applied := Reduce(img, All, nil)
	assert.False(t, applied.Any())
}

func TestReduce_MaskDisablesCategory(t *testing.T) {
	img := newRGBA(1, 1, 16)
	setRGBA(img, 0, 0, 0x1111, 0x1111, 0x1111, 0xFFFF)

	applied := Reduce(img, MaskColor|MaskPalette, nil)
	assert.False(t, applied.R16to8)
	assert.EqualValues(t, 16, img.BitDepth)
}
