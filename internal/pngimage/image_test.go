package pngimage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidGray4x4(v uint8) *Image {
	img := &Image{
		Width: 4, Height: 4,
		BitDepth:  8,
		ColorType: RGBAlpha,
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			SetSample(img.Rows[y], x, 0, 4, 8, uint16(v))
			SetSample(img.Rows[y], x, 1, 4, 8, uint16(v))
			SetSample(img.Rows[y], x, 2, 4, 8, uint16(v))
			SetSample(img.Rows[y], x, 3, 4, 8, 255)
		}
	}
	return img
}

func TestValidate_Basic(t *testing.T) {
	img := solidGray4x4(17)
	require.NoError(t, img.Validate())
}

func TestRGBA_SolidColor(t *testing.T) {
	img := solidGray4x4(17)
	r, g, b, a := img.RGBA(1, 1)
	assert.Equal(t, uint16(17*257), r)
	assert.Equal(t, uint16(17*257), g)
	assert.Equal(t, uint16(17*257), b)
	assert.Equal(t, uint16(65535), a)
}

func TestGetSetSample_SubByteDepth(t *testing.T) {
	row := make([]byte, 2) // 4 pixels at 4 bits/pixel fits in 2 bytes
	SetSample(row, 0, 0, 1, 4, 0xA)
	SetSample(row, 1, 0, 1, 4, 0x3)
	SetSample(row, 2, 0, 1, 4, 0xF)
	SetSample(row, 3, 0, 1, 4, 0x0)
	assert.Equal(t, uint16(0xA), GetSample(row, 0, 0, 1, 4))
	assert.Equal(t, uint16(0x3), GetSample(row, 1, 0, 1, 4))
	assert.Equal(t, uint16(0xF), GetSample(row, 2, 0, 1, 4))
	assert.Equal(t, uint16(0x0), GetSample(row, 3, 0, 1, 4))
}

func TestValidate_PaletteIndexOutOfRange(t *testing.T) {
	img := &Image{
		Width: 1, Height: 1, BitDepth: 8, ColorType: PaletteColor,
		Palette: []RGB8{{R: 1, G: 2, B: 3}},
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	SetSample(img.Rows[0], 0, 0, 1, 8, 5) // only index 0 is valid
	assert.Error(t, img.Validate())
}

func TestClone_Independent(t *testing.T) {
	img := solidGray4x4(10)
	clone := img.Clone()
	clone.Rows[0][0] = 0xFF
	assert.NotEqual(t, img.Rows[0][0], clone.Rows[0][0])
}

func TestEquivalent(t *testing.T) {
	a := solidGray4x4(17)
	b := a.Clone()
	assert.True(t, Equivalent(a, b))
	b.Rows[0][0] = 99
	assert.False(t, Equivalent(a, b))
}
