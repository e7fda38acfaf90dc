package bmp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/pngimage"
)

// buildBMP assembles a minimal BITMAPFILEHEADER + 40-byte
// BITMAPINFOHEADER + pixel data stream for bitCount/compression. clrUsed
// is set to the number of 4-byte palette entries supplied.
func buildBMP(width, height int32, bitCount uint16, compression uint32, pixels []byte, palette []byte) []byte {
	clrUsed := uint32(len(palette) / 4)
	var infoHeader bytes.Buffer
	binary.Write(&infoHeader, binary.LittleEndian, uint32(40))
	binary.Write(&infoHeader, binary.LittleEndian, width)
	binary.Write(&infoHeader, binary.LittleEndian, height)
	binary.Write(&infoHeader, binary.LittleEndian, uint16(1)) // planes
	binary.Write(&infoHeader, binary.LittleEndian, bitCount)
	binary.Write(&infoHeader, binary.LittleEndian, compression)
	binary.Write(&infoHeader, binary.LittleEndian, uint32(0)) // sizeImage
	binary.Write(&infoHeader, binary.LittleEndian, uint32(0)) // xppm
	binary.Write(&infoHeader, binary.LittleEndian, uint32(0)) // yppm
	binary.Write(&infoHeader, binary.LittleEndian, clrUsed)   // clrUsed
	binary.Write(&infoHeader, binary.LittleEndian, uint32(0)) // clrImportant

	offBits := uint32(14 + infoHeader.Len() + len(palette))

	var file bytes.Buffer
	file.WriteString("BM")
	binary.Write(&file, binary.LittleEndian, uint32(14+infoHeader.Len()+len(palette)+len(pixels)))
	binary.Write(&file, binary.LittleEndian, uint32(0)) // reserved
	binary.Write(&file, binary.LittleEndian, offBits)
	file.Write(infoHeader.Bytes())
	file.Write(palette)
	file.Write(pixels)
	return file.Bytes()
}

func TestDecode24BottomUp(t *testing.T) {
	// 2x1 image, bottom-up (positive height): one row, BGR order, padded
	// to a 4-byte boundary (2*3=6 pixel bytes plus 2 padding bytes).
	pixels := []byte{
		0x00, 0x00, 0xFF, // blue=0 green=0 red=255 -> pixel (0,0) red
		0xFF, 0x00, 0x00, // pixel (1,0) blue
		0x00, 0x00, // row padding
	}
	data := buildBMP(2, 1, 24, biRGB, pixels, nil)

	img, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, pngimage.RGBColor, img.ColorType)
	assert.EqualValues(t, 2, img.Width)
	assert.EqualValues(t, 1, img.Height)
	assert.Equal(t, uint16(255), pngimage.GetSample(img.Rows[0], 0, 0, 3, 8))
	assert.Equal(t, uint16(0), pngimage.GetSample(img.Rows[0], 1, 0, 3, 8))
	assert.Equal(t, uint16(255), pngimage.GetSample(img.Rows[0], 1, 2, 3, 8))
}

func TestDecode8BppPalette(t *testing.T) {
	palette := []byte{
		0x00, 0x00, 0xFF, 0x00, // index 0: BGRQ -> red
		0xFF, 0x00, 0x00, 0x00, // index 1: blue
	}
	pixels := []byte{0x00, 0x01, 0x00, 0x00} // padded to 4 bytes
	data := buildBMP(2, 1, 8, biRGB, pixels, palette)

	img, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, pngimage.PaletteColor, img.ColorType)
	require.Len(t, img.Palette, 2)
	assert.Equal(t, pngimage.RGB8{R: 0xFF}, img.Palette[0])
	assert.Equal(t, pngimage.RGB8{B: 0xFF}, img.Palette[1])
	assert.Equal(t, uint16(0), pngimage.GetSample(img.Rows[0], 0, 0, 1, 8))
	assert.Equal(t, uint16(1), pngimage.GetSample(img.Rows[0], 1, 0, 1, 8))
}

func TestDecodeBadSignature(t *testing.T) {
	_, err := Decode(bytes.NewReader(make([]byte, 20)))
	assert.Error(t, err)
}
