package tiff

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/pngimage"
)

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	value    uint32 // used directly when it fits in 4 bytes
}

// buildTIFF assembles a little-endian TIFF with one strip holding
// 8-bit-per-sample chunky data.
func buildTIFF(width, height uint32, samplesPerPixel int, photometric uint32, pixels []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(8)) // IFD offset

	stripOffset := uint32(8 + 2 + 9*12 + 4) // after IFD + next-IFD pointer

	entries := []ifdEntry{
		{tagImageWidth, typeLong, 1, width},
		{tagImageLength, typeLong, 1, height},
		{tagBitsPerSample, typeShort, 1, 8},
		{tagCompression, typeShort, 1, compressionNone},
		{tagPhotometricInterpretation, typeShort, 1, photometric},
		{tagStripOffsets, typeLong, 1, stripOffset},
		{tagSamplesPerPixel, typeShort, 1, uint32(samplesPerPixel)},
		{tagRowsPerStrip, typeLong, 1, height},
		{tagStripByteCounts, typeLong, 1, uint32(len(pixels))},
	}

	binary.Write(&buf, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.tag)
		binary.Write(&buf, binary.LittleEndian, e.typ)
		binary.Write(&buf, binary.LittleEndian, e.count)
		var valBuf [4]byte
		switch e.typ {
		case typeShort:
			binary.LittleEndian.PutUint16(valBuf[:2], uint16(e.value))
		default:
			binary.LittleEndian.PutUint32(valBuf[:], e.value)
		}
		buf.Write(valBuf[:])
	}
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // next IFD

	buf.Write(pixels)
	return buf.Bytes()
}

func TestDecodeGrayStrip(t *testing.T) {
	pixels := []byte{10, 20, 30, 40} // 2x2 gray
	data := buildTIFF(2, 2, 1, photoMinIsBlack, pixels)

	img, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, pngimage.Gray, img.ColorType)
	assert.EqualValues(t, 2, img.Width)
	assert.EqualValues(t, 2, img.Height)
	assert.Equal(t, uint16(10), pngimage.GetSample(img.Rows[0], 0, 0, 1, 8))
	assert.Equal(t, uint16(20), pngimage.GetSample(img.Rows[0], 1, 0, 1, 8))
	assert.Equal(t, uint16(30), pngimage.GetSample(img.Rows[1], 0, 0, 1, 8))
	assert.Equal(t, uint16(40), pngimage.GetSample(img.Rows[1], 1, 0, 1, 8))
}

func TestDecodeRGBStrip(t *testing.T) {
	pixels := []byte{
		255, 0, 0, 0, 255, 0, // row0: red, green
		0, 0, 255, 255, 255, 255, // row1: blue, white
	}
	data := buildTIFF(2, 2, 3, photoRGB, pixels)

	img, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, pngimage.RGBColor, img.ColorType)
	assert.Equal(t, uint16(255), pngimage.GetSample(img.Rows[0], 0, 0, 3, 8))
	assert.Equal(t, uint16(255), pngimage.GetSample(img.Rows[1], 1, 1, 3, 8))
}

func TestDecodeBadByteOrderMark(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("XX\x2a\x00\x08\x00\x00\x00")))
	assert.Error(t, err)
}

func TestRescaleSample(t *testing.T) {
	assert.Equal(t, uint16(255), rescaleSample(15, 4, 8))
	assert.Equal(t, uint16(0), rescaleSample(0, 4, 8))
	assert.Equal(t, uint16(5), rescaleSample(5, 8, 8))
}
