package gif

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/pngimage"
)

// buildGIF assembles a minimal single-image GIF87a stream: a global
// color table, one image descriptor covering the whole logical screen,
// and LZW-compressed indices built the same way compress/lzw's own
// writer does it (LSB-first, minimum code size 2 for a <=4-color table).
func buildGIF(width, height int, table []byte, indices []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("GIF87a")

	binary.Write(&buf, binary.LittleEndian, uint16(width))
	binary.Write(&buf, binary.LittleEndian, uint16(height))
	buf.WriteByte(0x80 | 0x01) // global color table present, size = 2^(1+1) = 4
	buf.WriteByte(0)          // background color index
	buf.WriteByte(0)          // pixel aspect ratio
	buf.Write(table)

	buf.WriteByte(blockImageDescriptor)
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // left
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // top
	binary.Write(&buf, binary.LittleEndian, uint16(width))
	binary.Write(&buf, binary.LittleEndian, uint16(height))
	buf.WriteByte(0) // no local color table, not interlaced

	const minCodeSize = 2
	buf.WriteByte(minCodeSize)

	var compressed bytes.Buffer
	lw := lzw.NewWriter(&compressed, lzw.LSB, minCodeSize)
	lw.Write(indices)
	lw.Close()

	data := compressed.Bytes()
	for len(data) > 0 {
		n := len(data)
		if n > 255 {
			n = 255
		}
		buf.WriteByte(byte(n))
		buf.Write(data[:n])
		data = data[n:]
	}
	buf.WriteByte(0) // block terminator

	buf.WriteByte(blockTrailer)
	return buf.Bytes()
}

func TestDecodeSingleImage(t *testing.T) {
	table := []byte{
		0xFF, 0x00, 0x00, // index 0: red
		0x00, 0xFF, 0x00, // index 1: green
		0x00, 0x00, 0xFF, // index 2: blue
		0x00, 0x00, 0x00, // index 3: black
	}
	indices := []byte{0, 1, 2, 3}
	data := buildGIF(4, 1, table, indices)

	result, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.False(t, result.MultipleImages)
	img := result.Image
	assert.Equal(t, pngimage.PaletteColor, img.ColorType)
	require.Len(t, img.Palette, 4)
	for x, want := range indices {
		got := pngimage.GetSample(img.Rows[0], x, 0, 1, 8)
		assert.Equal(t, uint16(want), got)
	}
}

func TestDecodeBadSignature(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("NOTAGIF...")), nil)
	assert.Error(t, err)
}

func TestDeinterlace(t *testing.T) {
	width, height := 1, 8
	indices := make([]byte, width*height)
	// passes touch rows 0; 4; 2,6; 1,3,5,7 in that source order.
	order := []int{0, 4, 2, 6, 1, 3, 5, 7}
	for i, row := range order {
		indices[i] = byte(row)
	}
	rows := make([][]byte, height)
	deinterlace(indices, width, height, rows)
	for y := 0; y < height; y++ {
		assert.Equal(t, byte(y), rows[y][0])
	}
}
