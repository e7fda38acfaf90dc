package pnm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/pngimage"
)

func TestDecodeP2Graymap(t *testing.T) {
	src := "P2\n2 1\n255\n10 250\n"
	img, err := Decode(bytes.NewReader([]byte(src)))
	require.NoError(t, err)
	assert.Equal(t, pngimage.Gray, img.ColorType)
	assert.EqualValues(t, 8, img.BitDepth)
	assert.Equal(t, uint16(10), pngimage.GetSample(img.Rows[0], 0, 0, 1, 8))
	assert.Equal(t, uint16(250), pngimage.GetSample(img.Rows[0], 1, 0, 1, 8))
}

func TestDecodeP3PixmapWithComment(t *testing.T) {
	src := "P3\n# a comment\n1 1\n255\n255 0 128\n"
	img, err := Decode(bytes.NewReader([]byte(src)))
	require.NoError(t, err)
	assert.Equal(t, pngimage.RGBColor, img.ColorType)
	assert.Equal(t, uint16(255), pngimage.GetSample(img.Rows[0], 0, 0, 3, 8))
	assert.Equal(t, uint16(0), pngimage.GetSample(img.Rows[0], 0, 1, 3, 8))
	assert.Equal(t, uint16(128), pngimage.GetSample(img.Rows[0], 0, 2, 3, 8))
}

func TestDecodeP1Bitmap(t *testing.T) {
	src := "P1\n2 1\n1 0\n"
	img, err := Decode(bytes.NewReader([]byte(src)))
	require.NoError(t, err)
	assert.Equal(t, pngimage.Gray, img.ColorType)
	// PBM's "1" means black (sample 0), "0" means white (sample 255).
	assert.Equal(t, uint16(0), pngimage.GetSample(img.Rows[0], 0, 0, 1, 8))
	assert.Equal(t, uint16(255), pngimage.GetSample(img.Rows[0], 1, 0, 1, 8))
}

func TestDecodeNonStandardMaxvalRecordsSBIT(t *testing.T) {
	src := "P2\n1 1\n100\n50\n"
	img, err := Decode(bytes.NewReader([]byte(src)))
	require.NoError(t, err)
	assert.True(t, img.SBIT.Present)
}

func TestDecodeBadSignature(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("XX\n1 1\n255\n0\n")))
	assert.Error(t, err)
}
