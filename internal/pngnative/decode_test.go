package pngnative

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/encoder"
	"github.com/optipng-go/optipng/internal/pngchunk"
	"github.com/optipng-go/optipng/internal/pngimage"
	"github.com/optipng-go/optipng/internal/transform"
)

func gradientRGBA(w, h int) *pngimage.Image {
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth: 8, ColorType: pngimage.RGBAlpha,
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pngimage.SetSample(img.Rows[y], x, 0, 4, 8, uint16((x*7+y)%256))
			pngimage.SetSample(img.Rows[y], x, 1, 4, 8, uint16((y*13+x)%256))
			pngimage.SetSample(img.Rows[y], x, 2, 4, 8, uint16((x+y)%256))
			pngimage.SetSample(img.Rows[y], x, 3, 4, 8, 255)
		}
	}
	return img
}

func palettedImage(w, h int) *pngimage.Image {
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth: 8, ColorType: pngimage.PaletteColor,
		Palette: []pngimage.RGB8{{R: 10, G: 20, B: 30}, {R: 200, G: 100, B: 50}, {R: 0, G: 0, B: 0}},
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pngimage.SetSample(img.Rows[y], x, 0, 1, 8, uint16((x+y)%3))
		}
	}
	return img
}

func encodeRoundTrip(t *testing.T, img *pngimage.Image, params encoder.Params) *pngimage.Image {
	t.Helper()
	var buf bytes.Buffer
	_, err := encoder.Encode(&buf, img, transform.Spec{}, params, -1)
	require.NoError(t, err)
	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return decoded
}

func TestDecode_RoundTripsRGBA(t *testing.T) {
	img := gradientRGBA(9, 7)
	params := encoder.Params{Filter: encoder.FilterAdaptive, Strategy: encoder.StrategyDefault, Level: 6, MemLevel: 8, WindowBits: 15}
	decoded := encodeRoundTrip(t, img, params)
	assert.True(t, pngimage.Equivalent(img, decoded))
}

func TestDecode_RoundTripsPalette(t *testing.T) {
	img := palettedImage(5, 5)
	params := encoder.Params{Filter: encoder.FilterNone, Strategy: encoder.StrategyDefault, Level: 6, MemLevel: 8, WindowBits: 15}
	decoded := encodeRoundTrip(t, img, params)
	assert.True(t, pngimage.Equivalent(img, decoded))
	assert.Equal(t, pngimage.PaletteColor, decoded.ColorType)
}

func TestDecode_EachFilterType(t *testing.T) {
	for _, f := range []encoder.Filter{encoder.FilterNone, encoder.FilterSub, encoder.FilterUp, encoder.FilterAverage, encoder.FilterPaeth, encoder.FilterAdaptive} {
		img := gradientRGBA(6, 6)
		params := encoder.Params{Filter: f, Strategy: encoder.StrategyDefault, Level: 6, MemLevel: 8, WindowBits: 15}
		decoded := encodeRoundTrip(t, img, params)
		assert.True(t, pngimage.Equivalent(img, decoded), "filter %d", f)
	}
}

func TestDecode_RejectsMissingIDAT(t *testing.T) {
	img := gradientRGBA(2, 2)
	var buf bytes.Buffer
	_, err := encoder.Encode(&buf, img, transform.Spec{}, encoder.Params{Filter: encoder.FilterNone, Strategy: encoder.StrategyDefault, Level: 6, MemLevel: 8, WindowBits: 15}, -1)
	require.NoError(t, err)

	// Corrupt: truncate right after the signature so no chunks at all follow.
	truncated := buf.Bytes()[:8]
	_, err = Decode(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestDecode_UnknownChunkSurvivesWithLocation(t *testing.T) {
	img := gradientRGBA(3, 3)
	img.Unknown = []pngchunk.Unknown{
		{Code: pngchunk.TEXT, Location: pngchunk.BeforeIDAT, Data: []byte("Comment\x00hi")},
	}
	var buf bytes.Buffer
	_, err := encoder.Encode(&buf, img, transform.Spec{}, encoder.Params{Filter: encoder.FilterNone, Strategy: encoder.StrategyDefault, Level: 6, MemLevel: 8, WindowBits: 15}, -1)
	require.NoError(t, err)
	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, decoded.Unknown, 1)
	assert.Equal(t, pngchunk.TEXT, decoded.Unknown[0].Code)
	assert.Equal(t, pngchunk.BeforeIDAT, decoded.Unknown[0].Location)
	assert.Equal(t, []byte("Comment\x00hi"), decoded.Unknown[0].Data)
}
