package encoder

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/pngchunk"
	"github.com/optipng-go/optipng/internal/pngimage"
	"github.com/optipng-go/optipng/internal/transform"
)

func solidGray(v uint8, w, h int) *pngimage.Image {
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth: 8, ColorType: pngimage.RGBAlpha,
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pngimage.SetSample(img.Rows[y], x, 0, 4, 8, uint16(v))
			pngimage.SetSample(img.Rows[y], x, 1, 4, 8, uint16(v))
			pngimage.SetSample(img.Rows[y], x, 2, 4, 8, uint16(v))
			pngimage.SetSample(img.Rows[y], x, 3, 4, 8, 255)
		}
	}
	return img
}

func defaultParams() Params {
	return Params{Filter: FilterAdaptive, Strategy: StrategyDefault, Level: 6, MemLevel: 8, WindowBits: 15}
}

func TestEncode_SingleIDATAndSignature(t *testing.T) {
	img := solidGray(42, 4, 4)
	var buf bytes.Buffer
	res, err := Encode(&buf, img, transform.Spec{}, defaultParams(), -1)
	require.NoError(t, err)
	assert.Greater(t, res.IDATSize, 0)

	b := buf.Bytes()
	require.True(t, len(b) > 8)
	assert.Equal(t, Signature[:], b[:8])

	count := countChunks(t, b[8:], "IDAT")
	assert.Equal(t, 1, count)
}

func TestEncode_IENDPresent(t *testing.T) {
	img := solidGray(1, 2, 2)
	var buf bytes.Buffer
	_, err := Encode(&buf, img, transform.Spec{}, defaultParams(), -1)
	require.NoError(t, err)
	assert.Equal(t, 1, countChunks(t, buf.Bytes()[8:], "IEND"))
}

func TestTrial_OversizeAbandonsEarly(t *testing.T) {
	img := solidGray(7, 64, 64)
	_, err := Trial(img, defaultParams(), 4)
	assert.ErrorIs(t, err, ErrOversize)
}

func TestTrial_MatchesEncodeIDATSize(t *testing.T) {
	img := solidGray(9, 8, 8)
	params := Params{Filter: FilterNone, Strategy: StrategyDefault, Level: 6, MemLevel: 8, WindowBits: 15}

	trialSize, err := Trial(img, params, -1)
	require.NoError(t, err)

	var buf bytes.Buffer
	res, err := Encode(&buf, img, transform.Spec{}, params, -1)
	require.NoError(t, err)
	assert.Equal(t, trialSize, res.IDATSize)
}

func TestEncode_StripsMetadataChunk(t *testing.T) {
	img := solidGray(3, 2, 2)
	img.Unknown = []pngchunk.Unknown{
		{Code: pngchunk.TEXT, Location: pngchunk.BeforeIDAT, Data: []byte("Comment\x00hello")},
	}

	var withChunk bytes.Buffer
	_, err := Encode(&withChunk, img, transform.Spec{}, defaultParams(), -1)
	require.NoError(t, err)
	assert.Equal(t, 1, countChunks(t, withChunk.Bytes()[8:], "tEXt"))

	var stripped bytes.Buffer
	_, err = Encode(&stripped, img, transform.Spec{StripAll: true}, defaultParams(), -1)
	require.NoError(t, err)
	assert.Equal(t, 0, countChunks(t, stripped.Bytes()[8:], "tEXt"))
}

// countChunks scans a raw chunk stream (post-signature) and counts
// occurrences of fourcc.
func countChunks(t *testing.T, data []byte, fourcc string) int {
	t.Helper()
	count := 0
	for i := 0; i+8 <= len(data); {
		length := int(data[i])<<24 | int(data[i+1])<<16 | int(data[i+2])<<8 | int(data[i+3])
		code := string(data[i+4 : i+8])
		if code == fourcc {
			count++
		}
		i += 8 + length + 4
	}
	return count
}
