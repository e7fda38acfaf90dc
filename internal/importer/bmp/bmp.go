// Package bmp implements the BMP half of the external raster importer,
// grounded on original_source/lib/pngxtern/pngxrbmp.c's pngx_read_bmp:
// same BITMAPFILEHEADER/BITMAPINFOHEADER field layout, same BI_RGB-only
// restriction, same per-depth dispatch (1/2/4/8 bpp to a palette image,
// 16/24/32 bpp to RGB), same bottom-up-by-default row order and 555
// expansion formula.
package bmp

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngimage"
)

const (
	fileHeaderSize = 14
	biRGB          = 0
	biBitfields    = 3
)

// Decode reads a BMP stream (already identified by its "BM" signature)
// and returns the normalized image model. Only BI_RGB (and BI_BITFIELDS
// with the default 555/565/888 masks, treated identically to BI_RGB for
// the depths this importer supports) is accepted; any other compression
// fails.
func Decode(r io.Reader) (*pngimage.Image, error) {
	var fh [fileHeaderSize]byte
	if _, err := io.ReadFull(r, fh[:]); err != nil {
		return nil, errors.Wrap(err, "bmp: read file header")
	}
	if fh[0] != 'B' || fh[1] != 'M' {
		return nil, errors.New("bmp: bad signature")
	}
	offBits := binary.LittleEndian.Uint32(fh[10:14])

	var biSizeBuf [4]byte
	if _, err := io.ReadFull(r, biSizeBuf[:]); err != nil {
		return nil, errors.Wrap(err, "bmp: read info header size")
	}
	biSize := binary.LittleEndian.Uint32(biSizeBuf[:])
	if biSize < 40 {
		return nil, errors.Errorf("bmp: unsupported info header size %d", biSize)
	}

	rest := make([]byte, biSize-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, errors.Wrap(err, "bmp: read info header body")
	}

	width := int32(binary.LittleEndian.Uint32(rest[0:4]))
	height := int32(binary.LittleEndian.Uint32(rest[4:8]))
	bitCount := binary.LittleEndian.Uint16(rest[10:12])
	compression := binary.LittleEndian.Uint32(rest[12:16])
	clrUsed := binary.LittleEndian.Uint32(rest[28:32])

	if compression != biRGB && compression != biBitfields {
		return nil, errors.Errorf("bmp: unsupported compression method %d", compression)
	}
	// BI_BITFIELDS carries three/four DWORD channel masks immediately
	// after the info header; this importer only recognizes the standard
	// 555/565/888/8888 layouts, so the masks themselves are skipped
	// rather than interpreted.
	if compression == biBitfields {
		skip := 12
		if biSize >= 108 {
			skip = 0 // already included in a V4/V5 header
		}
		if skip > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
				return nil, errors.Wrap(err, "bmp: skip bitfield masks")
			}
		}
	}

	topDown := height < 0
	h := int(height)
	if topDown {
		h = -h
	}
	w := int(width)
	if w <= 0 || h <= 0 {
		return nil, errors.New("bmp: non-positive dimensions")
	}

	var palette []pngimage.RGB8
	if bitCount <= 8 {
		n := int(clrUsed)
		if n == 0 {
			n = 1 << bitCount
		}
		palette = make([]pngimage.RGB8, n)
		for i := range palette {
			var rgbq [4]byte
			if _, err := io.ReadFull(r, rgbq[:]); err != nil {
				return nil, errors.Wrap(err, "bmp: read palette")
			}
			palette[i] = pngimage.RGB8{R: rgbq[2], G: rgbq[1], B: rgbq[0]}
		}
	}

	// offBits, when present, is authoritative for where pixel data
	// starts; skip any gap between what's been read and that offset
	// (palette padding, V4/V5 color-management fields, etc).
	consumed := int64(fileHeaderSize) + int64(biSize)
	if bitCount <= 8 {
		consumed += int64(len(palette)) * 4
	}
	if compression == biBitfields && biSize < 108 {
		consumed += 12
	}
	if offBits > 0 && int64(offBits) > consumed {
		if _, err := io.CopyN(io.Discard, r, int64(offBits)-consumed); err != nil {
			return nil, errors.Wrap(err, "bmp: seek to pixel data")
		}
	}

	switch bitCount {
	case 1, 2, 4, 8:
		return decodePalette(r, w, h, int(bitCount), palette, topDown)
	case 16:
		return decode16(r, w, h, topDown)
	case 24:
		return decode24(r, w, h, topDown)
	case 32:
		return decode32(r, w, h, topDown)
	default:
		return nil, errors.Errorf("bmp: unsupported bit depth %d", bitCount)
	}
}

// rowOrder returns the destination row index for source row srcY (0 =
// first row read off the stream), honoring BMP's default bottom-up
// storage: bottom-up rows are reversed so row 0 of the image model is
// the topmost row.
func rowOrder(srcY, height int, topDown bool) int {
	if topDown {
		return srcY
	}
	return height - 1 - srcY
}

func decodePalette(r io.Reader, w, h, bitDepth int, palette []pngimage.RGB8, topDown bool) (*pngimage.Image, error) {
	padded := paddedRowBytes(w, bitDepth)
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth:  uint8(bitDepth),
		ColorType: pngimage.PaletteColor,
		Palette:   palette,
	}
	img.Rows = img.NewBlankRows(img.RowStride())

	buf := make([]byte, padded)
	for srcY := 0; srcY < h; srcY++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "bmp: read scanline")
		}
		dstY := rowOrder(srcY, h, topDown)
		for x := 0; x < w; x++ {
			v := pngimage.GetSample(buf, x, 0, 1, bitDepth)
			pngimage.SetSample(img.Rows[dstY], x, 0, 1, bitDepth, v)
		}
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func decode16(r io.Reader, w, h int, topDown bool) (*pngimage.Image, error) {
	padded := paddedRowBytes(w, 16)
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth:  8,
		ColorType: pngimage.RGBColor,
	}
	img.Rows = img.NewBlankRows(img.RowStride())

	buf := make([]byte, padded)
	for srcY := 0; srcY < h; srcY++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "bmp: read scanline")
		}
		dstY := rowOrder(srcY, h, topDown)
		dst := img.Rows[dstY]
		for x := 0; x < w; x++ {
			px := binary.LittleEndian.Uint16(buf[x*2 : x*2+2])
			r5 := (px >> 10) & 0x1F
			g5 := (px >> 5) & 0x1F
			b5 := px & 0x1F
			pngimage.SetSample(dst, x, 0, 3, 8, expand555(r5))
			pngimage.SetSample(dst, x, 1, 3, 8, expand555(g5))
			pngimage.SetSample(dst, x, 2, 3, 8, expand555(b5))
		}
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// expand555 rescales a 5-bit channel sample to 8 bits via
// (v*255+15)/31.
func expand555(v uint16) uint16 {
	return (v*255 + 15) / 31
}

func decode24(r io.Reader, w, h int, topDown bool) (*pngimage.Image, error) {
	padded := paddedRowBytes(w, 24)
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth:  8,
		ColorType: pngimage.RGBColor,
	}
	img.Rows = img.NewBlankRows(img.RowStride())

	buf := make([]byte, padded)
	for srcY := 0; srcY < h; srcY++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "bmp: read scanline")
		}
		dstY := rowOrder(srcY, h, topDown)
		dst := img.Rows[dstY]
		for x := 0; x < w; x++ {
			b, g, rr := buf[x*3], buf[x*3+1], buf[x*3+2]
			pngimage.SetSample(dst, x, 0, 3, 8, uint16(rr))
			pngimage.SetSample(dst, x, 1, 3, 8, uint16(g))
			pngimage.SetSample(dst, x, 2, 3, 8, uint16(b))
		}
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func decode32(r io.Reader, w, h int, topDown bool) (*pngimage.Image, error) {
	// 32bpp rows are always a multiple of 4 bytes already.
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth:  8,
		ColorType: pngimage.RGBColor,
	}
	img.Rows = img.NewBlankRows(img.RowStride())

	buf := make([]byte, w*4)
	for srcY := 0; srcY < h; srcY++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "bmp: read scanline")
		}
		dstY := rowOrder(srcY, h, topDown)
		dst := img.Rows[dstY]
		for x := 0; x < w; x++ {
			b, g, rr := buf[x*4], buf[x*4+1], buf[x*4+2]
			pngimage.SetSample(dst, x, 0, 3, 8, uint16(rr))
			pngimage.SetSample(dst, x, 1, 3, 8, uint16(g))
			pngimage.SetSample(dst, x, 2, 3, 8, uint16(b))
		}
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// paddedRowBytes returns a BMP scanline's byte length, padded up to the
// next 4-byte boundary per the DIB row-alignment rule.
func paddedRowBytes(width, bitDepth int) int {
	bits := width * bitDepth
	bytes := (bits + 7) / 8
	return (bytes + 3) &^ 3
}
