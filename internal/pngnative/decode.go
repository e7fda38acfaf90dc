// Package pngnative implements the native PNG decode path the importer
// dispatch falls back to for PNG-signatured input: read every chunk,
// concatenate the IDAT datastream, inflate and unfilter it into a
// pixel-addressable pngimage.Image. Only the PNG signature is accepted;
// MNG/JNG-signatured input is rejected.
//
// Grounded on png.go's chunk loop (ParsePng/readChunk) and per-chunk
// field layouts (chunk.go's IHDR/PLTE/BKGD/TRNS/HIST parsers),
// generalized from "hold each chunk struct" to "build the normalized
// image model", plus the shared internal/pngchunk.Reader this package
// and the copy path both consume chunk-by-chunk.
package pngnative

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngchunk"
	"github.com/optipng-go/optipng/internal/pngimage"
)

// Decode reads a PNG datastream from r and returns its normalized image
// model. The returned image has already passed Validate.
func Decode(r io.Reader) (*pngimage.Image, error) {
	if err := pngchunk.ReadSignature(r); err != nil {
		return nil, err
	}

	cr := pngchunk.NewReader(r)
	img := &pngimage.Image{}

	var idat bytes.Buffer
	seenPLTE := false
	seenIDAT := false
	haveIHDR := false

	for {
		chunk, err := cr.Next()
		if err != nil {
			return nil, err
		}

		switch chunk.Code {
		case pngchunk.IHDR:
			if err := parseIHDR(img, chunk.Data); err != nil {
				return nil, err
			}
			haveIHDR = true

		case pngchunk.PLTE:
			if err := parsePLTE(img, chunk.Data); err != nil {
				return nil, err
			}
			seenPLTE = true

		case pngchunk.IDAT:
			if _, err := idat.Write(chunk.Data); err != nil {
				return nil, errors.Wrap(err, "pngnative: buffer IDAT data")
			}
			seenIDAT = true

		case pngchunk.TRNS:
			if err := parseTRNS(img, chunk.Data); err != nil {
				return nil, err
			}

		case pngchunk.BKGD:
			if err := parseBKGD(img, chunk.Data); err != nil {
				return nil, err
			}

		case pngchunk.HIST:
			if err := parseHIST(img, chunk.Data); err != nil {
				return nil, err
			}

		case pngchunk.SBIT:
			if err := parseSBIT(img, chunk.Data); err != nil {
				return nil, err
			}

		case pngchunk.DSIG:
			img.DigitalSignature = true

		case pngchunk.ACTL:
			if len(chunk.Data) >= 4 {
				img.APNGFrameCount = int(binary.BigEndian.Uint32(chunk.Data[:4]))
			}

		case pngchunk.FCTL, pngchunk.FDAT:
			// carried through as unknown chunks; frame count already came
			// from acTL.

		case pngchunk.IEND:
			if !haveIHDR {
				return nil, errors.New("pngnative: missing IHDR")
			}
			if !seenIDAT {
				return nil, errors.New("pngnative: missing IDAT")
			}
			if err := inflateInto(img, idat.Bytes()); err != nil {
				return nil, err
			}
			if err := img.Validate(); err != nil {
				return nil, err
			}
			return img, nil

		default:
			// Images with no PLTE have no "before PLTE" position to
			// distinguish; everything pre-IDAT is simply before IDAT.
			loc := pngchunk.BeforePLTE
			switch {
			case seenIDAT:
				loc = pngchunk.AfterIDAT
			case seenPLTE || img.ColorType != pngimage.PaletteColor:
				loc = pngchunk.BeforeIDAT
			}
			img.Unknown = append(img.Unknown, pngchunk.Unknown{
				Code:     chunk.Code,
				Location: loc,
				Data:     append([]byte(nil), chunk.Data...),
			})
		}
	}
}

func parseIHDR(img *pngimage.Image, data []byte) error {
	if len(data) < 13 {
		return errors.New("pngnative: IHDR too short")
	}
	img.Width = binary.BigEndian.Uint32(data[0:4])
	img.Height = binary.BigEndian.Uint32(data[4:8])
	img.BitDepth = data[8]
	ct, err := pngimage.ColorTypeFromIHDR(data[9])
	if err != nil {
		return err
	}
	img.ColorType = ct
	if data[10] != 0 {
		return errors.New("pngnative: unsupported compression method")
	}
	if data[11] != 0 {
		return errors.New("pngnative: unsupported filter method")
	}
	switch data[12] {
	case 0:
		img.Interlace = pngimage.InterlaceNone
	case 1:
		img.Interlace = pngimage.InterlaceAdam7
	default:
		return errors.New("pngnative: unsupported interlace method")
	}
	return nil
}

func parsePLTE(img *pngimage.Image, data []byte) error {
	if len(data)%3 != 0 {
		return errors.New("pngnative: PLTE length not a multiple of 3")
	}
	n := len(data) / 3
	img.Palette = make([]pngimage.RGB8, n)
	for i := 0; i < n; i++ {
		img.Palette[i] = pngimage.RGB8{R: data[i*3], G: data[i*3+1], B: data[i*3+2]}
	}
	return nil
}

func parseTRNS(img *pngimage.Image, data []byte) error {
	switch img.ColorType {
	case pngimage.PaletteColor:
		img.Trans.Kind = pngimage.TransPalette
		img.Trans.PaletteAlpha = append([]uint8(nil), data...)
	case pngimage.Gray:
		if len(data) < 2 {
			return errors.New("pngnative: tRNS too short for gray")
		}
		img.Trans.Kind = pngimage.TransColorKey
		img.Trans.Key[0] = binary.BigEndian.Uint16(data[0:2])
	case pngimage.RGBColor:
		if len(data) < 6 {
			return errors.New("pngnative: tRNS too short for rgb")
		}
		img.Trans.Kind = pngimage.TransColorKey
		img.Trans.Key[0] = binary.BigEndian.Uint16(data[0:2])
		img.Trans.Key[1] = binary.BigEndian.Uint16(data[2:4])
		img.Trans.Key[2] = binary.BigEndian.Uint16(data[4:6])
	default:
		return errors.New("pngnative: tRNS not allowed for this color type")
	}
	return nil
}

func parseBKGD(img *pngimage.Image, data []byte) error {
	img.BKGD.Present = true
	switch img.ColorType {
	case pngimage.PaletteColor:
		if len(data) < 1 {
			return errors.New("pngnative: bKGD too short for palette")
		}
		img.BKGD.PaletteIndex = int(data[0])
	case pngimage.Gray, pngimage.GrayAlpha:
		if len(data) < 2 {
			return errors.New("pngnative: bKGD too short for gray")
		}
		img.BKGD.Gray = binary.BigEndian.Uint16(data[0:2])
	default:
		if len(data) < 6 {
			return errors.New("pngnative: bKGD too short for rgb")
		}
		img.BKGD.Red = binary.BigEndian.Uint16(data[0:2])
		img.BKGD.Green = binary.BigEndian.Uint16(data[2:4])
		img.BKGD.Blue = binary.BigEndian.Uint16(data[4:6])
	}
	return nil
}

func parseHIST(img *pngimage.Image, data []byte) error {
	if len(data)%2 != 0 {
		return errors.New("pngnative: hIST length must be even")
	}
	n := len(data) / 2
	img.HIST = make([]uint16, n)
	for i := 0; i < n; i++ {
		img.HIST[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

func parseSBIT(img *pngimage.Image, data []byte) error {
	img.SBIT.Present = true
	switch img.ColorType {
	case pngimage.Gray:
		if len(data) < 1 {
			return errors.New("pngnative: sBIT too short")
		}
		img.SBIT.Gray = data[0]
	case pngimage.GrayAlpha:
		if len(data) < 2 {
			return errors.New("pngnative: sBIT too short")
		}
		img.SBIT.Gray = data[0]
		img.SBIT.Alpha = data[1]
	case pngimage.RGBColor, pngimage.PaletteColor:
		if len(data) < 3 {
			return errors.New("pngnative: sBIT too short")
		}
		img.SBIT.Red = data[0]
		img.SBIT.Green = data[1]
		img.SBIT.Blue = data[2]
	case pngimage.RGBAlpha:
		if len(data) < 4 {
			return errors.New("pngnative: sBIT too short")
		}
		img.SBIT.Red = data[0]
		img.SBIT.Green = data[1]
		img.SBIT.Blue = data[2]
		img.SBIT.Alpha = data[3]
	}
	return nil
}

// inflateInto decompresses joined (the concatenation of every IDAT chunk's
// payload) and unfilters it into img.Rows, handling both non-interlaced
// and Adam7-interlaced layouts.
func inflateInto(img *pngimage.Image, joined []byte) error {
	zr, err := zlib.NewReader(bytes.NewReader(joined))
	if err != nil {
		return errors.Wrap(err, "pngnative: open IDAT deflate stream")
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return errors.Wrap(err, "pngnative: inflate IDAT")
	}

	bpp := bppForUnfilter(img.Channels(), int(img.BitDepth))

	if img.Interlace == pngimage.InterlaceNone {
		rows, err := unfilterPlane(raw, int(img.Width), int(img.Height), img.BitsPerPixel(), bpp)
		if err != nil {
			return err
		}
		img.Rows = rows
		return nil
	}

	return inflateAdam7(img, raw, bpp)
}

func bppForUnfilter(channels, bitDepth int) int {
	bits := channels * bitDepth
	if bits < 8 {
		return 1
	}
	return bits / 8
}

// unfilterPlane reverses the per-row adaptive filter for a single,
// non-interlaced (or single Adam7 pass) pixel plane of the given pixel
// dimensions.
func unfilterPlane(raw []byte, width, height, bitsPerPixel, bpp int) ([][]byte, error) {
	stride := pngimage.RowStride(width, bitsPerPixel)
	rows := make([][]byte, height)
	var prev []byte
	offset := 0
	for y := 0; y < height; y++ {
		if offset >= len(raw) {
			return nil, errors.New("pngnative: truncated scanline data")
		}
		filterType := raw[offset]
		offset++
		if offset+stride > len(raw) {
			return nil, errors.New("pngnative: truncated scanline data")
		}
		cur := append([]byte(nil), raw[offset:offset+stride]...)
		offset += stride

		if err := unfilterRow(cur, prev, bpp, filterType); err != nil {
			return nil, err
		}
		rows[y] = cur
		prev = cur
	}
	return rows, nil
}

func unfilterRow(cur, prev []byte, bpp int, filterType byte) error {
	switch filterType {
	case 0: // None
	case 1: // Sub
		for i := range cur {
			var a byte
			if i >= bpp {
				a = cur[i-bpp]
			}
			cur[i] += a
		}
	case 2: // Up
		for i := range cur {
			var b byte
			if prev != nil {
				b = prev[i]
			}
			cur[i] += b
		}
	case 3: // Average
		for i := range cur {
			var a, b int
			if i >= bpp {
				a = int(cur[i-bpp])
			}
			if prev != nil {
				b = int(prev[i])
			}
			cur[i] += byte((a + b) / 2)
		}
	case 4: // Paeth
		for i := range cur {
			var a, b, c byte
			if i >= bpp {
				a = cur[i-bpp]
			}
			if prev != nil {
				b = prev[i]
			}
			if prev != nil && i >= bpp {
				c = prev[i-bpp]
			}
			cur[i] += paethPredict(a, b, c)
		}
	default:
		return errors.Errorf("pngnative: invalid filter type %d", filterType)
	}
	return nil
}

func paethPredict(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := absInt(p - int(a))
	pb := absInt(p - int(b))
	pc := absInt(p - int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// adam7Pass describes one of the seven interlace passes: starting pixel
// offset and stride along each axis.
type adam7Pass struct {
	xStart, yStart, xStep, yStep int
}

var adam7Passes = [7]adam7Pass{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

func inflateAdam7(img *pngimage.Image, raw []byte, bpp int) error {
	width, height := int(img.Width), int(img.Height)
	bitDepth := int(img.BitDepth)
	channels := img.Channels()
	stride := img.RowStride()
	img.Rows = img.NewBlankRows(stride)

	offset := 0
	for _, pass := range adam7Passes {
		passWidth := (width - pass.xStart + pass.xStep - 1) / pass.xStep
		passHeight := (height - pass.yStart + pass.yStep - 1) / pass.yStep
		if passWidth <= 0 || passHeight <= 0 {
			continue
		}

		passRows, consumed, err := unfilterPlaneAt(raw[offset:], passWidth, passHeight, channels*bitDepth, bpp)
		if err != nil {
			return err
		}
		offset += consumed

		for py := 0; py < passHeight; py++ {
			destY := pass.yStart + py*pass.yStep
			for px := 0; px < passWidth; px++ {
				destX := pass.xStart + px*pass.xStep
				for ch := 0; ch < channels; ch++ {
					v := pngimage.GetSample(passRows[py], px, ch, channels, bitDepth)
					pngimage.SetSample(img.Rows[destY], destX, ch, channels, bitDepth, v)
				}
			}
		}
	}
	return nil
}

// unfilterPlaneAt is unfilterPlane but also reports how many source bytes
// it consumed, since Adam7 passes share one deflate stream back to back.
func unfilterPlaneAt(raw []byte, width, height, bitsPerPixel, bpp int) ([][]byte, int, error) {
	stride := pngimage.RowStride(width, bitsPerPixel)
	rows := make([][]byte, height)
	var prev []byte
	offset := 0
	for y := 0; y < height; y++ {
		if offset >= len(raw) {
			return nil, 0, errors.New("pngnative: truncated interlaced scanline data")
		}
		filterType := raw[offset]
		offset++
		if offset+stride > len(raw) {
			return nil, 0, errors.New("pngnative: truncated interlaced scanline data")
		}
		cur := append([]byte(nil), raw[offset:offset+stride]...)
		offset += stride

		if err := unfilterRow(cur, prev, bpp, filterType); err != nil {
			return nil, 0, err
		}
		rows[y] = cur
		prev = cur
	}
	return rows, offset, nil
}
