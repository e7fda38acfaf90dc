// Package pnm implements the PNM half of the external raster importer:
// P1/P4 (portable bitmap) to Gray, P2/P5 (graymap) to Gray, P3/P6
// (pixmap) to RGB, grounded on original_source/lib/pngxtern/pnm/pnmread.c
// for the header grammar (whitespace-separated ASCII fields, '#'
// comments running to end of line) and on spakin/netpbm's pgm.go for the
// idiomatic Go token-scanner shape.
package pnm

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngimage"
)

// Decode reads a PNM stream (P1-P6) and returns the normalized image
// model, rescaling samples to 8 or 16 bits and recording sBIT when
// maxval is not of the form 2^k-1.
func Decode(r io.Reader) (*pngimage.Image, error) {
	br := bufio.NewReader(r)

	magic, err := readToken(br)
	if err != nil {
		return nil, errors.Wrap(err, "pnm: read magic")
	}
	if len(magic) != 2 || magic[0] != 'P' || magic[1] < '1' || magic[1] > '6' {
		return nil, errors.New("pnm: bad signature")
	}
	kind := magic[1]

	width, err := readInt(br)
	if err != nil {
		return nil, errors.Wrap(err, "pnm: read width")
	}
	height, err := readInt(br)
	if err != nil {
		return nil, errors.Wrap(err, "pnm: read height")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New("pnm: non-positive dimensions")
	}

	isBitmap := kind == '1' || kind == '4'
	maxval := 1
	if !isBitmap {
		maxval, err = readInt(br)
		if err != nil {
			return nil, errors.Wrap(err, "pnm: read maxval")
		}
		if maxval <= 0 || maxval > 65535 {
			return nil, errors.New("pnm: maxval out of range")
		}
	}

	isColor := kind == '3' || kind == '6'
	isASCII := kind == '1' || kind == '2' || kind == '3'

	channels := 1
	if isColor {
		channels = 3
	}

	var depth int
	var sbit pngimage.SBIT
	if isBitmap {
		depth = 8
	} else {
		depth, sbit = chooseDepth(maxval)
	}

	colorType := pngimage.Gray
	if isColor {
		colorType = pngimage.RGBColor
	}
	img := &pngimage.Image{
		Width: uint32(width), Height: uint32(height),
		BitDepth:  uint8(depth),
		ColorType: colorType,
		SBIT:      sbit,
	}
	img.Rows = img.NewBlankRows(img.RowStride())

	if isASCII {
		if err := readASCII(br, img, width, height, channels, isBitmap, maxval); err != nil {
			return nil, err
		}
	} else if isBitmap {
		if err := readBitmapBinary(br, img, width, height); err != nil {
			return nil, err
		}
	} else {
		if err := readRasterBinary(br, img, width, height, channels, maxval); err != nil {
			return nil, err
		}
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// chooseDepth picks the smallest PNG sample depth (8 or 16 bits) that
// can hold maxval, and records sBIT when that depth's full range isn't
// exactly maxval.
func chooseDepth(maxval int) (int, pngimage.SBIT) {
	depth := 8
	target := 255
	if maxval > 255 {
		depth = 16
		target = 65535
	}
	var sbit pngimage.SBIT
	if maxval != target {
		bits := uint8(log2Ceil(maxval + 1))
		sbit = pngimage.SBIT{Present: true, Gray: bits, Red: bits, Green: bits, Blue: bits}
	}
	return depth, sbit
}

func log2Ceil(n int) int {
	bits := 0
	for (1 << uint(bits)) < n {
		bits++
	}
	return bits
}

// rescale implements (v*M+maxval/2)/maxval, M in {255, 65535}.
func rescale(v, maxval, target int) uint16 {
	return uint16((v*target + maxval/2) / maxval)
}

func readASCII(br *bufio.Reader, img *pngimage.Image, width, height, channels int, isBitmap bool, maxval int) error {
	depth := int(img.BitDepth)
	for y := 0; y < height; y++ {
		row := img.Rows[y]
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				v, err := readInt(br)
				if err != nil {
					return errors.Wrap(err, "pnm: read sample")
				}
				sample := sampleValue(v, maxval, depth, isBitmap)
				pngimage.SetSample(row, x, c, channels, depth, sample)
			}
		}
	}
	return nil
}

func readBitmapBinary(br *bufio.Reader, img *pngimage.Image, width, height int) error {
	stride := (width + 7) / 8
	buf := make([]byte, stride)
	for y := 0; y < height; y++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return errors.Wrap(err, "pnm: read bitmap row")
		}
		row := img.Rows[y]
		for x := 0; x < width; x++ {
			bit := (buf[x/8] >> uint(7-x%8)) & 1
			pngimage.SetSample(row, x, 0, 1, 8, sampleValue(int(bit), 1, 8, true))
		}
	}
	return nil
}

func readRasterBinary(br *bufio.Reader, img *pngimage.Image, width, height, channels, maxval int) error {
	depth := int(img.BitDepth)
	bytesPerSample := 1
	if maxval > 255 {
		bytesPerSample = 2
	}
	stride := width * channels * bytesPerSample
	buf := make([]byte, stride)
	for y := 0; y < height; y++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return errors.Wrap(err, "pnm: read raster row")
		}
		row := img.Rows[y]
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				var v int
				idx := (x*channels + c) * bytesPerSample
				if bytesPerSample == 1 {
					v = int(buf[idx])
				} else {
					v = int(binary.BigEndian.Uint16(buf[idx : idx+2]))
				}
				pngimage.SetSample(row, x, c, channels, depth, sampleValue(v, maxval, depth, false))
			}
		}
	}
	return nil
}

// sampleValue rescales one raw PNM sample to the destination bit depth.
// PBM's convention inverts polarity: a 1 bit means black, so it is
// rescaled as (1-v) against maxval=1 before the common formula applies.
func sampleValue(v, maxval, depth int, isBitmap bool) uint16 {
	if isBitmap {
		v = 1 - v
		maxval = 1
	}
	target := 255
	if depth == 16 {
		target = 65535
	}
	return rescale(v, maxval, target)
}

// readToken reads one whitespace-delimited token, skipping '#' comments
// that run to end of line, per the PNM header grammar.
func readToken(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}
		if b == '#' {
			for {
				c, err := br.ReadByte()
				if err != nil || c == '\n' {
					break
				}
			}
			continue
		}
		if isSpace(b) {
			if len(buf) > 0 {
				return string(buf), nil
			}
			continue
		}
		buf = append(buf, b)
	}
}

func readInt(br *bufio.Reader) (int, error) {
	tok, err := readToken(br)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range []byte(tok) {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("pnm: invalid integer token %q", tok)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}
