// Package tiff implements the TIFF half of the external raster
// importer: uncompressed, chunky, non-paletted TIFF only, grounded on
// original_source/src/minitiff/tiffread.c for the IFD/tag layout this
// importer walks (ImageWidth, ImageLength, BitsPerSample, Compression,
// PhotometricInterpretation, StripOffsets, SamplesPerPixel, RowsPerStrip,
// StripByteCounts, PlanarConfiguration) and on mdouchement/tiff's reader
// for the idiomatic Go IFD-entry decoding shape (a byte-order-aware
// reader plus a tag->values map built from 12-byte directory entries).
package tiff

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngimage"
)

// Baseline tag IDs this importer understands.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagExtraSamples              = 338
)

const (
	compressionNone   = 1
	photoMinIsWhite   = 0
	photoMinIsBlack   = 1
	photoRGB          = 2
	planarChunky      = 1
	typeByte          = 1
	typeASCII         = 2
	typeShort         = 3
	typeLong          = 4
	typeRational      = 5
)

// Decode reads an uncompressed, chunky TIFF stream and returns the
// normalized image model.
func Decode(r io.Reader) (*pngimage.Image, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "tiff: read stream")
	}
	if len(all) < 8 {
		return nil, errors.New("tiff: truncated header")
	}

	var order binary.ByteOrder
	switch {
	case all[0] == 'I' && all[1] == 'I':
		order = binary.LittleEndian
	case all[0] == 'M' && all[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, errors.New("tiff: bad byte-order mark")
	}
	magic := order.Uint16(all[2:4])
	if magic != 42 {
		return nil, errors.New("tiff: bad magic number")
	}
	ifdOffset := order.Uint32(all[4:8])

	tags, err := readIFD(all, order, ifdOffset)
	if err != nil {
		return nil, err
	}

	width := tags.uint32(tagImageWidth, 0)
	height := tags.uint32(tagImageLength, 0)
	if width == 0 || height == 0 {
		return nil, errors.New("tiff: missing ImageWidth/ImageLength")
	}

	if compression := tags.uint32(tagCompression, compressionNone); compression != compressionNone {
		return nil, errors.Errorf("tiff: unsupported compression %d", compression)
	}
	if planar := tags.uint32(tagPlanarConfiguration, planarChunky); planar != planarChunky {
		return nil, errors.New("tiff: only chunky (interleaved) planar configuration is supported")
	}

	samplesPerPixel := int(tags.uint32(tagSamplesPerPixel, 1))
	if samplesPerPixel < 1 || samplesPerPixel > 4 {
		return nil, errors.Errorf("tiff: unsupported samples per pixel %d", samplesPerPixel)
	}

	bitsPerSampleVals := tags.values(tagBitsPerSample)
	bitsPerSample := 8
	if len(bitsPerSampleVals) > 0 {
		bitsPerSample = int(bitsPerSampleVals[0])
	}
	if bitsPerSample > 16 {
		return nil, errors.Errorf("tiff: unsupported bits per sample %d", bitsPerSample)
	}
	outDepth := bitsPerSample
	switch {
	case outDepth <= 8:
		outDepth = 8
	default:
		outDepth = 16
	}

	photometric := tags.uint32(tagPhotometricInterpretation, photoMinIsBlack)

	colorType, err := colorTypeFor(samplesPerPixel, photometric)
	if err != nil {
		return nil, err
	}

	stripOffsets := tags.values(tagStripOffsets)
	stripByteCounts := tags.values(tagStripByteCounts)
	if len(stripOffsets) == 0 {
		return nil, errors.New("tiff: missing StripOffsets")
	}
	rowsPerStrip := int(tags.uint32(tagRowsPerStrip, height))
	if rowsPerStrip <= 0 {
		rowsPerStrip = int(height)
	}

	img := &pngimage.Image{
		Width: width, Height: height,
		BitDepth:  uint8(outDepth),
		ColorType: colorType,
	}
	img.Rows = img.NewBlankRows(img.RowStride())

	channels := samplesPerPixel
	invert := photometric == photoMinIsWhite && bitsPerSample == 8

	row := 0
	for i := range stripOffsets {
		if row >= int(height) {
			break
		}
		offset := stripOffsets[i]
		var byteCount uint32
		if i < len(stripByteCounts) {
			byteCount = stripByteCounts[i]
		}
		rowsInStrip := rowsPerStrip
		if row+rowsInStrip > int(height) {
			rowsInStrip = int(height) - row
		}
		stripBytesPerRow := (int(width)*channels*bitsPerSample + 7) / 8
		needed := stripBytesPerRow * rowsInStrip
		if int(byteCount) < needed {
			byteCount = uint32(needed)
		}
		if int(offset)+int(byteCount) > len(all) {
			return nil, errors.New("tiff: strip data out of bounds")
		}
		strip := all[offset : int(offset)+int(byteCount)]

		if err := decodeStrip(img, strip, row, rowsInStrip, channels, bitsPerSample, outDepth, order, invert); err != nil {
			return nil, err
		}
		row += rowsInStrip
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func colorTypeFor(samplesPerPixel int, photometric uint32) (pngimage.ColorType, error) {
	switch samplesPerPixel {
	case 1:
		return pngimage.Gray, nil
	case 2:
		return pngimage.GrayAlpha, nil
	case 3:
		if photometric != photoRGB && photometric != photoMinIsBlack {
			return 0, errors.New("tiff: unsupported photometric interpretation for 3 samples")
		}
		return pngimage.RGBColor, nil
	case 4:
		return pngimage.RGBAlpha, nil
	default:
		return 0, errors.Errorf("tiff: unsupported samples per pixel %d", samplesPerPixel)
	}
}

func decodeStrip(img *pngimage.Image, strip []byte, rowStart, numRows, channels, bitsPerSample, outDepth int, order binary.ByteOrder, invert bool) error {
	width := int(img.Width)
	stripBytesPerRow := (width*channels*bitsPerSample + 7) / 8
	maxSample := uint32(1<<uint(bitsPerSample)) - 1

	for y := 0; y < numRows; y++ {
		srcRowStart := y * stripBytesPerRow
		if srcRowStart+stripBytesPerRow > len(strip) {
			return errors.New("tiff: truncated strip")
		}
		srcRow := strip[srcRowStart : srcRowStart+stripBytesPerRow]
		dstRow := img.Rows[rowStart+y]

		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				v := readSample(srcRow, x, c, channels, bitsPerSample, order)
				if invert {
					v = maxSample - v
				}
				out := rescaleSample(v, bitsPerSample, outDepth)
				pngimage.SetSample(dstRow, x, c, channels, outDepth, out)
			}
		}
	}
	return nil
}

// readSample extracts one sample of the given bit depth from a packed,
// chunky TIFF scanline.
func readSample(row []byte, x, channel, channels, bitsPerSample int, order binary.ByteOrder) uint32 {
	switch {
	case bitsPerSample == 16:
		i := (x*channels + channel) * 2
		return uint32(order.Uint16(row[i : i+2]))
	case bitsPerSample == 8:
		return uint32(row[x*channels+channel])
	default:
		bitPos := (x*channels + channel) * bitsPerSample
		byteIdx := bitPos / 8
		shift := 8 - bitsPerSample - (bitPos % 8)
		mask := byte(1<<uint(bitsPerSample)) - 1
		return uint32((row[byteIdx] >> uint(shift)) & mask)
	}
}

// rescaleSample widens a bitsPerSample-wide sample to outDepth bits
// (8 or 16), preserving proportional intensity.
func rescaleSample(v uint32, bitsPerSample, outDepth int) uint16 {
	if bitsPerSample == outDepth {
		return uint16(v)
	}
	srcMax := uint32(1<<uint(bitsPerSample)) - 1
	dstMax := uint32(1<<uint(outDepth)) - 1
	return uint16(v * dstMax / srcMax)
}

// ifd is the resolved set of tag values this importer needs from one
// Image File Directory.
type ifd struct {
	entries map[int][]uint32
}

func (t ifd) values(tag int) []uint32 {
	return t.entries[tag]
}

func (t ifd) uint32(tag int, def uint32) uint32 {
	vs := t.entries[tag]
	if len(vs) == 0 {
		return def
	}
	return vs[0]
}

func readIFD(all []byte, order binary.ByteOrder, offset uint32) (ifd, error) {
	if int(offset)+2 > len(all) {
		return ifd{}, errors.New("tiff: IFD offset out of bounds")
	}
	count := int(order.Uint16(all[offset : offset+2]))
	base := int(offset) + 2
	entries := make(map[int][]uint32, count)

	for i := 0; i < count; i++ {
		off := base + i*12
		if off+12 > len(all) {
			return ifd{}, errors.New("tiff: truncated IFD entry")
		}
		tag := int(order.Uint16(all[off : off+2]))
		typ := int(order.Uint16(all[off+2 : off+4]))
		cnt := int(order.Uint32(all[off+4 : off+8]))
		valueOffset := all[off+8 : off+12]

		size := typeSize(typ)
		if size == 0 || cnt < 0 {
			continue // unsupported tag type; not needed by this importer
		}
		total := size * cnt

		var data []byte
		if total <= 4 {
			data = valueOffset[:total]
		} else {
			o := order.Uint32(valueOffset)
			if int(o)+total > len(all) {
				return ifd{}, errors.New("tiff: tag value out of bounds")
			}
			data = all[o : int(o)+total]
		}

		vals := make([]uint32, cnt)
		for j := 0; j < cnt; j++ {
			switch typ {
			case typeByte, typeASCII:
				vals[j] = uint32(data[j])
			case typeShort:
				vals[j] = uint32(order.Uint16(data[j*2 : j*2+2]))
			case typeLong:
				vals[j] = order.Uint32(data[j*4 : j*4+4])
			}
		}
		entries[tag] = vals
	}

	return ifd{entries: entries}, nil
}

func typeSize(typ int) int {
	switch typ {
	case typeByte, typeASCII:
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeRational:
		return 8
	default:
		return 0
	}
}
