// Package gif implements the GIF half of the external raster importer,
// grounded on original_source/lib/pngxtern/pngxrgif.c and
// original_source/lib/pngxtern/gif/gifread.c for the block structure
// (logical screen descriptor, graphic control extension, image
// descriptor, trailer) and on the standard library's own image/gif
// decoder for the idiomatic Go shape: LZW-compressed sub-blocks decoded
// through compress/lzw in LSB-first order with the minimum code size as
// the literal width, the same primitive named explicitly.
package gif

import (
	"bufio"
	"compress/lzw"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/diag"
	"github.com/optipng-go/optipng/internal/pngimage"
)

const (
	blockExtension       = 0x21
	blockImageDescriptor = 0x2C
	blockTrailer         = 0x3B
	extGraphicControl    = 0xF9
)

// Result is one decoded GIF: the first image found, normalized to a
// palette PNG image, and whether the stream held more than one image.
type Result struct {
	Image          *pngimage.Image
	MultipleImages bool
}

// Decode reads a GIF87a/GIF89a stream and returns the first image as a
// palette-mode pngimage.Image, with the graphic control extension's
// transparent index (if any) mapped to tRNS.
func Decode(r io.Reader, sink *diag.Sink) (Result, error) {
	br := bufio.NewReader(r)

	var sig [6]byte
	if _, err := io.ReadFull(br, sig[:]); err != nil {
		return Result{}, errors.Wrap(err, "gif: read signature")
	}
	if string(sig[:]) != "GIF87a" && string(sig[:]) != "GIF89a" {
		return Result{}, errors.New("gif: bad signature")
	}

	var lsd [7]byte
	if _, err := io.ReadFull(br, lsd[:]); err != nil {
		return Result{}, errors.Wrap(err, "gif: read logical screen descriptor")
	}
	packed := lsd[4]
	var globalTable []pngimage.RGB8
	if packed&0x80 != 0 {
		size := 2 << (packed & 0x07)
		table, err := readColorTable(br, size)
		if err != nil {
			return Result{}, err
		}
		globalTable = table
	}

	transparentIndex := -1
	var result *pngimage.Image
	multi := false

	for {
		introducer, err := br.ReadByte()
		if err != nil {
			return Result{}, errors.Wrap(err, "gif: read block introducer")
		}

		switch introducer {
		case blockExtension:
			label, err := br.ReadByte()
			if err != nil {
				return Result{}, errors.Wrap(err, "gif: read extension label")
			}
			if label == extGraphicControl {
				data, err := readSubBlock(br)
				if err != nil {
					return Result{}, err
				}
				if len(data) >= 4 && data[0]&0x01 != 0 {
					transparentIndex = int(data[3])
				} else {
					transparentIndex = -1
				}
			} else if err := skipSubBlocks(br); err != nil {
				return Result{}, err
			}

		case blockImageDescriptor:
			img, err := decodeImage(br, globalTable, transparentIndex)
			if err != nil {
				return Result{}, err
			}
			if result == nil {
				result = img
			} else {
				multi = true
				if sink != nil {
					sink.Warn("gif: stream contains more than one image; only the first is imported")
				}
			}

		case blockTrailer:
			if result == nil {
				return Result{}, errors.New("gif: no image found before trailer")
			}
			return Result{Image: result, MultipleImages: multi}, nil

		default:
			return Result{}, errors.Errorf("gif: unrecognized block introducer 0x%02x", introducer)
		}
	}
}

func readColorTable(r io.Reader, size int) ([]pngimage.RGB8, error) {
	table := make([]pngimage.RGB8, size)
	buf := make([]byte, size*3)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "gif: read color table")
	}
	for i := range table {
		table[i] = pngimage.RGB8{R: buf[i*3], G: buf[i*3+1], B: buf[i*3+2]}
	}
	return table, nil
}

// readSubBlock reads one size-prefixed sub-block plus consumes the
// terminating zero-size block that follows it (graphic control
// extensions are always exactly one sub-block).
func readSubBlock(r *bufio.Reader) ([]byte, error) {
	size, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "gif: read sub-block size")
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Wrap(err, "gif: read sub-block data")
	}
	if err := skipSubBlocks(r); err != nil {
		return nil, err
	}
	return data, nil
}

// skipSubBlocks consumes size-prefixed sub-blocks until a zero-size
// terminator, discarding their contents.
func skipSubBlocks(r *bufio.Reader) error {
	for {
		size, err := r.ReadByte()
		if err != nil {
			return errors.Wrap(err, "gif: read sub-block size")
		}
		if size == 0 {
			return nil
		}
		if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
			return errors.Wrap(err, "gif: skip sub-block data")
		}
	}
}

// blockReader adapts GIF's size-prefixed sub-block framing to a plain
// io.Reader so compress/lzw can consume it directly.
type blockReader struct {
	r      *bufio.Reader
	remain int
	done   bool
}

func newBlockReader(r *bufio.Reader) *blockReader {
	return &blockReader{r: r}
}

func (b *blockReader) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.EOF
	}
	if b.remain == 0 {
		size, err := b.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			b.done = true
			return 0, io.EOF
		}
		b.remain = int(size)
	}
	n := len(p)
	if n > b.remain {
		n = b.remain
	}
	read, err := io.ReadFull(b.r, p[:n])
	b.remain -= read
	if err != nil {
		return read, err
	}
	return read, nil
}

func decodeImage(r *bufio.Reader, globalTable []pngimage.RGB8, transparentIndex int) (*pngimage.Image, error) {
	var id [9]byte
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return nil, errors.Wrap(err, "gif: read image descriptor")
	}
	width := int(binary.LittleEndian.Uint16(id[4:6]))
	height := int(binary.LittleEndian.Uint16(id[6:8]))
	packed := id[8]
	table := globalTable
	if packed&0x80 != 0 {
		size := 2 << (packed & 0x07)
		local, err := readColorTable(r, size)
		if err != nil {
			return nil, err
		}
		table = local
	}
	interlaced := packed&0x40 != 0

	minCodeSize, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "gif: read LZW minimum code size")
	}

	blocks := newBlockReader(r)
	lzr := lzw.NewReader(blocks, lzw.LSB, int(minCodeSize))
	defer lzr.Close()

	indices := make([]byte, width*height)
	if _, err := io.ReadFull(lzr, indices); err != nil {
		return nil, errors.Wrap(err, "gif: decode LZW image data")
	}
	// the encoder may pad data past the last needed pixel before its
	// end-of-information code; drain whatever sub-block framing remains
	// so the outer block loop resumes at the next block introducer.
	if _, err := io.Copy(io.Discard, blocks); err != nil {
		return nil, errors.Wrap(err, "gif: drain trailing image sub-blocks")
	}

	if width <= 0 || height <= 0 {
		return nil, errors.New("gif: non-positive image dimensions")
	}
	if len(table) == 0 {
		return nil, errors.New("gif: no color table available")
	}

	rows := make([][]byte, height)
	if interlaced {
		deinterlace(indices, width, height, rows)
	} else {
		for y := 0; y < height; y++ {
			rows[y] = indices[y*width : (y+1)*width]
		}
	}

	img := &pngimage.Image{
		Width: uint32(width), Height: uint32(height),
		BitDepth:  8,
		ColorType: pngimage.PaletteColor,
		Palette:   table,
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pngimage.SetSample(img.Rows[y], x, 0, 1, 8, uint16(rows[y][x]))
		}
	}

	if transparentIndex >= 0 && transparentIndex < len(table) {
		alpha := make([]uint8, transparentIndex+1)
		for i := range alpha {
			alpha[i] = 255
		}
		alpha[transparentIndex] = 0
		img.Trans = pngimage.Trans{Kind: pngimage.TransPalette, PaletteAlpha: alpha}
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// deinterlace reverses GIF's four-pass interlace scheme into linear row
// order: passes yield rows 0,8,...; 4,12,...; 2,6,...; 1,3,....
func deinterlace(indices []byte, width, height int, rows [][]byte) {
	type pass struct {
		start, step int
	}
	passes := []pass{{0, 8}, {4, 8}, {2, 4}, {1, 2}}

	srcRow := 0
	for _, p := range passes {
		for y := p.start; y < height; y += p.step {
			rows[y] = indices[srcRow*width : (srcRow+1)*width]
			srcRow++
		}
	}
}
