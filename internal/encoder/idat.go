package encoder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngchunk"
	"github.com/optipng-go/optipng/internal/pngimage"
	"github.com/optipng-go/optipng/internal/zlibx"
)

// deflateRows filters every row of img per params.Filter and streams the
// filtered bytes through a zlibx.Writer configured from params into w.
// When img is Adam7-interlaced, the seven reduced sub-images are filtered
// and streamed in pass order, each pass resetting filtering's "previous
// row" to none at its own first scanline (PNG's interlace rule), and an
// empty pass (zero width or height) contributing no scanlines at all.
func deflateRows(w io.Writer, img *pngimage.Image, params Params) error {
	zw, err := zlibx.NewWriter(w, zlibx.Params{
		Level:      params.Level,
		MemLevel:   params.MemLevel,
		WindowBits: params.WindowBits,
		Strategy:   params.Strategy,
	})
	if err != nil {
		return errors.Wrap(err, "encoder: init deflate stream")
	}

	channels := img.Channels()
	bitDepth := int(img.BitDepth)
	bpp := bppFor(channels, bitDepth)

	if img.Interlace == pngimage.InterlaceAdam7 {
		for pass := 0; pass < 7; pass++ {
			passWidth, passHeight := adam7PassDims(int(img.Width), int(img.Height), pass)
			if passWidth == 0 || passHeight == 0 {
				continue
			}
			rows := adam7ExtractPass(img, pass, passWidth, passHeight)
			if err := deflateRowSet(zw, rows, bpp, params.Filter); err != nil {
				_ = zw.Close()
				return err
			}
		}
	} else {
		if err := deflateRowSet(zw, img.Rows, bpp, params.Filter); err != nil {
			_ = zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return nil
}

// deflateRowSet filters and writes one contiguous run of scanlines
// (a whole image, or one Adam7 pass) into zw, with filtering's
// "previous row" reset to none at rows[0].
func deflateRowSet(zw io.Writer, rows [][]byte, bpp int, filter Filter) error {
	if len(rows) == 0 {
		return nil
	}
	stride := len(rows[0])
	var prev []byte
	filtered := make([]byte, stride+1)
	scratch := make([]byte, stride)
	for _, row := range rows {
		var ft Filter
		switch filter {
		case FilterAdaptive:
			ft, scratch = chooseAdaptiveFilter(row, prev, bpp)
		default:
			ft = filter
			filterRow(scratch, row, prev, bpp, ft)
		}
		filtered[0] = byte(ft)
		copy(filtered[1:], scratch)
		if _, err := zw.Write(filtered); err != nil {
			return err
		}
		prev = row
	}
	return nil
}

// writeIDAT writes a single IDAT chunk containing img's compressed
// scanlines, per PNG's chunk length/CRC policy. When expectedIDATSize is
// already known (the trial engine's chosen best), its bytes stream
// straight into w against a pre-written length field, falling back to a
// Seek-based fix-up only if the stream turns out to disagree with that
// expectation. When it is not known, the compressed payload is buffered
// first so its exact length can be written up front without requiring w
// to be seekable at all.
func writeIDAT(w io.Writer, img *pngimage.Image, params Params, expectedIDATSize int) (int, error) {
	if expectedIDATSize < 0 {
		return writeIDATBuffered(w, img, params)
	}
	return writeIDATStreamed(w, img, params, expectedIDATSize)
}

func writeIDATBuffered(w io.Writer, img *pngimage.Image, params Params) (int, error) {
	var compressed bytes.Buffer
	if err := deflateRows(&compressed, img, params); err != nil {
		return 0, errors.Wrap(err, "encoder: deflate IDAT data")
	}
	if err := pngchunk.WriteChunk(w, pngchunk.IDAT, compressed.Bytes()); err != nil {
		return 0, err
	}
	return compressed.Len(), nil
}

func writeIDATStreamed(w io.Writer, img *pngimage.Image, params Params, expectedIDATSize int) (int, error) {
	lengthOffset, err := currentOffset(w)
	haveOffset := err == nil

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(expectedIDATSize))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return 0, errors.Wrap(err, "encoder: write IDAT length")
	}

	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)
	if _, err := io.WriteString(mw, string(pngchunk.IDAT)); err != nil {
		return 0, errors.Wrap(err, "encoder: write IDAT type")
	}

	counter := &countingWriter{w: mw}
	if err := deflateRows(counter, img, params); err != nil {
		return counter.n, errors.Wrap(err, "encoder: deflate IDAT data")
	}

	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc.Sum32())
	if _, err := w.Write(crcBuf[:]); err != nil {
		return counter.n, errors.Wrap(err, "encoder: write IDAT crc")
	}

	if counter.n != expectedIDATSize {
		if !haveOffset {
			return counter.n, ErrNonSeekableLengthMismatch
		}
		seeker, ok := w.(io.WriteSeeker)
		if !ok {
			return counter.n, ErrNonSeekableLengthMismatch
		}
		if _, err := seeker.Seek(lengthOffset, io.SeekStart); err != nil {
			return counter.n, errors.Wrap(err, "encoder: seek to IDAT length field")
		}
		var fixed [4]byte
		binary.BigEndian.PutUint32(fixed[:], uint32(counter.n))
		if _, err := seeker.Write(fixed[:]); err != nil {
			return counter.n, errors.Wrap(err, "encoder: rewrite IDAT length field")
		}
		if _, err := seeker.Seek(0, io.SeekEnd); err != nil {
			return counter.n, errors.Wrap(err, "encoder: seek back to stream end")
		}
	}

	return counter.n, nil
}

// currentOffset returns w's current write position if w implements
// io.Seeker, else an error.
func currentOffset(w io.Writer) (int64, error) {
	seeker, ok := w.(io.Seeker)
	if !ok {
		return 0, errors.New("encoder: sink is not seekable")
	}
	return seeker.Seek(0, io.SeekCurrent)
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
