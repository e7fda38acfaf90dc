// Package encoder serializes the image model to a PNG datastream with
// exactly one IDAT chunk regardless of how many chunks the
// reducer/transformer/trial engine saw along the way.
//
// Grounded on png.go's chunk read/write loop (Png.Decode), generalized
// from "read chunks into a slice" to "stream chunks out with a single
// deferred-length IDAT", plus internal/zlibx for the Deflate direction
// the standard library's compress/zlib cannot parameterize.
package encoder

import (
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngchunk"
	"github.com/optipng-go/optipng/internal/pngimage"
	"github.com/optipng-go/optipng/internal/transform"
	"github.com/optipng-go/optipng/internal/zlibx"
)

// Signature is the 8-byte PNG file signature.
var Signature = pngchunk.Signature

// Strategy mirrors zlibx.Strategy so callers of this package need not
// import zlibx directly for the common case.
type Strategy = zlibx.Strategy

const (
	StrategyDefault     = zlibx.StrategyDefault
	StrategyFiltered    = zlibx.StrategyFiltered
	StrategyHuffmanOnly = zlibx.StrategyHuffmanOnly
	StrategyRLE         = zlibx.StrategyRLE
	StrategyFixed       = zlibx.StrategyFixed
)

// Params is the encoding-parameters record: a point in the trial
// engine's hyper-rectangle.
type Params struct {
	Filter     Filter
	Strategy   Strategy
	Level      int // zclevel, 1..9
	MemLevel   int // zmemlevel, 1..9
	WindowBits int // zwindow_bits, 8..15
}

// ErrOversize is returned by Trial when the running IDAT size exceeds
// maxIDATSize: early abandon. It is never surfaced past
// the trial engine.
var ErrOversize = errors.New("encoder: trial exceeded max_idat_size")

// ErrNonSeekableLengthMismatch is returned when the actual compressed
// IDAT size differs from the pre-written placeholder and sink does not
// implement io.Seeker.
var ErrNonSeekableLengthMismatch = errors.New("encoder: IDAT size differs from placeholder and sink is not seekable")

// Result reports what Encode actually wrote.
type Result struct {
	IDATSize int // compressed bytes written inside the single IDAT chunk
}

// Encode writes img to w as a PNG datastream (full commit, no
// early-abandon), applying ts to decide which metadata chunks survive.
// expectedIDATSize, if >= 0, is written as the pre-known IDAT length (from
// the trial engine's chosen best) and corrected afterward via seek if the
// actual size differs; otherwise the compressed data is buffered first
// and written with its exact length.
func Encode(w io.Writer, img *pngimage.Image, ts transform.Spec, params Params, expectedIDATSize int) (Result, error) {
	if _, err := w.Write(Signature[:]); err != nil {
		return Result{}, errors.Wrap(err, "encoder: write signature")
	}

	if err := writeChunk(w, pngchunk.IHDR, encodeIHDR(img)); err != nil {
		return Result{}, err
	}

	for _, u := range img.Unknown {
		if u.Location != pngchunk.BeforePLTE {
			continue
		}
		if ts.ShouldStrip(u.Code) {
			continue
		}
		if err := writeChunk(w, u.Code, u.Data); err != nil {
			return Result{}, err
		}
	}

	// sBIT must precede PLTE; bKGD/hIST/tRNS follow it.
	if data := encodeSBIT(img); data != nil && !ts.ShouldStrip(pngchunk.SBIT) {
		if err := writeChunk(w, pngchunk.SBIT, data); err != nil {
			return Result{}, err
		}
	}

	if img.ColorType == pngimage.PaletteColor {
		if err := writeChunk(w, pngchunk.PLTE, encodePLTE(img)); err != nil {
			return Result{}, err
		}
	}

	if data := encodeBKGD(img); data != nil && !ts.ShouldStrip(pngchunk.BKGD) {
		if err := writeChunk(w, pngchunk.BKGD, data); err != nil {
			return Result{}, err
		}
	}
	if data := encodeHIST(img); data != nil && !ts.ShouldStrip(pngchunk.HIST) {
		if err := writeChunk(w, pngchunk.HIST, data); err != nil {
			return Result{}, err
		}
	}
	if data := encodeTRNS(img); data != nil {
		if err := writeChunk(w, pngchunk.TRNS, data); err != nil {
			return Result{}, err
		}
	}

	for _, u := range img.Unknown {
		if u.Location != pngchunk.BeforeIDAT {
			continue
		}
		if ts.ShouldStrip(u.Code) {
			continue
		}
		if u.Code.IsAPNG() && ts.StripsAPNG() {
			continue
		}
		if err := writeChunk(w, u.Code, u.Data); err != nil {
			return Result{}, err
		}
	}

	idatSize, err := writeIDAT(w, img, params, expectedIDATSize)
	if err != nil {
		return Result{}, err
	}

	for _, u := range img.Unknown {
		if u.Location != pngchunk.AfterIDAT {
			continue
		}
		if ts.ShouldStrip(u.Code) {
			continue
		}
		if u.Code.IsAPNG() && ts.StripsAPNG() {
			continue
		}
		if err := writeChunk(w, u.Code, u.Data); err != nil {
			return Result{}, err
		}
	}

	if err := writeChunk(w, pngchunk.IEND, nil); err != nil {
		return Result{}, err
	}

	return Result{IDATSize: idatSize}, nil
}

func writeChunk(w io.Writer, fourcc pngchunk.FourCC, data []byte) error {
	return pngchunk.WriteChunk(w, fourcc, data)
}

// discardCounter is the sink writeIDAT streams compressed bytes into
// during a trial: it counts bytes without storing them, and errors out
// once the running count would exceed its limit, implementing
// early abandon.
type discardCounter struct {
	n     int
	limit int // negative disables the limit
}

func (d *discardCounter) Write(p []byte) (int, error) {
	d.n += len(p)
	if d.limit >= 0 && d.n > d.limit {
		return len(p), ErrOversize
	}
	return len(p), nil
}

// Trial runs the compression work for params against img without
// producing a file: it streams filtered, deflated row data into a
// counting sink and returns the exact IDAT payload size, or ErrOversize
// the moment the running size exceeds maxIDATSize (pass a negative
// maxIDATSize to disable the limit). This is what the trial engine
// calls for every grid point; only the final, chosen params go through
// the full Encode.
func Trial(img *pngimage.Image, params Params, maxIDATSize int) (int, error) {
	sink := &discardCounter{limit: maxIDATSize}
	if err := deflateRows(sink, img, params); err != nil {
		return sink.n, err
	}
	return sink.n, nil
}
