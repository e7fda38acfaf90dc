// Package zlibx binds directly to the system zlib's deflateInit2 so the
// trial engine can control strategy, memLevel and windowBits, none of
// which compress/flate or compress/zlib expose. Grounded on
// google/wuffs's lib/cgozlib, whose Reader wraps inflateInit/inflate/
// inflateEnd around a cgo-embedded z_stream; this is the same shape
// turned around for the deflate direction, with the extra deflateInit2
// parameters the trial search needs.
package zlibx

/*
#cgo pkg-config: zlib
#include "zlib.h"

typedef struct {
	uInt ndst;
	uInt nsrc;
} zlibx_advances;

int zlibx_deflateInit2(z_stream* z, int level, int method, int windowBits,
		int memLevel, int strategy) {
	return deflateInit2(z, level, method, windowBits, memLevel, strategy);
}

int zlibx_deflate(z_stream* z, zlibx_advances* a,
		Bytef* next_out, uInt avail_out,
		Bytef* next_in, uInt avail_in, int flush) {
	z->next_out = next_out;
	z->avail_out = avail_out;
	z->next_in = next_in;
	z->avail_in = avail_in;

	int ret = deflate(z, flush);

	a->ndst = avail_out - z->avail_out;
	a->nsrc = avail_in - z->avail_in;

	z->next_out = NULL;
	z->avail_out = 0;
	z->next_in = NULL;
	z->avail_in = 0;

	return ret;
}

int zlibx_deflateEnd(z_stream* z) {
	return deflateEnd(z);
}
*/
import "C"

import (
	"errors"
	"io"
	"unsafe"
)

// Strategy mirrors zlib's deflate strategy constants.
type Strategy int

const (
	StrategyDefault     Strategy = 0 // Z_DEFAULT_STRATEGY
	StrategyFiltered    Strategy = 1 // Z_FILTERED
	StrategyHuffmanOnly Strategy = 2 // Z_HUFFMAN_ONLY
	StrategyRLE         Strategy = 3 // Z_RLE
	StrategyFixed       Strategy = 4 // Z_FIXED
)

const (
	methodDeflated = 8 // Z_DEFLATED
	flushNone      = 0 // Z_NO_FLUSH
	flushFinish    = 4 // Z_FINISH
)

var (
	errNilReceiver       = errors.New("zlibx: nil receiver")
	errMissingResetCall  = errors.New("zlibx: missing Reset call")
	errAlreadyFinished   = errors.New("zlibx: Write after Close")
	errBufferUnavailable = errors.New("zlibx: internal buffer exhausted")
)

const (
	errCodeStreamEnd = 1
	errCodeNeedDict  = 2
)

type errCode int32

func (e errCode) Error() string {
	switch e {
	case +1:
		return "zlibx: Z_STREAM_END"
	case +2:
		return "zlibx: Z_NEED_DICT"
	case -1:
		return "zlibx: Z_ERRNO"
	case -2:
		return "zlibx: Z_STREAM_ERROR"
	case -3:
		return "zlibx: Z_DATA_ERROR"
	case -4:
		return "zlibx: Z_MEM_ERROR"
	case -5:
		return "zlibx: Z_BUF_ERROR"
	case -6:
		return "zlibx: Z_VERSION_ERROR"
	}
	return "zlibx: unknown zlib error"
}

// Params is the hyper-rectangle point the trial engine evaluates: one
// Deflate configuration (level, memLevel, windowBits, strategy).
type Params struct {
	Level      int
	MemLevel   int
	WindowBits int // zlib-wrapped when positive, raw-deflate when negative
	Strategy   Strategy
}

// Writer streams bytes through deflate with an explicit Params
// configuration. Call Reset before Write; call Close to flush the final
// block and retrieve the CRC-independent compressed tail.
type Writer struct {
	buf  [32 * 1024]byte
	dst  io.Writer
	open bool

	z C.z_stream
	a C.zlibx_advances
}

// NewWriter allocates a Writer bound to dst with the given Params.
func NewWriter(dst io.Writer, p Params) (*Writer, error) {
	w := &Writer{}
	if err := w.Reset(dst, p); err != nil {
		return nil, err
	}
	return w, nil
}

// Reset reinitializes w to stream into dst with the given Params,
// closing any prior session first.
func (w *Writer) Reset(dst io.Writer, p Params) error {
	if w == nil {
		return errNilReceiver
	}
	if w.open {
		if err := w.Close(); err != nil {
			return err
		}
	}
	if e := C.zlibx_deflateInit2(&w.z,
		C.int(p.Level), methodDeflated, C.int(p.WindowBits),
		C.int(p.MemLevel), C.int(p.Strategy)); e != 0 {
		return errCode(e)
	}
	w.dst = dst
	w.open = true
	return nil
}

// Write feeds p into the deflate stream, emitting compressed output to
// the underlying writer as internal buffers fill.
func (w *Writer) Write(p []byte) (int, error) {
	if w == nil {
		return 0, errNilReceiver
	}
	if !w.open {
		return 0, errMissingResetCall
	}
	return w.drive(p, flushNone)
}

// Close finishes the deflate stream (Z_FINISH), flushing any buffered
// output, then releases the underlying z_stream.
func (w *Writer) Close() error {
	if w == nil {
		return errNilReceiver
	}
	if !w.open {
		return nil
	}
	if _, err := w.drive(nil, flushFinish); err != nil && err != io.EOF {
		return err
	}
	w.open = false
	if e := C.zlibx_deflateEnd(&w.z); e != 0 {
		return errCode(e)
	}
	return nil
}

func (w *Writer) drive(p []byte, flush C.int) (int, error) {
	written := 0
	for {
		var srcPtr *C.Bytef
		if len(p) > 0 {
			srcPtr = (*C.Bytef)(unsafe.Pointer(&p[0]))
		}

		e := C.zlibx_deflate(&w.z, &w.a,
			(*C.Bytef)(unsafe.Pointer(&w.buf[0])), C.uInt(len(w.buf)),
			srcPtr, C.uInt(len(p)), flush)

		if w.a.ndst > 0 {
			if _, err := w.dst.Write(w.buf[:int(w.a.ndst)]); err != nil {
				return written, err
			}
		}
		written += int(w.a.nsrc)
		p = p[int(w.a.nsrc):]

		switch {
		case e == 0:
			if flush == flushFinish || len(p) > 0 || w.a.ndst == C.uInt(len(w.buf)) {
				continue
			}
			return written, nil
		case e == errCodeStreamEnd:
			return written, io.EOF
		default:
			return written, errCode(e)
		}
	}
}
