// Package copypath byte-copies an input PNG datastream to output while
// joining all input IDATs into one (using the trial engine's chosen
// size as the pre-known length) and applying the transformer's
// strip/protect predicate. Selected whenever neither reductions nor
// transforms changed pixel data, so a full re-encode would waste work
// reproducing bytes that are already optimal.
//
// Grounded on png.go's sequential chunk read loop (Png.Decode),
// generalized from "decode every chunk into memory" to "stream chunks
// straight through, merging IDATs as they pass".
package copypath

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngchunk"
	"github.com/optipng-go/optipng/internal/transform"
)

// Copy reads a PNG datastream from r and writes it to w, joining every
// IDAT chunk it encounters into a single chunk (idatSize, when
// non-negative, must equal the joined payload length), applying ts's
// strip/protect predicate to every other chunk, and stopping once IEND
// has been written.
func Copy(w io.Writer, r io.Reader, ts transform.Spec, idatSize int) error {
	if err := pngchunk.ReadSignature(r); err != nil {
		return err
	}
	if _, err := w.Write(pngchunk.Signature[:]); err != nil {
		return errors.Wrap(err, "copypath: write signature")
	}

	cr := pngchunk.NewReader(r)
	var idatBuf bytes.Buffer
	idatWritten := false

	for {
		chunk, err := cr.Next()
		if err != nil {
			return err
		}

		switch {
		case chunk.Code == pngchunk.IDAT:
			if _, err := idatBuf.Write(chunk.Data); err != nil {
				return errors.Wrap(err, "copypath: buffer IDAT data")
			}
			continue

		case chunk.Code == pngchunk.IEND:
			if !idatWritten {
				if err := flushIDAT(w, idatBuf.Bytes(), idatSize); err != nil {
					return err
				}
				idatWritten = true
			}
			return writeChunk(w, chunk.Code, nil)

		default:
			if !idatWritten && idatBuf.Len() > 0 {
				if err := flushIDAT(w, idatBuf.Bytes(), idatSize); err != nil {
					return err
				}
				idatWritten = true
			}
			if chunk.Code.IsMetadata() && ts.ShouldStrip(chunk.Code) {
				continue
			}
			if chunk.Code.IsAPNG() && ts.StripsAPNG() {
				continue
			}
			if err := pngchunk.WriteChunk(w, chunk.Code, chunk.Data); err != nil {
				return err
			}
		}
	}
}

// flushIDAT writes the joined IDAT payload as a single chunk. A
// non-negative idatSize that differs from len(joined) is an error and
// nothing is written; a negative idatSize skips the check. The
// orchestrator passes the summed payload length of the input's IDAT
// chunks.
func flushIDAT(w io.Writer, joined []byte, idatSize int) error {
	if idatSize >= 0 && idatSize != len(joined) {
		return errors.Errorf("copypath: joined IDAT length %d does not match expected %d", len(joined), idatSize)
	}
	return writeChunk(w, pngchunk.IDAT, joined)
}

func writeChunk(w io.Writer, code pngchunk.FourCC, data []byte) error {
	return pngchunk.WriteChunk(w, code, data)
}
