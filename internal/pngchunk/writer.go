package pngchunk

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// WriteChunk writes one length-prefixed, CRC-suffixed chunk to w: the
// inverse of Reader.Next, shared by the encoder and the copy path so
// both serialize chunks identically.
func WriteChunk(w io.Writer, code FourCC, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrapf(err, "pngchunk: write %s length", code)
	}

	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)
	if _, err := io.WriteString(mw, string(code)); err != nil {
		return errors.Wrapf(err, "pngchunk: write %s type", code)
	}
	if len(data) > 0 {
		if _, err := mw.Write(data); err != nil {
			return errors.Wrapf(err, "pngchunk: write %s data", code)
		}
	}

	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc.Sum32())
	if _, err := w.Write(crcBuf[:]); err != nil {
		return errors.Wrapf(err, "pngchunk: write %s crc", code)
	}
	return nil
}
