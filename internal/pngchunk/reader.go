package pngchunk

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Signature is the 8-byte PNG file signature. ReadSignature accepts only
// this one; the MNG/JNG lookalikes are not matched here.
var Signature = [8]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// Raw is one chunk as read off the wire: its FourCC and payload, with
// the CRC already verified.
type Raw struct {
	Code FourCC
	Data []byte
}

// Reader reads a sequence of length-prefixed, CRC-checked chunks from an
// underlying stream, the shape the native PNG decode and the copy path
// both consume chunk-by-chunk. Grounded on png.go's Png.Decode
// chunk loop (png.go), generalized from "read into a fixed ChunkName
// switch" to "hand back raw chunks for the caller to interpret or
// replay".
type Reader struct {
	r io.Reader
}

// NewReader wraps r, which must be positioned at the first byte after
// the 8-byte signature (see ReadSignature).
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadSignature consumes and verifies the 8-byte PNG signature.
func ReadSignature(r io.Reader) error {
	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return errors.Wrap(err, "pngchunk: read signature")
	}
	if sig != Signature {
		return errors.New("pngchunk: not a PNG signature")
	}
	return nil
}

// Next reads the next chunk, verifying its CRC. It does not track IEND:
// when the stream ends, the failed read is returned wrapped, as io.EOF
// if no byte of the field being read was present and as
// io.ErrUnexpectedEOF if only part of it was.
func (cr *Reader) Next() (Raw, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(cr.r, lenBuf[:]); err != nil {
		return Raw{}, errors.Wrap(err, "pngchunk: read chunk length")
	}
	length := binary.BigEndian.Uint32(lenBuf[:])

	var codeBuf [4]byte
	if _, err := io.ReadFull(cr.r, codeBuf[:]); err != nil {
		return Raw{}, errors.Wrap(err, "pngchunk: read chunk type")
	}
	code := FourCC(codeBuf[:])

	data := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(cr.r, data); err != nil {
			return Raw{}, errors.Wrapf(err, "pngchunk: read %s data", code)
		}
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(cr.r, crcBuf[:]); err != nil {
		return Raw{}, errors.Wrapf(err, "pngchunk: read %s crc", code)
	}
	want := binary.BigEndian.Uint32(crcBuf[:])

	crc := crc32.NewIEEE()
	crc.Write(codeBuf[:])
	crc.Write(data)
	if crc.Sum32() != want {
		return Raw{}, errors.Errorf("pngchunk: %s crc mismatch", code)
	}

	return Raw{Code: code, Data: data}, nil
}
