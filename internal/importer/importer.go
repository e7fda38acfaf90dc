// Package importer dispatches on an input's file signature and converts
// a foreign raster (BMP/GIF/PNM/TIFF) into the normalized
// pngimage.Image model every other stage consumes. The native
// PNG/MNG/JNG path is not implemented here: that signature is recognized
// only so the session orchestrator knows to call internal/pngnative
// instead.
//
// Grounded on png.go's ParsePng checking the 8-byte PNG header before
// trusting the rest of the stream, generalized from "one fixed
// signature" to "dispatch over a tagged Format variant", the idiomatic
// replacement for the C source's function-pointer importer table
// (pngxtern.c's pngx_read_image probing pngx_sig_is_bmp/_gif/_pnm/_tiff
// in turn).
package importer

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/diag"
	"github.com/optipng-go/optipng/internal/importer/bmp"
	"github.com/optipng-go/optipng/internal/importer/gif"
	"github.com/optipng-go/optipng/internal/importer/pnm"
	"github.com/optipng-go/optipng/internal/importer/tiff"
	"github.com/optipng-go/optipng/internal/pngimage"
)

// Format is the tagged variant every recognized input signature resolves
// to, replacing the C source's dynamic dispatch table.
type Format int

const (
	FormatUnknown Format = iota
	// FormatNativePNG covers the PNG/MNG/JNG signatures; the caller
	// decodes these with internal/pngnative, not this package.
	FormatNativePNG
	FormatBMP
	FormatGIF
	FormatPNM
	FormatTIFF
)

func (f Format) String() string {
	switch f {
	case FormatNativePNG:
		return "png"
	case FormatBMP:
		return "bmp"
	case FormatGIF:
		return "gif"
	case FormatPNM:
		return "pnm"
	case FormatTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// mngSignature and jngSignature are the two PNG signature lookalikes
// groups with PNG itself under the native path.
var (
	pngSignature = [4]byte{0x89, 0x50, 0x4E, 0x47}
	mngSignature = [4]byte{0x8A, 0x4D, 0x4E, 0x47}
	jngSignature = [4]byte{0x8B, 0x4A, 0x4E, 0x47}
)

// Detect inspects up to the first 12 bytes of sig and reports which
// Format they identify, per the signature dispatch table.
func Detect(sig []byte) Format {
	if len(sig) >= 4 {
		var first4 [4]byte
		copy(first4[:], sig[:4])
		if first4 == pngSignature || first4 == mngSignature || first4 == jngSignature {
			return FormatNativePNG
		}
	}
	if len(sig) >= 2 && sig[0] == 'B' && sig[1] == 'M' {
		return FormatBMP
	}
	if len(sig) >= 6 {
		s := string(sig[:6])
		if s == "GIF87a" || s == "GIF89a" {
			return FormatGIF
		}
	}
	if len(sig) >= 2 && sig[0] == 'P' && sig[1] >= '1' && sig[1] <= '6' {
		return FormatPNM
	}
	if len(sig) >= 4 {
		isII := sig[0] == 'I' && sig[1] == 'I' && sig[2] == 0x2A && sig[3] == 0x00
		isMM := sig[0] == 'M' && sig[1] == 'M' && sig[2] == 0x00 && sig[3] == 0x2A
		if isII || isMM {
			return FormatTIFF
		}
	}
	return FormatUnknown
}

// ErrUnrecognizedFormat is reported when none of the known signatures
// match.
var ErrUnrecognizedFormat = errors.New("importer: unrecognized format")

// Result is what Import hands back: the normalized image plus whether the
// source carried more than one image.
type Result struct {
	Image          *pngimage.Image
	MultipleImages bool
}

// Import peeks the signature of r, dispatches to the matching foreign
// decoder, and returns the normalized image. It must not be called for
// FormatNativePNG; the caller owns that dispatch via internal/pngnative.
func Import(r io.Reader, sink *diag.Sink) (Result, Format, error) {
	br := bufio.NewReaderSize(r, 4096)
	peek, _ := br.Peek(12)
	format := Detect(peek)

	var img *pngimage.Image
	var multi bool
	var err error

	switch format {
	case FormatBMP:
		img, err = bmp.Decode(br)
	case FormatGIF:
		var res gif.Result
		res, err = gif.Decode(br, sink)
		img, multi = res.Image, res.MultipleImages
	case FormatPNM:
		img, err = pnm.Decode(br)
	case FormatTIFF:
		img, err = tiff.Decode(br)
	case FormatNativePNG:
		return Result{}, format, errors.New("importer: native PNG must be decoded via internal/pngnative")
	default:
		return Result{}, FormatUnknown, ErrUnrecognizedFormat
	}
	if err != nil {
		return Result{}, format, err
	}
	if err := validate(img); err != nil {
		return Result{}, format, err
	}
	return Result{Image: img, MultipleImages: multi}, format, nil
}

// validate checks every foreign decoder's image against the shared
// invariants before it reaches the rest of the pipeline, the way the
// native decode path already does.
func validate(img *pngimage.Image) error {
	if img == nil {
		return errors.New("importer: decoder returned a nil image")
	}
	return img.Validate()
}
