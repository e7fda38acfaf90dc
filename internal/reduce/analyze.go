// Package reduce implements the lossless reduction pass, the
// analytic core of the optimizer. Every sub-reduction here must leave the
// image's decoded pixels bit-identical; each one proves
// its own applicability with a scan before mutating anything.
//
// Grounded on original_source/src/opngreduc.c's opng_reduce_image, which
// runs opng_reduce_bits (16-to-8, RGB-to-gray, strip-alpha), then
// opng_reduce_palette (prune / 8-to-4-2-1 / palette-to-gray bundled
// together, gray taking priority), then opng_reduce_rgb_to_palette last.
package reduce

import (
	"github.com/optipng-go/optipng/internal/diag"
	"github.com/optipng-go/optipng/internal/pngimage"
)

// Mask selects which reduction categories a pass may apply, one bit per
// -nb/-nc/-np category, and the flag that would restore it.
type Mask uint8

const (
	MaskBitDepth Mask = 1 << iota // R16to8                     (-nb disables)
	MaskColor                     // RGBtoGray, StripAlpha       (-nc disables)
	MaskPalette                   // 8to4_2_1, PaletteToGray,
	// PalettePrune, RGBtoPalette  (-np disables)
)

// All enables every category.
const All = MaskBitDepth | MaskColor | MaskPalette

// Applied records which individual sub-reductions actually fired, for
// status reporting and for the orchestrator's NEEDS_NEW_IDAT decision.
type Applied struct {
	R16to8        bool
	RGBtoGray     bool
	StripAlpha    bool
	PalettePrune  bool
	PaletteToGray bool
	To4_2_1       bool
	RGBtoPalette  bool
}

// Any reports whether at least one sub-reduction fired.
func (a Applied) Any() bool {
	return a.R16to8 || a.RGBtoGray || a.StripAlpha || a.PalettePrune ||
		a.PaletteToGray || a.To4_2_1 || a.RGBtoPalette
}

// analysis holds everything one linear scan over the rows can decide
// jointly: the 16-bit byte agreement, RGB equality, constant-max alpha,
// and the palette usage bitmap.
type analysis struct {
	all16Equal    bool // every 16-bit sample's high/low byte agree
	allRGBEqual   bool // every pixel has R == G == B
	bkgdRGBEqual  bool // bKGD (if present) also has R == G == B
	alphaConstMax bool // alpha channel is constant at the max value
	used          [256]bool
}

func analyze(img *pngimage.Image) analysis {
	var a analysis
	a.all16Equal = true
	a.allRGBEqual = true
	a.alphaConstMax = true

	channels := img.Channels()
	bitDepth := int(img.BitDepth)
	maxSample := pngimage.MaxSample(bitDepth)

	hasRGB := img.ColorType == pngimage.RGBColor || img.ColorType == pngimage.RGBAlpha
	hasAlpha := img.ColorType.HasAlpha()
	alphaChannel := channels - 1

	for _, row := range img.Rows {
		for x := 0; x < int(img.Width); x++ {
			if bitDepth == 16 {
				for c := 0; c < channels; c++ {
					i := (x*channels + c) * 2
					if row[i] != row[i+1] {
						a.all16Equal = false
					}
				}
			}
			if hasRGB {
				r := pngimage.GetSample(row, x, 0, channels, bitDepth)
				g := pngimage.GetSample(row, x, 1, channels, bitDepth)
				b := pngimage.GetSample(row, x, 2, channels, bitDepth)
				if r != g || g != b {
					a.allRGBEqual = false
				}
			}
			if hasAlpha {
				av := pngimage.GetSample(row, x, alphaChannel, channels, bitDepth)
				if av != maxSample {
					a.alphaConstMax = false
				}
			}
			if img.ColorType == pngimage.PaletteColor {
				idx := pngimage.GetSample(row, x, 0, channels, bitDepth)
				a.used[idx] = true
			}
		}
	}

	if img.BKGD.Present && hasRGB {
		a.bkgdRGBEqual = img.BKGD.Red == img.BKGD.Green && img.BKGD.Green == img.BKGD.Blue
	} else {
		a.bkgdRGBEqual = true
	}
	if img.BKGD.Present && img.ColorType == pngimage.PaletteColor {
		a.used[img.BKGD.PaletteIndex] = true
	}

	return a
}

// refused reports whether reductions are entirely disabled for img: a
// digital signature is present, or the image is a multi-frame APNG.
func refused(img *pngimage.Image) bool {
	return img.DigitalSignature || img.APNGFrameCount > 1
}

// Sink is the minimal diagnostic interface reduce needs; *diag.Sink
// satisfies it.
type Sink interface {
	Warn(format string, args ...interface{})
}

var _ Sink = (*diag.Sink)(nil)
