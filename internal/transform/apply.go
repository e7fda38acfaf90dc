package transform

import (
	"github.com/optipng-go/optipng/internal/pngimage"
)

// Applied records which image-mutating actions fired, mirroring the
// reducer's Applied struct so the orchestrator can decide NEEDS_NEW_IDAT
// the same way.
type Applied struct {
	ResetAlpha     bool
	ChromaConvert  bool
	AlphaPrecision bool
}

// Any reports whether any mutation fired.
func (a Applied) Any() bool {
	return a.ResetAlpha || a.ChromaConvert || a.AlphaPrecision
}

// Apply mutates img in place per s and reports which actions fired. It
// must run before the reducer.
func Apply(img *pngimage.Image, s Spec) Applied {
	var applied Applied

	if s.ResetAlpha {
		applied.ResetAlpha = resetAlpha(img)
	}
	if s.ChromaBT601 {
		applied.ChromaConvert = convertChroma(img, bt601)
	} else if s.ChromaBT709 {
		applied.ChromaConvert = convertChroma(img, bt709)
	}
	if s.AlphaPrecision != 0 {
		applied.AlphaPrecision = quantizeAlphaPrecision(img, s.AlphaPrecision)
	}

	if s.StripsAPNG() {
		img.APNGFrameCount = 0
	}

	return applied
}

// resetAlpha overwrites every alpha sample with the channel's maximum
// value and drops tRNS.
func resetAlpha(img *pngimage.Image) bool {
	hadTrans := img.Trans.Kind != pngimage.TransNone
	hasExplicitAlpha := img.ColorType.HasAlpha()
	if !hasExplicitAlpha && !hadTrans {
		return false
	}

	if hasExplicitAlpha {
		channels := img.Channels()
		bitDepth := int(img.BitDepth)
		maxSample := pngimage.MaxSample(bitDepth)
		alphaChannel := channels - 1
		for _, row := range img.Rows {
			for x := 0; x < int(img.Width); x++ {
				pngimage.SetSample(row, x, alphaChannel, channels, bitDepth, maxSample)
			}
		}
	}
	img.Trans = pngimage.Trans{}
	if img.SBIT.Present {
		img.SBIT.Alpha = 0
	}
	return true
}

type bt string

const (
	bt601 bt = "bt601"
	bt709 bt = "bt709"
)

// convertChroma converts RGB(A) pixel data and palette entries to
// grayscale per fixed weights, invalidating colorspace-dependent
// ancillaries (sPLT is not modeled; hIST is dropped since it no longer
// describes the converted data, and sBIT's gray entry is set to the
// largest of its red/green/blue entries).
func convertChroma(img *pngimage.Image, variant bt) bool {
	isRGB := img.ColorType == pngimage.RGBColor || img.ColorType == pngimage.RGBAlpha
	isPalette := img.ColorType == pngimage.PaletteColor
	if !isRGB && !isPalette {
		return false
	}

	weight := func(r, g, b uint16) uint16 {
		var rc, gc, bc uint32
		switch variant {
		case bt601:
			rc, gc, bc = 19595, 38470, 7471
		case bt709:
			rc, gc, bc = 13933, 46871, 4731
		}
		sum := rc*uint32(r) + gc*uint32(g) + bc*uint32(b)
		// round-to-nearest division by 65535
		return uint16((sum + 65535/2) / 65535)
	}

	if isPalette {
		for i, c := range img.Palette {
			r16, g16, b16 := widen16(c.R), widen16(c.G), widen16(c.B)
			gray := narrow8(weight(r16, g16, b16))
			img.Palette[i] = pngimage.RGB8{R: gray, G: gray, B: gray}
		}
	} else {
		channels := img.Channels()
		bitDepth := int(img.BitDepth)
		maxSample := pngimage.MaxSample(bitDepth)
		for _, row := range img.Rows {
			for x := 0; x < int(img.Width); x++ {
				r := pngimage.GetSample(row, x, 0, channels, bitDepth)
				g := pngimage.GetSample(row, x, 1, channels, bitDepth)
				b := pngimage.GetSample(row, x, 2, channels, bitDepth)
				r16 := widenTo16(r, maxSample)
				g16 := widenTo16(g, maxSample)
				b16 := widenTo16(b, maxSample)
				grayWide := weight(r16, g16, b16)
				gray := narrowFrom16(grayWide, maxSample)
				pngimage.SetSample(row, x, 0, channels, bitDepth, gray)
				pngimage.SetSample(row, x, 1, channels, bitDepth, gray)
				pngimage.SetSample(row, x, 2, channels, bitDepth, gray)
			}
		}
	}

	img.HIST = nil
	if img.SBIT.Present {
		img.SBIT.Gray = maxOf(img.SBIT.Red, img.SBIT.Green, img.SBIT.Blue)
	}
	return true
}

func widen16(v8 uint8) uint16 { return uint16(v8) * 257 }

func narrow8(v16 uint16) uint8 { return uint8(v16 / 257) }

func widenTo16(v, maxSample uint16) uint16 {
	if maxSample == 65535 {
		return v
	}
	return uint16(uint32(v) * 65535 / uint32(maxSample))
}

func narrowFrom16(v16, maxSample uint16) uint16 {
	if maxSample == 65535 {
		return v16
	}
	return uint16((uint32(v16)*uint32(maxSample) + 65535/2) / 65535)
}

func maxOf(vs ...uint8) uint8 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// quantizeAlphaPrecision implements "set alpha.precision = k": quantize
// each alpha sample to k bits then rescale back to the native bit depth
// via ((v >> (bits-k)) * max) / (2^k - 1). It is idempotent for a
// fixed k by construction: re-quantizing an already-quantized value to
// the same k reproduces the same rescaled value.
func quantizeAlphaPrecision(img *pngimage.Image, k int) bool {
	if !img.ColorType.HasAlpha() {
		return false
	}
	channels := img.Channels()
	bitDepth := int(img.BitDepth)
	if k >= bitDepth {
		return false
	}
	alphaChannel := channels - 1
	maxSample := uint32(pngimage.MaxSample(bitDepth))
	maxK := uint32(1<<uint(k)) - 1

	for _, row := range img.Rows {
		for x := 0; x < int(img.Width); x++ {
			v := pngimage.GetSample(row, x, alphaChannel, channels, bitDepth)
			quantized := uint32(v) >> uint(bitDepth-k)
			rescaled := quantized * maxSample / maxK
			pngimage.SetSample(row, x, alphaChannel, channels, bitDepth, uint16(rescaled))
		}
	}
	return true
}
