// Package transform resolves -strip/-protect/-reset/-set object
// selectors into a per-chunk keep/strip predicate and a set of
// image-data mutations applied to the decoded image before reduction.
// Transforms run first, since e.g. resetting image.alpha is what
// lets the reducer's StripAlpha fire afterward.
//
// Grounded on chunk.go's ChunkName predicates, generalized from "is
// this chunk critical" to "does this chunk survive the configured
// strip/protect sets".
package transform

import (
	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/pngchunk"
)

// Object names the grammar recognizes beyond chunk FourCCs.
type Object string

const (
	ObjectAll            Object = "all"
	ObjectImage          Object = "image"
	ObjectAlpha          Object = "image.alpha"
	ObjectChromaBT601    Object = "image.chroma.bt601"
	ObjectChromaBT709    Object = "image.chroma.bt709"
	ObjectRedPrecision   Object = "image.r.precision"
	ObjectGreenPrecision Object = "image.g.precision"
	ObjectBluePrecision  Object = "image.b.precision"
	ObjectRGBPrecision   Object = "image.rgb.precision"
	ObjectAlphaPrecision Object = "image.alpha.precision"
	ObjectAnimation      Object = "animation"
)

// Spec is the resolved transform configuration: what to strip, what to
// protect, what to reset, and what precision-reduction "set" actions to
// apply. A zero Spec is a no-op.
type Spec struct {
	// StripAll strips every metadata chunk, subject to Protect.
	StripAll bool
	// Strip lists explicit FourCCs to strip, subject to Protect.
	Strip []pngchunk.FourCC

	// ProtectAll overrides any strip, stripping nothing.
	ProtectAll bool
	// Protect lists explicit FourCCs that are never stripped.
	Protect []pngchunk.FourCC

	// ResetAlpha overwrites every alpha sample with the channel max and
	// drops tRNS.
	ResetAlpha bool
	// ResetAnimation strips APNG chunks (acTL/fcTL/fdAT) outright.
	ResetAnimation bool
	// ChromaBT601/ChromaBT709 select a grayscale conversion of RGB data;
	// at most one may be set (Validate rejects both).
	ChromaBT601 bool
	ChromaBT709 bool

	// AlphaPrecision, if non-zero, is the k in "set alpha.precision = k"
	// (1 <= k < 16).
	AlphaPrecision int

	// SetText carries a "tEXt=<value>" request. The selector grammar
	// accepts it, but setting metadata is not implemented; Validate
	// rejects any non-empty value.
	SetText string
}

// Validate checks the structural constraints that cannot be
// expressed in the Spec's zero-value shape alone.
func (s Spec) Validate() error {
	if s.ChromaBT601 && s.ChromaBT709 {
		return errors.New("transform: bt601 and bt709 are mutually exclusive")
	}
	if s.AlphaPrecision != 0 && (s.AlphaPrecision < 1 || s.AlphaPrecision >= 16) {
		return errors.Errorf("transform: alpha.precision must satisfy 1 <= k < 16, got %d", s.AlphaPrecision)
	}
	if s.SetText != "" {
		return ErrTextSetNotImplemented
	}
	return nil
}

// Any reports whether s has any non-default setting.
func (s Spec) Any() bool {
	return s.StripAll || len(s.Strip) > 0 || s.ProtectAll || len(s.Protect) > 0 ||
		s.ResetAlpha || s.ResetAnimation || s.ChromaBT601 || s.ChromaBT709 || s.AlphaPrecision != 0
}

// ErrTextSetNotImplemented is returned for "-set tEXt=<value>": the
// grammar accepts it syntactically but setting metadata is not
// implemented.
var ErrTextSetNotImplemented = errors.New("transform: setting metadata (tEXt=<value>) is not implemented")

// ShouldStrip reports whether chunk fourcc, known to be metadata (per
// pngchunk.FourCC.IsMetadata), is stripped under s.
func (s Spec) ShouldStrip(fourcc pngchunk.FourCC) bool {
	if s.isProtected(fourcc) {
		return false
	}
	if s.StripAll {
		return true
	}
	for _, c := range s.Strip {
		if c == fourcc {
			return true
		}
	}
	return false
}

func (s Spec) isProtected(fourcc pngchunk.FourCC) bool {
	if s.ProtectAll {
		return true
	}
	for _, c := range s.Protect {
		if c == fourcc {
			return true
		}
	}
	return false
}

// StripsAPNG reports whether APNG chunks should be dropped: either
// explicitly via ResetAnimation, or because acTL, fcTL or fdAT is
// stripped by strip-all or an explicit strip entry without being
// protected.
func (s Spec) StripsAPNG() bool {
	if s.ResetAnimation {
		return true
	}
	return s.ShouldStrip(pngchunk.ACTL) || s.ShouldStrip(pngchunk.FCTL) || s.ShouldStrip(pngchunk.FDAT)
}
