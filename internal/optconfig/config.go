// Package optconfig defines the resolved, typed configuration record the
// orchestrator and its collaborators act on. It intentionally pulls in
// no flag-parsing library: CLI parsing is a collaborator concern, so
// this is the record a CLI layer would populate, not the CLI layer itself.
package optconfig

import "github.com/optipng-go/optipng/internal/transform"

// Interlace mirrors the image model's interlace method, but also carries
// "leave unchanged" so the orchestrator can tell -i0/-i1 apart from "no -i
// flag given".
type Interlace int

const (
	InterlaceUnspecified Interlace = iota
	InterlaceNone
	InterlaceAdam7
)

// ReductionMask selects which reduction categories are enabled; each bit
// corresponds to one of -nb/-nc/-np. -nz is not part of the mask (see
// Config.NoIDATRecode).
type ReductionMask uint8

const (
	ReduceBitDepth ReductionMask = 1 << iota // not disabled by -nb
	ReduceColor                              // not disabled by -nc
	ReducePalette                            // not disabled by -np
)

// AllReductions is the default mask when none of -nb/-nc/-np/-nx is given.
const AllReductions = ReduceBitDepth | ReduceColor | ReducePalette

// Config is the resolved set of options driving one session (one file, or
// one pass over several files sharing the same options).
type Config struct {
	OptimLevel int // -o; selects a preset row

	Filters    []int // -f;  rangeset over 0..5
	Strategies []int // -zs; rangeset over 0..3
	CLevels    []int // -zc; rangeset over 1..9
	MLevels    []int // -zm; rangeset over 1..9
	WindowBits int   // -zw; log2 of the window size, 8..15; 0 = unset

	Interlace Interlace // -i

	Reductions   ReductionMask // -nb/-nc/-np combine; see above
	NoIDATRecode bool          // -nz

	Backup    bool   // -backup
	OutDir    string // -dir
	OutPath   string // -out
	Stdout    bool   // -stdout
	Fix       bool   // -fix
	Force     bool   // -force
	NoClobber bool   // -no-clobber
	NoCreate  bool   // -no-create (dry run)
	Paranoid  bool   // -paranoid
	Preserve  bool   // -preserve
	Snip      bool   // -snip

	Transform transform.Spec // -strip/-protect/-reset/-set
}

// Default returns the level-2 preset configuration,
// the configuration used when the caller supplies no overrides.
func Default() Config {
	return Config{
		OptimLevel: 2,
		Reductions: AllReductions,
	}
}

// IDATRecodeMandatory reports whether the session must rewrite IDAT
// regardless of whether the trial search finds a smaller encoding.
func (c Config) IDATRecodeMandatory(reductionsApplied, interlaceChanged, nonPNGInput bool) bool {
	return c.Force || c.Paranoid || reductionsApplied || interlaceChanged || nonPNGInput
}
