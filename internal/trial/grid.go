// Package trial iterates the (filter, zstrategy, zclevel, zmemlevel)
// hyper-rectangle, early-abandoning oversize trials via encoder.Trial,
// and selects the best encoding parameters.
//
// Grounded on the preset table this optimizer defines (no analogous
// nested-loop search exists upstream, since XC-Zero/simple-png neither
// compresses nor searches parameters); the iteration order and
// degenerations below come directly from that preset table.
package trial

import (
	"sort"

	"github.com/optipng-go/optipng/internal/encoder"
	"github.com/optipng-go/optipng/internal/pngimage"
	"github.com/optipng-go/optipng/internal/rangeset"
)

// Preset is one row of the optim_level table.
type Preset struct {
	Filters    rangeset.Set
	Strategies rangeset.Set
	CLevels    rangeset.Set
	MLevels    rangeset.Set
}

func setOf(elts ...int) rangeset.Set {
	var s rangeset.Set
	for _, e := range elts {
		s = s.Set(e)
	}
	return s
}

func rangeOf(lo, hi int) rangeset.Set {
	var s rangeset.Set
	for e := lo; e <= hi; e++ {
		s = s.Set(e)
	}
	return s
}

// PresetFor returns the preset for optim_level; levels
// above 6 reuse the "6+" row.
func PresetFor(level int) Preset {
	switch {
	case level <= 0:
		return Preset{setOf(0, 5), setOf(0), setOf(3), setOf(8)}
	case level == 1:
		return Preset{setOf(0, 5), setOf(0), setOf(9), setOf(8)}
	case level == 2:
		return Preset{setOf(0, 5), rangeOf(0, 3), setOf(9), setOf(8)}
	case level == 3:
		return Preset{setOf(0, 5), rangeOf(0, 3), setOf(9), setOf(8, 9)}
	case level == 4:
		return Preset{rangeOf(0, 5), rangeOf(0, 3), setOf(9), setOf(8, 9)}
	case level == 5:
		return Preset{rangeOf(0, 5), rangeOf(0, 3), rangeOf(3, 9), setOf(8, 9)}
	default: // 6+
		return Preset{rangeOf(0, 5), rangeOf(0, 3), rangeOf(1, 9), setOf(7, 8, 9)}
	}
}

// Grid is the resolved set of values each axis of the hyper-rectangle
// will iterate, after combining a preset (if any) with user overrides
// and filling in image-shape-dependent defaults.
type Grid struct {
	Filters    []int
	Strategies []int
	CLevels    []int // descending
	MLevels    []int // descending
	WindowBits int
}

// Options carries the user-supplied -f/-zs/-zc/-zm rangesets (nil/zero
// Set meaning "not specified") plus whether an optim_level preset is
// also in effect, and the image shape needed for the empty-set defaults.
type Options struct {
	Level          int
	HasLevel       bool
	UserFilters    rangeset.Set
	HasUserFilters bool
	UserStrategies rangeset.Set
	HasUserStrats  bool
	UserCLevels    rangeset.Set
	HasUserCLevels bool
	UserMLevels    rangeset.Set
	HasUserMLevels bool
	UserWindowBits int // 0 means unspecified
}

// BuildGrid resolves Options against img's shape into the final
// iteration grid.
func BuildGrid(opts Options, img *pngimage.Image) Grid {
	var preset Preset
	if opts.HasLevel {
		preset = PresetFor(opts.Level)
	}

	filters := combine(opts.HasLevel, preset.Filters, opts.HasUserFilters, opts.UserFilters)
	strategies := combine(opts.HasLevel, preset.Strategies, opts.HasUserStrats, opts.UserStrategies)
	clevels := combine(opts.HasLevel, preset.CLevels, opts.HasUserCLevels, opts.UserCLevels)
	mlevels := combine(opts.HasLevel, preset.MLevels, opts.HasUserMLevels, opts.UserMLevels)

	bigImage := int(img.BitDepth) >= 8 && img.ColorType != pngimage.PaletteColor

	if filters == 0 {
		if bigImage {
			filters = setOf(5)
		} else {
			filters = setOf(0)
		}
	}
	if strategies == 0 {
		if bigImage {
			strategies = setOf(1)
		} else {
			strategies = setOf(0)
		}
	}
	if clevels == 0 {
		clevels = setOf(9)
	}
	if mlevels == 0 {
		mlevels = setOf(8)
	}

	windowBits := opts.UserWindowBits
	if windowBits == 0 {
		windowBits = windowBitsFor(img)
		if hasOnly(strategies, int(encoder.StrategyHuffmanOnly)) || hasOnly(strategies, int(encoder.StrategyRLE)) {
			if windowBits > 8 {
				windowBits--
			}
		}
	}

	return Grid{
		Filters:    toSlice(filters),
		Strategies: toSlice(strategies),
		CLevels:    toSliceDesc(clevels),
		MLevels:    toSliceDesc(mlevels),
		WindowBits: windowBits,
	}
}

// windowBitsFor picks the smallest window in {8..15} that covers the
// image's uncompressed scanline data; a larger window cannot find
// matches the data does not contain.
func windowBitsFor(img *pngimage.Image) int {
	rawSize := int64(img.Height) * int64(img.RowStride()+1)
	for wb := 8; wb < 15; wb++ {
		if int64(1)<<uint(wb) >= rawSize {
			return wb
		}
	}
	return 15
}

func combine(hasLevel bool, preset rangeset.Set, hasUser bool, user rangeset.Set) rangeset.Set {
	switch {
	case hasLevel && hasUser:
		return preset | user
	case hasLevel:
		return preset
	case hasUser:
		return user
	default:
		return 0
	}
}

func hasOnly(s rangeset.Set, v int) bool {
	return s.Count() == 1 && s.Test(v)
}

func toSlice(s rangeset.Set) []int {
	out := s.Slice()
	sort.Ints(out)
	return out
}

func toSliceDesc(s rangeset.Set) []int {
	out := s.Slice()
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
