package trial

import (
	"github.com/optipng-go/optipng/internal/encoder"
	"github.com/optipng-go/optipng/internal/pngimage"
)

// Best is the winning trial: the parameters and the IDAT size they
// produced.
type Best struct {
	Params   encoder.Params
	IDATSize int
}

// Run iterates grid's hyper-rectangle outer-to-inner (filter, strategy,
// zclevel desc, zmemlevel desc), applying the HuffmanOnly/RLE
// degenerations, running encoder.Trial at each point, and selecting the
// smallest IDAT with ties broken toward the earlier (lower-numbered)
// strategy.
//
// maxIDATSize is the starting early-abandon ceiling; it tightens to the
// best IDAT size seen so far unless paranoid is set, matching "after
// each successful trial, max_idat_size tightens to the best seen (unless
// -paranoid)".
func Run(img *pngimage.Image, grid Grid, maxIDATSize int, paranoid bool) (Best, bool) {
	if short, ok := shortCircuit(grid); ok {
		size, err := encoder.Trial(img, short, maxIDATSize)
		if err != nil {
			return Best{}, false
		}
		return Best{Params: short, IDATSize: size}, true
	}

	var best Best
	found := false
	ceiling := maxIDATSize

	for _, filter := range grid.Filters {
		for _, strategy := range grid.Strategies {
			clevels := degenerateCLevels(strategy, grid.CLevels)
			for _, clevel := range clevels {
				for _, mlevel := range grid.MLevels {
					params := encoder.Params{
						Filter:     encoder.Filter(filter),
						Strategy:   encoder.Strategy(strategy),
						Level:      clevel,
						MemLevel:   mlevel,
						WindowBits: grid.WindowBits,
					}
					size, err := encoder.Trial(img, params, ceiling)
					if err != nil {
						continue // oversize: treated as a losing trial
					}
					if !found || size < best.IDATSize {
						best = Best{Params: params, IDATSize: size}
						found = true
						if !paranoid {
							ceiling = size
						}
					}
				}
			}
		}
	}

	return best, found
}

// degenerateCLevels applies the strategy-forced level restrictions:
// HuffmanOnly forces level 1 (deflate_fast), RLE forces level 9
// (deflate_slow).
func degenerateCLevels(strategy int, clevels []int) []int {
	switch encoder.Strategy(strategy) {
	case encoder.StrategyHuffmanOnly:
		return []int{1}
	case encoder.StrategyRLE:
		return []int{9}
	default:
		return clevels
	}
}

// shortCircuit reports whether grid's product is exactly one point; if
// so, that single combination is returned without running a search loop
// (the caller still invokes encoder.Trial on it once to get its size,
// meaning no comparison search is run, not that no compression work happens).
func shortCircuit(grid Grid) (encoder.Params, bool) {
	if len(grid.Filters) != 1 || len(grid.Strategies) != 1 || len(grid.CLevels) != 1 || len(grid.MLevels) != 1 {
		return encoder.Params{}, false
	}
	clevels := degenerateCLevels(grid.Strategies[0], grid.CLevels)
	if len(clevels) != 1 {
		return encoder.Params{}, false
	}
	return encoder.Params{
		Filter:     encoder.Filter(grid.Filters[0]),
		Strategy:   encoder.Strategy(grid.Strategies[0]),
		Level:      clevels[0],
		MemLevel:   grid.MLevels[0],
		WindowBits: grid.WindowBits,
	}, true
}
