package encoder

// Filter is a PNG per-row filter type: 0-4 are the five defined filter
// functions and 5 means "adaptive: try all five per row and keep the
// cheapest".
type Filter int

const (
	FilterNone Filter = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
	FilterAdaptive
)

// bpp is the number of bytes per complete pixel, rounded up to 1 for
// sub-byte-depth images (PNG filtering always operates byte-wise, using
// bpp=1 when pixel_bits < 8).
func bppFor(channels, bitDepth int) int {
	bpp := (channels*bitDepth + 7) / 8
	if bpp < 1 {
		return 1
	}
	return bpp
}

func paeth(a, b, c byte) byte {
	pa := abs(int(b) - int(c))
	pb := abs(int(a) - int(c))
	pc := abs(int(a) + int(b) - 2*int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// filterRow writes the filtered form of cur (given prev, the row above,
// or nil for the first row) into dst using filter type ft. dst must have
// len(cur) capacity; bpp is bytes-per-pixel for this row layout.
func filterRow(dst, cur, prev []byte, bpp int, ft Filter) {
	for i, x := range cur {
		var a, b, c byte
		if i >= bpp {
			a = cur[i-bpp]
		}
		if prev != nil {
			b = prev[i]
		}
		if prev != nil && i >= bpp {
			c = prev[i-bpp]
		}
		switch ft {
		case FilterNone:
			dst[i] = x
		case FilterSub:
			dst[i] = x - a
		case FilterUp:
			dst[i] = x - b
		case FilterAverage:
			dst[i] = x - byte((int(a)+int(b))/2)
		case FilterPaeth:
			dst[i] = x - paeth(a, b, c)
		}
	}
}

// sumAbsSigned scores a filtered row the way the reference encoder's
// minimum-sum-of-absolute-differences heuristic does: each byte is
// treated as a signed residual and the score is the sum of |residual|.
func sumAbsSigned(row []byte) int {
	sum := 0
	for _, b := range row {
		v := int(int8(b))
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum
}

// chooseAdaptiveFilter tries all five filter types for cur (given prev)
// and returns the filtered row and filter byte with the lowest
// sum-of-absolute-differences heuristic score.
func chooseAdaptiveFilter(cur, prev []byte, bpp int) (Filter, []byte) {
	best := FilterNone
	bestScore := -1
	bestRow := make([]byte, len(cur))
	scratch := make([]byte, len(cur))

	for ft := FilterNone; ft <= FilterPaeth; ft++ {
		filterRow(scratch, cur, prev, bpp, ft)
		score := sumAbsSigned(scratch)
		if bestScore == -1 || score < bestScore {
			bestScore = score
			best = ft
			copy(bestRow, scratch)
		}
	}
	return best, bestRow
}
