package trial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optipng-go/optipng/internal/pngimage"
	"github.com/optipng-go/optipng/internal/rangeset"
)

func solidImage(w, h int) *pngimage.Image {
	img := &pngimage.Image{
		Width: uint32(w), Height: uint32(h),
		BitDepth: 8, ColorType: pngimage.RGBColor,
	}
	img.Rows = img.NewBlankRows(img.RowStride())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pngimage.SetSample(img.Rows[y], x, 0, 3, 8, 200)
			pngimage.SetSample(img.Rows[y], x, 1, 3, 8, 200)
			pngimage.SetSample(img.Rows[y], x, 2, 3, 8, 200)
		}
	}
	return img
}

func TestPresetFor_DefaultLevel(t *testing.T) {
	p := PresetFor(2)
	assert.True(t, p.Filters.Test(0))
	assert.True(t, p.Filters.Test(5))
	assert.Equal(t, 4, p.Strategies.Count()) // {0,1,2,3}
	assert.True(t, p.CLevels.Test(9))
	assert.True(t, p.MLevels.Test(8))
}

func TestBuildGrid_UserFiltersReplaceWhenNoLevel(t *testing.T) {
	var userFilters rangeset.Set
	userFilters = userFilters.SetRange(0, 2)
	opts := Options{HasUserFilters: true, UserFilters: userFilters}
	img := solidImage(4, 4)
	grid := BuildGrid(opts, img)
	assert.ElementsMatch(t, []int{0, 1, 2}, grid.Filters)
}

func TestBuildGrid_UnionsWithLevel(t *testing.T) {
	var userFilters rangeset.Set
	userFilters = userFilters.Set(3)
	opts := Options{HasLevel: true, Level: 0, HasUserFilters: true, UserFilters: userFilters}
	img := solidImage(4, 4)
	grid := BuildGrid(opts, img)
	assert.ElementsMatch(t, []int{0, 3, 5}, grid.Filters)
}

func TestBuildGrid_WindowBitsShrinksForHuffmanOnly(t *testing.T) {
	var strategies rangeset.Set
	strategies = strategies.Set(2) // HuffmanOnly
	opts := Options{HasUserStrats: true, UserStrategies: strategies}
	img := solidImage(256, 256) // raw scanline data well past 2^15
	grid := BuildGrid(opts, img)
	assert.Equal(t, 14, grid.WindowBits)
}

func TestBuildGrid_WindowBitsMatchesSmallImages(t *testing.T) {
	img := solidImage(4, 4) // 4*(12+1) = 52 raw bytes, within 2^8
	grid := BuildGrid(Options{HasLevel: true, Level: 2}, img)
	assert.Equal(t, 8, grid.WindowBits)
}

func TestRun_SelectsSmallestIDAT(t *testing.T) {
	img := solidImage(16, 16)
	grid := BuildGrid(Options{HasLevel: true, Level: 2}, img)
	best, ok := Run(img, grid, -1, false)
	require.True(t, ok)
	assert.Greater(t, best.IDATSize, 0)
}

func TestRun_ShortCircuitSingleCombination(t *testing.T) {
	img := solidImage(4, 4)
	grid := Grid{Filters: []int{0}, Strategies: []int{0}, CLevels: []int{6}, MLevels: []int{8}, WindowBits: 15}
	best, ok := Run(img, grid, -1, false)
	require.True(t, ok)
	assert.EqualValues(t, 0, best.Params.Filter)
	assert.EqualValues(t, 6, best.Params.Level)
}

func TestDegenerateCLevels_HuffmanOnlyForcesLevel1(t *testing.T) {
	out := degenerateCLevels(int(2), []int{9, 8, 7})
	assert.Equal(t, []int{1}, out)
}

func TestDegenerateCLevels_RLEForcesLevel9(t *testing.T) {
	out := degenerateCLevels(int(3), []int{1, 2})
	assert.Equal(t, []int{9}, out)
}
