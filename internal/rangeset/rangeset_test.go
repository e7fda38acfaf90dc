package rangeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DashTrailing(t *testing.T) {
	// S6: "7-,5" over mask 0..15 => {5,7,8,...,15}
	mask := Set(0).SetRange(0, 15)
	got, err := Parse("7-,5", mask)
	require.NoError(t, err)

	want := Set(0).Set(5).SetRange(7, 15)
	assert.Equal(t, want, got)
}

func TestParse_WhitespaceInsensitive(t *testing.T) {
	mask := Set(0).SetRange(0, 9)
	got, err := Parse(" 1 , 3-5 ;7 ", mask)
	require.NoError(t, err)
	want := Set(0).Set(1).SetRange(3, 5).Set(7)
	assert.Equal(t, want, got)
}

func TestParse_FullDash(t *testing.T) {
	mask := Set(0).SetRange(0, 5)
	got, err := Parse("-", mask)
	require.NoError(t, err)
	assert.Equal(t, mask, got)
}

func TestParse_OutOfRangeSetsFull(t *testing.T) {
	mask := Set(0).SetRange(0, 5)
	got, err := Parse("9", mask)
	assert.ErrorIs(t, err, ErrRange)
	assert.Equal(t, Full, got)
}

func TestParse_MalformedSetsEmpty(t *testing.T) {
	mask := Set(0).SetRange(0, 5)
	got, err := Parse("1-2-3", mask)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, Set(0), got)
}

func TestParse_ReversedRangeIsRangeError(t *testing.T) {
	mask := Set(0).SetRange(0, 5)
	_, err := Parse("5-3", mask)
	assert.ErrorIs(t, err, ErrRange)
}

func TestRoundTrip(t *testing.T) {
	mask := Set(0).SetRange(0, 15)
	cases := []string{"0", "1,3-5", "5,7-", "0-15", "2-2"}
	for _, s := range cases {
		set, err := Parse(s, mask)
		require.NoError(t, err)
		formatted := Format(set, mask)
		reparsed, err := Parse(formatted, mask)
		require.NoError(t, err)
		assert.Equal(t, set, reparsed, "round trip for %q via %q", s, formatted)
	}
}

func TestFormat_S6(t *testing.T) {
	mask := Set(0).SetRange(0, 15)
	set := Set(0).Set(5).SetRange(7, 15)
	assert.Equal(t, "5,7-", Format(set, mask))
}

func TestFindFirstNextLast(t *testing.T) {
	s := Set(0).Set(2).Set(5).Set(31)
	assert.Equal(t, 2, s.FindFirst())
	assert.Equal(t, 5, s.FindNext(2))
	assert.Equal(t, 31, s.FindLast())
	assert.Equal(t, -1, s.FindNext(31))
}

func TestCount(t *testing.T) {
	s := Set(0).SetRange(0, 9)
	assert.Equal(t, 10, s.Count())
}
