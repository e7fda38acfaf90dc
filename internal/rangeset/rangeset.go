// Package rangeset parses and formats the comma/dash-separated integer
// sets used by -f/-zc/-zm/-zs, grounded on
// original_source/src/optipng/bitset.c's opng_strparse_rangeset_to_bitset
// and the bit-scan helpers (opng_bitset_find_first/_next) it is built on.
package rangeset

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxElt is the highest element a Set can hold, mirroring
// OPNG_BITSET_ELT_MAX for a 32-bit opng_bitset_t.
const MaxElt = 31

// Set is a bitset over 0..MaxElt.
type Set uint32

// Full is the bitset with every element set (OPNG_BITSET_FULL).
const Full Set = ^Set(0)

// Test reports whether elt is a member of s.
func (s Set) Test(elt int) bool {
	if elt < 0 || elt > MaxElt {
		return false
	}
	return s&(1<<uint(elt)) != 0
}

// Set returns s with elt added.
func (s Set) Set(elt int) Set {
	if elt < 0 || elt > MaxElt {
		return s
	}
	return s | (1 << uint(elt))
}

// SetRange returns s with every element in [start,stop] added.
func (s Set) SetRange(start, stop int) Set {
	if start > stop {
		return s
	}
	return s | rangeMask(start, stop)
}

func rangeMask(start, stop int) Set {
	return Set(((uint64(1)<<uint(stop-start)<<1)-1) << uint(start))
}

// Count returns the number of elements in s (Wegner's method, as in the C
// source).
func (s Set) Count() int {
	n := 0
	for s != 0 {
		s &= s - 1
		n++
	}
	return n
}

// FindFirst returns the lowest element in s, or -1 if s is empty.
func (s Set) FindFirst() int {
	return s.FindNext(-1)
}

// FindNext returns the lowest element in s strictly greater than elt, or -1.
func (s Set) FindNext(elt int) int {
	for i := elt + 1; i <= MaxElt; i++ {
		if s.Test(i) {
			return i
		}
	}
	return -1
}

// FindLast returns the highest element in s, or -1 if s is empty.
func (s Set) FindLast() int {
	for i := MaxElt; i >= 0; i-- {
		if s.Test(i) {
			return i
		}
	}
	return -1
}

// Slice returns the elements of s in ascending order.
func (s Set) Slice() []int {
	var out []int
	for i := s.FindFirst(); i >= 0; i = s.FindNext(i) {
		out = append(out, i)
	}
	return out
}

// Parse parses a rangeset string against the given mask, matching
// opng_strparse_rangeset_to_bitset's state machine exactly:
//
//	item = N | N-N | N-
//	S     = item (SEP item)*   SEP ∈ {',', ';'}
//
// An out-of-range element (or a range including one) sets the result to
// Full and reports ErrRange. Malformed input sets the result to empty and
// reports ErrInvalid. Leading/trailing/internal whitespace is ignored.
func Parse(s string, mask Set) (Set, error) {
	// A bare "-" is shorthand for the full range within the mask.
	if strings.TrimSpace(s) == "-" {
		return mask, nil
	}

	var result Set
	var errInvalid, errRange bool

	ptr := s
	state := 0 // 0: "", 1: "N", 2: "N-"
	num1, num2 := -1, -1

loop:
	for {
		ptr = skipSpace(ptr)
		switch state {
		case 0, 2:
			if len(ptr) > 0 && isDigit(ptr[0]) {
				num, rest, overflowed := scanNumber(ptr)
				ptr = rest
				if overflowed {
					num = MaxElt
					errRange = true
				}
				if !mask.Test(num) {
					errRange = true
				}
				if state == 0 {
					num1 = num
				}
				num2 = num
				state++
				continue loop
			}
		case 1:
			if len(ptr) > 0 && ptr[0] == '-' {
				ptr = ptr[1:]
				num2 = MaxElt
				state++
				continue loop
			}
		}

		if state > 0 {
			if num1 <= num2 {
				result = result.SetRange(num1, num2)
				result &= mask
			} else {
				errRange = true
			}
			state = 0
		}

		switch {
		case len(ptr) > 0 && (ptr[0] == ',' || ptr[0] == ';'):
			ptr = ptr[1:]
			continue loop
		case len(ptr) > 0 && ptr[0] == '-':
			errInvalid = true
			break loop
		default:
			break loop
		}
	}

	ptr = skipSpace(ptr)
	if len(ptr) != 0 {
		errInvalid = true
	}

	if errInvalid {
		return 0, errors.WithStack(ErrInvalid)
	}
	if errRange {
		return Full, errors.WithStack(ErrRange)
	}
	return result, nil
}

// ErrInvalid is reported for a rangeset string that does not match the
// grammar at all.
var ErrInvalid = errors.New("rangeset: invalid syntax")

// ErrRange is reported for a syntactically valid rangeset string that
// names an element outside mask, or an empty/reversed range like "5-3".
var ErrRange = errors.New("rangeset: element out of range")

func skipSpace(s string) string {
	return strings.TrimLeft(s, " \t\n\r\f\v")
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func scanNumber(s string) (num int, rest string, overflowed bool) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n > MaxElt {
		return 0, s[i:], true
	}
	return n, s[i:], false
}

// Format renders s as its canonical minimal rangeset string: ascending,
// comma-separated runs, each run collapsed to "a-b" (or "a" for a
// singleton), and a run reaching mask's highest member rendered as "a-"
// (matching S6: {5,7..15} over mask 0..15 formats as "5,7-").
func Format(s Set, mask Set) string {
	if s == 0 {
		return ""
	}
	maxMember := mask.FindLast()
	var parts []string
	i := s.FindFirst()
	for i >= 0 {
		runStart := i
		runEnd := i
		for {
			next := s.FindNext(runEnd)
			if next == runEnd+1 {
				runEnd = next
				continue
			}
			break
		}
		switch {
		case runEnd == maxMember && runEnd > runStart:
			parts = append(parts, strconv.Itoa(runStart)+"-")
		case runEnd == runStart:
			parts = append(parts, strconv.Itoa(runStart))
		default:
			parts = append(parts, strconv.Itoa(runStart)+"-"+strconv.Itoa(runEnd))
		}
		i = s.FindNext(runEnd)
	}
	return strings.Join(parts, ",")
}
