// Package redundancy classifies segment step ranges as kept or redundant.
package redundancy

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/tharchive/internal/segment"
)

// ErrInvalidRange indicates a range that cannot take part in classification.
var ErrInvalidRange = errors.New("invalid step range")

// Verdict is the outcome for one range.
type Verdict int

const (
	// Keep: the range contributes steps no kept range covers.
	Keep Verdict = iota
	// Redundant: every step is covered by a kept range named in Decision.Ref.
	Redundant
)

func (v Verdict) String() string {
	if v == Redundant {
		return "redundant"
	}
	return "keep"
}

// Reason explains a Redundant verdict.
type Reason int

const (
	ReasonNone Reason = iota
	// DuplicateOf: same start and end as the reference, which won the tie-break.
	DuplicateOf
	// SubsetOf: strictly covered by the reference.
	SubsetOf
)

func (r Reason) String() string {
	switch r {
	case DuplicateOf:
		return "duplicate-of"
	case SubsetOf:
		return "subset-of"
	default:
		return ""
	}
}

// Decision is the classification of one range.
type Decision struct {
	Range   segment.FileRange
	Verdict Verdict
	Reason  Reason
	// Ref is the path of the range that makes this one redundant.
	Ref string
}

// String renders the decision like "keep" or "duplicate-of(/a/disp2)".
func (d Decision) String() string {
	if d.Verdict == Keep {
		return "keep"
	}
	return fmt.Sprintf("%s(%s)", d.Reason, d.Ref)
}

// compareRanges is the classification order: start ascending, size
// descending, mtime descending, path ascending.
func compareRanges(a, b segment.FileRange) int {
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Size, a.Size); c != 0 {
		return c
	}
	if c := b.ModTime.Compare(a.ModTime); c != 0 {
		return c
	}
	return strings.Compare(a.Path, b.Path)
}

// Resolve classifies ranges. Decisions come back in classification order.
//
// Equal spans are duplicates: the larger file wins, then the newer one.
// A range inside another is a subset of it. Partial overlaps are always
// kept; they are never merged. A range marked redundant takes no further
// part in comparisons.
func Resolve(ranges []segment.FileRange) ([]Decision, error) {
	for _, r := range ranges {
		if r.Path == "" {
			return nil, fmt.Errorf("%w: empty path", ErrInvalidRange)
		}
		if r.Start > r.End {
			return nil, fmt.Errorf("%w: %s starts at %d after end %d", ErrInvalidRange, r.Path, r.Start, r.End)
		}
	}

	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, compareRanges)

	decisions := make([]Decision, len(sorted))
	for i, r := range sorted {
		decisions[i] = Decision{Range: r, Verdict: Keep}
	}

	mark := func(loser, winner int, reason Reason) {
		decisions[loser].Verdict = Redundant
		decisions[loser].Reason = reason
		decisions[loser].Ref = sorted[winner].Path
	}

	for i := range sorted {
		if decisions[i].Verdict == Redundant {
			continue
		}
		a := sorted[i]

		for j := range sorted {
			if j == i || decisions[j].Verdict == Redundant {
				continue
			}
			b := sorted[j]

			if a.SameSpan(b) {
				if duplicateWinner(i, j, sorted) == i {
					mark(j, i, DuplicateOf)
					continue
				}
				mark(i, j, DuplicateOf)
				break
			}
			if a.Contains(b) {
				mark(j, i, SubsetOf)
			}
		}
	}

	return decisions, nil
}

// duplicateWinner picks between two ranges of equal span: strictly larger
// size, then strictly newer mtime, then the earlier one in sorted order.
func duplicateWinner(i, j int, sorted []segment.FileRange) int {
	a, b := sorted[i], sorted[j]
	switch {
	case a.Size > b.Size:
		return i
	case b.Size > a.Size:
		return j
	case a.ModTime.After(b.ModTime):
		return i
	case b.ModTime.After(a.ModTime):
		return j
	case i < j:
		return i
	default:
		return j
	}
}

// Summary counts decisions.
type Summary struct {
	Kept       int
	Duplicates int
	Subsets    int
	// RedundantBytes is the total size of redundant ranges.
	RedundantBytes int64
}

// Summarize counts decisions by outcome.
func Summarize(decisions []Decision) Summary {
	var s Summary
	for _, d := range decisions {
		switch {
		case d.Verdict == Keep:
			s.Kept++
		case d.Reason == DuplicateOf:
			s.Duplicates++
			s.RedundantBytes += d.Range.Size
		case d.Reason == SubsetOf:
			s.Subsets++
			s.RedundantBytes += d.Range.Size
		}
	}
	return s
}

// Survivors returns the kept ranges in ascending start order.
func Survivors(decisions []Decision) []segment.FileRange {
	var out []segment.FileRange
	for _, d := range decisions {
		if d.Verdict == Keep {
			out = append(out, d.Range)
		}
	}
	slices.SortStableFunc(out, compareRanges)
	return out
}
