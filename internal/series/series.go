// Package series merges parsed segments into one logical time history.
package series

import (
	"errors"
	"fmt"
	"slices"

	"github.com/raphaelgruber/tharchive/internal/segment"
)

// ErrInvalidIncrement is returned by Rebase for a non-positive increment.
var ErrInvalidIncrement = errors.New("step increment must be positive")

// MergeStats counts what a merge did.
type MergeStats struct {
	Segments    int
	Appended    int
	Overwritten int
}

// Series is a time history keyed by step id.
//
// Put overwrites on collision: when a step id is already present, the new
// record replaces the stored fields and time in place, keeping the slot.
// This is the restart replay rule, where a segment processed later
// supersedes any earlier record of the same step.
type Series struct {
	kind    segment.Kind
	records []segment.Record
	byStep  map[int64]int
	byTime  map[float64]int
}

// New returns an empty series.
func New(kind segment.Kind) *Series {
	return &Series{
		kind:   kind,
		byStep: make(map[int64]int),
		byTime: make(map[float64]int),
	}
}

// Kind returns the record layout of the series.
func (s *Series) Kind() segment.Kind {
	return s.kind
}

// Put stores rec and reports whether it replaced an existing step.
func (s *Series) Put(rec segment.Record) bool {
	if i, ok := s.byStep[rec.Step]; ok {
		old := s.records[i]
		if j, ok := s.byTime[old.Time]; ok && j == i {
			delete(s.byTime, old.Time)
		}
		s.records[i] = rec
		s.byTime[rec.Time] = i
		return true
	}
	s.byStep[rec.Step] = len(s.records)
	s.byTime[rec.Time] = len(s.records)
	s.records = append(s.records, rec)
	return false
}

// Merge folds segments into a new series in exactly the given order.
// Sort them with segment.Sort first; the result depends on it.
func Merge(kind segment.Kind, segments []*segment.Segment) (*Series, MergeStats) {
	s := New(kind)
	stats := MergeStats{Segments: len(segments)}
	for _, seg := range segments {
		for _, rec := range seg.Records {
			if s.Put(rec) {
				stats.Overwritten++
			} else {
				stats.Appended++
			}
		}
	}
	return s, stats
}

// Len returns the number of distinct steps.
func (s *Series) Len() int {
	return len(s.records)
}

// Get returns the record stored for step.
func (s *Series) Get(step int64) (segment.Record, bool) {
	i, ok := s.byStep[step]
	if !ok {
		return segment.Record{}, false
	}
	return s.records[i], true
}

// AtTime returns the record stored at elapsed time t. Times are matched
// exactly; call Rebase first when restarts introduced drift.
func (s *Series) AtTime(t float64) (segment.Record, bool) {
	i, ok := s.byTime[t]
	if !ok {
		return segment.Record{}, false
	}
	return s.records[i], true
}

// Ordered returns the records sorted by step id.
func (s *Series) Ordered() []segment.Record {
	out := slices.Clone(s.records)
	slices.SortFunc(out, func(a, b segment.Record) int {
		switch {
		case a.Step < b.Step:
			return -1
		case a.Step > b.Step:
			return 1
		}
		return 0
	})
	return out
}

// Steps returns the step ids in ascending order.
func (s *Series) Steps() []int64 {
	steps := make([]int64, 0, len(s.records))
	for _, r := range s.records {
		steps = append(steps, r.Step)
	}
	slices.Sort(steps)
	return steps
}

// First returns the record with the smallest step id.
func (s *Series) First() (segment.Record, bool) {
	if len(s.records) == 0 {
		return segment.Record{}, false
	}
	first := s.records[0]
	for _, r := range s.records[1:] {
		if r.Step < first.Step {
			first = r
		}
	}
	return first, true
}

// Rebase rewrites every elapsed time as increment*(ordinal+1), where
// ordinal is the position in step order, and rebuilds the time index.
// It removes floating point drift accumulated across restarts.
func (s *Series) Rebase(increment float64) error {
	if !(increment > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidIncrement, increment)
	}

	order := make([]int, len(s.records))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		sa, sb := s.records[a].Step, s.records[b].Step
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	})

	s.byTime = make(map[float64]int, len(s.records))
	for ordinal, i := range order {
		s.records[i].Time = increment * float64(ordinal+1)
		s.byTime[s.records[i].Time] = i
	}
	return nil
}
