// Package segment parses time-history segment files and describes their
// step coverage.
package segment

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kind selects the record layout of a segment.
type Kind int

const (
	// KindEntity segments hold one numeric vector per tracked entity per step.
	KindEntity Kind = iota
	// KindAggregate segments hold a small fixed set of named fields per step.
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entity", "entities", "nodal":
		return KindEntity, nil
	case "aggregate", "global":
		return KindAggregate, nil
	default:
		return 0, fmt.Errorf("unknown segment kind %q", s)
	}
}

// EntityValue is the vector recorded for one entity at one step.
type EntityValue struct {
	ID     int64
	Values []float64
}

// Field is one named aggregate value at one step.
type Field struct {
	Name   string
	Values []float64
}

// Record is one step of a time history.
type Record struct {
	Step int64
	Time float64

	// Exactly one of these is populated, depending on the segment kind.
	// Both are nil for headers-only parsing.
	Entities []EntityValue
	Fields   []Field
}

// Field returns the named aggregate field.
func (r Record) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FileRange is the step coverage of one segment, used for redundancy
// classification. It is never mutated.
type FileRange struct {
	Path    string
	Start   int64
	End     int64
	Size    int64
	ModTime time.Time
}

// Contains reports whether o lies entirely within r.
func (r FileRange) Contains(o FileRange) bool {
	return o.Start >= r.Start && o.End <= r.End
}

// SameSpan reports whether r and o cover exactly the same steps.
func (r FileRange) SameSpan(o FileRange) bool {
	return r.Start == o.Start && r.End == o.End
}

func (r FileRange) String() string {
	return fmt.Sprintf("%s [%d..%d] %dB", r.Path, r.Start, r.End, r.Size)
}

// Segment is one on-disk time-history file.
type Segment struct {
	Path    string
	Size    int64
	ModTime time.Time
	Kind    Kind
	Records []Record

	rangeOnce sync.Once
	minStep   int64
	maxStep   int64
	rangeErr  error
}

// StepBounds returns the smallest and largest step id in the segment.
// Computed on first use.
func (s *Segment) StepBounds() (int64, int64, error) {
	s.rangeOnce.Do(func() {
		if len(s.Records) == 0 {
			s.rangeErr = &ParseError{Path: s.Path, Err: ErrNoRecords}
			return
		}
		s.minStep, s.maxStep = s.Records[0].Step, s.Records[0].Step
		for _, r := range s.Records[1:] {
			if r.Step < s.minStep {
				s.minStep = r.Step
			}
			if r.Step > s.maxStep {
				s.maxStep = r.Step
			}
		}
	})
	return s.minStep, s.maxStep, s.rangeErr
}

// Range projects the segment onto a FileRange.
func (s *Segment) Range() (FileRange, error) {
	lo, hi, err := s.StepBounds()
	if err != nil {
		return FileRange{}, err
	}
	return FileRange{
		Path:    s.Path,
		Start:   lo,
		End:     hi,
		Size:    s.Size,
		ModTime: s.ModTime,
	}, nil
}

// StepSet is an allow-set of step ids. A nil set allows every step.
type StepSet map[int64]struct{}

// NewStepSet builds a StepSet from ids.
func NewStepSet(ids ...int64) StepSet {
	set := make(StepSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Allows reports whether step passes the set.
func (s StepSet) Allows(step int64) bool {
	if s == nil {
		return true
	}
	_, ok := s[step]
	return ok
}
