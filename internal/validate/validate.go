// Package validate cross-checks a merged time history against the restart
// step recorded in the run configuration.
package validate

import (
	"fmt"

	"github.com/raphaelgruber/tharchive/internal/series"
)

// Status is the outcome of a consistency check.
type Status int

const (
	// Match: the first retained step directly follows the restart step.
	Match Status = iota
	// Mismatch: the first retained step is not restart+1.
	Mismatch
	// MissingExpected: no restart step configured, yet the history does
	// not begin at its origin.
	MissingExpected
	// NotApplicable: no restart step configured and the history begins at
	// its origin, as for a run that was never restarted.
	NotApplicable
	// Empty: the history has no steps.
	Empty
)

func (s Status) String() string {
	switch s {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	case MissingExpected:
		return "missing-expected"
	case NotApplicable:
		return "not-applicable"
	case Empty:
		return "empty"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalYAML renders the status by name.
func (s Status) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Result is the outcome of Check. It never carries an error: a
// disagreement is a warning for the caller to surface.
type Result struct {
	Status    Status `yaml:"status"`
	FirstStep int64  `yaml:"first_step"`
	// Expected is the configured restart step, nil when absent.
	Expected *int64 `yaml:"expected,omitempty"`
	Origin   int64  `yaml:"origin"`
}

// Warning reports whether the result deserves the caller's attention.
func (r Result) Warning() bool {
	return r.Status == Mismatch || r.Status == MissingExpected || r.Status == Empty
}

func (r Result) String() string {
	switch r.Status {
	case Match:
		return fmt.Sprintf("first step %d follows restart step %d", r.FirstStep, *r.Expected)
	case Mismatch:
		return fmt.Sprintf("first step %d does not follow restart step %d (want %d)", r.FirstStep, *r.Expected, *r.Expected+1)
	case MissingExpected:
		return fmt.Sprintf("no restart step configured but history starts at %d, not %d", r.FirstStep, r.Origin)
	case NotApplicable:
		return fmt.Sprintf("history starts at origin %d", r.Origin)
	case Empty:
		return "history is empty"
	default:
		return r.Status.String()
	}
}

// Check compares the first retained step of s with expected+1. origin is
// the step a run without restarts begins at. s is not modified.
func Check(s *series.Series, expected *int64, origin int64) Result {
	res := Result{Expected: expected, Origin: origin}

	first, ok := s.First()
	if !ok {
		res.Status = Empty
		return res
	}
	res.FirstStep = first.Step

	switch {
	case expected != nil && first.Step == *expected+1:
		res.Status = Match
	case expected != nil:
		res.Status = Mismatch
	case first.Step != origin:
		res.Status = MissingExpected
	default:
		res.Status = NotApplicable
	}
	return res
}
