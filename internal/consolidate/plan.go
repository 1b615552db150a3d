// Package consolidate moves, deletes and renames segment files.
package consolidate

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/raphaelgruber/tharchive/internal/redundancy"
)

// ActionKind names a filesystem operation.
type ActionKind string

const (
	ActionDelete ActionKind = "delete"
	ActionRename ActionKind = "rename"
	ActionMove   ActionKind = "move"
)

// Action is one planned filesystem operation.
type Action struct {
	Kind    ActionKind `yaml:"action"`
	Path    string     `yaml:"path"`
	Target  string     `yaml:"target,omitempty"`
	Size    int64      `yaml:"size"`
	ModTime time.Time  `yaml:"mtime"`
	Reason  string     `yaml:"reason,omitempty"`
}

// Plan is the full list of compaction actions, computed before anything
// is touched. Deletes always run before renames.
type Plan struct {
	Base    string
	Deletes []Action
	Renames []Action
}

// Actions returns every action in execution order.
func (p *Plan) Actions() []Action {
	out := make([]Action, 0, len(p.Deletes)+len(p.Renames))
	out = append(out, p.Deletes...)
	return append(out, p.Renames...)
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Deletes) == 0 && len(p.Renames) == 0
}

// ReclaimBytes is the total size of files the plan deletes.
func (p *Plan) ReclaimBytes() int64 {
	var n int64
	for _, a := range p.Deletes {
		n += a.Size
	}
	return n
}

// PlanCompaction deletes every redundant segment and renames the survivors
// to base1..baseK in ascending start step order. Renames that would not
// change a name are left out.
func PlanCompaction(decisions []redundancy.Decision, base string) (*Plan, error) {
	if base == "" {
		return nil, ErrEmptyBase
	}
	plan := &Plan{Base: base}

	dir := ""
	for _, d := range decisions {
		dd := filepath.Dir(d.Range.Path)
		if dir == "" {
			dir = dd
		} else if dd != dir {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedDirectories, dir, dd)
		}

		if d.Verdict != redundancy.Redundant {
			continue
		}
		plan.Deletes = append(plan.Deletes, Action{
			Kind:    ActionDelete,
			Path:    d.Range.Path,
			Size:    d.Range.Size,
			ModTime: d.Range.ModTime,
			Reason:  d.String(),
		})
	}

	for i, r := range redundancy.Survivors(decisions) {
		target := filepath.Join(dir, base+strconv.Itoa(i+1))
		if target == r.Path {
			continue
		}
		plan.Renames = append(plan.Renames, Action{
			Kind:    ActionRename,
			Path:    r.Path,
			Target:  target,
			Size:    r.Size,
			ModTime: r.ModTime,
		})
	}

	return plan, nil
}
