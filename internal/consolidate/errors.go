package consolidate

import (
	"errors"
	"fmt"
)

// Sentinel errors for consolidation.
var (
	// ErrNotConfirmed indicates a destructive plan that was not confirmed.
	ErrNotConfirmed = errors.New("compaction not confirmed")

	// ErrTargetExists indicates a rename or move target that already exists
	// and is not part of the plan. Existing files are never overwritten.
	ErrTargetExists = errors.New("target already exists")

	// ErrMixedDirectories indicates surviving segments spread over several
	// directories, which cannot share one dense name sequence.
	ErrMixedDirectories = errors.New("segments span multiple directories")

	// ErrEmptyBase indicates a missing base name for renaming.
	ErrEmptyBase = errors.New("base name is empty")
)

// FileError is a filesystem failure on a single file.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
