package consolidate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/raphaelgruber/tharchive/internal/metrics"
)

// Execute runs a compaction plan: every delete first, then every rename.
//
// The first failed delete stops the run before any later delete or
// rename. Completed operations are never rolled back, also not when ctx
// is cancelled between two files. When renames are staged and one fails,
// every staged file that has not reached its target is moved back to its
// original name; one that cannot be is reported under its temporary name.
func Execute(ctx context.Context, plan *Plan, opts Options) (*Report, error) {
	opts.runID()
	rep := newReport(OpCompact, &opts)
	log := opts.logger().With("run", rep.RunID, "op", OpCompact)
	defer func() { rep.Finished = opts.now() }()

	// Refuse before touching anything if a target belongs to someone else
	if err := checkTargets(plan); err != nil {
		return rep, err
	}

	if opts.DryRun {
		for _, a := range plan.Actions() {
			rep.record(a, nil)
		}
		rep.FilesDeleted = len(plan.Deletes)
		rep.BytesReclaimed = plan.ReclaimBytes()
		rep.FilesRenamed = len(plan.Renames)
		return rep, nil
	}

	if opts.RequireConfirmation && !opts.Unattended && !plan.Empty() {
		if opts.Confirm == nil {
			return rep, fmt.Errorf("%w: no confirmation source", ErrNotConfirmed)
		}
		ok, err := opts.Confirm.Confirm(plan)
		if err != nil {
			return rep, fmt.Errorf("confirm: %w", err)
		}
		if !ok {
			return rep, ErrNotConfirmed
		}
	}
	rep.Confirmed = true

	audit := opts.audit()
	if !plan.Empty() {
		if err := audit.Begin(OpCompact, plan); err != nil {
			return rep, fmt.Errorf("write audit log: %w", err)
		}
	}

	for _, a := range plan.Deletes {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("compaction cancelled: %w", err)
		}

		done := opts.Metrics.Time(metrics.OpDelete)
		if err := os.Remove(a.Path); err != nil {
			ferr := &FileError{Op: "delete", Path: a.Path, Err: err}
			rep.record(a, ferr)
			log.Error("delete failed, stopping compaction", "path", a.Path, "error", err)
			return rep, ferr
		}
		done(a.Size)

		rep.record(a, nil)
		rep.FilesDeleted++
		rep.BytesReclaimed += a.Size
		log.Info("deleted redundant segment", "path", a.Path, "size", a.Size, "reason", a.Reason)

		if err := audit.Record(a); err != nil {
			return rep, fmt.Errorf("write audit log: %w", err)
		}
	}

	if err := renameAll(ctx, plan, rep, audit, &opts); err != nil {
		return rep, err
	}
	return rep, nil
}

// checkTargets rejects plans whose rename targets exist and are neither
// deleted nor renamed away by the plan itself.
func checkTargets(plan *Plan) error {
	freed := make(map[string]struct{}, len(plan.Deletes)+len(plan.Renames))
	for _, a := range plan.Deletes {
		freed[a.Path] = struct{}{}
	}
	for _, a := range plan.Renames {
		freed[a.Path] = struct{}{}
	}
	for _, a := range plan.Renames {
		if _, ok := freed[a.Target]; ok {
			continue
		}
		if exists(a.Target) {
			return &FileError{Op: "rename", Path: a.Target, Err: ErrTargetExists}
		}
	}
	return nil
}

// needsStaging reports whether some rename target is still occupied by
// another segment waiting to be renamed.
func needsStaging(renames []Action) bool {
	sources := make(map[string]struct{}, len(renames))
	for _, a := range renames {
		sources[a.Path] = struct{}{}
	}
	for _, a := range renames {
		if _, ok := sources[a.Target]; ok {
			return true
		}
	}
	return false
}

func renameAll(ctx context.Context, plan *Plan, rep *Report, audit *AuditLog, opts *Options) error {
	log := opts.logger().With("run", rep.RunID, "op", OpCompact)
	renames := plan.Renames

	if needsStaging(renames) {
		// Move everything to temporary names first so no target is taken
		staged := make([]Action, 0, len(renames))
		for _, a := range renames {
			if err := ctx.Err(); err != nil {
				return restoreStaged(staged, renames, rep, audit, log, fmt.Errorf("compaction cancelled: %w", err))
			}
			tmp := stagingPath(a.Path, rep.RunID)
			if err := os.Rename(a.Path, tmp); err != nil {
				ferr := &FileError{Op: "rename", Path: a.Path, Err: err}
				rep.record(a, ferr)
				return restoreStaged(staged, renames, rep, audit, log, ferr)
			}
			log.Debug("staged segment", "path", a.Path, "tmp", tmp)
			s := a
			s.Path = tmp
			staged = append(staged, s)
		}
		for i := range renames {
			if err := renameOne(ctx, staged[i], renames[i], rep, audit, opts); err != nil {
				return restoreStaged(staged[i:], renames[i:], rep, audit, log, err)
			}
		}
		return nil
	}

	for _, a := range renames {
		if err := renameOne(ctx, a, a, rep, audit, opts); err != nil {
			return err
		}
	}
	return nil
}

func stagingPath(path, runID string) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), runID))
}

// restoreStaged moves staged files that never reached their target back
// to their original names. planned[i] is the planned action of staged[i].
// A file that cannot be restored is reported and audited as stranded
// under its temporary name. cause is returned unchanged when every file
// was restored.
func restoreStaged(staged, planned []Action, rep *Report, audit *AuditLog, log *slog.Logger, cause error) error {
	var stranded *multierror.Error
	for i, s := range staged {
		if _, err := os.Lstat(s.Path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		orig := planned[i].Path

		var err error
		if exists(orig) {
			err = fmt.Errorf("%w: %s", ErrTargetExists, orig)
		} else {
			err = os.Rename(s.Path, orig)
		}
		if err == nil {
			log.Info("restored staged segment", "tmp", s.Path, "path", orig)
			continue
		}

		act := Action{
			Kind:    ActionRename,
			Path:    s.Path,
			Target:  orig,
			Size:    s.Size,
			ModTime: s.ModTime,
			Reason:  "stranded",
		}
		ferr := &FileError{Op: "restore", Path: s.Path, Err: err}
		rep.record(act, ferr)
		stranded = multierror.Append(stranded, ferr)
		log.Error("staged segment left under temporary name", "tmp", s.Path, "path", orig, "error", err)
		if aerr := audit.Record(act); aerr != nil {
			stranded = multierror.Append(stranded, fmt.Errorf("write audit log: %w", aerr))
		}
	}
	if stranded == nil {
		return cause
	}
	return multierror.Append(cause, stranded.Errors...)
}

// renameOne moves from.Path to from.Target; orig is the action as planned.
func renameOne(ctx context.Context, from, orig Action, rep *Report, audit *AuditLog, opts *Options) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("compaction cancelled: %w", err)
	}
	if exists(from.Target) {
		ferr := &FileError{Op: "rename", Path: from.Path, Err: fmt.Errorf("%w: %s", ErrTargetExists, from.Target)}
		rep.record(orig, ferr)
		return ferr
	}

	done := opts.Metrics.Time(metrics.OpRename)
	if err := os.Rename(from.Path, from.Target); err != nil {
		ferr := &FileError{Op: "rename", Path: from.Path, Err: err}
		rep.record(orig, ferr)
		return ferr
	}
	done(0)

	rep.record(orig, nil)
	rep.FilesRenamed++
	opts.logger().Debug("renamed segment", "run", rep.RunID, "from", orig.Path, "to", orig.Target)
	if err := audit.Record(orig); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
