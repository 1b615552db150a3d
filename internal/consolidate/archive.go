package consolidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/raphaelgruber/tharchive/internal/metrics"
	"github.com/raphaelgruber/tharchive/internal/segment"
)

// MoveRequest selects the segments to archive.
type MoveRequest struct {
	// SourceDir is the active run location.
	SourceDir string
	// ArchiveDir receives the segments; created if missing.
	ArchiveDir string
	// Base is the segment base name, e.g. "disp". Files named Base or
	// Base followed by digits are moved.
	Base string
}

// ArchiveMove relocates segments from the run location into the archive
// as Base<n>, continuing after the highest suffix already archived.
// Existing archive files are never overwritten. A failed move is reported
// and the remaining files are still processed.
func ArchiveMove(ctx context.Context, req MoveRequest, opts Options) (*Report, error) {
	opts.runID()
	rep := newReport(OpArchive, &opts)
	rep.Confirmed = true
	log := opts.logger().With("run", rep.RunID, "op", OpArchive)
	defer func() { rep.Finished = opts.now() }()

	if req.Base == "" {
		return rep, ErrEmptyBase
	}

	sources, err := ListSegments(req.SourceDir, req.Base)
	if err != nil {
		return rep, err
	}
	if len(sources) == 0 {
		log.Info("no segments to archive", "dir", req.SourceDir, "base", req.Base)
		return rep, nil
	}

	if !opts.DryRun {
		if err := os.MkdirAll(req.ArchiveDir, 0o755); err != nil {
			return rep, fmt.Errorf("create archive dir: %w", err)
		}
	}

	next, err := MaxSuffix(req.ArchiveDir, req.Base)
	if err != nil {
		return rep, err
	}
	next++

	audit := opts.audit()
	var result *multierror.Error

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, fmt.Errorf("archive cancelled: %w", err))
			break
		}

		target := filepath.Join(req.ArchiveDir, req.Base+strconv.Itoa(next))
		for exists(target) {
			next++
			target = filepath.Join(req.ArchiveDir, req.Base+strconv.Itoa(next))
		}
		next++

		act := Action{
			Kind:    ActionMove,
			Path:    src.Path,
			Target:  target,
			Size:    src.Size,
			ModTime: src.ModTime,
		}
		if opts.DryRun {
			rep.record(act, nil)
			continue
		}

		done := opts.Metrics.Time(metrics.OpMove)
		if err := moveFile(src.Path, target); err != nil {
			ferr := &FileError{Op: "move", Path: src.Path, Err: err}
			rep.record(act, ferr)
			result = multierror.Append(result, ferr)
			log.Warn("archive move failed", "path", src.Path, "target", target, "error", err)
			continue
		}
		done(src.Size)

		rep.record(act, nil)
		rep.FilesMoved++
		log.Info("archived segment", "path", src.Path, "target", target, "size", src.Size)
		if err := audit.Record(act); err != nil {
			result = multierror.Append(result, fmt.Errorf("write audit log: %w", err))
		}
	}

	return rep, result.ErrorOrNil()
}

// ListSegments returns the regular files in dir named base or base<digits>,
// in archive order. A missing directory yields no segments.
func ListSegments(dir, base string) ([]*segment.Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var out []*segment.Segment
	for _, e := range entries {
		if !e.Type().IsRegular() || !MatchBase(e.Name(), base) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, &segment.Segment{
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	segment.Sort(out, segment.ByArchiveOrder)
	return out, nil
}

// MatchBase reports whether name is base or base followed by digits.
func MatchBase(name, base string) bool {
	if name == base {
		return true
	}
	b, _, ok := segment.SplitSuffix(name)
	return ok && b == base
}

// MaxSuffix returns the highest numeric suffix of base<n> files in dir,
// or 0 when there are none.
func MaxSuffix(dir, base string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	highest := 0
	for _, e := range entries {
		b, n, ok := segment.SplitSuffix(e.Name())
		if ok && b == base && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// moveFile renames src to dst, copying across filesystems. The copy keeps
// the modification time, which redundancy tie-breaks depend on.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := copyFile(src, dst, info); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	// dst is ours from here on; drop it on any failure
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
