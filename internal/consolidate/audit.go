package consolidate

import (
	"fmt"
	"io"
	"os"
	"time"
)

// AuditLog appends one human readable line per destructive action.
type AuditLog struct {
	w     io.Writer
	runID string
	now   func() time.Time
}

// NewAuditLog writes audit lines for runID to w.
func NewAuditLog(w io.Writer, runID string) *AuditLog {
	return &AuditLog{w: w, runID: runID, now: time.Now}
}

// OpenAuditLog opens path for appending, creating it if needed.
func OpenAuditLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return f, nil
}

func (a *AuditLog) stamp() string {
	return a.now().UTC().Format(time.RFC3339)
}

// Begin writes the run header.
func (a *AuditLog) Begin(op string, plan *Plan) error {
	if a == nil {
		return nil
	}
	_, err := fmt.Fprintf(a.w, "# %s run=%s op=%s base=%s deletes=%d renames=%d reclaim=%d\n",
		a.stamp(), a.runID, op, plan.Base, len(plan.Deletes), len(plan.Renames), plan.ReclaimBytes())
	return err
}

// Record writes one completed action.
func (a *AuditLog) Record(act Action) error {
	if a == nil {
		return nil
	}
	line := fmt.Sprintf("%s run=%s action=%s path=%q size=%d mtime=%s",
		a.stamp(), a.runID, act.Kind, act.Path, act.Size, act.ModTime.UTC().Format(time.RFC3339))
	if act.Target != "" {
		line += fmt.Sprintf(" target=%q", act.Target)
	}
	if act.Reason != "" {
		line += " reason=" + act.Reason
	}
	_, err := fmt.Fprintln(a.w, line)
	return err
}
