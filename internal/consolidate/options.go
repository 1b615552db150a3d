package consolidate

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/tharchive/internal/metrics"
)

// Confirmer approves a destructive plan before it runs.
type Confirmer interface {
	Confirm(plan *Plan) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(plan *Plan) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(plan *Plan) (bool, error) {
	return f(plan)
}

// Options configures Execute and ArchiveMove.
type Options struct {
	// AuditLog receives one line per completed delete, rename and move.
	// Nil disables auditing.
	AuditLog io.Writer
	// RequireConfirmation makes Execute ask Confirm before mutating.
	RequireConfirmation bool
	// Unattended skips confirmation even when it is required.
	Unattended bool
	Confirm    Confirmer
	// DryRun reports the plan without touching the filesystem.
	DryRun bool

	RunID   string
	Logger  *slog.Logger
	Metrics *metrics.Collector

	// Now is the clock used for report timestamps. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) runID() string {
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	return o.RunID
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) audit() *AuditLog {
	if o.AuditLog == nil || o.DryRun {
		return nil
	}
	a := NewAuditLog(o.AuditLog, o.runID())
	if o.Now != nil {
		a.now = o.Now
	}
	return a
}
