package consolidate

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/raphaelgruber/tharchive/internal/redundancy"
)

// Operation names a report.
const (
	OpCompact = "compact"
	OpArchive = "archive"
	OpScan    = "scan"
)

// FileResult is the outcome of one action.
type FileResult struct {
	Action
	Done  bool   `yaml:"done"`
	Error string `yaml:"error,omitempty"`
}

// Classification is one row of the redundancy table.
type Classification struct {
	Path     string `yaml:"path"`
	Start    int64  `yaml:"start_step"`
	End      int64  `yaml:"end_step"`
	Size     int64  `yaml:"size"`
	Decision string `yaml:"decision"`
}

// Report is the execution report of one run.
type Report struct {
	RunID     string    `yaml:"run_id"`
	Operation string    `yaml:"operation"`
	Series    string    `yaml:"series,omitempty"`
	DryRun    bool      `yaml:"dry_run"`
	Confirmed bool      `yaml:"confirmed"`
	Started   time.Time `yaml:"started"`
	Finished  time.Time `yaml:"finished"`

	Classification []Classification `yaml:"classification,omitempty"`
	Results        []FileResult     `yaml:"results,omitempty"`

	FilesDeleted   int   `yaml:"files_deleted"`
	BytesReclaimed int64 `yaml:"bytes_reclaimed"`
	FilesRenamed   int   `yaml:"files_renamed"`
	FilesMoved     int   `yaml:"files_moved"`

	Errors []string `yaml:"errors,omitempty"`
}

func newReport(op string, opts *Options) *Report {
	return &Report{
		RunID:     opts.runID(),
		Operation: op,
		DryRun:    opts.DryRun,
		Started:   opts.now(),
	}
}

// AddDecisions fills the classification table.
func (r *Report) AddDecisions(decisions []redundancy.Decision) {
	for _, d := range decisions {
		r.Classification = append(r.Classification, Classification{
			Path:     d.Range.Path,
			Start:    d.Range.Start,
			End:      d.Range.End,
			Size:     d.Range.Size,
			Decision: d.String(),
		})
	}
}

func (r *Report) record(a Action, err error) {
	res := FileResult{Action: a, Done: err == nil && !r.DryRun}
	if err != nil {
		res.Error = err.Error()
		r.Errors = append(r.Errors, err.Error())
	}
	r.Results = append(r.Results, res)
}

// Failed returns the results that did not complete because of an error.
func (r *Report) Failed() []FileResult {
	var out []FileResult
	for _, res := range r.Results {
		if res.Error != "" {
			out = append(out, res)
		}
	}
	return out
}

// WriteText renders the report as plain text.
func (r *Report) WriteText(w io.Writer) error {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	if _, err := fmt.Fprintf(w, "%s%s run %s\n", r.Operation, mode, r.RunID); err != nil {
		return err
	}
	if r.Series != "" {
		fmt.Fprintf(w, "series: %s\n", r.Series)
	}

	if len(r.Classification) > 0 {
		fmt.Fprintf(w, "\nClassification (%d):\n", len(r.Classification))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, c := range r.Classification {
			fmt.Fprintf(tw, "  %s\t%d..%d\t%s\t%s\n", c.Path, c.Start, c.End, FormatBytes(c.Size), c.Decision)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Results) > 0 {
		fmt.Fprintf(w, "\nActions (%d):\n", len(r.Results))
		for _, res := range r.Results {
			status := "done"
			switch {
			case res.Error != "":
				status = "FAILED: " + res.Error
			case !res.Done:
				status = "planned"
			}
			line := fmt.Sprintf("  %-6s %s", res.Kind, res.Path)
			if res.Target != "" {
				line += " -> " + res.Target
			}
			fmt.Fprintf(w, "%s [%s]\n", line, status)
		}
	}

	fmt.Fprintf(w, "\nDeleted: %d file(s), %s reclaimed\n", r.FilesDeleted, FormatBytes(r.BytesReclaimed))
	if r.FilesRenamed > 0 {
		fmt.Fprintf(w, "Renamed: %d file(s)\n", r.FilesRenamed)
	}
	if r.FilesMoved > 0 {
		fmt.Fprintf(w, "Moved:   %d file(s)\n", r.FilesMoved)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "Errors:  %d\n", len(r.Errors))
	}
	return nil
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
