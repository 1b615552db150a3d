package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/raphaelgruber/tharchive/internal/metrics"
	"github.com/raphaelgruber/tharchive/internal/validate"
	"gopkg.in/yaml.v3"
)

// Theme holds the color scheme for rendered output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warning: lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) headingStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status).Bold(true)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// printReport renders a consolidation report in the selected format.
func printReport(w io.Writer, rep *consolidate.Report) error {
	if outputFmt == "yaml" {
		return encodeYAML(w, rep)
	}
	if err := rep.WriteText(w); err != nil {
		return err
	}

	t := defaultTheme
	switch {
	case len(rep.Errors) > 0:
		fmt.Fprintln(w, t.errorStyle().Render(fmt.Sprintf("%d action(s) failed", len(rep.Errors))))
	case rep.DryRun:
		fmt.Fprintln(w, t.hintStyle().Render("dry run: nothing was changed"))
	default:
		fmt.Fprintln(w, t.successStyle().Render("done"))
	}
	fmt.Fprintln(w)
	return nil
}

// loadSummary is the rendered outcome of merging one series.
type loadSummary struct {
	Series      string   `yaml:"series"`
	Segments    []string `yaml:"segments"`
	Steps       int      `yaml:"steps"`
	FirstStep   int64    `yaml:"first_step"`
	LastStep    int64    `yaml:"last_step"`
	FirstTime   float64  `yaml:"first_time"`
	LastTime    float64  `yaml:"last_time"`
	Appended    int      `yaml:"appended"`
	Overwritten int      `yaml:"overwritten"`
	Rebased     bool     `yaml:"rebased"`
}

func printLoad(w io.Writer, s loadSummary) error {
	if outputFmt == "yaml" {
		return encodeYAML(w, s)
	}
	t := defaultTheme
	fmt.Fprintln(w, t.headingStyle().Render("series "+s.Series))
	for _, p := range s.Segments {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if s.Steps == 0 {
		fmt.Fprintln(w, t.hintStyle().Render("  no steps"))
		fmt.Fprintln(w)
		return nil
	}
	fmt.Fprintf(w, "Steps:       %d (%d..%d)\n", s.Steps, s.FirstStep, s.LastStep)
	fmt.Fprintf(w, "Time:        %g..%g", s.FirstTime, s.LastTime)
	if s.Rebased {
		fmt.Fprint(w, t.hintStyle().Render(" (rebased)"))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Overwritten: %d of %d record(s)\n\n", s.Overwritten, s.Appended+s.Overwritten)
	return nil
}

// checkSummary is the rendered outcome of one consistency check.
type checkSummary struct {
	Series string          `yaml:"series"`
	Result validate.Result `yaml:"result"`
}

func printCheck(w io.Writer, results []checkSummary) error {
	if outputFmt == "yaml" {
		return encodeYAML(w, results)
	}
	t := defaultTheme
	for _, r := range results {
		style := t.successStyle()
		if r.Result.Warning() {
			style = t.warningStyle()
		}
		fmt.Fprintf(w, "%-12s %s  %s\n", r.Series, style.Render(r.Result.Status.String()), r.Result.String())
	}
	return nil
}

func printMetrics(w io.Writer, snap metrics.Snapshot) {
	if outputFmt == "yaml" {
		_ = encodeYAML(w, snap)
		return
	}
	t := defaultTheme
	fmt.Fprintln(w, t.hintStyle().Render(fmt.Sprintf("metrics (%.2fs)", snap.ElapsedSeconds)))
	for _, op := range snap.Operations {
		fmt.Fprintf(w, "  %-8s count=%d total=%dms avg=%.1fms bytes=%s\n",
			op.Op, op.Count, op.TotalTimeMs, op.AvgTimeMs, consolidate.FormatBytes(op.TotalBytes))
	}
}
