package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	compactYes      bool
	compactDryRun   bool
	compactAuditLog string
)

var compactCmd = &cobra.Command{
	Use:   "compact [series...]",
	Short: "Delete redundant archived segments and renumber the rest",
	Long: `Delete archived segments whose steps are covered by another segment,
then rename the survivors to base1..baseN in step order.

Every segment of a series is parsed before anything is touched; a
segment that does not parse aborts the series with no files changed.
Requires confirmation unless --yes is used.

Examples:
  tharchive compact
  tharchive compact disp --dry-run
  tharchive compact disp energy --yes --audit-log compact.log`,
	RunE: runCompact,
}

func init() {
	compactCmd.Flags().BoolVarP(&compactYes, "yes", "y", false, "skip confirmation")
	compactCmd.Flags().BoolVar(&compactDryRun, "dry-run", false, "report the plan without changing files")
	compactCmd.Flags().StringVar(&compactAuditLog, "audit-log", "", "append actions to this file")
}

func runCompact(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	series, err := selectSeries(args)
	if err != nil {
		return err
	}

	opts := consolidate.Options{
		RequireConfirmation: true,
		Unattended:          compactYes,
		DryRun:              compactDryRun,
		RunID:               runID,
	}
	if !compactYes && !compactDryRun {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("refusing to compact without a terminal; pass --yes to confirm")
		}
		opts.Confirm = promptConfirm(cmd.OutOrStdout(), os.Stdin)
	}

	if !compactDryRun {
		f, err := openAudit(compactAuditLog)
		if err != nil {
			return err
		}
		if f != nil {
			defer f.Close()
			opts.AuditLog = f
		}
	}

	out := cmd.OutOrStdout()
	for _, s := range series {
		rep, err := svc.Compact(ctx, s, opts)
		if errors.Is(err, consolidate.ErrNotConfirmed) {
			fmt.Fprintf(out, "Cancelled %s.\n", s.Name)
			continue
		}
		if rep != nil {
			if perr := printReport(out, rep); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// promptConfirm asks on w and reads a y/N answer from r.
func promptConfirm(w io.Writer, r io.Reader) consolidate.Confirmer {
	reader := bufio.NewReader(r)
	return consolidate.ConfirmFunc(func(plan *consolidate.Plan) (bool, error) {
		t := defaultTheme
		fmt.Fprintln(w, t.headingStyle().Render("About to compact "+plan.Base))
		for _, a := range plan.Deletes {
			fmt.Fprintf(w, "  delete %s (%s)\n", a.Path, a.Reason)
		}
		for _, a := range plan.Renames {
			fmt.Fprintf(w, "  rename %s -> %s\n", a.Path, a.Target)
		}
		fmt.Fprintf(w, "%s reclaimed\n", consolidate.FormatBytes(plan.ReclaimBytes()))
		fmt.Fprint(w, "\nContinue? [y/N]: ")

		response, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		return response == "y" || response == "yes", nil
	})
}
