package cli

import (
	"context"

	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/spf13/cobra"
)

var (
	archiveDryRun   bool
	archiveAuditLog string
)

var archiveCmd = &cobra.Command{
	Use:   "archive [series...]",
	Short: "Move run directory segments into the archive",
	Long: `Move the segments of a finished run from the run directory into the
series archive, numbered after the highest segment already archived.
Existing archive files are never overwritten.

Examples:
  tharchive archive
  tharchive archive disp --dry-run`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().BoolVar(&archiveDryRun, "dry-run", false, "report the moves without changing files")
	archiveCmd.Flags().StringVar(&archiveAuditLog, "audit-log", "", "append actions to this file")
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	series, err := selectSeries(args)
	if err != nil {
		return err
	}

	opts := consolidate.Options{DryRun: archiveDryRun, RunID: runID}
	if !archiveDryRun {
		f, err := openAudit(archiveAuditLog)
		if err != nil {
			return err
		}
		if f != nil {
			defer f.Close()
			opts.AuditLog = f
		}
	}

	for _, s := range series {
		rep, err := svc.Archive(ctx, s, opts)
		if rep != nil {
			if perr := printReport(cmd.OutOrStdout(), rep); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
