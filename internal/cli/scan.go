package cli

import (
	"context"

	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [series...]",
	Short: "Classify archived segments without changing anything",
	Long: `Parse every archived segment, classify each as kept, duplicate or
subset, and show the compaction that would follow.

Examples:
  tharchive scan
  tharchive scan disp -o yaml`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	series, err := selectSeries(args)
	if err != nil {
		return err
	}

	for _, s := range series {
		rep, err := svc.Compact(ctx, s, consolidate.Options{DryRun: true, RunID: runID})
		if err != nil {
			return err
		}
		rep.Operation = consolidate.OpScan
		if err := printReport(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	}
	return nil
}
