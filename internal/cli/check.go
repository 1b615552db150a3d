package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [series...]",
	Short: "Check that merged histories start after the restart step",
	Long: `Compare the first step of each merged history with the restart step
from the parameter file. Without arguments only series with validation
enabled are checked. Disagreements are warnings and do not fail the
command.

Examples:
  tharchive check
  tharchive check disp energy`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	series, err := selectSeries(args)
	if err != nil {
		return err
	}

	var results []checkSummary
	for _, s := range series {
		if len(args) == 0 && !s.Validate {
			continue
		}
		res, err := svc.Check(ctx, s)
		if err != nil {
			return err
		}
		results = append(results, checkSummary{Series: s.Name, Result: res})
	}
	return printCheck(cmd.OutOrStdout(), results)
}
