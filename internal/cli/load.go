package cli

import (
	"context"

	"github.com/raphaelgruber/tharchive/internal/segment"
	"github.com/spf13/cobra"
)

var loadByMtime bool

var loadCmd = &cobra.Command{
	Use:   "load [series...]",
	Short: "Merge the segments of a series into one history",
	Long: `Merge the archived segments and any segments left in the run
directory into one history. Later segments overwrite earlier values for
the same step.

Examples:
  tharchive load
  tharchive load disp -o yaml
  tharchive load energy --by-mtime`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().BoolVar(&loadByMtime, "by-mtime", false, "merge in modification time order instead of archive order")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	series, err := selectSeries(args)
	if err != nil {
		return err
	}
	if loadByMtime {
		svc.WithOrder(segment.ByModTime)
	}

	for _, s := range series {
		res, err := svc.Load(ctx, s)
		if err != nil {
			return err
		}

		sum := loadSummary{
			Series:      s.Name,
			Segments:    res.Segments,
			Steps:       res.Series.Len(),
			Appended:    res.Stats.Appended,
			Overwritten: res.Stats.Overwritten,
			Rebased:     res.Rebased,
		}
		if recs := res.Series.Ordered(); len(recs) > 0 {
			first, last := recs[0], recs[len(recs)-1]
			sum.FirstStep, sum.LastStep = first.Step, last.Step
			sum.FirstTime, sum.LastTime = first.Time, last.Time
		}
		if err := printLoad(cmd.OutOrStdout(), sum); err != nil {
			return err
		}
	}
	return nil
}
