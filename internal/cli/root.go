// Package cli provides the command-line interface for tharchive.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/raphaelgruber/tharchive/internal/config"
	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/raphaelgruber/tharchive/internal/metrics"
	"github.com/raphaelgruber/tharchive/internal/service"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configPath string
	outputFmt  string

	// Global state initialized before every command
	cfg       config.Config
	logger    *slog.Logger
	collector *metrics.Collector
	svc       *service.ArchiveService
	closeLog  func() error
	// runID names this invocation in the log file, audit lines and reports
	runID string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tharchive",
	Short: "Time-history archive manager for restarted simulations",
	Long: `Tharchive keeps the time-history output of restarted simulation runs.

It merges segment files written across restarts into one history,
removes segments whose steps are fully covered by others, renames the
survivors into a dense sequence and checks that the merged history
starts where the restart said it would.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if outputFmt != "text" && outputFmt != "yaml" {
			return fmt.Errorf("unknown output format %q (want text or yaml)", outputFmt)
		}

		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Load()
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		runID = uuid.NewString()
		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel, runID)
		slog.SetDefault(logger)

		if err := cfg.ApplyParams(); err != nil {
			return fmt.Errorf("read params: %w", err)
		}

		collector = metrics.NewCollector()
		svc = service.NewArchiveService(cfg, logger, collector)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if verbose && collector != nil {
			printMetrics(cmd.OutOrStdout(), collector.Snapshot())
		}
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format (text, yaml)")

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tharchive %s\n", Version)
	},
}

// selectSeries resolves series names given on the command line. No names
// selects every configured series.
func selectSeries(names []string) ([]config.Series, error) {
	if len(names) == 0 {
		return cfg.Series, nil
	}
	out := make([]config.Series, 0, len(names))
	for _, name := range names {
		s, ok := cfg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown series %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

// openAudit opens the audit log named by flag, falling back to the
// configured one. An empty path disables auditing.
func openAudit(flag string) (*os.File, error) {
	path := flag
	if path == "" {
		path = cfg.AuditLog
	}
	if path == "" {
		return nil, nil
	}
	return consolidate.OpenAuditLog(path)
}
