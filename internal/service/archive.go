// Package service runs archive analysis, compaction and validation for
// configured time-history series.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/raphaelgruber/tharchive/internal/config"
	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/raphaelgruber/tharchive/internal/metrics"
	"github.com/raphaelgruber/tharchive/internal/redundancy"
	"github.com/raphaelgruber/tharchive/internal/segment"
	"github.com/raphaelgruber/tharchive/internal/series"
	"github.com/raphaelgruber/tharchive/internal/validate"
	"golang.org/x/sync/errgroup"
)

// ArchiveService operates on the archive of one configuration.
type ArchiveService struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	order   segment.OrderKey
}

// NewArchiveService creates a new archive service. logger and mc may be nil.
func NewArchiveService(cfg config.Config, logger *slog.Logger, mc *metrics.Collector) *ArchiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveService{
		cfg:     cfg,
		logger:  logger,
		metrics: mc,
		order:   segment.ByArchiveOrder,
	}
}

// WithOrder replaces the merge ordering key.
func (s *ArchiveService) WithOrder(key segment.OrderKey) *ArchiveService {
	s.order = key
	return s
}

// Analysis is the redundancy classification of one series archive.
type Analysis struct {
	Series    config.Series
	Dir       string
	Ranges    []segment.FileRange
	Decisions []redundancy.Decision
	Summary   redundancy.Summary
}

// LoadResult is a merged history with its merge statistics.
type LoadResult struct {
	Series   *series.Series
	Stats    series.MergeStats
	Rebased  bool
	Segments []string
}

func (s *ArchiveService) concurrency() int {
	if s.cfg.Concurrency > 0 {
		return s.cfg.Concurrency
	}
	return runtime.NumCPU()
}

// Analyze classifies every archived segment of sc. Any segment that fails
// to parse aborts the analysis.
func (s *ArchiveService) Analyze(ctx context.Context, sc config.Series) (*Analysis, error) {
	kind, err := sc.SegmentKind()
	if err != nil {
		return nil, err
	}
	dir := s.cfg.ArchivePath(sc)

	segs, err := consolidate.ListSegments(dir, sc.Base)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("discovered segments", "series", sc.Name, "dir", dir, "count", len(segs))

	parsed, err := s.parseAll(ctx, segs, kind, true)
	if err != nil {
		return nil, err
	}

	ranges := make([]segment.FileRange, len(parsed))
	for i, p := range parsed {
		if ranges[i], err = p.Range(); err != nil {
			return nil, fmt.Errorf("range of %s: %w", p.Path, err)
		}
	}

	start := time.Now()
	decisions, err := redundancy.Resolve(ranges)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", sc.Name, err)
	}
	s.metrics.RecordTiming(metrics.OpResolve, time.Since(start))

	a := &Analysis{
		Series:    sc,
		Dir:       dir,
		Ranges:    ranges,
		Decisions: decisions,
		Summary:   redundancy.Summarize(decisions),
	}
	s.logger.Info("classified segments", "series", sc.Name,
		"kept", a.Summary.Kept, "duplicates", a.Summary.Duplicates, "subsets", a.Summary.Subsets)
	return a, nil
}

// Compact deletes redundant archived segments of sc and renames the rest
// into a dense sequence. Nothing is touched unless the whole archive
// parses.
func (s *ArchiveService) Compact(ctx context.Context, sc config.Series, opts consolidate.Options) (*consolidate.Report, error) {
	a, err := s.Analyze(ctx, sc)
	if err != nil {
		return nil, err
	}

	plan, err := consolidate.PlanCompaction(a.Decisions, sc.Base)
	if err != nil {
		return nil, err
	}

	opts = s.withDefaults(opts)
	rep, err := consolidate.Execute(ctx, plan, opts)
	if rep != nil {
		rep.Series = sc.Name
		rep.AddDecisions(a.Decisions)
	}
	if err != nil {
		return rep, fmt.Errorf("compact %s: %w", sc.Name, err)
	}
	return rep, nil
}

// Archive moves the segments of sc from the run directory into its
// archive directory.
func (s *ArchiveService) Archive(ctx context.Context, sc config.Series, opts consolidate.Options) (*consolidate.Report, error) {
	opts = s.withDefaults(opts)
	rep, err := consolidate.ArchiveMove(ctx, consolidate.MoveRequest{
		SourceDir:  s.cfg.RunDir,
		ArchiveDir: s.cfg.ArchivePath(sc),
		Base:       sc.Base,
	}, opts)
	if rep != nil {
		rep.Series = sc.Name
	}
	if err != nil {
		return rep, fmt.Errorf("archive %s: %w", sc.Name, err)
	}
	return rep, nil
}

// Load merges the archived segments of sc, followed by any segments still
// in the run directory. Run directory output is always the newest restart,
// so the ordering key only orders segments within each location. Times
// are rebased when a step increment is configured.
func (s *ArchiveService) Load(ctx context.Context, sc config.Series) (*LoadResult, error) {
	kind, err := sc.SegmentKind()
	if err != nil {
		return nil, err
	}

	archived, err := consolidate.ListSegments(s.cfg.ArchivePath(sc), sc.Base)
	if err != nil {
		return nil, err
	}
	active, err := consolidate.ListSegments(s.cfg.RunDir, sc.Base)
	if err != nil {
		return nil, err
	}
	segment.Sort(archived, s.order)
	segment.Sort(active, s.order)
	segs := append(archived, active...)

	parsed, err := s.parseAll(ctx, segs, kind, false)
	if err != nil {
		return nil, err
	}

	merged, stats := series.Merge(kind, parsed)
	res := &LoadResult{Series: merged, Stats: stats}
	for _, p := range parsed {
		res.Segments = append(res.Segments, p.Path)
	}

	if s.cfg.StepIncrement != nil {
		if err := merged.Rebase(*s.cfg.StepIncrement); err != nil {
			return nil, err
		}
		res.Rebased = true
	}

	s.logger.Info("merged series", "series", sc.Name, "segments", stats.Segments,
		"steps", merged.Len(), "overwritten", stats.Overwritten, "rebased", res.Rebased)
	return res, nil
}

// Check validates the merged history of sc against the configured restart
// step. A disagreement is logged as a warning and returned, never as an
// error.
func (s *ArchiveService) Check(ctx context.Context, sc config.Series) (validate.Result, error) {
	loaded, err := s.Load(ctx, sc)
	if err != nil {
		return validate.Result{}, err
	}
	res := validate.Check(loaded.Series, s.cfg.RestartStep, sc.Origin)
	if res.Warning() {
		s.logger.Warn("restart consistency", "series", sc.Name, "status", res.Status.String(), "detail", res.String())
	} else {
		s.logger.Info("restart consistency", "series", sc.Name, "status", res.Status.String())
	}
	return res, nil
}

// parseAll parses segs concurrently. Results keep the input order so a
// following merge sees exactly the order the caller chose.
func (s *ArchiveService) parseAll(ctx context.Context, segs []*segment.Segment, kind segment.Kind, headersOnly bool) ([]*segment.Segment, error) {
	op := metrics.OpParse
	if headersOnly {
		op = metrics.OpScan
	}

	out := make([]*segment.Segment, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	for i, seg := range segs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			done := s.metrics.Time(op)
			parsed, err := segment.ParseFile(seg.Path, segment.Options{Kind: kind, HeadersOnly: headersOnly})
			if err != nil {
				return err
			}
			done(parsed.Size)
			out[i] = parsed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ArchiveService) withDefaults(opts consolidate.Options) consolidate.Options {
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	if opts.Metrics == nil {
		opts.Metrics = s.metrics
	}
	return opts
}
