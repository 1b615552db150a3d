package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/raphaelgruber/tharchive/internal/config"
	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/raphaelgruber/tharchive/internal/metrics"
	"github.com/raphaelgruber/tharchive/internal/segment"
	"github.com/raphaelgruber/tharchive/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var disp = config.Series{Name: "disp", Kind: "entity", Base: "disp", Archive: "disp", Origin: 1, Validate: true}

// entitySegment renders one block per step with two entities whose first
// component is the step scaled by value.
func entitySegment(value float64, steps ...int64) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "STEP %d %g 2\n", s, float64(s)*0.1)
		fmt.Fprintf(&b, "1 %g 0.0 0.0\n", float64(s)*value)
		fmt.Fprintf(&b, "2 %g 0.0 0.0\n", float64(s)*value)
	}
	return b.String()
}

func steps(from, to int64) []int64 {
	var out []int64
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}

type env struct {
	t   *testing.T
	cfg config.Config
}

func newEnv(t *testing.T) *env {
	root := t.TempDir()
	cfg := config.Config{
		RunDir:      root,
		ArchiveDir:  filepath.Join(root, "archive"),
		Series:      []config.Series{disp},
		Concurrency: 2,
	}
	require.NoError(t, os.MkdirAll(cfg.ArchivePath(disp), 0o755))
	return &env{t: t, cfg: cfg}
}

func (e *env) archived(name, content string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(filepath.Join(e.cfg.ArchivePath(disp), name), []byte(content), 0o644))
}

func (e *env) active(name, content string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(filepath.Join(e.cfg.RunDir, name), []byte(content), 0o644))
}

func (e *env) archiveNames() []string {
	e.t.Helper()
	entries, err := os.ReadDir(e.cfg.ArchivePath(disp))
	require.NoError(e.t, err)
	var out []string
	for _, ent := range entries {
		out = append(out, ent.Name())
	}
	sort.Strings(out)
	return out
}

func (e *env) read(name string) string {
	e.t.Helper()
	b, err := os.ReadFile(filepath.Join(e.cfg.ArchivePath(disp), name))
	require.NoError(e.t, err)
	return string(b)
}

func (e *env) service() *ArchiveService {
	return NewArchiveService(e.cfg, nil, metrics.NewCollector())
}

func TestAnalyze(t *testing.T) {
	e := newEnv(t)
	e.archived("disp1", entitySegment(1, steps(1, 2)...))
	e.archived("disp2", entitySegment(1, steps(1, 4)...))
	e.archived("disp3", entitySegment(1, steps(5, 6)...))

	a, err := e.service().Analyze(context.Background(), disp)
	require.NoError(t, err)

	assert.Equal(t, 2, a.Summary.Kept)
	assert.Equal(t, 1, a.Summary.Subsets)
	require.Len(t, a.Ranges, 3)
	for _, r := range a.Ranges {
		if filepath.Base(r.Path) == "disp2" {
			assert.Equal(t, int64(1), r.Start)
			assert.Equal(t, int64(4), r.End)
		}
	}
}

func TestCompact_EndToEnd(t *testing.T) {
	e := newEnv(t)
	second := entitySegment(1, steps(1, 4)...)
	third := entitySegment(1, steps(5, 6)...)
	e.archived("disp1", entitySegment(1, steps(1, 2)...))
	e.archived("disp2", second)
	e.archived("disp3", third)

	var audit strings.Builder
	rep, err := e.service().Compact(context.Background(), disp, consolidate.Options{
		RequireConfirmation: true,
		Unattended:          true,
		AuditLog:            &audit,
	})
	require.NoError(t, err)

	assert.Equal(t, "disp", rep.Series)
	assert.Equal(t, 1, rep.FilesDeleted)
	assert.Equal(t, 2, rep.FilesRenamed)
	assert.Len(t, rep.Classification, 3)
	assert.Equal(t, []string{"disp1", "disp2"}, e.archiveNames())
	assert.Equal(t, second, e.read("disp1"))
	assert.Equal(t, third, e.read("disp2"))
	assert.Contains(t, audit.String(), "action=delete")
	assert.Contains(t, audit.String(), "action=rename")
}

func TestCompact_UnparsableSegmentLeavesArchiveUntouched(t *testing.T) {
	e := newEnv(t)
	e.archived("disp1", entitySegment(1, steps(1, 2)...))
	e.archived("disp2", entitySegment(1, steps(1, 4)...))
	e.archived("disp3", "STEP 5 0.5 2\n1 0.5 0.0 0.0\n")

	before := e.archiveNames()
	var audit strings.Builder
	rep, err := e.service().Compact(context.Background(), disp, consolidate.Options{
		Unattended: true,
		AuditLog:   &audit,
	})
	require.Error(t, err)
	assert.Nil(t, rep)

	var perr *segment.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, filepath.Join(e.cfg.ArchivePath(disp), "disp3"), perr.Path)
	assert.ErrorIs(t, err, segment.ErrTruncatedBlock)

	assert.Equal(t, before, e.archiveNames())
	assert.Empty(t, audit.String())
}

func TestCompact_DryRun(t *testing.T) {
	e := newEnv(t)
	e.archived("disp1", entitySegment(1, steps(1, 2)...))
	e.archived("disp2", entitySegment(1, steps(1, 4)...))

	rep, err := e.service().Compact(context.Background(), disp, consolidate.Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.Equal(t, 1, rep.FilesDeleted)
	assert.Equal(t, []string{"disp1", "disp2"}, e.archiveNames())
}

func TestLoad_RestartOverlap(t *testing.T) {
	e := newEnv(t)
	e.archived("disp1", entitySegment(1, steps(1, 3)...))
	e.active("disp", entitySegment(10, steps(3, 4)...))

	svc := e.service()
	res, err := svc.Load(context.Background(), disp)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.Segments)
	assert.Equal(t, 1, res.Stats.Overwritten)
	assert.Equal(t, []int64{1, 2, 3, 4}, res.Series.Steps())
	assert.False(t, res.Rebased)

	rec, ok := res.Series.Get(3)
	require.True(t, ok)
	assert.Equal(t, 30.0, rec.Entities[0].Values[0], "run directory segment wins")

	snap := svc.metrics.Get(metrics.OpParse)
	require.NotNil(t, snap)
	assert.Equal(t, int64(2), snap.Count)
}

func TestLoad_RunDirectoryWinsOverArchive(t *testing.T) {
	e := newEnv(t)
	e.archived("disp3", entitySegment(1, steps(1, 10)...))
	e.active("disp1", entitySegment(2, steps(5, 12)...))

	res, err := e.service().Load(context.Background(), disp)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(e.cfg.ArchivePath(disp), "disp3"),
		filepath.Join(e.cfg.RunDir, "disp1"),
	}, res.Segments)
	assert.Equal(t, 6, res.Stats.Overwritten)
	assert.Equal(t, steps(1, 12), res.Series.Steps())

	rec, ok := res.Series.Get(5)
	require.True(t, ok)
	assert.Equal(t, 10.0, rec.Entities[0].Values[0])
	rec, ok = res.Series.Get(4)
	require.True(t, ok)
	assert.Equal(t, 4.0, rec.Entities[0].Values[0])
}

func TestLoad_Rebase(t *testing.T) {
	e := newEnv(t)
	inc := 0.5
	e.cfg.StepIncrement = &inc
	e.archived("disp1", entitySegment(1, 10, 20, 30))

	res, err := e.service().Load(context.Background(), disp)
	require.NoError(t, err)
	assert.True(t, res.Rebased)

	var times []float64
	for _, r := range res.Series.Ordered() {
		times = append(times, r.Time)
	}
	assert.Equal(t, []float64{0.5, 1.0, 1.5}, times)
}

func TestLoad_Empty(t *testing.T) {
	e := newEnv(t)
	res, err := e.service().Load(context.Background(), disp)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Series.Len())
}

func TestCheck(t *testing.T) {
	restart := int64(100)
	tests := []struct {
		name     string
		expected *int64
		first    int64
		want     validate.Status
	}{
		{"match", &restart, 101, validate.Match},
		{"mismatch", &restart, 90, validate.Mismatch},
		{"origin run", nil, 1, validate.NotApplicable},
		{"restart not configured", nil, 40, validate.MissingExpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.cfg.RestartStep = tt.expected
			e.archived("disp1", entitySegment(1, tt.first, tt.first+1))

			res, err := e.service().Check(context.Background(), disp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.first, res.FirstStep)
		})
	}
}

func TestArchive(t *testing.T) {
	e := newEnv(t)
	e.archived("disp1", entitySegment(1, steps(1, 2)...))
	e.active("disp", entitySegment(1, steps(3, 4)...))
	e.active("disp01", entitySegment(1, steps(5, 6)...))

	rep, err := e.service().Archive(context.Background(), disp, consolidate.Options{})
	require.NoError(t, err)
	assert.Equal(t, "disp", rep.Series)
	assert.Equal(t, 2, rep.FilesMoved)
	assert.Len(t, e.archiveNames(), 3)

	_, err = os.Stat(filepath.Join(e.cfg.RunDir, "disp"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
