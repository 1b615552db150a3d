package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/raphaelgruber/tharchive/internal/config"
	"github.com/raphaelgruber/tharchive/internal/consolidate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptConfirm(t *testing.T) {
	plan := &consolidate.Plan{
		Base: "disp",
		Deletes: []consolidate.Action{
			{Kind: consolidate.ActionDelete, Path: "a/disp1", Size: 2048, Reason: "subset-of(a/disp2)"},
		},
		Renames: []consolidate.Action{
			{Kind: consolidate.ActionRename, Path: "a/disp2", Target: "a/disp1"},
		},
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			ok, err := promptConfirm(&out, strings.NewReader(tt.input)).Confirm(plan)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Contains(t, out.String(), "delete a/disp1")
			assert.Contains(t, out.String(), "rename a/disp2 -> a/disp1")
			assert.Contains(t, out.String(), "Continue? [y/N]")
		})
	}
}

func TestSelectSeries(t *testing.T) {
	cfg = config.Config{Series: config.DefaultSeries()}

	all, err := selectSeries(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := selectSeries([]string{"energy"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "aggregate", one[0].Kind)

	_, err = selectSeries([]string{"stress"})
	assert.ErrorContains(t, err, "unknown series")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "archive", "disp")
	require.NoError(t, os.MkdirAll(archive, 0o755))

	block := func(steps ...int) string {
		var b strings.Builder
		for _, s := range steps {
			b.WriteString("STEP " + strconv.Itoa(s) + " 0.1 1\n1 0.0 0.0 0.0\n")
		}
		return b.String()
	}
	require.NoError(t, os.WriteFile(filepath.Join(archive, "disp1"), []byte(block(1, 2)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(archive, "disp2"), []byte(block(1, 2, 3)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "disp"), []byte(block(4, 5)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "run.params"), []byte("restart_step = 3\n"), 0o644))

	t.Setenv("THA_RUN_DIR", root)
	t.Setenv("THA_LOG_FILE", filepath.Join(root, "tharchive.log"))
	t.Setenv("THA_LOG_LEVEL", "error")

	out, err := runCLI(t, "scan", "disp")
	require.NoError(t, err)
	assert.Contains(t, out, "scan (dry run)")
	assert.Contains(t, out, "subset-of(")
	assert.FileExists(t, filepath.Join(archive, "disp1"))

	out, err = runCLI(t, "load", "disp", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "steps: 5")
	assert.Contains(t, out, "first_step: 1")

	out, err = runCLI(t, "compact", "disp", "-o", "text", "--yes", "--audit-log", filepath.Join(root, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted: 1 file(s)")
	entries, err := os.ReadDir(archive)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "disp1", entries[0].Name())
	audit, err := os.ReadFile(filepath.Join(root, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), "run="+runID)
	logged, err := os.ReadFile(filepath.Join(root, "tharchive.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logged), `"run":"`+runID+`"`)

	out, err = runCLI(t, "archive", "disp", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Moved:   1 file(s)")
	assert.FileExists(t, filepath.Join(archive, "disp2"))

	out, err = runCLI(t, "check", "disp", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "mismatch")

	out, err = runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tharchive "+Version)

	_, err = runCLI(t, "scan", "-o", "json")
	assert.ErrorContains(t, err, "unknown output format")
}
