package segment

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entitySegment = `# displacement history
STEP 10 0.1 2
  1  1.0  2.0  3.0
  2  4.0  5.0  6.0

STEP 11 0.2 3
  1  1.1  2.1  3.1
  2  4.1  5.1  6.1
  3  7.1  8.1  9.1
STEP 12 0.3 1
  1  1.2D-01  2.2  3.2
`

const aggregateSegment = `STEP 0 0.0 2
kinetic 1.5
momentum 0.1 0.2 0.3
STEP 5 0.5 2
kinetic 1.25E+00
momentum 0.4 0.5 0.6
`

func TestParse_Entity(t *testing.T) {
	records, err := Parse(strings.NewReader(entitySegment), Options{Kind: KindEntity})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, int64(10), records[0].Step)
	assert.Equal(t, 0.1, records[0].Time)
	assert.Len(t, records[0].Entities, 2)

	// Block sizes vary per step
	assert.Len(t, records[1].Entities, 3)
	assert.Equal(t, int64(3), records[1].Entities[2].ID)
	assert.Equal(t, []float64{7.1, 8.1, 9.1}, records[1].Entities[2].Values)

	// Fortran exponent
	assert.InDelta(t, 0.12, records[2].Entities[0].Values[0], 1e-12)
}

func TestParse_Aggregate(t *testing.T) {
	records, err := Parse(strings.NewReader(aggregateSegment), Options{Kind: KindAggregate})
	require.NoError(t, err)
	require.Len(t, records, 2)

	f, ok := records[1].Field("momentum")
	require.True(t, ok)
	assert.Equal(t, []float64{0.4, 0.5, 0.6}, f.Values)

	k, ok := records[1].Field("kinetic")
	require.True(t, ok)
	assert.Equal(t, []float64{1.25}, k.Values)
	assert.Nil(t, records[1].Entities)
}

func TestParse_AllowSetKeepsCursorAligned(t *testing.T) {
	records, err := Parse(strings.NewReader(entitySegment), Options{
		Kind:  KindEntity,
		Steps: NewStepSet(12),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(12), records[0].Step)
	assert.Len(t, records[0].Entities, 1)
}

func TestParse_SkippedBlockIsStillValidated(t *testing.T) {
	input := "STEP 1 0.1 1\n1 abc\nSTEP 2 0.2 1\n1 1.0\n"
	_, err := Parse(strings.NewReader(input), Options{Kind: KindEntity, Steps: NewStepSet(2)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonNumeric))
}

func TestParse_HeadersOnly(t *testing.T) {
	records, err := Parse(strings.NewReader(entitySegment), Options{Kind: KindEntity, HeadersOnly: true})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Nil(t, r.Entities)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		input   string
		wantErr error
		line    int
	}{
		{
			name:    "garbage header",
			kind:    KindEntity,
			input:   "hello world\n",
			wantErr: ErrMalformedHeader,
			line:    1,
		},
		{
			name:    "non-numeric step id",
			kind:    KindEntity,
			input:   "STEP x 0.1 1\n1 1.0\n",
			wantErr: ErrMalformedHeader,
			line:    1,
		},
		{
			name:    "missing count",
			kind:    KindEntity,
			input:   "STEP 1 0.1\n",
			wantErr: ErrMalformedHeader,
			line:    1,
		},
		{
			name:    "trailing partial block",
			kind:    KindEntity,
			input:   "STEP 1 0.1 1\n1 1.0\nSTEP 2 0.2 3\n1 1.0\n",
			wantErr: ErrTruncatedBlock,
			line:    5,
		},
		{
			name:    "header inside block",
			kind:    KindEntity,
			input:   "STEP 1 0.1 2\n1 1.0\nSTEP 2 0.2 1\n1 1.0\n",
			wantErr: ErrTruncatedBlock,
			line:    3,
		},
		{
			name:    "blank line inside block",
			kind:    KindEntity,
			input:   "STEP 1 0.1 2\n1 1.0\n\n2 1.0\n",
			wantErr: ErrTruncatedBlock,
			line:    3,
		},
		{
			name:    "non-numeric value",
			kind:    KindEntity,
			input:   "STEP 1 0.1 1\n1 1.0 nope\n",
			wantErr: ErrNonNumeric,
			line:    2,
		},
		{
			name:    "non-numeric entity id",
			kind:    KindEntity,
			input:   "STEP 1 0.1 1\nA 1.0\n",
			wantErr: ErrNonNumeric,
			line:    2,
		},
		{
			name:    "vector width changes",
			kind:    KindEntity,
			input:   "STEP 1 0.1 1\n1 1.0 2.0\nSTEP 2 0.2 1\n1 1.0\n",
			wantErr: ErrSchemaMismatch,
			line:    4,
		},
		{
			name:    "aggregate field renamed",
			kind:    KindAggregate,
			input:   "STEP 1 0.1 1\nkinetic 1.0\nSTEP 2 0.2 1\npotential 1.0\n",
			wantErr: ErrSchemaMismatch,
			line:    4,
		},
		{
			name:    "aggregate field missing",
			kind:    KindAggregate,
			input:   "STEP 1 0.1 2\nkinetic 1.0\ninternal 2.0\nSTEP 2 0.2 1\nkinetic 1.0\n",
			wantErr: ErrSchemaMismatch,
			line:    5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(strings.NewReader(tt.input), Options{Kind: tt.kind})
			require.Error(t, err)
			assert.Nil(t, records, "partial results must not be returned")
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestParse_EmptyStream(t *testing.T) {
	records, err := Parse(strings.NewReader("# nothing yet\n\n"), Options{Kind: KindEntity})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile_AttachesPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "disp1", "STEP 1 0.1 2\n1 1.0\n")

	_, err := ParseFile(path, Options{Kind: KindEntity})
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, path, pe.Path)
	assert.Contains(t, err.Error(), path)
}

func TestScanRange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "disp1", "STEP 30 0.3 1\n1 1.0\nSTEP 20 0.2 1\n1 1.0\nSTEP 40 0.4 1\n1 1.0\n")

	r, err := ScanRange(path, KindEntity)
	require.NoError(t, err)
	assert.Equal(t, int64(20), r.Start)
	assert.Equal(t, int64(40), r.End)
	assert.Equal(t, path, r.Path)
	assert.Positive(t, r.Size)
	assert.False(t, r.ModTime.IsZero())
}

func TestScanRange_NoRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "disp1", "# empty\n")

	_, err := ScanRange(path, KindEntity)
	assert.True(t, errors.Is(err, ErrNoRecords))
}
