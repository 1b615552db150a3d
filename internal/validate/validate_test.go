package validate

import (
	"testing"

	"github.com/raphaelgruber/tharchive/internal/segment"
	"github.com/raphaelgruber/tharchive/internal/series"
	"github.com/stretchr/testify/assert"
)

func history(steps ...int64) *series.Series {
	s := series.New(segment.KindEntity)
	for _, st := range steps {
		s.Put(segment.Record{Step: st, Time: float64(st)})
	}
	return s
}

func ptr(v int64) *int64 { return &v }

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		s        *series.Series
		expected *int64
		origin   int64
		want     Status
		warning  bool
	}{
		{"match", history(101, 102, 103), ptr(100), 0, Match, false},
		{"unordered input still uses smallest step", history(105, 101), ptr(100), 0, Match, false},
		{"mismatch", history(150, 151), ptr(100), 0, Mismatch, true},
		{"expected absent, not at origin", history(50, 51), nil, 0, MissingExpected, true},
		{"expected absent, at origin", history(0, 1, 2), nil, 0, NotApplicable, false},
		{"custom origin", history(1, 2), nil, 1, NotApplicable, false},
		{"empty", history(), ptr(10), 0, Empty, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.s.Len()
			got := Check(tt.s, tt.expected, tt.origin)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.warning, got.Warning())
			assert.NotEmpty(t, got.String())
			assert.Equal(t, before, tt.s.Len())
		})
	}
}

func TestCheck_MismatchReportsBothValues(t *testing.T) {
	got := Check(history(150), ptr(100), 0)
	assert.Equal(t, int64(150), got.FirstStep)
	assert.Equal(t, int64(100), *got.Expected)
	assert.Contains(t, got.String(), "150")
	assert.Contains(t, got.String(), "101")
}
