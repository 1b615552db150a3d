package segment

import (
	"cmp"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// OrderKey compares two segments for merge order. Merge results depend on
// it because later segments overwrite earlier ones.
type OrderKey func(a, b *Segment) int

// SplitSuffix splits a file name like "disp12" into ("disp", 12, true).
// Names without a trailing number return ok=false.
func SplitSuffix(name string) (base string, n int, ok bool) {
	end := len(name)
	i := end
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == end || i == 0 {
		return name, 0, false
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return name, 0, false
	}
	return name[:i], n, true
}

// ByArchiveOrder orders segments by base name, then numeric suffix
// (disp2 before disp10), with unsuffixed active files after all suffixed
// ones, then by mtime and finally path.
func ByArchiveOrder(a, b *Segment) int {
	an, bn := filepath.Base(a.Path), filepath.Base(b.Path)
	ab, as, aok := SplitSuffix(an)
	bb, bs, bok := SplitSuffix(bn)

	if c := strings.Compare(ab, bb); c != 0 {
		return c
	}
	switch {
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	case aok && bok:
		if c := cmp.Compare(as, bs); c != 0 {
			return c
		}
	}
	if c := a.ModTime.Compare(b.ModTime); c != 0 {
		return c
	}
	return strings.Compare(a.Path, b.Path)
}

// ByModTime orders segments by modification time, then path.
func ByModTime(a, b *Segment) int {
	if c := a.ModTime.Compare(b.ModTime); c != 0 {
		return c
	}
	return strings.Compare(a.Path, b.Path)
}

// Sort orders segments in place by key. The sort is stable.
func Sort(segments []*Segment, key OrderKey) {
	if key == nil {
		key = ByArchiveOrder
	}
	slices.SortStableFunc(segments, key)
}
