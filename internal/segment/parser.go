package segment

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const headerKeyword = "STEP"

// Options configures segment parsing.
type Options struct {
	// Kind selects the body line layout.
	Kind Kind
	// Steps restricts which records are returned. Blocks of other steps
	// are still consumed and validated to keep the stream aligned.
	Steps StepSet
	// HeadersOnly keeps step ids and times but drops body values.
	// Body lines are still fully validated.
	HeadersOnly bool
}

// header is a decoded STEP line.
type header struct {
	step  int64
	time  float64
	count int
}

// schema is the body line shape fixed by the first block of a segment.
type schema struct {
	set    bool
	width  int      // entity vector width
	names  []string // aggregate field names, in order
	widths []int    // aggregate field widths
}

type parser struct {
	cur    *lineCursor
	opts   Options
	schema schema
}

// Parse reads a whole segment from r. Any failure aborts the segment and
// no records are returned.
func Parse(r io.Reader, opts Options) ([]Record, error) {
	p := &parser{cur: newLineCursor(r), opts: opts}
	var records []Record

	for {
		h, ok, err := p.nextHeader()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		keep := opts.Steps.Allows(h.step)
		rec, err := p.readBlock(h, keep && !opts.HeadersOnly)
		if err != nil {
			return nil, err
		}
		if keep {
			records = append(records, rec)
		}
	}

	if err := p.cur.Err(); err != nil {
		return nil, &ParseError{Line: p.cur.Line() + 1, Err: err}
	}
	return records, nil
}

// ParseFile parses the segment at path and records its size and mtime.
func ParseFile(path string, opts Options) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment: %w", err)
	}

	records, err := Parse(f, opts)
	if err != nil {
		return nil, withPath(err, path)
	}

	return &Segment{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Kind:    opts.Kind,
		Records: records,
	}, nil
}

// ScanRange extracts the step coverage of the segment at path. The whole
// file is validated; a segment that does not parse has no range.
func ScanRange(path string, kind Kind) (FileRange, error) {
	seg, err := ParseFile(path, Options{Kind: kind, HeadersOnly: true})
	if err != nil {
		return FileRange{}, err
	}
	return seg.Range()
}

// nextHeader skips comments and blank lines and decodes the next STEP line.
// ok is false at a clean end of stream.
func (p *parser) nextHeader() (header, bool, error) {
	for {
		line, ok := p.cur.Next()
		if !ok {
			return header{}, false, nil
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		h, err := decodeHeader(trimmed)
		if err != nil {
			return header{}, false, parseErrorf(p.cur.Line(), ErrMalformedHeader, "%v", err)
		}
		return h, true, nil
	}
}

func isHeader(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && strings.EqualFold(fields[0], headerKeyword)
}

func decodeHeader(line string) (header, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 || !strings.EqualFold(fields[0], headerKeyword) {
		return header{}, fmt.Errorf("want %q <step> <time> <count>, got %q", headerKeyword, line)
	}
	step, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return header{}, fmt.Errorf("step id %q", fields[1])
	}
	t, err := parseFloat(fields[2])
	if err != nil {
		return header{}, fmt.Errorf("time %q", fields[2])
	}
	count, err := strconv.Atoi(fields[3])
	if err != nil || count < 0 {
		return header{}, fmt.Errorf("line count %q", fields[3])
	}
	return header{step: step, time: t, count: count}, nil
}

// readBlock consumes exactly h.count body lines. Values are retained only
// when keep is set; every line is validated either way.
func (p *parser) readBlock(h header, keep bool) (Record, error) {
	rec := Record{Step: h.step, Time: h.time}
	if keep {
		switch p.opts.Kind {
		case KindEntity:
			rec.Entities = make([]EntityValue, 0, h.count)
		case KindAggregate:
			rec.Fields = make([]Field, 0, h.count)
		}
	}

	first := !p.schema.set
	for i := 0; i < h.count; i++ {
		next, ok := p.cur.Peek()
		if !ok && p.cur.Err() != nil {
			return Record{}, &ParseError{Line: p.cur.Line() + 1, Err: p.cur.Err()}
		}
		if !ok || isHeader(next) {
			return Record{}, parseErrorf(p.cur.Line()+1, ErrTruncatedBlock,
				"step %d: got %d of %d lines", h.step, i, h.count)
		}
		line, _ := p.cur.Next()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return Record{}, parseErrorf(p.cur.Line(), ErrTruncatedBlock,
				"step %d: blank line inside block", h.step)
		}

		values, err := parseVector(fields[1:])
		if err != nil {
			return Record{}, parseErrorf(p.cur.Line(), ErrNonNumeric, "step %d: %v", h.step, err)
		}

		switch p.opts.Kind {
		case KindEntity:
			id, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return Record{}, parseErrorf(p.cur.Line(), ErrNonNumeric, "step %d: entity id %q", h.step, fields[0])
			}
			if err := p.checkEntityWidth(len(values)); err != nil {
				return Record{}, err
			}
			if keep {
				rec.Entities = append(rec.Entities, EntityValue{ID: id, Values: values})
			}
		case KindAggregate:
			name := fields[0]
			if !validFieldName(name) {
				return Record{}, parseErrorf(p.cur.Line(), ErrSchemaMismatch, "step %d: field name %q", h.step, name)
			}
			if err := p.checkField(first, i, name, len(values)); err != nil {
				return Record{}, err
			}
			if keep {
				rec.Fields = append(rec.Fields, Field{Name: name, Values: values})
			}
		default:
			return Record{}, fmt.Errorf("unsupported segment kind %v", p.opts.Kind)
		}
	}

	if p.opts.Kind == KindAggregate && h.count > 0 {
		if first {
			p.schema.set = true
		} else if h.count != len(p.schema.names) {
			return Record{}, parseErrorf(p.cur.Line(), ErrSchemaMismatch,
				"step %d: %d fields, want %d", h.step, h.count, len(p.schema.names))
		}
	}
	return rec, nil
}

func (p *parser) checkEntityWidth(width int) error {
	if width == 0 {
		return parseErrorf(p.cur.Line(), ErrSchemaMismatch, "entity line without values")
	}
	if !p.schema.set {
		p.schema.set = true
		p.schema.width = width
		return nil
	}
	if width != p.schema.width {
		return parseErrorf(p.cur.Line(), ErrSchemaMismatch, "vector width %d, want %d", width, p.schema.width)
	}
	return nil
}

// checkField validates the i-th aggregate line against the field set. The
// first non-empty block defines the set.
func (p *parser) checkField(first bool, i int, name string, width int) error {
	if width == 0 {
		return parseErrorf(p.cur.Line(), ErrSchemaMismatch, "field %q without values", name)
	}
	if first {
		p.schema.names = append(p.schema.names, name)
		p.schema.widths = append(p.schema.widths, width)
		return nil
	}
	if i >= len(p.schema.names) || p.schema.names[i] != name || p.schema.widths[i] != width {
		return parseErrorf(p.cur.Line(), ErrSchemaMismatch, "field %q (width %d) at position %d", name, width, i+1)
	}
	return nil
}

func parseVector(fields []string) ([]float64, error) {
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			return nil, fmt.Errorf("value %q", f)
		}
		values[i] = v
	}
	return values, nil
}

// parseFloat accepts Fortran style D exponents (1.5D-03) in addition to
// the usual forms.
func parseFloat(s string) (float64, error) {
	if strings.ContainsAny(s, "dD") {
		s = strings.NewReplacer("d", "e", "D", "e").Replace(s)
	}
	return strconv.ParseFloat(s, 64)
}

func validFieldName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return name != ""
}
