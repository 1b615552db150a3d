package segment

import (
	"errors"
	"fmt"
)

// Sentinel errors for segment parsing.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedHeader indicates a line where a STEP header was expected
	// but could not be decoded.
	ErrMalformedHeader = errors.New("malformed step header")

	// ErrTruncatedBlock indicates the stream ended (or a new header started)
	// before a block delivered the number of lines its header announced.
	ErrTruncatedBlock = errors.New("truncated step block")

	// ErrNonNumeric indicates a numeric field that failed to parse.
	ErrNonNumeric = errors.New("non-numeric field")

	// ErrSchemaMismatch indicates a body line whose shape differs from the
	// rest of the segment (vector width, field names).
	ErrSchemaMismatch = errors.New("record schema mismatch")

	// ErrNoRecords indicates a segment without any step record, which has
	// no step range.
	ErrNoRecords = errors.New("segment has no step records")
)

// ParseError reports where in a segment parsing failed.
type ParseError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<stream>"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", loc, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", loc, e.Err, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErrorf(line int, err error, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// withPath attaches a file path to a ParseError produced by a stream parser.
func withPath(err error, path string) error {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Path == "" {
		pe.Path = path
	}
	return err
}
