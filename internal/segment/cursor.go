package segment

import (
	"bufio"
	"io"
)

// maxLineSize bounds a single line. Entity lines are short, but aggregate
// vectors on wide models can run to a few hundred columns.
const maxLineSize = 4 * 1024 * 1024

// lineCursor is a peek/consume cursor over the lines of a segment.
// All block boundary checks go through it so truncation is detected in
// exactly one place.
type lineCursor struct {
	sc      *bufio.Scanner
	line    int
	peeked  bool
	pending string
	eof     bool
	err     error
}

func newLineCursor(r io.Reader) *lineCursor {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineCursor{sc: sc}
}

// fill loads the next line into the peek slot if it is empty.
func (c *lineCursor) fill() bool {
	if c.peeked {
		return true
	}
	if c.eof {
		return false
	}
	if !c.sc.Scan() {
		c.eof = true
		c.err = c.sc.Err()
		return false
	}
	c.pending = c.sc.Text()
	c.peeked = true
	return true
}

// Peek returns the next line without consuming it.
func (c *lineCursor) Peek() (string, bool) {
	if !c.fill() {
		return "", false
	}
	return c.pending, true
}

// Next consumes and returns the next line.
func (c *lineCursor) Next() (string, bool) {
	if !c.fill() {
		return "", false
	}
	c.peeked = false
	c.line++
	return c.pending, true
}

// Line is the 1-based number of the last consumed line.
func (c *lineCursor) Line() int {
	return c.line
}

// Err returns the underlying read error, if any.
func (c *lineCursor) Err() error {
	return c.err
}
