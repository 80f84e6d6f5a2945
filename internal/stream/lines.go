package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"
)

// ErrInvalidEncoding marks a line that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("invalid UTF-8")

// SkipFunc is told about lines that could not be delivered. lineNo is 1-based.
// A read error ends the sequence after the hook runs.
type SkipFunc func(lineNo int, err error)

// Lines returns the lines of r in order, without their terminators. Lines
// have no length limit. Invalid UTF-8 lines are skipped and reported to skip,
// which may be nil. Each call reads r afresh; the sequence ends at EOF.
func Lines(r io.Reader, skip SkipFunc) iter.Seq[string] {
	return func(yield func(string) bool) {
		br := bufio.NewReaderSize(r, 64*1024)
		n := 0
		for {
			raw, err := br.ReadBytes('\n')
			if len(raw) > 0 {
				n++
				line := bytes.TrimSuffix(bytes.TrimSuffix(raw, []byte("\n")), []byte("\r"))
				switch {
				case !utf8.Valid(line):
					if skip != nil {
						skip(n, fmt.Errorf("line %d: %w", n, ErrInvalidEncoding))
					}
				case !yield(string(line)):
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && skip != nil {
					skip(n, fmt.Errorf("reading output: %w", err))
				}
				return
			}
		}
	}
}
