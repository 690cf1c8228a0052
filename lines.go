package linedb

import (
	"bufio"
	"bytes"
	"io"
	"iter"
)

// Default upper bound for a single physical line
const DefaultMaxLineSize = 1024 * 1024

// Lines produced by a single source. Each pair is either a raw line
// or the error that stopped the source.
type LinesIterator iter.Seq2[string, error]

// Returns the raw lines of r. Line endings (\n, \r\n or a lone \r) are
// removed, nothing else is touched. The iterator stops after the first
// read error, which is yielded once. A line longer than maxLine bytes is
// a bufio.ErrTooLong error.
func ReadLines(r io.Reader, maxLine int) LinesIterator {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}

	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		// room for the \r\n that ends a line of maxLine bytes
		scanner.Buffer(make([]byte, 0, min(4096, maxLine+2)), maxLine+2)
		scanner.Split(scanLines)

		for scanner.Scan() {
			if len(scanner.Bytes()) > maxLine {
				yield("", bufio.ErrTooLong)
				return
			}
			if !yield(scanner.Text(), nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}

// Like bufio.ScanLines, but a lone carriage return also ends a line.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// \r at the end of the buffer may be the first half of \r\n
		if i+1 == len(data) && !atEOF {
			return 0, nil, nil
		}
		if i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
