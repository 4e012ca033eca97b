package proc

import "bufio"

// ScanLine reads a single newline-terminated line from the reader,
// bounded to limit bytes when limit is positive. The trailing newline
// is included. At the end of the stream the partial line is returned
// together with io.EOF.
func ScanLine(br *bufio.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return br.ReadBytes('\n')
	}

	line := make([]byte, 0, limit)
	for len(line) < limit {
		b, err := br.ReadByte()
		if err != nil {
			return line, err
		}
		line = append(line, b)
		if b == '\n' {
			break
		}
	}
	return line, nil
}
