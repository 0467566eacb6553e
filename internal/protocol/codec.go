package protocol

import (
	"bufio"
	"bytes"
	"io"
)

// WriteLine writes text followed by a single '\n' and flushes. Text is sent
// as-is: an embedded '\n' reaches the receiver as two separate lines.
func WriteLine(w io.Writer, text string) error {
	bw := bufio.NewWriterSize(w, len(text)+1)
	if _, err := bw.WriteString(text); err != nil {
		return err
	}
	if err := bw.WriteByte(LineTerminator); err != nil {
		return err
	}
	return bw.Flush()
}

// LineReader splits a byte stream on '\n'. A trailing line without a
// terminator is still returned before io.EOF.
type LineReader struct {
	scanner *bufio.Scanner
}

func NewLineReader(r io.Reader, maxLineSize int) *LineReader {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(4096, maxLineSize)), maxLineSize)
	scanner.Split(scanLines)

	return &LineReader{scanner: scanner}
}

// Next returns the next line without its terminator. It returns io.EOF once
// the stream is exhausted and bufio.ErrTooLong for lines above the limit.
func (lr *LineReader) Next() (string, error) {
	if lr.scanner.Scan() {
		return lr.scanner.Text(), nil
	}
	if err := lr.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// scanLines is bufio.ScanLines without the '\r' stripping, so lines
// round-trip byte for byte.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, LineTerminator); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
