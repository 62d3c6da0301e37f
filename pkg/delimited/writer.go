package delimited

import (
	"bufio"
	"io"
	"strings"
)

// Terminator ends every record written by Writer.
const Terminator = "\r\n"

// Writer writes rows in the dialect read by Parse.
type Writer struct {
	w *bufio.Writer
	d Delimiters
}

// NewWriter returns a Writer that buffers output to w. Call Flush when done.
func NewWriter(w io.Writer, d Delimiters) *Writer {
	return &Writer{w: bufio.NewWriter(w), d: d}
}

// Write writes one row followed by the record terminator.
func (w *Writer) Write(row []string) error {
	for i, cell := range row {
		if i > 0 {
			if _, err := w.w.WriteRune(w.d.Separator); err != nil {
				return err
			}
		}
		if err := w.writeCell(cell, len(row) == 1); err != nil {
			return err
		}
	}
	_, err := w.w.WriteString(Terminator)
	return err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) writeCell(cell string, lone bool) error {
	if !w.needsQuotes(cell, lone) {
		_, err := w.w.WriteString(cell)
		return err
	}

	q := string(w.d.Quote)
	escaped := strings.ReplaceAll(cell, q, q+q)
	if _, err := w.w.WriteString(q); err != nil {
		return err
	}
	if _, err := w.w.WriteString(escaped); err != nil {
		return err
	}
	_, err := w.w.WriteString(q)
	return err
}

func (w *Writer) needsQuotes(cell string, lone bool) bool {
	if cell == "" {
		return lone
	}
	return strings.ContainsRune(cell, w.d.Separator) ||
		strings.ContainsRune(cell, w.d.Quote) ||
		strings.ContainsAny(cell, "\r\n")
}

// Format serializes rows with d.
func Format(rows [][]string, d Delimiters) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	var sb strings.Builder
	w := NewWriter(&sb, d)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
