package delimited

import (
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// Table is an ordered list of rows. Row 0 is the header when present.
type Table [][]string

// Header returns the first row, or nil for an empty table.
func (t Table) Header() []string {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

// DataRows returns every row after the header.
func (t Table) DataRows() [][]string {
	if len(t) < 2 {
		return nil
	}
	return t[1:]
}

type parseState int

const (
	fieldStart parseState = iota
	unquoted
	quoted
	afterQuote
)

// ParseStrings validates the string forms of the delimiters and parses text.
func ParseStrings(text, separator, quote string) (Table, error) {
	d, err := NewDelimiters(separator, quote)
	if err != nil {
		return nil, err
	}
	return Parse(text, d)
}

// Parse splits text into rows of cells. Malformed quoting fails with a data
// error carrying the line and column of the problem. Text must be valid UTF-8.
func Parse(text string, d Delimiters) (Table, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if off := invalidUTF8(text); off >= 0 {
		return nil, errors.New(errors.ErrorTypeData, "input is not valid UTF-8").
			WithDetail("offset", off).
			WithDetail("line", strings.Count(text[:off], "\n")+1)
	}

	var (
		rows        Table
		row         []string
		field       strings.Builder
		state       = fieldStart
		recordStart = true
		line, col   = 1, 0
		quoteLine   int
		quoteCol    int
	)

	endField := func() {
		row = append(row, field.String())
		field.Reset()
		state = fieldStart
	}
	endRecord := func() {
		endField()
		rows = append(rows, row)
		row = nil
		recordStart = true
		line++
		col = 0
	}

	rs := []rune(text)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		col++
		crlf := r == '\r' && i+1 < len(rs) && rs[i+1] == '\n'

		switch state {
		case fieldStart, unquoted:
			recordStart = false
			switch {
			case r == d.Quote && state == fieldStart:
				state = quoted
				quoteLine, quoteCol = line, col
			case r == d.Separator:
				endField()
			case isTerminator(r):
				if crlf {
					i++
				}
				endRecord()
			default:
				field.WriteRune(r)
				state = unquoted
			}

		case quoted:
			if r == d.Quote {
				state = afterQuote
				continue
			}
			field.WriteRune(r)
			if r == '\n' || (r == '\r' && !crlf) {
				line++
				col = 0
			}

		case afterQuote:
			switch {
			case r == d.Quote:
				field.WriteRune(d.Quote)
				state = quoted
			case r == d.Separator:
				endField()
			case isTerminator(r):
				if crlf {
					i++
				}
				endRecord()
			default:
				return nil, errors.New(errors.ErrorTypeData, "unexpected character after closing quote").
					WithDetail("line", line).
					WithDetail("column", col)
			}
		}
	}

	if state == quoted {
		return nil, errors.New(errors.ErrorTypeData, "unterminated quoted field").
			WithDetail("line", quoteLine).
			WithDetail("column", quoteCol)
	}
	if !recordStart {
		endField()
		rows = append(rows, row)
	}

	return rows, nil
}

// invalidUTF8 returns the byte offset of the first invalid sequence in s, or -1.
func invalidUTF8(s string) int {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}
