// Package delimited parses and writes RFC 4180 style delimited text with a
// configurable column separator and quote character.
//
// Records end at LF, CR or CRLF. A quoted field may contain separators,
// record terminators and doubled quote characters. A trailing record
// terminator does not produce an empty row; a blank line in the middle of
// the input is a row with a single empty cell. Rows may have different
// lengths.
package delimited

import (
	"unicode/utf8"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// Delimiters is the column separator and quote character of a dialect.
type Delimiters struct {
	Separator rune
	Quote     rune
}

// Default is the comma separated, double quoted dialect.
var Default = Delimiters{Separator: ',', Quote: '"'}

// NewDelimiters validates the string forms of a separator and quote
// character. Each must be exactly one character.
func NewDelimiters(separator, quote string) (Delimiters, error) {
	sep, err := singleRune("column separator", separator)
	if err != nil {
		return Delimiters{}, err
	}
	q, err := singleRune("quote delimiter", quote)
	if err != nil {
		return Delimiters{}, err
	}
	d := Delimiters{Separator: sep, Quote: q}
	if err := d.Validate(); err != nil {
		return Delimiters{}, err
	}
	return d, nil
}

// Validate rejects dialects that cannot be parsed unambiguously.
func (d Delimiters) Validate() error {
	switch {
	case d.Separator == 0 || d.Quote == 0:
		return errors.New(errors.ErrorTypeConfig, "separator and quote delimiter are required")
	case d.Separator == d.Quote:
		return errors.New(errors.ErrorTypeConfig, "separator and quote delimiter must differ").
			WithDetail("delimiter", string(d.Separator))
	case isTerminator(d.Separator) || isTerminator(d.Quote):
		return errors.New(errors.ErrorTypeConfig, "separator and quote delimiter must not be a line break")
	case d.Separator == utf8.RuneError || d.Quote == utf8.RuneError:
		return errors.New(errors.ErrorTypeConfig, "separator and quote delimiter must be valid UTF-8")
	}
	return nil
}

// String renders the dialect for logs.
func (d Delimiters) String() string {
	return "separator=" + string(d.Separator) + " quote=" + string(d.Quote)
}

func singleRune(name, s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, errors.New(errors.ErrorTypeConfig, name+" must be exactly one character").
			WithDetail("value", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func isTerminator(r rune) bool {
	return r == '\r' || r == '\n'
}
