package delimited

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/planport/pkg/errors"
)

func TestNewDelimiters(t *testing.T) {
	tests := []struct {
		name      string
		separator string
		quote     string
		wantErr   bool
	}{
		{name: "comma and double quote", separator: ",", quote: `"`},
		{name: "tab and single quote", separator: "\t", quote: "'"},
		{name: "multi-byte rune", separator: "§", quote: `"`},
		{name: "empty separator", separator: "", quote: `"`, wantErr: true},
		{name: "two character separator", separator: "||", quote: `"`, wantErr: true},
		{name: "two character quote", separator: ",", quote: `""`, wantErr: true},
		{name: "same character", separator: ",", quote: ",", wantErr: true},
		{name: "newline separator", separator: "\n", quote: `"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDelimiters(tt.separator, tt.quote)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		delim Delimiters
		want  Table
	}{
		{
			name:  "simple",
			text:  "A,B\n1,2\n3,4",
			delim: Default,
			want:  Table{{"A", "B"}, {"1", "2"}, {"3", "4"}},
		},
		{
			name:  "trailing terminator adds no row",
			text:  "A,B\r\n1,2\r\n",
			delim: Default,
			want:  Table{{"A", "B"}, {"1", "2"}},
		},
		{
			name:  "bare CR terminators",
			text:  "A\r1\r",
			delim: Default,
			want:  Table{{"A"}, {"1"}},
		},
		{
			name:  "blank middle line",
			text:  "A\n\nB\n",
			delim: Default,
			want:  Table{{"A"}, {""}, {"B"}},
		},
		{
			name:  "quoted separator and escaped quote",
			text:  `name,note` + "\n" + `"Smith, J","said ""hi"""`,
			delim: Default,
			want:  Table{{"name", "note"}, {"Smith, J", `said "hi"`}},
		},
		{
			name:  "quoted field spanning lines",
			text:  "A,B\n\"line1\nline2\",x\n",
			delim: Default,
			want:  Table{{"A", "B"}, {"line1\nline2", "x"}},
		},
		{
			name:  "ragged rows",
			text:  "A,B,C\n1\n1,2,3,4",
			delim: Default,
			want:  Table{{"A", "B", "C"}, {"1"}, {"1", "2", "3", "4"}},
		},
		{
			name:  "empty cells",
			text:  ",\n,,",
			delim: Default,
			want:  Table{{"", ""}, {"", "", ""}},
		},
		{
			name:  "quote inside unquoted field is literal",
			text:  `ab"c,d`,
			delim: Default,
			want:  Table{{`ab"c`, "d"}},
		},
		{
			name:  "custom dialect",
			text:  "A;B\n'x;y';'it''s'\n",
			delim: Delimiters{Separator: ';', Quote: '\''},
			want:  Table{{"A", "B"}, {"x;y", "it's"}},
		},
		{
			name:  "double quote is plain text under another quote",
			text:  "A|B\n\"1|2\"",
			delim: Delimiters{Separator: '|', Quote: '\''},
			want:  Table{{"A", "B"}, {`"1`, `2"`}},
		},
		{
			name:  "empty input",
			text:  "",
			delim: Default,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text, tt.delim)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		line   int
		column int
	}{
		{name: "text after closing quote", text: "A,B\n\"x\"y,z", line: 2, column: 4},
		{name: "unterminated quote", text: "A,B\n1,\"open\n", line: 2, column: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, Default)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData))

			var perr *errors.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Details["line"])
			assert.Equal(t, tt.column, perr.Details["column"])
		})
	}
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		offset int
		line   int
	}{
		{name: "latin-1 byte", text: "a,\xff\n", offset: 2, line: 1},
		{name: "second line", text: "Name,City\nb,M\xfcnchen\n", offset: 13, line: 2},
		{name: "truncated sequence", text: "A\n\xc3", offset: 2, line: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, Default)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData))

			var perr *errors.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.offset, perr.Details["offset"])
			assert.Equal(t, tt.line, perr.Details["line"])
		})
	}
}

func TestParseKeepsMultiByteText(t *testing.T) {
	got, err := Parse("Stadt;Wert\nM\u00fcnchen;\u20ac5\n", Delimiters{Separator: ';', Quote: '"'})
	require.NoError(t, err)
	assert.Equal(t, Table{{"Stadt", "Wert"}, {"M\u00fcnchen", "\u20ac5"}}, got)
}

func TestParseStringsRejectsMultiCharacterDelimiters(t *testing.T) {
	_, err := ParseStrings("A,B", ",,", `"`)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = ParseStrings("A,B", ",", "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestFormat(t *testing.T) {
	out, err := Format([][]string{
		{"A", "B"},
		{"a,b", `q"q`},
		{""},
		{"multi\nline", ""},
	}, Default)
	require.NoError(t, err)
	assert.Equal(t, "A,B\r\n\"a,b\",\"q\"\"q\"\r\n\"\"\r\n\"multi\nline\",\r\n", out)
}

func TestRoundTrip(t *testing.T) {
	inputs := []struct {
		text  string
		delim Delimiters
	}{
		{"A,B\n1,2\n3,4\n", Default},
		{"A,B\n\"x,y\",\"say \"\"hi\"\"\"\n\n,\n", Default},
		{"h1\th2\n'a\tb'\t'c''d'\r\nplain\n", Delimiters{Separator: '\t', Quote: '\''}},
		{"\"line1\r\nline2\",x", Default},
		{"only", Default},
	}

	for _, in := range inputs {
		first, err := Parse(in.text, in.delim)
		require.NoError(t, err)

		text, err := Format(first, in.delim)
		require.NoError(t, err)

		second, err := Parse(text, in.delim)
		require.NoError(t, err)
		assert.Equal(t, first, second, "input %q", in.text)
	}
}

func TestTableAccessors(t *testing.T) {
	var empty Table
	assert.Nil(t, empty.Header())
	assert.Nil(t, empty.DataRows())

	tbl := Table{{"A"}, {"1"}, {"2"}}
	assert.Equal(t, []string{"A"}, tbl.Header())
	assert.Equal(t, [][]string{{"1"}, {"2"}}, tbl.DataRows())
}
