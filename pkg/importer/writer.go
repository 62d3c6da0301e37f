package importer

import (
	stderrors "errors"

	"github.com/ajitpratap0/planport/pkg/delimited"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/planapi"
)

// WriteTable writes the header row of t then every data row to w and closes
// w. It returns the number of data rows written. w is closed exactly once,
// also when t is empty or a write fails.
func WriteTable(w planapi.CellWriter, t delimited.Table) (rows int, err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = stderrors.Join(err, cerr)
		}
	}()

	if len(t) == 0 {
		return 0, errors.New(errors.ErrorTypeData, "no header row")
	}
	if err := w.WriteHeaderRow(t.Header()); err != nil {
		return 0, err
	}
	for i, row := range t.DataRows() {
		if err := w.WriteDataRow(row); err != nil {
			return rows, errors.Wrap(err, errors.TypeOf(err), "failed to write data row").WithDetail("row", i+1)
		}
		rows++
	}
	return rows, nil
}

// headerHook calls onHeader after the header row was written.
type headerHook struct {
	planapi.CellWriter
	onHeader func(row []string)
}

func (h headerHook) WriteHeaderRow(row []string) error {
	if err := h.CellWriter.WriteHeaderRow(row); err != nil {
		return err
	}
	h.onHeader(row)
	return nil
}
