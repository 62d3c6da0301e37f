package errors

import "errors"

// OperationError reports an import that could not complete. It wraps the
// transfer or remote fault that stopped it and names the import action.
type OperationError struct {
	ImportID string
	Stage    string
	Err      error
}

// NewOperationError wraps err as the failure of the named import at the given stage.
func NewOperationError(importID, stage string, err error) *OperationError {
	return &OperationError{ImportID: importID, Stage: stage, Err: err}
}

func (e *OperationError) Error() string {
	return "import [" + e.ImportID + "] failed during " + e.Stage + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsOperationError reports whether err carries an *OperationError.
func IsOperationError(err error) bool {
	var op *OperationError
	return errors.As(err, &op)
}
