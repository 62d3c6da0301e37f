// Package importer runs delimited-text imports against a planning model:
// it parses the input, streams it into the file backing an import action,
// runs the server task to completion and classifies the result.
package importer

import (
	"context"
	"strings"
	"time"

	"github.com/ajitpratap0/planport/pkg/delimited"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/planapi"
)

// Status is the classification of a finished import.
type Status string

// Import outcomes.
const (
	StatusSuccess                Status = "SUCCESS"
	StatusSuccessWithFailureDump Status = "SUCCESS_WITH_FAILURE_DUMP"
	StatusFailure                Status = "FAILURE"
)

// ModelAPI is the part of the planning API an import needs.
type ModelAPI interface {
	ResolveImport(ctx context.Context, model planapi.ModelRef, idOrName string) (planapi.Import, bool, error)
	ResolveFile(ctx context.Context, model planapi.ModelRef, fileID string) (planapi.ServerFile, bool, error)
	OpenUploadWriter(ctx context.Context, model planapi.ModelRef, file planapi.ServerFile, d delimited.Delimiters) (planapi.CellWriter, error)
	CreateTask(ctx context.Context, imp planapi.Import) (planapi.Task, error)
	TaskStatus(ctx context.Context, task planapi.Task) (planapi.TaskStatus, error)
	FetchFailureDump(ctx context.Context, task planapi.Task) (planapi.FailureDump, error)
}

// Session is an authenticated connection. Close is called exactly once by
// the orchestrator for every session it opens.
type Session interface {
	ModelAPI
	LogContext() string
	Close() error
}

// Connector opens sessions.
type Connector interface {
	Open(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Session, error)

// Open calls f(ctx).
func (f ConnectorFunc) Open(ctx context.Context) (Session, error) { return f(ctx) }

// DumpArchiver stores a downloaded failure dump and returns its location.
type DumpArchiver interface {
	Archive(ctx context.Context, dump planapi.FailureDump) (string, error)
}

// RunRecorder persists finished outcomes.
type RunRecorder interface {
	Record(ctx context.Context, out *Outcome) error
}

// Request is one import invocation.
type Request struct {
	Data            string `json:"-"`
	WorkspaceID     string `json:"workspaceId"`
	ModelID         string `json:"modelId"`
	ImportID        string `json:"importId"`
	ColumnSeparator string `json:"columnSeparator"`
	QuoteDelimiter  string `json:"quoteDelimiter"`
}

// Validate checks the ids and delimiters and returns the parsed delimiters.
func (r Request) Validate() (delimited.Delimiters, error) {
	for _, f := range []struct{ name, value string }{
		{"workspace_id", r.WorkspaceID},
		{"model_id", r.ModelID},
		{"import_id", r.ImportID},
	} {
		if strings.TrimSpace(f.value) == "" {
			return delimited.Delimiters{}, errors.New(errors.ErrorTypeConfig, f.name+" is required").
				WithDetail("field", f.name)
		}
	}
	return delimited.NewDelimiters(r.ColumnSeparator, r.QuoteDelimiter)
}

func (r Request) model() planapi.ModelRef {
	return planapi.ModelRef{WorkspaceID: r.WorkspaceID, ModelID: r.ModelID}
}

// DumpRef describes the failure dump of a task.
type DumpRef struct {
	TaskID string `json:"taskId"`
	Chunks int    `json:"chunks,omitempty"`
	Size   int    `json:"size,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// Outcome is the result of one import. It is not modified after RunImport
// returns it.
type Outcome struct {
	Status        Status              `json:"status"`
	Message       string              `json:"message"`
	ImportID      string              `json:"importId"`
	WorkspaceID   string              `json:"workspaceId"`
	ModelID       string              `json:"modelId"`
	TaskID        string              `json:"taskId,omitempty"`
	LogContext    string              `json:"logContext"`
	RowsProcessed int                 `json:"rowsProcessed"`
	Details       string              `json:"details,omitempty"`
	File          *planapi.ServerFile `json:"file,omitempty"`
	FailureDump   *DumpRef            `json:"failureDump,omitempty"`
	StartedAt     time.Time           `json:"startedAt"`
	FinishedAt    time.Time           `json:"finishedAt"`
	Fault         string              `json:"error,omitempty"`
	Err           error               `json:"-"`
}

// Failed reports whether the import ended in FAILURE.
func (o *Outcome) Failed() bool {
	return o.Status == StatusFailure
}

// Duration is the wall time of the import.
func (o *Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Summary renders the outcome for a terminal.
func (o *Outcome) Summary() string {
	if !o.Failed() {
		return "[" + o.ImportID + "] ran successfully!\n\n" + o.Details
	}
	s := "[" + o.ImportID + "] failed: " + o.Message
	if o.Details != "" && o.Details != o.Message {
		s += "\n\n" + o.Details
	}
	if o.Fault != "" {
		s += "\n\nerror: " + o.Fault
	}
	return s
}
