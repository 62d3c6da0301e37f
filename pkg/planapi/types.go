// Package planapi is a client for the planning-model REST API: import
// actions, server files, chunked uploads, server tasks and failure dumps.
package planapi

import (
	"strings"
	"time"
)

// ModelRef identifies a model within a workspace.
type ModelRef struct {
	WorkspaceID string `json:"workspaceId"`
	ModelID     string `json:"modelId"`
}

func (m ModelRef) path() string {
	return "/workspaces/" + m.WorkspaceID + "/models/" + m.ModelID
}

// Import is an import action defined in a model.
type Import struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	SourceFileID string   `json:"importDataSourceId"`
	ImportType   string   `json:"importType,omitempty"`
	Model        ModelRef `json:"-"`
}

// ServerFile is a file stored in a model that backs an import.
type ServerFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ChunkCount   int    `json:"chunkCount"`
	Separator    string `json:"separator,omitempty"`
	Delimiter    string `json:"delimiter,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
	Format       string `json:"format,omitempty"`
	HeaderRow    int    `json:"headerRow,omitempty"`
	FirstDataRow int    `json:"firstDataRow,omitempty"`
}

// TaskState is the lifecycle state of a server task.
type TaskState string

// Task states reported by the server.
const (
	TaskNotStarted TaskState = "NOT_STARTED"
	TaskInProgress TaskState = "IN_PROGRESS"
	TaskComplete   TaskState = "COMPLETE"
	TaskCancelling TaskState = "CANCELLING"
	TaskCancelled  TaskState = "CANCELLED"
)

// Terminal reports whether no further state change will happen.
func (s TaskState) Terminal() bool {
	return s == TaskComplete || s == TaskCancelled
}

// Task is one execution of an import.
type Task struct {
	ID       string
	ImportID string
	Model    ModelRef
}

// TaskStatus is a snapshot of a server task.
type TaskStatus struct {
	TaskID      string      `json:"taskId"`
	State       TaskState   `json:"taskState"`
	Progress    float64     `json:"progress"`
	CurrentStep string      `json:"currentStep"`
	Result      *TaskResult `json:"result,omitempty"`
}

// TaskResult is the outcome reported by a finished task.
type TaskResult struct {
	Successful           bool         `json:"successful"`
	FailureDumpAvailable bool         `json:"failureDumpAvailable"`
	ObjectID             string       `json:"objectId,omitempty"`
	Details              []TaskDetail `json:"details,omitempty"`
}

// TaskDetail is one log entry of a task result.
type TaskDetail struct {
	LocalMessageText string   `json:"localMessageText"`
	Occurrences      int      `json:"occurrences,omitempty"`
	Type             string   `json:"type,omitempty"`
	Values           []string `json:"values,omitempty"`
}

// Logs renders the result details one message per line. The result ends
// with a line break when any message is present.
func (r *TaskResult) Logs() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, d := range r.Details {
		if d.LocalMessageText == "" {
			continue
		}
		sb.WriteString(d.LocalMessageText)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FailureDump is the downloaded failure dump of a task.
type FailureDump struct {
	ImportID  string    `json:"importId"`
	TaskID    string    `json:"taskId"`
	Chunks    int       `json:"chunks"`
	Data      []byte    `json:"-"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// CellWriter streams rows into a remote file.
type CellWriter interface {
	WriteHeaderRow(row []string) error
	WriteDataRow(row []string) error
	Close() error
}
