package planapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// DefaultLocale is sent when creating tasks.
const DefaultLocale = "en_US"

func importPath(model ModelRef, importID string) string {
	return model.path() + "/imports/" + importID
}

// CreateTask starts a new execution of imp.
func (c *Client) CreateTask(ctx context.Context, imp Import) (Task, error) {
	var resp struct {
		Task struct {
			TaskID string `json:"taskId"`
		} `json:"task"`
	}
	body := map[string]string{"localeName": DefaultLocale}
	if err := c.doJSON(ctx, http.MethodPost, importPath(imp.Model, imp.ID)+"/tasks", body, &resp); err != nil {
		return Task{}, errors.Wrap(err, errors.TypeOf(err), "failed to create import task").
			WithDetail("import_id", imp.ID)
	}
	if resp.Task.TaskID == "" {
		return Task{}, errors.New(errors.ErrorTypeRemote, "task creation returned no task id").
			WithDetail("import_id", imp.ID)
	}

	c.logger.Debug("task created", zap.String("import_id", imp.ID), zap.String("task_id", resp.Task.TaskID))
	return Task{ID: resp.Task.TaskID, ImportID: imp.ID, Model: imp.Model}, nil
}

// TaskStatus fetches the current status of task.
func (c *Client) TaskStatus(ctx context.Context, task Task) (TaskStatus, error) {
	var resp struct {
		Task *TaskStatus `json:"task"`
	}
	path := importPath(task.Model, task.ImportID) + "/tasks/" + task.ID
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return TaskStatus{}, err
	}
	if resp.Task == nil || resp.Task.State == "" {
		return TaskStatus{}, errors.New(errors.ErrorTypeRemote, "malformed task status").
			WithDetail("task_id", task.ID)
	}
	return *resp.Task, nil
}

// FetchFailureDump downloads every chunk of the failure dump of task.
func (c *Client) FetchFailureDump(ctx context.Context, task Task) (FailureDump, error) {
	base := importPath(task.Model, task.ImportID) + "/tasks/" + task.ID + "/dump"

	var list struct {
		Chunks []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"chunks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, base+"/chunks", nil, &list); err != nil {
		return FailureDump{}, errors.Wrap(err, errors.TypeOf(err), "failed to list failure dump chunks")
	}

	dump := FailureDump{ImportID: task.ImportID, TaskID: task.ID}
	for _, chunk := range list.Chunks {
		resp, err := c.send(ctx, request{
			method: http.MethodGet,
			path:   base + "/chunks/" + chunk.ID,
			accept: "application/octet-stream",
		})
		if err != nil {
			return FailureDump{}, errors.Wrap(err, errors.TypeOf(err), "failed to download failure dump chunk").
				WithDetail("chunk", chunk.ID)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return FailureDump{}, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read failure dump chunk").
				WithDetail("chunk", chunk.ID)
		}
		dump.Data = append(dump.Data, data...)
		dump.Chunks++
	}
	dump.FetchedAt = time.Now().UTC()
	return dump, nil
}
