package importer

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/metrics"
	"github.com/ajitpratap0/planport/pkg/planapi"
)

// Default polling parameters.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultTaskTimeout  = 30 * time.Minute
)

// TaskPoller reads the status of a server task.
type TaskPoller interface {
	TaskStatus(ctx context.Context, task planapi.Task) (planapi.TaskStatus, error)
}

// TaskRunner polls a server task until it reaches a terminal state.
type TaskRunner struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultTaskRunner polls every 5s for at most 30m.
func DefaultTaskRunner() TaskRunner {
	return TaskRunner{Interval: DefaultPollInterval, Timeout: DefaultTaskTimeout}
}

// Run polls task immediately and then every Interval. progress, when not
// nil, is called with every status read. A poll error or the expiry of
// Timeout ends the run; nothing is retried.
func (r TaskRunner) Run(ctx context.Context, poller TaskPoller, task planapi.Task, progress func(planapi.TaskStatus)) (planapi.TaskStatus, error) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := poller.TaskStatus(ctx, task)
		if err != nil {
			if ctx.Err() != nil {
				return status, r.expired(ctx, task)
			}
			return status, err
		}
		metrics.TaskPolls.WithLabelValues(string(status.State)).Inc()
		if progress != nil {
			progress(status)
		}
		if status.State.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, r.expired(ctx, task)
		case <-ticker.C:
		}
	}
}

func (r TaskRunner) expired(ctx context.Context, task planapi.Task) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "server task did not finish in time").
			WithDetail("task_id", task.ID).
			WithDetail("timeout", r.Timeout.String())
	}
	return errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "server task polling cancelled").
		WithDetail("task_id", task.ID)
}
