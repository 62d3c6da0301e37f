package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/delimited"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/logger"
	"github.com/ajitpratap0/planport/pkg/metrics"
	"github.com/ajitpratap0/planport/pkg/observability"
	"github.com/ajitpratap0/planport/pkg/planapi"
	"github.com/ajitpratap0/planport/pkg/status"
)

// Messages used in outcomes and status lines.
const (
	MsgInvalidImport = "Invalid import!"
	MsgFailureDump   = "Failure dump available"
	MsgNoFailureDump = "No failure dump available"
)

// recordTimeout bounds the history write made after an import.
const recordTimeout = 5 * time.Second

// Import stages, used as span names, metric labels and in OperationError.
const (
	stageConnect    = "connect"
	stageResolve    = "resolve"
	stageParse      = "parse"
	stageUpload     = "upload"
	stageCreateTask = "create_task"
	stageTask       = "task"
)

// Orchestrator runs imports. It keeps no per-call state and is safe for
// concurrent use.
type Orchestrator struct {
	conn     Connector
	sink     status.Sink
	dumps    DumpArchiver
	recorder RunRecorder
	runner   TaskRunner
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStatusSink sets where status lines go. The default discards them.
func WithStatusSink(s status.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithDumpArchiver archives downloaded failure dumps.
func WithDumpArchiver(a DumpArchiver) Option {
	return func(o *Orchestrator) { o.dumps = a }
}

// WithRecorder records every outcome.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTaskRunner sets the polling parameters.
func WithTaskRunner(r TaskRunner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator that opens one session from conn
// per import.
func NewOrchestrator(conn Connector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conn:   conn,
		sink:   status.Nop,
		runner: DefaultTaskRunner(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = status.Nop
	}
	o.logger = o.logger.With(zap.String("component", "importer"))
	return o
}

// RunImport runs one import. Invalid input is returned as a config error
// before any session is opened. Every other problem is reported through the
// returned Outcome; faults leave an *errors.OperationError in Outcome.Err.
func (o *Orchestrator) RunImport(ctx context.Context, req Request) (*Outcome, error) {
	d, err := req.Validate()
	if err != nil {
		metrics.RejectedImports.Inc()
		return nil, err
	}

	ctx = logger.ContextWithImport(ctx, req.WorkspaceID, req.ModelID, req.ImportID)
	ctx, span := observability.StartSpan(ctx, "import.run",
		attribute.String("import.id", req.ImportID),
		attribute.String("import.workspace_id", req.WorkspaceID),
		attribute.String("import.model_id", req.ModelID))
	log := o.logger.With(logger.Fields(ctx)...)

	out := &Outcome{
		ImportID:    req.ImportID,
		WorkspaceID: req.WorkspaceID,
		ModelID:     req.ModelID,
		LogContext:  "[" + req.ImportID + "]",
		StartedAt:   o.now(),
	}
	o.execute(ctx, req, d, out, log)
	out.FinishedAt = o.now()

	span.SetAttributes(
		attribute.String("import.status", string(out.Status)),
		attribute.Int("import.rows", out.RowsProcessed))
	observability.EndSpan(span, out.Err)
	metrics.ImportsTotal.WithLabelValues(string(out.Status)).Inc()

	log.Info("import finished",
		zap.String("status", string(out.Status)),
		zap.String("task_id", out.TaskID),
		zap.Int("rows", out.RowsProcessed),
		zap.Duration("duration", out.Duration()))

	if o.recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if err := o.recorder.Record(rctx, out); err != nil {
			log.Warn("failed to record import run", zap.Error(err))
		}
		cancel()
	}
	return out, nil
}

// execute opens the session, runs the import and fills out. The session is
// closed before it returns.
func (o *Orchestrator) execute(ctx context.Context, req Request, d delimited.Delimiters, out *Outcome, log *zap.Logger) {
	var sess Session
	err := o.stage(ctx, req.ImportID, stageConnect, func(ctx context.Context) error {
		var err error
		sess, err = o.conn.Open(ctx)
		return err
	})
	if err != nil {
		o.epicFail(out, err, log)
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to close session", zap.Error(err))
		}
	}()

	connCtx := sess.LogContext()
	out.LogContext = connCtx + " [" + req.ImportID + "]"

	o.sink.Status(connCtx, "<< Starting import >>")
	o.sink.Status(connCtx, "Workspace-ID: "+req.WorkspaceID)
	o.sink.Status(connCtx, "Model-ID: "+req.ModelID)
	o.sink.Status(connCtx, "Import-ID: "+req.ImportID)
	o.sink.Status(out.LogContext, "Starting import: "+req.ImportID)

	if err := o.run(ctx, sess, req, d, out, log); err != nil {
		o.epicFail(out, err, log)
	}

	o.sink.Status(out.LogContext, fmt.Sprintf("Import complete: Status: %s, Response message: %s", out.Status, out.Message))
	if !out.Failed() {
		o.sink.Status(out.LogContext, "["+req.ImportID+"] ran successfully!")
	}
}

func (o *Orchestrator) run(ctx context.Context, api ModelAPI, req Request, d delimited.Delimiters, out *Outcome, log *zap.Logger) error {
	model := req.model()

	var (
		imp   planapi.Import
		found bool
	)
	err := o.stage(ctx, req.ImportID, stageResolve, func(ctx context.Context) error {
		var err error
		imp, found, err = api.ResolveImport(ctx, model, req.ImportID)
		return err
	})
	if err != nil {
		return err
	}
	if !found {
		out.Status = StatusFailure
		out.Message = MsgInvalidImport
		o.sink.Status(out.LogContext, MsgInvalidImport)
		log.Warn("import not found")
		return nil
	}

	var (
		file      planapi.ServerFile
		fileFound bool
	)
	err = o.stage(ctx, req.ImportID, stageResolve, func(ctx context.Context) error {
		var err error
		file, fileFound, err = api.ResolveFile(ctx, model, imp.SourceFileID)
		return err
	})
	if err != nil {
		return err
	}

	if fileFound {
		rows, err := o.upload(ctx, api, req, d, file, out)
		if err != nil {
			return err
		}
		file.Separator = string(d.Separator)
		file.Delimiter = string(d.Quote)
		out.File = &file
		out.RowsProcessed = rows
	} else {
		log.Info("import has no backing file, skipping upload", zap.String("file_id", imp.SourceFileID))
	}

	var task planapi.Task
	err = o.stage(ctx, req.ImportID, stageCreateTask, func(ctx context.Context) error {
		var err error
		task, err = api.CreateTask(ctx, imp)
		return err
	})
	if err != nil {
		return err
	}
	out.TaskID = task.ID

	var st planapi.TaskStatus
	err = o.stage(ctx, req.ImportID, stageTask, func(ctx context.Context) error {
		var err error
		st, err = o.runner.Run(ctx, api, task, o.progress(out.LogContext, task))
		return err
	})
	if err != nil {
		return err
	}

	details := st.Result.Logs() +
		fmt.Sprintf("Import completed successfully: (%d records processed)", out.RowsProcessed)
	out.Details = details
	o.sink.Status(out.LogContext, details)

	switch {
	case st.Result != nil && st.Result.FailureDumpAvailable:
		o.sink.Status(out.LogContext, MsgFailureDump)
		out.Status = StatusSuccessWithFailureDump
		out.Message = fmt.Sprintf("Import [%s] completed with rejected rows, see failure dump", req.ImportID)
		out.FailureDump = o.failureDump(ctx, api, task, log)
	case st.Result != nil && st.Result.Successful:
		o.sink.Status(out.LogContext, MsgNoFailureDump)
		out.Status = StatusSuccess
		out.Message = details
	default:
		o.sink.Status(out.LogContext, MsgNoFailureDump)
		out.Status = StatusFailure
		out.Message = details
	}
	return nil
}

// upload parses the input and streams it into file.
func (o *Orchestrator) upload(ctx context.Context, api ModelAPI, req Request, d delimited.Delimiters, file planapi.ServerFile, out *Outcome) (int, error) {
	var table delimited.Table
	err := o.stage(ctx, req.ImportID, stageParse, func(context.Context) error {
		var err error
		table, err = delimited.Parse(req.Data, d)
		return err
	})
	if err != nil {
		return 0, err
	}

	var rows int
	err = o.stage(ctx, req.ImportID, stageUpload, func(ctx context.Context) error {
		w, err := api.OpenUploadWriter(ctx, req.model(), file, d)
		if err != nil {
			return err
		}
		hooked := headerHook{CellWriter: w, onHeader: func(row []string) {
			o.sink.Status(out.LogContext, "import header is:\n"+headerPreview(row, d))
		}}
		rows, err = WriteTable(hooked, table)
		return err
	})
	return rows, err
}

// failureDump downloads and optionally archives the dump of task. Problems
// are logged and never change the outcome.
func (o *Orchestrator) failureDump(ctx context.Context, api ModelAPI, task planapi.Task, log *zap.Logger) *DumpRef {
	ref := &DumpRef{TaskID: task.ID}

	ctx, span := observability.StartSpan(ctx, "import.dump", attribute.String("task.id", task.ID))
	timer := metrics.NewTimer("dump")
	dump, err := api.FetchFailureDump(ctx, task)
	metrics.ObserveStage("dump", timer.Stop(), err)
	if err != nil {
		observability.EndSpan(span, err)
		log.Warn("failed to download failure dump", zap.String("task_id", task.ID), zap.Error(err))
		return ref
	}
	ref.Chunks = dump.Chunks
	ref.Size = len(dump.Data)

	if o.dumps != nil {
		uri, err := o.dumps.Archive(ctx, dump)
		if err != nil {
			log.Warn("failed to archive failure dump", zap.String("task_id", task.ID), zap.Error(err))
		} else {
			ref.URI = uri
		}
	}
	observability.EndSpan(span, nil)
	return ref
}

// progress reports task state changes to the status sink.
func (o *Orchestrator) progress(logContext string, task planapi.Task) func(planapi.TaskStatus) {
	var last planapi.TaskState
	return func(st planapi.TaskStatus) {
		if st.State == last {
			return
		}
		last = st.State
		msg := fmt.Sprintf("Task %s: %s", task.ID, st.State)
		if st.CurrentStep != "" {
			msg += " (" + st.CurrentStep + ")"
		}
		o.sink.Status(logContext, msg)
	}
}

// stage runs fn inside a span, records its duration and wraps its error as
// an OperationError naming the stage.
func (o *Orchestrator) stage(ctx context.Context, importID, name string, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "import."+name)
	timer := metrics.NewTimer(name)
	err := fn(ctx)
	metrics.ObserveStage(name, timer.Stop(), err)
	observability.EndSpan(span, err)
	if err != nil {
		return errors.NewOperationError(importID, name, err)
	}
	return nil
}

// epicFail turns a fault into a FAILURE outcome.
func (o *Orchestrator) epicFail(out *Outcome, err error, log *zap.Logger) {
	if !errors.IsOperationError(err) {
		err = errors.NewOperationError(out.ImportID, "run", err)
	}
	out.Status = StatusFailure
	out.Message = fmt.Sprintf("Import [%s] failed unexpectedly", out.ImportID)
	out.Err = err
	out.Fault = err.Error()
	o.sink.Status(out.LogContext, out.Message+": "+err.Error())
	log.Error("import failed", zap.Error(err), zap.String("error_type", string(errors.TypeOf(err))))
}

// headerPreview renders row in the import's dialect.
func headerPreview(row []string, d delimited.Delimiters) string {
	s, err := delimited.Format([][]string{row}, d)
	if err != nil {
		return strings.Join(row, string(d.Separator))
	}
	return strings.TrimSuffix(s, delimited.Terminator)
}
