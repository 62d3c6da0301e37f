package importer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/planapi"
	"github.com/ajitpratap0/planport/pkg/testutil"
)

const salesCSV = "A,B\n1,2\n3,4\n"

func validRequest() Request {
	return Request{
		Data:            salesCSV,
		WorkspaceID:     "8a81b09c",
		ModelID:         "75A40874",
		ImportID:        "112000000001",
		ColumnSeparator: ",",
		QuoteDelimiter:  "\"",
	}
}

type harness struct {
	sess     *fakeSession
	sink     *recordingSink
	archiver *fakeArchiver
	recorder *fakeRecorder
	opened   int
	orch     *Orchestrator
}

func newHarness(t *testing.T, sess *fakeSession, opts ...Option) *harness {
	h := &harness{
		sess:     sess,
		sink:     &recordingSink{},
		archiver: &fakeArchiver{},
		recorder: &fakeRecorder{},
	}
	conn := ConnectorFunc(func(context.Context) (Session, error) {
		h.opened++
		return sess, nil
	})
	all := append([]Option{
		WithStatusSink(h.sink),
		WithDumpArchiver(h.archiver),
		WithRecorder(h.recorder),
		WithTaskRunner(TaskRunner{Interval: time.Millisecond, Timeout: 5 * time.Second}),
		WithLogger(testutil.TestLogger(t)),
	}, opts...)
	h.orch = NewOrchestrator(conn, all...)
	return h
}

func requireStage(t *testing.T, err error, stage string) {
	t.Helper()
	var op *errors.OperationError
	require.ErrorAs(t, err, &op)
	assert.Equal(t, stage, op.Stage)
	assert.Equal(t, "112000000001", op.ImportID)
}

func TestRunImportSuccess(t *testing.T) {
	sess := newFakeSession()
	sess.statuses[1].Result.Details = []planapi.TaskDetail{{LocalMessageText: "2 rows successful"}}
	h := newHarness(t, sess)

	out, err := h.orch.RunImport(testutil.TestContext(t), validRequest())
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, 2, out.RowsProcessed)
	assert.Equal(t, "task-1", out.TaskID)
	assert.Equal(t, "fake:alice [112000000001]", out.LogContext)
	assert.Equal(t, "2 rows successful\nImport completed successfully: (2 records processed)", out.Message)
	assert.Equal(t, out.Message, out.Details)
	assert.Nil(t, out.Err)
	assert.Nil(t, out.FailureDump)
	require.NotNil(t, out.File)
	assert.Equal(t, "113000000001", out.File.ID)
	assert.Equal(t, ",", out.File.Separator)
	assert.Equal(t, "\"", out.File.Delimiter)
	assert.False(t, out.FinishedAt.Before(out.StartedAt))

	assert.Equal(t, []string{"header:A|B", "row:1|2", "row:3|4"}, sess.writer.calls)
	assert.Equal(t, 1, sess.writer.closes)
	assert.Equal(t, 1, sess.closes)
	assert.Equal(t, 1, h.opened)

	assert.True(t, h.sink.has("<< Starting import >>"))
	assert.True(t, h.sink.has("Import-ID: 112000000001"))
	assert.True(t, h.sink.has("import header is:\nA,B"))
	assert.True(t, h.sink.has("[112000000001] ran successfully!"))
	assert.True(t, h.sink.has(MsgNoFailureDump))

	assert.Equal(t, "[112000000001] ran successfully!\n\n"+out.Details, out.Summary())
	require.Len(t, h.recorder.outcomes, 1)
	assert.Same(t, out, h.recorder.outcomes[0])
}

func TestRunImportLogsCarryImportFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := newHarness(t, newFakeSession(), WithLogger(zap.New(core)))

	req := validRequest()
	req.ImportID = "999"
	out, err := h.orch.RunImport(testutil.TestContext(t), req)
	require.NoError(t, err)
	require.Equal(t, StatusFailure, out.Status)

	entries := logs.FilterMessage("import not found").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "importer", fields["component"])
	assert.Equal(t, "999", fields["import_id"])
	assert.Equal(t, "8a81b09c", fields["workspace_id"])
	assert.Equal(t, "75A40874", fields["model_id"])
}

func TestRunImportResolvesByName(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sess)

	req := validRequest()
	req.ImportID = "Sales.csv"
	out, err := h.orch.RunImport(testutil.TestContext(t), req)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
}

func TestRunImportUnknownImport(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sess)

	req := validRequest()
	req.ImportID = "999"
	out, err := h.orch.RunImport(testutil.TestContext(t), req)
	require.NoError(t, err)

	assert.Equal(t, StatusFailure, out.Status)
	assert.Equal(t, MsgInvalidImport, out.Message)
	assert.Equal(t, "999", out.ImportID)
	assert.Nil(t, out.Err)
	assert.Equal(t, []string{"resolve_import"}, sess.calls)
	assert.Zero(t, sess.polls)
	assert.Equal(t, 1, sess.closes)
	assert.True(t, out.Failed())
	assert.True(t, strings.HasPrefix(out.Summary(), "[999] failed: Invalid import!"))
}

func TestRunImportAbsentFile(t *testing.T) {
	sess := newFakeSession()
	sess.files = nil
	h := newHarness(t, sess)

	req := validRequest()
	req.Data = "\"never parsed"
	out, err := h.orch.RunImport(testutil.TestContext(t), req)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Zero(t, out.RowsProcessed)
	assert.Nil(t, out.File)
	assert.False(t, sess.called("open_writer"))
	assert.True(t, sess.called("create_task"))
	assert.Contains(t, out.Message, "(0 records processed)")
	assert.Equal(t, 1, sess.closes)
}

func TestRunImportFailureDump(t *testing.T) {
	for _, successful := range []bool{true, false} {
		successful := successful
		t.Run(map[bool]string{true: "successful", false: "unsuccessful"}[successful], func(t *testing.T) {
			sess := newFakeSession()
			sess.statuses[1].Result = &planapi.TaskResult{Successful: successful, FailureDumpAvailable: true}
			sess.dump = planapi.FailureDump{Chunks: 2, Data: []byte("_Line_,Error\n3,bad\n")}
			h := newHarness(t, sess)

			out, err := h.orch.RunImport(testutil.TestContext(t), validRequest())
			require.NoError(t, err)

			assert.Equal(t, StatusSuccessWithFailureDump, out.Status)
			assert.Contains(t, out.Message, "112000000001")
			require.NotNil(t, out.FailureDump)
			assert.Equal(t, "task-1", out.FailureDump.TaskID)
			assert.Equal(t, 2, out.FailureDump.Chunks)
			assert.Equal(t, len(sess.dump.Data), out.FailureDump.Size)
			assert.Equal(t, "mem://112000000001/task-1.csv", out.FailureDump.URI)
			require.Len(t, h.archiver.dumps, 1)
			assert.True(t, h.sink.has(MsgFailureDump))
			assert.False(t, out.Failed())
			assert.Equal(t, 1, sess.closes)
		})
	}
}

func TestRunImportFailureDumpDownloadFails(t *testing.T) {
	sess := newFakeSession()
	sess.statuses[1].Result = &planapi.TaskResult{FailureDumpAvailable: true}
	sess.dumpErr = errors.New(errors.ErrorTypeConnection, "connection reset")
	h := newHarness(t, sess)

	out, err := h.orch.RunImport(testutil.TestContext(t), validRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccessWithFailureDump, out.Status)
	require.NotNil(t, out.FailureDump)
	assert.Empty(t, out.FailureDump.URI)
	assert.Empty(t, h.archiver.dumps)
	assert.Nil(t, out.Err)
}

func TestRunImportFailureDumpArchiveFails(t *testing.T) {
	sess := newFakeSession()
	sess.statuses[1].Result = &planapi.TaskResult{FailureDumpAvailable: true}
	sess.dump = planapi.FailureDump{Chunks: 1, Data: []byte("x")}
	h := newHarness(t, sess)
	h.archiver.err = errors.New(errors.ErrorTypeConnection, "bucket unavailable")

	out, err := h.orch.RunImport(testutil.TestContext(t), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessWithFailureDump, out.Status)
	assert.Equal(t, 1, out.FailureDump.Size)
	assert.Empty(t, out.FailureDump.URI)
}

func TestRunImportUnsuccessfulTask(t *testing.T) {
	sess := newFakeSession()
	sess.statuses[1].Result = &planapi.TaskResult{
		Details: []planapi.TaskDetail{{LocalMessageText: "Import aborted"}},
	}
	h := newHarness(t, sess)

	out, err := h.orch.RunImport(testutil.TestContext(t), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	assert.Equal(t, "Import aborted\nImport completed successfully: (2 records processed)", out.Message)
	assert.Nil(t, out.Err)
	assert.Equal(t, 1, sess.closes)
}

func TestRunImportCancelledTask(t *testing.T) {
	sess := newFakeSession()
	sess.statuses = []planapi.TaskStatus{{State: planapi.TaskCancelled}}
	h := newHarness(t, sess)

	out, err := h.orch.RunImport(testutil.TestContext(t), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	assert.Nil(t, out.Err)
}

func TestRunImportFaults(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *fakeSession)
		data     string
		stage    string
		errType  errors.ErrorType
		noTask   bool
		wrCloses int
	}{
		{
			name:     "malformed input",
			data:     "A,B\n\"1\"x,2\n",
			stage:    stageParse,
			errType:  errors.ErrorTypeData,
			noTask:   true,
			wrCloses: 0,
		},
		{
			name:     "input not utf-8",
			data:     "Name,City\nb,M\xfcnchen\n",
			stage:    stageParse,
			errType:  errors.ErrorTypeData,
			noTask:   true,
			wrCloses: 0,
		},
		{
			name:     "empty input",
			data:     "",
			stage:    stageUpload,
			errType:  errors.ErrorTypeData,
			noTask:   true,
			wrCloses: 1,
		},
		{
			name:     "chunk upload fails",
			data:     salesCSV,
			setup:    func(s *fakeSession) { s.writer.failDataRow = 2 },
			stage:    stageUpload,
			errType:  errors.ErrorTypeFile,
			noTask:   true,
			wrCloses: 1,
		},
		{
			name:    "import lookup fails",
			data:    salesCSV,
			setup:   func(s *fakeSession) { s.resolveErr = errors.New(errors.ErrorTypeAuthentication, "token expired") },
			stage:   stageResolve,
			errType: errors.ErrorTypeAuthentication,
			noTask:  true,
		},
		{
			name:    "file lookup fails",
			data:    salesCSV,
			setup:   func(s *fakeSession) { s.fileErr = errors.New(errors.ErrorTypeRemote, "malformed file list") },
			stage:   stageResolve,
			errType: errors.ErrorTypeRemote,
			noTask:  true,
		},
		{
			name:     "task creation fails",
			data:     salesCSV,
			setup:    func(s *fakeSession) { s.createErr = errors.New(errors.ErrorTypeRemote, "task rejected") },
			stage:    stageCreateTask,
			errType:  errors.ErrorTypeRemote,
			wrCloses: 1,
		},
		{
			name:     "status poll fails",
			data:     salesCSV,
			setup:    func(s *fakeSession) { s.statusErr = errors.New(errors.ErrorTypeConnection, "connection refused") },
			stage:    stageTask,
			errType:  errors.ErrorTypeConnection,
			wrCloses: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			if tt.setup != nil {
				tt.setup(sess)
			}
			h := newHarness(t, sess)

			req := validRequest()
			req.Data = tt.data
			out, err := h.orch.RunImport(testutil.TestContext(t), req)
			require.NoError(t, err)
			require.NotNil(t, out)

			assert.Equal(t, StatusFailure, out.Status)
			assert.Contains(t, out.Message, "failed unexpectedly")
			requireStage(t, out.Err, tt.stage)
			assert.True(t, errors.HasType(out.Err, tt.errType), "error %v", out.Err)
			assert.NotEmpty(t, out.Fault)
			assert.Equal(t, 1, sess.closes)
			assert.Equal(t, tt.wrCloses, sess.writer.closes)
			if tt.noTask {
				assert.False(t, sess.called("create_task"))
			}
			require.Len(t, h.recorder.outcomes, 1)
		})
	}
}

func TestRunImportTaskTimeout(t *testing.T) {
	sess := newFakeSession()
	sess.statuses = []planapi.TaskStatus{{State: planapi.TaskInProgress}}
	h := newHarness(t, sess, WithTaskRunner(TaskRunner{Interval: 2 * time.Millisecond, Timeout: 20 * time.Millisecond}))

	out, err := h.orch.RunImport(testutil.TestContext(t), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	requireStage(t, out.Err, stageTask)
	assert.True(t, errors.HasType(out.Err, errors.ErrorTypeTimeout))
	assert.Equal(t, 1, sess.closes)
}

func TestRunImportContextCancelled(t *testing.T) {
	sess := newFakeSession()
	sess.block = true
	h := newHarness(t, sess)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	out, err := h.orch.RunImport(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, sess.closes)
	require.Len(t, h.recorder.outcomes, 1)
}

func TestRunImportConnectFails(t *testing.T) {
	conn := ConnectorFunc(func(context.Context) (Session, error) {
		return nil, errors.New(errors.ErrorTypeAuthentication, "invalid credentials")
	})
	orch := NewOrchestrator(conn, WithLogger(testutil.TestLogger(t)))

	out, err := orch.RunImport(testutil.TestContext(t), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	assert.Equal(t, "[112000000001]", out.LogContext)
	requireStage(t, out.Err, stageConnect)
	assert.True(t, errors.HasType(out.Err, errors.ErrorTypeAuthentication))
}

func TestRunImportRejectsInvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *Request)
	}{
		{"missing workspace", func(r *Request) { r.WorkspaceID = "" }},
		{"missing model", func(r *Request) { r.ModelID = " " }},
		{"missing import", func(r *Request) { r.ImportID = "" }},
		{"multi-character separator", func(r *Request) { r.ColumnSeparator = ";;" }},
		{"empty quote", func(r *Request) { r.QuoteDelimiter = "" }},
		{"same separator and quote", func(r *Request) { r.QuoteDelimiter = "," }},
		{"newline separator", func(r *Request) { r.ColumnSeparator = "\n" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			h := newHarness(t, sess)

			req := validRequest()
			tt.modify(&req)
			out, err := h.orch.RunImport(testutil.TestContext(t), req)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Zero(t, h.opened)
			assert.Empty(t, sess.calls)
			assert.Empty(t, h.recorder.outcomes)
		})
	}
}

func TestRunImportConcurrent(t *testing.T) {
	var (
		mu       sync.Mutex
		sessions []*fakeSession
	)
	conn := ConnectorFunc(func(context.Context) (Session, error) {
		s := newFakeSession()
		mu.Lock()
		sessions = append(sessions, s)
		mu.Unlock()
		return s, nil
	})
	orch := NewOrchestrator(conn, WithTaskRunner(TaskRunner{Interval: time.Millisecond, Timeout: 5 * time.Second}))

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := orch.RunImport(context.Background(), validRequest())
			if err == nil {
				outcomes[i] = out
			}
		}(i)
	}
	wg.Wait()

	for _, out := range outcomes {
		require.NotNil(t, out)
		assert.Equal(t, StatusSuccess, out.Status)
		assert.Equal(t, 2, out.RowsProcessed)
	}
	require.Len(t, sessions, 8)
	for _, s := range sessions {
		assert.Equal(t, 1, s.closes)
	}
}
