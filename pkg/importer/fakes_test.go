package importer

import (
	"context"
	"strings"
	"sync"

	"github.com/ajitpratap0/planport/pkg/delimited"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/planapi"
)

type fakeWriter struct {
	calls       []string
	failDataRow int
	closes      int
	closeErr    error
}

func (w *fakeWriter) WriteHeaderRow(row []string) error {
	w.calls = append(w.calls, "header:"+strings.Join(row, "|"))
	return nil
}

func (w *fakeWriter) WriteDataRow(row []string) error {
	w.calls = append(w.calls, "row:"+strings.Join(row, "|"))
	if w.failDataRow > 0 && len(w.calls)-1 == w.failDataRow {
		return errors.New(errors.ErrorTypeFile, "chunk upload rejected")
	}
	return nil
}

func (w *fakeWriter) Close() error {
	w.closes++
	return w.closeErr
}

// fakeSession is an in-memory planning API.
type fakeSession struct {
	mu sync.Mutex

	imports  []planapi.Import
	files    []planapi.ServerFile
	statuses []planapi.TaskStatus
	dump     planapi.FailureDump
	writer   *fakeWriter

	resolveErr error
	fileErr    error
	openErr    error
	createErr  error
	statusErr  error
	dumpErr    error
	block      bool

	calls  []string
	polls  int
	closes int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		imports: []planapi.Import{{ID: "112000000001", Name: "Sales.csv", SourceFileID: "113000000001"}},
		files:   []planapi.ServerFile{{ID: "113000000001", Name: "Sales.csv"}},
		statuses: []planapi.TaskStatus{
			{State: planapi.TaskInProgress},
			{State: planapi.TaskComplete, Result: &planapi.TaskResult{Successful: true}},
		},
		writer: &fakeWriter{},
	}
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) called(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (s *fakeSession) ResolveImport(_ context.Context, model planapi.ModelRef, idOrName string) (planapi.Import, bool, error) {
	s.record("resolve_import")
	if s.resolveErr != nil {
		return planapi.Import{}, false, s.resolveErr
	}
	for _, imp := range s.imports {
		if imp.ID == idOrName || imp.Name == idOrName {
			imp.Model = model
			return imp, true, nil
		}
	}
	return planapi.Import{}, false, nil
}

func (s *fakeSession) ResolveFile(_ context.Context, _ planapi.ModelRef, fileID string) (planapi.ServerFile, bool, error) {
	s.record("resolve_file")
	if s.fileErr != nil {
		return planapi.ServerFile{}, false, s.fileErr
	}
	for _, f := range s.files {
		if f.ID == fileID {
			return f, true, nil
		}
	}
	return planapi.ServerFile{}, false, nil
}

func (s *fakeSession) OpenUploadWriter(_ context.Context, _ planapi.ModelRef, _ planapi.ServerFile, _ delimited.Delimiters) (planapi.CellWriter, error) {
	s.record("open_writer")
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.writer, nil
}

func (s *fakeSession) CreateTask(_ context.Context, imp planapi.Import) (planapi.Task, error) {
	s.record("create_task")
	if s.createErr != nil {
		return planapi.Task{}, s.createErr
	}
	return planapi.Task{ID: "task-1", ImportID: imp.ID, Model: imp.Model}, nil
}

func (s *fakeSession) TaskStatus(ctx context.Context, task planapi.Task) (planapi.TaskStatus, error) {
	s.mu.Lock()
	s.polls++
	n := s.polls
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return planapi.TaskStatus{}, ctx.Err()
	}
	if s.statusErr != nil {
		return planapi.TaskStatus{}, s.statusErr
	}
	if n > len(s.statuses) {
		n = len(s.statuses)
	}
	st := s.statuses[n-1]
	st.TaskID = task.ID
	return st, nil
}

func (s *fakeSession) FetchFailureDump(_ context.Context, task planapi.Task) (planapi.FailureDump, error) {
	s.record("fetch_dump")
	if s.dumpErr != nil {
		return planapi.FailureDump{}, s.dumpErr
	}
	d := s.dump
	d.TaskID = task.ID
	d.ImportID = task.ImportID
	return d, nil
}

func (s *fakeSession) LogContext() string { return "fake:alice" }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type statusLine struct {
	context, message string
}

type recordingSink struct {
	mu    sync.Mutex
	lines []statusLine
}

func (r *recordingSink) Status(logContext, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, statusLine{logContext, message})
}

func (r *recordingSink) has(message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l.message == message {
			return true
		}
	}
	return false
}

type fakeArchiver struct {
	dumps []planapi.FailureDump
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, dump planapi.FailureDump) (string, error) {
	a.dumps = append(a.dumps, dump)
	if a.err != nil {
		return "", a.err
	}
	return "mem://" + dump.ImportID + "/" + dump.TaskID + ".csv", nil
}

type fakeRecorder struct {
	outcomes []*Outcome
}

func (r *fakeRecorder) Record(_ context.Context, out *Outcome) error {
	r.outcomes = append(r.outcomes, out)
	return nil
}
