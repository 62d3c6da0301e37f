package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// FakeToken is the token issued by FakePlanAPI.
const FakeToken = "fake-token"

// FakeImport is an import action served by FakePlanAPI.
type FakeImport struct {
	ID           string
	Name         string
	SourceFileID string
}

// FakeFile is a server file served by FakePlanAPI.
type FakeFile struct {
	ID   string
	Name string
}

// FakePlanAPI is an in-memory planning API and token service backed by
// httptest. Configure the exported fields before use; recorded fields are
// read through the accessor methods.
type FakePlanAPI struct {
	Imports []FakeImport
	Files   []FakeFile

	// States is returned by successive task polls; the last state repeats.
	States []string
	// Successful is reported in the result of a completed task.
	Successful bool
	// FailureDump, when non-nil, is served as a two-chunk failure dump.
	FailureDump []byte
	// Details are the task log lines.
	Details []string
	// OmitResult drops the result object from terminal task statuses.
	OmitResult bool
	// FailChunkUpload makes every chunk upload return 500.
	FailChunkUpload bool
	// FailTaskCreate makes task creation return 500.
	FailTaskCreate bool
	// EmptyFileMetadata answers metadata updates with an empty file object.
	EmptyFileMetadata bool

	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	metadata  map[string]map[string]interface{}
	chunks    map[string][][]byte
	completed map[string]int
	tasks     int
	polls     int
	logins    int
	logouts   int
}

// NewFakePlanAPI starts a fake server that is closed when the test ends.
func NewFakePlanAPI(t *testing.T) *FakePlanAPI {
	f := &FakePlanAPI{
		t:          t,
		States:     []string{"COMPLETE"},
		Successful: true,
		metadata:   map[string]map[string]interface{}{},
		chunks:     map[string][][]byte{},
		completed:  map[string]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// BaseURL is the API root, equivalent to https://api.example.com/2/0.
func (f *FakePlanAPI) BaseURL() string { return f.server.URL + "/2/0" }

// AuthURL is the token service root.
func (f *FakePlanAPI) AuthURL() string { return f.server.URL }

// Metadata returns the last metadata update posted for a file.
func (f *FakePlanAPI) Metadata(fileID string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata[fileID]
}

// UploadedText returns the decompressed chunks of a file joined in order.
func (f *FakePlanAPI) UploadedText(fileID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(bytes.Join(f.chunks[fileID], nil))
}

// ChunkCount returns the number of chunks uploaded for a file.
func (f *FakePlanAPI) ChunkCount(fileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[fileID])
}

// Completed returns the chunk count sent when the upload of fileID was
// completed, and whether it was completed at all.
func (f *FakePlanAPI) Completed(fileID string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.completed[fileID]
	return n, ok
}

// TasksCreated returns how many tasks were created.
func (f *FakePlanAPI) TasksCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks
}

// Polls returns how many task status requests were served.
func (f *FakePlanAPI) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// Logins returns how many tokens were issued.
func (f *FakePlanAPI) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// Logouts returns how many tokens were revoked.
func (f *FakePlanAPI) Logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

func (f *FakePlanAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/token/authenticate":
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.logins++
		w.WriteHeader(http.StatusCreated)
		f.writeJSON(w, map[string]interface{}{
			"status": "SUCCESS",
			"tokenInfo": map[string]interface{}{
				"tokenValue": FakeToken,
				"expiresAt":  time.Now().Add(time.Hour).UnixMilli(),
			},
		})
		return
	case "/token/logout":
		f.logouts++
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Header.Get("Authorization") != "AnaplanAuthToken "+FakeToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// /2/0/workspaces/{ws}/models/{model}/...
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 7 || parts[2] != "workspaces" || parts[4] != "models" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.route(w, r, parts[6:])
}

func (f *FakePlanAPI) route(w http.ResponseWriter, r *http.Request, seg []string) {
	switch {
	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "imports":
		imports := make([]map[string]string, 0, len(f.Imports))
		for _, i := range f.Imports {
			imports = append(imports, map[string]string{
				"id": i.ID, "name": i.Name, "importDataSourceId": i.SourceFileID, "importType": "MODULE_DATA",
			})
		}
		f.writeJSON(w, map[string]interface{}{"imports": imports})

	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "files":
		files := make([]map[string]interface{}, 0, len(f.Files))
		for _, fl := range f.Files {
			files = append(files, map[string]interface{}{
				"id": fl.ID, "name": fl.Name, "chunkCount": 0, "separator": ",", "delimiter": "\"",
			})
		}
		f.writeJSON(w, map[string]interface{}{"files": files})

	case r.Method == http.MethodPost && len(seg) == 2 && seg[0] == "files":
		var meta map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.metadata[seg[1]] = meta
		f.chunks[seg[1]] = nil
		if f.EmptyFileMetadata {
			f.writeJSON(w, map[string]interface{}{"file": map[string]interface{}{}})
			return
		}
		f.writeJSON(w, map[string]interface{}{"file": meta})

	case r.Method == http.MethodPut && len(seg) == 4 && seg[0] == "files" && seg[2] == "chunks":
		if f.FailChunkUpload {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		data, err := readChunk(r)
		if err != nil {
			f.t.Errorf("fake planning API: bad chunk: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.chunks[seg[1]] = append(f.chunks[seg[1]], data)
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPost && len(seg) == 3 && seg[0] == "files" && seg[2] == "complete":
		var body struct {
			ChunkCount int `json:"chunkCount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.completed[seg[1]] = body.ChunkCount
		f.writeJSON(w, map[string]interface{}{"file": map[string]interface{}{"id": seg[1], "chunkCount": body.ChunkCount}})

	case r.Method == http.MethodPost && len(seg) == 3 && seg[0] == "imports" && seg[2] == "tasks":
		if f.FailTaskCreate {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.tasks++
		f.polls = 0
		f.writeJSON(w, map[string]interface{}{"task": map[string]string{"taskId": "task-" + strconv.Itoa(f.tasks)}})

	case r.Method == http.MethodGet && len(seg) == 4 && seg[0] == "imports" && seg[2] == "tasks":
		f.writeJSON(w, map[string]interface{}{"task": f.taskStatus(seg[3])})

	case r.Method == http.MethodGet && len(seg) == 6 && seg[4] == "dump" && seg[5] == "chunks":
		f.writeJSON(w, map[string]interface{}{"chunks": []map[string]string{
			{"id": "0", "name": "Chunk 0"}, {"id": "1", "name": "Chunk 1"},
		}})

	case r.Method == http.MethodGet && len(seg) == 7 && seg[4] == "dump" && seg[5] == "chunks":
		half := len(f.FailureDump) / 2
		w.Header().Set("Content-Type", "application/octet-stream")
		if seg[6] == "0" {
			_, _ = w.Write(f.FailureDump[:half])
		} else {
			_, _ = w.Write(f.FailureDump[half:])
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *FakePlanAPI) taskStatus(taskID string) map[string]interface{} {
	state := f.States[len(f.States)-1]
	if f.polls < len(f.States) {
		state = f.States[f.polls]
	}
	f.polls++

	status := map[string]interface{}{
		"taskId":      taskID,
		"taskState":   state,
		"currentStep": state,
	}
	if state != "COMPLETE" || f.OmitResult {
		return status
	}

	details := make([]map[string]interface{}, 0, len(f.Details))
	for _, d := range f.Details {
		details = append(details, map[string]interface{}{"localMessageText": d})
	}
	status["progress"] = 1.0
	status["result"] = map[string]interface{}{
		"successful":           f.Successful,
		"failureDumpAvailable": f.FailureDump != nil,
		"details":              details,
	}
	return status
}

func (f *FakePlanAPI) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("fake planning API: encode: %v", err)
	}
}

func readChunk(r *http.Request) ([]byte, error) {
	if r.Header.Get("Content-Type") != "application/x-gzip" {
		return io.ReadAll(r.Body)
	}
	zr, err := gzip.NewReader(r.Body)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
