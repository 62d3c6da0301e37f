package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ImportSuite provides a fake planning API, a context and a scratch
// directory to every test in an embedding suite.
type ImportSuite struct {
	suite.Suite
	API *FakePlanAPI

	ctx     context.Context
	cancel  context.CancelFunc
	tempDir string
	started time.Time
}

// SetupTest starts a fresh fake API seeded with one import and its file.
func (s *ImportSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)
	s.started = time.Now()
	s.tempDir = s.T().TempDir()

	s.API = NewFakePlanAPI(s.T())
	s.API.Imports = []FakeImport{{ID: "112000000001", Name: "Sales.csv", SourceFileID: "113000000001"}}
	s.API.Files = []FakeFile{{ID: "113000000001", Name: "Sales.csv"}}
}

// TearDownTest cancels the test context.
func (s *ImportSuite) TearDownTest() {
	s.cancel()
	s.T().Logf("test completed in %v", time.Since(s.started))
}

// Context returns the test context
func (s *ImportSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the per-test scratch directory
func (s *ImportSuite) TempDir() string {
	return s.tempDir
}

// CreateTempFile writes content to name inside TempDir and returns its path.
func (s *ImportSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.tempDir, name)
	require.NoError(s.T(), os.WriteFile(path, content, 0o600))
	return path
}

// IntegrationTest skips the calling test in short mode.
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// CSVData builds a header plus rows data lines joined with sep.
func CSVData(sep string, rows int) string {
	var b strings.Builder
	b.WriteString(strings.Join([]string{"id", "name", "value"}, sep))
	b.WriteByte('\n')
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d%sRecord_%d%s%.2f\n", i, sep, i, sep, float64(i)*1.23)
	}
	return b.String()
}
