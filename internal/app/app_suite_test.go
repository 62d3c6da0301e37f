package app

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/planport/pkg/importer"
	"github.com/ajitpratap0/planport/pkg/testutil"
)

type appSuite struct {
	testutil.ImportSuite
	app *App
}

func (s *appSuite) SetupTest() {
	s.ImportSuite.SetupTest()
	cfg := testConfig(s.API)
	cfg.Upload.ChunkSize = 256
	cfg.Upload.Compress = true

	a, err := New(s.Context(), cfg, Options{Logger: testutil.TestLogger(s.T())})
	s.Require().NoError(err)
	s.app = a
}

func (s *appSuite) TearDownTest() {
	s.NoError(s.app.Close(s.Context()))
	s.ImportSuite.TearDownTest()
}

func (s *appSuite) TestCompressedMultiChunkImport() {
	data := testutil.CSVData(",", 200)
	out, err := s.app.RunImport(s.Context(), importer.Request{
		Data:            data,
		WorkspaceID:     "ws",
		ModelID:         "model",
		ImportID:        "112000000001",
		ColumnSeparator: ",",
		QuoteDelimiter:  "\"",
	})
	s.Require().NoError(err)

	s.Equal(importer.StatusSuccess, out.Status)
	s.Equal(200, out.RowsProcessed)
	s.Greater(s.API.ChunkCount("113000000001"), 1)
	s.Contains(s.API.UploadedText("113000000001"), "199,Record_199,")
}

func (s *appSuite) TestSequentialImportsReuseApp() {
	for i := 0; i < 3; i++ {
		out, err := s.app.RunImport(s.Context(), request("Name;Value\na;1\n"))
		s.Require().NoError(err)
		s.Equal(importer.StatusSuccess, out.Status)
	}
	s.Equal(3, s.API.TasksCreated())
	s.Equal(3, s.API.Logins())
	s.Equal(3, s.API.Logouts())
}

func TestAppSuite(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(appSuite))
}
