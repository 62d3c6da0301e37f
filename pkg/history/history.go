// Package history records finished imports in a PostgreSQL table.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/config"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/importer"
)

// DefaultTable is used when no table is configured.
const DefaultTable = "import_runs"

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Recorder inserts one row per import outcome.
type Recorder struct {
	db     Execer
	table  string
	closer func()
	logger *zap.Logger
}

// NewRecorder creates a recorder on db writing to table. table may be
// schema-qualified.
func NewRecorder(db Execer, table string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == "" {
		table = DefaultTable
	}
	return &Recorder{
		db:     db,
		table:  pgx.Identifier(strings.Split(table, ".")).Sanitize(),
		logger: logger.With(zap.String("component", "history")),
	}
}

// Open connects to cfg.DSN, creates the table if needed and returns a
// recorder that owns the pool.
func Open(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (*Recorder, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse history DSN")
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create history connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach history database")
	}

	r := NewRecorder(pool, cfg.Table, logger)
	r.closer = pool.Close
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates the history table if it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+r.table+` (
	id             BIGSERIAL PRIMARY KEY,
	import_id      TEXT        NOT NULL,
	workspace_id   TEXT        NOT NULL,
	model_id       TEXT        NOT NULL,
	task_id        TEXT,
	status         TEXT        NOT NULL,
	message        TEXT,
	rows_processed INTEGER     NOT NULL DEFAULT 0,
	dump_uri       TEXT,
	error          TEXT,
	log_context    TEXT,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
)`)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create history table").
			WithDetail("table", r.table)
	}
	return nil
}

// Record inserts out.
func (r *Recorder) Record(ctx context.Context, out *importer.Outcome) error {
	var dumpURI string
	if out.FailureDump != nil {
		dumpURI = out.FailureDump.URI
	}

	start := time.Now()
	_, err := r.db.Exec(ctx, `INSERT INTO `+r.table+` (
	import_id, workspace_id, model_id, task_id, status, message,
	rows_processed, dump_uri, error, log_context, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		out.ImportID, out.WorkspaceID, out.ModelID, nullable(out.TaskID),
		string(out.Status), out.Message, out.RowsProcessed, nullable(dumpURI),
		nullable(out.Fault), out.LogContext, out.StartedAt, out.FinishedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to record import run").
			WithDetail("import_id", out.ImportID)
	}
	r.logger.Debug("import run recorded",
		zap.String("import_id", out.ImportID),
		zap.String("status", string(out.Status)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Close releases the pool opened by Open.
func (r *Recorder) Close() {
	if r.closer != nil {
		r.closer()
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
