// Package dumpstore archives failure dumps downloaded from the planning API
// to a local directory, Amazon S3 or Google Cloud Storage.
package dumpstore

import (
	"context"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/config"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/metrics"
	"github.com/ajitpratap0/planport/pkg/planapi"
)

// Store writes objects and returns their URI.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (uri string, err error)
	Name() string
	Close() error
}

// Archiver names failure dumps and writes them to a Store.
type Archiver struct {
	store  Store
	prefix string
	logger *zap.Logger
}

// NewArchiver creates an archiver writing under prefix.
func NewArchiver(store Store, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(zap.String("component", "dumpstore"), zap.String("backend", store.Name())),
	}
}

// Key returns the object key of dump: <prefix>/<import id>/<task id>-<UTC timestamp>.csv
func (a *Archiver) Key(dump planapi.FailureDump) string {
	ts := dump.FetchedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	name := dump.TaskID + "-" + ts.UTC().Format("20060102T150405Z") + ".csv"
	return path.Join(a.prefix, dump.ImportID, name)
}

// Archive writes dump and returns its URI.
func (a *Archiver) Archive(ctx context.Context, dump planapi.FailureDump) (string, error) {
	key := a.Key(dump)
	uri, err := a.store.Put(ctx, key, dump.Data)
	if err != nil {
		metrics.DumpsArchived.WithLabelValues(a.store.Name(), "error").Inc()
		return "", err
	}
	metrics.DumpsArchived.WithLabelValues(a.store.Name(), "success").Inc()
	a.logger.Info("failure dump archived",
		zap.String("uri", uri),
		zap.Int("bytes", len(dump.Data)))
	return uri, nil
}

// Close closes the underlying store.
func (a *Archiver) Close() error {
	return a.store.Close()
}

// New builds the archiver selected by cfg.Backend. It returns nil, nil when
// archiving is disabled.
func New(ctx context.Context, cfg config.DumpsConfig, logger *zap.Logger) (*Archiver, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "", config.DumpBackendNone:
		return nil, nil
	case config.DumpBackendLocal:
		store, err = NewLocalStore(cfg.Dir)
	case config.DumpBackendS3:
		store, err = NewS3Store(ctx, cfg.Bucket, cfg.Region)
	case config.DumpBackendGCS:
		store, err = NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsFile)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unknown dump backend").WithDetail("backend", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewArchiver(store, cfg.Prefix, logger), nil
}
