// Package app builds a ready-to-use importer from configuration.
package app

import (
	"context"
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/clients"
	"github.com/ajitpratap0/planport/pkg/config"
	"github.com/ajitpratap0/planport/pkg/dumpstore"
	"github.com/ajitpratap0/planport/pkg/history"
	"github.com/ajitpratap0/planport/pkg/importer"
	"github.com/ajitpratap0/planport/pkg/logger"
	"github.com/ajitpratap0/planport/pkg/observability"
	"github.com/ajitpratap0/planport/pkg/planapi"
	"github.com/ajitpratap0/planport/pkg/status"
)

// Options are process-level settings that do not belong in the config file.
type Options struct {
	Version string
	// StatusWriter additionally receives status lines as plain text
	StatusWriter io.Writer
	// TraceWriter receives exported spans when tracing is enabled
	TraceWriter io.Writer
	// Logger replaces the logger built from the configuration
	Logger *zap.Logger
}

// App holds the components wired from a Config.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	HTTP         *clients.HTTPClient
	Orchestrator *importer.Orchestrator

	closers []func(context.Context) error
}

// New validates cfg and builds every component it enables. Close must be
// called to release them.
func New(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		if err := logger.Init(logger.Config{
			Level:    cfg.Observability.LogLevel,
			Encoding: cfg.Observability.LogEncoding,
		}); err != nil {
			return nil, err
		}
		log = logger.Get()
	}

	a = &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.Init(observability.TracingConfig{
			ServiceName:    cfg.Observability.ServiceName,
			ServiceVersion: opts.Version,
			SamplingRate:   cfg.Observability.TracingSampleRate,
			Writer:         opts.TraceWriter,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
	}

	a.HTTP = clients.NewHTTPClient(clients.HTTPConfigFrom(cfg), log)
	a.closers = append(a.closers, func(context.Context) error { return a.HTTP.Close() })

	newAuth := func() (clients.Authenticator, error) {
		return clients.NewAuthenticator(cfg, a.HTTP, log)
	}
	upload := planapi.UploadOptions{
		ChunkSize:        cfg.Upload.ChunkSize,
		Compress:         cfg.Upload.Compress,
		CompressionLevel: cfg.Upload.CompressionLevel,
	}
	connector := planapi.NewConnector(cfg.Connection.Name, cfg.Connection.BaseURL, a.HTTP, newAuth, upload, log)

	sinks := status.Multi{status.NewZapSink(log)}
	if opts.StatusWriter != nil {
		sinks = append(sinks, status.NewWriterSink(opts.StatusWriter))
	}
	if cfg.Status.Kafka.Enabled {
		kafka, err := status.NewKafkaSink(cfg.Status.Kafka, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafka)
		a.closers = append(a.closers, func(context.Context) error { return kafka.Close() })
	}

	orchOpts := []importer.Option{
		importer.WithLogger(log),
		importer.WithStatusSink(sinks),
		importer.WithTaskRunner(importer.TaskRunner{
			Interval: cfg.Polling.Interval,
			Timeout:  cfg.Polling.Timeout,
		}),
	}

	archiver, err := dumpstore.New(ctx, cfg.Dumps, log)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		orchOpts = append(orchOpts, importer.WithDumpArchiver(archiver))
		a.closers = append(a.closers, func(context.Context) error { return archiver.Close() })
	}

	if cfg.History.Enabled {
		recorder, err := history.Open(ctx, cfg.History, log)
		if err != nil {
			return nil, err
		}
		orchOpts = append(orchOpts, importer.WithRecorder(recorder))
		a.closers = append(a.closers, func(context.Context) error {
			recorder.Close()
			return nil
		})
	}

	a.Orchestrator = importer.NewOrchestrator(importer.ConnectorFunc(func(ctx context.Context) (importer.Session, error) {
		sess, err := connector.Open(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}), orchOpts...)

	log.Info("planport initialized",
		zap.String("connection", cfg.Connection.Name),
		zap.String("base_url", cfg.Connection.BaseURL),
		zap.String("auth_method", cfg.Auth.Method),
		zap.String("dump_backend", cfg.Dumps.Backend),
		zap.Bool("kafka_status", cfg.Status.Kafka.Enabled),
		zap.Bool("history", cfg.History.Enabled))
	return a, nil
}

// RunImport runs one import.
func (a *App) RunImport(ctx context.Context, req importer.Request) (*importer.Outcome, error) {
	return a.Orchestrator.RunImport(ctx, req)
}

// Close releases components in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return stderrors.Join(errs...)
}
