// Package metrics provides Prometheus metrics for planport imports.
//
// # Overview
//
// All metrics are registered once on the default registry through promauto and
// are safe for concurrent use by any number of in-flight imports. Label values
// are kept low-cardinality: statuses, stages and HTTP methods, never import ids.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("upload")
//	rows, err := importer.WriteTable(w, table)
//	metrics.ObserveStage("upload", timer.Stop(), err)
//	metrics.RowsUploaded.Add(float64(rows))
//
//	metrics.ImportsTotal.WithLabelValues(string(outcome.Status)).Inc()
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "planport"

var (
	// ImportsTotal counts finished imports by outcome status.
	//
	// Example:
	//	metrics.ImportsTotal.WithLabelValues("SUCCESS").Inc()
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Total number of import invocations by outcome status",
		},
		[]string{"status"},
	)

	// RejectedImports counts invocations rejected before any remote call.
	RejectedImports = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_rejected_total",
			Help:      "Total number of import invocations rejected for invalid configuration",
		},
	)

	// RowsUploaded counts data rows written to remote files (headers excluded).
	RowsUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "rows_total",
			Help:      "Total number of data rows uploaded",
		},
	)

	// UploadBytes counts bytes sent in upload chunks, labelled by encoding.
	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Total number of bytes sent in upload chunks",
		},
		[]string{"encoding"},
	)

	// UploadChunks counts chunks sent to remote files.
	UploadChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "chunks_total",
			Help:      "Total number of upload chunks sent",
		},
	)

	// StageDuration tracks the duration of each import stage in seconds.
	// Labels: stage (resolve/parse/upload/task/dump), status (success/error)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of import stages in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"stage", "status"},
	)

	// TaskPolls counts task status requests by observed task state.
	TaskPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "polls_total",
			Help:      "Total number of server task status polls",
		},
		[]string{"state"},
	)

	// HTTPRequests counts planning API requests by method and status class.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of planning API requests",
		},
		[]string{"method", "code"},
	)

	// HTTPRequestDuration tracks planning API request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Planning API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// CircuitBreakerState reports the HTTP circuit breaker state
	// (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
	)

	// DumpsArchived counts failure dump archive attempts by backend and status.
	DumpsArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dump",
			Name:      "archived_total",
			Help:      "Total number of failure dump archive attempts",
		},
		[]string{"backend", "status"},
	)

	// StatusMessagesDropped counts status lines a sink failed to deliver.
	StatusMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "dropped_total",
			Help:      "Total number of status lines a sink failed to deliver",
		},
		[]string{"sink"},
	)
)

// ObserveStage records the duration of an import stage with a success or
// error status label.
func ObserveStage(stage string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
//
// Example:
//
//	timer := metrics.NewTimer("task")
//	status, err := runner.Run(ctx, api, model, task)
//	metrics.ObserveStage("task", timer.Stop(), err)
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
