// Package status delivers human-readable progress lines for an import to
// logs, terminals and Kafka topics. Delivery is fire-and-forget: sinks never
// fail the import that reports through them.
package status

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/metrics"
)

// Sink receives status lines tagged with the log context of an invocation.
type Sink interface {
	Status(logContext, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(logContext, message string)

// Status calls f.
func (f SinkFunc) Status(logContext, message string) { f(logContext, message) }

// Nop discards status lines.
var Nop Sink = SinkFunc(func(string, string) {})

// ZapSink writes status lines to a zap logger at info level.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink on logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.With(zap.String("component", "status"))}
}

// Status logs message.
func (s *ZapSink) Status(logContext, message string) {
	s.logger.Info(message, zap.String("log_context", logContext))
}

// WriterSink writes "<context> message" lines to w.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink on w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Status writes one line.
func (s *WriterSink) Status(logContext, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "%s %s\n", logContext, message); err != nil {
		metrics.StatusMessagesDropped.WithLabelValues("writer").Inc()
	}
}

// Multi fans a status line out to every sink in order.
type Multi []Sink

// Status delivers to each sink.
func (m Multi) Status(logContext, message string) {
	for _, s := range m {
		if s != nil {
			s.Status(logContext, message)
		}
	}
}
