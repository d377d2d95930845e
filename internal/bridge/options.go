package bridge

import (
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/Iron-Ham/genbridge/internal/metrics"
)

// Default pool settings, matching config.Default.
const (
	defaultMaxConcurrent = 8
	defaultQueueTimeout  = 30 * time.Second
)

// Option configures a Bridge.
type Option func(*options)

type options struct {
	logger        *logging.Logger
	metrics       metrics.Recorder
	tracer        oteltrace.Tracer
	maxConcurrent int
	maxQueue      int
	queueTimeout  time.Duration
}

// WithLogger sets the logger for the bridge.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithTracer sets the tracer used for one span per request.
func WithTracer(t oteltrace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithMaxConcurrent sets the number of worker slots. 0 means unlimited;
// negative values are clamped to 0.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		o.maxConcurrent = n
	}
}

// WithMaxQueue bounds how many requests may wait for a slot. 0 means unbounded.
func WithMaxQueue(n int) Option {
	return func(o *options) {
		o.maxQueue = n
	}
}

// WithQueueTimeout bounds how long a request waits for a slot. 0 waits until
// the request context ends.
func WithQueueTimeout(d time.Duration) Option {
	return func(o *options) {
		o.queueTimeout = d
	}
}
