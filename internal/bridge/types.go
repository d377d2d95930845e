package bridge

import (
	"context"
	"time"

	"github.com/Iron-Ham/genbridge/internal/worker"
)

// Providers resolves provider identifiers to executors.
// *worker.Registry satisfies it.
type Providers interface {
	// Lookup returns the provider registered under name.
	Lookup(name string) (worker.Provider, bool)

	// Default returns the provider used when a request names none.
	Default() string
}

// Request is a validated generation request.
type Request struct {
	// Prompt is the prompt as the client sent it, untrimmed.
	Prompt string `json:"prompt"`
	// Provider is the resolved provider id, never empty.
	Provider string `json:"provider"`
}

// Kind classifies how a request ended.
type Kind int

const (
	KindSuccess Kind = iota
	KindValidationError
	KindProcessStartError
	KindWorkerExitError
	KindOutputParseError
	KindApplicationError
	KindWorkerTimeoutError
	KindCapacityError
	KindCanceled
)

// String returns the snake_case name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindValidationError:
		return "validation_error"
	case KindProcessStartError:
		return "process_start_error"
	case KindWorkerExitError:
		return "worker_exit_error"
	case KindOutputParseError:
		return "output_parse_error"
	case KindApplicationError:
		return "application_error"
	case KindWorkerTimeoutError:
		return "worker_timeout_error"
	case KindCapacityError:
		return "capacity_error"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcome is the single result of one request.
type Outcome struct {
	Kind Kind

	// Response is the generated text; set only for KindSuccess.
	Response string
	// Detail carries the failure diagnostic: the launch error, the worker's
	// stderr, the raw stdout, or the worker-reported message.
	Detail string
	// Err is the typed error from internal/errors; nil on success.
	Err error

	Provider string
	// Ran reports whether a worker was started for this request.
	Ran      bool
	ExitCode int
	Duration time.Duration
}

// OK reports whether the request succeeded.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id used in logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
