package bridge

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Iron-Ham/genbridge/internal/errors"
	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/Iron-Ham/genbridge/internal/metrics"
	"github.com/Iron-Ham/genbridge/internal/worker"
)

// Bridge runs generation requests against registered providers.
//
// It is safe for concurrent use; every call to Generate is independent apart
// from the shared worker-slot semaphore.
type Bridge struct {
	providers    Providers
	sem          *dynamicSemaphore
	queueTimeout time.Duration

	logger  *logging.Logger
	metrics metrics.Recorder
	tracer  oteltrace.Tracer
}

// New creates a Bridge over the given providers.
//
// providers must be non-nil. Passing nil will panic early to surface wiring
// bugs immediately.
func New(providers Providers, opts ...Option) *Bridge {
	if providers == nil {
		panic("bridge: Providers must not be nil")
	}

	cfg := &options{
		maxConcurrent: defaultMaxConcurrent,
		queueTimeout:  defaultQueueTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = metrics.NoopRecorder{}
	}
	if cfg.tracer == nil {
		cfg.tracer = noop.NewTracerProvider().Tracer("genbridge")
	}

	b := &Bridge{
		providers:    providers,
		sem:          newDynamicSemaphore(cfg.maxConcurrent, cfg.maxQueue),
		queueTimeout: max(cfg.queueTimeout, 0),
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		tracer:       cfg.tracer,
	}
	b.metrics.SetLimit(b.sem.Limit())
	return b
}

// Generate validates body and, if it is valid, runs the request.
func (b *Bridge) Generate(ctx context.Context, body []byte) Outcome {
	req, err := Validate(body, b.providers)
	if err != nil {
		out := Outcome{Kind: KindValidationError, Detail: validationDetail(err), Err: err}
		b.logger.WithRequest(RequestIDFrom(ctx)).Warn("request rejected",
			"outcome", out.Kind.String(), "error", err)
		b.metrics.ObserveGeneration("", out.Kind.String(), 0)
		return out
	}
	return b.Run(ctx, req)
}

// Run executes a validated request: wait for a worker slot, run the
// provider's executor once, classify the result.
func (b *Bridge) Run(ctx context.Context, req Request) Outcome {
	start := time.Now()
	logger := b.logger.WithRequest(RequestIDFrom(ctx)).WithProvider(req.Provider)

	ctx, span := b.tracer.Start(ctx, "bridge.generate",
		oteltrace.WithAttributes(
			attribute.String("genbridge.provider", req.Provider),
			attribute.Int("genbridge.prompt_bytes", len(req.Prompt)),
		),
	)
	defer span.End()

	out := b.run(ctx, req, logger)
	out.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("genbridge.outcome", out.Kind.String()),
		attribute.Bool("genbridge.worker_ran", out.Ran),
	)
	if out.Ran {
		span.SetAttributes(attribute.Int("genbridge.exit_code", out.ExitCode))
	}
	if out.OK() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, out.Kind.String())
		if out.Err != nil {
			span.RecordError(out.Err)
		}
	}

	b.metrics.ObserveGeneration(req.Provider, out.Kind.String(), out.Duration)
	b.logOutcome(logger, out)
	return out
}

func (b *Bridge) run(ctx context.Context, req Request, logger *logging.Logger) Outcome {
	provider, ok := b.providers.Lookup(req.Provider)
	if !ok {
		err := errors.NewValidationError("provider is not registered").
			WithField("provider").
			WithValue(req.Provider).
			WithCause(errors.ErrInvalidProvider)
		return Outcome{Kind: KindValidationError, Provider: req.Provider, Detail: validationDetail(err), Err: err}
	}

	if out, acquired := b.acquire(ctx, req.Provider, logger); !acquired {
		return out
	}
	defer func() {
		b.sem.Release()
		b.metrics.SetInFlight(b.sem.Acquired())
	}()
	b.metrics.SetInFlight(b.sem.Acquired())

	inv, err := worker.NewInvocation(req.Prompt, req.Provider)
	if err != nil {
		return Translate(req.Provider, provider.Timeout, nil, err)
	}

	runCtx := ctx
	if provider.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, provider.Timeout)
		defer cancel()
	}

	logger.Debug("worker starting", "timeout", provider.Timeout.String())
	res, execErr := provider.Executor.Execute(runCtx, inv)
	if res != nil && execErr == nil {
		b.metrics.ObserveWorkerExit(req.Provider, res.ExitCode)
	}
	return Translate(req.Provider, provider.Timeout, res, execErr)
}

// acquire waits for a worker slot. When it returns false the Outcome is the
// final result of the request.
func (b *Bridge) acquire(ctx context.Context, provider string, logger *logging.Logger) (Outcome, bool) {
	waitStart := time.Now()

	waitCtx := ctx
	if b.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.queueTimeout)
		defer cancel()
	}

	err := b.sem.Acquire(waitCtx)
	waited := time.Since(waitStart)
	b.metrics.ObserveQueueWait(waited)
	if err == nil {
		if waited > time.Second {
			logger.Info("worker slot acquired after wait", "waited", waited.String())
		}
		return Outcome{}, true
	}

	out := Outcome{Provider: provider}
	switch {
	case ctx.Err() != nil:
		out.Kind = KindCanceled
		out.Detail = "request canceled while waiting for a worker slot"
		out.Err = errors.NewCapacityError("request canceled while queued", b.sem.Limit()).
			WithWaited(waited).
			WithProvider(provider).
			WithCause(errors.Join(errors.ErrCanceled, ctx.Err()))
	case errors.Is(err, errQueueFull):
		out.Kind = KindCapacityError
		out.Detail = "all worker slots are busy and the wait queue is full"
		out.Err = errors.NewCapacityError("wait queue full", b.sem.Limit()).
			WithQueueFull(true).
			WithProvider(provider)
	default:
		out.Kind = KindCapacityError
		out.Detail = "no worker slot became free within " + b.queueTimeout.String()
		out.Err = errors.NewCapacityError("timed out waiting for a worker slot", b.sem.Limit()).
			WithWaited(waited).
			WithProvider(provider).
			WithCause(err)
	}
	return out, false
}

func (b *Bridge) logOutcome(logger *logging.Logger, out Outcome) {
	args := []any{
		"outcome", out.Kind.String(),
		"duration_ms", out.Duration.Milliseconds(),
	}
	if out.Ran {
		args = append(args, "exit_code", out.ExitCode)
	}

	switch out.Kind {
	case KindSuccess:
		logger.Info("generation succeeded", append(args, "response_bytes", len(out.Response))...)
	case KindCapacityError, KindCanceled, KindValidationError:
		logger.Warn("generation rejected", append(args, "error", out.Err)...)
	case KindApplicationError:
		logger.Warn("worker reported an error", append(args,
			"error", out.Detail,
			"retryable", errors.IsRetryable(out.Err))...)
	default:
		logger.Error("generation failed", append(args,
			"error", out.Err,
			"severity", errors.GetSeverity(out.Err).String())...)
	}
}

// SetLimit resizes the worker-slot limit (0 = unlimited). Running workers are
// never interrupted.
func (b *Bridge) SetLimit(n int) {
	b.sem.SetLimit(n)
	b.metrics.SetLimit(b.sem.Limit())
	b.logger.Info("worker slot limit changed", "limit", b.sem.Limit())
}

// SetMaxQueue resizes the wait-queue bound (0 = unbounded).
func (b *Bridge) SetMaxQueue(n int) {
	b.sem.SetMaxWaiting(n)
}

// Limit returns the worker-slot limit (0 = unlimited).
func (b *Bridge) Limit() int {
	return b.sem.Limit()
}

// InFlight returns the number of workers currently running.
func (b *Bridge) InFlight() int {
	return b.sem.Acquired()
}

// Queued returns the number of requests waiting for a worker slot.
func (b *Bridge) Queued() int {
	return b.sem.Waiting()
}

func validationDetail(err error) string {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		return verr.Message()
	}
	return err.Error()
}
