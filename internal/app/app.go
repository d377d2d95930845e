// Package app assembles a running bridge from configuration. Both the CLI
// server and the Lambda entrypoint build through here so they share one
// wiring of logging, metrics, tracing and providers.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/genbridge/internal/bridge"
	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/Iron-Ham/genbridge/internal/metrics"
	"github.com/Iron-Ham/genbridge/internal/tracing"
	"github.com/Iron-Ham/genbridge/internal/worker"
)

// App is a configured bridge plus the runtime pieces it owns.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Registry *worker.Registry
	Bridge   *bridge.Bridge

	promRegistry *prometheus.Registry
	tracing      tracing.Runtime
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger    *logging.Logger
	registry  *worker.Registry
	recorders []metrics.Recorder
}

// WithLogger uses l instead of building a logger from cfg.Logging.
func WithLogger(l *logging.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithRegistry uses r instead of building providers from cfg.Providers.
func WithRegistry(r *worker.Registry) Option {
	return func(o *buildOptions) { o.registry = r }
}

// WithRecorder adds a metrics recorder next to the Prometheus one.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *buildOptions) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

// NewLogger builds the logger described by cfg. Disabled logging yields a
// no-op logger.
func NewLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.Dir, cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

// Build wires a bridge from cfg. The caller must Close the App.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("setup logging: %w", err)
		}
	}

	a := &App{Config: cfg, Logger: logger, tracing: tracing.Noop()}

	registry := o.registry
	if registry == nil {
		var err error
		registry, err = worker.NewRegistryFromConfig(ctx, cfg)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("build providers: %w", err)
		}
	}
	a.Registry = registry

	recorders := o.recorders
	if cfg.Metrics.Enabled {
		a.promRegistry = prometheus.NewRegistry()
		prom, err := metrics.NewPrometheusRecorder(a.promRegistry)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("setup prometheus recorder: %w", err)
		}
		recorders = append(recorders, prom)
	}
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	switch len(recorders) {
	case 0:
	case 1:
		recorder = recorders[0]
	default:
		recorder = metrics.NewMultiRecorder(recorders...)
	}

	rt, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.tracing = rt

	a.Bridge = bridge.New(registry,
		bridge.WithLogger(logger),
		bridge.WithMetrics(recorder),
		bridge.WithTracer(rt.Tracer),
		bridge.WithMaxConcurrent(cfg.Pool.MaxConcurrent),
		bridge.WithMaxQueue(cfg.Pool.MaxQueue),
		bridge.WithQueueTimeout(cfg.Pool.QueueTimeout),
	)

	logger.Info("bridge ready",
		"providers", registry.Names(),
		"default_provider", registry.Default(),
		"max_concurrent", cfg.Pool.MaxConcurrent,
		"max_queue", cfg.Pool.MaxQueue,
	)
	return a, nil
}

// MetricsHandler returns the Prometheus handler, or nil when metrics are
// disabled.
func (a *App) MetricsHandler() http.Handler {
	if a.promRegistry == nil {
		return nil
	}
	return metrics.Handler(a.promRegistry)
}

// Apply pushes the pool settings of a reloaded configuration into the
// running bridge. Providers and listeners are not rebuilt.
func (a *App) Apply(cfg *config.Config) {
	a.Bridge.SetLimit(cfg.Pool.MaxConcurrent)
	a.Bridge.SetMaxQueue(cfg.Pool.MaxQueue)
}

// Close flushes tracing and closes the log file.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.tracing.Shutdown != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := a.Logger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
