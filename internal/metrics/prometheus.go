package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder reports bridge metrics using Prometheus primitives.
type PrometheusRecorder struct {
	generations *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	exits       *prometheus.CounterVec
	queueWait   prometheus.Histogram
	inFlight    prometheus.Gauge
	limit       prometheus.Gauge
}

func NewPrometheusRecorder(registry *prometheus.Registry) (*PrometheusRecorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &PrometheusRecorder{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genbridge_generations_total",
			Help: "Total number of generation requests by provider and outcome",
		}, []string{"provider", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genbridge_generation_duration_seconds",
			Help:    "Generation request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genbridge_worker_exits_total",
			Help: "Total worker exits by provider and exit code",
		}, []string{"provider", "code"}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "genbridge_queue_wait_seconds",
			Help:    "Time spent waiting for a worker slot",
			Buckets: prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genbridge_workers_in_flight",
			Help: "Number of workers currently running",
		}),
		limit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genbridge_worker_slots",
			Help: "Configured worker slot limit (0 = unlimited)",
		}),
	}

	for _, collector := range []prometheus.Collector{r.generations, r.durations, r.exits, r.queueWait, r.inFlight, r.limit} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveGeneration(provider, outcome string, duration time.Duration) {
	r.generations.WithLabelValues(provider, outcome).Inc()
	r.durations.WithLabelValues(provider).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveWorkerExit(provider string, exitCode int) {
	r.exits.WithLabelValues(provider, strconv.Itoa(exitCode)).Inc()
}

func (r *PrometheusRecorder) ObserveQueueWait(duration time.Duration) {
	r.queueWait.Observe(duration.Seconds())
}

func (r *PrometheusRecorder) SetInFlight(n int) {
	r.inFlight.Set(float64(n))
}

func (r *PrometheusRecorder) SetLimit(n int) {
	r.limit.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
