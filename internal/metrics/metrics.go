// Package metrics defines the instrumentation hooks used by the bridge and
// their Prometheus implementation.
package metrics

import "time"

// Recorder receives bridge instrumentation events.
type Recorder interface {
	// ObserveGeneration records one finished request by provider and outcome kind.
	ObserveGeneration(provider, outcome string, duration time.Duration)
	// ObserveWorkerExit records the exit code of a worker that ran.
	ObserveWorkerExit(provider string, exitCode int)
	// ObserveQueueWait records how long a request waited for a worker slot.
	ObserveQueueWait(duration time.Duration)
	// SetInFlight reports the number of workers currently running.
	SetInFlight(n int)
	// SetLimit reports the current worker slot limit (0 = unlimited).
	SetLimit(n int)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveGeneration(string, string, time.Duration) {}
func (NoopRecorder) ObserveWorkerExit(string, int)                   {}
func (NoopRecorder) ObserveQueueWait(time.Duration)                  {}
func (NoopRecorder) SetInFlight(int)                                 {}
func (NoopRecorder) SetLimit(int)                                    {}
