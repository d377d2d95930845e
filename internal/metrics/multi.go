package metrics

import "time"

// MultiRecorder fans out metrics to multiple recorders.
type MultiRecorder struct {
	recorders []Recorder
}

func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	nonNil := make([]Recorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			nonNil = append(nonNil, r)
		}
	}
	return &MultiRecorder{recorders: nonNil}
}

func (m *MultiRecorder) ObserveGeneration(provider, outcome string, duration time.Duration) {
	for _, r := range m.recorders {
		r.ObserveGeneration(provider, outcome, duration)
	}
}

func (m *MultiRecorder) ObserveWorkerExit(provider string, exitCode int) {
	for _, r := range m.recorders {
		r.ObserveWorkerExit(provider, exitCode)
	}
}

func (m *MultiRecorder) ObserveQueueWait(duration time.Duration) {
	for _, r := range m.recorders {
		r.ObserveQueueWait(duration)
	}
}

func (m *MultiRecorder) SetInFlight(n int) {
	for _, r := range m.recorders {
		r.SetInFlight(n)
	}
}

func (m *MultiRecorder) SetLimit(n int) {
	for _, r := range m.recorders {
		r.SetLimit(n)
	}
}
