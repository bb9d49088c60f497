// Package metrics counts token and workout events in memory.
package metrics

import "sync"

// Recorder increments counters for service events.
type Recorder interface {
	Increment(event string)
}

// CounterMetrics implements Recorder with in-memory counts. Counts are per process and reset on
// restart; the server exposes them at /debug/metrics and logs a final snapshot on shutdown.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}

type noopRecorder struct{}

func (noopRecorder) Increment(string) {}

// Noop returns a Recorder that drops every event.
func Noop() Recorder {
	return noopRecorder{}
}
