package metrics

import (
	"sync"
	"testing"
)

func TestCounterMetricsConcurrentIncrements(t *testing.T) {
	recorder := NewCounterMetrics()
	var waitGroup sync.WaitGroup
	for index := 0; index < 50; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			recorder.Increment("token.cache.hit")
		}()
	}
	waitGroup.Wait()

	if recorder.Count("token.cache.hit") != 50 {
		t.Fatalf("expected 50 increments, got %d", recorder.Count("token.cache.hit"))
	}
	snapshot := recorder.Snapshot()
	snapshot["token.cache.hit"] = 0
	if recorder.Count("token.cache.hit") != 50 {
		t.Fatalf("snapshot must not alias internal counters")
	}
	if recorder.Count("never.recorded") != 0 {
		t.Fatalf("expected zero for unknown event")
	}
}
