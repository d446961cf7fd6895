package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.ObserveRequest("respond")
	r.ObserveRequest("respond")
	r.ObserveRequest("stream")
	r.ObserveGenerationFailure("openai")
	r.ObserveSafetyVerdict("balanced", false)
	r.ObserveSafetyVerdict("balanced", true)
	r.ObserveStepDuration("complete", 50*time.Millisecond)

	if got := testutil.ToFloat64(r.requestsTotal.WithLabelValues("respond")); got != 2 {
		t.Errorf("respond requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.requestsTotal.WithLabelValues("stream")); got != 1 {
		t.Errorf("stream requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.generationFailures.WithLabelValues("openai")); got != 1 {
		t.Errorf("generation failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.safetyVerdicts.WithLabelValues("balanced", "unsafe")); got != 1 {
		t.Errorf("unsafe verdicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.safetyVerdicts.WithLabelValues("balanced", "safe")); got != 1 {
		t.Errorf("safe verdicts = %v, want 1", got)
	}
}
