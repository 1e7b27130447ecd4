package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncByNameDispatchesToRightCollector(t *testing.T) {
	s := NewSet()
	s.Inc("jobs_created_total")
	s.Inc("jobs_created_total")
	s.Inc("jobs_failed_total")

	if got := testutil.ToFloat64(s.JobsCreated); got != 2 {
		t.Fatalf("JobsCreated = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.JobsFailed); got != 1 {
		t.Fatalf("JobsFailed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.JobsCompleted); got != 0 {
		t.Fatalf("JobsCompleted = %v, want 0", got)
	}
}

func TestIncUnknownNameIsNoop(t *testing.T) {
	s := NewSet()
	s.Inc("not_a_real_metric")
}

func TestAddRunningGauge(t *testing.T) {
	s := NewSet()
	s.AddRunningGauge(3)
	s.AddRunningGauge(-1)

	if got := testutil.ToFloat64(s.JobsRunning); got != 2 {
		t.Fatalf("JobsRunning = %v, want 2", got)
	}
}

func TestEachSetOwnsAnIndependentRegistry(t *testing.T) {
	a := NewSet()
	b := NewSet()
	a.Inc("jobs_created_total")

	if got := testutil.ToFloat64(b.JobsCreated); got != 0 {
		t.Fatalf("second Set's JobsCreated = %v, want 0 (registries must not share state)", got)
	}
	if a.Registry == b.Registry {
		t.Fatal("expected distinct registries per Set")
	}
}
