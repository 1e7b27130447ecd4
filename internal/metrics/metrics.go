// Package metrics wraps the Prometheus collectors for the supervisor.
// Each Set owns its own prometheus.Registry rather than registering
// against the global default, so the coordinator and the JobManager —
// two separate processes — never share collector state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the counters/gauges one JobManager (or coordinator) process
// exposes on its own /metrics endpoint.
type Set struct {
	Registry *prometheus.Registry

	JobsCreated          prometheus.Counter
	JobsCompleted        prometheus.Counter
	JobsFailed           prometheus.Counter
	WorkerRestarts       prometheus.Counter
	CheckpointsCommitted prometheus.Counter
	JobsRunning          prometheus.Gauge
}

// NewSet builds a fresh collector set registered against its own registry.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	s := &Set{
		Registry: reg,
		JobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardsuper",
			Name:      "jobs_created_total",
			Help:      "Total jobs created.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardsuper",
			Name:      "jobs_completed_total",
			Help:      "Total jobs that reached COMPLETED.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardsuper",
			Name:      "jobs_failed_total",
			Help:      "Total jobs that reached FAILED.",
		}),
		WorkerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardsuper",
			Name:      "worker_restarts_total",
			Help:      "Total worker restarts across all jobs.",
		}),
		CheckpointsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shardsuper",
			Name:      "checkpoints_committed_total",
			Help:      "Total checkpoints committed across all workers.",
		}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shardsuper",
			Name:      "jobs_running",
			Help:      "Current number of jobs in RUNNING state.",
		}),
	}
	reg.MustRegister(s.JobsCreated, s.JobsCompleted, s.JobsFailed, s.WorkerRestarts, s.CheckpointsCommitted, s.JobsRunning)
	return s
}

// Inc bumps the named counter by name, matching the subset jobmanager uses.
// Unknown names are a no-op so callers don't need to guard every call site.
func (s *Set) Inc(name string) {
	switch name {
	case "jobs_created_total":
		s.JobsCreated.Inc()
	case "jobs_completed_total":
		s.JobsCompleted.Inc()
	case "jobs_failed_total":
		s.JobsFailed.Inc()
	case "worker_restarts_total":
		s.WorkerRestarts.Inc()
	case "checkpoints_committed_total":
		s.CheckpointsCommitted.Inc()
	}
}

// AddRunningGauge adjusts the jobs_running gauge by delta.
func (s *Set) AddRunningGauge(delta float64) {
	s.JobsRunning.Add(delta)
}
