package jobmanager

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Mevan-Solanga/distributed-training-system/internal/config"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
	"github.com/Mevan-Solanga/distributed-training-system/internal/metrics"
)

// writeFakeCoordinator drops an executable shell script standing in for the
// shardctl binary's "__coordinator" re-exec target, so tests never spawn a
// real coordinator/worker tree.
func writeFakeCoordinator(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-coordinator.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake coordinator: %v", err)
	}
	return path
}

func newManager(t *testing.T, exePath string) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), Options{ExePath: exePath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func waitForStatus(t *testing.T, m *Manager, jobID string, want jobtypes.Status, timeout time.Duration) jobtypes.StatusResult {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last jobtypes.StatusResult
	for time.Now().Before(deadline) {
		last = m.Status(jobID)
		if last.Status == want {
			return last
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("status never reached %s for job %s, last=%+v", want, jobID, last)
	return last
}

func TestCreateThenStatusTransitionsToCompleted(t *testing.T) {
	exe := writeFakeCoordinator(t, "exit 0")
	m := newManager(t, exe)

	job, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.PID == 0 {
		t.Fatalf("expected non-zero pid")
	}

	result := waitForStatus(t, m, job.JobID, jobtypes.StatusCompleted, 2*time.Second)
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %+v", result)
	}
}

func TestCreateThenStatusTransitionsToFailed(t *testing.T) {
	exe := writeFakeCoordinator(t, "exit 1")
	m := newManager(t, exe)

	job, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result := waitForStatus(t, m, job.JobID, jobtypes.StatusFailed, 2*time.Second)
	if result.ExitCode == nil || *result.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %+v", result)
	}
}

func TestStatusNotFoundForUnknownJob(t *testing.T) {
	m := newManager(t, writeFakeCoordinator(t, "exit 0"))
	result := m.Status("does-not-exist")
	if result.Status != jobtypes.StatusNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", result)
	}
}

func TestCreateRejectsInvalidParams(t *testing.T) {
	m := newManager(t, writeFakeCoordinator(t, "exit 0"))
	_, err := m.Create(jobtypes.Params{WorldSize: 0})
	if err != jobtypes.ErrInvalidWorldSize {
		t.Fatalf("expected ErrInvalidWorldSize, got %v", err)
	}
}

func TestDeleteRefusedWhileRunning(t *testing.T) {
	exe := writeFakeCoordinator(t, "sleep 5")
	m := newManager(t, exe)

	job, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result := m.Delete(job.JobID, false, false, false)
	if result != jobtypes.DeleteRefusedRunning {
		t.Fatalf("expected REFUSED_RUNNING, got %v", result)
	}

	// Clean up the still-running fake coordinator.
	m.Delete(job.JobID, true, true, true)
}

func TestDeleteWithForceSucceedsWhileRunning(t *testing.T) {
	exe := writeFakeCoordinator(t, "sleep 5")
	m := newManager(t, exe)

	job, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result := m.Delete(job.JobID, true, false, true)
	if result != jobtypes.DeleteDeleted {
		t.Fatalf("expected DELETED, got %v", result)
	}

	if got := m.Status(job.JobID).Status; got != jobtypes.StatusNotFound {
		t.Fatalf("expected NOT_FOUND after delete, got %v", got)
	}
}

func TestCreateInjectsResolvedRestartPolicyEnv(t *testing.T) {
	exe := writeFakeCoordinator(t, `echo "policy=$MAX_RESTARTS_PER_WORKER,$RESTART_BACKOFF_SEC,$POLL_INTERVAL_SEC"`)
	m, err := New(t.TempDir(), Options{
		ExePath: exe,
		Policy:  config.PolicyConfig{MaxRestartsPerWorker: 7, RestartBackoffSec: 1.5, PollIntervalSec: 0.3},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// No per-job override: the manager's configured policy defaults apply.
	defaultJob, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, m, defaultJob.JobID, jobtypes.StatusCompleted, 2*time.Second)
	defaultLog, err := m.TailLogs(defaultJob.JobID, 10)
	if err != nil {
		t.Fatalf("TailLogs: %v", err)
	}
	if !strings.Contains(defaultLog, "policy=7,1.5,0.3") {
		t.Fatalf("expected manager policy defaults in env, got log: %q", defaultLog)
	}

	// A per-job override takes precedence over the manager's default.
	overrideJob, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1, MaxRestartsPerWorker: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, m, overrideJob.JobID, jobtypes.StatusCompleted, 2*time.Second)
	overrideLog, err := m.TailLogs(overrideJob.JobID, 10)
	if err != nil {
		t.Fatalf("TailLogs: %v", err)
	}
	if !strings.Contains(overrideLog, "policy=2,1.5,0.3") {
		t.Fatalf("expected per-job override in env, got log: %q", overrideLog)
	}
}

func TestStatusScansLogForRestartAndCheckpointSentinels(t *testing.T) {
	exe := writeFakeCoordinator(t, `
echo "[coordinator] worker 0 exited 1, restarting (1/50)"
echo "[worker 0] checkpointing at step 10 (loss: 0.1000)"
echo "[worker 0] checkpointing at step 20 (loss: 0.0500)"
`)
	metricsSet := metrics.NewSet()
	m, err := New(t.TempDir(), Options{ExePath: exe, Metrics: metricsSet})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	job, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, m, job.JobID, jobtypes.StatusCompleted, 2*time.Second)
	// statusLocked runs the sentinel scan as a side effect of Status.
	m.Status(job.JobID)

	if got := testutil.ToFloat64(metricsSet.WorkerRestarts); got != 1 {
		t.Fatalf("WorkerRestarts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metricsSet.CheckpointsCommitted); got != 2 {
		t.Fatalf("CheckpointsCommitted = %v, want 2", got)
	}
}

func TestListIncludesCreatedJobs(t *testing.T) {
	exe := writeFakeCoordinator(t, "exit 0")
	m := newManager(t, exe)

	job, err := m.Create(jobtypes.Params{WorldSize: 1, CheckpointEvery: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, r := range all {
		if r.JobID == job.JobID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected job %s in List() result: %+v", job.JobID, all)
	}
}
