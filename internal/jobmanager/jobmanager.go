// Package jobmanager is the library the request layer binds to: it spawns
// coordinators detached, persists a JobIndex, answers status queries via
// the live-handle → pid-probe → log-inference chain, and streams/stops/
// deletes/purges jobs. A mutex-guarded in-memory table of live process
// handles backs a serialized on-disk index, so status survives a daemon
// restart.
package jobmanager

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mevan-Solanga/distributed-training-system/internal/audit"
	"github.com/Mevan-Solanga/distributed-training-system/internal/config"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobindex"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
	"github.com/Mevan-Solanga/distributed-training-system/internal/logtail"
	"github.com/Mevan-Solanga/distributed-training-system/internal/metrics"
	"github.com/Mevan-Solanga/distributed-training-system/internal/procutil"
)

// liveJob is the in-memory record for a job whose coordinator this process
// spawned directly; it holds the only live *os.Process handle.
type liveJob struct {
	cmd       *exec.Cmd
	params    jobtypes.Params
	logPath   string
	createdAt int64
	exited    bool
	exitCode  int
}

// Manager implements the job lifecycle contract: create, list, status,
// tail logs, stop, delete, purge.
type Manager struct {
	mu             sync.Mutex
	logRoot        string
	live           map[string]*liveJob
	index          *jobindex.Index
	exePath        string
	audit          *audit.Log          // optional; nil disables the audit trail
	metrics        *metrics.Set        // optional; nil disables metric updates
	policy         config.PolicyConfig // restart-policy defaults for jobs that don't override them
	metricsOffsets map[string]int64    // per-job log byte offset already scanned for metric sentinels
}

// Options configures a Manager beyond the mandatory log root.
type Options struct {
	ExePath string              // re-exec target; defaults to os.Executable()
	Audit   *audit.Log          // optional non-authoritative audit sink
	Metrics *metrics.Set        // optional Prometheus collector set
	Policy  config.PolicyConfig // restart-policy defaults applied to jobs that don't override them
}

// New returns a Manager rooted at logRoot.
func New(logRoot string, opts Options) (*Manager, error) {
	idx, err := jobindex.Open(logRoot)
	if err != nil {
		return nil, err
	}
	exePath := opts.ExePath
	if exePath == "" {
		exePath, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve own executable: %w", err)
		}
	}
	return &Manager{
		logRoot:        logRoot,
		live:           make(map[string]*liveJob),
		index:          idx,
		exePath:        exePath,
		audit:          opts.Audit,
		metrics:        opts.Metrics,
		policy:         opts.Policy,
		metricsOffsets: make(map[string]int64),
	}, nil
}

func (m *Manager) logPath(jobID string) string {
	return filepath.Join(m.logRoot, jobID+".log")
}

// Create spawns a new coordinator process.
func (m *Manager) Create(p jobtypes.Params) (jobtypes.Job, error) {
	if err := p.Validate(); err != nil {
		return jobtypes.Job{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	jobID := p.JobID
	if jobID == "" {
		jobID = "job-" + uuid.NewString()[:8]
	}

	entries, err := m.index.Load()
	if err != nil {
		return jobtypes.Job{}, err
	}
	if _, exists := entries[jobID]; exists {
		return jobtypes.Job{}, jobtypes.ErrJobExists
	}

	logPath := m.logPath(jobID)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return jobtypes.Job{}, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	maxRestarts := p.MaxRestartsPerWorker
	if maxRestarts <= 0 {
		maxRestarts = m.policy.MaxRestartsPerWorker
	}
	restartBackoff := p.RestartBackoffSec
	if restartBackoff <= 0 {
		restartBackoff = m.policy.RestartBackoffSec
	}
	pollInterval := p.PollIntervalSec
	if pollInterval <= 0 {
		pollInterval = m.policy.PollIntervalSec
	}

	env := map[string]string{
		"JOB_ID":                  jobID,
		"WORLD_SIZE":              strconv.Itoa(p.WorldSize),
		"CHECKPOINT_DIR":          p.CheckpointRoot,
		"CHECKPOINT_EVERY":        strconv.Itoa(p.CheckpointEvery),
		"SLEEP_SEC":               strconv.FormatFloat(p.StepIntervalSec, 'f', -1, 64),
		"DATASET_DIR":             p.DatasetRoot,
		"MAX_RESTARTS_PER_WORKER": strconv.Itoa(maxRestarts),
		"RESTART_BACKOFF_SEC":     strconv.FormatFloat(restartBackoff, 'f', -1, 64),
		"POLL_INTERVAL_SEC":       strconv.FormatFloat(pollInterval, 'f', -1, 64),
	}

	cmd := exec.Command(m.exePath, "__coordinator")
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	procutil.ConfigureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return jobtypes.Job{}, fmt.Errorf("%w: %v", jobtypes.ErrSpawnFailed, err)
	}

	createdAt := time.Now().Unix()
	lj := &liveJob{cmd: cmd, params: p, logPath: logPath, createdAt: createdAt}
	m.live[jobID] = lj

	entries[jobID] = jobtypes.IndexEntry{
		PID:       cmd.Process.Pid,
		LogPath:   logPath,
		CreatedAt: createdAt,
		Env:       env,
	}
	if err := m.index.Save(entries); err != nil {
		return jobtypes.Job{}, err
	}

	// Reap the coordinator asynchronously so its exit is observed even if
	// no status query happens to poll it first.
	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		lj.exited = true
		lj.exitCode = exitCodeOf(err)
		m.mu.Unlock()
	}()

	m.auditAppend(jobID, "created", fmt.Sprintf("pid=%d world_size=%d", cmd.Process.Pid, p.WorldSize))
	m.metricsInc("jobs_created_total")
	m.metricsGaugeRunningDelta(1)

	return jobtypes.Job{
		JobID:           jobID,
		WorldSize:       p.WorldSize,
		CheckpointEvery: p.CheckpointEvery,
		StepIntervalSec: p.StepIntervalSec,
		DatasetRoot:     p.DatasetRoot,
		CheckpointRoot:  p.CheckpointRoot,
		CreatedAt:       createdAt,
		PID:             cmd.Process.Pid,
		LogPath:         logPath,
	}, nil
}

// Status resolves a job's current state: a live in-process handle wins,
// then a persisted terminal status, then a pid-alive reattachment probe,
// then log-tail sentinel inference, falling back to LOST.
func (m *Manager) Status(jobID string) jobtypes.StatusResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(jobID)
}

func (m *Manager) statusLocked(jobID string) jobtypes.StatusResult {
	if lj, ok := m.live[jobID]; ok {
		m.scanMetricsLocked(jobID, lj.logPath)
		if !lj.exited {
			return jobtypes.StatusResult{JobID: jobID, Status: jobtypes.StatusRunning, PID: lj.cmd.Process.Pid}
		}
		status := jobtypes.StatusCompleted
		if lj.exitCode != 0 {
			status = jobtypes.StatusFailed
		}
		m.persistTerminalLocked(jobID, status, lj.exitCode)
		return jobtypes.StatusResult{JobID: jobID, Status: status, ExitCode: &lj.exitCode}
	}

	entries, err := m.index.Load()
	if err != nil {
		return jobtypes.StatusResult{JobID: jobID, Status: jobtypes.StatusNotFound, Note: err.Error()}
	}
	entry, ok := entries[jobID]
	if !ok {
		return jobtypes.StatusResult{JobID: jobID, Status: jobtypes.StatusNotFound}
	}

	if entry.LogPath != "" {
		m.scanMetricsLocked(jobID, entry.LogPath)
	}

	if entry.Terminal() && entry.ExitCode != nil {
		return jobtypes.StatusResult{JobID: jobID, Status: entry.Status, ExitCode: entry.ExitCode}
	}

	if entry.PID != 0 && procutil.IsAlive(entry.PID) {
		return jobtypes.StatusResult{JobID: jobID, Status: jobtypes.StatusRunning, PID: entry.PID}
	}

	tail, err := logtail.TailLines(entry.LogPath, 300)
	if err == nil {
		if status, exitCode, note, ok := logtail.InferStatus(tail); ok {
			m.persistTerminalLocked(jobID, status, exitCode)
			ec := exitCode
			return jobtypes.StatusResult{JobID: jobID, Status: status, ExitCode: &ec, Note: note}
		}
	}

	// Best-effort: never persist LOST, a slow writer might still append
	// the completion sentinel.
	return jobtypes.StatusResult{JobID: jobID, Status: jobtypes.StatusLost}
}

// persistTerminalLocked writes a sticky terminal status into the index.
// Must be called with m.mu held.
func (m *Manager) persistTerminalLocked(jobID string, status jobtypes.Status, exitCode int) {
	entries, err := m.index.Load()
	if err != nil {
		return
	}
	entry, ok := entries[jobID]
	if !ok || entry.Terminal() {
		return
	}
	code := exitCode
	now := time.Now().Unix()
	entry.Status = status
	entry.ExitCode = &code
	entry.EndedAt = &now
	entries[jobID] = entry
	if err := m.index.Save(entries); err != nil {
		return
	}

	switch status {
	case jobtypes.StatusCompleted:
		m.metricsInc("jobs_completed_total")
	case jobtypes.StatusFailed:
		m.metricsInc("jobs_failed_total")
	}
	m.metricsGaugeRunningDelta(-1)
	m.auditAppend(jobID, "terminal", fmt.Sprintf("status=%s exit_code=%d", status, exitCode))
}

// List returns the status of every known job.
func (m *Manager) List() ([]jobtypes.StatusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.index.Load()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(entries))
	out := make([]jobtypes.StatusResult, 0, len(entries))
	for jobID := range entries {
		out = append(out, m.statusLocked(jobID))
		seen[jobID] = true
	}
	for jobID := range m.live {
		if !seen[jobID] {
			out = append(out, m.statusLocked(jobID))
		}
	}
	return out, nil
}

// TailLogs returns the last n lines of a job's log.
func (m *Manager) TailLogs(jobID string, n int) (string, error) {
	if n < 1 || n > 5000 {
		return "", jobtypes.ErrInvalidTail
	}
	path, err := m.resolveLogPath(jobID)
	if err != nil || path == "" {
		return "", err
	}
	return logtail.TailLines(path, n)
}

// ReadNewLogBytes returns log bytes written since offset.
func (m *Manager) ReadNewLogBytes(jobID string, offset int64) ([]byte, int64, error) {
	path, err := m.resolveLogPath(jobID)
	if err != nil || path == "" {
		return nil, offset, err
	}
	return logtail.ReadNewBytes(path, offset)
}

func (m *Manager) resolveLogPath(jobID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lj, ok := m.live[jobID]; ok {
		return lj.logPath, nil
	}
	entries, err := m.index.Load()
	if err != nil {
		return "", err
	}
	entry, ok := entries[jobID]
	if !ok {
		return "", nil
	}
	return entry.LogPath, nil
}

// Stop sends the graceful interrupt to a job's coordinator. It never
// blocks waiting for exit.
func (m *Manager) Stop(jobID string) jobtypes.StopResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lj, ok := m.live[jobID]; ok {
		if lj.exited {
			return jobtypes.StopNotRunning
		}
		if err := procutil.Interrupt(lj.cmd.Process); err != nil {
			if err := procutil.Terminate(lj.cmd.Process); err != nil {
				return jobtypes.StopFailed
			}
		}
		m.auditAppend(jobID, "stop_signal_sent", "")
		return jobtypes.StopSignalSent
	}

	entries, err := m.index.Load()
	if err != nil {
		return jobtypes.StopFailed
	}
	entry, ok := entries[jobID]
	if !ok {
		return jobtypes.StopNotRunning
	}
	if entry.Terminal() {
		return jobtypes.StopNotRunning
	}
	if entry.PID == 0 || !procutil.IsAlive(entry.PID) {
		return jobtypes.StopCannotStop
	}
	proc, err := os.FindProcess(entry.PID)
	if err != nil {
		return jobtypes.StopCannotStop
	}
	if err := procutil.Interrupt(proc); err != nil {
		if err := procutil.Terminate(proc); err != nil {
			return jobtypes.StopFailed
		}
	}
	m.auditAppend(jobID, "stop_signal_sent", "reattached via pid")
	return jobtypes.StopSignalSent
}

// Delete removes a job's index entry and, optionally, its log file.
func (m *Manager) Delete(jobID string, deleteLogs, stopFirst, force bool) jobtypes.DeleteResult {
	m.mu.Lock()
	running := m.statusLocked(jobID).Status == jobtypes.StatusRunning
	_, knownInIndex := func() (jobtypes.IndexEntry, bool) {
		entries, err := m.index.Load()
		if err != nil {
			return jobtypes.IndexEntry{}, false
		}
		e, ok := entries[jobID]
		return e, ok
	}()
	_, knownLive := m.live[jobID]
	m.mu.Unlock()

	if !knownInIndex && !knownLive {
		return jobtypes.DeleteNotFound
	}

	if running && !stopFirst && !force {
		return jobtypes.DeleteRefusedRunning
	}

	if running && stopFirst {
		m.Stop(jobID)
		time.Sleep(500 * time.Millisecond)
	}
	if running && force {
		m.forceKill(jobID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.index.Load()
	if err == nil {
		if entry, ok := entries[jobID]; ok {
			if deleteLogs && entry.LogPath != "" {
				_ = os.Remove(entry.LogPath)
			}
			delete(entries, jobID)
			_ = m.index.Save(entries)
		}
	}
	delete(m.live, jobID)
	m.auditAppend(jobID, "deleted", fmt.Sprintf("delete_logs=%v", deleteLogs))
	return jobtypes.DeleteDeleted
}

func (m *Manager) forceKill(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lj, ok := m.live[jobID]; ok && !lj.exited {
		_ = procutil.Kill(lj.cmd.Process)
		return
	}
	entries, err := m.index.Load()
	if err != nil {
		return
	}
	entry, ok := entries[jobID]
	if !ok || entry.PID == 0 {
		return
	}
	if proc, err := os.FindProcess(entry.PID); err == nil {
		_ = procutil.Kill(proc)
	}
}

// PurgeOptions configures Purge.
type PurgeOptions struct {
	OlderThanSeconds int64
	Statuses         map[jobtypes.Status]bool
	DeleteLogs       bool
	StopRunning      bool
	Force            bool
}

// PurgeResult reports how many jobs matched and were deleted.
type PurgeResult struct {
	DeletedCount int
	MatchedCount int
}

// Purge deletes every job matching the age/status filter.
func (m *Manager) Purge(opts PurgeOptions) (PurgeResult, error) {
	m.mu.Lock()
	entries, err := m.index.Load()
	m.mu.Unlock()
	if err != nil {
		return PurgeResult{}, err
	}

	now := time.Now().Unix()
	var result PurgeResult
	for jobID, entry := range entries {
		if opts.OlderThanSeconds > 0 && now-entry.CreatedAt < opts.OlderThanSeconds {
			continue
		}
		st := m.Status(jobID)
		if len(opts.Statuses) > 0 && !opts.Statuses[st.Status] {
			continue
		}
		result.MatchedCount++
		if st.Status == jobtypes.StatusRunning && !opts.StopRunning && !opts.Force {
			continue
		}
		outcome := m.Delete(jobID, opts.DeleteLogs, opts.StopRunning, opts.Force)
		if outcome == jobtypes.DeleteDeleted {
			result.DeletedCount++
		}
	}
	return result, nil
}

func (m *Manager) auditAppend(jobID, event, detail string) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Append(jobID, event, detail)
}

// scanMetricsLocked scans the log bytes appended since the last scan of
// jobID for the coordinator's/worker's restart and checkpoint-commit log
// lines, incrementing the corresponding counters. The coordinator runs in
// its own process with its own Prometheus registry, so this is how its
// restart/checkpoint activity reaches the JobManager's counters: by
// reading the same log bytes every log consumer already reads, not by
// sharing a registry across the process boundary. Must be called with
// m.mu held.
func (m *Manager) scanMetricsLocked(jobID, logPath string) {
	if m.metrics == nil || logPath == "" {
		return
	}
	data, newOffset, err := logtail.ReadNewBytes(logPath, m.metricsOffsets[jobID])
	if err != nil {
		return
	}
	m.metricsOffsets[jobID] = newOffset
	if len(data) == 0 {
		return
	}
	restarts, checkpoints := logtail.CountSentinels(data)
	for i := 0; i < restarts; i++ {
		m.metricsInc("worker_restarts_total")
	}
	for i := 0; i < checkpoints; i++ {
		m.metricsInc("checkpoints_committed_total")
	}
}

func (m *Manager) metricsInc(name string) {
	if m.metrics == nil {
		return
	}
	m.metrics.Inc(name)
}

func (m *Manager) metricsGaugeRunningDelta(delta float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.AddRunningGauge(delta)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return 1
}
