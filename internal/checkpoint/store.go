// Package checkpoint implements an atomic-publish, crash-safe checkpoint
// format: write into a temp directory, fsync, then os.Rename into place.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

// Store manages the checkpoint directory tree for a single (job, rank).
//
//	<root>/<job_id>/worker_<rank>/LATEST
//	<root>/<job_id>/worker_<rank>/step_<N>/state.json
//	<root>/<job_id>/worker_<rank>/step_<N>/manifest.json
type Store struct {
	dir string // <root>/<job_id>/worker_<rank>
}

// New returns a Store rooted at <checkpointRoot>/<jobID>/worker_<rank>.
func New(checkpointRoot, jobID string, rank int) *Store {
	return &Store{dir: filepath.Join(checkpointRoot, jobID, fmt.Sprintf("worker_%d", rank))}
}

func (s *Store) latestFile() string { return filepath.Join(s.dir, "LATEST") }

func (s *Store) stepDir(step uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("step_%d", step))
}

// Load returns the latest valid checkpoint, or the zero-value initial state
// if none has ever been committed.
func (s *Store) Load(rank, worldSize int) (jobtypes.WorkerState, error) {
	initial := jobtypes.WorkerState{Rank: rank, WorldSize: worldSize}

	data, err := os.ReadFile(s.latestFile())
	if os.IsNotExist(err) {
		return initial, nil
	}
	if err != nil {
		return jobtypes.WorkerState{}, fmt.Errorf("read LATEST: %w", err)
	}

	base := strings.TrimSpace(string(data))
	statePath := filepath.Join(s.dir, base, "state.json")

	raw, err := os.ReadFile(statePath)
	if os.IsNotExist(err) {
		// LATEST points at a missing directory. This is a hard error the
		// caller (the worker) must surface as a non-zero exit — it must
		// never persist or the coordinator will spin forever
		// restarting into the same failure.
		return jobtypes.WorkerState{}, fmt.Errorf("%w: %s", jobtypes.ErrCheckpointMissing, statePath)
	}
	if err != nil {
		return jobtypes.WorkerState{}, fmt.Errorf("read state.json: %w", err)
	}

	var state jobtypes.WorkerState
	if err := json.Unmarshal(raw, &state); err != nil {
		return jobtypes.WorkerState{}, fmt.Errorf("%w: %v", jobtypes.ErrCheckpointCorrupt, err)
	}
	state.ApplyDefaults(rank, worldSize)
	return state, nil
}

// Commit atomically publishes a checkpoint at the given step: write into a
// uniquely-named temp dir, fsync the state file, rename into place
// (idempotent if the final name already exists),
// then overwrite LATEST last.
func (s *Store) Commit(state jobtypes.WorkerState) error {
	final := s.stepDir(state.Step)

	if _, err := os.Stat(final); err == nil {
		// Already committed (re-commit after a crash between rename and
		// LATEST write) — just repoint LATEST.
		return s.writeLatest(filepath.Base(final))
	}

	tmp := filepath.Join(s.dir, fmt.Sprintf("step_%d_tmp_%d_%d", state.Step, time.Now().UnixMilli(), os.Getpid()))
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("clear stale tmp dir: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("create tmp dir: %w", err)
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	statePath := filepath.Join(tmp, "state.json")
	if err := os.WriteFile(statePath, stateBytes, 0o644); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("write state.json: %w", err)
	}

	manifest := jobtypes.Manifest{
		Step:      state.Step,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Rank:      state.Rank,
		WorldSize: state.WorldSize,
		Committed: true,
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "manifest.json"), manifestBytes, 0o644); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("write manifest.json: %w", err)
	}

	// Best-effort fsync of the state file descriptor.
	if f, err := os.Open(statePath); err == nil {
		_ = f.Sync()
		f.Close()
	}

	if err := os.Rename(tmp, final); err != nil {
		if _, statErr := os.Stat(final); statErr == nil {
			// Another commit raced us to the same final name — idempotent.
			os.RemoveAll(tmp)
		} else {
			os.RemoveAll(tmp)
			return fmt.Errorf("rename checkpoint into place: %w", err)
		}
	}

	return s.writeLatest(filepath.Base(final))
}

// writeLatest overwrites LATEST with base, creating the checkpoint directory
// tree if this is the very first commit for this worker.
func (s *Store) writeLatest(base string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	return os.WriteFile(s.latestFile(), []byte(base), 0o644)
}

// ParseStep extracts N from a "step_<N>" directory basename.
func ParseStep(base string) (uint64, error) {
	const prefix = "step_"
	if !strings.HasPrefix(base, prefix) {
		return 0, fmt.Errorf("not a step directory: %s", base)
	}
	return strconv.ParseUint(strings.TrimPrefix(base, prefix), 10, 64)
}
