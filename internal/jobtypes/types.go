package jobtypes

// Status is the externally observable lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusLost      Status = "LOST"
	StatusNotFound  Status = "NOT_FOUND"
)

// IsTerminal reports whether s is a sticky terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Params are the user-supplied job creation parameters.
//
// MaxRestartsPerWorker, RestartBackoffSec and PollIntervalSec are optional
// per-job overrides of the manager's configured restart policy; a zero
// value means "use the manager's default" rather than "use zero".
type Params struct {
	JobID           string
	WorldSize       int
	CheckpointEvery int
	StepIntervalSec float64
	DatasetRoot     string
	CheckpointRoot  string

	MaxRestartsPerWorker int
	RestartBackoffSec    float64
	PollIntervalSec      float64
}

// Validate enforces acceptable ranges on user-supplied job parameters.
func (p Params) Validate() error {
	if p.WorldSize < 1 || p.WorldSize > 64 {
		return ErrInvalidWorldSize
	}
	if p.CheckpointEvery < 1 || p.CheckpointEvery > 10000 {
		return ErrInvalidCheckpoint
	}
	if p.StepIntervalSec < 0 || p.StepIntervalSec > 10 {
		return ErrInvalidSleep
	}
	return nil
}

// Job is the full record of one submitted job, as held by the JobManager.
type Job struct {
	JobID           string    `json:"job_id"`
	WorldSize       int       `json:"world_size"`
	CheckpointEvery int       `json:"checkpoint_every"`
	StepIntervalSec float64   `json:"step_interval_sec"`
	DatasetRoot     string    `json:"dataset_root"`
	CheckpointRoot  string    `json:"checkpoint_root"`
	CreatedAt       int64     `json:"created_at"`
	PID             int       `json:"pid"`
	LogPath         string    `json:"log_path"`
}

// IndexEntry is the on-disk record kept in the JobIndex.
// It is the only cross-restart truth available to the JobManager.
type IndexEntry struct {
	PID       int    `json:"pid"`
	LogPath   string `json:"log_path"`
	CreatedAt int64  `json:"created_at"`
	Env       map[string]string `json:"env"`
	Status    Status `json:"status,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	EndedAt   *int64 `json:"ended_at,omitempty"`
}

// Terminal reports whether the entry already carries a sticky terminal status.
func (e IndexEntry) Terminal() bool {
	return e.Status.IsTerminal()
}

// StatusResult is returned by JobManager.Status / used in JobManager.List.
type StatusResult struct {
	JobID    string `json:"job_id"`
	Status   Status `json:"status"`
	PID      int    `json:"pid,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Note     string `json:"note,omitempty"`
}

// StopResult enumerates the outcomes of JobManager.Stop.
type StopResult string

const (
	StopSignalSent StopResult = "STOP_SIGNAL_SENT"
	StopNotRunning StopResult = "NOT_RUNNING"
	StopCannotStop StopResult = "CANNOT_STOP"
	StopFailed     StopResult = "STOP_FAILED"
)

// DeleteResult enumerates the outcomes of JobManager.Delete.
type DeleteResult string

const (
	DeleteDeleted        DeleteResult = "DELETED"
	DeleteRefusedRunning DeleteResult = "REFUSED_RUNNING"
	DeleteNotFound       DeleteResult = "NOT_FOUND"
)

// ShardRef identifies one shard by its parsed integer index and locator key.
type ShardRef struct {
	Index int
	Key   string
}

// AssignedShards returns the subset of shards owned by rank out of world,
// in the order of the input slice; it does not sort (shard.Locator.List
// already returns shards sorted by index).
func AssignedShards(shards []ShardRef, rank, world int) []ShardRef {
	var out []ShardRef
	for _, s := range shards {
		if s.Index%world == rank {
			out = append(out, s)
		}
	}
	return out
}

// WorkerState is the per-worker checkpointable progress record.
type WorkerState struct {
	Step       uint64 `json:"step"`
	Rank       int    `json:"rank"`
	WorldSize  int    `json:"world_size"`
	ShardIdx   int    `json:"shard_idx"`
	LineIdx    uint64 `json:"line_idx"`
	ModelState []byte `json:"model_state,omitempty"`
}

// ApplyDefaults fills in zero-value Rank/WorldSize fields so checkpoints
// written before those fields existed remain loadable.
func (s *WorkerState) ApplyDefaults(rank, world int) {
	if s.Rank == 0 && s.WorldSize == 0 {
		s.Rank = rank
		s.WorldSize = world
	}
}

// Manifest is the sibling metadata file written alongside state.json.
type Manifest struct {
	Step      uint64  `json:"step"`
	Timestamp float64 `json:"timestamp"`
	Rank      int     `json:"rank"`
	WorldSize int     `json:"world_size"`
	Committed bool    `json:"committed"`
}
