// Package jobtypes defines the data model shared by every layer of the
// supervisor: coordinator, worker, checkpoint store, job index and manager.
package jobtypes

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Job parameter errors
	ErrInvalidWorldSize   = errors.New("world_size must be in [1, 64]")
	ErrInvalidCheckpoint  = errors.New("checkpoint_every must be in [1, 10000]")
	ErrInvalidSleep       = errors.New("step_interval_sec must be in [0, 10]")
	ErrInvalidTail        = errors.New("tail line count must be in [1, 5000]")
	ErrJobExists          = errors.New("job id already exists")

	// Job lifecycle errors
	ErrJobNotFound   = errors.New("job not found")
	ErrJobRunning    = errors.New("job is running")
	ErrSpawnFailed   = errors.New("failed to spawn coordinator process")

	// Checkpoint errors
	ErrCheckpointMissing = errors.New("LATEST points to a missing checkpoint directory")
	ErrCheckpointCorrupt = errors.New("checkpoint state is not valid JSON")

	// Shard errors
	ErrNoShardsAssigned = errors.New("no shards assigned to this rank")
	ErrBadShardName     = errors.New("shard filename does not match shard_<NNNNN>.* pattern")
)
