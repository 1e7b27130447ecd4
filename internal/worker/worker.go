// Package worker implements one rank of a job: walk assigned shards
// line-by-line, drive the step function once per line, and checkpoint
// periodically. There is no separate heartbeat file; liveness is derived
// by the coordinator from process exit status.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Mevan-Solanga/distributed-training-system/internal/checkpoint"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
	"github.com/Mevan-Solanga/distributed-training-system/internal/shard"
	"github.com/Mevan-Solanga/distributed-training-system/internal/trainer"
)

// Config carries the values the worker reads from its environment.
type Config struct {
	JobID           string
	Rank            int
	WorldSize       int
	CheckpointRoot  string
	CheckpointEvery int
	StepIntervalSec float64
	DatasetRoot     string
}

// Run executes the resume protocol end to end, logging to out (normally
// os.Stdout, inherited from the coordinator into the shared log file).
// It returns a non-nil error on any step or I/O failure; callers translate
// that into a non-zero process exit so the coordinator restarts the rank.
// A nil return means every assigned shard was exhausted.
func Run(ctx context.Context, cfg Config, locator shard.Locator, model trainer.Step, out io.Writer) error {
	logger := log.New(out, "", 0)
	prefix := fmt.Sprintf("[worker %d]", cfg.Rank)

	store := checkpoint.New(cfg.CheckpointRoot, cfg.JobID, cfg.Rank)
	state, err := store.Load(cfg.Rank, cfg.WorldSize)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	logger.Printf("%s starting from step %d", prefix, state.Step)

	if len(state.ModelState) > 0 {
		if err := model.LoadStateDict(state.ModelState); err != nil {
			return fmt.Errorf("load model state: %w", err)
		}
		logger.Printf("%s loaded model state from checkpoint", prefix)
	}

	allShards, err := locator.List(ctx)
	if err != nil {
		return fmt.Errorf("list shards: %w", err)
	}
	shards := jobtypes.AssignedShards(allShards, cfg.Rank, cfg.WorldSize)
	logger.Printf("%s assigned %d shard(s): %v", prefix, len(shards), shardKeys(shards))

	if len(shards) == 0 {
		logger.Printf("%s no shards assigned. Exiting.", prefix)
		return nil
	}

	if state.ShardIdx > len(shards)-1 {
		state.ShardIdx = len(shards) - 1
	}

	logger.Printf("%s resuming at shard_idx=%d line_idx=%d step=%d", prefix, state.ShardIdx, state.LineIdx, state.Step)

	startShard := state.ShardIdx
	for si := startShard; si < len(shards); si++ {
		if si != startShard {
			state.LineIdx = 0
		}
		if err := consumeShard(ctx, cfg, logger, prefix, store, locator, model, &state, shards[si], si); err != nil {
			return err
		}
	}

	logger.Printf("%s finished all assigned shards. Exiting.", prefix)
	return nil
}

// consumeShard streams shards[si] line by line, skipping state.LineIdx
// already-committed lines, and drives one step per remaining line.
func consumeShard(
	ctx context.Context,
	cfg Config,
	logger *log.Logger,
	prefix string,
	store *checkpoint.Store,
	locator shard.Locator,
	model trainer.Step,
	state *jobtypes.WorkerState,
	ref jobtypes.ShardRef,
	si int,
) error {
	rc, err := locator.Open(ctx, ref)
	if err != nil {
		return fmt.Errorf("open shard %s: %w", ref.Key, err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	skip := state.LineIdx
	var lineNo uint64
	for scanner.Scan() {
		lineNo++
		if lineNo <= skip {
			continue
		}
		sample := scanner.Text()

		if err := sleepInterval(ctx, cfg.StepIntervalSec); err != nil {
			return fmt.Errorf("sleep: %w", err)
		}

		state.Step++
		state.ShardIdx = si
		state.LineIdx = lineNo

		loss, err := model.Train(sample)
		if err != nil {
			return fmt.Errorf("train step: %w", err)
		}

		logger.Printf("%s step %d | loss %.4f | %s | (si=%d li=%d)",
			prefix, state.Step, loss, sample, state.ShardIdx, state.LineIdx)

		if cfg.CheckpointEvery > 0 && state.Step%uint64(cfg.CheckpointEvery) == 0 {
			modelState, err := model.StateDict()
			if err != nil {
				return fmt.Errorf("serialize model state: %w", err)
			}
			state.ModelState = modelState
			logger.Printf("%s checkpointing at step %d (loss: %.4f)", prefix, state.Step, loss)
			if err := store.Commit(*state); err != nil {
				return fmt.Errorf("commit checkpoint: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read shard %s: %w", ref.Key, err)
	}
	return nil
}

func shardKeys(refs []jobtypes.ShardRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Key
	}
	return out
}

// sleepInterval pauses for the configured pacing duration, returning early
// with ctx's error if ctx is cancelled.
func sleepInterval(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
