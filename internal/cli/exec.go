package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mevan-Solanga/distributed-training-system/internal/coordinator"
	"github.com/Mevan-Solanga/distributed-training-system/internal/shard"
	"github.com/Mevan-Solanga/distributed-training-system/internal/shard/localfs"
	"github.com/Mevan-Solanga/distributed-training-system/internal/shard/s3shard"
	"github.com/Mevan-Solanga/distributed-training-system/internal/trainer"
	"github.com/Mevan-Solanga/distributed-training-system/internal/worker"
)

// These two hidden commands are never shown to end users (cobra.Command's
// Hidden flag); they are the re-exec targets JobManager.Create and
// coordinator.DefaultSpawnFunc invoke via os.Executable(), reading every
// parameter from environment variables.

func init() {
	coordinatorCmd.Hidden = true
	workerCmd.Hidden = true
	rootCmd.AddCommand(coordinatorCmd)
	rootCmd.AddCommand(workerCmd)
}

var coordinatorCmd = &cobra.Command{
	Use:    "__coordinator",
	Short:  "internal: run as a job coordinator",
	Hidden: true,
	RunE:   runCoordinator,
}

var workerCmd = &cobra.Command{
	Use:    "__worker",
	Short:  "internal: run as one worker rank",
	Hidden: true,
	RunE:   runWorker,
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	worldSize, err := strconv.Atoi(os.Getenv("WORLD_SIZE"))
	if err != nil {
		return fmt.Errorf("parse WORLD_SIZE: %w", err)
	}
	checkpointEvery, err := strconv.Atoi(os.Getenv("CHECKPOINT_EVERY"))
	if err != nil {
		return fmt.Errorf("parse CHECKPOINT_EVERY: %w", err)
	}
	sleepSec, err := strconv.ParseFloat(os.Getenv("SLEEP_SEC"), 64)
	if err != nil {
		return fmt.Errorf("parse SLEEP_SEC: %w", err)
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	cfg := coordinator.Config{
		JobID:                os.Getenv("JOB_ID"),
		WorldSize:            worldSize,
		CheckpointRoot:       os.Getenv("CHECKPOINT_DIR"),
		CheckpointEvery:      checkpointEvery,
		StepIntervalSec:      sleepSec,
		DatasetRoot:          os.Getenv("DATASET_DIR"),
		MaxRestartsPerWorker: envIntDefault("MAX_RESTARTS_PER_WORKER", coordinator.DefaultMaxRestartsPerWorker),
		RestartBackoffSec:    envFloatDefault("RESTART_BACKOFF_SEC", coordinator.DefaultRestartBackoffSec),
		PollIntervalSec:      envFloatDefault("POLL_INTERVAL_SEC", coordinator.DefaultPollIntervalSec),
	}

	exitCode := coordinator.Run(context.Background(), cfg, coordinator.DefaultSpawnFunc(exePath, cfg), os.Stdout)
	os.Exit(exitCode)
	return nil
}

// envIntDefault reads name as an int, falling back to def when the
// variable is unset or does not parse. The three restart-policy vars are
// optional: a process spawned without them should still run, at the
// package defaults.
func envIntDefault(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloatDefault(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func runWorker(cmd *cobra.Command, args []string) error {
	rank, err := strconv.Atoi(os.Getenv("RANK"))
	if err != nil {
		return fmt.Errorf("parse RANK: %w", err)
	}
	worldSize, err := strconv.Atoi(os.Getenv("WORLD_SIZE"))
	if err != nil {
		return fmt.Errorf("parse WORLD_SIZE: %w", err)
	}
	checkpointEvery, err := strconv.Atoi(os.Getenv("CHECKPOINT_EVERY"))
	if err != nil {
		return fmt.Errorf("parse CHECKPOINT_EVERY: %w", err)
	}
	sleepSec, err := strconv.ParseFloat(os.Getenv("SLEEP_SEC"), 64)
	if err != nil {
		return fmt.Errorf("parse SLEEP_SEC: %w", err)
	}

	cfg := worker.Config{
		JobID:           os.Getenv("JOB_ID"),
		Rank:            rank,
		WorldSize:       worldSize,
		CheckpointRoot:  os.Getenv("CHECKPOINT_DIR"),
		CheckpointEvery: checkpointEvery,
		StepIntervalSec: sleepSec,
		DatasetRoot:     os.Getenv("DATASET_DIR"),
	}

	ctx := context.Background()
	locator, err := resolveLocator(ctx, cfg.DatasetRoot)
	if err != nil {
		return fmt.Errorf("resolve shard locator: %w", err)
	}

	model := trainer.NewFakeModel(16, 32, 1, int64(rank)+1)

	if err := worker.Run(ctx, cfg, locator, model, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return nil
}

// resolveLocator picks the shard backend by the dataset root's scheme: an
// "s3://bucket/prefix" root resolves to the S3 locator, anything else to a
// local-directory locator.
func resolveLocator(ctx context.Context, datasetRoot string) (shard.Locator, error) {
	if strings.HasPrefix(datasetRoot, "s3://") {
		rest := strings.TrimPrefix(datasetRoot, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		bucket := parts[0]
		prefix := ""
		if len(parts) == 2 {
			prefix = parts[1]
		}
		return s3shard.New(ctx, bucket, prefix, os.Getenv("S3_ENDPOINT"))
	}
	return localfs.New(datasetRoot), nil
}
