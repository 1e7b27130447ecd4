package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mevan-Solanga/distributed-training-system/internal/daemon"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

func init() {
	createCmd.Flags().IntVar(&createWorldSize, "world-size", 1, "number of worker processes")
	createCmd.Flags().IntVar(&createCheckpointEvery, "checkpoint-every", 50, "steps between checkpoints")
	createCmd.Flags().Float64Var(&createSleepSec, "sleep-sec", 0.2, "simulated per-step sleep, in seconds")
	createCmd.Flags().StringVar(&createDatasetDir, "dataset-dir", "", "shard dataset directory (defaults to configured dataset root)")
	createCmd.Flags().StringVar(&createCheckpointDir, "checkpoint-dir", "", "checkpoint directory (defaults under configured checkpoint root)")
	createCmd.Flags().StringVar(&createJobID, "job-id", "", "explicit job id (defaults to a generated id)")
	rootCmd.AddCommand(createCmd)
}

var (
	createWorldSize       int
	createCheckpointEvery int
	createSleepSec        float64
	createDatasetDir      string
	createCheckpointDir   string
	createJobID           string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and start a new sharded job",
	RunE:  runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	datasetDir := createDatasetDir
	if datasetDir == "" {
		datasetDir = d.Config.Paths.DatasetRoot
	}
	checkpointDir := createCheckpointDir
	if checkpointDir == "" {
		checkpointDir = d.Config.Paths.CheckpointRoot
	}

	job, err := d.Manager.Create(jobtypes.Params{
		JobID:           createJobID,
		WorldSize:       createWorldSize,
		CheckpointEvery: createCheckpointEvery,
		StepIntervalSec: createSleepSec,
		DatasetRoot:     datasetDir,
		CheckpointRoot:  checkpointDir,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created job %s (coordinator pid %d)\n", job.JobID, job.PID)
	return nil
}
