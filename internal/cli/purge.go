package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mevan-Solanga/distributed-training-system/internal/daemon"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobmanager"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

func init() {
	purgeCmd.Flags().Float64Var(&purgeOlderThanHours, "older-than-hours", 0, "only purge jobs created more than N hours ago")
	purgeCmd.Flags().StringVar(&purgeStatuses, "statuses", "", "comma-separated status filter, e.g. COMPLETED,FAILED")
	purgeCmd.Flags().BoolVar(&purgeDeleteLogs, "delete-logs", false, "also delete matched jobs' log files")
	purgeCmd.Flags().BoolVar(&purgeStopRunning, "stop-running", false, "stop running jobs before purging them")
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "kill running jobs and purge them anyway")
	rootCmd.AddCommand(purgeCmd)
}

var (
	purgeOlderThanHours float64
	purgeStatuses       string
	purgeDeleteLogs     bool
	purgeStopRunning    bool
	purgeForce          bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete jobs matching an age and/or status filter",
	RunE:  runPurge,
}

func runPurge(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	opts := jobmanager.PurgeOptions{
		OlderThanSeconds: int64(purgeOlderThanHours * 3600),
		DeleteLogs:       purgeDeleteLogs,
		StopRunning:      purgeStopRunning,
		Force:            purgeForce,
	}
	if purgeStatuses != "" {
		opts.Statuses = map[jobtypes.Status]bool{}
		for _, part := range strings.Split(purgeStatuses, ",") {
			opts.Statuses[jobtypes.Status(strings.ToUpper(strings.TrimSpace(part)))] = true
		}
	}

	result, err := d.Manager.Purge(opts)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d of %d matched jobs\n", result.DeletedCount, result.MatchedCount)
	return nil
}
