package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mevan-Solanga/distributed-training-system/internal/daemon"
)

func init() {
	rmCmd.Flags().BoolVar(&rmDeleteLogs, "delete-logs", false, "also delete the job's log file")
	rmCmd.Flags().BoolVar(&rmStopFirst, "stop-first", false, "stop the job before deleting it")
	rmCmd.Flags().BoolVar(&rmForce, "force", false, "kill the job and delete it even if stopping fails")
	rootCmd.AddCommand(rmCmd)
}

var (
	rmDeleteLogs bool
	rmStopFirst  bool
	rmForce      bool
)

var rmCmd = &cobra.Command{
	Use:   "rm JOB_ID",
	Short: "Remove a job's record (and optionally its logs)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	result := d.Manager.Delete(args[0], rmDeleteLogs, rmStopFirst, rmForce)
	fmt.Println(result)
	return nil
}
