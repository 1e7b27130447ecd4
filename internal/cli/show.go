package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mevan-Solanga/distributed-training-system/internal/daemon"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show JOB_ID",
	Short: "Show the status of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	result := d.Manager.Status(args[0])
	fmt.Printf("Job ID:     %s\n", result.JobID)
	fmt.Printf("Status:     %s\n", result.Status)
	if result.PID != 0 {
		fmt.Printf("PID:        %d\n", result.PID)
	}
	if result.ExitCode != nil {
		fmt.Printf("Exit code:  %d\n", *result.ExitCode)
	}
	if result.Note != "" {
		fmt.Printf("Note:       %s\n", result.Note)
	}
	return nil
}
