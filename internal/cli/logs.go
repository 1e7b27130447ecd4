package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mevan-Solanga/distributed-training-system/internal/daemon"
	"github.com/Mevan-Solanga/distributed-training-system/internal/logtail"
)

func init() {
	logsCmd.Flags().IntVar(&logsTail, "tail", 100, "number of trailing lines to print")
	logsCmd.Flags().BoolVar(&logsFollow, "follow", false, "keep streaming new log output")
	rootCmd.AddCommand(logsCmd)
}

var (
	logsTail   int
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs JOB_ID",
	Short: "Print a job's log output",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	tail, err := d.Manager.TailLogs(jobID, logsTail)
	if err != nil {
		return err
	}
	fmt.Print(tail)

	if !logsFollow {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	offset, err := logPathSize(d, jobID)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(logtail.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		chunk, newOffset, err := d.Manager.ReadNewLogBytes(jobID, offset)
		if err != nil {
			return err
		}
		if len(chunk) > 0 {
			os.Stdout.Write(chunk)
			offset = newOffset
		}

		st := d.Manager.Status(jobID)
		if (st.Status.IsTerminal() || st.Status == "LOST") && len(chunk) == 0 {
			return nil
		}
	}
}

// logPathSize seeds --follow's starting offset at the current log size so
// only output after the command started is streamed.
func logPathSize(d *daemon.Daemon, jobID string) (int64, error) {
	_, offset, err := d.Manager.ReadNewLogBytes(jobID, 0)
	if err != nil {
		return 0, err
	}
	return offset, nil
}
