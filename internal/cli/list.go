package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mevan-Solanga/distributed-training-system/internal/daemon"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all known jobs",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	jobs, err := d.Manager.List()
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found. Run 'shardctl create' to start one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB_ID\tSTATUS\tPID\tEXIT_CODE\tNOTE")
	for _, j := range jobs {
		exit := "-"
		if j.ExitCode != nil {
			exit = fmt.Sprintf("%d", *j.ExitCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", j.JobID, j.Status, j.PID, exit, j.Note)
	}
	return w.Flush()
}
