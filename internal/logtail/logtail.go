// Package logtail implements the append-only log-file channel: byte-offset
// reads for many concurrent readers against one append-only writer, and a
// polling helper that turns that into a server-sent-style byte stream for
// HTTP handlers.
package logtail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

// ReadNewBytes returns the slice of path starting at offset and the file's
// new length. No locking is required: writers only append, so bytes
// already written before offset are prefix-stable.
func ReadNewBytes(path string, offset int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log %s: %w", path, err)
	}
	size := info.Size()
	if offset >= size {
		return nil, size, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log %s: %w", path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read log %s: %w", path, err)
	}
	return data, offset + int64(len(data)), nil
}

// TailLines returns the last n lines of the log file as a single string,
// or "" if the log does not exist yet.
func TailLines(path string, n int) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read log %s: %w", path, err)
	}

	out := ""
	for i, line := range ring {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out, nil
}

// sentinelCompletedLong and friends are the stable strings status
// inference looks for in a job's log; it depends on them never changing.
const (
	sentinelCompletedLong  = "all workers DONE. Job COMPLETED."
	sentinelCompletedShort = "Job COMPLETED."
	sentinelMaxRestarts    = "max restarts hit"
	sentinelTraceback      = "Traceback (most recent call last)"
)

// InferStatus scans the tail of a log for the sentinel strings, returning
// the inferred terminal status and note. ok is false when no sentinel
// matched (caller should treat the job as LOST, without persisting that
// conclusion).
func InferStatus(tail string) (status jobtypes.Status, exitCode int, note string, ok bool) {
	switch {
	case containsAny(tail, sentinelCompletedLong, sentinelCompletedShort):
		return jobtypes.StatusCompleted, 0, "", true
	case containsAny(tail, sentinelMaxRestarts):
		return jobtypes.StatusFailed, 1, "max_restarts", true
	case containsAny(tail, sentinelTraceback):
		return jobtypes.StatusFailed, 1, "uncaught_exception", true
	default:
		return jobtypes.StatusLost, 0, "", false
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// sentinelRestarting and sentinelCheckpointing are substrings of the
// coordinator's/worker's own log lines; counting their occurrences in a
// chunk of newly-appended log bytes lets a process that never ran the
// coordinator itself (the JobManager) derive restart/checkpoint counts
// without sharing a Prometheus registry across the process boundary.
const (
	sentinelRestarting    = "restarting ("
	sentinelCheckpointing = "checkpointing at step"
)

// CountSentinels scans data (a chunk of newly-appended log bytes) and
// returns how many worker-restart and checkpoint-commit lines it contains.
func CountSentinels(data []byte) (restarts, checkpoints int) {
	text := string(data)
	restarts = strings.Count(text, sentinelRestarting)
	checkpoints = strings.Count(text, sentinelCheckpointing)
	return restarts, checkpoints
}

// PollInterval is the default cadence between stream polls.
const PollInterval = 250 * time.Millisecond

// StatusFunc reports a job's current status for stream termination.
type StatusFunc func() jobtypes.Status

// Stream polls path for new bytes every PollInterval and writes them to w,
// terminating once statusFn reports a terminal status and one final drain
// read returns no new bytes.
func Stream(ctx context.Context, path string, statusFn StatusFunc, w io.Writer) error {
	var offset int64
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		data, newOffset, err := ReadNewBytes(path, offset)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("write stream: %w", err)
			}
			offset = newOffset
		}

		st := statusFn()
		terminal := st.IsTerminal() || st == jobtypes.StatusLost
		if terminal && len(data) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
