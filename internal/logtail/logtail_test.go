package logtail

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
)

func TestReadNewBytesPastEOFIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, offset, err := ReadNewBytes(path, 5)
	if err != nil {
		t.Fatalf("ReadNewBytes: %v", err)
	}
	if len(data) != 0 || offset != 5 {
		t.Fatalf("expected empty read at EOF, got data=%q offset=%d", data, offset)
	}
}

func TestReadNewBytesConcatenationEqualsFullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	content := "line one\nline two\nline three\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got bytes.Buffer
	var offset int64
	for {
		data, newOffset, err := ReadNewBytes(path, offset)
		if err != nil {
			t.Fatalf("ReadNewBytes: %v", err)
		}
		got.Write(data)
		if newOffset == offset {
			break
		}
		offset = newOffset
	}
	if got.String() != content {
		t.Fatalf("got %q, want %q", got.String(), content)
	}
}

func TestReadNewBytesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	data, offset, err := ReadNewBytes(path, 0)
	if err != nil {
		t.Fatalf("ReadNewBytes: %v", err)
	}
	if data != nil || offset != 0 {
		t.Fatalf("expected (nil, 0) for missing file, got (%v, %d)", data, offset)
	}
}

func TestTailLinesReturnsLastN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	content := "a\nb\nc\nd\ne\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := TailLines(path, 2)
	if err != nil {
		t.Fatalf("TailLines: %v", err)
	}
	if got != "d\ne" {
		t.Fatalf("got %q, want %q", got, "d\ne")
	}
}

func TestInferStatus(t *testing.T) {
	tests := []struct {
		name       string
		tail       string
		wantStatus jobtypes.Status
		wantOK     bool
	}{
		{"completed long form", "all workers DONE. Job COMPLETED.", jobtypes.StatusCompleted, true},
		{"max restarts", "worker 0 max restarts hit", jobtypes.StatusFailed, true},
		{"traceback", "Traceback (most recent call last):\nboom", jobtypes.StatusFailed, true},
		{"no sentinel", "still going strong", jobtypes.StatusLost, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, _, ok := InferStatus(tt.tail)
			if status != tt.wantStatus || ok != tt.wantOK {
				t.Fatalf("InferStatus(%q) = (%v, %v), want (%v, %v)", tt.tail, status, ok, tt.wantStatus, tt.wantOK)
			}
		})
	}
}

func TestStreamTerminatesAfterTerminalDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	if err := os.WriteFile(path, []byte("all workers DONE. Job COMPLETED.\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Stream(ctx, path, func() jobtypes.Status { return jobtypes.StatusCompleted }, &out)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not terminate after terminal status and empty drain")
	}
	if out.Len() == 0 {
		t.Fatalf("expected at least the initial log bytes to be streamed")
	}
}
