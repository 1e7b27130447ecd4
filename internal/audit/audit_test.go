package audit

import "testing"

func TestAppendThenHistoryOrdersByTime(t *testing.T) {
	log, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	if err := log.Append("job-1", "created", ""); err != nil {
		t.Fatalf("Append created: %v", err)
	}
	if err := log.Append("job-1", "terminal", "COMPLETED"); err != nil {
		t.Fatalf("Append terminal: %v", err)
	}
	if err := log.Append("job-2", "created", ""); err != nil {
		t.Fatalf("Append for other job: %v", err)
	}

	events, err := log.History("job-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("History(job-1) = %d events, want 2", len(events))
	}
	if events[0].Event != "created" || events[1].Event != "terminal" {
		t.Fatalf("events out of order: %+v", events)
	}
	if events[1].Detail != "COMPLETED" {
		t.Fatalf("detail = %q, want COMPLETED", events[1].Detail)
	}
}

func TestHistoryEmptyForUnknownJob(t *testing.T) {
	log, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	events, err := log.History("does-not-exist")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	log1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	log1.Close()

	log2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer log2.Close()

	if err := log2.Append("job-1", "created", ""); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
}
