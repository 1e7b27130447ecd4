package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobmanager"
)

func writeFakeCoordinator(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-coordinator.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake coordinator: %v", err)
	}
	return path
}

func newTestServer(t *testing.T, exePath string) (*Server, *httptest.Server) {
	t.Helper()
	m, err := jobmanager.New(t.TempDir(), jobmanager.Options{ExePath: exePath})
	if err != nil {
		t.Fatalf("jobmanager.New: %v", err)
	}
	s := NewServer(m)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, writeFakeCoordinator(t, "exit 0"))

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["ok"] {
		t.Fatalf("expected ok:true, got %v", body)
	}
}

func TestCreateAndGetJob(t *testing.T) {
	_, ts := newTestServer(t, writeFakeCoordinator(t, "exit 0"))

	createBody := `{"world_size":1,"checkpoint_every":1}`
	resp, err := http.Post(ts.URL+"/jobs/", "application/json", strings.NewReader(createBody))
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}

	var created map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	jobID, _ := created["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected job_id in response, got %+v", created)
	}

	deadline := time.Now().Add(2 * time.Second)
	var last map[string]interface{}
	for time.Now().Before(deadline) {
		getResp, err := http.Get(ts.URL + "/jobs/" + jobID)
		if err != nil {
			t.Fatalf("GET /jobs/%s: %v", jobID, err)
		}
		json.NewDecoder(getResp.Body).Decode(&last)
		getResp.Body.Close()
		if last["status"] == "COMPLETED" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job never reached COMPLETED, last=%+v", last)
}

func TestCORSDefaultsToWildcard(t *testing.T) {
	_, ts := newTestServer(t, writeFakeCoordinator(t, "exit 0"))

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestCORSRestrictsToConfiguredOrigins(t *testing.T) {
	s, ts := newTestServer(t, writeFakeCoordinator(t, "exit 0"))
	s.SetCORSOrigins([]string{"https://allowed.example"})

	allowedReq, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	allowedReq.Header.Set("Origin", "https://allowed.example")
	allowedResp, err := http.DefaultClient.Do(allowedReq)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer allowedResp.Body.Close()
	if got := allowedResp.Header.Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want https://allowed.example", got)
	}

	blockedReq, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	blockedReq.Header.Set("Origin", "https://not-allowed.example")
	blockedResp, err := http.DefaultClient.Do(blockedReq)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer blockedResp.Body.Close()
	if got := blockedResp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want empty for disallowed origin", got)
	}
}

func TestGetUnknownJobReturns404(t *testing.T) {
	_, ts := newTestServer(t, writeFakeCoordinator(t, "exit 0"))

	resp, err := http.Get(ts.URL + "/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteRunningJobWithoutFlagsReturns409(t *testing.T) {
	_, ts := newTestServer(t, writeFakeCoordinator(t, "sleep 5"))

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", strings.NewReader(`{"world_size":1,"checkpoint_every":1}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	jobID := created["job_id"].(string)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/jobs/"+jobID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", delResp.StatusCode)
	}

	// Clean up the still-running fake coordinator.
	forceReq, _ := http.NewRequest(http.MethodDelete, ts.URL+"/jobs/"+jobID+"?force=true&stop_first=true", nil)
	http.DefaultClient.Do(forceReq)
}
