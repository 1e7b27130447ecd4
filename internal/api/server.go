// Package api exposes the JobManager as an HTTP surface: chi middleware
// stack, JSON envelope helpers, and conditional /metrics wiring.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobmanager"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobtypes"
	"github.com/Mevan-Solanga/distributed-training-system/internal/logtail"
)

// Server is the shardctl HTTP API server.
type Server struct {
	manager     *jobmanager.Manager
	registry    *prometheus.Registry // nil unless EnableMetrics is called
	corsOrigins []string             // empty or containing "*" means allow any origin
}

// NewServer creates a new API server bound to manager.
func NewServer(manager *jobmanager.Manager) *Server {
	return &Server{manager: manager}
}

// EnableMetrics mounts /metrics against reg.
func (s *Server) EnableMetrics(reg *prometheus.Registry) { s.registry = reg }

// SetCORSOrigins restricts Access-Control-Allow-Origin to the given list.
// An empty list, or a list containing "*", allows any origin.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(s.corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Post("/purge", s.handlePurge)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/logs", s.handleTailLogs)
		r.Get("/{id}/logs/stream", s.handleStreamLogs)
		r.Post("/{id}/stop", s.handleStop)
		r.Delete("/{id}", s.handleDelete)
	})

	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return r
}

type createRequest struct {
	WorldSize       int     `json:"world_size"`
	CheckpointEvery int     `json:"checkpoint_every"`
	SleepSec        float64 `json:"sleep_sec"`
	DatasetDir      string  `json:"dataset_dir"`
	CheckpointDir   string  `json:"checkpoint_dir"`
	JobID           string  `json:"job_id,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.manager.Create(jobtypes.Params{
		JobID:           req.JobID,
		WorldSize:       req.WorldSize,
		CheckpointEvery: req.CheckpointEvery,
		StepIntervalSec: req.SleepSec,
		DatasetRoot:     req.DatasetDir,
		CheckpointRoot:  req.CheckpointDir,
	})
	if err != nil {
		writeError(w, statusForCreateErr(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": job.JobID,
		"pid":    job.PID,
	})
}

func statusForCreateErr(err error) int {
	switch err {
	case jobtypes.ErrJobExists:
		return http.StatusConflict
	case jobtypes.ErrInvalidWorldSize, jobtypes.ErrInvalidCheckpoint, jobtypes.ErrInvalidSleep:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.manager.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result := s.manager.Status(id)
	if result.Status == jobtypes.StatusNotFound {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTailLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n := 100
	if raw := r.URL.Query().Get("tail"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "tail must be an integer")
			return
		}
		n = parsed
	}

	logs, err := s.manager.TailLogs(id, n)
	if err != nil {
		if err == jobtypes.ErrInvalidTail {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": id,
		"tail":   n,
		"logs":   logs,
	})
}

// handleStreamLogs implements the byte-offset append tail as a server-sent
// stream: it polls ReadNewLogBytes/Status the way logtail.Stream does, but
// against the manager's view of the job rather than a bare file handle.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	var offset int64
	ticker := time.NewTicker(logtail.PollInterval)
	defer ticker.Stop()

	for {
		chunk, newOffset, err := s.manager.ReadNewLogBytes(id, offset)
		if err != nil {
			return
		}
		if len(chunk) > 0 {
			for _, line := range strings.Split(strings.TrimRight(string(chunk), "\n"), "\n") {
				w.Write([]byte("data: " + line + "\n"))
			}
			w.Write([]byte("\n"))
			flusher.Flush()
			offset = newOffset
		}

		st := s.manager.Status(id)
		if (st.Status.IsTerminal() || st.Status == jobtypes.StatusLost) && len(chunk) == 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result := s.manager.Stop(id)
	writeJSON(w, http.StatusOK, map[string]string{"result": string(result)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	deleteLogs := boolQuery(q, "delete_logs")
	stopFirst := boolQuery(q, "stop_first")
	force := boolQuery(q, "force")

	result := s.manager.Delete(id, deleteLogs, stopFirst, force)
	switch result {
	case jobtypes.DeleteRefusedRunning:
		writeError(w, http.StatusConflict, "job is running; pass stop_first or force")
		return
	case jobtypes.DeleteNotFound:
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": string(result)})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := jobmanager.PurgeOptions{
		DeleteLogs:  boolQuery(q, "delete_logs"),
		StopRunning: boolQuery(q, "stop_running"),
		Force:       boolQuery(q, "force"),
	}

	if raw := q.Get("older_than_hours"); raw != "" {
		if hours, err := strconv.ParseFloat(raw, 64); err == nil {
			opts.OlderThanSeconds = int64(hours * 3600)
		}
	}
	if raw := q.Get("older_than_days"); raw != "" {
		if days, err := strconv.ParseFloat(raw, 64); err == nil {
			opts.OlderThanSeconds = int64(days * 86400)
		}
	}
	if raw := q.Get("statuses"); raw != "" {
		opts.Statuses = map[jobtypes.Status]bool{}
		for _, part := range strings.Split(raw, ",") {
			opts.Statuses[jobtypes.Status(strings.ToUpper(strings.TrimSpace(part)))] = true
		}
	}

	result, err := s.manager.Purge(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"deleted":       result.DeletedCount,
		"total_matched": result.MatchedCount,
	})
}

func boolQuery(q map[string][]string, key string) bool {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return false
	}
	v := strings.ToLower(vals[0])
	return v == "" || v == "1" || v == "true" || v == "yes"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
		},
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allow := s.allowedOrigin(r.Header.Get("Origin")); allow != "" {
			w.Header().Set("Access-Control-Allow-Origin", allow)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the Access-Control-Allow-Origin value for the
// request's Origin header, or "" to omit the header entirely. An empty
// configured list, or one containing "*", allows any origin; otherwise
// only an exact match in the configured list is echoed back.
func (s *Server) allowedOrigin(requestOrigin string) string {
	if len(s.corsOrigins) == 0 {
		return "*"
	}
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if o == requestOrigin {
			return requestOrigin
		}
	}
	return ""
}
