// Package health runs a periodic, auto-recovering check loop against the
// supervisor's own dependencies: the log root and checkpoint root must be
// writable directories, and the job index must still parse.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Mevan-Solanga/distributed-training-system/internal/jobindex"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of one health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker builds the standard checks against logRoot/checkpointRoot.
func NewChecker(logRoot, checkpointRoot string) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name:    "log_root_writable",
				CheckFn: func(ctx context.Context) error { return checkWritable(logRoot) },
				RecoverFn: func(ctx context.Context) error {
					return os.MkdirAll(logRoot, 0o755)
				},
			},
			{
				Name:    "checkpoint_root_writable",
				CheckFn: func(ctx context.Context) error { return checkWritable(checkpointRoot) },
				RecoverFn: func(ctx context.Context) error {
					return os.MkdirAll(checkpointRoot, 0o755)
				},
			},
			{
				Name: "job_index_parses",
				CheckFn: func(ctx context.Context) error {
					idx, err := jobindex.Open(logRoot)
					if err != nil {
						return err
					}
					_, err = idx.Load()
					return err
				},
				RecoverFn: func(ctx context.Context) error {
					return nil // a corrupt index needs operator intervention
				},
			},
		},
	}
}

// Run starts the health-check loop; call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy reports whether every check currently passes.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".health-probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}
