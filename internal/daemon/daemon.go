// Package daemon owns the shardctl server lifecycle: it wires the
// JobManager, audit log, metrics and health checker together and runs
// the HTTP API to completion, with graceful shutdown on SIGINT/SIGTERM.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mevan-Solanga/distributed-training-system/internal/api"
	"github.com/Mevan-Solanga/distributed-training-system/internal/audit"
	"github.com/Mevan-Solanga/distributed-training-system/internal/config"
	"github.com/Mevan-Solanga/distributed-training-system/internal/health"
	"github.com/Mevan-Solanga/distributed-training-system/internal/jobmanager"
	"github.com/Mevan-Solanga/distributed-training-system/internal/metrics"
)

// Daemon is the core shardctl server runtime.
type Daemon struct {
	Config  config.Config
	Manager *jobmanager.Manager
	Audit   *audit.Log
	Metrics *metrics.Set
	Health  *health.Checker
	Server  *api.Server

	cancel context.CancelFunc
}

// New builds a Daemon from $SHARDSUPER_HOME/config.toml, falling back to
// defaults, exactly as internal/config.Load does.
func New() (*Daemon, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds a Daemon from an already-resolved configuration.
func NewWithConfig(cfg config.Config) (*Daemon, error) {
	if err := os.MkdirAll(cfg.Paths.LogRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create log root: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.CheckpointRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint root: %w", err)
	}

	auditLog, err := audit.Open(cfg.Paths.LogRoot)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	metricsSet := metrics.NewSet()

	mgr, err := jobmanager.New(cfg.Paths.LogRoot, jobmanager.Options{
		Audit:   auditLog,
		Metrics: metricsSet,
		Policy:  cfg.Policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create job manager: %w", err)
	}

	srv := api.NewServer(mgr)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Telemetry.Enabled {
		srv.EnableMetrics(metricsSet.Registry)
	}

	d := &Daemon{
		Config:  cfg,
		Manager: mgr,
		Audit:   auditLog,
		Metrics: metricsSet,
		Health:  health.NewChecker(cfg.Paths.LogRoot, cfg.Paths.CheckpointRoot),
		Server:  srv,
	}
	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long enough for the log-stream endpoint
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[daemon] shutdown error: %v", err)
		}
		if err := d.Audit.Close(); err != nil {
			log.Printf("[daemon] audit close error: %v", err)
		}
	}()

	fmt.Printf("shardctl serving on http://%s\n", addr)
	if d.Config.Telemetry.Enabled {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down daemon resources without waiting for an HTTP server.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Audit != nil {
		_ = d.Audit.Close()
	}
}
