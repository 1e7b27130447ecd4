// Package config loads shardctl's TOML configuration, following a
// DefaultConfig/Load/Save fallback pattern built on BurntSushi/toml: every
// field has a usable default, and a missing config.toml is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds every setting shardctl reads at startup.
type Config struct {
	API       APIConfig       `toml:"api"`
	Paths     PathsConfig     `toml:"paths"`
	Policy    PolicyConfig    `toml:"policy"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// PathsConfig locates the supervisor's on-disk state.
type PathsConfig struct {
	LogRoot        string `toml:"log_root"`
	CheckpointRoot string `toml:"checkpoint_root"`
	DatasetRoot    string `toml:"dataset_root"`
}

// PolicyConfig carries the coordinator restart-policy defaults, overridable
// per job via the create request.
type PolicyConfig struct {
	MaxRestartsPerWorker int     `toml:"max_restarts_per_worker"`
	RestartBackoffSec    float64 `toml:"restart_backoff_sec"`
	PollIntervalSec      float64 `toml:"poll_interval_sec"`
}

// TelemetryConfig controls the Prometheus /metrics endpoint.
type TelemetryConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoggingConfig holds the [logging] section. Level is loaded and saved with
// the rest of the file; no component reads it, and per-job log files are
// written unconditionally.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used when no config.toml exists.
func DefaultConfig() Config {
	home := shardsuperHome()
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8900,
			CORSOrigins: []string{"*"},
		},
		Paths: PathsConfig{
			LogRoot:        filepath.Join(home, "logs"),
			CheckpointRoot: filepath.Join(home, "checkpoints"),
			DatasetRoot:    filepath.Join(home, "data", "shards"),
		},
		Policy: PolicyConfig{
			MaxRestartsPerWorker: 50,
			RestartBackoffSec:    0.5,
			PollIntervalSec:      0.2,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads $SHARDSUPER_HOME/config.toml, falling back to defaults when
// the file does not exist.
func Load() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(shardsuperHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to $SHARDSUPER_HOME/config.toml.
func Save(cfg Config) error {
	path := filepath.Join(shardsuperHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func shardsuperHome() string {
	if env := os.Getenv("SHARDSUPER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".shardsuper")
}

// Home is exported for use by the CLI and API packages.
func Home() string {
	return shardsuperHome()
}
