package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaultsWhenMissing(t *testing.T) {
	t.Setenv("SHARDSUPER_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	if cfg.API.Port != want.API.Port {
		t.Fatalf("expected default port %d, got %d", want.API.Port, cfg.API.Port)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("SHARDSUPER_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9999
	cfg.Policy.MaxRestartsPerWorker = 7

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(Home(), "config.toml")); err != nil {
		t.Fatalf("expected config.toml to exist: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.API.Port != 9999 || got.Policy.MaxRestartsPerWorker != 7 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}
