package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/storage/backend"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Backend != backend.ServiceFile {
		t.Errorf("default backend = %q, want %q", cfg.Backend, backend.ServiceFile)
	}
	if cfg.Location == "" {
		t.Error("default location should point at the data directory")
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "backend = \"redis\"\nlocation = \"localhost:6379\"\nworkers = 8\noverview_cap = 500\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Backend != "redis" || cfg.Location != "localhost:6379" {
		t.Errorf("backend/location = %q/%q", cfg.Backend, cfg.Location)
	}
	if cfg.Workers != 8 || cfg.OverviewCap != 500 {
		t.Errorf("workers/overview_cap = %d/%d", cfg.Workers, cfg.OverviewCap)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("workers = 4\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Backend != backend.ServiceFile {
		t.Errorf("backend = %q, want default %q", cfg.Backend, backend.ServiceFile)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Workers)
	}
}

func TestLoadConfigExplicitMissingFileFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("got %v, want INVALID_INPUT", err)
	}
}

func TestLoadConfigUnknownKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("bakend = \"file\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := loadConfig(path)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("got %v, want INVALID_INPUT", err)
	}
}
