package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndLoadTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "worker.toml")

	want := DefaultWorkerConfig()
	want.Update.ManifestURL = "https://example.com/update-manifest.json"
	want.Database.Path = filepath.Join(dir, "worker.db")

	if err := WriteDefaultTOML(path, want); err != nil {
		t.Fatalf("WriteDefaultTOML() error = %v", err)
	}

	var got WorkerConfig
	if err := LoadTOML(path, &got); err != nil {
		t.Fatalf("LoadTOML() error = %v", err)
	}

	if got.App.Name != "GoalTrack" {
		t.Errorf("App.Name = %q, want %q", got.App.Name, "GoalTrack")
	}
	if got.Update.ManifestURL != want.Update.ManifestURL {
		t.Errorf("Update.ManifestURL = %q, want %q", got.Update.ManifestURL, want.Update.ManifestURL)
	}
	if got.Database.Path != want.Database.Path {
		t.Errorf("Database.Path = %q, want %q", got.Database.Path, want.Database.Path)
	}
}

func TestLoadTOMLMissingFile(t *testing.T) {
	t.Parallel()

	var cfg WorkerConfig
	err := LoadTOML(filepath.Join(t.TempDir(), "absent.toml"), &cfg)
	if err == nil {
		t.Fatal("LoadTOML() expected error for missing file")
	}
}

func TestConfigSearchPathOrder(t *testing.T) {
	t.Parallel()

	paths := GetConfigSearchPaths("worker.toml", "worker")
	if len(paths) < 2 {
		t.Fatalf("expected at least 2 search paths, got %d", len(paths))
	}
	// Current working directory is always the lowest priority.
	last := paths[len(paths)-1]
	if last != filepath.Join(".", "worker.toml") {
		t.Errorf("last search path = %q, want cwd entry", last)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("UPDATE_MANIFEST_URL", "https://cdn.example.com/manifest.json")
	os.Setenv("LOG_LEVEL", "DEBUG")
	defer os.Unsetenv("UPDATE_MANIFEST_URL")
	defer os.Unsetenv("LOG_LEVEL")

	cfg := DefaultWorkerConfig()
	ApplyUpdateEnvOverrides(&cfg.Update)
	ApplyLoggingEnvOverrides(&cfg.Logging)

	if cfg.Update.ManifestURL != "https://cdn.example.com/manifest.json" {
		t.Errorf("ManifestURL = %q, want env override", cfg.Update.ManifestURL)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG", cfg.Logging.Level)
	}
}
