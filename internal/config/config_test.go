package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Process.Name != "Unity" {
		t.Errorf("expected default process Unity, got %q", cfg.Process.Name)
	}
	if cfg.Log.Path != "UsageLogs.txt" {
		t.Errorf("expected default log path, got %q", cfg.Log.Path)
	}
	if ParseDuration(cfg.Process.PollInterval, 0) != time.Second {
		t.Errorf("expected 1s poll interval, got %q", cfg.Process.PollInterval)
	}
	if !cfg.Title.Enabled || cfg.Metrics.Enabled {
		t.Errorf("unexpected defaults: title=%v metrics=%v", cfg.Title.Enabled, cfg.Metrics.Enabled)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
process:
  name: Blender
  poll_interval: 250ms
log:
  path: `+filepath.Join(dir, "logs", "usage.txt")+`
  session_label: Blender
tracking:
  repeat: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Process.Name != "Blender" || cfg.Log.SessionLabel != "Blender" {
		t.Errorf("unexpected process settings %+v / %+v", cfg.Process, cfg.Log)
	}
	if ParseDuration(cfg.Process.PollInterval, 0) != 250*time.Millisecond {
		t.Errorf("unexpected poll interval %q", cfg.Process.PollInterval)
	}
	if !cfg.Tracking.Repeat {
		t.Error("expected repeat to be enabled")
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Errorf("expected log directory to be created: %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("UTRACK_PROCESS_NAME", "Godot")
	t.Setenv("UTRACK_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Process.Name != "Godot" {
		t.Errorf("expected env override, got %q", cfg.Process.Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad poll interval", "process:\n  poll_interval: often\n"},
		{"negative min duration", "tracking:\n  min_session_duration: -5s\n"},
		{"empty process name", "process:\n  name: \"\"\n"},
		{"layout without date", "log:\n  time_layout: \"15:04:05\"\n"},
		{"bad metrics port", "metrics:\n  enabled: true\n  port: 70000\n"},
		{"malformed yaml", "process: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected Load to fail")
			}
		})
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	for _, key := range []string{"process.name", "log.path", "metrics.port", "title.enabled"} {
		if !keys[key] {
			t.Errorf("expected %s to be a valid key", key)
		}
	}
	if keys["dns.port"] {
		t.Error("unexpected key dns.port")
	}
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
