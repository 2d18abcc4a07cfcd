package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHATAUTO_APP_DATA_DIR", t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "chatauto" {
		t.Errorf("Name = %q", cfg.App.Name)
	}
	if cfg.Host.CommandTimeout != 5*time.Second {
		t.Errorf("CommandTimeout = %v", cfg.Host.CommandTimeout)
	}
	if cfg.AutoContinue.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v", cfg.AutoContinue.PollInterval)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Schedule.RunMissedOnStart {
		t.Error("RunMissedOnStart should default to false")
	}
	if !strings.HasSuffix(cfg.DBPath(), "chatauto.db") {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	dataDir := t.TempDir()
	t.Setenv("CHATAUTO_APP_DATA_DIR", dataDir)
	t.Setenv("CHATAUTO_HOST_COMMAND_TIMEOUT", "750ms")
	t.Setenv("CHATAUTO_LOG_LEVEL", "debug")
	t.Setenv("CHATAUTO_SCHEDULE_RUN_MISSED_ON_START", "true")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.DataDir != dataDir {
		t.Errorf("DataDir = %q, want %q", cfg.App.DataDir, dataDir)
	}
	if cfg.Host.CommandTimeout != 750*time.Millisecond {
		t.Errorf("CommandTimeout = %v", cfg.Host.CommandTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if !cfg.Schedule.RunMissedOnStart {
		t.Error("RunMissedOnStart not read from env")
	}
	if cfg.DBPath() != filepath.Join(dataDir, "chatauto.db") {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `
app:
  workspace: /projects/demo
host:
  socket: /tmp/demo.sock
autocontinue:
  poll_interval: 1s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("CHATAUTO_HOST_SOCKET", "/tmp/override.sock")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Workspace != "/projects/demo" {
		t.Errorf("Workspace = %q", cfg.App.Workspace)
	}
	if cfg.AutoContinue.PollInterval != time.Second {
		t.Errorf("PollInterval = %v", cfg.AutoContinue.PollInterval)
	}
	if cfg.Host.Socket != "/tmp/override.sock" {
		t.Errorf("env should override the file, Socket = %q", cfg.Host.Socket)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}
