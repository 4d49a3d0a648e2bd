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
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Engine.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %s, want 500ms", cfg.Engine.PollInterval)
	}
	if cfg.Supervisor.StopTimeout != 10*time.Second {
		t.Errorf("stop timeout = %s, want 10s", cfg.Supervisor.StopTimeout)
	}
	if cfg.Agent.LockName != "agent" {
		t.Errorf("lock name = %q, want agent", cfg.Agent.LockName)
	}
	if !cfg.Archive.Enabled {
		t.Error("archive should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  poll_interval: 250ms
agent:
  command: my-agent
  args: ["--print", "--output-format", "stream-json"]
  resume_flag: "-r"
  log_path: /tmp/session.jsonl
server:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Engine.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %s, want 250ms", cfg.Engine.PollInterval)
	}
	if cfg.Agent.Command != "my-agent" {
		t.Errorf("command = %q", cfg.Agent.Command)
	}
	if len(cfg.Agent.Args) != 3 {
		t.Errorf("args = %v", cfg.Agent.Args)
	}
	if cfg.Agent.ResumeFlag != "-r" {
		t.Errorf("resume flag = %q", cfg.Agent.ResumeFlag)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	// Untouched sections keep defaults.
	if cfg.Engine.SnapshotInterval != 5*time.Second {
		t.Errorf("snapshot interval = %s, want default 5s", cfg.Engine.SnapshotInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "engine: [not a map\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
