package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Agent      AgentConfig      `yaml:"agent"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

type EngineConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

// AgentConfig describes how to launch the supervised agent subprocess and
// where its event log lands. The engine treats these as opaque values to
// hand to the OS; it never interprets the command line itself.
type AgentConfig struct {
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	WorkDir    string            `yaml:"work_dir"`
	Env        map[string]string `yaml:"env"`
	ResumeFlag string            `yaml:"resume_flag"`
	LogPath    string            `yaml:"log_path"`
	LockName   string            `yaml:"lock_name"`
}

type SupervisorConfig struct {
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a Config populated with defaults. Load starts from this
// so a partial YAML file only overrides what it mentions.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Engine: EngineConfig{
			PollInterval:      500 * time.Millisecond,
			SnapshotInterval:  5 * time.Second,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Agent: AgentConfig{
			Command:    "claude",
			ResumeFlag: "--resume",
			LockName:   "agent",
		},
		Supervisor: SupervisorConfig{
			StopTimeout: 10 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Dir:     "archive",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
