package server

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	Addr     string         `yaml:"addr"`
	DBPath   string         `yaml:"db_path"`
	OwnerID  string         `yaml:"owner_id"`
	Autosave time.Duration  `yaml:"autosave_debounce"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// SnapshotConfig controls the automatic backup engine.
type SnapshotConfig struct {
	Interval time.Duration `yaml:"interval"`
	Keep     int           `yaml:"keep"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.DBPath == "" {
		c.DBPath = "skald.db"
	}
	if c.OwnerID == "" {
		c.OwnerID = "default"
	}
	if c.Autosave <= 0 {
		c.Autosave = 2 * time.Second
	}
	if c.Snapshot.Interval <= 0 {
		c.Snapshot.Interval = 10 * time.Minute
	}
	if c.Snapshot.Keep <= 0 {
		c.Snapshot.Keep = 5
	}
}

// DefaultConfig returns a config with every field at its default.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

// LoadConfigFile reads a YAML config file and fills in defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
