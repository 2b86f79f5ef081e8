// Package config holds the root configuration structure for memtask:
// storage roots, watcher/migration/broadcast/rate-limit tunables, and
// logging settings. Storage roots additionally persist to a small TOML
// sidecar (roots.toml) per the env > persisted-file > defaults
// precedence described in spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration passed at construction to the
// store, index, watcher, migration engine, and broadcaster. There is no
// global mutable singleton (spec.md §9): every component receives the
// slice of Config it needs explicitly.
type Config struct {
	MemoriesRoot string `yaml:"memories_root"`
	TasksRoot    string `yaml:"tasks_root"`
	IndexPath    string `yaml:"index_path"`

	Watcher   WatcherConfig   `yaml:"watcher"`
	Migration MigrationConfig `yaml:"migration"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WatcherConfig controls the debounce/sync pipeline (spec.md §4.4).
type WatcherConfig struct {
	DebounceMS          int  `yaml:"debounce_ms"`
	StabilityMS         int  `yaml:"stability_ms"`
	WatchMemoriesRoot    bool `yaml:"watch_memories_root"`
	PeriodicSyncCron     string `yaml:"periodic_sync_cron"` // empty disables the cron safety-net sync
}

func (w WatcherConfig) Debounce() time.Duration  { return time.Duration(w.DebounceMS) * time.Millisecond }
func (w WatcherConfig) Stability() time.Duration { return time.Duration(w.StabilityMS) * time.Millisecond }

// MigrationConfig controls the atomic folder migration engine (spec.md §4.6).
type MigrationConfig struct {
	LockTimeoutSec int    `yaml:"lock_timeout_sec"` // staleness threshold for reclaiming a lock
	MaxRetries     int    `yaml:"max_retries"`       // EBUSY retry count for the move primitive
	BackupDir      string `yaml:"backup_dir"`        // relative to TasksRoot unless absolute
	TempDir        string `yaml:"temp_dir"`          // relative to TasksRoot unless absolute
}

func (m MigrationConfig) LockTimeout() time.Duration {
	return time.Duration(m.LockTimeoutSec) * time.Second
}

// BroadcastConfig controls the change-fanout channel (spec.md §4.8).
type BroadcastConfig struct {
	Capacity           int `yaml:"capacity"`
	SubscriberTimeoutMS int `yaml:"subscriber_timeout_ms"`
}

func (b BroadcastConfig) SubscriberTimeout() time.Duration {
	return time.Duration(b.SubscriberTimeoutMS) * time.Millisecond
}

// RateLimitConfig controls automation-trigger rate limiting (spec.md §5).
type RateLimitConfig struct {
	TokensPerSecond float64 `yaml:"tokens_per_second"`
	Burst           int     `yaml:"burst"`
	PerKeyDebounceMS int    `yaml:"per_key_debounce_ms"`
}

func (r RateLimitConfig) PerKeyDebounce() time.Duration {
	return time.Duration(r.PerKeyDebounceMS) * time.Millisecond
}

// LoggingConfig mirrors logging.Settings in YAML-serializable form.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the baseline configuration used when no config
// file is present.
func DefaultConfig() *Config {
	return &Config{
		MemoriesRoot: "./memories",
		TasksRoot:    "./tasks",
		IndexPath:    "./tasks/semantic-tasks.db",

		Watcher: WatcherConfig{
			DebounceMS:       250,
			StabilityMS:      500,
			WatchMemoriesRoot: true,
		},

		Migration: MigrationConfig{
			LockTimeoutSec: 300, // 5 minutes, spec.md §4.6 step 1
			MaxRetries:     3,
			BackupDir:      ".backups",
			TempDir:        ".temp",
		},

		Broadcast: BroadcastConfig{
			Capacity:            256,
			SubscriberTimeoutMS: 2000,
		},

		RateLimit: RateLimitConfig{
			TokensPerSecond:  5,
			Burst:            10,
			PerKeyDebounceMS: 1000,
		},

		Logging: LoggingConfig{
			DebugMode:  false,
			Level:      "info",
			JSONFormat: true,
		},
	}
}

// Load reads a YAML config file at path, falling back to defaults if
// the file doesn't exist, then applies environment-variable overrides.
// Precedence: env > persisted file > defaults (spec.md §6).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as YAML to path, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies the highest-precedence layer: process
// environment variables, each only overriding when set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMTASK_MEMORIES_ROOT"); v != "" {
		c.MemoriesRoot = v
	}
	if v := os.Getenv("MEMTASK_TASKS_ROOT"); v != "" {
		c.TasksRoot = v
	}
	if v := os.Getenv("MEMTASK_INDEX_PATH"); v != "" {
		c.IndexPath = v
	}
	if v := os.Getenv("MEMTASK_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// Roots is the minimal persisted-configuration-file layer (spec.md
// §6): just the storage roots, saved separately from the main YAML
// config so changing them doesn't require rewriting the whole file.
type Roots struct {
	MemoriesRoot string `toml:"memories_root"`
	TasksRoot    string `toml:"tasks_root"`
}

// LoadRoots reads the roots.toml sidecar. Returns (nil, nil) if absent.
func LoadRoots(path string) (*Roots, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read roots %s: %w", path, err)
	}
	var r Roots
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("config: parse roots %s: %w", path, err)
	}
	return &r, nil
}

// SaveRoots writes the roots.toml sidecar.
func SaveRoots(path string, r Roots) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

// ApplyRoots merges a Roots sidecar into cfg when the sidecar's fields
// are set and env vars didn't already win (Load applies env after this
// is expected to run, so callers should call ApplyRoots before the
// final env pass if they want env to have the last word; LoadWithRoots
// does this for the common case).
func (c *Config) ApplyRoots(r *Roots) {
	if r == nil {
		return
	}
	if r.MemoriesRoot != "" {
		c.MemoriesRoot = r.MemoriesRoot
	}
	if r.TasksRoot != "" {
		c.TasksRoot = r.TasksRoot
	}
}

// LoadWithRoots loads the main YAML config, merges the roots.toml
// sidecar (if present), then applies env overrides last so the
// documented precedence (env > persisted file > defaults) holds even
// though there are two persisted-file layers.
func LoadWithRoots(configPath, rootsPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
		// defaults stand
	default:
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	roots, err := LoadRoots(rootsPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyRoots(roots)

	cfg.applyEnvOverrides()
	return cfg, nil
}
