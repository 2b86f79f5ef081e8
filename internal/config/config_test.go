package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "./memories", cfg.MemoriesRoot)
	require.Equal(t, 250, cfg.Watcher.DebounceMS)
	require.Equal(t, 300, cfg.Migration.LockTimeoutSec)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "./tasks", cfg.TasksRoot)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.MemoriesRoot = "/var/memtask/memories"
	cfg.Watcher.DebounceMS = 500
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/memtask/memories", loaded.MemoriesRoot)
	require.Equal(t, 500, loaded.Watcher.DebounceMS)
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.MemoriesRoot = "/from/file"
	require.NoError(t, cfg.Save(path))

	t.Setenv("MEMTASK_MEMORIES_ROOT", "/from/env")
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/from/env", loaded.MemoriesRoot)
}

func TestRootsSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roots.toml")

	require.NoError(t, SaveRoots(path, Roots{MemoriesRoot: "/m", TasksRoot: "/t"}))

	r, err := LoadRoots(path)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, "/m", r.MemoriesRoot)
	require.Equal(t, "/t", r.TasksRoot)
}

func TestLoadRootsMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	r, err := LoadRoots(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestLoadWithRootsPrecedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	rootsPath := filepath.Join(dir, "roots.toml")

	cfg := DefaultConfig()
	cfg.MemoriesRoot = "/from/config"
	require.NoError(t, cfg.Save(configPath))
	require.NoError(t, SaveRoots(rootsPath, Roots{MemoriesRoot: "/from/roots"}))

	loaded, err := LoadWithRoots(configPath, rootsPath)
	require.NoError(t, err)
	require.Equal(t, "/from/roots", loaded.MemoriesRoot, "roots.toml overrides the main config file")

	t.Setenv("MEMTASK_MEMORIES_ROOT", "/from/env")
	loaded, err = LoadWithRoots(configPath, rootsPath)
	require.NoError(t, err)
	require.Equal(t, "/from/env", loaded.MemoriesRoot, "env overrides both persisted layers")
}
