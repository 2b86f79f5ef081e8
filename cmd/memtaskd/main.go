// Package main implements memtaskd, the CLI entry point for the
// memory/task hybrid store.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, init()
//   - cmd_serve.go   - serveCmd: watcher + broadcaster + change-protocol listener
//   - cmd_sync.go    - syncCmd: one-shot full index sync
//   - cmd_migrate.go - migrateCmd: to-semantic, status, rollback
//   - cmd_status.go  - statusCmd: store/index/migration summary
//   - semantic.go    - semantic hybrid task manager glue (spec.md §4.7)
//   - protocol.go    - dashboard change-protocol frame types
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nrvault/memtask/internal/config"
	"github.com/nrvault/memtask/internal/logging"
)

var (
	configPath string
	rootDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "memtaskd",
	Short: "memtaskd - hybrid file+index memory and task store",
	Long: `memtaskd is the store/indexer/watcher daemon behind the memory and
task filesystem: every memory and task is a human-editable file, mirrored
into a SQLite index for fast query, kept live by a debounced file watcher.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(rootDir)
		if err != nil {
			return fmt.Errorf("resolve root dir: %w", err)
		}
		rootDir = abs

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		settings := logging.Settings{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}
		if verbose {
			settings.Level = "debug"
		}
		if err := logging.Initialize(rootDir, settings); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "Store root directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: <root>/.memtask/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd, syncCmd, migrateCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective config path and loads it, applying
// config.Load's env > persisted-file > defaults precedence.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(rootDir, ".memtask", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.MemoriesRoot) {
		cfg.MemoriesRoot = filepath.Join(rootDir, cfg.MemoriesRoot)
	}
	if !filepath.IsAbs(cfg.TasksRoot) {
		cfg.TasksRoot = filepath.Join(rootDir, cfg.TasksRoot)
	}
	if !filepath.IsAbs(cfg.IndexPath) {
		cfg.IndexPath = filepath.Join(rootDir, cfg.IndexPath)
	}
	return cfg, nil
}
