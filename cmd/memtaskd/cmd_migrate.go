package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrvault/memtask/internal/config"
	"github.com/nrvault/memtask/internal/index"
	"github.com/nrvault/memtask/internal/migrate"
	"github.com/nrvault/memtask/internal/pathmgr"
	"github.com/nrvault/memtask/internal/task"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move task files onto the semantic path layout (spec.md §4.7)",
}

var migrateToSemanticCmd = &cobra.Command{
	Use:   "to-semantic",
	Short: "Relocate every task file still at a non-semantic path",
	RunE:  runMigrateToSemantic,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report how much of the tree has migrated to the semantic layout",
	RunE:  runMigrateStatus,
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback <manifest-path>",
	Short: "Undo one migration operation using its manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrateRollback,
}

func init() {
	migrateCmd.AddCommand(migrateToSemanticCmd, migrateStatusCmd, migrateRollbackCmd)
}

// openSemanticManager opens a fresh task store and index for a
// one-shot CLI invocation and wires them into a semanticManager. The
// caller owns the returned index and must Close it.
func openSemanticManager(cfg *config.Config) (*semanticManager, *index.Index, error) {
	taskStore, err := task.Open(cfg.TasksRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("open task store: %w", err)
	}
	idx, err := index.Open(cfg.IndexPath, cfg.TasksRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}
	paths := pathmgr.New(pathmgr.DetectPlatform())
	migrator := migrate.New(cfg.TasksRoot, migrate.Config{
		LockTimeoutSec: cfg.Migration.LockTimeoutSec,
		MaxRetries:     cfg.Migration.MaxRetries,
		BackupDir:      cfg.Migration.BackupDir,
		TempDir:        cfg.Migration.TempDir,
	})
	return newSemanticManager(taskStore, paths, migrator, idx), idx, nil
}

func runMigrateToSemantic(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, idx, err := openSemanticManager(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	result, err := mgr.MigrateToSemantic()
	if err != nil {
		return fmt.Errorf("migrate to semantic: %w", err)
	}
	if result.ManifestPath == "" {
		fmt.Println("already fully migrated, nothing to do")
		return nil
	}
	fmt.Printf("migrated %d task files (manifest: %s)\n", result.Applied, result.ManifestPath)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, idx, err := openSemanticManager(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	st, err := mgr.Status()
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	fmt.Printf("total=%d migrated=%d pending=%d percent=%.1f mixed=%v\n",
		st.Total, st.Migrated, st.Pending, st.Percent, st.MixedState)
	return nil
}

func runMigrateRollback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, idx, err := openSemanticManager(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	result, err := mgr.RollbackMigration(args[0])
	if err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	fmt.Printf("rolled back %d task files\n", result.Applied)
	return nil
}
