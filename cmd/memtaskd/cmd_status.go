package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nrvault/memtask/internal/memory"
	"github.com/nrvault/memtask/internal/task"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a summary of the task/memory store and migration state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	taskStore, err := task.Open(cfg.TasksRoot)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	tasks, err := taskStore.List("", "")
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	memStore := memory.New(cfg.MemoriesRoot)
	memories, err := memStore.List("", 0)
	if err != nil {
		return fmt.Errorf("list memories: %w", err)
	}

	mgr, idx, err := openSemanticManager(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	migStatus, err := mgr.Status()
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}

	fmt.Printf("tasks:     %s\n", humanize.Comma(int64(len(tasks))))
	fmt.Printf("memories:  %s\n", humanize.Comma(int64(len(memories))))
	fmt.Printf("migration: %s/%s semantic (%.1f%%), mixed=%v\n",
		humanize.Comma(int64(migStatus.Migrated)), humanize.Comma(int64(migStatus.Total)), migStatus.Percent, migStatus.MixedState)
	fmt.Printf("roots:     tasks=%s memories=%s index=%s\n", cfg.TasksRoot, cfg.MemoriesRoot, cfg.IndexPath)
	return nil
}
