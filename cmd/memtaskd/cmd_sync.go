package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrvault/memtask/internal/index"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot full reindex of the task store",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	idx, err := index.Open(cfg.IndexPath, cfg.TasksRoot)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	if err := idx.FullSync(); err != nil {
		return fmt.Errorf("full sync: %w", err)
	}

	fmt.Println("sync complete")
	return nil
}
