package watcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrvault/memtask/internal/index"
	"github.com/nrvault/memtask/internal/task"
)

func TestIndexSinkAppliesWatcherEventsToIndex(t *testing.T) {
	dir := t.TempDir()
	ts, err := task.Open(dir)
	require.NoError(t, err)
	tk, err := ts.Create(task.Task{Title: "Root", Level: task.LevelMaster})
	require.NoError(t, err)

	ix, err := index.Open(filepath.Join(dir, "index.db"), dir)
	require.NoError(t, err)
	defer ix.Close()

	sink := IndexSink(ix)
	fullPath := filepath.Join(dir, tk.FilePath)
	require.NoError(t, sink([]Event{{Path: fullPath, Kind: EventAdd}}))

	row, err := ix.GetByID(tk.ID)
	require.NoError(t, err)
	require.Equal(t, "Root", row.Title)
}
