package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrvault/memtask/internal/task"
)

func TestFullSyncIndexesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	ts, err := task.Open(dir)
	require.NoError(t, err)

	root, err := ts.Create(task.Task{Title: "Root", Level: task.LevelMaster})
	require.NoError(t, err)
	_, err = ts.Create(task.Task{Title: "Child", Level: task.LevelEpic, ParentID: root.ID})
	require.NoError(t, err)

	ix, err := Open(filepath.Join(dir, "index.db"), dir)
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.FullSync())

	row, err := ix.GetByID(root.ID)
	require.NoError(t, err)
	require.Equal(t, "Root", row.Title)

	children, err := ix.ListChildren(root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestFullSyncDeletesOrphanRows(t *testing.T) {
	dir := t.TempDir()
	ts, err := task.Open(dir)
	require.NoError(t, err)

	root, err := ts.Create(task.Task{Title: "Root", Level: task.LevelMaster})
	require.NoError(t, err)

	ix, err := Open(filepath.Join(dir, "index.db"), dir)
	require.NoError(t, err)
	defer ix.Close()
	require.NoError(t, ix.FullSync())

	require.NoError(t, ts.Delete(root.ID))
	require.NoError(t, ix.FullSync())

	_, err = ix.GetByID(root.ID)
	require.Error(t, err)
}

func TestApplyBatchUpsertsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	ts, err := task.Open(dir)
	require.NoError(t, err)

	root, err := ts.Create(task.Task{Title: "Root", Level: task.LevelMaster})
	require.NoError(t, err)

	ix, err := Open(filepath.Join(dir, "index.db"), dir)
	require.NoError(t, err)
	defer ix.Close()

	fullPath := filepath.Join(dir, root.FilePath)
	require.NoError(t, ix.ApplyBatch([]Event{{Path: fullPath, Kind: EventAdd}}))

	row, err := ix.GetByID(root.ID)
	require.NoError(t, err)
	require.Equal(t, "Root", row.Title)

	require.NoError(t, ts.Delete(root.ID))
	require.NoError(t, ix.ApplyBatch([]Event{{Path: fullPath, Kind: EventDelete}}))

	_, err = ix.GetByID(root.ID)
	require.Error(t, err)
}

func TestListByStatusAndProject(t *testing.T) {
	dir := t.TempDir()
	ts, err := task.Open(dir)
	require.NoError(t, err)

	_, err = ts.Create(task.Task{Title: "A", Level: task.LevelMaster, Status: task.StatusDone, Project: "alpha"})
	require.NoError(t, err)
	_, err = ts.Create(task.Task{Title: "B", Level: task.LevelMaster, Status: task.StatusTodo, Project: "beta"})
	require.NoError(t, err)

	ix, err := Open(filepath.Join(dir, "index.db"), dir)
	require.NoError(t, err)
	defer ix.Close()
	require.NoError(t, ix.FullSync())

	done, err := ix.ListByStatus("done")
	require.NoError(t, err)
	require.Len(t, done, 1)

	alpha, err := ix.ListByProject("alpha")
	require.NoError(t, err)
	require.Len(t, alpha, 1)
}

func TestListSubtreeUsesPathPrefix(t *testing.T) {
	dir := t.TempDir()
	ts, err := task.Open(dir)
	require.NoError(t, err)

	root, err := ts.Create(task.Task{Title: "Root", Level: task.LevelMaster})
	require.NoError(t, err)
	epic, err := ts.Create(task.Task{Title: "Epic", Level: task.LevelEpic, ParentID: root.ID})
	require.NoError(t, err)
	_, err = ts.Create(task.Task{Title: "Leaf", Level: task.LevelTask, ParentID: epic.ID})
	require.NoError(t, err)

	ix, err := Open(filepath.Join(dir, "index.db"), dir)
	require.NoError(t, err)
	defer ix.Close()
	require.NoError(t, ix.FullSync())

	sub, err := ix.ListSubtree(root.Path)
	require.NoError(t, err)
	require.Len(t, sub, 3)
}
