package task

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrvault/memtask/internal/storeerr"
)

func TestCreateRootAssignsPath(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	task, err := s.Create(Task{Title: "Project Alpha", Level: LevelMaster})
	require.NoError(t, err)
	require.Equal(t, "001", task.Path)
	require.Equal(t, 1, task.PathOrder)
	require.NotEmpty(t, task.ID)
}

func TestCreateChildComputesPath(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	root, err := s.Create(Task{Title: "Project", Level: LevelMaster})
	require.NoError(t, err)

	child, err := s.Create(Task{Title: "Epic One", Level: LevelEpic, ParentID: root.ID})
	require.NoError(t, err)
	require.Equal(t, "001.001", child.Path)

	sibling, err := s.Create(Task{Title: "Epic Two", Level: LevelEpic, ParentID: root.ID})
	require.NoError(t, err)
	require.Equal(t, "001.002", sibling.Path)
}

func TestCreateRejectsDepthExceeded(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	master, err := s.Create(Task{Title: "M", Level: LevelMaster})
	require.NoError(t, err)
	epic, err := s.Create(Task{Title: "E", Level: LevelEpic, ParentID: master.ID})
	require.NoError(t, err)
	sub, err := s.Create(Task{Title: "T", Level: LevelTask, ParentID: epic.ID})
	require.NoError(t, err)
	subtask, err := s.Create(Task{Title: "S", Level: LevelSubtask, ParentID: sub.ID})
	require.NoError(t, err)

	_, err = s.Create(Task{Title: "Too deep", Level: LevelSubtask, ParentID: subtask.ID})
	require.Error(t, err)
	require.Equal(t, storeerr.DepthExceeded, storeerr.KindOf(err))
}

func TestMoveRejectsCycle(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	root, err := s.Create(Task{Title: "Root", Level: LevelMaster})
	require.NoError(t, err)
	child, err := s.Create(Task{Title: "Child", Level: LevelEpic, ParentID: root.ID})
	require.NoError(t, err)

	_, err = s.Move(root.ID, child.ID)
	require.Error(t, err)
	require.Equal(t, storeerr.Cycle, storeerr.KindOf(err))
}

func TestMoveRewritesDescendantPaths(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	rootA, err := s.Create(Task{Title: "A", Level: LevelMaster})
	require.NoError(t, err)
	rootB, err := s.Create(Task{Title: "B", Level: LevelMaster})
	require.NoError(t, err)
	epic, err := s.Create(Task{Title: "Epic", Level: LevelEpic, ParentID: rootA.ID})
	require.NoError(t, err)
	leaf, err := s.Create(Task{Title: "Leaf", Level: LevelTask, ParentID: epic.ID})
	require.NoError(t, err)

	moved, err := s.Move(epic.ID, rootB.ID)
	require.NoError(t, err)
	require.Equal(t, "002.001", moved.Path)

	updatedLeaf, err := s.Get(leaf.ID)
	require.NoError(t, err)
	require.Equal(t, "002.001.001", updatedLeaf.Path)
}

func TestDeleteCascadesDescendants(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	root, err := s.Create(Task{Title: "Root", Level: LevelMaster})
	require.NoError(t, err)
	child, err := s.Create(Task{Title: "Child", Level: LevelEpic, ParentID: root.ID})
	require.NoError(t, err)

	require.NoError(t, s.Delete(root.ID))

	_, err = s.Get(root.ID)
	require.Error(t, err)
	_, err = s.Get(child.ID)
	require.Error(t, err)
}

func TestInitialCompletionByStatus(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	done, err := s.Create(Task{Title: "Done", Level: LevelMaster, Status: StatusDone})
	require.NoError(t, err)
	require.Equal(t, 100, done.CompletionPercentage)

	inProgress, err := s.Create(Task{Title: "WIP", Level: LevelMaster, Status: StatusInProgress})
	require.NoError(t, err)
	require.Equal(t, 25, inProgress.CompletionPercentage)

	todo, err := s.Create(Task{Title: "Todo", Level: LevelMaster, Status: StatusTodo})
	require.NoError(t, err)
	require.Equal(t, 0, todo.CompletionPercentage)
}

func TestChecklistAndDependencies(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	root, err := s.Create(Task{Title: "Root", Level: LevelMaster})
	require.NoError(t, err)
	other, err := s.Create(Task{Title: "Other", Level: LevelMaster})
	require.NoError(t, err)

	updated, err := s.AddChecklistItem(root.ID, "write tests")
	require.NoError(t, err)
	require.Len(t, updated.Checklist, 1)

	updated, err = s.ToggleChecklistItem(root.ID, 1)
	require.NoError(t, err)
	require.True(t, updated.Checklist[0].Completed)

	updated, err = s.AddDependency(root.ID, other.ID, "")
	require.NoError(t, err)
	require.Len(t, updated.Dependencies, 1)
	require.Equal(t, DependencyKindFinishToStart, updated.Dependencies[0].Kind)
}

func TestActivityLogAppendsOnEachMutation(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	root, err := s.Create(Task{Title: "Root", Level: LevelMaster})
	require.NoError(t, err)

	_, err = s.AddChecklistItem(root.ID, "step 1")
	require.NoError(t, err)

	log, err := s.Activity(root.ID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, "create", log[0].Action)
	require.Equal(t, "update", log[1].Action)
}

func TestOpenRebuildsFromExistingFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	root, err := s.Create(Task{Title: "Root", Level: LevelMaster})
	require.NoError(t, err)
	_, err = s.Create(Task{Title: "Child", Level: LevelEpic, ParentID: root.ID})
	require.NoError(t, err)

	reopened, err := Open(dir)
	require.NoError(t, err)

	list, err := reopened.List("", "")
	require.NoError(t, err)
	require.Len(t, list, 2)
}
