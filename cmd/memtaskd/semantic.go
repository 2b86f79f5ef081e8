package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/nrvault/memtask/internal/index"
	"github.com/nrvault/memtask/internal/migrate"
	"github.com/nrvault/memtask/internal/pathmgr"
	"github.com/nrvault/memtask/internal/task"
)

// semanticManager is the spec.md §4.7 glue: task.Store owns the
// hierarchy, pathmgr computes where each task's file belongs, and
// migrate.Engine moves the bytes there atomically. None of those three
// packages import each other for this; only the CLI wires them
// together, keeping the declared pathmgr -> memory -> index -> task ->
// migrate package order intact.
type semanticManager struct {
	tasks    *task.Store
	paths    *pathmgr.Manager
	migrator *migrate.Engine
	idx      *index.Index
}

func newSemanticManager(tasks *task.Store, paths *pathmgr.Manager, migrator *migrate.Engine, idx *index.Index) *semanticManager {
	return &semanticManager{tasks: tasks, paths: paths, migrator: migrator, idx: idx}
}

// semanticFilePath computes the path t's file belongs at under a fully
// semantic layout: one directory component per ancestor (root first,
// t itself last), the file named task-<id>.md inside the deepest one
// (spec.md §6: "<root>/<ord>-PROJECT-<slug>-<hash>/.../task-<id>.md").
func (g *semanticManager) semanticFilePath(t *task.Task) (string, error) {
	chain, err := g.ancestorChain(t)
	if err != nil {
		return "", err
	}

	var dir string
	for _, node := range chain {
		level, err := pathmgr.DirLevelForTaskLevel(string(node.Level))
		if err != nil {
			return "", err
		}
		dir = g.paths.FullPath(dir, g.paths.Component(node.PathOrder, level, node.Title, node.ID))
	}
	if err := g.paths.Validate(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("task-%s.md", t.ID)), nil
}

// ancestorChain walks ParentID up to the root and returns the chain
// root-first, t last.
func (g *semanticManager) ancestorChain(t *task.Task) ([]*task.Task, error) {
	chain := []*task.Task{t}
	cur := t
	for cur.ParentID != "" {
		parent, err := g.tasks.Get(cur.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		cur = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// subtree returns every descendant of id, breadth-first, in no
// particular sibling order.
func (g *semanticManager) subtree(id string) ([]*task.Task, error) {
	var out []*task.Task
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := g.tasks.ListChildren(cur)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// planFor builds the migration plan moving every task in roots whose
// current FilePath doesn't match its computed semantic path.
func (g *semanticManager) planFor(opID string, roots []*task.Task) (migrate.Plan, []*task.Task, error) {
	plan := migrate.Plan{OperationID: opID, CreatedAt: time.Now().UTC()}
	var touched []*task.Task
	dirSet := make(map[string]bool)

	for _, t := range roots {
		newRel, err := g.semanticFilePath(t)
		if err != nil {
			return plan, nil, fmt.Errorf("compute semantic path for task %s: %w", t.ID, err)
		}
		oldFull := filepath.Join(g.tasks.Root(), t.FilePath)
		newFull := filepath.Join(g.tasks.Root(), newRel)
		if oldFull == newFull {
			continue
		}
		plan.Moves = append(plan.Moves, migrate.Move{OldPath: oldFull, NewPath: newFull, TaskID: t.ID})
		dirSet[filepath.Dir(newFull)] = true
		touched = append(touched, t)
	}
	for d := range dirSet {
		plan.Creates = append(plan.Creates, d)
	}
	return plan, touched, nil
}

// applyAndRecord executes plan, then rewrites each touched task's
// FilePath/SemanticPath to match where the engine actually put it and
// resyncs the index so semantic_path lands in the same logical update
// as the move (spec.md §4.7).
func (g *semanticManager) applyAndRecord(plan migrate.Plan, touched []*task.Task) (*migrate.Result, error) {
	if len(plan.Moves) == 0 {
		return &migrate.Result{OperationID: plan.OperationID}, nil
	}

	result, err := g.migrator.Apply(plan)
	if err != nil {
		return nil, err
	}

	newRelByID := make(map[string]string, len(plan.Moves))
	for _, mv := range plan.Moves {
		rel, relErr := filepath.Rel(g.tasks.Root(), mv.NewPath)
		if relErr != nil {
			rel = mv.NewPath
		}
		newRelByID[mv.TaskID] = rel
	}

	for _, t := range touched {
		newRel, ok := newRelByID[t.ID]
		if !ok {
			continue
		}
		semanticDir := filepath.ToSlash(filepath.Dir(newRel))
		if _, err := g.tasks.Update(t.ID, func(tt *task.Task) {
			tt.FilePath = newRel
			tt.SemanticPath = semanticDir
		}); err != nil {
			return result, fmt.Errorf("record migrated path for task %s: %w", t.ID, err)
		}
	}

	if g.idx != nil {
		if err := g.idx.FullSync(); err != nil {
			return result, fmt.Errorf("resync index after migration: %w", err)
		}
	}
	return result, nil
}

// ReparentSemantic reparents taskID under newParentID via the task
// store's hierarchy invariants, then migrates that task and every
// descendant (whose materialized paths just changed too) to their
// recomputed semantic locations in a single plan.
func (g *semanticManager) ReparentSemantic(taskID, newParentID string) (*task.Task, *migrate.Result, error) {
	if _, err := g.tasks.Move(taskID, newParentID); err != nil {
		return nil, nil, err
	}

	t, err := g.tasks.Get(taskID)
	if err != nil {
		return nil, nil, err
	}
	descendants, err := g.subtree(taskID)
	if err != nil {
		return nil, nil, err
	}
	roots := append([]*task.Task{t}, descendants...)

	plan, touched, err := g.planFor(fmt.Sprintf("reparent-%s-%d", taskID, time.Now().UTC().UnixNano()), roots)
	if err != nil {
		return nil, nil, err
	}
	result, err := g.applyAndRecord(plan, touched)
	if err != nil {
		return nil, nil, err
	}

	t, err = g.tasks.Get(taskID)
	return t, result, err
}

// MigrateToSemantic walks every task and relocates any still at a
// non-semantic path in one plan (spec.md §4.7's migrate_to_semantic).
func (g *semanticManager) MigrateToSemantic() (*migrate.Result, error) {
	all, err := g.tasks.List("", "")
	if err != nil {
		return nil, err
	}
	plan, touched, err := g.planFor(fmt.Sprintf("migrate-to-semantic-%d", time.Now().UTC().UnixNano()), all)
	if err != nil {
		return nil, err
	}
	return g.applyAndRecord(plan, touched)
}

// MigrationStatus reports spec.md §4.7's migration_status() shape.
type MigrationStatus struct {
	Total      int
	Migrated   int
	Pending    int
	Percent    float64
	MixedState bool
}

// Status compares every task's current FilePath against its computed
// semantic path to report how much of the tree has migrated.
func (g *semanticManager) Status() (MigrationStatus, error) {
	all, err := g.tasks.List("", "")
	if err != nil {
		return MigrationStatus{}, err
	}

	var st MigrationStatus
	st.Total = len(all)
	for _, t := range all {
		want, err := g.semanticFilePath(t)
		if err != nil {
			return MigrationStatus{}, fmt.Errorf("compute semantic path for task %s: %w", t.ID, err)
		}
		if t.FilePath == want {
			st.Migrated++
		}
	}
	st.Pending = st.Total - st.Migrated
	if st.Total > 0 {
		st.Percent = float64(st.Migrated) / float64(st.Total) * 100
	}
	st.MixedState = st.Migrated > 0 && st.Pending > 0
	return st, nil
}

// RollbackMigration reads the manifest at manifestPath, restores the
// original files via the migration engine, then clears the semantic
// bookkeeping (FilePath/SemanticPath) on every task the manifest
// names, reverting them to their pre-migration location (spec.md
// §4.7: "rollback_migration ... clears semantic paths").
func (g *semanticManager) RollbackMigration(manifestPath string) (*migrate.Result, error) {
	manifest, err := migrate.ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	result, err := g.migrator.Rollback(manifestPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range manifest.Entries {
		if entry.TaskID == "" {
			continue
		}
		originalRel, relErr := filepath.Rel(g.tasks.Root(), entry.Original)
		if relErr != nil {
			continue
		}
		if _, err := g.tasks.Update(entry.TaskID, func(tt *task.Task) {
			tt.FilePath = originalRel
			tt.SemanticPath = ""
		}); err != nil {
			return result, fmt.Errorf("clear semantic path for task %s: %w", entry.TaskID, err)
		}
	}

	if g.idx != nil {
		if err := g.idx.FullSync(); err != nil {
			return result, fmt.Errorf("resync index after rollback: %w", err)
		}
	}
	return result, nil
}
