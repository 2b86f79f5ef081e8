// Package linker maintains the symmetric task<->memory relation of
// spec.md §4.9: on memory create, scan existing tasks for keyword
// overlap and record the connection on both sides; on task create, run
// the symmetric scan over memories. Linking is best-effort and
// idempotent — a failure here is logged, never propagated back to
// block the create that triggered it.
package linker

import (
	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/memory"
	"github.com/nrvault/memtask/internal/task"
)

// DefaultThreshold is the overlap score at or above which a link is recorded.
const DefaultThreshold = 0.3

// Linker ties together a task store and a memory store. Neither store
// depends on the other; Linker is the only place that imports both.
type Linker struct {
	tasks     *task.Store
	memories  *memory.Store
	threshold float64
}

// New builds a Linker. threshold <= 0 uses DefaultThreshold.
func New(tasks *task.Store, memories *memory.Store, threshold float64) *Linker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Linker{tasks: tasks, memories: memories, threshold: threshold}
}

// LinkMemory scans every task in m's project (or every task, if m has
// no project) for overlap with m and links the ones that clear the
// threshold. Call this after a successful memory write.
func (l *Linker) LinkMemory(m *memory.Memory) {
	tasks, err := l.tasks.List(m.Project, "")
	if err != nil {
		logging.Get(logging.CategoryLinker).Warn("link memory %s: listing tasks failed: %v", m.ID, err)
		return
	}
	mKeywords := keywordsForMemory(m)
	for _, t := range tasks {
		if overlapScore(mKeywords, keywordsForTask(t), m.Project, t.Project) < l.threshold {
			continue
		}
		if err := l.link(t, m); err != nil {
			logging.Get(logging.CategoryLinker).Warn("link memory %s <-> task %s failed: %v", m.ID, t.ID, err)
		}
	}
}

// LinkTask is the symmetric scan triggered on task create. Call this
// after a successful task write.
func (l *Linker) LinkTask(t *task.Task) {
	memories, err := l.memories.List(t.Project, 0)
	if err != nil {
		logging.Get(logging.CategoryLinker).Warn("link task %s: listing memories failed: %v", t.ID, err)
		return
	}
	tKeywords := keywordsForTask(t)
	for _, m := range memories {
		if overlapScore(tKeywords, keywordsForMemory(m), t.Project, m.Project) < l.threshold {
			continue
		}
		if err := l.link(t, m); err != nil {
			logging.Get(logging.CategoryLinker).Warn("link task %s <-> memory %s failed: %v", t.ID, m.ID, err)
		}
	}
}

// link records the connection on both sides, idempotently: an id
// already present on either side is left alone.
func (l *Linker) link(t *task.Task, m *memory.Memory) error {
	if !contains(t.LinkedMemories, m.ID) {
		if _, err := l.tasks.Update(t.ID, func(tt *task.Task) {
			if !contains(tt.LinkedMemories, m.ID) {
				tt.LinkedMemories = append(tt.LinkedMemories, m.ID)
			}
		}); err != nil {
			return err
		}
	}

	fresh, err := l.memories.Get(m.Path)
	if err != nil {
		return err
	}
	if contains(fresh.LinkedTasks, t.ID) {
		return nil
	}
	fresh.LinkedTasks = append(fresh.LinkedTasks, t.ID)
	_, err = l.memories.Update(*fresh)
	return err
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
