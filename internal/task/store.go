// store.go implements CRUD and the four hierarchy invariants of
// spec.md §4.2 over a directory of task files. The store keeps an
// in-memory registry rebuilt from disk on open, mirroring the
// file-is-source-of-truth discipline internal/index applies at a
// larger scale (spec.md §4.3) but scoped to what hierarchy operations
// need: parent/child lookups and path bookkeeping.
package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/storeerr"
)

// Store is the hierarchy-aware task registry, file-backed at base.
type Store struct {
	base string

	mu       sync.Mutex
	tasks    map[string]*Task   // id -> task
	children map[string][]string // parent id ("" for roots) -> ordered child ids
	serial   int
}

// Open scans base for existing task files and rebuilds the in-memory
// hierarchy registry, analogous to internal/index's full sync
// (spec.md §4.3) but held in process memory rather than SQLite.
func Open(base string) (*Store, error) {
	s := &Store{
		base:     base,
		tasks:    make(map[string]*Task),
		children: make(map[string][]string),
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.IO, base, err)
	}

	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		t, decErr := decode(raw)
		if decErr != nil {
			logging.Get(logging.CategoryTask).Warn("open: skipping unparsable file %s: %v", path, decErr)
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		t.FilePath = rel
		s.tasks[t.ID] = t
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(storeerr.IO, base, err)
	}

	s.rebuildChildren()
	s.serial = len(s.tasks)
	return s, nil
}

func (s *Store) rebuildChildren() {
	s.children = make(map[string][]string)
	for _, t := range s.tasks {
		s.children[t.ParentID] = append(s.children[t.ParentID], t.ID)
	}
	for parent, ids := range s.children {
		sort.Slice(ids, func(i, j int) bool {
			return s.tasks[ids[i]].PathOrder < s.tasks[ids[j]].PathOrder
		})
		s.children[parent] = ids
	}
}

// Root returns the directory the store persists task files under.
func (s *Store) Root() string { return s.base }

// ByFilePath returns the task whose FilePath matches rel, the
// store-relative path the watcher and index both key events by.
// NotFound if nothing in the registry currently claims that path.
func (s *Store) ByFilePath(rel string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.FilePath == rel {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storeerr.New(storeerr.NotFound, rel, "")
}

func zeropad(n int) string { return fmt.Sprintf("%03d", n) }

func (s *Store) nextSerial() string {
	s.serial++
	return fmt.Sprintf("T-%d", s.serial)
}

// filePathFor computes a new task's flat-mode path (spec.md §6):
// "<project>/task-<id>.md", relative to the store root. Tasks with no
// project land directly under the root, same filename shape.
func (s *Store) filePathFor(t *Task) string {
	name := "task-" + t.ID + ".md"
	if t.Project != "" {
		return filepath.Join(t.Project, name)
	}
	return name
}

func (s *Store) persist(t *Task) error {
	full := filepath.Join(s.base, t.FilePath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return storeerr.Wrap(storeerr.IO, t.FilePath, err)
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return storeerr.Wrap(storeerr.IO, t.FilePath, err)
	}
	return nil
}

// siblingClaiming reports the id of a sibling under parentID that
// already has the given materialized path, if any. The ordinal used
// to compute path is derived purely from in-memory counts, so this
// catches the registry disagreeing with itself rather than a real
// filesystem race (Store serializes all CRUD under s.mu).
func (s *Store) siblingClaiming(parentID, path string) (string, bool) {
	for _, sibID := range s.children[parentID] {
		if sib, ok := s.tasks[sibID]; ok && sib.Path == path {
			return sib.ID, true
		}
	}
	return "", false
}

// checkPathCollision is the Create-time form of siblingClaiming,
// guarding the sibling-ordinal invariant (spec.md §4.2) for a task not
// yet in the registry.
func (s *Store) checkPathCollision(t *Task) error {
	if sib, ok := s.siblingClaiming(t.ParentID, t.Path); ok {
		return storeerr.New(storeerr.SiblingConflict, t.ID, fmt.Sprintf("sibling %s already claims path %s", sib, t.Path))
	}
	return nil
}

// checkDiskMismatch guards against the registry's view of base
// disagreeing with what's actually on disk: a file already sitting at
// the path a task is about to be written to, that the in-memory
// registry has no record of (spec.md §4.2's "IndexMismatch" failure
// mode).
func (s *Store) checkDiskMismatch(t *Task) error {
	full := filepath.Join(s.base, t.FilePath)
	if _, err := os.Stat(full); err == nil {
		return storeerr.New(storeerr.IndexMismatch, t.FilePath, "a file already exists at this path outside the in-memory registry")
	}
	return nil
}

func (s *Store) appendActivity(t *Task, action, detail, actor string) {
	t.Activity = append(t.Activity, ActivityRecord{
		Action:    action,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
	})
}

// Create inserts a new task under parentID ("" for a root), computing
// its path_order and materialized path per spec.md §4.2.
func (s *Store) Create(t Task) (*Task, error) {
	timer := logging.StartTimer(logging.CategoryTask, "create")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if migrationInProgress(s.base) {
		return nil, storeerr.New(storeerr.MigrationInProgress, s.base, "a migration is in progress")
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Serial == "" {
		t.Serial = s.nextSerial()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	t.CompletionPercentage = clampCompletion(initialCompletion(t.Status))

	if t.ParentID != "" {
		parent, ok := s.tasks[t.ParentID]
		if !ok {
			return nil, storeerr.New(storeerr.NotFound, t.ParentID, "parent task not found")
		}
		depth := strings.Count(parent.Path, ".") + 2
		if depth > MaxDepth {
			return nil, storeerr.New(storeerr.DepthExceeded, t.ID, fmt.Sprintf("depth %d exceeds maximum of %d", depth, MaxDepth))
		}
		t.PathOrder = len(s.children[t.ParentID]) + 1
		t.Path = parent.Path + "." + zeropad(t.PathOrder)
	} else {
		t.PathOrder = len(s.children[""]) + 1
		t.Path = zeropad(t.PathOrder)
	}

	t.FilePath = s.filePathFor(&t)
	if err := s.checkPathCollision(&t); err != nil {
		return nil, err
	}
	if err := s.checkDiskMismatch(&t); err != nil {
		return nil, err
	}
	s.appendActivity(&t, "create", "", "")

	if err := s.persist(&t); err != nil {
		return nil, err
	}

	s.tasks[t.ID] = &t
	s.children[t.ParentID] = append(s.children[t.ParentID], t.ID)
	logging.Get(logging.CategoryTask).Debug("created task %s at path %s", t.ID, t.Path)
	return &t, nil
}

// Get retrieves a task by id.
func (s *Store) Get(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, storeerr.New(storeerr.NotFound, id, "")
	}
	cp := *t
	return &cp, nil
}

// ListChildren returns id's direct children in sibling order.
func (s *Store) ListChildren(id string) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, childID := range s.children[id] {
		cp := *s.tasks[childID]
		out = append(out, &cp)
	}
	return out, nil
}

// List returns every task matching the optional project/status filter.
func (s *Store) List(project string, status Status) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, t := range s.tasks {
		if project != "" && t.Project != project {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Update applies mutate to the task with the given id and rewrites
// the task file. Only non-hierarchy fields may change here;
// use Move to reparent.
func (s *Store) Update(id string, mutate func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if migrationInProgress(s.base) {
		return nil, storeerr.New(storeerr.MigrationInProgress, s.base, "a migration is in progress")
	}

	t, ok := s.tasks[id]
	if !ok {
		return nil, storeerr.New(storeerr.NotFound, id, "")
	}
	mutate(t)
	t.UpdatedAt = time.Now().UTC()
	t.CompletionPercentage = clampCompletion(t.CompletionPercentage)
	s.appendActivity(t, "update", "", "")

	if err := s.persist(t); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

// isDescendant reports whether candidateID's path is within ancestorID's subtree.
func (s *Store) isDescendant(ancestorID, candidateID string) bool {
	ancestor, ok := s.tasks[ancestorID]
	if !ok {
		return false
	}
	candidate, ok := s.tasks[candidateID]
	if !ok {
		return false
	}
	return candidate.Path == ancestor.Path || strings.HasPrefix(candidate.Path, ancestor.Path+".")
}

// Move reparents task id under newParentID (""  for root), rejecting
// cycles, recomputing the materialized path for the task and every
// descendant (spec.md §4.2).
func (s *Store) Move(id, newParentID string) (*Task, error) {
	timer := logging.StartTimer(logging.CategoryTask, "move")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if migrationInProgress(s.base) {
		return nil, storeerr.New(storeerr.MigrationInProgress, s.base, "a migration is in progress")
	}

	t, ok := s.tasks[id]
	if !ok {
		return nil, storeerr.New(storeerr.NotFound, id, "")
	}

	if newParentID == id || s.isDescendant(id, newParentID) {
		return nil, storeerr.New(storeerr.Cycle, id, "new parent is the task or one of its descendants")
	}

	var newPathPrefix string
	if newParentID != "" {
		newParent, ok := s.tasks[newParentID]
		if !ok {
			return nil, storeerr.New(storeerr.NotFound, newParentID, "new parent task not found")
		}
		depth := strings.Count(newParent.Path, ".") + 2
		if depth > MaxDepth {
			return nil, storeerr.New(storeerr.DepthExceeded, id, fmt.Sprintf("depth %d exceeds maximum of %d", depth, MaxDepth))
		}
		newOrder := len(s.children[newParentID]) + 1
		newPathPrefix = newParent.Path + "." + zeropad(newOrder)
		t.PathOrder = newOrder
	} else {
		newOrder := len(s.children[""]) + 1
		newPathPrefix = zeropad(newOrder)
		t.PathOrder = newOrder
	}
	if sib, ok := s.siblingClaiming(newParentID, newPathPrefix); ok {
		return nil, storeerr.New(storeerr.SiblingConflict, id, fmt.Sprintf("sibling %s already claims path %s", sib, newPathPrefix))
	}

	oldPath := t.Path
	oldParentID := t.ParentID

	// Remove from old parent's child list.
	s.children[oldParentID] = removeID(s.children[oldParentID], id)

	t.Path = newPathPrefix
	t.ParentID = newParentID
	t.UpdatedAt = time.Now().UTC()
	s.appendActivity(t, "move", fmt.Sprintf(`{"from":%q,"to":%q}`, oldPath, newPathPrefix), "")
	if err := s.persist(t); err != nil {
		return nil, err
	}
	s.children[newParentID] = append(s.children[newParentID], id)

	// Rewrite every descendant's materialized path, preserving subtree order.
	for _, other := range s.tasks {
		if other.ID == id {
			continue
		}
		if strings.HasPrefix(other.Path, oldPath+".") {
			other.Path = newPathPrefix + strings.TrimPrefix(other.Path, oldPath)
			other.UpdatedAt = time.Now().UTC()
			if err := s.persist(other); err != nil {
				return nil, err
			}
		}
	}

	cp := *t
	return &cp, nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Delete removes task id and every descendant, cascading dependencies,
// checklist, and activity (which are owned fields on the task itself,
// so removing the task file removes them; see spec.md §4.2).
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if migrationInProgress(s.base) {
		return storeerr.New(storeerr.MigrationInProgress, s.base, "a migration is in progress")
	}

	t, ok := s.tasks[id]
	if !ok {
		return storeerr.New(storeerr.NotFound, id, "")
	}

	var toDelete []string
	for otherID, other := range s.tasks {
		if otherID == id || other.Path == t.Path || strings.HasPrefix(other.Path, t.Path+".") {
			toDelete = append(toDelete, otherID)
		}
	}

	for _, delID := range toDelete {
		victim := s.tasks[delID]
		full := filepath.Join(s.base, victim.FilePath)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return storeerr.Wrap(storeerr.IO, victim.FilePath, err)
		}
		s.children[victim.ParentID] = removeID(s.children[victim.ParentID], delID)
		delete(s.children, delID)
		delete(s.tasks, delID)
	}
	return nil
}

// AddDependency records a dependency edge on the source task. Edges
// are not required to be acyclic (spec.md §4.2).
func (s *Store) AddDependency(sourceID, targetID string, kind DependencyKind) (*Task, error) {
	if kind == "" {
		kind = DependencyKindFinishToStart
	}
	return s.Update(sourceID, func(t *Task) {
		t.Dependencies = append(t.Dependencies, Dependency{
			Source:    sourceID,
			Target:    targetID,
			Kind:      kind,
			CreatedAt: time.Now().UTC(),
		})
	})
}

// AddChecklistItem appends an ordered checklist row to task id.
func (s *Store) AddChecklistItem(id, text string) (*Task, error) {
	return s.Update(id, func(t *Task) {
		t.Checklist = append(t.Checklist, ChecklistItem{
			Position: len(t.Checklist) + 1,
			Text:     text,
		})
	})
}

// ToggleChecklistItem flips the completed flag of the checklist item
// at position (1-based).
func (s *Store) ToggleChecklistItem(id string, position int) (*Task, error) {
	return s.Update(id, func(t *Task) {
		for i := range t.Checklist {
			if t.Checklist[i].Position == position {
				t.Checklist[i].Completed = !t.Checklist[i].Completed
			}
		}
	})
}

// Activity returns task id's append-only activity log.
func (s *Store) Activity(id string) ([]ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, storeerr.New(storeerr.NotFound, id, "")
	}
	out := make([]ActivityRecord, len(t.Activity))
	copy(out, t.Activity)
	return out, nil
}

// MarshalDetail is a small helper for building Activity detail blobs
// from arbitrary values without importing encoding/json at call sites.
func MarshalDetail(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
