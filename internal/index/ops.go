package index

import (
	"database/sql"

	"github.com/nrvault/memtask/internal/storeerr"
)

// upsertTx writes one row plus its child rows (dependencies, checklist,
// activity) inside an already-open transaction. Child tables are
// replaced wholesale since the file is the source of truth for all of
// a task's state, not just its top-level columns.
func upsertTx(tx *sql.Tx, r *Row) error {
	var parentID interface{}
	if r.ParentID != "" {
		parentID = r.ParentID
	}
	var dueDate interface{}
	if r.DueDate != nil {
		dueDate = *r.DueDate
	}
	var semanticPath interface{}
	if r.SemanticPath != "" {
		semanticPath = r.SemanticPath
	}

	_, err := tx.Exec(`
		INSERT INTO tasks (id, title, description, level, parent_id, path, path_order,
			status, project, priority, metadata_json, created_at, updated_at, due_date,
			estimated_hours, actual_hours, completion_percentage, assignee, tags_json, semantic_path, file_path)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, description=excluded.description, level=excluded.level,
			parent_id=excluded.parent_id, path=excluded.path, path_order=excluded.path_order,
			status=excluded.status, project=excluded.project, priority=excluded.priority,
			metadata_json=excluded.metadata_json, updated_at=excluded.updated_at,
			due_date=excluded.due_date, estimated_hours=excluded.estimated_hours,
			actual_hours=excluded.actual_hours, completion_percentage=excluded.completion_percentage,
			assignee=excluded.assignee, tags_json=excluded.tags_json, semantic_path=excluded.semantic_path,
			file_path=excluded.file_path
	`, r.ID, r.Title, r.Description, r.Level, parentID, r.Path, r.PathOrder,
		r.Status, r.Project, r.Priority, marshalJSON(r.Metadata), r.CreatedAt, r.UpdatedAt, dueDate,
		r.EstimatedHours, r.ActualHours, r.CompletionPercentage, r.Assignee, marshalJSON(r.Tags), semanticPath, r.FilePath)
	if err != nil {
		return storeerr.Wrap(storeerr.IO, r.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM task_dependencies WHERE task_id = ?`, r.ID); err != nil {
		return storeerr.Wrap(storeerr.IO, r.ID, err)
	}
	for _, d := range r.Dependencies {
		if _, err := tx.Exec(`
			INSERT INTO task_dependencies (task_id, depends_on_task_id, kind, created_at)
			VALUES (?,?,?,?)
			ON CONFLICT(task_id, depends_on_task_id) DO UPDATE SET kind=excluded.kind
		`, r.ID, d.Target, d.Kind, d.CreatedAt); err != nil {
			return storeerr.Wrap(storeerr.IO, r.ID, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM task_checklist WHERE task_id = ?`, r.ID); err != nil {
		return storeerr.Wrap(storeerr.IO, r.ID, err)
	}
	for _, c := range r.Checklist {
		completed := 0
		if c.Completed {
			completed = 1
		}
		if _, err := tx.Exec(`
			INSERT INTO task_checklist (task_id, position, item_text, is_completed)
			VALUES (?,?,?,?)
		`, r.ID, c.Position, c.Text, completed); err != nil {
			return storeerr.Wrap(storeerr.IO, r.ID, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM task_activity WHERE task_id = ?`, r.ID); err != nil {
		return storeerr.Wrap(storeerr.IO, r.ID, err)
	}
	for _, a := range r.Activity {
		if _, err := tx.Exec(`
			INSERT INTO task_activity (task_id, action, detail, actor, created_at)
			VALUES (?,?,?,?,?)
		`, r.ID, a.Action, a.Detail, a.Actor, a.Timestamp); err != nil {
			return storeerr.Wrap(storeerr.IO, r.ID, err)
		}
	}

	return nil
}

// existingFilePath returns the file_path currently on record for id,
// or "" if id isn't indexed yet.
func existingFilePath(tx *sql.Tx, id string) (string, error) {
	var path string
	err := tx.QueryRow(`SELECT file_path FROM tasks WHERE id = ?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storeerr.Wrap(storeerr.IO, id, err)
	}
	return path, nil
}

// checkIDConflict enforces the hybrid store's one-row-per-id invariant
// (spec.md §4.3): claimed tracks the first path seen for an id within
// the current sync pass, seeded from whatever the database already
// has on record. A second, different path claiming the same id is
// rejected with IntegrityViolation and the first-seen row is left
// untouched; claimed is left unmodified so later rows keep losing to
// the same first-seen path.
func checkIDConflict(tx *sql.Tx, claimed map[string]string, id, path string) error {
	if prior, ok := claimed[id]; ok {
		if prior == path {
			return nil
		}
		return storeerr.New(storeerr.IntegrityViolation, path, "id "+id+" already claimed by "+prior)
	}
	existing, err := existingFilePath(tx, id)
	if err != nil {
		return err
	}
	if existing != "" && existing != path {
		return storeerr.New(storeerr.IntegrityViolation, path, "id "+id+" already claimed by "+existing)
	}
	claimed[id] = path
	return nil
}

// Upsert indexes a single row outside of a batch (used by the task
// store for a same-transaction-as-write-path call when it isn't
// routing through the watcher).
func (ix *Index) Upsert(r *Row) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return storeerr.Wrap(storeerr.IO, r.ID, err)
	}
	defer tx.Rollback()
	if err := upsertTx(tx, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeerr.Wrap(storeerr.IO, r.ID, err)
	}
	return nil
}

// Delete removes id's row and cascades to its child tables via FK
// ON DELETE CASCADE.
func (ix *Index) Delete(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, err := ix.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return storeerr.Wrap(storeerr.IO, id, err)
	}
	return nil
}
