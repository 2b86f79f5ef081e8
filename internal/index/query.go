package index

import (
	"database/sql"

	"github.com/nrvault/memtask/internal/storeerr"
)

// GetByID returns one row, or NotFound if no task with that id is indexed.
func (ix *Index) GetByID(id string) (*Row, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	r, err := scanRow(ix.db.QueryRow(`
		SELECT id, title, description, level, COALESCE(parent_id,''), path, path_order,
			status, project, priority, created_at, updated_at, due_date, estimated_hours,
			actual_hours, completion_percentage, assignee, COALESCE(semantic_path,'')
		FROM tasks WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, storeerr.New(storeerr.NotFound, id, "")
	}
	if err != nil {
		return nil, storeerr.Wrap(storeerr.IO, id, err)
	}
	return r, nil
}

func scanRow(row *sql.Row) (*Row, error) {
	var r Row
	var due sql.NullTime
	err := row.Scan(&r.ID, &r.Title, &r.Description, &r.Level, &r.ParentID, &r.Path,
		&r.PathOrder, &r.Status, &r.Project, &r.Priority, &r.CreatedAt, &r.UpdatedAt,
		&due, &r.EstimatedHours, &r.ActualHours, &r.CompletionPercentage, &r.Assignee, &r.SemanticPath)
	if err != nil {
		return nil, err
	}
	if due.Valid {
		r.DueDate = &due.Time
	}
	return &r, nil
}

// ListByStatus returns every indexed task with the given status.
func (ix *Index) ListByStatus(status string) ([]*Row, error) {
	return ix.query(`
		SELECT id, title, description, level, COALESCE(parent_id,''), path, path_order,
			status, project, priority, created_at, updated_at, due_date, estimated_hours,
			actual_hours, completion_percentage, assignee, COALESCE(semantic_path,'')
		FROM tasks WHERE status = ? ORDER BY path
	`, status)
}

// ListByProject returns every indexed task in project.
func (ix *Index) ListByProject(project string) ([]*Row, error) {
	return ix.query(`
		SELECT id, title, description, level, COALESCE(parent_id,''), path, path_order,
			status, project, priority, created_at, updated_at, due_date, estimated_hours,
			actual_hours, completion_percentage, assignee, COALESCE(semantic_path,'')
		FROM tasks WHERE project = ? ORDER BY path
	`, project)
}

// ListChildren returns parentID's direct children in path_order.
func (ix *Index) ListChildren(parentID string) ([]*Row, error) {
	return ix.query(`
		SELECT id, title, description, level, COALESCE(parent_id,''), path, path_order,
			status, project, priority, created_at, updated_at, due_date, estimated_hours,
			actual_hours, completion_percentage, assignee, COALESCE(semantic_path,'')
		FROM tasks WHERE parent_id = ? ORDER BY path_order
	`, parentID)
}

// ListSubtree returns every task whose path is parentPath or a
// descendant of it, cheap thanks to the index on path (spec.md §4.3).
func (ix *Index) ListSubtree(parentPath string) ([]*Row, error) {
	return ix.query(`
		SELECT id, title, description, level, COALESCE(parent_id,''), path, path_order,
			status, project, priority, created_at, updated_at, due_date, estimated_hours,
			actual_hours, completion_percentage, assignee, COALESCE(semantic_path,'')
		FROM tasks WHERE path = ? OR path LIKE ? ORDER BY path
	`, parentPath, parentPath+".%")
}

func (ix *Index) query(q string, args ...interface{}) ([]*Row, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.Query(q, args...)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.IO, "", err)
	}
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		var r Row
		var due sql.NullTime
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.Level, &r.ParentID, &r.Path,
			&r.PathOrder, &r.Status, &r.Project, &r.Priority, &r.CreatedAt, &r.UpdatedAt,
			&due, &r.EstimatedHours, &r.ActualHours, &r.CompletionPercentage, &r.Assignee, &r.SemanticPath); err != nil {
			return nil, storeerr.Wrap(storeerr.IO, "", err)
		}
		if due.Valid {
			r.DueDate = &due.Time
		}
		out = append(out, &r)
	}
	return out, nil
}
