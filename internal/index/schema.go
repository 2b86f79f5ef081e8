// Package index mirrors the task filesystem tree into an embedded
// SQLite database for fast query (spec.md §4.3): the file is always
// the source of truth; the index is a rebuildable cache kept coherent
// by full syncs and steady-state upserts from internal/watcher.
package index

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL,
	parent_id TEXT,
	path TEXT NOT NULL,
	path_order INTEGER NOT NULL,
	status TEXT NOT NULL,
	project TEXT DEFAULT '',
	priority TEXT NOT NULL,
	metadata_json TEXT DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	due_date DATETIME,
	estimated_hours REAL DEFAULT 0,
	actual_hours REAL DEFAULT 0,
	completion_percentage INTEGER DEFAULT 0,
	assignee TEXT DEFAULT '',
	tags_json TEXT DEFAULT '[]',
	semantic_path TEXT,
	file_path TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_path ON tasks(path);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project);
CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee);
CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);

CREATE TABLE IF NOT EXISTS task_dependencies (
	task_id TEXT NOT NULL,
	depends_on_task_id TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'finish-to-start',
	created_at DATETIME NOT NULL,
	PRIMARY KEY (task_id, depends_on_task_id),
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
	FOREIGN KEY (depends_on_task_id) REFERENCES tasks(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_deps_depends_on ON task_dependencies(depends_on_task_id);

CREATE TABLE IF NOT EXISTS task_checklist (
	task_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	item_text TEXT NOT NULL,
	is_completed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (task_id, position),
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS task_activity (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	action TEXT NOT NULL,
	detail TEXT DEFAULT '',
	actor TEXT DEFAULT '',
	created_at DATETIME NOT NULL,
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_activity_task ON task_activity(task_id);
`
