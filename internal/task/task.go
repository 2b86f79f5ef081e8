// Package task implements the task hierarchy store (spec.md §4.2): a
// forest of tasks rooted at master-level nodes, each persisted as one
// file with a materialized path maintained by this package. internal/index
// mirrors the forest into a queryable relational projection.
package task

import "time"

// Level is a task's position in the master->epic->task->subtask
// hierarchy (spec.md §3).
type Level string

const (
	LevelMaster  Level = "master"
	LevelEpic    Level = "epic"
	LevelTask    Level = "task"
	LevelSubtask Level = "subtask"
)

// MaxDepth is the hierarchy's invariant depth ceiling (spec.md §3.1).
const MaxDepth = 4

// Status is a task's lifecycle state.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Priority mirrors the memory store's priority scale.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ChecklistItem is one ordered, owned checklist row (spec.md §3).
type ChecklistItem struct {
	Position  int    `yaml:"position"`
	Text      string `yaml:"text"`
	Completed bool   `yaml:"completed"`
}

// DependencyKind names the relationship a Dependency edge represents.
type DependencyKind string

// DependencyKindFinishToStart is the default edge kind (spec.md §3).
const DependencyKindFinishToStart DependencyKind = "finish-to-start"

// Dependency is a directed task -> task edge (spec.md §3). Source and
// Target hold task ids; edges do not have to be acyclic (spec.md §4.2).
type Dependency struct {
	Source    string         `yaml:"source"`
	Target    string         `yaml:"target"`
	Kind      DependencyKind `yaml:"kind"`
	CreatedAt time.Time      `yaml:"created_at"`
}

// ActivityRecord is one append-only entry in a task's activity log
// (spec.md §3, §4.2). Create, Update and Move each append one record to
// the task they act on; Delete appends none, since it removes the task
// file that holds the log.
type ActivityRecord struct {
	Action    string    `yaml:"action"`
	Detail    string    `yaml:"detail,omitempty"` // JSON-encoded detail blob
	Timestamp time.Time `yaml:"timestamp"`
	Actor     string    `yaml:"actor,omitempty"`
}

// Task is one node in the hierarchy (spec.md §3).
type Task struct {
	ID     string `yaml:"id"`
	Serial string `yaml:"serial"` // human-friendly sequence number, e.g. "T-42"

	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Level       Level  `yaml:"level"`
	ParentID    string `yaml:"parent_id,omitempty"`

	Path      string `yaml:"path"`       // materialized path, e.g. "001.003.002"
	PathOrder int    `yaml:"path_order"` // ordinal among siblings, 1-based

	Status   Status   `yaml:"status"`
	Project  string   `yaml:"project,omitempty"`
	Priority Priority `yaml:"priority"`

	CreatedAt time.Time  `yaml:"created_at"`
	UpdatedAt time.Time  `yaml:"updated_at"`
	DueDate   *time.Time `yaml:"due_date,omitempty"`

	EstimatedHours       float64 `yaml:"estimated_hours,omitempty"`
	ActualHours          float64 `yaml:"actual_hours,omitempty"`
	CompletionPercentage int     `yaml:"completion_percentage"`
	Assignee             string  `yaml:"assignee,omitempty"`

	Tags           []string          `yaml:"tags,omitempty"`
	Dependencies   []Dependency      `yaml:"dependencies,omitempty"`
	Activity       []ActivityRecord  `yaml:"activity,omitempty"`
	LinkedMemories []string          `yaml:"linked_memories,omitempty"`
	Metadata       map[string]string `yaml:"metadata,omitempty"`

	SemanticPath string `yaml:"semantic_path,omitempty"`

	// Checklist and the three fields below it round-trip through the
	// body's structured markdown sections (spec.md §6), not the YAML
	// header: "## Acceptance Criteria", "## Technical Requirements",
	// "## Checklist", "## Context". They never touch the header.
	Checklist             []ChecklistItem `yaml:"-"`
	AcceptanceCriteria    []ChecklistItem `yaml:"-"`
	TechnicalRequirements []string        `yaml:"-"`
	ContextRefs           []string        `yaml:"-"`

	// Body is the free-form text preceding the first structured
	// section, distinct from the short header Description.
	Body string `yaml:"-"`

	// FilePath is the on-disk location relative to the tasks root.
	// Distinct from Path, which is the materialized hierarchy path.
	FilePath string `yaml:"-"`

	extra map[string]interface{}
}

// initialCompletion implements spec.md §4.2's default completion
// percentage by status when a task is first created.
func initialCompletion(status Status) int {
	switch status {
	case StatusDone:
		return 100
	case StatusInProgress:
		return 25
	default:
		return 0
	}
}

func clampCompletion(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
