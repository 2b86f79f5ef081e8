// Package memory implements the document store (spec.md §4.1): each
// memory is a single human-editable file with a structured header
// followed by free-form body text. The file is the source of truth;
// internal/index mirrors it for fast query.
package memory

import "time"

// Priority mirrors a task's priority scale for consistency across the
// memory and task stores.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Status is the lifecycle state of a memory document.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusRef      Status = "reference"
)

// Category is the closed enum of memory categories (spec.md §3). Empty
// string means uncategorized.
type Category string

const (
	CategoryPersonal      Category = "personal"
	CategoryWork          Category = "work"
	CategoryCode          Category = "code"
	CategoryResearch      Category = "research"
	CategoryConversations Category = "conversations"
	CategoryPreferences   Category = "preferences"
)

// ContentType is the derived shape of a memory's body (spec.md §4.1.1).
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentCode       ContentType = "code"
	ContentStructured ContentType = "structured"
)

// Metadata is the nested header block holding derived/auxiliary fields
// that don't belong at the top level of the header.
type Metadata struct {
	ContentType    ContentType `yaml:"content_type,omitempty"`
	Language       string      `yaml:"language,omitempty"`
	Size           int         `yaml:"size,omitempty"`
	MermaidDiagram bool        `yaml:"mermaid_diagram,omitempty"`
}

// Memory is one document: a structured header plus a body (spec.md §3).
type Memory struct {
	ID              string    `yaml:"id"`
	Timestamp       time.Time `yaml:"timestamp"`
	Complexity      int       `yaml:"complexity,omitempty"`
	Category        Category  `yaml:"category,omitempty"`
	Project         string    `yaml:"project,omitempty"`
	Tags            []string  `yaml:"tags,omitempty"`
	Priority        Priority  `yaml:"priority,omitempty"`
	Status          Status    `yaml:"status,omitempty"`
	RelatedMemories []string  `yaml:"related_memories,omitempty"`
	LinkedTasks     []string  `yaml:"linked_tasks,omitempty"`
	AccessCount     int       `yaml:"access_count"`
	LastAccessed    time.Time `yaml:"last_accessed,omitempty"`
	Metadata        Metadata  `yaml:"metadata,omitempty"`

	Body string `yaml:"-"`

	// Path is the file's location relative to the store's base directory.
	// Empty for a not-yet-written memory.
	Path string `yaml:"-"`

	// extra carries header keys this version of memtask doesn't
	// recognize, so round-tripping a file written by a newer client
	// doesn't silently drop them (spec.md §4.1: "unknown keys are
	// preserved on round-trip").
	extra map[string]interface{}
}

// applyDefaults fills the reader-side defaults spec.md §4.1 mandates
// for fields a writer omitted.
func (m *Memory) applyDefaults() {
	if m.Complexity == 0 {
		m.Complexity = 1
	}
	if m.Priority == "" {
		m.Priority = PriorityMedium
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
}
