// Package migrate executes filesystem reorganizations atomically
// (spec.md §4.6): either a plan is fully applied and verified, or the
// working tree ends up indistinguishable from its pre-operation state.
package migrate

import "time"

// Move is one planned relocation: an existing file at OldPath moves to
// NewPath, which must not already exist. TaskID is carried through for
// the backup manifest only; migrate has no notion of what a task is.
type Move struct {
	OldPath string
	NewPath string
	TaskID  string
}

// Plan is a migration unit of work (spec.md §3's "Migration plan"):
// moves, directories to create, and directories to clean up afterward.
type Plan struct {
	OperationID string
	CreatedAt   time.Time
	Moves       []Move
	Creates     []string // directories to create, any order; sorted by depth before execution
	Deletes     []string // directories to remove if empty after the moves land
}

// ManifestEntry records one move's backup location for rollback.
// NewPath is the destination the move landed at (if it landed); a
// rollback must remove whatever ended up there before restoring
// Original from Backup (spec.md §4.6 step 9), or the tree ends up with
// the file duplicated at both paths.
type ManifestEntry struct {
	Original string `json:"original"`
	NewPath  string `json:"new_path"`
	Backup   string `json:"backup"`
	TaskID   string `json:"task_id"`
}

// Manifest is the JSON backup manifest written during step 3 of the
// protocol and read back by Rollback.
type Manifest struct {
	OperationID string           `json:"operation_id"`
	CreatedAt   time.Time        `json:"created_at"`
	BackupDir   string           `json:"backup_dir"`
	Entries     []ManifestEntry  `json:"entries"`
}

// Result summarizes a completed (or rolled-back) migration run.
type Result struct {
	OperationID  string
	Applied      int
	RolledBack   bool
	ManifestPath string
}
