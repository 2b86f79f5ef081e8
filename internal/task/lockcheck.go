package task

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// migrationLockPayload mirrors internal/migrate's on-disk lock file
// contents. It is duplicated here rather than imported: internal/migrate
// never imports internal/task (see DESIGN.md's layering note), and a
// lock file's path and shape is a filesystem contract, not a Go API,
// so reading it back doesn't require taking on the package.
type migrationLockPayload struct {
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

// migrationLockStaleAfter matches spec.md §4.6 step 1's 5-minute
// staleness window, after which a held lock is assumed abandoned.
const migrationLockStaleAfter = 5 * time.Minute

// migrationInProgress reports whether an active (non-stale) migration
// lock is held under base. internal/task.Store has no visibility into
// which specific paths a migration plan touches, so a held lock
// refuses every CRUD call rather than only the ones overlapping the
// plan (spec.md §5's narrower guarantee, approximated conservatively).
func migrationInProgress(base string) bool {
	raw, err := os.ReadFile(filepath.Join(base, ".migration.lock"))
	if err != nil {
		return false
	}
	var payload migrationLockPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return false
	}
	return time.Since(payload.Timestamp) < migrationLockStaleAfter
}
