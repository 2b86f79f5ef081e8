package migrate

import (
	"fmt"
	"os"
	"strings"

	"github.com/nrvault/memtask/internal/storeerr"
)

// validate checks a plan before anything touches disk (spec.md §4.6
// step 2): every OldPath must exist, every NewPath must not already
// exist, and destinations must be pairwise distinct. All issues are
// collected before returning so a caller sees the whole picture at
// once rather than one failure at a time.
func validate(plan Plan) error {
	var issues []string
	seen := make(map[string]bool, len(plan.Moves))

	for _, mv := range plan.Moves {
		if mv.OldPath == "" || mv.NewPath == "" {
			issues = append(issues, "move has an empty path")
			continue
		}
		if _, err := os.Lstat(mv.OldPath); err != nil {
			issues = append(issues, fmt.Sprintf("source missing: %s", mv.OldPath))
		}
		if _, err := os.Lstat(mv.NewPath); err == nil {
			issues = append(issues, fmt.Sprintf("destination already exists: %s", mv.NewPath))
		}
		if seen[mv.NewPath] {
			issues = append(issues, fmt.Sprintf("destination used by more than one move: %s", mv.NewPath))
		}
		seen[mv.NewPath] = true
	}

	if len(issues) > 0 {
		return storeerr.New(storeerr.ValidationFailed, plan.OperationID, strings.Join(issues, "; "))
	}
	return nil
}
