package migrate

import (
	"errors"
	"strings"

	"github.com/nrvault/memtask/internal/storeerr"
)

// Preview reports what Apply would do without touching the
// filesystem: it runs the same validation Apply runs first, then
// summarizes the moves for an operator-facing dry run.
type Preview struct {
	OperationID string
	WouldMove   int
	WouldCreate []string
	WouldDelete []string
	Issues      []string // non-empty only when validation would fail
}

// Preview runs plan through the same checks Apply would, without
// acquiring a lock or touching disk, for a "what would this do" view.
func (e *Engine) Preview(plan Plan) *Preview {
	p := &Preview{
		OperationID: plan.OperationID,
		WouldMove:   len(plan.Moves),
		WouldCreate: plan.Creates,
		WouldDelete: plan.Deletes,
	}
	if err := validate(plan); err != nil {
		var se *storeerr.Error
		if errors.As(err, &se) {
			p.Issues = strings.Split(se.Reason, "; ")
		} else {
			p.Issues = []string{err.Error()}
		}
	}
	return p
}
