package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripsBodySections(t *testing.T) {
	tk := &Task{
		ID:       "t1",
		Serial:   "T-1",
		Title:    "Ship the thing",
		Level:    LevelTask,
		Status:   StatusTodo,
		Priority: PriorityMedium,
		Body:     "Some background on why this exists.",
		AcceptanceCriteria: []ChecklistItem{
			{Position: 1, Text: "works offline"},
			{Position: 2, Text: "passes review", Completed: true},
		},
		TechnicalRequirements: []string{"Go 1.22+", "no new external services"},
		Checklist: []ChecklistItem{
			{Position: 1, Text: "write tests", Completed: true},
			{Position: 2, Text: "update docs"},
		},
		ContextRefs: []string{"internal/task/store.go", "spec.md §6"},
	}

	raw, err := encode(tk)
	require.NoError(t, err)

	got, err := decode(raw)
	require.NoError(t, err)

	require.Equal(t, tk.Body, got.Body)
	require.Equal(t, tk.AcceptanceCriteria, got.AcceptanceCriteria)
	require.Equal(t, tk.TechnicalRequirements, got.TechnicalRequirements)
	require.Equal(t, tk.Checklist, got.Checklist)
	require.Equal(t, tk.ContextRefs, got.ContextRefs)
}

func TestDecodeAcceptsSectionsInAnyOrder(t *testing.T) {
	raw := []byte("---\nid: t2\nserial: \"T-2\"\ntitle: Reordered\nlevel: task\nstatus: todo\npriority: medium\n---\n" +
		"## Context\n- README.md\n\n" +
		"## Checklist\n- [x] done item\n- [ ] pending item\n\n" +
		"## Acceptance Criteria\n- [ ] criterion one\n")

	got, err := decode(raw)
	require.NoError(t, err)

	require.Equal(t, []string{"README.md"}, got.ContextRefs)
	require.Len(t, got.Checklist, 2)
	require.True(t, got.Checklist[0].Completed)
	require.False(t, got.Checklist[1].Completed)
	require.Len(t, got.AcceptanceCriteria, 1)
	require.Equal(t, "criterion one", got.AcceptanceCriteria[0].Text)
}

func TestEncodeOmitsEmptySections(t *testing.T) {
	tk := &Task{ID: "t3", Serial: "T-3", Title: "Minimal", Level: LevelTask, Status: StatusTodo, Priority: PriorityMedium}

	raw, err := encode(tk)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "## Checklist")
	require.NotContains(t, string(raw), "## Acceptance Criteria")
}
