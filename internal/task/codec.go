package task

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nrvault/memtask/internal/storeerr"
)

const sentinel = "---"

var knownHeaderKeys = map[string]bool{
	"id": true, "serial": true, "title": true, "description": true,
	"level": true, "parent_id": true, "path": true, "path_order": true,
	"status": true, "project": true, "priority": true, "created_at": true,
	"updated_at": true, "due_date": true, "estimated_hours": true,
	"actual_hours": true, "completion_percentage": true, "assignee": true,
	"tags": true, "dependencies": true, "activity": true,
	"linked_memories": true, "metadata": true, "semantic_path": true,
}

// Body section headings, written in this order (spec.md §6) and
// accepted by the parser in any order.
const (
	headingAcceptanceCriteria    = "## Acceptance Criteria"
	headingTechnicalRequirements = "## Technical Requirements"
	headingChecklist             = "## Checklist"
	headingContext               = "## Context"
)

var bodyHeadings = []string{
	headingAcceptanceCriteria, headingTechnicalRequirements, headingChecklist, headingContext,
}

var (
	checklistLineRe = regexp.MustCompile(`^-\s*\[([ xX])\]\s*(.*)$`)
	bulletLineRe    = regexp.MustCompile(`^-\s+(.*)$`)
)

// splitBodySections separates the leading free-form description from
// the structured sections spec.md §6 defines. Sections are recognized
// by heading regardless of order; everything before the first
// recognized heading is the description.
func splitBodySections(raw string) (description string, sections map[string][]string) {
	sections = make(map[string][]string)
	heading := ""
	var descLines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if isBodyHeading(trimmed) {
			heading = trimmed
			continue
		}
		if heading == "" {
			descLines = append(descLines, line)
			continue
		}
		sections[heading] = append(sections[heading], line)
	}
	return strings.TrimSpace(strings.Join(descLines, "\n")), sections
}

func isBodyHeading(line string) bool {
	for _, h := range bodyHeadings {
		if line == h {
			return true
		}
	}
	return false
}

// parseChecklistLines reads "- [ ] text" / "- [x] text" rows into
// ordered checklist items, skipping anything that doesn't match.
func parseChecklistLines(lines []string) []ChecklistItem {
	var items []ChecklistItem
	for _, line := range lines {
		m := checklistLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		items = append(items, ChecklistItem{
			Position:  len(items) + 1,
			Text:      strings.TrimSpace(m[2]),
			Completed: strings.EqualFold(m[1], "x"),
		})
	}
	return items
}

// parseBulletLines reads "- text" rows into a plain string list.
func parseBulletLines(lines []string) []string {
	var items []string
	for _, line := range lines {
		m := bulletLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		items = append(items, strings.TrimSpace(m[1]))
	}
	return items
}

// renderBody writes the leading description followed by each
// structured section present on t, in spec.md §6's fixed order.
func renderBody(t *Task) string {
	var b strings.Builder
	if t.Body != "" {
		b.WriteString(strings.TrimRight(t.Body, "\n"))
		b.WriteString("\n")
	}
	writeChecklistSection(&b, headingAcceptanceCriteria, t.AcceptanceCriteria)
	writeBulletSection(&b, headingTechnicalRequirements, t.TechnicalRequirements)
	writeChecklistSection(&b, headingChecklist, t.Checklist)
	writeBulletSection(&b, headingContext, t.ContextRefs)
	return b.String()
}

func writeChecklistSection(b *strings.Builder, heading string, items []ChecklistItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(heading)
	b.WriteString("\n")
	for _, it := range items {
		mark := " "
		if it.Completed {
			mark = "x"
		}
		fmt.Fprintf(b, "- [%s] %s\n", mark, it.Text)
	}
}

func writeBulletSection(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(heading)
	b.WriteString("\n")
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

// decode parses a task file's raw bytes: a sentinel-delimited YAML
// header (same codec idiom as internal/memory) followed by a
// free-form description/notes body.
func decode(raw []byte) (*Task, error) {
	text := string(raw)
	lines := strings.Split(text, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != sentinel {
		return nil, storeerr.New(storeerr.ParseHeader, "", "missing opening sentinel")
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == sentinel {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, storeerr.New(storeerr.ParseHeader, "", "missing closing sentinel")
	}

	headerBlock := strings.Join(lines[1:end], "\n")
	body := strings.TrimPrefix(strings.Join(lines[end+1:], "\n"), "\n")

	var rawMap map[string]interface{}
	if err := yaml.Unmarshal([]byte(headerBlock), &rawMap); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, "", err)
	}

	var t Task
	if err := yaml.Unmarshal([]byte(headerBlock), &t); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, "", err)
	}

	description, sections := splitBodySections(body)
	t.Body = description
	t.AcceptanceCriteria = parseChecklistLines(sections[headingAcceptanceCriteria])
	t.TechnicalRequirements = parseBulletLines(sections[headingTechnicalRequirements])
	t.Checklist = parseChecklistLines(sections[headingChecklist])
	t.ContextRefs = parseBulletLines(sections[headingContext])

	t.extra = make(map[string]interface{})
	for k, v := range rawMap {
		if !knownHeaderKeys[k] {
			t.extra[k] = v
		}
	}
	return &t, nil
}

// encode serializes t back into sentinel-delimited header + body form.
func encode(t *Task) ([]byte, error) {
	headerBytes, err := yaml.Marshal(t)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.ParseBody, t.ID, err)
	}
	headerMap := map[string]interface{}{}
	if err := yaml.Unmarshal(headerBytes, &headerMap); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseBody, t.ID, err)
	}
	for k, v := range t.extra {
		headerMap[k] = v
	}
	finalHeader, err := yaml.Marshal(headerMap)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.ParseBody, t.ID, err)
	}

	var b strings.Builder
	b.WriteString(sentinel)
	b.WriteString("\n")
	b.Write(finalHeader)
	b.WriteString(sentinel)
	b.WriteString("\n")
	body := renderBody(t)
	if body != "" {
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}
