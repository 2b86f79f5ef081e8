package index

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nrvault/memtask/internal/storeerr"
)

// Row is the column-level projection of a task file (spec.md §4.3's
// schema sketch). The index only ever needs these fields, so it
// parses files with its own minimal header decode rather than
// depending on internal/task's richer Task type.
type Row struct {
	ID                   string
	Title                string
	Description          string
	Level                string
	ParentID             string
	Path                 string
	PathOrder            int
	Status               string
	Project              string
	Priority             string
	Metadata             map[string]string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DueDate              *time.Time
	EstimatedHours       float64
	ActualHours          float64
	CompletionPercentage int
	Assignee             string
	Tags                 []string
	SemanticPath         string

	// FilePath is the store-relative path the row was read from. It is
	// not part of the file's own header; callers set it after parseRow
	// returns, since it's the one thing the file itself can't tell you.
	FilePath string

	Dependencies []rowDependency
	Checklist    []rowChecklistItem
	Activity     []rowActivity
}

type rowDependency struct {
	Target    string    `yaml:"target"`
	Kind      string    `yaml:"kind"`
	CreatedAt time.Time `yaml:"created_at"`
}

type rowChecklistItem struct {
	Position  int    `yaml:"position"`
	Text      string `yaml:"text"`
	Completed bool   `yaml:"completed"`
}

type rowActivity struct {
	Action    string    `yaml:"action"`
	Detail    string    `yaml:"detail"`
	Actor     string    `yaml:"actor"`
	Timestamp time.Time `yaml:"timestamp"`
}

// parseRow reads a task file's header block into a Row, tolerating
// the same sentinel-delimited YAML format internal/task writes.
// Parse failures are reported so the caller can log-and-skip (spec.md
// §4.3: "Parse failure logs the path and skips the row").
func parseRow(raw []byte) (*Row, error) {
	text := string(raw)
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, storeerr.New(storeerr.ParseHeader, "", "missing opening sentinel")
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, storeerr.New(storeerr.ParseHeader, "", "missing closing sentinel")
	}

	var raw_ struct {
		ID                   string             `yaml:"id"`
		Title                string             `yaml:"title"`
		Description          string             `yaml:"description"`
		Level                string             `yaml:"level"`
		ParentID             string             `yaml:"parent_id"`
		Path                 string             `yaml:"path"`
		PathOrder            int                `yaml:"path_order"`
		Status               string             `yaml:"status"`
		Project              string             `yaml:"project"`
		Priority             string             `yaml:"priority"`
		Metadata             map[string]string  `yaml:"metadata"`
		CreatedAt            time.Time          `yaml:"created_at"`
		UpdatedAt            time.Time          `yaml:"updated_at"`
		DueDate              *time.Time         `yaml:"due_date"`
		EstimatedHours       float64            `yaml:"estimated_hours"`
		ActualHours          float64            `yaml:"actual_hours"`
		CompletionPercentage int                `yaml:"completion_percentage"`
		Assignee             string             `yaml:"assignee"`
		Tags                 []string           `yaml:"tags"`
		SemanticPath         string             `yaml:"semantic_path"`
		Dependencies         []rowDependency    `yaml:"dependencies"`
		Checklist            []rowChecklistItem `yaml:"checklist"`
		Activity             []rowActivity      `yaml:"activity"`
	}

	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &raw_); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, "", err)
	}
	if raw_.ID == "" {
		return nil, storeerr.New(storeerr.ParseHeader, "", "missing id field")
	}

	checklist := raw_.Checklist
	if len(checklist) == 0 {
		body := strings.TrimPrefix(strings.Join(lines[end+1:], "\n"), "\n")
		checklist = parseBodyChecklist(body)
	}

	return &Row{
		ID: raw_.ID, Title: raw_.Title, Description: raw_.Description,
		Level: raw_.Level, ParentID: raw_.ParentID, Path: raw_.Path,
		PathOrder: raw_.PathOrder, Status: raw_.Status, Project: raw_.Project,
		Priority: raw_.Priority, Metadata: raw_.Metadata, CreatedAt: raw_.CreatedAt,
		UpdatedAt: raw_.UpdatedAt, DueDate: raw_.DueDate, EstimatedHours: raw_.EstimatedHours,
		ActualHours: raw_.ActualHours, CompletionPercentage: raw_.CompletionPercentage,
		Assignee: raw_.Assignee, Tags: raw_.Tags, SemanticPath: raw_.SemanticPath,
		Dependencies: raw_.Dependencies, Checklist: checklist, Activity: raw_.Activity,
	}, nil
}

var (
	bodyChecklistHeadingRe = regexp.MustCompile(`^## Checklist\s*$`)
	bodyChecklistLineRe    = regexp.MustCompile(`^-\s*\[([ xX])\]\s*(.*)$`)
	bodyHeadingRe          = regexp.MustCompile(`^##\s+`)
)

// parseBodyChecklist extracts the "## Checklist" section internal/task
// writes into the body (spec.md §6); the index's own header decode
// above never sees it since it no longer lives in the YAML header.
func parseBodyChecklist(body string) []rowChecklistItem {
	var items []rowChecklistItem
	inSection := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if bodyChecklistHeadingRe.MatchString(trimmed) {
			inSection = true
			continue
		}
		if bodyHeadingRe.MatchString(trimmed) {
			inSection = false
			continue
		}
		if !inSection {
			continue
		}
		m := bodyChecklistLineRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		items = append(items, rowChecklistItem{
			Position:  len(items) + 1,
			Text:      strings.TrimSpace(m[2]),
			Completed: strings.EqualFold(m[1], "x"),
		})
	}
	return items
}

func marshalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
