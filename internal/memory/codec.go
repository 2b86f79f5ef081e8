package memory

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nrvault/memtask/internal/storeerr"
)

const sentinel = "---"

// knownHeaderKeys lists the header fields this version of memtask
// understands; anything else round-trips via Memory.extra.
var knownHeaderKeys = map[string]bool{
	"id": true, "timestamp": true, "complexity": true, "category": true,
	"project": true, "tags": true, "priority": true, "status": true,
	"related_memories": true, "linked_tasks": true, "access_count": true,
	"last_accessed": true, "metadata": true,
}

// decode parses a memory file's raw bytes into a Memory: a YAML header
// block delimited by sentinel lines, followed by the body (spec.md
// §4.1: "structured header ... delimited by sentinel lines").
func decode(raw []byte) (*Memory, error) {
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
	body := strings.Join(lines[end+1:], "\n")
	body = strings.TrimPrefix(body, "\n")

	var raw_ map[string]interface{}
	if err := yaml.Unmarshal([]byte(headerBlock), &raw_); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, "", err)
	}

	var m Memory
	if err := yaml.Unmarshal([]byte(headerBlock), &m); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, "", err)
	}
	m.Body = body

	m.extra = make(map[string]interface{})
	for k, v := range raw_ {
		if !knownHeaderKeys[k] {
			m.extra[k] = v
		}
	}

	m.applyDefaults()
	return &m, nil
}

// encode serializes m back into the sentinel-delimited header + body
// form, re-emitting any unknown keys decode preserved.
func encode(m *Memory) ([]byte, error) {
	headerMap := map[string]interface{}{}
	headerBytes, err := yaml.Marshal(m)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, m.ID, err)
	}
	if err := yaml.Unmarshal(headerBytes, &headerMap); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, m.ID, err)
	}
	for k, v := range m.extra {
		headerMap[k] = v
	}

	finalHeader, err := yaml.Marshal(headerMap)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.ParseHeader, m.ID, err)
	}

	var b strings.Builder
	b.WriteString(sentinel)
	b.WriteString("\n")
	b.Write(finalHeader)
	b.WriteString(sentinel)
	b.WriteString("\n")
	if m.Body != "" {
		b.WriteString(m.Body)
		if !strings.HasSuffix(m.Body, "\n") {
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

